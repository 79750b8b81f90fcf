// Package scheduler scans an inbox directory on a cron schedule and enqueues
// new or changed trajectory files for enrichment
package scheduler

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrInboxRequired is returned when the scheduler is enabled without an inbox
	ErrInboxRequired = errors.New("scheduler inbox is required")
	// ErrPatternsRequired is returned when no file pattern is configured
	ErrPatternsRequired = errors.New("at least one file pattern is required")
)

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Config defines scheduler configuration
type Config struct {
	Enabled         bool          `yaml:"enabled" default:"false"`
	Inbox           string        `yaml:"inbox" default:"inbox"`
	Patterns        []string      `yaml:"patterns" default:"[\"*.gpx\",\"*.csv\"]"`
	Exclude         []string      `yaml:"exclude" default:"[\"*_places.csv\",\"*_pois.csv\"]"`
	Schedule        string        `yaml:"schedule" default:"@every 1m"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"10s"`
}

// Validate checks if the scheduler configuration is valid
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Inbox == "" {
		return ErrInboxRequired
	}

	if len(c.Patterns) == 0 {
		return ErrPatternsRequired
	}

	for _, p := range append(append([]string{}, c.Patterns...), c.Exclude...) {
		if _, err := filepath.Match(p, ""); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", p, err)
		}
	}

	if _, err := scheduleParser.Parse(c.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", c.Schedule, err)
	}

	return nil
}

// Matches reports whether a file name is picked up by the scan
func (c *Config) Matches(name string) bool {
	for _, p := range c.Exclude {
		if ok, _ := filepath.Match(p, name); ok {
			return false
		}
	}

	for _, p := range c.Patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}

	return false
}
