package worker

import (
	"errors"
)

var (
	// ErrQueueRequired is returned when no queue is configured
	ErrQueueRequired = errors.New("worker queue is required")
	// ErrInvalidShutdownTimeout is returned when the shutdown timeout is negative
	ErrInvalidShutdownTimeout = errors.New("shutdownTimeout must not be negative")
)

// Config contains worker-specific settings. The worker always processes one
// task at a time.
type Config struct {
	Queue           string `yaml:"queue" default:"enrich"`
	ShutdownTimeout int    `yaml:"shutdownTimeout" default:"30"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Queue == "" {
		return ErrQueueRequired
	}

	if c.ShutdownTimeout < 0 {
		return ErrInvalidShutdownTimeout
	}

	return nil
}
