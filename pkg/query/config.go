// Package query wraps calls to rate-limited external services with global
// pacing, bounded retries and error classification.
package query

import (
	"errors"
	"time"
)

// MinimumInterval is the smallest allowed gap between two external calls.
const MinimumInterval = time.Second

// Define static errors
var (
	ErrMaxRetries      = errors.New("maxRetries must be at least 1")
	ErrIntervalTooLow  = errors.New("minInterval must be at least 1s")
	ErrNegativeDelay   = errors.New("delays must not be negative")
	ErrTimeoutRequired = errors.New("timeout must be greater than zero")
)

// Config holds retry and pacing settings shared by every provider. MinInterval
// is enforced between any two external calls; Timeout bounds one attempt.
type Config struct {
	MaxRetries  int           `yaml:"maxRetries" default:"3"`
	MinInterval time.Duration `yaml:"minInterval" default:"1.1s"`
	BaseDelay   time.Duration `yaml:"baseDelay" default:"2s"`
	OtherDelay  time.Duration `yaml:"otherDelay" default:"1s"`
	Timeout     time.Duration `yaml:"timeout" default:"30s"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.MaxRetries < 1 {
		return ErrMaxRetries
	}

	if c.MinInterval < MinimumInterval {
		return ErrIntervalTooLow
	}

	if c.BaseDelay < 0 || c.OtherDelay < 0 {
		return ErrNegativeDelay
	}

	if c.Timeout <= 0 {
		return ErrTimeoutRequired
	}

	return nil
}
