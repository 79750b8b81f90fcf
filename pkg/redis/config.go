// Package redis provides Redis client configuration
package redis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key and queue written by gpxenrich
const DefaultPrefix = "gpxenrich"

// Define static errors
var (
	ErrAddressRequired = errors.New("redis address is required")
)

// Config holds Redis client configuration. Address is either host:port or a
// redis:// URL.
type Config struct {
	Address string `yaml:"address"`
	Prefix  string `yaml:"prefix" default:"gpxenrich"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Address == "" {
		return ErrAddressRequired
	}

	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}

	if _, err := c.Options(); err != nil {
		return fmt.Errorf("invalid redis address: %w", err)
	}

	return nil
}

// Options returns go-redis options for the configured address
func (c *Config) Options() (*redis.Options, error) {
	if strings.Contains(c.Address, "://") {
		return redis.ParseURL(c.Address)
	}

	return &redis.Options{Addr: c.Address}, nil
}

// NewClient returns a client for the configured address
func (c *Config) NewClient() (*redis.Client, error) {
	opt, err := c.Options()
	if err != nil {
		return nil, err
	}

	return redis.NewClient(opt), nil
}

// PrefixKey adds the configured prefix to a Redis key
func (c *Config) PrefixKey(key string) string {
	if c.Prefix == "" {
		return key
	}

	return fmt.Sprintf("%s:%s", c.Prefix, key)
}

// PrefixQueue adds the configured prefix to an Asynq queue name
func (c *Config) PrefixQueue(queue string) string {
	if c.Prefix == "" {
		return queue
	}

	return fmt.Sprintf("%s:%s", c.Prefix, queue)
}
