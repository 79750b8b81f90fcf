// Package cache implements the spatial tolerance cache for external query
// results: a bounding box prefilter in the backing store followed by an
// exact haversine check.
package cache

import (
	"errors"
	"fmt"

	"github.com/ethpandaops/gpxenrich/pkg/geo"
)

// Backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Define static errors
var (
	ErrUnknownBackend = errors.New("unknown cache backend")
	ErrPathRequired   = errors.New("cache path is required for the sqlite backend")
	ErrDSNRequired    = errors.New("cache dsn is required for the postgres backend")
)

// Config holds tolerance cache configuration. Path is used by sqlite, DSN by
// postgres and KeyPrefix by redis.
type Config struct {
	Backend     string `yaml:"backend" default:"sqlite"`
	Path        string `yaml:"path" default:"gpxenrich_cache.db"`
	DSN         string `yaml:"dsn"`
	KeyPrefix   string `yaml:"keyPrefix" default:"gpxenrich:cache"`
	BoundingBox string `yaml:"boundingBox" default:"spherical"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite:
		if c.Path == "" {
			return ErrPathRequired
		}
	case BackendPostgres:
		if c.DSN == "" {
			return ErrDSNRequired
		}
	case BackendRedis:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}

	if _, err := geo.BoxFuncFor(c.BoundingBox); err != nil {
		return err
	}

	return nil
}
