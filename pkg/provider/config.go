// Package provider holds the HTTP adapters for the external services queried
// during enrichment: reverse geocoding, way surfaces and elevation.
package provider

import (
	"errors"
)

// Define static errors
var (
	ErrUserAgentRequired = errors.New("provider userAgent is required")
	ErrURLRequired       = errors.New("provider url is required")
	ErrInvalidRadius     = errors.New("overpass radius must be greater than zero")
	ErrInvalidBatchSize  = errors.New("elevation batchSize must be greater than zero")
)

// Config holds the external service endpoints.
type Config struct {
	UserAgent string          `yaml:"userAgent" default:"gpxenrich/1.0 (+https://github.com/ethpandaops/gpxenrich)"`
	Nominatim NominatimConfig `yaml:"nominatim"`
	Overpass  OverpassConfig  `yaml:"overpass"`
	Elevation ElevationConfig `yaml:"elevation"`
}

// NominatimConfig configures the reverse geocoder.
type NominatimConfig struct {
	URL      string `yaml:"url" default:"https://nominatim.openstreetmap.org"`
	Zoom     int    `yaml:"zoom" default:"18"`
	Language string `yaml:"language"`
}

// OverpassConfig configures the way/surface provider. RadiusM is the search
// radius around each representative point and keys the surface cache.
type OverpassConfig struct {
	URL     string  `yaml:"url" default:"https://overpass-api.de/api/interpreter"`
	RadiusM float64 `yaml:"radiusM" default:"30"`
}

// ElevationConfig configures the batch elevation provider.
type ElevationConfig struct {
	URL       string `yaml:"url" default:"https://api.open-elevation.com"`
	BatchSize int    `yaml:"batchSize" default:"100"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.UserAgent == "" {
		return ErrUserAgentRequired
	}

	if c.Nominatim.URL == "" || c.Overpass.URL == "" || c.Elevation.URL == "" {
		return ErrURLRequired
	}

	if c.Overpass.RadiusM <= 0 {
		return ErrInvalidRadius
	}

	if c.Elevation.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	return nil
}
