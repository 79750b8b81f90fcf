// Package engine loads the gpxenrich configuration and runs the enrichment
// stages over one trajectory file
package engine

import (
	"errors"
	"fmt"

	"github.com/ethpandaops/gpxenrich/pkg/api"
	"github.com/ethpandaops/gpxenrich/pkg/cache"
	"github.com/ethpandaops/gpxenrich/pkg/enrich"
	"github.com/ethpandaops/gpxenrich/pkg/nearest"
	"github.com/ethpandaops/gpxenrich/pkg/provider"
	"github.com/ethpandaops/gpxenrich/pkg/query"
	"github.com/ethpandaops/gpxenrich/pkg/redis"
	"github.com/ethpandaops/gpxenrich/pkg/scheduler"
	"github.com/ethpandaops/gpxenrich/pkg/worker"
	"github.com/sirupsen/logrus"
)

var (
	// ErrOutputTemplateRequired is returned when an output path template is empty
	ErrOutputTemplateRequired = errors.New("output path template is required")
	// ErrRedisRequired is returned when a component needing redis has no address configured
	ErrRedisRequired = errors.New("redis address is required for the redis cache, worker and scheduler")
)

// Config represents the complete gpxenrich configuration
type Config struct {
	// Core settings
	Logging         string `yaml:"logging" default:"info"`
	MetricsAddr     string `yaml:"metricsAddr" default:":9091"`
	HealthCheckAddr string `yaml:"healthCheckAddr"`
	PProfAddr       string `yaml:"pprofAddr"`

	// Enrichment
	Cache     cache.Config    `yaml:"cache"`
	Query     query.Config    `yaml:"query"`
	Providers provider.Config `yaml:"providers"`
	Stages    StagesConfig    `yaml:"stages"`
	Output    OutputConfig    `yaml:"output"`

	// Queue and services
	Redis     redis.Config     `yaml:"redis"`
	Worker    worker.Config    `yaml:"worker"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	API       api.Config       `yaml:"api"`
}

// StagesConfig enables and tunes the individual stages
type StagesConfig struct {
	Elevation enrich.ElevationConfig `yaml:"elevation"`
	Geocoding enrich.GeocodingConfig `yaml:"geocoding"`
	Surface   enrich.SurfaceConfig   `yaml:"surface"`
	Places    FeatureConfig          `yaml:"places"`
	POIs      POIConfig              `yaml:"pois"`
}

// FeatureConfig locates the feature file joined to each trajectory
type FeatureConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Input   string `yaml:"input" default:"{{ .Dir }}/{{ .Name }}_places.csv"`
}

// POIConfig locates the POI file and holds the relevance thresholds
type POIConfig struct {
	Enabled bool           `yaml:"enabled" default:"true"`
	Input   string         `yaml:"input" default:"{{ .Dir }}/{{ .Name }}_pois.csv"`
	Filter  nearest.Config `yaml:"filter"`
}

// OutputConfig holds output path templates. Templates use text/template
// with sprig functions over PathData.
type OutputConfig struct {
	Dir        string `yaml:"dir" default:"output"`
	Trajectory string `yaml:"trajectory" default:"{{ .OutputDir }}/{{ .Name }}_enriched.csv"`
	Places     string `yaml:"places" default:"{{ .OutputDir }}/{{ .Name }}_places.csv"`
	POIs       string `yaml:"pois" default:"{{ .OutputDir }}/{{ .Name }}_pois.csv"`
}

// Validate validates the output configuration
func (c *OutputConfig) Validate() error {
	for _, tmpl := range []string{c.Trajectory, c.Places, c.POIs} {
		if tmpl == "" {
			return ErrOutputTemplateRequired
		}

		if _, err := parsePathTemplate(tmpl); err != nil {
			return err
		}
	}

	return nil
}

// Validate validates the stage configuration
func (c *StagesConfig) Validate() error {
	if err := c.Geocoding.Validate(); err != nil {
		return fmt.Errorf("invalid geocoding stage: %w", err)
	}

	if err := c.Surface.Validate(); err != nil {
		return fmt.Errorf("invalid surface stage: %w", err)
	}

	for _, input := range []string{c.Places.Input, c.POIs.Input} {
		if _, err := parsePathTemplate(input); err != nil {
			return err
		}
	}

	if c.POIs.Enabled {
		if err := c.POIs.Filter.Validate(); err != nil {
			return fmt.Errorf("invalid pois stage: %w", err)
		}
	}

	return nil
}

// Validate validates everything a single enrichment run needs
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Logging); err != nil {
		return err
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("invalid cache configuration: %w", err)
	}

	if c.Cache.Backend == cache.BackendRedis && c.Redis.Address == "" {
		return ErrRedisRequired
	}

	if err := c.Query.Validate(); err != nil {
		return fmt.Errorf("invalid query configuration: %w", err)
	}

	if err := c.Providers.Validate(); err != nil {
		return fmt.Errorf("invalid provider configuration: %w", err)
	}

	if err := c.Stages.Validate(); err != nil {
		return err
	}

	return c.Output.Validate()
}

// ValidateServices additionally validates the queue, worker, scheduler and
// API settings used by the serve and enqueue commands
func (c *Config) ValidateServices() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("invalid redis configuration: %w", err)
	}

	if err := c.Worker.Validate(); err != nil {
		return fmt.Errorf("invalid worker configuration: %w", err)
	}

	if err := c.Scheduler.Validate(); err != nil {
		return fmt.Errorf("invalid scheduler configuration: %w", err)
	}

	return c.API.Validate()
}
