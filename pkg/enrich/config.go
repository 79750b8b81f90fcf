// Package enrich attaches provider attributes to trajectory records. Points
// are grouped into blocks, one representative per block is resolved through
// the tolerance cache or the query client, and the result is broadcast to
// every point of the block.
package enrich

import (
	"errors"
	"fmt"

	"github.com/ethpandaops/gpxenrich/pkg/segment"
)

// Fallback selects the attributes assigned to a block whose query failed.
type Fallback string

const (
	// FallbackUnknown assigns UnknownValue to every attribute.
	FallbackUnknown Fallback = "unknown"
	// FallbackPrevious repeats the last resolved block, or unknown when
	// none has been resolved yet.
	FallbackPrevious Fallback = "previous"
)

// UnknownValue is assigned to attributes that could not be resolved.
const UnknownValue = "unknown"

// LabelMode selects how surface blocks are formed.
type LabelMode string

const (
	// LabelsDistance bins points by along-route distance.
	LabelsDistance LabelMode = "distance"
	// LabelsStreet groups points sharing a resolved street and city.
	LabelsStreet LabelMode = "street"
)

// Define static errors
var (
	ErrInvalidSampling  = errors.New("samplingDistanceKm must be greater than zero")
	ErrInvalidTolerance = errors.New("toleranceKm must be greater than zero")
	ErrUnknownFallback  = errors.New("unknown fallback")
	ErrUnknownLabels    = errors.New("unknown label mode")
)

// GeocodingConfig configures the reverse geocoding stage
type GeocodingConfig struct {
	Enabled            bool    `yaml:"enabled" default:"true"`
	SamplingDistanceKm float64 `yaml:"samplingDistanceKm" default:"0.5"`
	ToleranceKm        float64 `yaml:"toleranceKm" default:"0.05"`
	Representative     string  `yaml:"representative" default:"first"`
	Fallback           string  `yaml:"fallback" default:"unknown"`
}

// Validate checks the geocoding configuration
func (c *GeocodingConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	return validateStage(c.SamplingDistanceKm, c.ToleranceKm, c.Representative, c.Fallback)
}

// SurfaceConfig configures the way surface stage
type SurfaceConfig struct {
	Enabled            bool    `yaml:"enabled" default:"true"`
	Labels             string  `yaml:"labels" default:"street"`
	SamplingDistanceKm float64 `yaml:"samplingDistanceKm" default:"0.25"`
	ToleranceKm        float64 `yaml:"toleranceKm" default:"0.02"`
	Representative     string  `yaml:"representative" default:"middle"`
	Fallback           string  `yaml:"fallback" default:"previous"`
}

// Validate checks the surface configuration
func (c *SurfaceConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	switch LabelMode(c.Labels) {
	case LabelsDistance, LabelsStreet:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLabels, c.Labels)
	}

	return validateStage(c.SamplingDistanceKm, c.ToleranceKm, c.Representative, c.Fallback)
}

// ElevationConfig configures the elevation fill stage
type ElevationConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
}

func validateStage(samplingKm, toleranceKm float64, representative, fallback string) error {
	if !(samplingKm > 0) {
		return ErrInvalidSampling
	}

	if !(toleranceKm > 0) {
		return ErrInvalidTolerance
	}

	if _, err := segment.ParsePolicy(representative); err != nil {
		return err
	}

	switch Fallback(fallback) {
	case FallbackUnknown, FallbackPrevious:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFallback, fallback)
	}
}
