package nearest

import (
	"errors"
	"slices"
	"strings"
)

// Define static errors
var (
	ErrInvalidThreshold = errors.New("distance thresholds must be greater than zero")
	ErrInvalidPeakRule  = errors.New("peak rules need a positive maxDistanceM")
)

// PeakRule keeps a peak of at least MinElevationM when it lies within
// MaxDistanceM of the trajectory.
type PeakRule struct {
	MinElevationM float64 `yaml:"minElevationM"`
	MaxDistanceM  float64 `yaml:"maxDistanceM"`
}

// DefaultPeakRules lets higher peaks qualify from further away.
func DefaultPeakRules() []PeakRule {
	return []PeakRule{
		{MinElevationM: 3000, MaxDistanceM: 10000},
		{MinElevationM: 2000, MaxDistanceM: 5000},
		{MinElevationM: 1000, MaxDistanceM: 3000},
		{MinElevationM: 0, MaxDistanceM: 1500},
	}
}

// DefaultServiceTypes are the POI types filtered with the service threshold.
func DefaultServiceTypes() []string {
	return []string{
		"bakery", "bicycle", "cafe", "camp_site", "convenience", "drinking_water", "fuel",
		"hotel", "pharmacy", "restaurant", "shelter", "supermarket", "toilets",
	}
}

// POI types with dedicated thresholds.
const (
	TypePeak      = "peak"
	TypeViewpoint = "viewpoint"
)

// Config holds POI relevance thresholds
type Config struct {
	ServiceMaxDistanceM   float64    `yaml:"serviceMaxDistanceM" default:"500"`
	ViewpointMaxDistanceM float64    `yaml:"viewpointMaxDistanceM" default:"2000"`
	DefaultMaxDistanceM   float64    `yaml:"defaultMaxDistanceM" default:"1000"`
	ServiceTypes          []string   `yaml:"serviceTypes"`
	PeakRules             []PeakRule `yaml:"peakRules"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	for _, v := range []float64{c.ServiceMaxDistanceM, c.ViewpointMaxDistanceM, c.DefaultMaxDistanceM} {
		if !(v > 0) {
			return ErrInvalidThreshold
		}
	}

	for _, r := range c.PeakRules {
		if !(r.MaxDistanceM > 0) {
			return ErrInvalidPeakRule
		}
	}

	return nil
}

func (c *Config) serviceTypes() []string {
	if len(c.ServiceTypes) == 0 {
		return DefaultServiceTypes()
	}

	return c.ServiceTypes
}

// peakRules returns the rules ordered by descending minimum elevation.
func (c *Config) peakRules() []PeakRule {
	rules := c.PeakRules
	if len(rules) == 0 {
		rules = DefaultPeakRules()
	}

	rules = slices.Clone(rules)
	slices.SortStableFunc(rules, func(a, b PeakRule) int {
		switch {
		case a.MinElevationM > b.MinElevationM:
			return -1
		case a.MinElevationM < b.MinElevationM:
			return 1
		default:
			return 0
		}
	})

	return rules
}

// MaxDistanceM returns the distance within which a POI of type poiType is
// kept. elevation is only consulted for peaks; peaks without one use the
// lowest rule.
func (c *Config) MaxDistanceM(poiType string, elevation *float64) float64 {
	t := strings.ToLower(strings.TrimSpace(poiType))

	switch {
	case t == TypeViewpoint:
		return c.ViewpointMaxDistanceM
	case t == TypePeak:
		rules := c.peakRules()

		if elevation != nil {
			for _, r := range rules {
				if *elevation >= r.MinElevationM {
					return r.MaxDistanceM
				}
			}
		}

		return rules[len(rules)-1].MaxDistanceM
	case slices.Contains(c.serviceTypes(), t):
		return c.ServiceMaxDistanceM
	default:
		return c.DefaultMaxDistanceM
	}
}
