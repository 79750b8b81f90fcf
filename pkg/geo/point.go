// Package geo provides the geodesic primitives shared by the cache, the
// nearest-neighbor join and the trajectory loaders.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCoordinate is returned when a latitude/longitude pair is not a
// finite WGS84 coordinate.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point is finite and inside the WGS84 range.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}

	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Validate returns ErrInvalidCoordinate wrapped with the offending values.
func (p Point) Validate() error {
	if !p.Valid() {
		return fmt.Errorf("%w: (%v, %v)", ErrInvalidCoordinate, p.Lat, p.Lon)
	}

	return nil
}

// Rounded returns the point rounded to the given number of decimals. Cache
// keys use six decimals (roughly 0.1 m).
func (p Point) Rounded(decimals int) Point {
	return Point{Lat: Round(p.Lat, decimals), Lon: Round(p.Lon, decimals)}
}

// String formats the point as "lat,lon" with six decimals.
func (p Point) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}
