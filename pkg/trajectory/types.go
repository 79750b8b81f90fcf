// Package trajectory holds the record types exchanged with the parsing stage
// and written back out after enrichment, together with their tabular codecs.
package trajectory

import (
	"github.com/ethpandaops/gpxenrich/pkg/geo"
)

// Point is one element of an ordered trajectory. Points are immutable once
// loaded; enrichment produces Records that embed them.
type Point struct {
	Index      int      `json:"sequence_index"`
	Lat        float64  `json:"latitude"`
	Lon        float64  `json:"longitude"`
	Elevation  *float64 `json:"elevation,omitempty"`
	DistanceKm *float64 `json:"along_route_distance_km,omitempty"`
}

// Coord returns the point as a geo.Point.
func (p Point) Coord() geo.Point {
	return geo.Point{Lat: p.Lat, Lon: p.Lon}
}

// Valid reports whether the point carries a usable coordinate.
func (p Point) Valid() bool {
	return p.Coord().Valid()
}

// Attributes are the named values returned by an external provider and
// stored in the cache.
type Attributes map[string]string

// Clone returns a copy safe to mutate.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}

	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}

	return out
}

// Address is the geocoding result attached to a record.
type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country,omitempty"`
	// EntryID is the cache entry the value came from; nil for fallbacks.
	EntryID *int64 `json:"-"`
}

// AddressFromAttributes maps provider attributes onto an Address.
func AddressFromAttributes(attrs Attributes, entryID *int64) *Address {
	return &Address{
		Street:     attrs[AttrStreet],
		City:       attrs[AttrCity],
		PostalCode: attrs[AttrPostalCode],
		Country:    attrs[AttrCountry],
		EntryID:    entryID,
	}
}

// Surface is the way/surface result attached to a record.
type Surface struct {
	Surface    string `json:"surface"`
	Highway    string `json:"highway"`
	TrackType  string `json:"tracktype"`
	Smoothness string `json:"smoothness"`
	WayID      string `json:"osm_way_id"`
	EntryID    *int64 `json:"-"`
}

// SurfaceFromAttributes maps provider attributes onto a Surface.
func SurfaceFromAttributes(attrs Attributes, entryID *int64) *Surface {
	return &Surface{
		Surface:    attrs[AttrSurface],
		Highway:    attrs[AttrHighway],
		TrackType:  attrs[AttrTrackType],
		Smoothness: attrs[AttrSmoothness],
		WayID:      attrs[AttrWayID],
		EntryID:    entryID,
	}
}

// Record is a trajectory point plus the attributes of every stage that ran.
type Record struct {
	Point

	Address *Address `json:"address,omitempty"`
	Surface *Surface `json:"surface,omitempty"`
}

// NewRecords wraps points into records without attributes.
func NewRecords(points []Point) []Record {
	records := make([]Record, len(points))
	for i := range points {
		records[i] = Record{Point: points[i]}
	}

	return records
}

// Points returns the embedded points of the records.
func Points(records []Record) []Point {
	points := make([]Point, len(records))
	for i := range records {
		points[i] = records[i].Point
	}

	return points
}

// Feature is an externally sourced point of interest or named place.
type Feature struct {
	Lat       float64  `json:"latitude"`
	Lon       float64  `json:"longitude"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Elevation *float64 `json:"elevation,omitempty"`
}

// Coord returns the feature location.
func (f Feature) Coord() geo.Point {
	return geo.Point{Lat: f.Lat, Lon: f.Lon}
}

// JoinedFeature is a Feature with the context of its nearest trajectory point.
type JoinedFeature struct {
	Feature

	NearestIndex          int      `json:"nearest_trajectory_index"`
	NearestElevation      *float64 `json:"nearest_trajectory_elevation,omitempty"`
	NearestDistanceKm     *float64 `json:"nearest_trajectory_distance_km,omitempty"`
	DistanceToTrajectoryM float64  `json:"distance_to_trajectory_m"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}
