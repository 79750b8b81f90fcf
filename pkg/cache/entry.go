package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/gpxenrich/pkg/geo"
	"github.com/ethpandaops/gpxenrich/pkg/trajectory"
)

// Kind selects one of the cache tables.
type Kind string

const (
	// KindGeocoding holds reverse-geocoded addresses keyed by position.
	KindGeocoding Kind = "geocoding"
	// KindSurface holds way/surface attributes keyed by position and query radius.
	KindSurface Kind = "surface"

	// CoordinateDecimals is the precision of stored coordinates and of the
	// uniqueness key.
	CoordinateDecimals = 6
)

// Kinds lists every cache kind.
func Kinds() []Kind {
	return []Kind{KindGeocoding, KindSurface}
}

var (
	// ErrUnknownKind is returned for a kind outside Kinds().
	ErrUnknownKind = errors.New("unknown cache kind")
	// ErrInvalidTolerance is returned for a tolerance that is not positive.
	ErrInvalidTolerance = errors.New("tolerance must be greater than zero")
	// ErrProviderRequired is returned when an entry or lookup names no provider.
	ErrProviderRequired = errors.New("provider is required")
)

// Validate checks that k is a known kind.
func (k Kind) Validate() error {
	switch k {
	case KindGeocoding, KindSurface:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, string(k))
	}
}

// Entry is one stored external result.
type Entry struct {
	ID         int64                 `json:"id"`
	Kind       Kind                  `json:"kind"`
	Lat        float64               `json:"latitude"`
	Lon        float64               `json:"longitude"`
	RadiusM    float64               `json:"query_radius,omitempty"`
	Provider   string                `json:"provider"`
	Attributes trajectory.Attributes `json:"attributes"`
	QueriedAt  time.Time             `json:"query_date"`
}

// Coord returns the entry position.
func (e *Entry) Coord() geo.Point {
	return geo.Point{Lat: e.Lat, Lon: e.Lon}
}

// normalize rounds the uniqueness key and fills the query timestamp.
func (e *Entry) normalize(now time.Time) {
	p := e.Coord().Rounded(CoordinateDecimals)
	e.Lat, e.Lon = p.Lat, p.Lon

	if e.Kind == KindGeocoding {
		e.RadiusM = 0
	} else {
		e.RadiusM = geo.Round(e.RadiusM, 3)
	}

	if e.QueriedAt.IsZero() {
		e.QueriedAt = now
	}

	e.QueriedAt = e.QueriedAt.UTC()
}

func (e *Entry) validate() error {
	if err := e.Kind.Validate(); err != nil {
		return err
	}

	if e.Provider == "" {
		return ErrProviderRequired
	}

	return e.Coord().Validate()
}

// LookupRequest describes a tolerance lookup. RadiusM is only compared for
// the surface kind.
type LookupRequest struct {
	Kind        Kind    `json:"kind"`
	Lat         float64 `json:"latitude"`
	Lon         float64 `json:"longitude"`
	RadiusM     float64 `json:"query_radius,omitempty"`
	Provider    string  `json:"provider"`
	ToleranceKm float64 `json:"tolerance_km"`
}

// Coord returns the lookup position.
func (r *LookupRequest) Coord() geo.Point {
	return geo.Point{Lat: r.Lat, Lon: r.Lon}
}

// Validate checks the request before it reaches a store.
func (r *LookupRequest) Validate() error {
	if err := r.Kind.Validate(); err != nil {
		return err
	}

	if r.Provider == "" {
		return ErrProviderRequired
	}

	if !(r.ToleranceKm > 0) {
		return fmt.Errorf("%w: %v", ErrInvalidTolerance, r.ToleranceKm)
	}

	return r.Coord().Validate()
}

// CandidateQuery is the phase one prefilter handed to a Store. Stores may
// use either the box or the center and tolerance, but must return every
// entry within ToleranceKm of Center.
type CandidateQuery struct {
	Kind        Kind
	Provider    string
	RadiusM     float64
	Center      geo.Point
	ToleranceKm float64
	Box         geo.BoundingBox
}

// Store persists cache entries.
type Store interface {
	Candidates(ctx context.Context, q CandidateQuery) ([]Entry, error)
	Upsert(ctx context.Context, e Entry) (int64, error)
	Count(ctx context.Context, kind Kind) (int64, error)
	Close() error
}

// TrackPoint links one output point to the cache entry that supplied it.
type TrackPoint struct {
	SequenceIndex int
	EntryID       *int64
}

// TrackAudit records one processed trajectory stage.
type TrackAudit struct {
	ID                 string
	File               string
	Stage              string
	TotalPoints        int
	SamplingDistanceKm float64
	ProcessedAt        time.Time
	Points             []TrackPoint
}

// Auditor is implemented by stores that keep the tracks/track_points audit
// tables.
type Auditor interface {
	RecordTrack(ctx context.Context, audit TrackAudit) error
}
