package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/ethpandaops/gpxenrich/pkg/geo"
	"github.com/ethpandaops/gpxenrich/pkg/trajectory"
)

// Line returns n points heading east from start, spacingKm apart, with
// sequence indexes and along-route distances set.
func Line(start geo.Point, n int, spacingKm float64) []trajectory.Point {
	points := make([]trajectory.Point, n)

	cur := start
	for i := range points {
		points[i] = trajectory.Point{Index: i, Lat: cur.Lat, Lon: cur.Lon}
		cur = geo.Destination(cur, 90, spacingKm)
	}

	trajectory.FillDistances(points)

	return points
}

// RespondFunc answers the call-th query (zero-based) at p.
type RespondFunc func(call int, p geo.Point) (trajectory.Attributes, error)

// ScriptedProvider is an in-memory provider that records every query.
type ScriptedProvider struct {
	ProviderName string
	Respond      RespondFunc

	mu    sync.Mutex
	calls []geo.Point
}

// Name returns the configured provider name, "scripted" when unset.
func (s *ScriptedProvider) Name() string {
	if s.ProviderName == "" {
		return "scripted"
	}

	return s.ProviderName
}

// Query records p and returns the scripted answer.
func (s *ScriptedProvider) Query(ctx context.Context, p geo.Point) (trajectory.Attributes, error) {
	s.mu.Lock()
	call := len(s.calls)
	s.calls = append(s.calls, p)
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.Respond == nil {
		return trajectory.Attributes{}, nil
	}

	return s.Respond(call, p)
}

// Calls returns the positions queried so far.
func (s *ScriptedProvider) Calls() []geo.Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]geo.Point(nil), s.calls...)
}

// NoopPacer admits every call immediately.
type NoopPacer struct{}

// Wait returns the context error, if any.
func (NoopPacer) Wait(ctx context.Context) error {
	return ctx.Err()
}

// NoSleep skips backoff delays.
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
