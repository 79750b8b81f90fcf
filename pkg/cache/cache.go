package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethpandaops/gpxenrich/pkg/geo"
	"github.com/ethpandaops/gpxenrich/pkg/observability"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// toleranceEpsilonKm absorbs floating point error in the distance comparison.
const toleranceEpsilonKm = 1e-9

// ErrRedisClientRequired is returned when the redis backend is opened without a client.
var ErrRedisClientRequired = errors.New("redis client is required for the redis backend")

// Stats are process-lifetime counters. EntryCount is read from the store.
type Stats struct {
	EntryCount int64          `json:"entry_count"`
	Entries    map[Kind]int64 `json:"entries"`
	Hits       int64          `json:"hits"`
	Misses     int64          `json:"misses"`
	Lookups    int64          `json:"lookups"`
	Backend    string         `json:"backend"`
}

// Cache is the tolerance cache over a Store. Store failures never reach the
// caller: lookups degrade to misses and writes to id 0.
type Cache struct {
	log     logrus.FieldLogger
	store   Store
	backend string
	box     geo.BoxFunc
	now     func() time.Time

	hits    atomic.Int64
	misses  atomic.Int64
	lookups atomic.Int64
}

// Open builds the configured store and returns a cache with zeroed counters.
// The redis client is only used by the redis backend.
func Open(ctx context.Context, cfg *Config, rdb *redis.Client, log logrus.FieldLogger) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}

	var (
		store Store
		err   error
	)

	switch cfg.Backend {
	case BackendSQLite:
		store, err = NewSQLStore(ctx, DialectSQLite, cfg.Path)
	case BackendPostgres:
		store, err = NewSQLStore(ctx, DialectPostgres, cfg.DSN)
	case BackendRedis:
		if rdb == nil {
			return nil, ErrRedisClientRequired
		}

		store = NewRedisStore(rdb, cfg.KeyPrefix)
	}

	if err != nil {
		return nil, err
	}

	c, err := New(store, cfg.BoundingBox, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	c.backend = cfg.Backend

	return c, nil
}

// New wraps an open store.
func New(store Store, boxMode string, log logrus.FieldLogger) (*Cache, error) {
	box, err := geo.BoxFuncFor(boxMode)
	if err != nil {
		return nil, err
	}

	return &Cache{
		log:   log.WithField("component", "cache"),
		store: store,
		box:   box,
		now:   time.Now,
	}, nil
}

// Lookup returns the stored entry nearest to the request position when it
// lies within the tolerance. Entries for other providers, and for the
// surface kind other radii, never match.
func (c *Cache) Lookup(ctx context.Context, req LookupRequest) (*Entry, bool) {
	c.lookups.Add(1)

	if err := req.Validate(); err != nil {
		c.log.WithError(err).Warn("Rejected cache lookup")
		c.misses.Add(1)
		observability.RecordCacheLookup(string(req.Kind), "error", 0)

		return nil, false
	}

	center := req.Coord()

	q := CandidateQuery{
		Kind:        req.Kind,
		Provider:    req.Provider,
		Center:      center,
		ToleranceKm: req.ToleranceKm,
		Box:         c.box(center, req.ToleranceKm),
	}
	if req.Kind == KindSurface {
		q.RadiusM = geo.Round(req.RadiusM, 3)
	}

	candidates, err := c.store.Candidates(ctx, q)
	if err != nil {
		c.log.WithError(err).WithField("kind", req.Kind).Warn("Cache lookup failed, treating as miss")
		c.misses.Add(1)
		observability.RecordCacheLookup(string(req.Kind), "error", 0)

		return nil, false
	}

	best := nearestWithin(center, candidates, req.ToleranceKm)
	if best == nil {
		c.misses.Add(1)
		observability.RecordCacheLookup(string(req.Kind), "miss", len(candidates))

		return nil, false
	}

	c.hits.Add(1)
	observability.RecordCacheLookup(string(req.Kind), "hit", len(candidates))

	return best, true
}

// nearestWithin picks the candidate closest to center within toleranceKm.
// Equal distances resolve to the lowest id.
func nearestWithin(center geo.Point, candidates []Entry, toleranceKm float64) *Entry {
	var (
		best     *Entry
		bestDist float64
	)

	for i := range candidates {
		cand := &candidates[i]

		d := geo.HaversineKm(center, cand.Coord())
		if d > toleranceKm+toleranceEpsilonKm {
			continue
		}

		if best == nil || d < bestDist || (d == bestDist && cand.ID < best.ID) {
			best = cand
			bestDist = d
		}
	}

	if best == nil {
		return nil
	}

	out := *best
	out.Attributes = best.Attributes.Clone()

	return &out
}

// Store upserts an entry and returns its id. Failures are logged and return 0.
func (c *Cache) Store(ctx context.Context, e Entry) int64 {
	if err := e.validate(); err != nil {
		c.log.WithError(err).Warn("Rejected cache entry")
		observability.RecordCacheWrite(string(e.Kind), "error")

		return 0
	}

	e.normalize(c.now())

	id, err := c.store.Upsert(ctx, e)
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"kind":     e.Kind,
			"provider": e.Provider,
			"position": e.Coord().String(),
		}).Warn("Failed to store cache entry")
		observability.RecordCacheWrite(string(e.Kind), "error")

		return 0
	}

	observability.RecordCacheWrite(string(e.Kind), "success")

	return id
}

// Statistics returns the lifetime counters together with the stored entry
// count. A failing count is logged and reported as zero.
func (c *Cache) Statistics(ctx context.Context) Stats {
	stats := Stats{
		Entries: make(map[Kind]int64, 2),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Lookups: c.lookups.Load(),
		Backend: c.backend,
	}

	for _, kind := range Kinds() {
		n, err := c.store.Count(ctx, kind)
		if err != nil {
			c.log.WithError(err).WithField("kind", kind).Warn("Failed to count cache entries")
			continue
		}

		stats.Entries[kind] = n
		stats.EntryCount += n
	}

	return stats
}

// RecordTrack writes audit rows when the store keeps them. Stores without
// audit tables ignore the call.
func (c *Cache) RecordTrack(ctx context.Context, audit TrackAudit) error {
	auditor, ok := c.store.(Auditor)
	if !ok {
		c.log.WithField("track", audit.ID).Debug("Store keeps no track audit")
		return nil
	}

	if audit.ProcessedAt.IsZero() {
		audit.ProcessedAt = c.now()
	}

	return auditor.RecordTrack(ctx, audit)
}

// Close releases the store.
func (c *Cache) Close() error {
	return c.store.Close()
}
