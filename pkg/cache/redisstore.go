package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	// redisSearchSlack widens the GEORADIUS prefilter to cover the differing
	// earth radius and the 52-bit geohash precision of redis.
	redisSearchSlack   = 1.01
	redisSearchExtraKm = 0.005

	// redisMaxLatitude is the GEOADD latitude limit.
	redisMaxLatitude = 85.05112878
)

// ErrOutsideGeoRange is returned for positions redis cannot index.
var ErrOutsideGeoRange = errors.New("position outside the redis geo range")

// RedisStore keeps entries in redis: a GEO set per (kind, provider, radius)
// for the prefilter and a hash of JSON entries keyed by the rounded position.
// The client is shared and not closed by the store.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore returns a store writing keys under prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) baseKey(kind Kind, provider string, radiusM float64) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.prefix, kind, provider, strconv.FormatFloat(radiusM, 'f', -1, 64))
}

func (s *RedisStore) indexKey(kind Kind) string {
	return fmt.Sprintf("%s:%s:keys", s.prefix, kind)
}

func (s *RedisStore) idKey(kind Kind) string {
	return fmt.Sprintf("%s:%s:id", s.prefix, kind)
}

func member(e *Entry) string {
	return e.Coord().String()
}

// Candidates returns the entries redis finds within a slightly widened radius
// of the center. The box is not used.
func (s *RedisStore) Candidates(ctx context.Context, q CandidateQuery) ([]Entry, error) {
	if err := q.Kind.Validate(); err != nil {
		return nil, err
	}

	radius := q.RadiusM
	if q.Kind == KindGeocoding {
		radius = 0
	}

	base := s.baseKey(q.Kind, q.Provider, radius)

	locations, err := s.client.GeoRadius(ctx, base+":geo", q.Center.Lon, q.Center.Lat, &redis.GeoRadiusQuery{
		Radius: q.ToleranceKm*redisSearchSlack + redisSearchExtraKm,
		Unit:   "km",
		Sort:   "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("georadius on %s: %w", base, err)
	}

	if len(locations) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(locations))
	for _, loc := range locations {
		names = append(names, loc.Name)
	}

	values, err := s.client.HMGet(ctx, base+":entries", names...).Result()
	if err != nil {
		return nil, fmt.Errorf("hmget on %s: %w", base, err)
	}

	entries := make([]Entry, 0, len(values))

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// GEO member without an entry; skipped until it is rewritten.
			continue
		}

		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", names[i], err)
		}

		entries = append(entries, e)
	}

	return entries, nil
}

// Upsert writes the entry, keeping the id of an existing entry with the same
// key.
func (s *RedisStore) Upsert(ctx context.Context, e Entry) (int64, error) {
	if err := e.Kind.Validate(); err != nil {
		return 0, err
	}

	if e.Lat > redisMaxLatitude || e.Lat < -redisMaxLatitude {
		return 0, fmt.Errorf("%w: %s", ErrOutsideGeoRange, e.Coord())
	}

	base := s.baseKey(e.Kind, e.Provider, e.RadiusM)
	name := member(&e)

	existing, err := s.client.HGet(ctx, base+":entries", name).Result()

	switch {
	case errors.Is(err, redis.Nil):
		id, err := s.client.Incr(ctx, s.idKey(e.Kind)).Result()
		if err != nil {
			return 0, fmt.Errorf("allocate id: %w", err)
		}

		e.ID = id
	case err != nil:
		return 0, fmt.Errorf("hget on %s: %w", base, err)
	default:
		var prev Entry
		if err := json.Unmarshal([]byte(existing), &prev); err != nil {
			return 0, fmt.Errorf("decode entry %s: %w", name, err)
		}

		e.ID = prev.ID
	}

	data, err := json.Marshal(e)
	if err != nil {
		return 0, err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.GeoAdd(ctx, base+":geo", &redis.GeoLocation{Name: name, Longitude: e.Lon, Latitude: e.Lat})
		pipe.HSet(ctx, base+":entries", name, data)
		pipe.SAdd(ctx, s.indexKey(e.Kind), base)

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("write entry %s: %w", name, err)
	}

	return e.ID, nil
}

// Count sums the entry hashes of a kind.
func (s *RedisStore) Count(ctx context.Context, kind Kind) (int64, error) {
	if err := kind.Validate(); err != nil {
		return 0, err
	}

	bases, err := s.client.SMembers(ctx, s.indexKey(kind)).Result()
	if err != nil {
		return 0, fmt.Errorf("smembers: %w", err)
	}

	var total int64

	for _, base := range bases {
		n, err := s.client.HLen(ctx, base+":entries").Result()
		if err != nil {
			return 0, fmt.Errorf("hlen on %s: %w", base, err)
		}

		total += n
	}

	return total, nil
}

// Close is a no-op; the client belongs to the caller.
func (s *RedisStore) Close() error {
	return nil
}

var _ Store = (*RedisStore)(nil)

var _ interface {
	Store
	Auditor
} = (*SQLStore)(nil)
