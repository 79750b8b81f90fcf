package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// filesKeySuffix names the hash of enqueued files: field is the absolute
// path, value the modification time seen at enqueue (RFC3339Nano).
const filesKeySuffix = "scheduler:files"

// fileTracker remembers which inbox files were enqueued and at which
// modification time
type fileTracker interface {
	// Seen reports whether path was already enqueued with modTime
	Seen(ctx context.Context, path string, modTime time.Time) (bool, error)

	// Mark records path as enqueued with modTime
	Mark(ctx context.Context, path string, modTime time.Time) error

	// Forget removes paths that left the inbox
	Forget(ctx context.Context, paths ...string) error

	// Paths returns every tracked path
	Paths(ctx context.Context) ([]string, error)

	// Close releases resources held by the tracker
	Close() error
}

type redisFileTracker struct {
	log   logrus.FieldLogger
	redis *redis.Client
	key   string
}

// newFileTracker creates a Redis-backed file tracker storing its hash at key
func newFileTracker(log logrus.FieldLogger, redisClient *redis.Client, key string) fileTracker {
	return &redisFileTracker{
		log:   log.WithField("component", "file_tracker"),
		redis: redisClient,
		key:   key,
	}
}

func (r *redisFileTracker) Seen(ctx context.Context, path string, modTime time.Time) (bool, error) {
	val, err := r.redis.HGet(ctx, r.key, path).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}

		return false, fmt.Errorf("failed to get tracked file %s: %w", path, err)
	}

	seen, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"path":      path,
			"raw_value": val,
		}).Warn("Failed to parse tracked modification time")

		return false, nil
	}

	return seen.Equal(modTime), nil
}

func (r *redisFileTracker) Mark(ctx context.Context, path string, modTime time.Time) error {
	if err := r.redis.HSet(ctx, r.key, path, modTime.UTC().Format(time.RFC3339Nano)).Err(); err != nil {
		return fmt.Errorf("failed to track file %s: %w", path, err)
	}

	r.log.WithFields(logrus.Fields{
		"path":     path,
		"mod_time": modTime,
	}).Debug("Tracked file")

	return nil
}

func (r *redisFileTracker) Forget(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	if err := r.redis.HDel(ctx, r.key, paths...).Err(); err != nil {
		return fmt.Errorf("failed to forget files: %w", err)
	}

	r.log.WithField("count", len(paths)).Debug("Forgot files no longer in the inbox")

	return nil
}

func (r *redisFileTracker) Paths(ctx context.Context) ([]string, error) {
	// HSCAN keeps large inboxes from blocking Redis.
	const scanBatchSize = 100

	var paths []string

	iter := r.redis.HScan(ctx, r.key, 0, "*", scanBatchSize).Iterator()
	for i := 0; iter.Next(ctx); i++ {
		// HSCAN yields field, value pairs
		if i%2 == 0 {
			paths = append(paths, iter.Val())
		}
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan tracked files: %w", err)
	}

	return paths, nil
}

func (r *redisFileTracker) Close() error {
	if r.redis != nil {
		return r.redis.Close()
	}

	return nil
}

// Verify interface compliance at compile time
var _ fileTracker = (*redisFileTracker)(nil)
