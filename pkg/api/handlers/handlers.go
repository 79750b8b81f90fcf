// Package handlers implements the HTTP handlers for the gpxenrich API.
package handlers

import (
	"context"

	"github.com/ethpandaops/gpxenrich/pkg/cache"
	"github.com/ethpandaops/gpxenrich/pkg/tasks"
	"github.com/gofiber/fiber/v3"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// CacheReader is the read side of the tolerance cache
type CacheReader interface {
	Lookup(ctx context.Context, req cache.LookupRequest) (*cache.Entry, bool)
	Statistics(ctx context.Context) cache.Stats
}

// Queue accepts enrichment tasks and reports on the queue
type Queue interface {
	EnqueueTrack(ctx context.Context, payload tasks.TrackPayload, opts ...asynq.Option) (bool, error)
	GetQueueStats() (*asynq.QueueInfo, error)
}

// Server serves the API routes. Either dependency may be nil, in which case
// its routes answer 503.
type Server struct {
	cache CacheReader
	queue Queue
	log   logrus.FieldLogger
}

// NewServer creates a new API server instance
func NewServer(cacheReader CacheReader, queue Queue, log logrus.FieldLogger) *Server {
	return &Server{
		cache: cacheReader,
		queue: queue,
		log:   log.WithField("component", "api.handlers"),
	}
}

// Register mounts every route on router
func (s *Server) Register(router fiber.Router) {
	router.Get("/health", s.Health)

	v1 := router.Group("/api/v1")
	v1.Get("/cache/stats", s.CacheStats)
	v1.Get("/cache/lookup", s.CacheLookup)
	v1.Post("/tracks", s.EnqueueTrack)
	v1.Get("/queue", s.QueueStats)
}

// Health handles GET /health
func (s *Server) Health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"cache":  s.cache != nil,
		"queue":  s.queue != nil,
	})
}
