// Package worker runs the asynq server that processes enrichment tasks
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/gpxenrich/pkg/tasks"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// concurrency is fixed at one task; the cache has a single writer.
const concurrency = 1

// Service defines the public interface for the worker service
type Service interface {
	// Start initializes and starts the worker service
	Start(ctx context.Context) error

	// Stop gracefully shuts down the worker service
	Stop() error
}

// service encapsulates the worker application logic
type service struct {
	config *Config
	log    logrus.FieldLogger

	redisOpt  *asynq.RedisClientOpt
	processor tasks.Processor

	server *asynq.Server
}

// NewService creates a new worker service
func NewService(log logrus.FieldLogger, cfg *Config, redisOpt *asynq.RedisClientOpt, processor tasks.Processor) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &service{
		log:       log.WithField("service", "worker"),
		config:    cfg,
		redisOpt:  redisOpt,
		processor: processor,
	}, nil
}

// NewServeMux routes every task type of handler
func NewServeMux(handler *tasks.TaskHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	for taskType, handlerFunc := range handler.Routes() {
		mux.HandleFunc(taskType, handlerFunc)
	}

	return mux
}

// Start initializes and starts the worker service
func (s *service) Start(_ context.Context) error {
	handler := tasks.NewTaskHandler(s.processor, s.log)

	srv := asynq.NewServer(s.redisOpt, asynq.Config{
		Concurrency:     concurrency,
		Queues:          map[string]int{s.config.Queue: 1},
		ShutdownTimeout: time.Duration(s.config.ShutdownTimeout) * time.Second,
	})

	mux := NewServeMux(handler)

	s.log.WithField("queue", s.config.Queue).Info("Starting worker service")

	// Start returns once the processors run; signals are handled by the caller.
	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}

	s.server = srv

	s.log.Info("Worker service started successfully")

	return nil
}

// Stop gracefully shuts down the worker service
func (s *service) Stop() error {
	if s.server != nil {
		s.server.Shutdown()
	}

	s.log.Info("Worker service stopped successfully")

	return nil
}

// Ensure service implements the interface
var _ Service = (*service)(nil)
