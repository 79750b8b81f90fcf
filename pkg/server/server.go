// Package server composes the long-running gpxenrich process: the task
// worker, the inbox scheduler, the HTTP API and the metrics, health and
// pprof listeners
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	//nolint:gosec // only exposed if pprofAddr config is set
	_ "net/http/pprof"

	"github.com/ethpandaops/gpxenrich/pkg/api"
	"github.com/ethpandaops/gpxenrich/pkg/api/handlers"
	"github.com/ethpandaops/gpxenrich/pkg/cache"
	"github.com/ethpandaops/gpxenrich/pkg/engine"
	"github.com/ethpandaops/gpxenrich/pkg/observability"
	"github.com/ethpandaops/gpxenrich/pkg/scheduler"
	"github.com/ethpandaops/gpxenrich/pkg/tasks"
	"github.com/ethpandaops/gpxenrich/pkg/worker"
	r "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Server represents the main application server
type Server struct {
	log    logrus.FieldLogger
	config *engine.Config

	redis *r.Client
	queue *tasks.QueueManager
	cache *cache.Cache

	runner    *engine.Runner
	worker    worker.Service
	scheduler scheduler.Service
	api       api.Service

	pprofServer  *http.Server
	healthServer *http.Server
}

// NewServer validates config and wires every component. The scheduler and
// API are only built when enabled.
func NewServer(ctx context.Context, log logrus.FieldLogger, config *engine.Config) (*Server, error) {
	if err := config.ValidateServices(); err != nil {
		return nil, err
	}

	redisClient, err := config.Redis.NewClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	s := &Server{
		config: config,
		log:    log,
		redis:  redisClient,
	}

	if err := s.wire(ctx); err != nil {
		s.close()
		return nil, err
	}

	return s, nil
}

func (s *Server) wire(ctx context.Context) error {
	var err error

	if s.runner, err = engine.NewRunner(s.config, s.log, engine.WithRedis(s.redis)); err != nil {
		return fmt.Errorf("failed to create runner: %w", err)
	}

	asynqOpt, err := s.config.Redis.AsynqOptions()
	if err != nil {
		return err
	}

	queueName := s.config.Redis.PrefixQueue(s.config.Worker.Queue)
	s.queue = tasks.NewQueueManager(asynqOpt, queueName)

	workerCfg := s.config.Worker
	workerCfg.Queue = queueName

	if s.worker, err = worker.NewService(s.log, &workerCfg, asynqOpt, s.runner); err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	if s.config.Scheduler.Enabled {
		if s.scheduler, err = scheduler.NewService(s.log, &s.config.Scheduler, &s.config.Redis, s.queue); err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
	}

	if s.config.API.Enabled {
		var reader handlers.CacheReader

		c, err := cache.Open(ctx, &s.config.Cache, s.redis, s.log)
		if err != nil {
			s.log.WithError(err).Warn("Cache unavailable, API cache routes disabled")
		} else {
			s.cache = c
			reader = c
		}

		s.api = api.NewService(&s.config.API, reader, s.queue, s.log)
	}

	return nil
}

// Start starts the server and all its components, and blocks until ctx is
// cancelled or SIGINT/SIGTERM arrives
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	s.log.WithFields(logrus.Fields{
		"queue":     s.queue.Queue(),
		"scheduler": s.scheduler != nil,
		"api":       s.api != nil,
		"stages":    s.runner.Order(),
	}).Debug("Server component states")

	// Start metrics server
	g.Go(func() error {
		defer func() {
			if recovered := recover(); recovered != nil {
				s.log.WithField("panic", recovered).Error("Panic in metrics server goroutine")
			}
		}()
		observability.StartMetricsServer(s.config.MetricsAddr)
		<-ctx.Done()

		return nil
	})

	if s.config.PProfAddr != "" {
		g.Go(func() error {
			if err := s.startPProf(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			<-ctx.Done()

			return nil
		})
	}

	if s.config.HealthCheckAddr != "" {
		g.Go(func() error {
			if err := s.startHealthCheck(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			<-ctx.Done()

			return nil
		})
	}

	if err := s.worker.Start(ctx); err != nil {
		s.stop(context.Background())
		return err
	}

	if s.scheduler != nil {
		if err := s.scheduler.Start(ctx); err != nil {
			s.stop(context.Background())
			return err
		}
	}

	if s.api != nil {
		if err := s.api.Start(ctx); err != nil {
			s.stop(context.Background())
			return err
		}
	}

	// Wait for shutdown signal
	g.Go(func() error {
		<-ctx.Done()

		// Use a fresh context for cleanup since the current one is canceled
		s.stop(context.Background())

		return nil
	})

	return g.Wait()
}

// stop shuts down task producers before the worker and closes shared
// connections last
func (s *Server) stop(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	s.log.Info("Starting graceful shutdown...")

	if s.api != nil {
		if err := s.api.Stop(); err != nil {
			s.log.WithError(err).Error("failed to stop API server")
		}
	}

	if s.scheduler != nil {
		if err := s.scheduler.Stop(); err != nil {
			s.log.WithError(err).Error("failed to stop scheduler")
		}
	}

	if s.worker != nil {
		if err := s.worker.Stop(); err != nil {
			s.log.WithError(err).Error("failed to stop worker")
		}
	}

	if s.pprofServer != nil {
		if err := s.pprofServer.Shutdown(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to shutdown pprof server")
		}
	}

	if s.healthServer != nil {
		if err := s.healthServer.Shutdown(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to shutdown health server")
		}
	}

	if err := observability.StopMetricsServer(cleanupCtx); err != nil {
		s.log.WithError(err).Error("failed to stop metrics server")
	}

	s.close()

	s.log.Info("Server stopped gracefully")
}

// close releases the queue, cache and redis connections
func (s *Server) close() {
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			s.log.WithError(err).Error("failed to close task queue")
		}
	}

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.log.WithError(err).Error("failed to close cache")
		}
	}

	if s.redis != nil {
		s.log.Info("Closing Redis connection...")

		if err := s.redis.Close(); err != nil {
			s.log.WithError(err).Error("failed to close redis")
		}
	}
}

func (s *Server) startPProf() error {
	s.log.WithField("addr", s.config.PProfAddr).Info("Starting pprof server")

	s.pprofServer = &http.Server{
		Addr:              s.config.PProfAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}

	return s.pprofServer.ListenAndServe()
}

func (s *Server) startHealthCheck() error {
	s.log.WithField("addr", s.config.HealthCheckAddr).Info("Starting healthcheck server")

	s.healthServer = &http.Server{
		Addr:              s.config.HealthCheckAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}

	s.healthServer.Handler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if err := s.redis.Ping(req.Context()).Err(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
	})

	return s.healthServer.ListenAndServe()
}
