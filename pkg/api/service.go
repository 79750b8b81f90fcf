package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethpandaops/gpxenrich/pkg/api/handlers"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/sirupsen/logrus"
)

// Service defines the API service interface
type Service interface {
	Start(ctx context.Context) error
	Stop() error
	App() *fiber.App
}

type service struct {
	app      *fiber.App
	server   *http.Server
	config   *Config
	handlers *handlers.Server
	log      logrus.FieldLogger
}

// NewService creates a new API service. cacheReader and queue may be nil.
func NewService(cfg *Config, cacheReader handlers.CacheReader, queue handlers.Queue, log logrus.FieldLogger) Service {
	log = log.WithField("service", "api")

	return &service{
		config:   cfg,
		handlers: handlers.NewServer(cacheReader, queue, log),
		log:      log,
	}
}

// App builds the Fiber app with middleware and every route registered
func (s *service) App() *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		AppName:      "gpxenrich API",
	})

	setupMiddleware(app)

	s.handlers.Register(app)

	return app
}

// Start initializes and starts the API server
func (s *service) Start(_ context.Context) error {
	if !s.config.Enabled {
		s.log.Info("API service is disabled")
		return nil
	}

	s.app = s.App()

	// Serve through net/http so shutdown matches the metrics servers
	fiberHandler := adaptor.FiberApp(s.app)
	s.server = &http.Server{
		Addr:              s.config.Addr,
		Handler:           fiberHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		s.log.WithField("addr", s.config.Addr).Info("Starting API server")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("Server failed to start")
		}
	}()

	return nil
}

// Stop gracefully shuts down the API server
func (s *service) Stop() error {
	if s.server == nil {
		return nil
	}

	s.log.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}
