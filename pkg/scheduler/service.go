package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/ethpandaops/gpxenrich/pkg/observability"
	r "github.com/ethpandaops/gpxenrich/pkg/redis"
	"github.com/ethpandaops/gpxenrich/pkg/tasks"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Enqueuer queues a trajectory file for enrichment
type Enqueuer interface {
	EnqueueTrack(ctx context.Context, payload tasks.TrackPayload, opts ...asynq.Option) (bool, error)
}

// ScanResult summarises one inbox scan
type ScanResult struct {
	Matched    int `json:"matched"`
	Enqueued   int `json:"enqueued"`
	Duplicates int `json:"duplicates"`
	Unchanged  int `json:"unchanged"`
	Forgotten  int `json:"forgotten"`
}

// Service defines the public interface for the scheduler
type Service interface {
	// Start begins leader election and the scan schedule
	Start(ctx context.Context) error

	// Stop waits for a running scan and releases leadership
	Stop() error

	// Scan enqueues new or changed inbox files regardless of leadership
	Scan(ctx context.Context) (ScanResult, error)
}

type service struct {
	log      logrus.FieldLogger
	cfg      *Config
	elector  LeaderElector
	tracker  fileTracker
	enqueuer Enqueuer

	cron *cron.Cron
}

// NewService creates a scheduler. Leadership and the file tracker live in
// Redis under the configured prefix.
func NewService(log logrus.FieldLogger, cfg *Config, redisCfg *r.Config, enqueuer Enqueuer) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler configuration: %w", err)
	}

	opt, err := redisCfg.Options()
	if err != nil {
		return nil, err
	}

	log = log.WithField("service", "scheduler")

	return &service{
		log:      log,
		cfg:      cfg,
		elector:  NewLeaderElector(log, opt, redisCfg.PrefixKey(leaderKeySuffix)),
		tracker:  newFileTracker(log, redis.NewClient(opt), redisCfg.PrefixKey(filesKeySuffix)),
		enqueuer: enqueuer,
	}, nil
}

func (s *service) Start(ctx context.Context) error {
	if err := s.elector.Start(ctx); err != nil {
		return fmt.Errorf("failed to start leader election: %w", err)
	}

	s.cron = cron.New(cron.WithParser(scheduleParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if !s.elector.IsLeader() {
			s.log.Debug("Not the leader, skipping inbox scan")
			return
		}

		if _, err := s.Scan(ctx); err != nil {
			s.log.WithError(err).Error("Inbox scan failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule inbox scan: %w", err)
	}

	s.cron.Start()

	s.log.WithFields(logrus.Fields{
		"inbox":    s.cfg.Inbox,
		"schedule": s.cfg.Schedule,
		"patterns": s.cfg.Patterns,
	}).Info("Scheduler started")

	return nil
}

func (s *service) Stop() error {
	if s.cron != nil {
		stopped := s.cron.Stop()

		select {
		case <-stopped.Done():
		case <-time.After(s.cfg.ShutdownTimeout):
			s.log.Warn("Timed out waiting for the running scan")
		}
	}

	if err := s.elector.Stop(); err != nil {
		s.log.WithError(err).Warn("Failed to stop leader election")
	}

	if err := s.tracker.Close(); err != nil {
		s.log.WithError(err).Warn("Failed to close file tracker")
	}

	s.log.Info("Scheduler stopped")

	return nil
}

func (s *service) Scan(ctx context.Context) (ScanResult, error) {
	var result ScanResult

	inbox, err := filepath.Abs(s.cfg.Inbox)
	if err != nil {
		observability.RecordInboxScan("error")
		return result, fmt.Errorf("failed to resolve inbox: %w", err)
	}

	entries, err := os.ReadDir(inbox)
	if err != nil {
		observability.RecordInboxScan("error")
		return result, fmt.Errorf("failed to read inbox: %w", err)
	}

	present := make([]string, 0, len(entries))

	for _, entry := range entries {
		if !entry.Type().IsRegular() || !s.cfg.Matches(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// removed between listing and stat
			continue
		}

		path := filepath.Join(inbox, entry.Name())
		present = append(present, path)
		result.Matched++

		log := s.log.WithField("path", path)

		seen, err := s.tracker.Seen(ctx, path, info.ModTime())
		if err != nil {
			log.WithError(err).Warn("Failed to check tracked file")
			continue
		}

		if seen {
			result.Unchanged++
			continue
		}

		enqueued, err := s.enqueuer.EnqueueTrack(ctx, tasks.TrackPayload{
			Input:   path,
			Trigger: tasks.TriggerScheduler,
		})
		if err != nil {
			observability.RecordInboxScan("error")
			return result, err
		}

		if !enqueued {
			// left untracked so the file is offered again once the task is gone
			result.Duplicates++
			log.Debug("Trajectory already queued")

			continue
		}

		result.Enqueued++
		log.Info("Enqueued trajectory")

		if err := s.tracker.Mark(ctx, path, info.ModTime()); err != nil {
			log.WithError(err).Warn("Failed to track file")
		}
	}

	tracked, err := s.tracker.Paths(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to list tracked files")
	}

	var gone []string

	for _, path := range tracked {
		if filepath.Dir(path) == inbox && !slices.Contains(present, path) {
			gone = append(gone, path)
		}
	}

	if err := s.tracker.Forget(ctx, gone...); err != nil {
		s.log.WithError(err).Warn("Failed to forget removed files")
	} else {
		result.Forgotten = len(gone)
	}

	observability.RecordInboxScan("success")

	s.log.WithFields(logrus.Fields{
		"matched":   result.Matched,
		"enqueued":  result.Enqueued,
		"unchanged": result.Unchanged,
	}).Debug("Inbox scan complete")

	return result, nil
}

var _ Service = (*service)(nil)
