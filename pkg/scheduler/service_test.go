package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/gpxenrich/internal/testutil"
	r "github.com/ethpandaops/gpxenrich/pkg/redis"
	"github.com/ethpandaops/gpxenrich/pkg/tasks"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEnqueuer struct {
	mu       sync.Mutex
	payloads []tasks.TrackPayload
	queued   map[string]bool
	err      error
}

func (e *recordingEnqueuer) EnqueueTrack(_ context.Context, payload tasks.TrackPayload, _ ...asynq.Option) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.err != nil {
		return false, e.err
	}

	e.payloads = append(e.payloads, payload)

	if e.queued == nil {
		e.queued = make(map[string]bool)
	}

	if e.queued[payload.UniqueID()] {
		return false, nil
	}

	e.queued[payload.UniqueID()] = true

	return true, nil
}

// release marks the task for input as finished.
func (e *recordingEnqueuer) release(input string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.queued, tasks.TrackPayload{Input: input}.UniqueID())
}

func (e *recordingEnqueuer) inputs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, len(e.payloads))
	for i, p := range e.payloads {
		out[i] = p.Input
	}

	return out
}

func newTestScheduler(t *testing.T, inbox string, enqueuer Enqueuer) Service {
	t.Helper()

	mr := testutil.NewMiniredis(t)

	cfg := &Config{}
	require.NoError(t, defaults.Set(cfg))

	cfg.Enabled = true
	cfg.Inbox = inbox

	svc, err := NewService(testutil.NewLogger(t), cfg, &r.Config{Address: mr.Addr(), Prefix: "test"}, enqueuer)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = svc.Stop()
	})

	return svc
}

func writeInboxFile(t *testing.T, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("lat,lon\n"), 0o600))

	return path
}

func TestService_Scan(t *testing.T) {
	inbox := t.TempDir()
	enqueuer := &recordingEnqueuer{}
	svc := newTestScheduler(t, inbox, enqueuer)
	ctx := context.Background()

	ride := writeInboxFile(t, inbox, "ride.gpx")
	walk := writeInboxFile(t, inbox, "walk.csv")
	writeInboxFile(t, inbox, "walk_places.csv")
	writeInboxFile(t, inbox, "notes.txt")
	require.NoError(t, os.Mkdir(filepath.Join(inbox, "archive.gpx"), 0o700))

	result, err := svc.Scan(ctx)
	require.NoError(t, err)

	assert.Equal(t, ScanResult{Matched: 2, Enqueued: 2}, result)
	assert.ElementsMatch(t, []string{ride, walk}, enqueuer.inputs())

	for _, p := range enqueuer.payloads {
		assert.Equal(t, tasks.TriggerScheduler, p.Trigger)
	}

	t.Run("unchanged files are skipped", func(t *testing.T) {
		result, err := svc.Scan(ctx)
		require.NoError(t, err)

		assert.Equal(t, ScanResult{Matched: 2, Unchanged: 2}, result)
		assert.Len(t, enqueuer.inputs(), 2)
	})

	t.Run("modified file is offered again", func(t *testing.T) {
		later := time.Now().Add(time.Hour)
		require.NoError(t, os.Chtimes(ride, later, later))

		result, err := svc.Scan(ctx)
		require.NoError(t, err)

		// the earlier task is still queued, so the enqueue is a duplicate
		assert.Equal(t, ScanResult{Matched: 2, Duplicates: 1, Unchanged: 1}, result)
		assert.Equal(t, ride, enqueuer.inputs()[2])

		// a duplicate is not tracked, so the change is offered until it is queued
		result, err = svc.Scan(ctx)
		require.NoError(t, err)
		assert.Equal(t, ScanResult{Matched: 2, Duplicates: 1, Unchanged: 1}, result)

		enqueuer.release(ride)

		result, err = svc.Scan(ctx)
		require.NoError(t, err)
		assert.Equal(t, ScanResult{Matched: 2, Enqueued: 1, Unchanged: 1}, result)

		result, err = svc.Scan(ctx)
		require.NoError(t, err)
		assert.Equal(t, ScanResult{Matched: 2, Unchanged: 2}, result)
		assert.Len(t, enqueuer.inputs(), 5)
	})

	t.Run("removed files are forgotten", func(t *testing.T) {
		require.NoError(t, os.Remove(walk))

		result, err := svc.Scan(ctx)
		require.NoError(t, err)
		assert.Equal(t, ScanResult{Matched: 1, Unchanged: 1, Forgotten: 1}, result)

		// a file reappearing with its old name is new again
		writeInboxFile(t, inbox, "walk.csv")

		result, err = svc.Scan(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Duplicates+result.Enqueued)
	})
}

func TestService_ScanErrors(t *testing.T) {
	t.Run("missing inbox", func(t *testing.T) {
		svc := newTestScheduler(t, filepath.Join(t.TempDir(), "missing"), &recordingEnqueuer{})

		_, err := svc.Scan(context.Background())
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("enqueue failure", func(t *testing.T) {
		inbox := t.TempDir()
		writeInboxFile(t, inbox, "ride.gpx")

		queueDown := errors.New("queue down")
		svc := newTestScheduler(t, inbox, &recordingEnqueuer{err: queueDown})

		_, err := svc.Scan(context.Background())
		require.ErrorIs(t, err, queueDown)

		// the file is not tracked, so the next scan retries it
		enqueuer := &recordingEnqueuer{}
		svc.(*service).enqueuer = enqueuer

		result, err := svc.Scan(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, result.Enqueued)
	})
}

func TestService_StartStop(t *testing.T) {
	inbox := t.TempDir()
	writeInboxFile(t, inbox, "ride.gpx")

	mr := testutil.NewMiniredis(t)

	cfg := &Config{}
	require.NoError(t, defaults.Set(cfg))

	cfg.Enabled = true
	cfg.Inbox = inbox
	cfg.Schedule = "@every 1s"

	enqueuer := &recordingEnqueuer{}

	svc, err := NewService(testutil.NewLogger(t), cfg, &r.Config{Address: mr.Addr(), Prefix: "test"}, enqueuer)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, svc.Start(ctx))

	assert.Eventually(t, func() bool {
		return len(enqueuer.inputs()) == 1
	}, 5*time.Second, 100*time.Millisecond)

	assert.True(t, mr.Exists("test:scheduler:leader"))
	assert.True(t, mr.Exists("test:scheduler:files"))

	require.NoError(t, svc.Stop())
	assert.False(t, mr.Exists("test:scheduler:leader"))
}

func TestNewService_InvalidConfig(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, defaults.Set(cfg))

	cfg.Enabled = true
	cfg.Schedule = "every now and then"

	_, err := NewService(testutil.NewLogger(t), cfg, &r.Config{Address: "localhost:6379"}, &recordingEnqueuer{})
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
		invalid bool
	}{
		{
			name:   "disabled skips validation",
			mutate: func(c *Config) { c.Enabled = false; c.Inbox = "" },
		},
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "missing inbox",
			mutate:  func(c *Config) { c.Inbox = "" },
			wantErr: ErrInboxRequired,
		},
		{
			name:    "no patterns",
			mutate:  func(c *Config) { c.Patterns = nil },
			wantErr: ErrPatternsRequired,
		},
		{
			name:    "bad pattern",
			mutate:  func(c *Config) { c.Exclude = []string{"[unclosed"} },
			invalid: true,
		},
		{
			name:    "bad schedule",
			mutate:  func(c *Config) { c.Schedule = "61 * * * *" },
			invalid: true,
		},
		{
			name:   "cron expression",
			mutate: func(c *Config) { c.Schedule = "*/5 * * * *" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			require.NoError(t, defaults.Set(cfg))

			cfg.Enabled = true
			tt.mutate(cfg)

			err := cfg.Validate()

			switch {
			case tt.wantErr != nil:
				require.ErrorIs(t, err, tt.wantErr)
			case tt.invalid:
				require.Error(t, err)
			default:
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_Matches(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, defaults.Set(cfg))

	tests := map[string]bool{
		"ride.gpx":         true,
		"ride.csv":         true,
		"ride_places.csv":  false,
		"ride_pois.csv":    false,
		"ride_enriched.gz": false,
		"ride.GPX":         false,
	}

	for name, want := range tests {
		assert.Equal(t, want, cfg.Matches(name), name)
	}
}
