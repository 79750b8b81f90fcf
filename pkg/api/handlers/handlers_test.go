package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethpandaops/gpxenrich/internal/testutil"
	"github.com/ethpandaops/gpxenrich/pkg/cache"
	"github.com/ethpandaops/gpxenrich/pkg/tasks"
	"github.com/ethpandaops/gpxenrich/pkg/trajectory"
	"github.com/gofiber/fiber/v3"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockCache struct {
	mock.Mock
}

func (m *mockCache) Lookup(ctx context.Context, req cache.LookupRequest) (*cache.Entry, bool) {
	args := m.Called(ctx, req)

	entry, _ := args.Get(0).(*cache.Entry)

	return entry, args.Bool(1)
}

func (m *mockCache) Statistics(ctx context.Context) cache.Stats {
	args := m.Called(ctx)

	return args.Get(0).(cache.Stats)
}

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) EnqueueTrack(ctx context.Context, payload tasks.TrackPayload, _ ...asynq.Option) (bool, error) {
	args := m.Called(ctx, payload)

	return args.Bool(0), args.Error(1)
}

func (m *mockQueue) GetQueueStats() (*asynq.QueueInfo, error) {
	args := m.Called()

	info, _ := args.Get(0).(*asynq.QueueInfo)

	return info, args.Error(1)
}

func newTestApp(t *testing.T, cacheReader CacheReader, queue Queue) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "Internal Server Error"
			var fiberErr *fiber.Error
			if ok := errors.As(err, &fiberErr); ok {
				code = fiberErr.Code
				message = fiberErr.Message
			}
			return c.Status(code).JSON(fiber.Map{"error": message, "code": code})
		},
	})

	NewServer(cacheReader, queue, testutil.NewLogger(t)).Register(app)

	return app
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, []byte) {
	t.Helper()

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, &mockCache{}, nil)

	status, body := do(t, app, httptest.NewRequest("GET", "/health", http.NoBody))
	assert.Equal(t, 200, status)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "ok", got["status"])
	assert.Equal(t, true, got["cache"])
	assert.Equal(t, false, got["queue"])
}

func TestCacheStats(t *testing.T) {
	mc := &mockCache{}
	mc.On("Statistics", mock.Anything).Return(cache.Stats{
		EntryCount: 3,
		Entries:    map[cache.Kind]int64{cache.KindGeocoding: 2, cache.KindSurface: 1},
		Backend:    cache.BackendSQLite,
	})

	app := newTestApp(t, mc, nil)

	status, body := do(t, app, httptest.NewRequest("GET", "/api/v1/cache/stats", http.NoBody))
	require.Equal(t, 200, status)

	var got cache.Stats
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, int64(3), got.EntryCount)
	assert.Equal(t, int64(2), got.Entries[cache.KindGeocoding])
	assert.Equal(t, cache.BackendSQLite, got.Backend)

	mc.AssertExpectations(t)
}

func TestCacheLookup(t *testing.T) {
	entry := &cache.Entry{
		ID:         7,
		Kind:       cache.KindGeocoding,
		Lat:        48.1,
		Lon:        11.5,
		Provider:   "nominatim",
		Attributes: trajectory.Attributes{"street": "Main St"},
	}

	tests := []struct {
		name       string
		query      string
		setup      func(*mockCache)
		wantStatus int
		wantHit    bool
	}{
		{
			name:  "hit",
			query: "?kind=geocoding&lat=48.1&lon=11.5&provider=nominatim&tolerance=0.1",
			setup: func(m *mockCache) {
				m.On("Lookup", mock.Anything, cache.LookupRequest{
					Kind: cache.KindGeocoding, Lat: 48.1, Lon: 11.5, Provider: "nominatim", ToleranceKm: 0.1,
				}).Return(entry, true)
			},
			wantStatus: 200,
			wantHit:    true,
		},
		{
			name:  "miss uses default tolerance",
			query: "?kind=surface&lat=0&lon=0&radius=20&provider=overpass",
			setup: func(m *mockCache) {
				m.On("Lookup", mock.Anything, cache.LookupRequest{
					Kind: cache.KindSurface, RadiusM: 20, Provider: "overpass", ToleranceKm: DefaultToleranceKm,
				}).Return(nil, false)
			},
			wantStatus: 200,
		},
		{
			name:       "missing coordinates",
			query:      "?kind=geocoding&provider=nominatim",
			wantStatus: 400,
		},
		{
			name:       "unknown kind",
			query:      "?kind=weather&lat=1&lon=1&provider=nominatim",
			wantStatus: 400,
		},
		{
			name:       "latitude out of range",
			query:      "?kind=geocoding&lat=91&lon=1&provider=nominatim",
			wantStatus: 400,
		},
		{
			name:       "missing provider",
			query:      "?kind=geocoding&lat=1&lon=1",
			wantStatus: 400,
		},
		{
			name:       "negative tolerance",
			query:      "?kind=geocoding&lat=1&lon=1&provider=nominatim&tolerance=-1",
			wantStatus: 400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := &mockCache{}
			if tt.setup != nil {
				tt.setup(mc)
			}

			app := newTestApp(t, mc, nil)

			status, body := do(t, app, httptest.NewRequest("GET", "/api/v1/cache/lookup"+tt.query, http.NoBody))
			assert.Equal(t, tt.wantStatus, status, string(body))

			if tt.wantStatus != 200 {
				var errResp map[string]any
				require.NoError(t, json.Unmarshal(body, &errResp))
				assert.Contains(t, errResp, "error")
				mc.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)

				return
			}

			var got LookupResponse
			require.NoError(t, json.Unmarshal(body, &got))
			assert.Equal(t, tt.wantHit, got.Hit)

			if tt.wantHit {
				require.NotNil(t, got.Entry)
				assert.Equal(t, int64(7), got.Entry.ID)
				assert.Equal(t, "Main St", got.Entry.Attributes["street"])
			} else {
				assert.Nil(t, got.Entry)
			}

			mc.AssertExpectations(t)
		})
	}
}

func TestEnqueueTrack(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(*mockQueue)
		wantStatus int
		wantQueued bool
	}{
		{
			name: "new task",
			body: `{"input":"/data/inbox/ride.gpx"}`,
			setup: func(m *mockQueue) {
				m.On("EnqueueTrack", mock.Anything, mock.MatchedBy(func(p tasks.TrackPayload) bool {
					return p.Input == "/data/inbox/ride.gpx" && p.Trigger == tasks.TriggerManual
				})).Return(true, nil)
			},
			wantStatus: 202,
			wantQueued: true,
		},
		{
			name: "already queued",
			body: `{"input":"/data/inbox/ride.gpx"}`,
			setup: func(m *mockQueue) {
				m.On("EnqueueTrack", mock.Anything, mock.Anything).Return(false, nil)
			},
			wantStatus: 200,
		},
		{
			name:       "missing input",
			body:       `{}`,
			wantStatus: 400,
		},
		{
			name:       "malformed body",
			body:       `{"input":`,
			wantStatus: 400,
		},
		{
			name: "queue failure",
			body: `{"input":"/data/inbox/ride.gpx"}`,
			setup: func(m *mockQueue) {
				m.On("EnqueueTrack", mock.Anything, mock.Anything).Return(false, errors.New("redis down"))
			},
			wantStatus: 502,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mq := &mockQueue{}
			if tt.setup != nil {
				tt.setup(mq)
			}

			app := newTestApp(t, nil, mq)

			req := httptest.NewRequest("POST", "/api/v1/tracks", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			status, body := do(t, app, req)
			assert.Equal(t, tt.wantStatus, status, string(body))

			if tt.wantStatus >= 300 {
				return
			}

			var got EnqueueResponse
			require.NoError(t, json.Unmarshal(body, &got))
			assert.Equal(t, "track:/data/inbox/ride.gpx", got.TaskID)
			assert.Equal(t, tt.wantQueued, got.Enqueued)

			mq.AssertExpectations(t)
		})
	}
}

func TestQueueStats(t *testing.T) {
	mq := &mockQueue{}
	mq.On("GetQueueStats").Return(&asynq.QueueInfo{Queue: "enrich", Size: 4, Pending: 3, Active: 1}, nil)

	app := newTestApp(t, nil, mq)

	status, body := do(t, app, httptest.NewRequest("GET", "/api/v1/queue", http.NoBody))
	require.Equal(t, 200, status)

	var got QueueResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, QueueResponse{Queue: "enrich", Size: 4, Pending: 3, Active: 1}, got)
}

func TestUnavailableDependencies(t *testing.T) {
	app := newTestApp(t, nil, nil)

	for _, req := range []*http.Request{
		httptest.NewRequest("GET", "/api/v1/cache/stats", http.NoBody),
		httptest.NewRequest("GET", "/api/v1/cache/lookup?lat=1&lon=1", http.NoBody),
		httptest.NewRequest("POST", "/api/v1/tracks", strings.NewReader(`{"input":"a.gpx"}`)),
		httptest.NewRequest("GET", "/api/v1/queue", http.NoBody),
	} {
		status, _ := do(t, app, req)
		assert.Equal(t, 503, status, req.URL.Path)
	}
}
