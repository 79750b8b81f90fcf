package engine

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/gpxenrich/internal/testutil"
	"github.com/ethpandaops/gpxenrich/pkg/cache"
	"github.com/ethpandaops/gpxenrich/pkg/enrich"
	"github.com/ethpandaops/gpxenrich/pkg/geo"
	"github.com/ethpandaops/gpxenrich/pkg/nearest"
	"github.com/ethpandaops/gpxenrich/pkg/query"
	"github.com/ethpandaops/gpxenrich/pkg/trajectory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var routeStart = geo.Point{Lat: 47.3769, Lon: 8.5417}

func testConfig(t *testing.T) *Config {
	t.Helper()

	cfg := &Config{}
	require.NoError(t, defaults.Set(cfg))

	dir := t.TempDir()
	cfg.Cache.Path = filepath.Join(dir, "cache.db")
	cfg.Output.Dir = filepath.Join(dir, "out")
	cfg.Stages.Elevation.Enabled = false
	cfg.Stages.Surface.Enabled = false
	cfg.Stages.Places.Enabled = false
	cfg.Stages.POIs.Enabled = false

	return cfg
}

func newTestRunner(t *testing.T, cfg *Config, opts ...Option) *Runner {
	t.Helper()

	opts = append([]Option{
		WithPacer(testutil.NoopPacer{}),
		WithQueryOptions(query.WithSleeper(testutil.NoSleep)),
	}, opts...)

	r, err := NewRunner(cfg, testutil.NewLogger(t), opts...)
	require.NoError(t, err)

	return r
}

func mainThenSide() *testutil.ScriptedProvider {
	return &testutil.ScriptedProvider{
		ProviderName: "nominatim",
		Respond: func(call int, _ geo.Point) (trajectory.Attributes, error) {
			street := "Main St"
			if call > 0 {
				street = "Side St"
			}

			return trajectory.Attributes{
				trajectory.AttrStreet:     street,
				trajectory.AttrCity:       "Zurich",
				trajectory.AttrPostalCode: "8001",
			}, nil
		},
	}
}

func writeTrack(t *testing.T, dir, name string, points []trajectory.Point) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, trajectory.WriteRecordsFile(path, trajectory.NewRecords(points), trajectory.Layout{}))

	return path
}

func readRows(t *testing.T, path string) (header []string, rows []map[string]string) {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)

	defer f.Close()

	all, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, all)

	header = all[0]
	for _, row := range all[1:] {
		m := make(map[string]string, len(header))
		for i, col := range header {
			m[col] = row[i]
		}

		rows = append(rows, m)
	}

	return header, rows
}

func TestProcessFile_FivePointScenario(t *testing.T) {
	cfg := testConfig(t)
	geocoder := mainThenSide()
	r := newTestRunner(t, cfg, WithGeocoder(geocoder))

	input := writeTrack(t, t.TempDir(), "ride.csv", testutil.Line(routeStart, 5, 0.2))

	report, err := r.ProcessFile(context.Background(), input)
	require.NoError(t, err)

	assert.Len(t, geocoder.Calls(), 2)
	assert.Equal(t, 5, report.Points)
	assert.False(t, report.Malformed)
	assert.Equal(t, []string{enrich.StageGeocoding}, report.Stages)
	require.Len(t, report.Enrichment, 1)
	assert.Equal(t, 2, report.Enrichment[0].Blocks)
	assert.Equal(t, 2, report.Enrichment[0].Queried)

	assert.Equal(t, filepath.Join(cfg.Output.Dir, "ride_enriched.csv"), report.Outputs.Trajectory)

	header, rows := readRows(t, report.Outputs.Trajectory)
	assert.Equal(t, trajectory.Layout{Geocoding: true}.Header(), header)
	require.Len(t, rows, 5)

	for i, row := range rows {
		want := "Main St"
		if i >= 3 {
			want = "Side St"
		}

		assert.Equal(t, want, row[trajectory.AttrStreet], "row %d", i)
		assert.Equal(t, "Zurich", row[trajectory.AttrCity], "row %d", i)
	}

	require.NotNil(t, report.Cache)
	assert.Equal(t, int64(2), report.Cache.EntryCount)
	assert.Equal(t, int64(2), report.Cache.Misses)
}

func TestProcessFile_SecondRunIsServedFromCache(t *testing.T) {
	cfg := testConfig(t)
	geocoder := mainThenSide()
	r := newTestRunner(t, cfg, WithGeocoder(geocoder))

	input := writeTrack(t, t.TempDir(), "ride.csv", testutil.Line(routeStart, 5, 0.2))

	_, err := r.ProcessFile(context.Background(), input)
	require.NoError(t, err)

	report, err := r.ProcessFile(context.Background(), input)
	require.NoError(t, err)

	assert.Len(t, geocoder.Calls(), 2)
	require.Len(t, report.Enrichment, 1)
	assert.Equal(t, 2, report.Enrichment[0].CacheHits)
	assert.Equal(t, 0, report.Enrichment[0].Queried)

	// counters start over with every open
	require.NotNil(t, report.Cache)
	assert.Equal(t, int64(2), report.Cache.Hits)
	assert.Equal(t, int64(0), report.Cache.Misses)
}

func TestProcessFile_UnreadableInputWritesEmptyOutput(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "missing file"},
		{name: "missing column", content: "latitude,longitude\n47.1,8.1\n"},
		{name: "unterminated quote", content: "latitude,longitude,sequence_index\n\"47.1,8.1,0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Stages.Surface.Enabled = true

			geocoder := mainThenSide()
			r := newTestRunner(t, cfg, WithGeocoder(geocoder))

			input := filepath.Join(t.TempDir(), "broken.csv")
			if tt.content != "" {
				require.NoError(t, os.WriteFile(input, []byte(tt.content), 0o600))
			}

			report, err := r.ProcessFile(context.Background(), input)
			require.NoError(t, err)

			assert.True(t, report.Malformed)
			assert.Equal(t, 0, report.Points)
			assert.Empty(t, geocoder.Calls())

			header, rows := readRows(t, report.Outputs.Trajectory)
			assert.Equal(t, trajectory.Layout{Geocoding: true, Surface: true}.Header(), header)
			assert.Empty(t, rows)
		})
	}
}

func TestProcessFile_ProviderOutageFallsBackEverywhere(t *testing.T) {
	cfg := testConfig(t)
	geocoder := &testutil.ScriptedProvider{
		Respond: func(int, geo.Point) (trajectory.Attributes, error) {
			return nil, errors.New("connection refused")
		},
	}
	r := newTestRunner(t, cfg, WithGeocoder(geocoder))

	input := writeTrack(t, t.TempDir(), "ride.csv", testutil.Line(routeStart, 5, 0.2))

	report, err := r.ProcessFile(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, report.Enrichment, 1)
	assert.Equal(t, 2, report.Enrichment[0].Fallbacks)
	assert.Len(t, geocoder.Calls(), 2*cfg.Query.MaxRetries)

	_, rows := readRows(t, report.Outputs.Trajectory)
	require.Len(t, rows, 5)

	for _, row := range rows {
		assert.Equal(t, enrich.UnknownValue, row[trajectory.AttrStreet])
	}
}

func TestProcessFile_UnavailableCacheStillEnriches(t *testing.T) {
	cfg := testConfig(t)
	// the redis backend cannot open without a client
	cfg.Cache.Backend = cache.BackendRedis
	cfg.Redis.Address = "127.0.0.1:1"

	geocoder := mainThenSide()
	r := newTestRunner(t, cfg, WithGeocoder(geocoder))

	input := writeTrack(t, t.TempDir(), "ride.csv", testutil.Line(routeStart, 5, 0.2))

	report, err := r.ProcessFile(context.Background(), input)
	require.NoError(t, err)

	assert.Nil(t, report.Cache)
	assert.Len(t, geocoder.Calls(), 2)

	_, rows := readRows(t, report.Outputs.Trajectory)
	require.Len(t, rows, 5)
	assert.Equal(t, "Main St", rows[0][trajectory.AttrStreet])
	assert.Equal(t, "Side St", rows[4][trajectory.AttrStreet])
}

func TestProcessFile_PlacesAndPOIs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stages.Geocoding.Enabled = false
	cfg.Stages.Places.Enabled = true
	cfg.Stages.POIs.Enabled = true

	r := newTestRunner(t, cfg, WithClock(func() time.Time {
		return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	}))

	points := testutil.Line(routeStart, 5, 1)
	dir := t.TempDir()
	input := writeTrack(t, dir, "ride.csv", points)

	near := geo.Destination(points[2].Coord(), 0, 0.1)
	far := geo.Destination(points[2].Coord(), 0, 3)

	places := "latitude,longitude,name,type\n" +
		csvPoint(near) + ",Village,village\n" +
		csvPoint(far) + ",Town,town\n"
	pois := "latitude,longitude,name,type\n" +
		csvPoint(near) + ",Cafe,cafe\n" +
		csvPoint(far) + ",Hotel,hotel\n"

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ride_places.csv"), []byte(places), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ride_pois.csv"), []byte(pois), 0o600))

	report, err := r.ProcessFile(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, []string{nearest.StagePlaces, nearest.StagePOIs}, report.Stages)

	require.NotNil(t, report.Places)
	assert.Equal(t, 2, report.Places.Read)
	assert.Equal(t, 2, report.Places.Kept)

	require.NotNil(t, report.POIs)
	assert.Equal(t, 2, report.POIs.Read)
	assert.Equal(t, 1, report.POIs.Kept)

	_, rows := readRows(t, report.Outputs.POIs)
	require.Len(t, rows, 1)
	assert.Equal(t, "Cafe", rows[0][trajectory.ColName])
	assert.Equal(t, "2", rows[0][trajectory.ColNearestIndex])

	_, rows = readRows(t, report.Outputs.Places)
	require.Len(t, rows, 2)
}

func TestProcessFile_MissingFeatureFilesWriteEmptyOutputs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stages.Geocoding.Enabled = false
	cfg.Stages.Places.Enabled = true
	cfg.Stages.POIs.Enabled = true

	r := newTestRunner(t, cfg)

	input := writeTrack(t, t.TempDir(), "ride.csv", testutil.Line(routeStart, 3, 1))

	report, err := r.ProcessFile(context.Background(), input)
	require.NoError(t, err)

	for _, path := range []string{report.Outputs.Places, report.Outputs.POIs} {
		header, rows := readRows(t, path)
		assert.Equal(t, trajectory.JoinedFeatureColumns, header)
		assert.Empty(t, rows)
	}
}

type stubElevator struct {
	calls int
}

func (s *stubElevator) Name() string { return "stub" }

func (s *stubElevator) BatchSize() int { return 2 }

func (s *stubElevator) Lookup(_ context.Context, points []geo.Point) ([]*float64, error) {
	s.calls++

	out := make([]*float64, len(points))
	for i := range points {
		out[i] = trajectory.Float(500)
	}

	return out, nil
}

func TestProcessFile_ElevationRunsBeforeJoins(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stages.Geocoding.Enabled = false
	cfg.Stages.Elevation.Enabled = true
	cfg.Stages.Places.Enabled = true

	elevator := &stubElevator{}
	r := newTestRunner(t, cfg, WithElevator(elevator))

	points := testutil.Line(routeStart, 3, 1)
	dir := t.TempDir()
	input := writeTrack(t, dir, "ride.csv", points)

	places := "latitude,longitude,name,type\n" + csvPoint(points[1].Coord()) + ",Village,village\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ride_places.csv"), []byte(places), 0o600))

	report, err := r.ProcessFile(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, []string{enrich.StageElevation, nearest.StagePlaces}, report.Stages)
	assert.Equal(t, 2, elevator.calls)
	require.NotNil(t, report.Elevation)
	assert.Equal(t, 3, report.Elevation.Filled)

	_, rows := readRows(t, report.Outputs.Places)
	require.Len(t, rows, 1)
	assert.Equal(t, "500", rows[0][trajectory.ColNearestElevation])
}

func csvPoint(p geo.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lon, 'f', -1, 64)
}
