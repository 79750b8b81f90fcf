package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/ethpandaops/gpxenrich/pkg/cache"
	"github.com/ethpandaops/gpxenrich/pkg/enrich"
	"github.com/ethpandaops/gpxenrich/pkg/nearest"
	"github.com/ethpandaops/gpxenrich/pkg/observability"
	"github.com/ethpandaops/gpxenrich/pkg/provider"
	"github.com/ethpandaops/gpxenrich/pkg/query"
	"github.com/ethpandaops/gpxenrich/pkg/trajectory"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// FeatureReport summarises a place or POI join.
type FeatureReport struct {
	Input string `json:"input"`
	Read  int    `json:"read"`
	Kept  int    `json:"kept"`
}

// Outputs lists the files written by a run.
type Outputs struct {
	Trajectory string `json:"trajectory"`
	Places     string `json:"places,omitempty"`
	POIs       string `json:"pois,omitempty"`
}

// Report summarises one processed trajectory.
type Report struct {
	Input      string                  `json:"input"`
	Points     int                     `json:"points"`
	Malformed  bool                    `json:"malformed"`
	Stages     []string                `json:"stages"`
	Elevation  *enrich.ElevationReport `json:"elevation,omitempty"`
	Enrichment []enrich.Report         `json:"enrichment,omitempty"`
	Places     *FeatureReport          `json:"places,omitempty"`
	POIs       *FeatureReport          `json:"pois,omitempty"`
	Outputs    Outputs                 `json:"outputs"`
	Cache      *cache.Stats            `json:"cache,omitempty"`
	Duration   time.Duration           `json:"duration"`
}

// Runner enriches trajectory files one at a time.
type Runner struct {
	cfg Config
	log logrus.FieldLogger

	rdb       *redis.Client
	geocoder  query.Provider
	surface   query.Provider
	radiusM   float64
	elevator  enrich.Elevator
	pacer     query.Pacer
	queryOpts []query.Option
	now       func() time.Time

	order []string

	geocodeClient *query.Client
	surfaceClient *query.Client
	genericClient *query.Client
	joiner        *nearest.Joiner
}

// Option customises a Runner.
type Option func(*Runner)

// WithRedis sets the client used by the redis cache backend.
func WithRedis(rdb *redis.Client) Option {
	return func(r *Runner) {
		r.rdb = rdb
	}
}

// WithGeocoder replaces the reverse geocoder.
func WithGeocoder(p query.Provider) Option {
	return func(r *Runner) {
		r.geocoder = p
	}
}

// WithSurfaceProvider replaces the way surface provider and its search radius.
func WithSurfaceProvider(p query.Provider, radiusM float64) Option {
	return func(r *Runner) {
		r.surface = p
		r.radiusM = radiusM
	}
}

// WithElevator replaces the elevation provider.
func WithElevator(e enrich.Elevator) Option {
	return func(r *Runner) {
		r.elevator = e
	}
}

// WithPacer replaces the shared pacer.
func WithPacer(p query.Pacer) Option {
	return func(r *Runner) {
		r.pacer = p
	}
}

// WithQueryOptions passes options to every query client.
func WithQueryOptions(opts ...query.Option) Option {
	return func(r *Runner) {
		r.queryOpts = append(r.queryOpts, opts...)
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner validates cfg and prepares the providers and query clients.
// Every client shares one pacer, so the minimum interval holds across
// providers.
func NewRunner(cfg *Config, log logrus.FieldLogger, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{
		cfg: *cfg,
		log: log.WithField("component", "engine"),
		now: time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	ua := cfg.Providers.UserAgent

	if r.geocoder == nil {
		r.geocoder = provider.NewNominatim(cfg.Providers.Nominatim, ua)
	}

	if r.surface == nil {
		overpass := provider.NewOverpass(cfg.Providers.Overpass, ua)
		r.surface = overpass
		r.radiusM = overpass.RadiusM()
	}

	if r.elevator == nil {
		r.elevator = provider.NewOpenElevation(cfg.Providers.Elevation, ua)
	}

	if r.pacer == nil {
		r.pacer = query.NewPacer(cfg.Query.MinInterval)
	}

	graph, err := StageGraph(&r.cfg.Stages)
	if err != nil {
		return nil, fmt.Errorf("failed to build stage graph: %w", err)
	}

	r.order = graph.Order()

	if r.geocodeClient, err = query.NewClient(&r.cfg.Query, r.geocoder, r.pacer, log, r.queryOpts...); err != nil {
		return nil, err
	}

	if r.surfaceClient, err = query.NewClient(&r.cfg.Query, r.surface, r.pacer, log, r.queryOpts...); err != nil {
		return nil, err
	}

	if r.genericClient, err = query.NewClient(&r.cfg.Query, nil, r.pacer, log, r.queryOpts...); err != nil {
		return nil, err
	}

	r.joiner = nearest.NewJoiner(&r.cfg.Stages.POIs.Filter, log)

	return r, nil
}

// Order returns the stages that run, in execution order.
func (r *Runner) Order() []string {
	return append([]string(nil), r.order...)
}

// Process enriches input and discards the report.
func (r *Runner) Process(ctx context.Context, input string) error {
	_, err := r.ProcessFile(ctx, input)

	return err
}

type paths struct {
	trajectory string
	places     string
	pois       string
	placesIn   string
	poisIn     string
}

func (r *Runner) renderPaths(data PathData) (paths, error) {
	var (
		p   paths
		err error
	)

	targets := []struct {
		tmpl string
		dst  *string
	}{
		{r.cfg.Output.Trajectory, &p.trajectory},
		{r.cfg.Output.Places, &p.places},
		{r.cfg.Output.POIs, &p.pois},
		{r.cfg.Stages.Places.Input, &p.placesIn},
		{r.cfg.Stages.POIs.Input, &p.poisIn},
	}

	for _, t := range targets {
		if *t.dst, err = RenderPath(t.tmpl, data); err != nil {
			return paths{}, err
		}
	}

	return p, nil
}

// ProcessFile enriches one trajectory file and writes its outputs. A missing
// or malformed input still produces correctly headered empty outputs. The
// cache is opened once per call and closed on every path; when it cannot
// be opened every lookup is treated as a miss.
func (r *Runner) ProcessFile(ctx context.Context, input string) (*Report, error) {
	start := r.now()

	p, err := r.renderPaths(NewPathData(input, r.cfg.Output.Dir, start))
	if err != nil {
		return nil, err
	}

	log := r.log.WithField("input", input)

	report := &Report{
		Input:   input,
		Stages:  r.Order(),
		Outputs: Outputs{Trajectory: p.trajectory},
	}

	var pipelineCache enrich.Cache = offlineCache{}

	c, err := cache.Open(ctx, &r.cfg.Cache, r.rdb, log)
	if err != nil {
		log.WithError(err).Warn("Cache unavailable, continuing without it")
		observability.RecordError("engine", "cache_open")
	} else {
		pipelineCache = c

		defer func() {
			if cerr := c.Close(); cerr != nil {
				log.WithError(cerr).Warn("Failed to close cache")
			}
		}()
	}

	points, err := trajectory.Load(input)
	if err != nil {
		if !errors.Is(err, trajectory.ErrMalformedInput) {
			return nil, err
		}

		log.WithError(err).Warn("Unreadable trajectory, writing empty outputs")

		report.Malformed = true
		points = nil
	}

	trajectory.FillDistances(points)

	records := trajectory.NewRecords(points)
	report.Points = len(records)

	pipeline := enrich.NewPipeline(pipelineCache, log)

	for _, stage := range r.order {
		switch stage {
		case enrich.StageElevation:
			var er enrich.ElevationReport
			records, er = enrich.FillElevation(ctx, r.genericClient, r.elevator, records, log)
			report.Elevation = &er
		case enrich.StageGeocoding:
			s := enrich.GeocodingStage(&r.cfg.Stages.Geocoding, r.geocoder.Name(), r.geocodeClient)
			records = r.runStage(ctx, pipeline, c, s, input, records, report)
		case enrich.StageSurface:
			s := enrich.SurfaceStage(&r.cfg.Stages.Surface, r.surface.Name(), r.radiusM, r.surfaceClient)
			records = r.runStage(ctx, pipeline, c, s, input, records, report)
		case nearest.StagePlaces:
			if report.Places, err = r.joinFeatures(records, p.placesIn, p.places, r.joiner.Places, log); err != nil {
				return nil, err
			}

			report.Outputs.Places = p.places
		case nearest.StagePOIs:
			if report.POIs, err = r.joinFeatures(records, p.poisIn, p.pois, r.joiner.POIs, log); err != nil {
				return nil, err
			}

			report.Outputs.POIs = p.pois
		}
	}

	layout := trajectory.Layout{
		Geocoding: r.cfg.Stages.Geocoding.Enabled,
		Surface:   r.cfg.Stages.Surface.Enabled,
	}

	if err := trajectory.WriteRecordsFile(p.trajectory, records, layout); err != nil {
		return nil, err
	}

	if c != nil {
		stats := c.Statistics(ctx)
		report.Cache = &stats
	}

	report.Duration = r.now().Sub(start)

	log.WithFields(logrus.Fields{
		"points":    report.Points,
		"stages":    report.Stages,
		"output":    p.trajectory,
		"malformed": report.Malformed,
		"duration":  report.Duration,
	}).Info("Enriched trajectory")

	return report, nil
}

func (r *Runner) runStage(
	ctx context.Context,
	pipeline *enrich.Pipeline,
	c *cache.Cache,
	stage *enrich.Stage,
	input string,
	records []trajectory.Record,
	report *Report,
) []trajectory.Record {
	out, sr := pipeline.Enrich(ctx, stage, records)
	report.Enrichment = append(report.Enrichment, sr)

	if c == nil {
		return out
	}

	audit := cache.TrackAudit{
		ID:                 uuid.NewString(),
		File:               input,
		Stage:              stage.Name,
		TotalPoints:        len(out),
		SamplingDistanceKm: stage.SamplingDistanceKm,
		ProcessedAt:        r.now(),
		Points:             make([]cache.TrackPoint, len(out)),
	}

	for i := range out {
		audit.Points[i] = cache.TrackPoint{SequenceIndex: out[i].Index, EntryID: sr.EntryIDs[i]}
	}

	if err := c.RecordTrack(ctx, audit); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"input": input,
			"stage": stage.Name,
		}).Warn("Failed to record track audit")
	}

	return out
}

func (r *Runner) joinFeatures(
	records []trajectory.Record,
	input, output string,
	join func(*nearest.Trajectory, []trajectory.Feature) []trajectory.JoinedFeature,
	log logrus.FieldLogger,
) (*FeatureReport, error) {
	features, err := trajectory.ReadFeaturesFile(input)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.WithField("features", input).Debug("No feature file")
		} else {
			log.WithError(err).WithField("features", input).Warn("Unreadable feature file, writing empty output")
		}

		features = nil
	}

	joined := join(nearest.NewTrajectory(trajectory.Points(records)), features)

	if err := trajectory.WriteJoinedFeaturesFile(output, joined); err != nil {
		return nil, err
	}

	return &FeatureReport{Input: input, Read: len(features), Kept: len(joined)}, nil
}

// offlineCache stands in when the cache cannot be opened.
type offlineCache struct{}

func (offlineCache) Lookup(context.Context, cache.LookupRequest) (*cache.Entry, bool) {
	return nil, false
}

func (offlineCache) Store(context.Context, cache.Entry) int64 {
	return 0
}
