package enrich

import (
	"context"
	"slices"

	"github.com/ethpandaops/gpxenrich/pkg/cache"
	"github.com/ethpandaops/gpxenrich/pkg/geo"
	"github.com/ethpandaops/gpxenrich/pkg/observability"
	"github.com/ethpandaops/gpxenrich/pkg/query"
	"github.com/ethpandaops/gpxenrich/pkg/segment"
	"github.com/ethpandaops/gpxenrich/pkg/trajectory"
	"github.com/sirupsen/logrus"
)

// Block sources reported in metrics and logs.
const (
	SourceCache    = "cache"
	SourceQuery    = "query"
	SourceFallback = "fallback"
	SourceInvalid  = "invalid"
)

// Cache is the part of the tolerance cache used by the pipeline.
type Cache interface {
	Lookup(ctx context.Context, req cache.LookupRequest) (*cache.Entry, bool)
	Store(ctx context.Context, e cache.Entry) int64
}

// Querier resolves one point through an external provider.
type Querier interface {
	Query(ctx context.Context, p geo.Point) query.Result
}

// Stage describes how one attribute group is resolved and attached.
type Stage struct {
	Name               string
	Kind               cache.Kind
	Provider           string
	RadiusM            float64
	ToleranceKm        float64
	SamplingDistanceKm float64
	Policy             segment.Policy
	Fallback           Fallback
	// Keys are the attributes set to UnknownValue by the unknown fallback.
	Keys   []string
	Label  func(r trajectory.Record) string
	Apply  func(r *trajectory.Record, attrs trajectory.Attributes, entryID *int64)
	Client Querier
}

// Report summarises one stage run.
type Report struct {
	Stage     string `json:"stage"`
	Points    int    `json:"points"`
	Blocks    int    `json:"blocks"`
	CacheHits int    `json:"cache_hits"`
	Queried   int    `json:"queried"`
	Fallbacks int    `json:"fallbacks"`
	Invalid   int    `json:"invalid"`
	// EntryIDs holds, per position, the cache entry each record was
	// resolved from; nil for fallbacks.
	EntryIDs []*int64 `json:"-"`
}

// Pipeline runs stages against a shared cache.
type Pipeline struct {
	cache Cache
	log   logrus.FieldLogger
}

// NewPipeline returns a pipeline backed by c.
func NewPipeline(c Cache, log logrus.FieldLogger) *Pipeline {
	return &Pipeline{
		cache: c,
		log:   log.WithField("component", "enrich"),
	}
}

type resolution struct {
	attrs   trajectory.Attributes
	entryID *int64
	source  string
}

// Enrich returns a copy of records with the stage attributes attached to
// every record. Blocks are resolved in order; a block whose query fails
// receives fallback attributes and never stops later blocks.
func (p *Pipeline) Enrich(ctx context.Context, stage *Stage, records []trajectory.Record) ([]trajectory.Record, Report) {
	out := slices.Clone(records)

	report := Report{
		Stage:    stage.Name,
		Points:   len(out),
		EntryIDs: make([]*int64, len(out)),
	}

	blocks := segment.Segment(out, stage.Label, stage.Policy)
	report.Blocks = len(blocks)

	log := p.log.WithField("stage", stage.Name)

	var previous *resolution

	for _, b := range blocks {
		res := p.resolve(ctx, stage, out[b.Representative], b)

		switch res.source {
		case SourceCache:
			report.CacheHits++
		case SourceQuery:
			report.Queried++
		case SourceInvalid:
			report.Invalid++
		}

		if res.source == SourceCache || res.source == SourceQuery {
			previous = &res
		} else {
			if res.source == SourceFallback {
				report.Fallbacks++
			}

			res = fallback(stage, previous, res.source)
		}

		for i := b.Start; i <= b.End; i++ {
			stage.Apply(&out[i], res.attrs, res.entryID)
			report.EntryIDs[i] = res.entryID
		}

		observability.RecordBlock(stage.Name, res.source)

		log.WithFields(logrus.Fields{
			"block":  b.ID,
			"start":  b.Start,
			"end":    b.End,
			"source": res.source,
		}).Debug("Resolved block")
	}

	observability.RecordPoints(stage.Name, len(out))

	log.WithFields(logrus.Fields{
		"points":     report.Points,
		"blocks":     report.Blocks,
		"cache_hits": report.CacheHits,
		"queried":    report.Queried,
		"fallbacks":  report.Fallbacks,
		"invalid":    report.Invalid,
	}).Info("Stage complete")

	return out, report
}

func (p *Pipeline) resolve(ctx context.Context, stage *Stage, rep trajectory.Record, b segment.Block) resolution {
	if b.Invalid() || !rep.Valid() {
		p.log.WithFields(logrus.Fields{
			"stage":          stage.Name,
			"sequence_index": rep.Index,
			"points":         b.Len(),
		}).Warn("Skipping points without a valid coordinate")

		return resolution{source: SourceInvalid}
	}

	entry, ok := p.cache.Lookup(ctx, cache.LookupRequest{
		Kind:        stage.Kind,
		Lat:         rep.Lat,
		Lon:         rep.Lon,
		RadiusM:     stage.RadiusM,
		Provider:    stage.Provider,
		ToleranceKm: stage.ToleranceKm,
	})
	if ok {
		id := entry.ID

		return resolution{attrs: entry.Attributes, entryID: &id, source: SourceCache}
	}

	result := stage.Client.Query(ctx, rep.Coord())
	if !result.OK() {
		p.log.WithFields(logrus.Fields{
			"stage":          stage.Name,
			"block":          b.ID,
			"sequence_index": rep.Index,
			"reason":         result.Reason,
		}).Warn("Query failed, assigning fallback")

		return resolution{source: SourceFallback}
	}

	res := resolution{attrs: result.Attributes, source: SourceQuery}

	id := p.cache.Store(ctx, cache.Entry{
		Kind:       stage.Kind,
		Lat:        rep.Lat,
		Lon:        rep.Lon,
		RadiusM:    stage.RadiusM,
		Provider:   stage.Provider,
		Attributes: result.Attributes,
	})
	if id > 0 {
		res.entryID = &id
	}

	return res
}

func fallback(stage *Stage, previous *resolution, source string) resolution {
	if stage.Fallback == FallbackPrevious && previous != nil {
		return resolution{attrs: previous.attrs, source: source}
	}

	attrs := make(trajectory.Attributes, len(stage.Keys))
	for _, k := range stage.Keys {
		attrs[k] = UnknownValue
	}

	return resolution{attrs: attrs, source: source}
}
