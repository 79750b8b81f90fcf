package enrich

import (
	"context"
	"slices"

	"github.com/ethpandaops/gpxenrich/pkg/geo"
	"github.com/ethpandaops/gpxenrich/pkg/observability"
	"github.com/ethpandaops/gpxenrich/pkg/query"
	"github.com/ethpandaops/gpxenrich/pkg/trajectory"
	"github.com/sirupsen/logrus"
)

const defaultElevationBatch = 100

// Elevator looks up elevations for a batch of points. A nil value means
// the provider has no elevation for that point.
type Elevator interface {
	Name() string
	BatchSize() int
	Lookup(ctx context.Context, points []geo.Point) ([]*float64, error)
}

// Executor runs a call through pacing and retries.
type Executor interface {
	Execute(ctx context.Context, name string, fn func(ctx context.Context) error) query.Result
}

// ElevationReport summarises an elevation fill.
type ElevationReport struct {
	Missing       int `json:"missing"`
	Filled        int `json:"filled"`
	Batches       int `json:"batches"`
	FailedBatches int `json:"failed_batches"`
}

// FillElevation returns a copy of records where valid points lacking an
// elevation have it looked up in batches. A failed batch leaves its points
// without elevation.
func FillElevation(ctx context.Context, exec Executor, src Elevator, records []trajectory.Record, log logrus.FieldLogger) ([]trajectory.Record, ElevationReport) {
	out := slices.Clone(records)
	log = log.WithFields(logrus.Fields{"component": "enrich", "stage": StageElevation})

	var missing []int

	for i := range out {
		if out[i].Elevation == nil && out[i].Valid() {
			missing = append(missing, i)
		}
	}

	report := ElevationReport{Missing: len(missing)}

	size := src.BatchSize()
	if size <= 0 {
		size = defaultElevationBatch
	}

	for batch := range slices.Chunk(missing, size) {
		report.Batches++

		points := make([]geo.Point, len(batch))
		for j, pos := range batch {
			points[j] = out[pos].Coord()
		}

		var values []*float64

		res := exec.Execute(ctx, src.Name(), func(ctx context.Context) error {
			v, err := src.Lookup(ctx, points)
			if err != nil {
				return err
			}

			values = v

			return nil
		})
		if !res.OK() {
			report.FailedBatches++
			observability.RecordBlock(StageElevation, SourceFallback)

			log.WithFields(logrus.Fields{
				"points": len(batch),
				"reason": res.Reason,
			}).Warn("Elevation batch failed, leaving points empty")

			continue
		}

		observability.RecordBlock(StageElevation, SourceQuery)

		for j, pos := range batch {
			if j < len(values) && values[j] != nil {
				out[pos].Elevation = trajectory.Float(*values[j])
				report.Filled++
			}
		}
	}

	observability.RecordPoints(StageElevation, report.Filled)

	log.WithFields(logrus.Fields{
		"missing": report.Missing,
		"filled":  report.Filled,
		"batches": report.Batches,
		"failed":  report.FailedBatches,
	}).Info("Stage complete")

	return out, report
}
