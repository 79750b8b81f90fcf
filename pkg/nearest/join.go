package nearest

import (
	"github.com/ethpandaops/gpxenrich/pkg/geo"
	"github.com/ethpandaops/gpxenrich/pkg/observability"
	"github.com/ethpandaops/gpxenrich/pkg/trajectory"
	"github.com/sirupsen/logrus"
)

// Stage names used in metrics.
const (
	StagePlaces = "places"
	StagePOIs   = "pois"
)

// Trajectory is a reference trajectory prepared for joins.
type Trajectory struct {
	points []trajectory.Point
	index  *Index
}

// NewTrajectory indexes points.
func NewTrajectory(points []trajectory.Point) *Trajectory {
	coords := make([]geo.Point, len(points))
	for i, p := range points {
		coords[i] = p.Coord()
	}

	return &Trajectory{
		points: points,
		index:  NewIndex(coords),
	}
}

// Join attaches the nearest trajectory point to f. It reports false when f
// has no valid coordinate or the trajectory has no valid point.
func (t *Trajectory) Join(f trajectory.Feature) (trajectory.JoinedFeature, bool) {
	m, ok := t.index.Nearest(f.Coord())
	if !ok {
		return trajectory.JoinedFeature{}, false
	}

	p := t.points[m.Index]

	return trajectory.JoinedFeature{
		Feature:               f,
		NearestIndex:          p.Index,
		NearestElevation:      p.Elevation,
		NearestDistanceKm:     p.DistanceKm,
		DistanceToTrajectoryM: m.DistanceM,
	}, true
}

// Joiner runs place and POI joins.
type Joiner struct {
	cfg Config
	log logrus.FieldLogger
}

// NewJoiner returns a joiner using the POI thresholds in cfg.
func NewJoiner(cfg *Config, log logrus.FieldLogger) *Joiner {
	return &Joiner{
		cfg: *cfg,
		log: log.WithField("component", "nearest"),
	}
}

// Places joins every place to the trajectory regardless of distance. Places
// that cannot be joined are dropped.
func (j *Joiner) Places(t *Trajectory, places []trajectory.Feature) []trajectory.JoinedFeature {
	out := make([]trajectory.JoinedFeature, 0, len(places))

	for _, f := range places {
		jf, ok := t.Join(f)
		if !ok {
			j.log.WithField("name", f.Name).Warn("Dropping place without a usable coordinate")
			continue
		}

		out = append(out, jf)
	}

	observability.RecordFeatures(StagePlaces, len(out), len(places)-len(out))

	return out
}

// POIs keeps the points of interest lying within their type's threshold of
// the trajectory.
func (j *Joiner) POIs(t *Trajectory, pois []trajectory.Feature) []trajectory.JoinedFeature {
	out := make([]trajectory.JoinedFeature, 0, len(pois))

	for _, f := range pois {
		jf, ok := t.Join(f)
		if !ok {
			continue
		}

		limit := j.cfg.MaxDistanceM(f.Type, f.Elevation)
		if jf.DistanceToTrajectoryM > limit {
			j.log.WithFields(logrus.Fields{
				"name":       f.Name,
				"type":       f.Type,
				"distance_m": jf.DistanceToTrajectoryM,
				"limit_m":    limit,
			}).Debug("Dropping distant POI")

			continue
		}

		out = append(out, jf)
	}

	dropped := len(pois) - len(out)
	observability.RecordFeatures(StagePOIs, len(out), dropped)

	j.log.WithFields(logrus.Fields{
		"kept":    len(out),
		"dropped": dropped,
	}).Info("Filtered POIs")

	return out
}
