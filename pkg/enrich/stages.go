package enrich

import (
	"math"
	"strconv"

	"github.com/ethpandaops/gpxenrich/pkg/cache"
	"github.com/ethpandaops/gpxenrich/pkg/segment"
	"github.com/ethpandaops/gpxenrich/pkg/trajectory"
)

// Stage names.
const (
	StageGeocoding = "geocoding"
	StageSurface   = "surface"
	StageElevation = "elevation"
)

// GeocodingStage resolves addresses for blocks of SamplingDistanceKm along
// the route.
func GeocodingStage(cfg *GeocodingConfig, provider string, client Querier) *Stage {
	return &Stage{
		Name:               StageGeocoding,
		Kind:               cache.KindGeocoding,
		Provider:           provider,
		ToleranceKm:        cfg.ToleranceKm,
		SamplingDistanceKm: cfg.SamplingDistanceKm,
		Policy:             segment.Policy(cfg.Representative),
		Fallback:           Fallback(cfg.Fallback),
		Keys:               []string{trajectory.AttrStreet, trajectory.AttrCity, trajectory.AttrPostalCode},
		Label:              DistanceLabel(cfg.SamplingDistanceKm),
		Apply: func(r *trajectory.Record, attrs trajectory.Attributes, entryID *int64) {
			r.Address = trajectory.AddressFromAttributes(attrs, entryID)
		},
		Client: client,
	}
}

// SurfaceStage resolves way surfaces within radiusM of each block's
// representative. With LabelsStreet, blocks follow the street and city
// attached by the geocoding stage.
func SurfaceStage(cfg *SurfaceConfig, provider string, radiusM float64, client Querier) *Stage {
	label := DistanceLabel(cfg.SamplingDistanceKm)
	if LabelMode(cfg.Labels) == LabelsStreet {
		label = StreetLabel(cfg.SamplingDistanceKm)
	}

	return &Stage{
		Name:               StageSurface,
		Kind:               cache.KindSurface,
		Provider:           provider,
		RadiusM:            radiusM,
		ToleranceKm:        cfg.ToleranceKm,
		SamplingDistanceKm: cfg.SamplingDistanceKm,
		Policy:             segment.Policy(cfg.Representative),
		Fallback:           Fallback(cfg.Fallback),
		Keys: []string{
			trajectory.AttrSurface, trajectory.AttrHighway, trajectory.AttrTrackType, trajectory.AttrSmoothness,
		},
		Label: label,
		Apply: func(r *trajectory.Record, attrs trajectory.Attributes, entryID *int64) {
			r.Surface = trajectory.SurfaceFromAttributes(attrs, entryID)
		},
		Client: client,
	}
}

// DistanceLabel bins records by along-route distance. Records without a
// distance get a label of their own.
func DistanceLabel(samplingKm float64) func(r trajectory.Record) string {
	return func(r trajectory.Record) string {
		if !r.Valid() {
			return segment.InvalidLabel
		}

		if r.DistanceKm == nil || !(samplingKm > 0) {
			return "seq:" + strconv.Itoa(r.Index)
		}

		return "bin:" + strconv.FormatInt(int64(math.Floor(*r.DistanceKm/samplingKm)), 10)
	}
}

// StreetLabel groups records by resolved street and city, falling back to
// distance bins where no usable address is attached.
func StreetLabel(samplingKm float64) func(r trajectory.Record) string {
	bins := DistanceLabel(samplingKm)

	return func(r trajectory.Record) string {
		if !r.Valid() {
			return segment.InvalidLabel
		}

		a := r.Address
		if a == nil || a.Street == "" || a.Street == UnknownValue {
			return bins(r)
		}

		return "street:" + a.Street + "|" + a.City
	}
}
