package geo

import (
	"errors"
	"fmt"
	"math"
)

const (
	// BoxSpherical selects the exact spherical bounding box.
	BoxSpherical = "spherical"
	// BoxLegacy selects the 111 km per degree approximation with the
	// 111×(|lat|/90)+0.1 longitude factor.
	BoxLegacy = "legacy"

	kmPerDegree = 111.0

	// boxMargin widens spherical boxes so floating point error at the rim
	// never excludes a point lying exactly on the tolerance circle.
	boxMargin = 1e-6
)

// ErrUnknownBoxMode is returned for an unsupported bounding box mode.
var ErrUnknownBoxMode = errors.New("unknown bounding box mode")

// BoundingBox is a latitude/longitude rectangle. When MinLon > MaxLon the box
// crosses the antimeridian.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// BoxFunc builds a bounding box around a point for a tolerance in kilometres.
type BoxFunc func(p Point, toleranceKm float64) BoundingBox

// BoxFuncFor returns the box builder for a mode name.
func BoxFuncFor(mode string) (BoxFunc, error) {
	switch mode {
	case "", BoxSpherical:
		return SphericalBox, nil
	case BoxLegacy:
		return LegacyBox, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBoxMode, mode)
	}
}

// WrapsAntimeridian reports whether the longitude range crosses ±180.
func (b BoundingBox) WrapsAntimeridian() bool {
	return b.MinLon > b.MaxLon
}

// ContainsLon reports whether the longitude lies inside the box range.
func (b BoundingBox) ContainsLon(lon float64) bool {
	if b.WrapsAntimeridian() {
		return lon >= b.MinLon || lon <= b.MaxLon
	}

	return lon >= b.MinLon && lon <= b.MaxLon
}

// Contains reports whether the point lies inside the box.
func (b BoundingBox) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && b.ContainsLon(p.Lon)
}

// Split returns one or two non-wrapping boxes covering the same area.
func (b BoundingBox) Split() []BoundingBox {
	if !b.WrapsAntimeridian() {
		return []BoundingBox{b}
	}

	return []BoundingBox{
		{MinLat: b.MinLat, MaxLat: b.MaxLat, MinLon: b.MinLon, MaxLon: 180},
		{MinLat: b.MinLat, MaxLat: b.MaxLat, MinLon: -180, MaxLon: b.MaxLon},
	}
}

// SphericalBox returns the smallest latitude/longitude box containing every
// point within toleranceKm of p on the haversine sphere.
func SphericalBox(p Point, toleranceKm float64) BoundingBox {
	r := toleranceKm / EarthRadiusKm * (1 + boxMargin)
	lat := DegreesToRadians(p.Lat)
	lon := DegreesToRadians(p.Lon)

	minLat := lat - r
	maxLat := lat + r

	if maxLat >= math.Pi/2 || minLat <= -math.Pi/2 {
		// A pole lies inside the circle: every longitude qualifies.
		return BoundingBox{
			MinLat: RadiansToDegrees(math.Max(minLat, -math.Pi/2)),
			MaxLat: RadiansToDegrees(math.Min(maxLat, math.Pi/2)),
			MinLon: -180,
			MaxLon: 180,
		}
	}

	ratio := math.Sin(r) / math.Cos(lat)
	if ratio >= 1 {
		return BoundingBox{MinLat: RadiansToDegrees(minLat), MaxLat: RadiansToDegrees(maxLat), MinLon: -180, MaxLon: 180}
	}

	dLon := math.Asin(ratio)

	return wrapBox(RadiansToDegrees(minLat), RadiansToDegrees(maxLat), RadiansToDegrees(lon-dLon), RadiansToDegrees(lon+dLon))
}

// LegacyBox reproduces the historical cache prefilter: 111 km per degree of
// latitude and 111×(|lat|/90)+0.1 km per degree of longitude. It can be
// narrower than the tolerance circle at mid and high latitudes.
func LegacyBox(p Point, toleranceKm float64) BoundingBox {
	dLat := toleranceKm / kmPerDegree
	dLon := toleranceKm / (kmPerDegree*(math.Abs(p.Lat)/90) + 0.1)

	if dLon >= 180 {
		return BoundingBox{MinLat: math.Max(p.Lat-dLat, -90), MaxLat: math.Min(p.Lat+dLat, 90), MinLon: -180, MaxLon: 180}
	}

	return wrapBox(math.Max(p.Lat-dLat, -90), math.Min(p.Lat+dLat, 90), p.Lon-dLon, p.Lon+dLon)
}

func wrapBox(minLat, maxLat, minLon, maxLon float64) BoundingBox {
	if maxLon-minLon >= 360 {
		return BoundingBox{MinLat: minLat, MaxLat: maxLat, MinLon: -180, MaxLon: 180}
	}

	if minLon < -180 {
		minLon += 360
	}

	if maxLon > 180 {
		maxLon -= 360
	}

	return BoundingBox{MinLat: minLat, MaxLat: maxLat, MinLon: minLon, MaxLon: maxLon}
}
