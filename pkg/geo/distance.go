package geo

import "math"

// EarthRadiusKm is the IUGG mean earth radius used for every geodesic distance.
const EarthRadiusKm = 6371.0088

// DegreesToRadians converts degrees to radians.
func DegreesToRadians(d float64) float64 {
	return d * math.Pi / 180.0
}

// RadiansToDegrees converts radians to degrees.
func RadiansToDegrees(r float64) float64 {
	return r * 180.0 / math.Pi
}

// HaversineKm returns the great-circle distance between two points in kilometres.
func HaversineKm(p1, p2 Point) float64 {
	lat1 := DegreesToRadians(p1.Lat)
	lat2 := DegreesToRadians(p2.Lat)
	dLat := lat2 - lat1
	dLon := DegreesToRadians(p2.Lon - p1.Lon)

	// a = sin²(Δlat/2) + cos(lat1) * cos(lat2) * sin²(Δlon/2)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	if a > 1 {
		a = 1
	}

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// HaversineM returns the great-circle distance between two points in metres.
func HaversineM(p1, p2 Point) float64 {
	return HaversineKm(p1, p2) * 1000
}

// Destination returns the point reached by travelling distKm from p along the
// initial bearing (degrees clockwise from north).
func Destination(p Point, bearingDeg, distKm float64) Point {
	lat1 := DegreesToRadians(p.Lat)
	lon1 := DegreesToRadians(p.Lon)
	brng := DegreesToRadians(bearingDeg)
	delta := distKm / EarthRadiusKm

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(delta) + math.Cos(lat1)*math.Sin(delta)*math.Cos(brng))
	lon2 := lon1 + math.Atan2(
		math.Sin(brng)*math.Sin(delta)*math.Cos(lat1),
		math.Cos(delta)-math.Sin(lat1)*math.Sin(lat2),
	)

	return Point{Lat: RadiansToDegrees(lat2), Lon: NormalizeLon(RadiansToDegrees(lon2))}
}

// NormalizeLon wraps a longitude into [-180, 180].
func NormalizeLon(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}

	for lon < -180 {
		lon += 360
	}

	return lon
}

// PathLengthsKm returns the cumulative along-route distance for each point of
// an ordered path. The first entry is always zero.
func PathLengthsKm(points []Point) []float64 {
	out := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		out[i] = out[i-1] + HaversineKm(points[i-1], points[i])
	}

	return out
}
