package trajectory

import (
	"fmt"

	"github.com/ethpandaops/gpxenrich/pkg/geo"
	"github.com/tkrajina/gpxgo/gpx"
)

// LoadGPX flattens every track segment of a GPX file into one ordered point
// sequence. Along-route distance is accumulated across segment boundaries.
func LoadGPX(path string) ([]Point, error) {
	doc, err := gpx.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}

	return FromGPX(doc), nil
}

// FromGPX converts a parsed GPX document into trajectory points.
func FromGPX(doc *gpx.GPX) []Point {
	var points []Point

	for ti := range doc.Tracks {
		for si := range doc.Tracks[ti].Segments {
			for pi := range doc.Tracks[ti].Segments[si].Points {
				gp := &doc.Tracks[ti].Segments[si].Points[pi]

				p := Point{
					Index: len(points),
					Lat:   gp.Latitude,
					Lon:   gp.Longitude,
				}

				if gp.Elevation.NotNull() {
					p.Elevation = Float(gp.Elevation.Value())
				}

				points = append(points, p)
			}
		}
	}

	FillDistances(points)

	return points
}

// FillDistances sets the along-route distance on points that lack one,
// continuing from the last known value. Invalid points do not advance the
// running distance.
func FillDistances(points []Point) {
	var (
		total float64
		prev  *Point
	)

	for i := range points {
		p := &points[i]
		if !p.Valid() {
			continue
		}

		if prev != nil {
			total += geo.HaversineKm(prev.Coord(), p.Coord())
		}

		if p.DistanceKm == nil {
			p.DistanceKm = Float(total)
		} else {
			total = *p.DistanceKm
		}

		prev = p
	}
}
