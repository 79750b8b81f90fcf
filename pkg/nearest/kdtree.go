// Package nearest joins external places and points of interest to the
// closest point of a trajectory. Candidates come from a k-d tree over
// (lat, lon) with a planar metric; reported distances are haversine.
package nearest

import (
	"sort"

	"github.com/ethpandaops/gpxenrich/pkg/geo"
)

// Match is the reference position closest to a query.
type Match struct {
	// Index is the position in the slice the Index was built from.
	Index     int     `json:"index"`
	DistanceM float64 `json:"distance_m"`
}

type node struct {
	pos         int
	axis        int
	left, right int
}

// Index is a static 2-d tree. Equal planar distances resolve to the lowest
// reference position.
type Index struct {
	points []geo.Point
	nodes  []node
	root   int
}

// NewIndex builds an index over points. Points without a valid coordinate
// are left out but keep their positions.
func NewIndex(points []geo.Point) *Index {
	ix := &Index{
		points: points,
		root:   -1,
	}

	positions := make([]int, 0, len(points))
	for i, p := range points {
		if p.Valid() {
			positions = append(positions, i)
		}
	}

	ix.nodes = make([]node, 0, len(positions))
	ix.root = ix.build(positions, 0)

	return ix
}

// Len is the number of indexed points.
func (ix *Index) Len() int {
	return len(ix.nodes)
}

func (ix *Index) build(positions []int, depth int) int {
	if len(positions) == 0 {
		return -1
	}

	axis := depth % 2

	sort.Slice(positions, func(a, b int) bool {
		va, vb := ix.coord(positions[a], axis), ix.coord(positions[b], axis)
		if va != vb {
			return va < vb
		}

		return positions[a] < positions[b]
	})

	mid := len(positions) / 2

	id := len(ix.nodes)
	ix.nodes = append(ix.nodes, node{pos: positions[mid], axis: axis})

	left := ix.build(positions[:mid], depth+1)
	right := ix.build(positions[mid+1:], depth+1)

	ix.nodes[id].left, ix.nodes[id].right = left, right

	return id
}

func (ix *Index) coord(pos, axis int) float64 {
	if axis == 0 {
		return ix.points[pos].Lat
	}

	return ix.points[pos].Lon
}

func planar(a, b geo.Point) float64 {
	dLat := a.Lat - b.Lat
	dLon := a.Lon - b.Lon

	return dLat*dLat + dLon*dLon
}

// Nearest returns the indexed point closest to q. It reports false when the
// index is empty or q is not a valid coordinate.
func (ix *Index) Nearest(q geo.Point) (Match, bool) {
	if ix.root < 0 || !q.Valid() {
		return Match{}, false
	}

	best, bestDist := -1, 0.0
	ix.search(ix.root, q, &best, &bestDist)

	return Match{
		Index:     best,
		DistanceM: geo.HaversineM(q, ix.points[best]),
	}, true
}

func (ix *Index) search(id int, q geo.Point, best *int, bestDist *float64) {
	if id < 0 {
		return
	}

	n := ix.nodes[id]

	d := planar(q, ix.points[n.pos])
	if *best < 0 || d < *bestDist || (d == *bestDist && n.pos < *best) {
		*best, *bestDist = n.pos, d
	}

	var qv float64
	if n.axis == 0 {
		qv = q.Lat
	} else {
		qv = q.Lon
	}

	diff := qv - ix.coord(n.pos, n.axis)

	near, far := n.left, n.right
	if diff > 0 {
		near, far = n.right, n.left
	}

	ix.search(near, q, best, bestDist)

	// Equal distances must still be visited for the position tie-break.
	if diff*diff <= *bestDist {
		ix.search(far, q, best, bestDist)
	}
}
