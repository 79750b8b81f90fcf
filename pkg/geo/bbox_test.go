package geo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSphericalBox_ContainsToleranceCircle(t *testing.T) {
	rng := rand.New(rand.NewSource(7)) //nolint:gosec // deterministic test data

	for i := 0; i < 300; i++ {
		center := Point{Lat: rng.Float64()*178 - 89, Lon: rng.Float64()*360 - 180}
		tolerance := 0.001 + rng.Float64()*20
		box := SphericalBox(center, tolerance)

		for bearing := 0.0; bearing < 360; bearing += 7.5 {
			onCircle := Destination(center, bearing, tolerance)
			require.Truef(t, box.Contains(onCircle),
				"box %+v around %v (tol %.4f km) misses %v at bearing %.1f", box, center, tolerance, onCircle, bearing)
		}
	}
}

func TestSphericalBox_Antimeridian(t *testing.T) {
	box := SphericalBox(Point{Lat: 0, Lon: 179.9999}, 1)

	assert.True(t, box.WrapsAntimeridian())
	assert.True(t, box.Contains(Point{Lat: 0, Lon: -179.9999}))
	assert.False(t, box.Contains(Point{Lat: 0, Lon: 0}))
	assert.Len(t, box.Split(), 2)
}

func TestSphericalBox_Pole(t *testing.T) {
	box := SphericalBox(Point{Lat: 89.9999, Lon: 10}, 5)

	assert.Equal(t, -180.0, box.MinLon)
	assert.Equal(t, 180.0, box.MaxLon)
	assert.InDelta(t, 90.0, box.MaxLat, 1e-9)
}

func TestLegacyBox_NarrowerAtHighLatitude(t *testing.T) {
	center := Point{Lat: 60, Lon: 10}
	east := Destination(center, 90, 1)

	assert.False(t, LegacyBox(center, 1).Contains(east), "legacy factor under-sizes the longitude span at 60°")
	assert.True(t, SphericalBox(center, 1).Contains(east))
}

func TestLegacyBox_WideAtEquator(t *testing.T) {
	box := LegacyBox(Point{Lat: 0, Lon: 0}, 1)

	assert.InDelta(t, 1/111.0, box.MaxLat, 1e-12)
	assert.InDelta(t, 10.0, box.MaxLon, 1e-9)
}

func TestBoxFuncFor(t *testing.T) {
	for _, mode := range []string{"", BoxSpherical, BoxLegacy} {
		fn, err := BoxFuncFor(mode)
		require.NoError(t, err)
		assert.NotNil(t, fn)
	}

	_, err := BoxFuncFor("square")
	assert.ErrorIs(t, err, ErrUnknownBoxMode)
}
