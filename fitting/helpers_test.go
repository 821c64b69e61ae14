package fitting

import (
	"math/rand"
	"testing"

	"github.com/kwv/lomsac/ransac"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"
)

func init() {
	ransac.SetLogger(nil)
}

// lineFixture returns 40 points on y = 2x + 1 followed by 10 far outliers.
func lineFixture(t *testing.T) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(3))
	fc := geojson.NewFeatureCollection()
	for i := 0; i < 40; i++ {
		x := float64(i)
		fc.Append(geojson.NewFeature(orb.Point{x, 2*x + 1 + (rng.Float64()-0.5)*0.1}))
	}
	for i := 0; i < 10; i++ {
		x := float64(i * 4)
		fc.Append(geojson.NewFeature(orb.Point{x, 2*x + 30 + rng.Float64()*20}))
	}
	data, err := fc.MarshalJSON()
	require.NoError(t, err)
	return data
}

// rigidFixture maps 30 points through a quarter turn plus (10, -5), with
// every fifth target displaced.
func rigidFixture(t *testing.T) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(9))
	fc := geojson.NewFeatureCollection()
	for i := 0; i < 30; i++ {
		x, y := rng.Float64()*50, rng.Float64()*50
		tx, ty := -y+10, x-5
		if i%5 == 0 {
			tx += 25
		}
		fc.Append(geojson.NewFeature(orb.LineString{{x, y}, {tx, ty}}))
	}
	data, err := fc.MarshalJSON()
	require.NoError(t, err)
	return data
}

// planeFixture is a 5x5 grid on z = 0.5x + 2 with one raised point.
func planeFixture(t *testing.T) []byte {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	for x := 0; x < 5; x++ {
		for y := 0; y < 5; y++ {
			f := geojson.NewFeature(orb.Point{float64(x), float64(y)})
			z := 0.5*float64(x) + 2
			if x == 2 && y == 2 {
				z += 10
			}
			f.Properties["z"] = z
			fc.Append(f)
		}
	}
	data, err := fc.MarshalJSON()
	require.NoError(t, err)
	return data
}

func testOptions() ransac.LOOptions {
	opts := ransac.DefaultLOOptions()
	opts.SquaredInlierThreshold = 0.04
	opts.RandomSeed = 1
	return opts
}
