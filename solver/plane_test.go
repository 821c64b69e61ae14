package solver

import (
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/kwv/lomsac/ransac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaneSolver_MinimalSolver(t *testing.T) {
	s := NewPlaneSolver([]r3.Vector{
		{X: 0, Y: 0, Z: 2},
		{X: 1, Y: 0, Z: 2},
		{X: 0, Y: 1, Z: 2},
		{X: 2, Y: 2, Z: 2},
	})

	models := s.MinimalSolver([]int{0, 1, 2})
	require.Len(t, models, 1)
	pl := models[0]
	assert.InDelta(t, 1, pl.Normal.Z, 1e-12)
	assert.InDelta(t, -2, pl.D, 1e-12)

	assert.Empty(t, s.MinimalSolver([]int{0, 1}), "short sample")
	// All on the x axis.
	collinear := NewPlaneSolver([]r3.Vector{{X: 0}, {X: 1}, {X: 3}})
	assert.Empty(t, collinear.MinimalSolver([]int{0, 1, 2}))
}

func TestPlaneSolver_NonMinimalSolver(t *testing.T) {
	// z = x + 2y + 1 in normal form: (1, 2, -1)·p + 1 = 0.
	var pts []r3.Vector
	for x := 0.0; x < 3; x++ {
		for y := 0.0; y < 3; y++ {
			pts = append(pts, r3.Vector{X: x, Y: y, Z: x + 2*y + 1})
		}
	}
	s := NewPlaneSolver(pts)

	_, ok := s.NonMinimalSolver([]int{0, 1, 2})
	assert.False(t, ok)

	sample := []int{0, 1, 2, 3, 4, 5, 6, 7, 8}
	pl, ok := s.NonMinimalSolver(sample)
	require.True(t, ok)
	assert.InDelta(t, 1, pl.Normal.Norm(), 1e-12)
	for _, i := range sample {
		assert.InDelta(t, 0, s.EvaluateModelOnPoint(pl, i), 1e-12)
	}

	line := NewPlaneSolver([]r3.Vector{{X: 0}, {X: 1}, {X: 2}, {X: 3}})
	_, ok = line.NonMinimalSolver([]int{0, 1, 2, 3})
	assert.False(t, ok, "collinear points span no plane")
}

func TestPlaneSolver_Estimate(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	var pts []r3.Vector
	for i := 0; i < 120; i++ {
		x, y := rng.Float64()*10, rng.Float64()*10
		pts = append(pts, r3.Vector{X: x, Y: y, Z: 0.5*x - 0.25*y + 3 + (rng.Float64()-0.5)*0.02})
	}
	for i := 0; i < 40; i++ {
		pts = append(pts, r3.Vector{X: rng.Float64() * 10, Y: rng.Float64() * 10, Z: 10 + rng.Float64()*10})
	}

	opts := ransac.DefaultLOOptions()
	opts.SquaredInlierThreshold = 0.01
	e, err := ransac.NewEstimator[Plane](opts)
	require.NoError(t, err)

	n, pl, stats := e.Estimate(NewPlaneSolver(pts))
	assert.Equal(t, 120, n)
	assert.InDelta(t, 0.75, stats.InlierRatio, 1e-12)
	for _, idx := range stats.InlierIndices {
		assert.Less(t, idx, 120)
	}
	// The normal is parallel to (0.5, -0.25, -1).
	want := r3.Vector{X: 0.5, Y: -0.25, Z: -1}.Normalize()
	assert.InDelta(t, 1, pl.Normal.Dot(want)*pl.Normal.Dot(want), 1e-4)
}
