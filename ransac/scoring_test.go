package ransac

import (
	"math"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestPointCost(t *testing.T) {
	assert.Equal(t, 0.25, PointCost(0.25, 1.0))
	assert.Equal(t, 1.0, PointCost(4.0, 1.0))
	assert.Equal(t, 1.0, PointCost(1.0, 1.0))
	assert.Equal(t, 0.0, PointCost(3.0, 0.0))
}

func TestScoreModel_Saturates(t *testing.T) {
	s := &lineSolver{
		xs: []float64{0, 1, 2, 3, 4},
		ys: []float64{10, 20, 30, 40, 50},
	}
	// y = 0 is far from every point.
	far := testLine{a: 0, b: 1, c: 0}
	got := ScoreModel[testLine](s, far, 2.0)
	assert.Equal(t, 5*2.0, got)
}

func TestScoreModel_SumsTruncatedCosts(t *testing.T) {
	s := &lineSolver{
		xs: []float64{0, 1, 2},
		ys: []float64{0.5, -0.5, 3},
	}
	horizontal := testLine{a: 0, b: 1, c: 0}
	// Squared errors 0.25, 0.25 and 9, the last truncated at 1.
	assert.InDelta(t, 1.5, ScoreModel[testLine](s, horizontal, 1.0), 1e-12)
}

func TestCollectInliers(t *testing.T) {
	s := &lineSolver{
		xs: []float64{0, 1, 2, 3, 4, 5},
		ys: []float64{0, 2, 0.1, 1, -0.5, 0},
	}
	horizontal := testLine{a: 0, b: 1, c: 0}

	got := CollectInliers[testLine](s, horizontal, 1.0)
	// Index 3 has squared error exactly 1 and is excluded by the strict comparison.
	want := []int{0, 2, 4, 5}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CollectInliers mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, sort.IntsAreSorted(got))
	assert.Equal(t, len(got), InlierCount[testLine](s, horizontal, 1.0))
}

func TestCollectInliers_NoData(t *testing.T) {
	s := &lineSolver{}
	got := CollectInliers[testLine](s, testLine{b: 1}, 1.0)
	assert.Empty(t, got)
	assert.Equal(t, 0, InlierCount[testLine](s, testLine{b: 1}, 1.0))
}

func TestBestOf(t *testing.T) {
	s := &lineSolver{
		xs: []float64{0, 1, 2},
		ys: []float64{1, 1, 1},
	}
	models := []testLine{
		{a: 0, b: 1, c: 0},  // y = 0, every error 1
		{a: 0, b: 1, c: -1}, // y = 1, exact
		{a: 0, b: 1, c: -1}, // duplicate, must not win the tie
		{a: 0, b: 1, c: -2}, // y = 2
	}

	score, id := BestOf[testLine](s, models, 4.0)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, 1, id)
}

func TestBestOf_Empty(t *testing.T) {
	s := &lineSolver{xs: []float64{0}, ys: []float64{0}}
	score, id := BestOf[testLine](s, nil, 1.0)
	assert.True(t, math.IsInf(score, 1))
	assert.Equal(t, 0, id)
}
