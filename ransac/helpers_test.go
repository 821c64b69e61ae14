package ransac

import (
	"math"
	"math/rand"
)

// testLine is a*x + b*y + c = 0 with a^2 + b^2 = 1.
type testLine struct {
	a, b, c float64
}

// lineSolver fits 2D lines by total least squares. It is the smallest solver
// that exercises every code path of the estimator.
type lineSolver struct {
	xs, ys []float64
}

func (s *lineSolver) MinSampleSize() int        { return 2 }
func (s *lineSolver) NonMinimalSampleSize() int { return 3 }
func (s *lineSolver) NumData() int              { return len(s.xs) }

func (s *lineSolver) MinimalSolver(sample []int) []testLine {
	l, ok := s.fit(sample)
	if !ok {
		return nil
	}
	return []testLine{l}
}

func (s *lineSolver) NonMinimalSolver(sample []int) (testLine, bool) {
	if len(sample) < s.NonMinimalSampleSize() {
		return testLine{}, false
	}
	return s.fit(sample)
}

func (s *lineSolver) LeastSquares(sample []int, model *testLine) {
	if len(sample) < s.MinSampleSize() {
		return
	}
	if l, ok := s.fit(sample); ok {
		*model = l
	}
}

func (s *lineSolver) EvaluateModelOnPoint(m testLine, i int) float64 {
	d := m.a*s.xs[i] + m.b*s.ys[i] + m.c
	return d * d
}

func (s *lineSolver) fit(sample []int) (testLine, bool) {
	n := float64(len(sample))
	if n == 0 {
		return testLine{}, false
	}
	var mx, my float64
	for _, i := range sample {
		mx += s.xs[i]
		my += s.ys[i]
	}
	mx /= n
	my /= n

	var sxx, sxy, syy float64
	for _, i := range sample {
		dx, dy := s.xs[i]-mx, s.ys[i]-my
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if sxx+syy < 1e-12 {
		return testLine{}, false
	}

	// Principal direction angle; the normal is perpendicular to it.
	theta := 0.5 * math.Atan2(2*sxy, sxx-syy)
	a, b := -math.Sin(theta), math.Cos(theta)
	return testLine{a: a, b: b, c: -(a*mx + b*my)}, true
}

// pointsOnLine returns n points on y = slope*x + intercept with x in [0, 100).
func pointsOnLine(n int, slope, intercept, noise float64, rng *rand.Rand) (xs, ys []float64) {
	for i := 0; i < n; i++ {
		x := float64(i) * 100 / float64(n)
		y := slope*x + intercept
		if noise > 0 {
			y += (rng.Float64()*2 - 1) * noise
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}
	return xs, ys
}

// noisySolver wraps lineSolver with failing non-minimal solves and
// least-squares steps that make the model worse.
type noisySolver struct {
	lineSolver
	calls int
}

func (s *noisySolver) NonMinimalSolver(sample []int) (testLine, bool) {
	s.calls++
	if s.calls%2 == 0 {
		return testLine{}, false
	}
	return s.lineSolver.NonMinimalSolver(sample)
}

func (s *noisySolver) LeastSquares(sample []int, model *testLine) {
	model.c += 0.7
}

// emptySolver never produces a candidate.
type emptySolver struct {
	lineSolver
}

func (s *emptySolver) MinimalSolver([]int) []testLine { return nil }
