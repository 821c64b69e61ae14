// Package solver provides ransac.Solver implementations for 2D lines, 3D
// planes and 2D rigid and affine transforms between point correspondences.
package solver

import (
	"math"

	"github.com/kwv/lomsac/geom"
	"github.com/kwv/lomsac/ransac"
	"gonum.org/v1/gonum/mat"
)

// Line is a*x + b*y + c = 0 with a unit normal (a, b).
type Line struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
	C float64 `json:"c"`
}

// Distance returns the signed distance of p to the line.
func (l Line) Distance(p geom.Point) float64 {
	return l.A*p.X + l.B*p.Y + l.C
}

// Project returns the foot of the perpendicular from p.
func (l Line) Project(p geom.Point) geom.Point {
	d := l.Distance(p)
	return geom.Point{X: p.X - d*l.A, Y: p.Y - d*l.B}
}

// canonical flips the sign so that b > 0, or a > 0 for vertical lines.
func (l Line) canonical() Line {
	sign := l.B
	if math.Abs(l.B) < 1e-12 {
		sign = l.A
	}
	if sign < 0 {
		return Line{A: -l.A, B: -l.B, C: -l.C}
	}
	return l
}

var _ ransac.Solver[Line] = (*LineSolver)(nil)

// LineSolver fits 2D lines to points. Residuals are squared orthogonal
// distances.
type LineSolver struct {
	points []geom.Point
}

// NewLineSolver wraps points without copying them.
func NewLineSolver(points []geom.Point) *LineSolver {
	return &LineSolver{points: points}
}

func (s *LineSolver) MinSampleSize() int        { return 2 }
func (s *LineSolver) NonMinimalSampleSize() int { return 3 }
func (s *LineSolver) NumData() int              { return len(s.points) }

// MinimalSolver returns the line through two points, or nothing when they
// coincide.
func (s *LineSolver) MinimalSolver(sample []int) []Line {
	if len(sample) < 2 {
		return nil
	}
	p, q := s.points[sample[0]], s.points[sample[1]]
	dx, dy := q.X-p.X, q.Y-p.Y
	norm := math.Hypot(dx, dy)
	if norm < 1e-12 {
		return nil
	}
	a, b := -dy/norm, dx/norm
	return []Line{Line{A: a, B: b, C: -(a*p.X + b*p.Y)}.canonical()}
}

func (s *LineSolver) NonMinimalSolver(sample []int) (Line, bool) {
	if len(sample) < s.NonMinimalSampleSize() {
		return Line{}, false
	}
	return s.fit(sample)
}

func (s *LineSolver) LeastSquares(sample []int, model *Line) {
	if len(sample) < s.MinSampleSize() {
		return
	}
	if l, ok := s.fit(sample); ok {
		*model = l
	}
}

func (s *LineSolver) EvaluateModelOnPoint(l Line, i int) float64 {
	d := l.Distance(s.points[i])
	return d * d
}

// fit is total least squares: the normal is the eigenvector of the scatter
// matrix with the smallest eigenvalue.
func (s *LineSolver) fit(sample []int) (Line, bool) {
	pts := make([]geom.Point, len(sample))
	for k, i := range sample {
		pts[k] = s.points[i]
	}
	c := geom.Centroid(pts)

	var sxx, sxy, syy float64
	for _, p := range pts {
		dx, dy := p.X-c.X, p.Y-c.Y
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if sxx+syy < 1e-12 {
		return Line{}, false
	}

	normal, _, ok := smallestEigenvector(mat.NewSymDense(2, []float64{sxx, sxy, sxy, syy}))
	if !ok {
		return Line{}, false
	}
	a, b := normal[0], normal[1]
	return Line{A: a, B: b, C: -(a*c.X + b*c.Y)}.canonical(), true
}

// smallestEigenvector returns the unit eigenvector of the smallest eigenvalue
// of a symmetric matrix, along with all eigenvalues in ascending order.
func smallestEigenvector(sym *mat.SymDense) ([]float64, []float64, bool) {
	var eig mat.EigenSym
	if !eig.Factorize(sym, true) {
		return nil, nil, false
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	v := mat.Col(nil, 0, &vecs)
	norm := mat.Norm(mat.NewVecDense(len(v), v), 2)
	if norm == 0 || math.IsNaN(norm) {
		return nil, nil, false
	}
	for i := range v {
		v[i] /= norm
	}
	return v, vals, true
}
