package geom

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// degenerateSpread is the relative scatter below which a point set is
// treated as coincident or collinear.
const degenerateSpread = 1e-12

// FitRigid computes the best rigid transform (rotation + translation only, no
// scale) mapping source onto target using Procrustes analysis.
// It reports false when fewer than two pairs are given or the source points
// coincide.
func FitRigid(source, target []Point) (AffineMatrix, bool) {
	return procrustes(source, target, false)
}

// FitSimilarity computes the least-squares rotation, uniform scale and
// translation mapping source onto target. Two pairs determine it exactly.
func FitSimilarity(source, target []Point) (AffineMatrix, bool) {
	return procrustes(source, target, true)
}

// procrustes solves the 2D orthogonal Procrustes problem, optionally with the
// Umeyama scale factor.
func procrustes(source, target []Point, scaled bool) (AffineMatrix, bool) {
	n := len(source)
	if n < 2 || n != len(target) {
		return AffineMatrix{}, false
	}

	srcCentroid := Centroid(source)
	tgtCentroid := Centroid(target)

	// Cross-covariance H = src^T * tgt of the centered points.
	var h11, h12, h21, h22, spread float64
	for i := range source {
		sx := source[i].X - srcCentroid.X
		sy := source[i].Y - srcCentroid.Y
		tx := target[i].X - tgtCentroid.X
		ty := target[i].Y - tgtCentroid.Y

		h11 += sx * tx
		h12 += sx * ty
		h21 += sy * tx
		h22 += sy * ty
		spread += sx*sx + sy*sy
	}
	if spread < degenerateSpread {
		return AffineMatrix{}, false
	}

	// R(theta) maximizing sum(t . R s) = cos*(h11+h22) + sin*(h12-h21).
	cosTerm, sinTerm := h11+h22, h12-h21
	theta := math.Atan2(sinTerm, cosTerm)
	m := Rotation(theta)
	if scaled {
		scale := math.Hypot(cosTerm, sinTerm) / spread
		if scale < degenerateSpread {
			return AffineMatrix{}, false
		}
		m.A, m.B, m.C, m.D = scale*m.A, scale*m.B, scale*m.C, scale*m.D
	}
	m.Tx = tgtCentroid.X - (m.A*srcCentroid.X + m.B*srcCentroid.Y)
	m.Ty = tgtCentroid.Y - (m.C*srcCentroid.X + m.D*srcCentroid.Y)
	return m, true
}

// FitAffine computes the full affine transform minimizing the squared
// transfer error of source onto target. It needs three or more pairs whose
// source points are not collinear.
func FitAffine(source, target []Point) (AffineMatrix, bool) {
	n := len(source)
	if n < 3 || n != len(target) {
		return AffineMatrix{}, false
	}
	if Collinear(source) {
		return AffineMatrix{}, false
	}

	// Center the source for conditioning; the offset is folded back into
	// the translation below.
	c := Centroid(source)
	a := mat.NewDense(n, 3, nil)
	b := mat.NewDense(n, 2, nil)
	for i := range source {
		a.SetRow(i, []float64{source[i].X - c.X, source[i].Y - c.Y, 1})
		b.SetRow(i, []float64{target[i].X, target[i].Y})
	}

	// Solve uses QR for the overdetermined case: [x' y'] = [x y 1] * X.
	var x mat.Dense
	if err := x.Solve(a, b); err != nil {
		return AffineMatrix{}, false
	}

	m := AffineMatrix{
		A: x.At(0, 0), B: x.At(1, 0),
		C: x.At(0, 1), D: x.At(1, 1),
	}
	m.Tx = x.At(2, 0) - m.A*c.X - m.B*c.Y
	m.Ty = x.At(2, 1) - m.C*c.X - m.D*c.Y
	return m, true
}

// Collinear reports whether points lie on a single line (or coincide), using
// the determinant of their 2x2 scatter matrix relative to its trace.
func Collinear(points []Point) bool {
	if len(points) < 3 {
		return true
	}
	c := Centroid(points)
	var sxx, sxy, syy float64
	for _, p := range points {
		dx, dy := p.X-c.X, p.Y-c.Y
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	trace := sxx + syy
	if trace < degenerateSpread {
		return true
	}
	return (sxx*syy-sxy*sxy)/(trace*trace) < degenerateSpread
}
