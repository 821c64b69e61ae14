package solver

import (
	"github.com/golang/geo/r3"
	"github.com/kwv/lomsac/ransac"
	"gonum.org/v1/gonum/mat"
)

// Plane is Normal·p + D = 0 with a unit Normal.
type Plane struct {
	Normal r3.Vector `json:"normal"`
	D      float64   `json:"d"`
}

// Distance returns the signed distance of p to the plane.
func (pl Plane) Distance(p r3.Vector) float64 {
	return pl.Normal.Dot(p) + pl.D
}

// canonical orients the normal so its largest component is positive.
func (pl Plane) canonical() Plane {
	n := pl.Normal
	var major float64
	switch n.LargestComponent() {
	case r3.XAxis:
		major = n.X
	case r3.YAxis:
		major = n.Y
	default:
		major = n.Z
	}
	if major < 0 {
		return Plane{Normal: n.Mul(-1), D: -pl.D}
	}
	return pl
}

var _ ransac.Solver[Plane] = (*PlaneSolver)(nil)

// PlaneSolver fits planes to 3D points. Residuals are squared orthogonal
// distances.
type PlaneSolver struct {
	points []r3.Vector
}

// NewPlaneSolver wraps points without copying them.
func NewPlaneSolver(points []r3.Vector) *PlaneSolver {
	return &PlaneSolver{points: points}
}

func (s *PlaneSolver) MinSampleSize() int        { return 3 }
func (s *PlaneSolver) NonMinimalSampleSize() int { return 4 }
func (s *PlaneSolver) NumData() int              { return len(s.points) }

// MinimalSolver returns the plane through three points, or nothing when they
// are collinear.
func (s *PlaneSolver) MinimalSolver(sample []int) []Plane {
	if len(sample) < 3 {
		return nil
	}
	p := s.points[sample[0]]
	u := s.points[sample[1]].Sub(p)
	v := s.points[sample[2]].Sub(p)
	n := u.Cross(v)
	if norm := n.Norm(); norm == 0 || norm <= 1e-12*u.Norm()*v.Norm() {
		return nil
	}
	n = n.Normalize()
	return []Plane{Plane{Normal: n, D: -n.Dot(p)}.canonical()}
}

func (s *PlaneSolver) NonMinimalSolver(sample []int) (Plane, bool) {
	if len(sample) < s.NonMinimalSampleSize() {
		return Plane{}, false
	}
	return s.fit(sample)
}

func (s *PlaneSolver) LeastSquares(sample []int, model *Plane) {
	if len(sample) < s.MinSampleSize() {
		return
	}
	if pl, ok := s.fit(sample); ok {
		*model = pl
	}
}

func (s *PlaneSolver) EvaluateModelOnPoint(pl Plane, i int) float64 {
	d := pl.Distance(s.points[i])
	return d * d
}

// fit is total least squares over the 3x3 scatter matrix. Collinear samples
// leave two near-zero eigenvalues and are rejected.
func (s *PlaneSolver) fit(sample []int) (Plane, bool) {
	var c r3.Vector
	for _, i := range sample {
		c = c.Add(s.points[i])
	}
	c = c.Mul(1 / float64(len(sample)))

	scatter := mat.NewSymDense(3, nil)
	for _, i := range sample {
		d := s.points[i].Sub(c)
		v := []float64{d.X, d.Y, d.Z}
		for r := 0; r < 3; r++ {
			for k := r; k < 3; k++ {
				scatter.SetSym(r, k, scatter.At(r, k)+v[r]*v[k])
			}
		}
	}

	normal, vals, ok := smallestEigenvector(scatter)
	if !ok || vals[2] < 1e-12 || vals[1] < 1e-12*vals[2] {
		return Plane{}, false
	}
	n := r3.Vector{X: normal[0], Y: normal[1], Z: normal[2]}
	return Plane{Normal: n, D: -n.Dot(c)}.canonical(), true
}
