package solver

import (
	"github.com/kwv/lomsac/geom"
	"github.com/kwv/lomsac/ransac"
)

// Correspondence pairs a source point with the target point it should map to.
type Correspondence struct {
	Source geom.Point `json:"source"`
	Target geom.Point `json:"target"`
}

// correspondences is the data and residual shared by the transform solvers.
type correspondences []Correspondence

func (c correspondences) split(sample []int) (src, dst []geom.Point) {
	src = make([]geom.Point, len(sample))
	dst = make([]geom.Point, len(sample))
	for k, i := range sample {
		src[k] = c[i].Source
		dst[k] = c[i].Target
	}
	return src, dst
}

// transferError is the squared distance between the transformed source and
// the target of pair i.
func (c correspondences) transferError(m geom.AffineMatrix, i int) float64 {
	return geom.SquaredDistance(geom.TransformPoint(c[i].Source, m), c[i].Target)
}

var (
	_ ransac.Solver[geom.AffineMatrix] = (*RigidSolver)(nil)
	_ ransac.Solver[geom.AffineMatrix] = (*SimilaritySolver)(nil)
	_ ransac.Solver[geom.AffineMatrix] = (*AffineSolver)(nil)
)

// RigidSolver estimates rotation + translation between correspondences.
type RigidSolver struct {
	pairs correspondences
}

// NewRigidSolver wraps pairs without copying them.
func NewRigidSolver(pairs []Correspondence) *RigidSolver {
	return &RigidSolver{pairs: pairs}
}

func (s *RigidSolver) MinSampleSize() int        { return 2 }
func (s *RigidSolver) NonMinimalSampleSize() int { return 3 }
func (s *RigidSolver) NumData() int              { return len(s.pairs) }

func (s *RigidSolver) MinimalSolver(sample []int) []geom.AffineMatrix {
	if m, ok := geom.FitRigid(s.pairs.split(sample)); ok {
		return []geom.AffineMatrix{m}
	}
	return nil
}

func (s *RigidSolver) NonMinimalSolver(sample []int) (geom.AffineMatrix, bool) {
	if len(sample) < s.NonMinimalSampleSize() {
		return geom.AffineMatrix{}, false
	}
	return geom.FitRigid(s.pairs.split(sample))
}

func (s *RigidSolver) LeastSquares(sample []int, model *geom.AffineMatrix) {
	if m, ok := geom.FitRigid(s.pairs.split(sample)); ok {
		*model = m
	}
}

func (s *RigidSolver) EvaluateModelOnPoint(m geom.AffineMatrix, i int) float64 {
	return s.pairs.transferError(m, i)
}

// SimilaritySolver estimates rotation, uniform scale and translation between
// correspondences.
type SimilaritySolver struct {
	pairs correspondences
}

// NewSimilaritySolver wraps pairs without copying them.
func NewSimilaritySolver(pairs []Correspondence) *SimilaritySolver {
	return &SimilaritySolver{pairs: pairs}
}

func (s *SimilaritySolver) MinSampleSize() int        { return 2 }
func (s *SimilaritySolver) NonMinimalSampleSize() int { return 3 }
func (s *SimilaritySolver) NumData() int              { return len(s.pairs) }

func (s *SimilaritySolver) MinimalSolver(sample []int) []geom.AffineMatrix {
	if m, ok := geom.FitSimilarity(s.pairs.split(sample)); ok {
		return []geom.AffineMatrix{m}
	}
	return nil
}

func (s *SimilaritySolver) NonMinimalSolver(sample []int) (geom.AffineMatrix, bool) {
	if len(sample) < s.NonMinimalSampleSize() {
		return geom.AffineMatrix{}, false
	}
	return geom.FitSimilarity(s.pairs.split(sample))
}

func (s *SimilaritySolver) LeastSquares(sample []int, model *geom.AffineMatrix) {
	if m, ok := geom.FitSimilarity(s.pairs.split(sample)); ok {
		*model = m
	}
}

func (s *SimilaritySolver) EvaluateModelOnPoint(m geom.AffineMatrix, i int) float64 {
	return s.pairs.transferError(m, i)
}

// AffineSolver estimates a full 2D affine transform between correspondences.
type AffineSolver struct {
	pairs correspondences
}

// NewAffineSolver wraps pairs without copying them.
func NewAffineSolver(pairs []Correspondence) *AffineSolver {
	return &AffineSolver{pairs: pairs}
}

func (s *AffineSolver) MinSampleSize() int        { return 3 }
func (s *AffineSolver) NonMinimalSampleSize() int { return 4 }
func (s *AffineSolver) NumData() int              { return len(s.pairs) }

// MinimalSolver returns nothing for collinear source points.
func (s *AffineSolver) MinimalSolver(sample []int) []geom.AffineMatrix {
	if m, ok := geom.FitAffine(s.pairs.split(sample)); ok {
		return []geom.AffineMatrix{m}
	}
	return nil
}

func (s *AffineSolver) NonMinimalSolver(sample []int) (geom.AffineMatrix, bool) {
	if len(sample) < s.NonMinimalSampleSize() {
		return geom.AffineMatrix{}, false
	}
	return geom.FitAffine(s.pairs.split(sample))
}

func (s *AffineSolver) LeastSquares(sample []int, model *geom.AffineMatrix) {
	if m, ok := geom.FitAffine(s.pairs.split(sample)); ok {
		*model = m
	}
}

func (s *AffineSolver) EvaluateModelOnPoint(m geom.AffineMatrix, i int) float64 {
	return s.pairs.transferError(m, i)
}
