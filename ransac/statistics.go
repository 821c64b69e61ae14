package ransac

import "math"

// Statistics is populated by a single Estimate call and handed to the
// caller; the estimator keeps no reference to it afterwards.
type Statistics struct {
	NumIterations  uint32
	BestNumInliers int
	// BestModelScore is the MSAC score of the returned model, lower is
	// better. It stays +Inf when no model was found.
	BestModelScore float64
	InlierRatio    float64
	// InlierIndices lists the inliers of the returned model in ascending order.
	InlierIndices []int
}

// newStatistics returns the neutral statistics of a run that found nothing.
func newStatistics() Statistics {
	return Statistics{
		NumIterations:  0,
		BestNumInliers: 0,
		BestModelScore: math.Inf(1),
		InlierRatio:    0,
		InlierIndices:  []int{},
	}
}

// Found reports whether the run produced a model worth trusting.
func (s Statistics) Found() bool {
	return s.BestNumInliers > 0
}
