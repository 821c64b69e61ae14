package ransac

// Solver is the problem-specific collaborator of the estimator. It owns the
// data and knows how to fit models of type M from index samples.
//
// M must behave as a value: assigning it must produce an independent copy.
// The estimator keeps the accepted best model and the candidate under
// refinement in separate variables and relies on that to never corrupt the
// best model while refining a candidate.
type Solver[M any] interface {
	// MinSampleSize returns the size of a minimal sample, > 0.
	MinSampleSize() int
	// NonMinimalSampleSize returns the smallest sample NonMinimalSolver accepts.
	NonMinimalSampleSize() int
	// NumData returns the number of observations.
	NumData() int
	// MinimalSolver fits zero or more candidate models to a minimal sample of
	// distinct indices. Degenerate samples yield no candidates.
	MinimalSolver(sample []int) []M
	// NonMinimalSolver fits one model to a larger sample and reports success.
	NonMinimalSolver(sample []int) (M, bool)
	// LeastSquares refines model in place using the sampled observations. It
	// is best-effort: when it cannot improve the model it leaves it
	// unchanged or nearly so. It may receive empty samples.
	LeastSquares(sample []int, model *M)
	// EvaluateModelOnPoint returns the non-negative squared error of
	// observation i under model.
	EvaluateModelOnPoint(model M, i int) float64
}
