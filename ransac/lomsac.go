// Package ransac implements LO-MSAC: RANSAC with MSAC (top-hat) scoring and
// the local optimization of Lebeda, Matas and Chum, "Fixing the Locally
// Optimized RANSAC", BMVC 2012.
//
// The estimator is generic over a model value type and a Solver that owns
// the data. It is single-threaded and fully determined by the seed in its
// options.
package ransac

// Estimator runs LO-MSAC with a fixed, validated set of options.
type Estimator[M any] struct {
	opts LOOptions

	// onBestUpdate observes every replacement of the global best score.
	onBestUpdate func(score float64)
}

// NewEstimator validates opts and returns an estimator for models of type M.
func NewEstimator[M any](opts LOOptions) (*Estimator[M], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Estimator[M]{opts: opts}, nil
}

// Options returns the options the estimator was built with.
func (e *Estimator[M]) Options() LOOptions {
	return e.opts
}

// Estimate finds the model that best explains the inliers of the solver's
// data. It returns the number of inliers, the best model and the run
// statistics.
//
// A zero inlier count means no usable model was found and the returned model
// is the zero value of M; callers must check it before trusting the model.
func (e *Estimator[M]) Estimate(solver Solver[M]) (int, M, Statistics) {
	return e.estimate(solver, func(numData int) Sampler {
		return NewUniformSampler(e.opts.RandomSeed, numData)
	})
}

// EstimateWithSampler is Estimate with a caller-supplied minimal sampler.
// The sampler is advanced once per iteration and never re-seeded.
func (e *Estimator[M]) EstimateWithSampler(solver Solver[M], sampler Sampler) (int, M, Statistics) {
	return e.estimate(solver, func(int) Sampler { return sampler })
}

// estimate runs the main loop. newSampler is only called once the data is
// known to hold a minimal sample.
func (e *Estimator[M]) estimate(solver Solver[M], newSampler func(numData int) Sampler) (int, M, Statistics) {
	var bestModel M
	stats := newStatistics()

	// No need to sample if there are not enough observations.
	minSampleSize := solver.MinSampleSize()
	numData := solver.NumData()
	if !validSampleSize(minSampleSize, numData) {
		Logf("ransac: minimal sample size %d invalid for %d observations, skipping", minSampleSize, numData)
		return 0, bestModel, stats
	}
	sampler := newSampler(numData)

	opts := e.opts
	maxNumIterations := max(opts.MaxIterations, opts.MinIterations)
	sqrInlierThresh := opts.SquaredInlierThreshold

	// The best minimal model drives when LO runs. It is tracked apart from
	// the refined global best: refined models never re-trigger LO.
	var bestMinimalModel M
	bestMinModelScore := stats.BestModelScore

	minimalSample := make([]int, minSampleSize)

	for stats.NumIterations = 0; stats.NumIterations < maxNumIterations; stats.NumIterations++ {
		sampler.Sample(minimalSample)

		estimatedModels := solver.MinimalSolver(minimalSample)
		if len(estimatedModels) == 0 {
			continue
		}

		bestLocalScore, bestLocalID := BestOf(solver, estimatedModels, sqrInlierThresh)
		if !(bestLocalScore < bestMinModelScore) {
			continue
		}

		bestMinModelScore = bestLocalScore
		bestMinimalModel = estimatedModels[bestLocalID]

		// LO returns the best of its input and everything it tried, so
		// refinedScore <= bestMinModelScore.
		refinedModel, refinedScore := e.localOptimization(solver, bestMinimalModel, bestMinModelScore)

		if refinedScore < stats.BestModelScore {
			stats.BestModelScore = refinedScore
			bestModel = refinedModel
			if e.onBestUpdate != nil {
				e.onBestUpdate(refinedScore)
			}
		}

		stats.InlierIndices = CollectInliers(solver, bestModel, sqrInlierThresh)
		stats.BestNumInliers = len(stats.InlierIndices)
		stats.InlierRatio = float64(stats.BestNumInliers) / float64(numData)

		// The budget only shrinks. A lower MSAC score can come with fewer
		// inliers, which must not buy the run more iterations.
		required := RequiredIterations(stats.InlierRatio, opts.missProbability(),
			minSampleSize, opts.MinIterations, opts.MaxIterations)
		maxNumIterations = min(maxNumIterations, required)
	}

	Logf("ransac: %d iterations, %d/%d inliers (ratio %.3f), score %.6g",
		stats.NumIterations, stats.BestNumInliers, numData, stats.InlierRatio, stats.BestModelScore)

	return stats.BestNumInliers, bestModel, stats
}

func validSampleSize(minSampleSize, numData int) bool {
	return minSampleSize > 0 && minSampleSize <= numData
}
