package ransac

import "math/rand"

// localOptimization refines a new best minimal model following algorithms 2
// and 3 of Lebeda et al. It returns the best of the input and every model it
// evaluated, so the returned score never exceeds minimalScore.
//
// The random stream is re-seeded from the configured seed on every call.
// Successive calls therefore replay the same draws, which keeps runs
// reproducible.
func (e *Estimator[M]) localOptimization(solver Solver[M], minimalModel M, minimalScore float64) (M, float64) {
	refinedModel := minimalModel
	refinedScore := minimalScore

	// minNonMinSampleSize is the smallest sample the non-minimal solver can
	// use, e.g. 4 for calibrated absolute pose whose minimal sample is 3.
	numData := solver.NumData()
	minNonMinSampleSize := solver.NonMinimalSampleSize()
	if minNonMinSampleSize > numData {
		return refinedModel, refinedScore
	}

	opts := e.opts
	sqInThresh := opts.SquaredInlierThreshold
	threshMult := opts.ThresholdMultiplier

	update := func(score float64, model M) {
		if score < refinedScore {
			refinedScore = score
			refinedModel = model
		}
	}

	rng := rand.New(rand.NewSource(int64(opts.RandomSeed)))

	// Least squares polish of the minimal model under a relaxed threshold,
	// scored under the strict one.
	initModel := minimalModel
	e.leastSquaresFit(solver, sqInThresh*threshMult, rng, &initModel)
	update(ScoreModel(solver, initModel, sqInThresh), initModel)

	inliersBase := CollectInliers(solver, initModel, sqInThresh)

	nonMinSampleSize := max(minNonMinSampleSize,
		min(minNonMinSampleSize*opts.NonMinSampleMultiplier, len(inliersBase)/2))

	threshUpdate := (threshMult - 1.0) * sqInThresh / float64(opts.NumLSQIterations-1)

	sample := make([]int, 0, len(inliersBase))
	for r := 0; r < opts.NumLOSteps; r++ {
		sample = append(sample[:0], inliersBase...)
		sample = ShuffleAndTruncate(nonMinSampleSize, rng, sample)

		nonMinModel, ok := solver.NonMinimalSolver(sample)
		if !ok {
			continue
		}
		update(ScoreModel(solver, nonMinModel, sqInThresh), nonMinModel)

		e.leastSquaresFit(solver, sqInThresh, rng, &nonMinModel)

		// Anneal from the relaxed threshold down to the strict one.
		thresh := threshMult * sqInThresh
		for i := 0; i < opts.NumLSQIterations; i++ {
			e.leastSquaresFit(solver, thresh, rng, &nonMinModel)
			update(ScoreModel(solver, nonMinModel, sqInThresh), nonMinModel)
			thresh -= threshUpdate
		}
	}

	return refinedModel, refinedScore
}

// leastSquaresFit refits model to at most MinSampleMultiplicator * minimal
// sample size of its inliers under thresh. Failures are not reported; the
// solver leaves the model as it was.
func (e *Estimator[M]) leastSquaresFit(solver Solver[M], thresh float64, rng *rand.Rand, model *M) {
	lsqSampleSize := e.opts.MinSampleMultiplicator * solver.MinSampleSize()
	inliers := CollectInliers(solver, *model, thresh)
	lsqDataSize := min(lsqSampleSize, len(inliers))
	inliers = ShuffleAndTruncate(lsqDataSize, rng, inliers)
	solver.LeastSquares(inliers, model)
}
