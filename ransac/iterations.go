package ransac

import "math"

// RequiredIterations computes the number of iterations needed so that, with
// probability 1 - missProbability, at least one all-inlier sample of size
// sampleSize is drawn when the inlier ratio is inlierRatio.
// The result is clamped to [minIterations, maxIterations]; it assumes
// minIterations <= maxIterations.
func RequiredIterations(inlierRatio, missProbability float64, sampleSize int, minIterations, maxIterations uint32) uint32 {
	if inlierRatio <= 0.0 {
		return maxIterations
	}
	if inlierRatio >= 1.0 {
		return minIterations
	}

	probNonInlierSample := 1.0 - math.Pow(inlierRatio, float64(sampleSize))
	logNumerator := math.Log(missProbability)
	logDenominator := math.Log(probNonInlierSample)

	numIters := math.Ceil(logNumerator/logDenominator + 0.5)

	// A denominator of log(1) = 0 means an all-inlier sample is numerically
	// impossible; that and any overflow saturate at maxIterations.
	var required uint32
	switch {
	case math.IsNaN(numIters), math.IsInf(numIters, -1), numIters >= float64(maxIterations):
		required = maxIterations
	case numIters <= 0:
		required = 0
	default:
		required = uint32(numIters)
	}

	required = min(required, maxIterations)
	required = max(minIterations, required)
	return required
}
