package ransac

import "math"

// PointCost is the MSAC (top-hat) cost of one observation. Unlike the 0/1
// RANSAC cost it keeps ranking models by fit quality among inliers.
func PointCost(squaredError, squaredThreshold float64) float64 {
	return math.Min(squaredError, squaredThreshold)
}

// ScoreModel sums the MSAC cost over every observation. Lower is better and
// the score lies in [0, NumData * squaredThreshold].
func ScoreModel[M any](solver Solver[M], model M, squaredThreshold float64) float64 {
	numData := solver.NumData()
	score := 0.0
	for i := 0; i < numData; i++ {
		score += PointCost(solver.EvaluateModelOnPoint(model, i), squaredThreshold)
	}
	return score
}

// InlierCount counts observations whose squared error is strictly below
// squaredThreshold.
func InlierCount[M any](solver Solver[M], model M, squaredThreshold float64) int {
	numData := solver.NumData()
	numInliers := 0
	for i := 0; i < numData; i++ {
		if solver.EvaluateModelOnPoint(model, i) < squaredThreshold {
			numInliers++
		}
	}
	return numInliers
}

// CollectInliers returns, in ascending order, the indices of the
// observations InlierCount would count.
func CollectInliers[M any](solver Solver[M], model M, squaredThreshold float64) []int {
	numData := solver.NumData()
	inliers := make([]int, 0, numData)
	for i := 0; i < numData; i++ {
		if solver.EvaluateModelOnPoint(model, i) < squaredThreshold {
			inliers = append(inliers, i)
		}
	}
	return inliers
}

// BestOf scores every candidate and returns the lowest score with its index.
// Ties keep the first candidate. With no candidates the score is +Inf.
func BestOf[M any](solver Solver[M], models []M, squaredThreshold float64) (float64, int) {
	bestScore := math.Inf(1)
	bestID := 0
	for m := range models {
		score := ScoreModel(solver, models[m], squaredThreshold)
		if score < bestScore {
			bestScore = score
			bestID = m
		}
	}
	return bestScore, bestID
}
