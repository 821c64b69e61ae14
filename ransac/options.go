package ransac

import (
	"fmt"
	"math"
)

// Options holds the parameters shared by every sampling-based estimator.
type Options struct {
	MinIterations uint32 `yaml:"min_iterations" json:"min_iterations"`
	MaxIterations uint32 `yaml:"max_iterations" json:"max_iterations"`
	// Confidence is the probability of not missing the best model. The
	// stopping criterion works with the miss probability 1 - Confidence.
	Confidence float64 `yaml:"confidence" json:"confidence"`
	// SquaredInlierThreshold is in the same squared units as the solver's residual.
	SquaredInlierThreshold float64 `yaml:"squared_inlier_threshold" json:"squared_inlier_threshold"`
	RandomSeed             uint32  `yaml:"random_seed" json:"random_seed"`
}

// LOOptions extends Options with the local optimization schedule.
// See Lebeda et al., Fixing the Locally Optimized RANSAC, BMVC 2012, Table 1.
type LOOptions struct {
	Options `yaml:",inline"`

	NumLOSteps          int     `yaml:"num_lo_steps" json:"num_lo_steps"`
	ThresholdMultiplier float64 `yaml:"threshold_multiplier" json:"threshold_multiplier"`
	NumLSQIterations    int     `yaml:"num_lsq_iterations" json:"num_lsq_iterations"`
	// MinSampleMultiplicator caps least squares samples at
	// MinSampleMultiplicator * minimal sample size. 7 was found empirically
	// for epipolar geometry.
	MinSampleMultiplicator int `yaml:"min_sample_multiplicator" json:"min_sample_multiplicator"`
	// NonMinSampleMultiplier sizes the LO samples:
	// min(non_min_sample_size * NonMinSampleMultiplier, inliers / 2).
	NonMinSampleMultiplier int `yaml:"non_min_sample_multiplier" json:"non_min_sample_multiplier"`
}

// DefaultOptions returns the sampling defaults.
func DefaultOptions() Options {
	return Options{
		MinIterations:          100,
		MaxIterations:          10000,
		Confidence:             0.9999,
		SquaredInlierThreshold: 1.0,
		RandomSeed:             0,
	}
}

// DefaultLOOptions returns the sampling defaults plus the LO schedule
// recommended by Lebeda et al.
func DefaultLOOptions() LOOptions {
	return LOOptions{
		Options:                DefaultOptions(),
		NumLOSteps:             10,
		ThresholdMultiplier:    math.Sqrt2,
		NumLSQIterations:       4,
		MinSampleMultiplicator: 7,
		NonMinSampleMultiplier: 3,
	}
}

// Validate reports the first option that would make a run ill-defined.
func (o Options) Validate() error {
	if o.MinIterations > o.MaxIterations {
		return fmt.Errorf("%w: min_iterations (%d) exceeds max_iterations (%d)",
			ErrInvalidOptions, o.MinIterations, o.MaxIterations)
	}
	if !(o.Confidence > 0 && o.Confidence < 1) {
		return fmt.Errorf("%w: confidence must be in (0, 1), got %g", ErrInvalidOptions, o.Confidence)
	}
	if !(o.SquaredInlierThreshold >= 0) {
		return fmt.Errorf("%w: squared_inlier_threshold must be non-negative, got %g",
			ErrInvalidOptions, o.SquaredInlierThreshold)
	}
	return nil
}

// Validate checks the sampling options and the LO schedule.
// NumLSQIterations below 2 would divide by zero when computing the
// annealing step, so it is rejected here rather than at run time.
func (o LOOptions) Validate() error {
	if err := o.Options.Validate(); err != nil {
		return err
	}
	switch {
	case o.NumLOSteps < 0:
		return fmt.Errorf("%w: num_lo_steps must be >= 0, got %d", ErrInvalidOptions, o.NumLOSteps)
	case !(o.ThresholdMultiplier >= 1):
		return fmt.Errorf("%w: threshold_multiplier must be >= 1, got %g", ErrInvalidOptions, o.ThresholdMultiplier)
	case o.NumLSQIterations < 2:
		return fmt.Errorf("%w: num_lsq_iterations must be >= 2, got %d", ErrInvalidOptions, o.NumLSQIterations)
	case o.MinSampleMultiplicator < 1:
		return fmt.Errorf("%w: min_sample_multiplicator must be >= 1, got %d", ErrInvalidOptions, o.MinSampleMultiplicator)
	case o.NonMinSampleMultiplier < 1:
		return fmt.Errorf("%w: non_min_sample_multiplier must be >= 1, got %d", ErrInvalidOptions, o.NonMinSampleMultiplier)
	}
	return nil
}

// missProbability is the probability of missing the best model that the
// stopping criterion targets.
func (o Options) missProbability() float64 {
	return 1.0 - o.Confidence
}
