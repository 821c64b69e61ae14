package fitting

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/kwv/lomsac/geom"
	"github.com/kwv/lomsac/ransac"
	"github.com/kwv/lomsac/solver"
)

// Job is one estimation request: a GeoJSON dataset, the model kind to fit
// and optional estimator options.
type Job struct {
	ID      string            `json:"id,omitempty"`
	Kind    Kind              `json:"kind"`
	Data    json.RawMessage   `json:"data"`
	Options *ransac.LOOptions `json:"options,omitempty"`
}

// ParseJob decodes a job. Options given in the payload overlay defaults
// field by field.
func ParseJob(payload []byte, defaults ransac.LOOptions) (*Job, error) {
	opts := defaults
	job := &Job{Options: &opts}
	if err := json.Unmarshal(payload, job); err != nil {
		return nil, fmt.Errorf("decoding job: %w", err)
	}
	if job.Options == nil {
		job.Options = &opts
	}
	return job, nil
}

// Result is the outcome of one run.
type Result struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	// Model is null when no inliers were found.
	Model         json.RawMessage `json:"model"`
	NumInliers    int             `json:"num_inliers"`
	NumData       int             `json:"num_data"`
	NumIterations uint32          `json:"num_iterations"`
	// Score is the truncated squared-error sum, null when no model scored.
	Score         *float64  `json:"score"`
	InlierRatio   float64   `json:"inlier_ratio"`
	InlierIndices []int     `json:"inlier_indices"`
	DurationMS    float64   `json:"duration_ms"`
	CreatedAt     time.Time `json:"created_at"`
}

// Valid reports whether the run found a model with at least one inlier.
func (r *Result) Valid() bool {
	return r.NumInliers > 0
}

// Line decodes the model of a line result.
func (r *Result) Line() (solver.Line, bool) {
	var l solver.Line
	return l, r.Kind == KindLine && r.decodeModel(&l)
}

// Plane decodes the model of a plane result.
func (r *Result) Plane() (solver.Plane, bool) {
	var p solver.Plane
	return p, r.Kind == KindPlane && r.decodeModel(&p)
}

// Transform decodes the model of a rigid, similarity or affine result.
func (r *Result) Transform() (geom.AffineMatrix, bool) {
	var m geom.AffineMatrix
	return m, r.Kind.IsTransform() && r.decodeModel(&m)
}

func (r *Result) decodeModel(v any) bool {
	if !r.Valid() || len(r.Model) == 0 {
		return false
	}
	return json.Unmarshal(r.Model, v) == nil
}

// Summary is a one-line description for logs and plot headers.
func (r *Result) Summary() string {
	return fmt.Sprintf("%s %d/%d inliers, %d iterations", r.Kind, r.NumInliers, r.NumData, r.NumIterations)
}

// Run parses the job's dataset and fits it. Job options replace defaults
// when present, with their budgets capped at the defaults.
func Run(job *Job, defaults ransac.LOOptions) (*Result, error) {
	kind, err := ParseKind(string(job.Kind))
	if err != nil {
		return nil, err
	}
	ds, err := ParseDataset(kind, job.Data)
	if err != nil {
		return nil, err
	}

	opts := defaults
	if job.Options != nil {
		opts = LimitOptions(*job.Options, defaults)
	}

	res, err := Estimate(ds, opts)
	if err != nil {
		return nil, err
	}
	if job.ID != "" {
		res.ID = job.ID
	}
	return res, nil
}

// LimitOptions caps the iteration and local optimization budgets of opts at
// those of limits. A job may lower them but never raise them.
func LimitOptions(opts, limits ransac.LOOptions) ransac.LOOptions {
	opts.MaxIterations = min(opts.MaxIterations, limits.MaxIterations)
	opts.MinIterations = min(opts.MinIterations, limits.MinIterations, opts.MaxIterations)
	opts.NumLOSteps = min(opts.NumLOSteps, limits.NumLOSteps)
	opts.NumLSQIterations = min(opts.NumLSQIterations, limits.NumLSQIterations)
	opts.MinSampleMultiplicator = min(opts.MinSampleMultiplicator, limits.MinSampleMultiplicator)
	opts.NonMinSampleMultiplier = min(opts.NonMinSampleMultiplier, limits.NonMinSampleMultiplier)
	return opts
}

// Estimate fits the dataset with the solver for its kind.
func Estimate(ds *Dataset, opts ransac.LOOptions) (*Result, error) {
	start := time.Now()

	var (
		model any
		stats ransac.Statistics
		err   error
	)
	switch ds.Kind {
	case KindLine:
		model, stats, err = estimate[solver.Line](solver.NewLineSolver(ds.Points), opts)
	case KindPlane:
		model, stats, err = estimate[solver.Plane](solver.NewPlaneSolver(ds.Points3D), opts)
	case KindRigid:
		model, stats, err = estimate[geom.AffineMatrix](solver.NewRigidSolver(ds.Pairs), opts)
	case KindSimilarity:
		model, stats, err = estimate[geom.AffineMatrix](solver.NewSimilaritySolver(ds.Pairs), opts)
	case KindAffine:
		model, stats, err = estimate[geom.AffineMatrix](solver.NewAffineSolver(ds.Pairs), opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, ds.Kind)
	}
	if err != nil {
		return nil, err
	}

	res := &Result{
		ID:            uuid.New().String(),
		Kind:          ds.Kind,
		Model:         json.RawMessage("null"),
		NumInliers:    stats.BestNumInliers,
		NumData:       ds.Len(),
		NumIterations: stats.NumIterations,
		InlierRatio:   stats.InlierRatio,
		InlierIndices: stats.InlierIndices,
		DurationMS:    float64(time.Since(start).Microseconds()) / 1000,
		CreatedAt:     start.UTC(),
	}
	if !math.IsInf(stats.BestModelScore, 0) && !math.IsNaN(stats.BestModelScore) {
		score := stats.BestModelScore
		res.Score = &score
	}
	if res.Valid() {
		raw, err := json.Marshal(model)
		if err != nil {
			return nil, fmt.Errorf("encoding model: %w", err)
		}
		res.Model = raw
	}
	if res.InlierIndices == nil {
		res.InlierIndices = []int{}
	}
	return res, nil
}

func estimate[M any](s ransac.Solver[M], opts ransac.LOOptions) (M, ransac.Statistics, error) {
	e, err := ransac.NewEstimator[M](opts)
	if err != nil {
		var none M
		return none, ransac.Statistics{}, err
	}
	_, model, stats := e.Estimate(s)
	return model, stats, nil
}
