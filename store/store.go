// Package store keeps the history of estimator runs in SQLite.
package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/kwv/lomsac/fitting"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by GetRun for an unknown id.
var ErrNotFound = errors.New("store: run not found")

// schema.sql creates the runs table and its indexes.
//
//go:embed schema.sql
var schemaSQL string

// Store is a run history backed by a SQLite file.
type Store struct {
	*sql.DB
}

// Run is one stored estimator run.
type Run struct {
	ID            string          `json:"id"`
	Kind          fitting.Kind    `json:"kind"`
	NumData       int             `json:"num_data"`
	NumInliers    int             `json:"num_inliers"`
	NumIterations uint32          `json:"num_iterations"`
	Score         *float64        `json:"score"`
	InlierRatio   float64         `json:"inlier_ratio"`
	Model         json.RawMessage `json:"model"`
	InlierIndices []int           `json:"inlier_indices"`
	DurationMS    float64         `json:"duration_ms"`
	CreatedAt     time.Time       `json:"created_at"`
}

// RunFromResult copies the stored fields of res.
func RunFromResult(res *fitting.Result) *Run {
	return &Run{
		ID:            res.ID,
		Kind:          res.Kind,
		NumData:       res.NumData,
		NumInliers:    res.NumInliers,
		NumIterations: res.NumIterations,
		Score:         res.Score,
		InlierRatio:   res.InlierRatio,
		Model:         res.Model,
		InlierIndices: res.InlierIndices,
		DurationMS:    res.DurationMS,
		CreatedAt:     res.CreatedAt,
	}
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("executing %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	log.Printf("initialized run store at %s", path)
	return &Store{db}, nil
}

// InsertRun stores r. An empty ID gets a new UUID and a zero CreatedAt
// becomes now; both are written back to r.
func (s *Store) InsertRun(r *Run) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	model := r.Model
	if len(model) == 0 {
		model = json.RawMessage("null")
	}
	indices := r.InlierIndices
	if indices == nil {
		indices = []int{}
	}
	indicesJSON, err := json.Marshal(indices)
	if err != nil {
		return fmt.Errorf("encoding inlier indices: %w", err)
	}

	var score sql.NullFloat64
	if r.Score != nil {
		score = sql.NullFloat64{Float64: *r.Score, Valid: true}
	}

	_, err = s.Exec(
		`INSERT INTO runs (
			id, kind, num_data, num_inliers, num_iterations, score,
			inlier_ratio, model_json, inlier_indices_json, duration_ms,
			created_at_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.Kind), r.NumData, r.NumInliers, int64(r.NumIterations), score,
		r.InlierRatio, string(model), string(indicesJSON), r.DurationMS,
		r.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", r.ID, err)
	}
	return nil
}

// RecordRun stores a finished result.
func (s *Store) RecordRun(res *fitting.Result) error {
	return s.InsertRun(RunFromResult(res))
}

const selectRuns = `SELECT id, kind, num_data, num_inliers, num_iterations, score,
	inlier_ratio, model_json, inlier_indices_json, duration_ms, created_at_unix_nanos
	FROM runs`

// GetRun returns the run with the given id.
func (s *Store) GetRun(id string) (*Run, error) {
	r, err := scanRun(s.QueryRow(selectRuns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// ListRuns returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.Query(selectRuns+` ORDER BY created_at_unix_nanos DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r           Run
		kind        string
		iterations  int64
		score       sql.NullFloat64
		model       string
		indicesJSON string
		createdAt   int64
	)
	err := row.Scan(&r.ID, &kind, &r.NumData, &r.NumInliers, &iterations, &score,
		&r.InlierRatio, &model, &indicesJSON, &r.DurationMS, &createdAt)
	if err != nil {
		return nil, err
	}

	r.Kind = fitting.Kind(kind)
	r.NumIterations = uint32(iterations)
	if score.Valid {
		v := score.Float64
		r.Score = &v
	}
	r.Model = json.RawMessage(model)
	if err := json.Unmarshal([]byte(indicesJSON), &r.InlierIndices); err != nil {
		return nil, fmt.Errorf("decoding inlier indices of %s: %w", r.ID, err)
	}
	r.CreatedAt = time.Unix(0, createdAt).UTC()
	return &r, nil
}
