package fitting

import "errors"

var (
	// ErrUnknownKind is returned for a model kind with no solver.
	ErrUnknownKind = errors.New("fitting: unknown model kind")
	// ErrEmptyDataset is returned when a dataset has no usable observations.
	ErrEmptyDataset = errors.New("fitting: dataset has no observations")
	// ErrInvalidGeometry is returned for a feature whose geometry does not
	// match the model kind.
	ErrInvalidGeometry = errors.New("fitting: invalid geometry for model kind")
	// ErrInvalidJobID is returned for a job ID that cannot name a result topic.
	ErrInvalidJobID = errors.New("fitting: invalid job id")
)
