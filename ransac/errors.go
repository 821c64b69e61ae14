package ransac

import "errors"

// ErrInvalidOptions is returned by Validate and NewEstimator. Wrapped errors
// name the offending option; match with errors.Is.
var ErrInvalidOptions = errors.New("ransac: invalid options")
