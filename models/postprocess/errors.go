package postprocess

import "github.com/pkg/errors"

var (
	// ErrMalformedTensor is returned when a tensor row is not exactly
	// ScoreOffset + nbClasses values wide. The whole invocation is aborted.
	ErrMalformedTensor = errors.New("malformed tensor")

	// ErrClassCatalogMismatch is returned when the class catalog length does
	// not match the number of score columns the model produces.
	ErrClassCatalogMismatch = errors.New("class catalog mismatch")

	// ErrInvalidThreshold is returned for thresholds outside [0, 1].
	ErrInvalidThreshold = errors.New("invalid threshold")
)
