package ml

import "errors"

var (
	ErrMalformedInput    = errors.New("malformed input")
	ErrInvalidRange      = errors.New("invalid range")
	ErrUnknownCategory   = errors.New("unknown category")
	ErrDegenerateFeature = errors.New("degenerate feature")
	ErrVersionMismatch   = errors.New("feature version mismatch")
)

// IsValidation reports whether err was caused by the caller's input rather
// than by the model or its artifacts.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMalformedInput) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrUnknownCategory)
}
