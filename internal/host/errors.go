package host

import (
	"errors"
	"fmt"

	"artifyd/internal/imaging"
)

// validationError reports a request parameter outside its accepted range.
type validationError struct {
	field string
	msg   string
}

func (e validationError) Error() string { return e.field + ": " + e.msg }

// ErrValidation constructs a validation error for field.
func ErrValidation(field, format string, args ...any) error {
	return validationError{field: field, msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a parameter validation failure (422).
func IsValidation(err error) bool {
	var v validationError
	return errors.As(err, &v)
}

// ValidationField returns the offending field of a validation error, or "".
func ValidationField(err error) string {
	var v validationError
	if errors.As(err, &v) {
		return v.field
	}
	return ""
}

// IsBadImage reports whether err stems from a missing or undecodable source
// image (400).
func IsBadImage(err error) bool {
	return errors.Is(err, imaging.ErrEmpty) || errors.Is(err, imaging.ErrInvalid)
}

// generationError wraps a pipeline failure. The cause is logged, never
// shown to clients.
type generationError struct{ cause error }

func (e generationError) Error() string { return "generation failed: " + e.cause.Error() }
func (e generationError) Unwrap() error { return e.cause }

// IsGeneration reports whether err came from the pipeline itself (500).
func IsGeneration(err error) bool {
	var g generationError
	return errors.As(err, &g)
}
