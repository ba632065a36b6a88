package ml

import (
	"errors"
	"fmt"
)

var (
	// ErrModelUnavailable means the artifact could not be located or loaded.
	// It is terminal for the process: no reload is attempted.
	ErrModelUnavailable = errors.New("model unavailable")

	ErrSchemaMismatch = errors.New("schema mismatch")
	ErrInferenceError = errors.New("inference error")
)

// SchemaMismatchError reports a feature row whose columns differ from the ones
// the classifier was fit on. It matches both ErrSchemaMismatch and ErrInferenceError.
type SchemaMismatchError struct {
	Expected int
	Got      int
	Index    int
	Want     string
	Have     string
}

func (e *SchemaMismatchError) Error() string {
	if e.Expected != e.Got {
		return fmt.Sprintf("schema mismatch: expected %d columns, got %d", e.Expected, e.Got)
	}
	return fmt.Sprintf("schema mismatch: column %d is %q, expected %q", e.Index, e.Have, e.Want)
}

func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch || target == ErrInferenceError
}
