package features

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCategory = errors.New("unknown category")
	ErrOutOfRange      = errors.New("value out of range")
	ErrInvalidField    = errors.New("invalid field")
)

// UnknownCategoryError reports a categorical value outside its enumeration.
type UnknownCategoryError struct {
	Attribute string
	Value     string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category %q for %s", e.Value, e.Attribute)
}

func (e *UnknownCategoryError) Unwrap() error { return ErrUnknownCategory }

type RangeError struct {
	Field string
	Value float64
	Min   float64
	Max   float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %g outside range [%g, %g]", e.Field, e.Value, e.Min, e.Max)
}

func (e *RangeError) Unwrap() error { return ErrOutOfRange }
