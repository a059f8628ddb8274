package vector

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch matches any *DimensionMismatchError via errors.Is.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrDuplicateID is returned by Insert when the id is already present.
	ErrDuplicateID = errors.New("duplicate record id")
	// ErrNotFound is returned when a record id is absent.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
	// ErrInvalidVector is returned when a cosine operand has zero magnitude.
	ErrInvalidVector = errors.New("invalid vector")
	// ErrInvalidRecord is returned for records without an id.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrUnknownMetric is returned for unsupported distance metrics.
	ErrUnknownMetric = errors.New("unknown distance metric")
)

// DimensionMismatchError reports a vector whose length differs from the
// index dimension.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Is lets errors.Is(err, ErrDimensionMismatch) match.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// InvalidDimensionError indicates an invalid configured dimension.
type InvalidDimensionError struct {
	Dimension int
}

func (e *InvalidDimensionError) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}
