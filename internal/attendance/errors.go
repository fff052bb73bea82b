package attendance

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when a write violates a uniqueness constraint.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrStorage matches every *StorageError.
	ErrStorage = errors.New("storage failure")
	// ErrNotReady is returned while the database connection is still being established.
	ErrNotReady = errors.New("service starting up")
	// ErrUnavailable is returned after the database connection attempt failed.
	ErrUnavailable = errors.New("database unavailable")
	// ErrInactive is returned when a disabled student tries to check in.
	ErrInactive = errors.New("student is not active")
)

// FieldError names one violated constraint.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func (f FieldError) String() string {
	return f.Field + " (" + f.Rule + ")"
}

// ValidationError is returned when a record violates a field-level invariant.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.String())
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StorageError wraps an engine failure that has no more specific mapping.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Wrap turns a raw engine error into a *StorageError unless it already
// carries one of the package sentinels.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrNotFound, ErrDuplicateKey, ErrValidation, ErrStorage, ErrNotReady, ErrUnavailable} {
		if errors.Is(err, known) {
			return err
		}
	}
	return &StorageError{Op: op, Err: err}
}
