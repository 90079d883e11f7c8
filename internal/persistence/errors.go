package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrConflict is returned when a write violates a unique constraint.
	ErrConflict = errors.New("persistence: unique constraint violated")
	// ErrConstraintViolation is returned for CHECK or foreign key failures.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
)
