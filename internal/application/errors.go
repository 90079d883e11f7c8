package application

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrPastTime is returned when the requested slot starts before now.
	ErrPastTime = errors.New("application: requested time is in the past")
	// ErrUnknownProperty is returned when no property matches the slug.
	ErrUnknownProperty = errors.New("application: unknown property")
	// ErrUnknownLead is returned when a lead referenced by id does not exist.
	ErrUnknownLead = errors.New("application: unknown lead")
	// ErrDegraded is returned when a booking needs the external calendar and
	// it could not be read.
	ErrDegraded = errors.New("application: external calendar unavailable")
	// ErrConflict matches every *ConflictError through errors.Is.
	ErrConflict = errors.New("application: slot unavailable")
	// ErrStore marks failures of the relational store.
	ErrStore = errors.New("application: store error")
)

// ConflictError reports that the requested slot is taken. Suggestions holds
// up to three free slot starts after it.
type ConflictError struct {
	SlotStart   time.Time
	Suggestions []time.Time
}

func (e *ConflictError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("application: slot %s unavailable (%d suggestions)", e.SlotStart.UTC().Format(time.RFC3339), len(e.Suggestions))
}

// Is lets errors.Is(err, ErrConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// MirrorError is returned alongside a committed booking whose external
// calendar event could not be written. The booking stays pending.
type MirrorError struct {
	BookingID int64
	Err       error
}

func (e *MirrorError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("application: booking %d not mirrored: %v", e.BookingID, e.Err)
}

func (e *MirrorError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// storeError tags a repository failure with ErrStore, keeping the cause.
func storeError(err error) error {
	if err == nil || errors.Is(err, ErrStore) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStore, err)
}
