package appointments

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown doctors, appointments or visits.
	ErrNotFound = errors.New("appointments: not found")

	// ErrSlotTaken is returned when another active appointment already holds the slot.
	ErrSlotTaken = errors.New("appointments: slot already booked")

	// ErrAlreadyCancelled is returned when cancelling an appointment twice.
	ErrAlreadyCancelled = errors.New("appointments: appointment already cancelled")

	// ErrValidation marks malformed or missing input.
	ErrValidation = errors.New("appointments: validation failed")
)

// ValidationError describes which field was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError names the missing record. It matches ErrNotFound.
type NotFoundError struct {
	Kind string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v: %s %d", ErrNotFound, e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Describe is the user-facing form, e.g. "appointment 5 was not found".
func (e *NotFoundError) Describe() string {
	return fmt.Sprintf("%s %d was not found", e.Kind, e.ID)
}

func notFound(kind string, id int64) error {
	return &NotFoundError{Kind: kind, ID: id}
}
