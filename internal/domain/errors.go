package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrListingNotFound     = errors.New("listing not found")
	ErrApplicationNotFound = errors.New("application not found")

	// ErrConflict matches every ConflictError and TransitionError via errors.Is.
	ErrConflict = errors.New("conflict")

	// ErrVersionConflict is returned by a Store when a conditional write finds
	// the listing at a different version than expected. Nothing is written.
	ErrVersionConflict = errors.New("listing version changed concurrently")
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError is returned when caller input is malformed.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// AuthorizationError is returned when an actor lacks the capability for an action.
type AuthorizationError struct {
	ActorID string
	Action  string
}

func (e *AuthorizationError) Error() string {
	if e.ActorID == "" {
		return fmt.Sprintf("anonymous actor may not %s", e.Action)
	}
	return fmt.Sprintf("actor %q may not %s", e.ActorID, e.Action)
}

// DuplicateError is returned when an applicant already holds a non-withdrawn
// application for the listing.
type DuplicateError struct {
	ListingID   string
	ApplicantID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("applicant %q already applied to listing %q", e.ApplicantID, e.ListingID)
}

// ConflictError is returned when the listing's current state forbids the operation,
// or when concurrent writers kept winning the version check.
type ConflictError struct {
	ListingID string
	Reason    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("listing %q: %s", e.ListingID, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// TransitionError is returned when a state transition is not allowed.
type TransitionError struct {
	Machine Machine
	Event   Event
	Current string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s event %q is not valid from state %q", e.Machine, e.Event, e.Current)
}

func (e *TransitionError) Unwrap() error { return ErrConflict }
