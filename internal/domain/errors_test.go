package domain_test

import (
	"errors"
	"testing"

	"github.com/neomorfeo/rehome/internal/domain"
)

func TestValidationError_Error(t *testing.T) {
	err := &domain.ValidationError{Fields: []domain.FieldError{
		{Field: "name", Message: "required"},
		{Field: "sex", Message: "unknown value"},
	}}
	want := "invalid input: name: required; sex: unknown value"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestAuthorizationError_Error(t *testing.T) {
	cases := []struct {
		err  *domain.AuthorizationError
		want string
	}{
		{&domain.AuthorizationError{ActorID: "u-1", Action: "moderate listing"}, `actor "u-1" may not moderate listing`},
		{&domain.AuthorizationError{Action: "create listing"}, "anonymous actor may not create listing"},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
	}
}

func TestDuplicateError_Error(t *testing.T) {
	err := &domain.DuplicateError{ListingID: "l-1", ApplicantID: "u-2"}
	want := `applicant "u-2" already applied to listing "l-1"`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestTransitionError_Error(t *testing.T) {
	err := &domain.TransitionError{
		Machine: domain.MachineAvailability,
		Event:   domain.EventApplicationSubmitted,
		Current: string(domain.AvailabilityAdopted),
	}
	want := `availability event "application_submitted" is not valid from state "adopted"`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestConflictKinds_MatchErrConflict(t *testing.T) {
	errs := []error{
		&domain.ConflictError{ListingID: "l-1", Reason: "not available"},
		&domain.TransitionError{Machine: domain.MachineModeration, Event: domain.EventApprove, Current: "approved"},
	}
	for _, err := range errs {
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("errors.Is(%v, ErrConflict) = false, want true", err)
		}
	}
	if errors.Is(domain.ErrVersionConflict, domain.ErrConflict) {
		t.Error("ErrVersionConflict must not be reported as a caller-facing conflict")
	}
}
