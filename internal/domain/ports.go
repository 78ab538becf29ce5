package domain

import "context"

// Mutation is one conditional write against a listing and its applications.
// It is applied atomically, and only if the stored listing is still at
// ExpectedVersion; otherwise the Store returns ErrVersionConflict.
type Mutation struct {
	Listing         Listing
	ExpectedVersion int64
	Insert          []Application
	Update          []Application
}

// Store defines the persistence contract for listings and their applications.
type Store interface {
	CreateListing(ctx context.Context, listing Listing) error
	GetListing(ctx context.Context, id string) (Listing, error)
	ListListings(ctx context.Context, filter ListingFilter) ([]Listing, error)
	// DeleteListing removes the listing and every application against it.
	DeleteListing(ctx context.Context, id string) error

	GetApplication(ctx context.Context, listingID, applicationID string) (Application, error)
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]Application, error)

	Commit(ctx context.Context, m Mutation) error
}

// TransitionValidator checks an event against a state machine and returns
// the destination state, or a *TransitionError.
type TransitionValidator interface {
	Apply(ctx context.Context, machine Machine, current string, event Event) (string, error)
}

// EventPublisher defines the contract for emitting notifications.
type EventPublisher interface {
	Publish(ctx context.Context, n Notification) error
}

// Role is the capability an actor claims on a resource.
type Role string

const (
	RoleNone      Role = "none"
	RoleOwner     Role = "owner"
	RoleModerator Role = "moderator"
	RoleApplicant Role = "applicant"
)

// Resource is what a capability check is evaluated against. Either field may be nil.
type Resource struct {
	Listing     *Listing
	Application *Application
}

// Authorizer answers capability checks. It never inspects credentials;
// the actor id is already authenticated upstream.
type Authorizer interface {
	CanAct(ctx context.Context, actorID string, role Role, resource Resource) bool
}
