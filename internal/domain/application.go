package domain

import "time"

// ApplicationStatus is the lifecycle state of an adoption application.
type ApplicationStatus string

const (
	ApplicationPending   ApplicationStatus = "pending"
	ApplicationReviewing ApplicationStatus = "reviewing"
	ApplicationApproved  ApplicationStatus = "approved"
	ApplicationRejected  ApplicationStatus = "rejected"
	ApplicationWithdrawn ApplicationStatus = "withdrawn"
)

// Active reports whether the application still awaits a decision.
func (s ApplicationStatus) Active() bool {
	return s == ApplicationPending || s == ApplicationReviewing
}

// Decision is an owner or moderator verdict on an application.
type Decision string

const (
	DecisionReviewing Decision = "reviewing"
	DecisionApproved  Decision = "approved"
	DecisionRejected  Decision = "rejected"
)

// Event returns the application machine event that carries out the decision.
func (d Decision) Event() (Event, bool) {
	switch d {
	case DecisionReviewing:
		return EventReview, true
	case DecisionApproved:
		return EventApprove, true
	case DecisionRejected:
		return EventReject, true
	}
	return "", false
}

// MaxMessageLength bounds the free-text message attached to an application.
const MaxMessageLength = 2000

// Application is a request by an applicant to adopt a specific listing.
type Application struct {
	ID          string
	ListingID   string
	ApplicantID string
	Status      ApplicationStatus
	Message     string
	AppliedAt   time.Time
	DecidedAt   time.Time
	DeciderID   string
}

// NewApplication creates a pending application.
func NewApplication(id, listingID, applicantID, message string, now time.Time) Application {
	return Application{
		ID:          id,
		ListingID:   listingID,
		ApplicantID: applicantID,
		Status:      ApplicationPending,
		Message:     message,
		AppliedAt:   now,
	}
}

// ApplicationFilter selects applications from the ledger.
// At least one of ListingID or ApplicantID should be set.
type ApplicationFilter struct {
	ListingID   string
	ApplicantID string
	ActiveOnly  bool
}

// ApplicationCounts are per-status totals for one listing, derived from the ledger.
type ApplicationCounts map[ApplicationStatus]int

// CountApplications tallies applications by status.
func CountApplications(apps []Application) ApplicationCounts {
	counts := ApplicationCounts{
		ApplicationPending:   0,
		ApplicationReviewing: 0,
		ApplicationApproved:  0,
		ApplicationRejected:  0,
		ApplicationWithdrawn: 0,
	}
	for _, a := range apps {
		counts[a.Status]++
	}
	return counts
}
