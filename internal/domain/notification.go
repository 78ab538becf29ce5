package domain

import "time"

// NotificationType names a successful lifecycle change.
type NotificationType string

const (
	NotifyListingCreated       NotificationType = "listing.created"
	NotifyListingEdited        NotificationType = "listing.edited"
	NotifyListingModerated     NotificationType = "listing.moderated"
	NotifyListingDeactivated   NotificationType = "listing.deactivated"
	NotifyListingReactivated   NotificationType = "listing.reactivated"
	NotifyListingDeleted       NotificationType = "listing.deleted"
	NotifyApplicationSubmitted NotificationType = "application.submitted"
	NotifyApplicationDecided   NotificationType = "application.decided"
	NotifyApplicationWithdrawn NotificationType = "application.withdrawn"
)

// Notification is a snapshot of a committed change, handed to the EventPublisher.
type Notification struct {
	Type               NotificationType
	ListingID          string
	OwnerID            string
	ApplicationID      string
	ApplicantID        string
	ActorID            string
	ModerationStatus   ModerationStatus
	AvailabilityStatus AvailabilityStatus
	ApplicationStatus  ApplicationStatus
	OccurredAt         time.Time
}

// ListingNotification builds a notification describing a listing change.
func ListingNotification(t NotificationType, l Listing, actorID string, at time.Time) Notification {
	return Notification{
		Type:               t,
		ListingID:          l.ID,
		OwnerID:            l.OwnerID,
		ActorID:            actorID,
		ModerationStatus:   l.ModerationStatus,
		AvailabilityStatus: l.AvailabilityStatus,
		OccurredAt:         at,
	}
}

// ApplicationNotification builds a notification describing an application change.
func ApplicationNotification(t NotificationType, l Listing, a Application, actorID string, at time.Time) Notification {
	n := ListingNotification(t, l, actorID, at)
	n.ApplicationID = a.ID
	n.ApplicantID = a.ApplicantID
	n.ApplicationStatus = a.Status
	return n
}
