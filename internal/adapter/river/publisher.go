package river

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/rehome/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// NotificationJobArgs carries a committed lifecycle change to the delivery
// worker. River serializes it as JSON into its job table, so the worker
// never needs to read the listing back.
type NotificationJobArgs struct {
	Type               string    `json:"type"`
	ListingID          string    `json:"listing_id"`
	OwnerID            string    `json:"owner_id"`
	ApplicationID      string    `json:"application_id,omitempty"`
	ApplicantID        string    `json:"applicant_id,omitempty"`
	ActorID            string    `json:"actor_id"`
	ModerationStatus   string    `json:"moderation_status"`
	AvailabilityStatus string    `json:"availability_status"`
	ApplicationStatus  string    `json:"application_status,omitempty"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (NotificationJobArgs) Kind() string { return "notification.emitted" }

// InsertOpts bounds delivery retries.
func (NotificationJobArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 5}
}

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
type Publisher struct {
	client *Client
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// Publish enqueues a notification as an async job in River.
func (p *Publisher) Publish(ctx context.Context, n domain.Notification) error {
	_, err := p.client.Insert(ctx, NotificationJobArgs{
		Type:               string(n.Type),
		ListingID:          n.ListingID,
		OwnerID:            n.OwnerID,
		ApplicationID:      n.ApplicationID,
		ApplicantID:        n.ApplicantID,
		ActorID:            n.ActorID,
		ModerationStatus:   string(n.ModerationStatus),
		AvailabilityStatus: string(n.AvailabilityStatus),
		ApplicationStatus:  string(n.ApplicationStatus),
		OccurredAt:         n.OccurredAt,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing notification job: %w", err)
	}
	return nil
}
