package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neomorfeo/rehome/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// Message is the JSON document published for each notification.
type Message struct {
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

// Publisher implements domain.EventPublisher with Redis PUBLISH on a single
// channel. Delivery is at most once; subscribers that are not connected miss
// the message.
type Publisher struct {
	client  redis.UniversalClient
	channel string
}

// NewPublisher creates a publisher writing to channel through client.
func NewPublisher(client redis.UniversalClient, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

// Publish encodes n and publishes it to the configured channel.
func (p *Publisher) Publish(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(Message{
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
	})
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.channel, err)
	}
	return nil
}

// Connect opens a client for addr and verifies it with PING.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return client, nil
}
