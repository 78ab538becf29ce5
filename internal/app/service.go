package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/neomorfeo/rehome/internal/domain"
)

const (
	defaultRetryDelay    = 5 * time.Millisecond
	defaultNotifyTimeout = 5 * time.Second
	defaultPageSize      = 50
	maxPageSize          = 100
)

// Service runs the listing and application lifecycle. It holds no state of
// its own beyond in-flight notifications; every change goes through the Store.
type Service struct {
	store      domain.Store
	publisher  domain.EventPublisher
	validator  domain.TransitionValidator
	authorizer domain.Authorizer

	policy        domain.ModerationPolicy
	retryDelay    time.Duration
	notifyTimeout time.Duration
	now           func() time.Time
	logger        *slog.Logger

	notifications sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithModerationPolicy sets the moderation status new listings start in.
func WithModerationPolicy(p domain.ModerationPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithRetryDelay sets the pause before retrying a write that lost a version race.
func WithRetryDelay(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retryDelay = d
		}
	}
}

// WithNotifyTimeout bounds each notification publish.
func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a service with the given adapters.
func NewService(store domain.Store, publisher domain.EventPublisher, validator domain.TransitionValidator, authorizer domain.Authorizer, opts ...Option) *Service {
	s := &Service{
		store:         store,
		publisher:     publisher,
		validator:     validator,
		authorizer:    authorizer,
		policy:        domain.PolicyManualReview,
		retryDelay:    defaultRetryDelay,
		notifyTimeout: defaultNotifyTimeout,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wait blocks until every notification handed to the publisher has finished.
func (s *Service) Wait() {
	s.notifications.Wait()
}

// notify hands n to the publisher without blocking the caller. A failed
// publish is logged; the committed change stands.
func (s *Service) notify(ctx context.Context, n domain.Notification) {
	s.notifications.Add(1)
	go func() {
		defer s.notifications.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()

		if err := s.publisher.Publish(ctx, n); err != nil {
			s.logger.WarnContext(ctx, "notification not delivered",
				"type", string(n.Type),
				"listing_id", n.ListingID,
				"application_id", n.ApplicationID,
				"error", err,
			)
		}
	}()
}

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

func (s *Service) can(ctx context.Context, actorID string, role domain.Role, res domain.Resource) bool {
	return s.authorizer.CanAct(ctx, actorID, role, res)
}

func (s *Service) ownerOrModerator(ctx context.Context, actorID string, l *domain.Listing) bool {
	res := domain.Resource{Listing: l}
	return s.can(ctx, actorID, domain.RoleOwner, res) || s.can(ctx, actorID, domain.RoleModerator, res)
}

func denied(actorID, action string) error {
	return &domain.AuthorizationError{ActorID: actorID, Action: action}
}
