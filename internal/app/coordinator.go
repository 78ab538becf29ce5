package app

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/sethvargo/go-retry"

	"github.com/neomorfeo/rehome/internal/domain"
)

// plan inspects the freshly read listing and returns the write to make.
// It runs again from scratch when the write loses a version race.
type plan func(ctx context.Context, l domain.Listing) (domain.Mutation, error)

// transact runs a read-verify-write cycle against one listing. The write is
// conditional on the version that was read; a lost race is retried once and
// a second loss is reported as a ConflictError.
func (s *Service) transact(ctx context.Context, listingID string, p plan) (domain.Mutation, error) {
	var committed domain.Mutation

	backoff := retry.WithMaxRetries(1, retry.NewConstant(s.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		l, err := s.store.GetListing(ctx, listingID)
		if err != nil {
			return err
		}

		m, err := p(ctx, l)
		if err != nil {
			return err
		}
		m.ExpectedVersion = l.Version
		m.Listing.Version = l.Version + 1
		m.Listing.UpdatedAt = s.now()

		if err := s.store.Commit(ctx, m); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				s.logger.DebugContext(ctx, "version conflict, retrying",
					"listing_id", listingID,
					"expected_version", l.Version,
				)
				return retry.RetryableError(err)
			}
			return err
		}
		committed = m
		return nil
	})
	if errors.Is(err, domain.ErrVersionConflict) {
		return domain.Mutation{}, &domain.ConflictError{
			ListingID: listingID,
			Reason:    "listing was modified concurrently",
		}
	}
	if err != nil {
		return domain.Mutation{}, err
	}
	return committed, nil
}

// ApplyToListing submits an application on behalf of actorID and moves the
// listing under review in the same write.
func (s *Service) ApplyToListing(ctx context.Context, actorID, listingID, message string) (domain.Application, error) {
	if utf8.RuneCountInString(message) > domain.MaxMessageLength {
		return domain.Application{}, &domain.ValidationError{Fields: []domain.FieldError{
			{Field: "message", Message: fmt.Sprintf("must be at most %d characters", domain.MaxMessageLength)},
		}}
	}

	var app domain.Application
	m, err := s.transact(ctx, listingID, func(ctx context.Context, l domain.Listing) (domain.Mutation, error) {
		if !s.can(ctx, actorID, domain.RoleApplicant, domain.Resource{Listing: &l}) {
			return domain.Mutation{}, denied(actorID, "apply to listing "+l.ID)
		}

		existing, err := s.store.ListApplications(ctx, domain.ApplicationFilter{ListingID: l.ID, ApplicantID: actorID})
		if err != nil {
			return domain.Mutation{}, err
		}
		for _, a := range existing {
			if a.Status != domain.ApplicationWithdrawn {
				return domain.Mutation{}, &domain.DuplicateError{ListingID: l.ID, ApplicantID: actorID}
			}
		}

		if !l.Discoverable() {
			return domain.Mutation{}, &domain.ConflictError{
				ListingID: l.ID,
				Reason:    fmt.Sprintf("listing is not open for applications (moderation %s, availability %s)", l.ModerationStatus, l.AvailabilityStatus),
			}
		}
		next, err := s.validator.Apply(ctx, domain.MachineAvailability, string(l.AvailabilityStatus), domain.EventApplicationSubmitted)
		if err != nil {
			return domain.Mutation{}, err
		}

		id, err := generateID()
		if err != nil {
			return domain.Mutation{}, fmt.Errorf("generating application id: %w", err)
		}
		app = domain.NewApplication(id, l.ID, actorID, message, s.now())

		l.AvailabilityStatus = domain.AvailabilityStatus(next)
		return domain.Mutation{Listing: l, Insert: []domain.Application{app}}, nil
	})
	if err != nil {
		return domain.Application{}, err
	}

	s.notify(ctx, domain.ApplicationNotification(domain.NotifyApplicationSubmitted, m.Listing, app, actorID, app.AppliedAt))
	return app, nil
}

// DecideApplication records an owner or moderator decision. Approval adopts
// the listing and rejects every other active application in the same write.
// Rejecting the last active application puts the listing back on offer.
func (s *Service) DecideApplication(ctx context.Context, actorID, listingID, applicationID string, decision domain.Decision) (domain.Application, error) {
	event, ok := decision.Event()
	if !ok {
		return domain.Application{}, &domain.ValidationError{Fields: []domain.FieldError{
			{Field: "decision", Message: "must be one of reviewing, approved, rejected"},
		}}
	}

	var decided domain.Application
	m, err := s.transact(ctx, listingID, func(ctx context.Context, l domain.Listing) (domain.Mutation, error) {
		if !s.ownerOrModerator(ctx, actorID, &l) {
			return domain.Mutation{}, denied(actorID, "decide applications on listing "+l.ID)
		}
		if l.AvailabilityStatus == domain.AvailabilityAdopted {
			return domain.Mutation{}, &domain.ConflictError{ListingID: l.ID, Reason: "listing has already been adopted"}
		}

		app, err := s.store.GetApplication(ctx, l.ID, applicationID)
		if err != nil {
			return domain.Mutation{}, err
		}
		status, err := s.validator.Apply(ctx, domain.MachineApplication, string(app.Status), event)
		if err != nil {
			return domain.Mutation{}, err
		}

		now := s.now()
		app.Status = domain.ApplicationStatus(status)
		if decision != domain.DecisionReviewing {
			app.DecidedAt = now
			app.DeciderID = actorID
		}
		decided = app
		m := domain.Mutation{Update: []domain.Application{app}}

		others, err := s.otherActive(ctx, l.ID, app.ID)
		if err != nil {
			return domain.Mutation{}, err
		}

		switch decision {
		case domain.DecisionApproved:
			next, err := s.validator.Apply(ctx, domain.MachineAvailability, string(l.AvailabilityStatus), domain.EventApplicationApproved)
			if err != nil {
				return domain.Mutation{}, err
			}
			l.AvailabilityStatus = domain.AvailabilityStatus(next)
			l.AdopterID = app.ApplicantID
			l.AdoptedAt = now
			for _, o := range others {
				o.Status = domain.ApplicationRejected
				o.DecidedAt = now
				o.DeciderID = actorID
				m.Update = append(m.Update, o)
			}
		case domain.DecisionRejected:
			if err := s.release(ctx, &l, others); err != nil {
				return domain.Mutation{}, err
			}
		}

		m.Listing = l
		return m, nil
	})
	if err != nil {
		return domain.Application{}, err
	}

	for _, a := range m.Update {
		s.notify(ctx, domain.ApplicationNotification(domain.NotifyApplicationDecided, m.Listing, a, actorID, m.Listing.UpdatedAt))
	}
	return decided, nil
}

// WithdrawApplication lets an applicant cancel an application that has not
// been decided yet.
func (s *Service) WithdrawApplication(ctx context.Context, actorID, listingID, applicationID string) (domain.Application, error) {
	var withdrawn domain.Application
	m, err := s.transact(ctx, listingID, func(ctx context.Context, l domain.Listing) (domain.Mutation, error) {
		app, err := s.store.GetApplication(ctx, l.ID, applicationID)
		if err != nil {
			return domain.Mutation{}, err
		}
		if !s.can(ctx, actorID, domain.RoleApplicant, domain.Resource{Listing: &l, Application: &app}) {
			return domain.Mutation{}, denied(actorID, "withdraw application "+app.ID)
		}
		status, err := s.validator.Apply(ctx, domain.MachineApplication, string(app.Status), domain.EventWithdraw)
		if err != nil {
			return domain.Mutation{}, err
		}
		app.Status = domain.ApplicationStatus(status)
		app.DecidedAt = s.now()
		app.DeciderID = actorID
		withdrawn = app

		others, err := s.otherActive(ctx, l.ID, app.ID)
		if err != nil {
			return domain.Mutation{}, err
		}
		if err := s.release(ctx, &l, others); err != nil {
			return domain.Mutation{}, err
		}
		return domain.Mutation{Listing: l, Update: []domain.Application{app}}, nil
	})
	if err != nil {
		return domain.Application{}, err
	}

	s.notify(ctx, domain.ApplicationNotification(domain.NotifyApplicationWithdrawn, m.Listing, withdrawn, actorID, withdrawn.DecidedAt))
	return withdrawn, nil
}

// otherActive returns the active applications on a listing except the one named.
func (s *Service) otherActive(ctx context.Context, listingID, exceptID string) ([]domain.Application, error) {
	active, err := s.store.ListApplications(ctx, domain.ApplicationFilter{ListingID: listingID, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	others := active[:0]
	for _, a := range active {
		if a.ID != exceptID {
			others = append(others, a)
		}
	}
	return others, nil
}

// release returns a listing under review to available once no active
// application is left on it.
func (s *Service) release(ctx context.Context, l *domain.Listing, others []domain.Application) error {
	if len(others) > 0 || l.AvailabilityStatus != domain.AvailabilityUnderReview {
		return nil
	}
	next, err := s.validator.Apply(ctx, domain.MachineAvailability, string(l.AvailabilityStatus), domain.EventApplicationReleased)
	if err != nil {
		return err
	}
	l.AvailabilityStatus = domain.AvailabilityStatus(next)
	return nil
}
