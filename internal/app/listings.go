package app

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/neomorfeo/rehome/internal/domain"
)

// MaxModerationNoteLength bounds the note a moderator attaches to a decision.
const MaxModerationNoteLength = 1000

// CreateListing validates attrs and stores a new listing owned by actorID.
func (s *Service) CreateListing(ctx context.Context, actorID string, attrs domain.ListingAttributes) (domain.Listing, error) {
	if !s.can(ctx, actorID, domain.RoleNone, domain.Resource{}) {
		return domain.Listing{}, denied(actorID, "create listings")
	}
	if err := attrs.Validate(); err != nil {
		return domain.Listing{}, err
	}

	id, err := generateID()
	if err != nil {
		return domain.Listing{}, fmt.Errorf("generating listing id: %w", err)
	}

	l := domain.NewListing(id, actorID, attrs, s.policy, s.now())
	if err := s.store.CreateListing(ctx, l); err != nil {
		return domain.Listing{}, err
	}

	s.logger.InfoContext(ctx, "listing created",
		"listing_id", l.ID,
		"actor_id", actorID,
		"moderation_status", string(l.ModerationStatus),
	)
	s.notify(ctx, domain.ListingNotification(domain.NotifyListingCreated, l, actorID, l.CreatedAt))
	return l, nil
}

// GetListing returns a listing if actorID may see it. Discoverable listings
// are public; anything else is visible to its owner, moderators, and actors
// holding an application on it. Everyone else gets ErrListingNotFound.
func (s *Service) GetListing(ctx context.Context, actorID, id string) (domain.Listing, error) {
	l, err := s.store.GetListing(ctx, id)
	if err != nil {
		return domain.Listing{}, err
	}
	if l.Discoverable() || s.ownerOrModerator(ctx, actorID, &l) {
		return l, nil
	}
	if actorID != "" {
		apps, err := s.store.ListApplications(ctx, domain.ApplicationFilter{ListingID: l.ID, ApplicantID: actorID})
		if err != nil {
			return domain.Listing{}, err
		}
		if len(apps) > 0 {
			return l, nil
		}
	}
	return domain.Listing{}, fmt.Errorf("%w: %s", domain.ErrListingNotFound, id)
}

// DiscoveryFilter narrows the public listing search.
type DiscoveryFilter struct {
	Species  string
	Location string
}

// ListDiscoverableListings returns approved, available listings, newest first.
func (s *Service) ListDiscoverableListings(ctx context.Context, filter DiscoveryFilter, page Page) ([]domain.Listing, error) {
	page = page.normalize()
	approved := domain.ModerationApproved
	available := domain.AvailabilityAvailable
	return s.store.ListListings(ctx, domain.ListingFilter{
		Moderation:   &approved,
		Availability: &available,
		Species:      strings.TrimSpace(filter.Species),
		Location:     strings.TrimSpace(filter.Location),
		Limit:        page.Limit,
		Offset:       page.Offset,
	})
}

// ListOwnListings returns every listing owned by actorID in any state.
func (s *Service) ListOwnListings(ctx context.Context, actorID string, page Page) ([]domain.Listing, error) {
	if !s.can(ctx, actorID, domain.RoleNone, domain.Resource{}) {
		return nil, denied(actorID, "list own listings")
	}
	page = page.normalize()
	return s.store.ListListings(ctx, domain.ListingFilter{
		OwnerID: actorID,
		Limit:   page.Limit,
		Offset:  page.Offset,
	})
}

// ListModerationQueue returns listings awaiting moderation, oldest first.
func (s *Service) ListModerationQueue(ctx context.Context, actorID string, page Page) ([]domain.Listing, error) {
	if !s.can(ctx, actorID, domain.RoleModerator, domain.Resource{}) {
		return nil, denied(actorID, "view the moderation queue")
	}
	page = page.normalize()
	pending := domain.ModerationPending
	return s.store.ListListings(ctx, domain.ListingFilter{
		Moderation:  &pending,
		OldestFirst: true,
		Limit:       page.Limit,
		Offset:      page.Offset,
	})
}

// EditListing applies whitelisted attribute changes. A listing that had
// already been moderated goes back to pending and leaves discovery until a
// moderator looks at it again.
func (s *Service) EditListing(ctx context.Context, actorID, id string, edit domain.ListingEdit) (domain.Listing, error) {
	if edit.Empty() {
		return domain.Listing{}, &domain.ValidationError{Fields: []domain.FieldError{
			{Field: "body", Message: "at least one attribute must be provided"},
		}}
	}

	m, err := s.transact(ctx, id, func(ctx context.Context, l domain.Listing) (domain.Mutation, error) {
		if !s.can(ctx, actorID, domain.RoleOwner, domain.Resource{Listing: &l}) {
			return domain.Mutation{}, denied(actorID, "edit listing "+l.ID)
		}
		if l.AvailabilityStatus == domain.AvailabilityAdopted {
			return domain.Mutation{}, &domain.ConflictError{ListingID: l.ID, Reason: "adopted listings cannot be edited"}
		}

		attrs := edit.ApplyTo(l.ListingAttributes)
		if err := attrs.Validate(); err != nil {
			return domain.Mutation{}, err
		}
		l.ListingAttributes = attrs

		if l.ModerationStatus != domain.ModerationPending {
			next, err := s.validator.Apply(ctx, domain.MachineModeration, string(l.ModerationStatus), domain.EventResubmit)
			if err != nil {
				return domain.Mutation{}, err
			}
			l.ModerationStatus = domain.ModerationStatus(next)
			l.ModerationNote = ""
			l.ModeratorID = ""
			l.ModeratedAt = time.Time{}
		}
		return domain.Mutation{Listing: l}, nil
	})
	if err != nil {
		return domain.Listing{}, err
	}

	s.notify(ctx, domain.ListingNotification(domain.NotifyListingEdited, m.Listing, actorID, m.Listing.UpdatedAt))
	return m.Listing, nil
}

// ModerateListing records a moderator's verdict on a pending listing.
func (s *Service) ModerateListing(ctx context.Context, actorID, id string, decision domain.ModerationStatus, note string) (domain.Listing, error) {
	var event domain.Event
	switch decision {
	case domain.ModerationApproved:
		event = domain.EventApprove
	case domain.ModerationRejected:
		event = domain.EventReject
	default:
		return domain.Listing{}, &domain.ValidationError{Fields: []domain.FieldError{
			{Field: "decision", Message: "must be one of approved, rejected"},
		}}
	}
	if utf8.RuneCountInString(note) > MaxModerationNoteLength {
		return domain.Listing{}, &domain.ValidationError{Fields: []domain.FieldError{
			{Field: "note", Message: fmt.Sprintf("must be at most %d characters", MaxModerationNoteLength)},
		}}
	}

	m, err := s.transact(ctx, id, func(ctx context.Context, l domain.Listing) (domain.Mutation, error) {
		if !s.can(ctx, actorID, domain.RoleModerator, domain.Resource{Listing: &l}) {
			return domain.Mutation{}, denied(actorID, "moderate listing "+l.ID)
		}
		next, err := s.validator.Apply(ctx, domain.MachineModeration, string(l.ModerationStatus), event)
		if err != nil {
			return domain.Mutation{}, err
		}
		l.ModerationStatus = domain.ModerationStatus(next)
		l.ModerationNote = note
		l.ModeratorID = actorID
		l.ModeratedAt = s.now()
		return domain.Mutation{Listing: l}, nil
	})
	if err != nil {
		return domain.Listing{}, err
	}

	s.logger.InfoContext(ctx, "listing moderated",
		"listing_id", id,
		"actor_id", actorID,
		"moderation_status", string(m.Listing.ModerationStatus),
	)
	s.notify(ctx, domain.ListingNotification(domain.NotifyListingModerated, m.Listing, actorID, m.Listing.ModeratedAt))
	return m.Listing, nil
}

// DeactivateListing takes a listing off offer. Active applications on it are
// rejected in the same write.
func (s *Service) DeactivateListing(ctx context.Context, actorID, id string) (domain.Listing, error) {
	m, err := s.transact(ctx, id, func(ctx context.Context, l domain.Listing) (domain.Mutation, error) {
		if !s.ownerOrModerator(ctx, actorID, &l) {
			return domain.Mutation{}, denied(actorID, "deactivate listing "+l.ID)
		}
		next, err := s.validator.Apply(ctx, domain.MachineAvailability, string(l.AvailabilityStatus), domain.EventDeactivate)
		if err != nil {
			return domain.Mutation{}, err
		}
		l.AvailabilityStatus = domain.AvailabilityStatus(next)

		active, err := s.store.ListApplications(ctx, domain.ApplicationFilter{ListingID: l.ID, ActiveOnly: true})
		if err != nil {
			return domain.Mutation{}, err
		}
		now := s.now()
		for i := range active {
			active[i].Status = domain.ApplicationRejected
			active[i].DecidedAt = now
			active[i].DeciderID = actorID
		}
		return domain.Mutation{Listing: l, Update: active}, nil
	})
	if err != nil {
		return domain.Listing{}, err
	}

	s.notify(ctx, domain.ListingNotification(domain.NotifyListingDeactivated, m.Listing, actorID, m.Listing.UpdatedAt))
	for _, a := range m.Update {
		s.notify(ctx, domain.ApplicationNotification(domain.NotifyApplicationDecided, m.Listing, a, actorID, a.DecidedAt))
	}
	return m.Listing, nil
}

// ReactivateListing puts an inactive listing back on offer.
func (s *Service) ReactivateListing(ctx context.Context, actorID, id string) (domain.Listing, error) {
	m, err := s.transact(ctx, id, func(ctx context.Context, l domain.Listing) (domain.Mutation, error) {
		if !s.ownerOrModerator(ctx, actorID, &l) {
			return domain.Mutation{}, denied(actorID, "reactivate listing "+l.ID)
		}
		next, err := s.validator.Apply(ctx, domain.MachineAvailability, string(l.AvailabilityStatus), domain.EventReactivate)
		if err != nil {
			return domain.Mutation{}, err
		}
		l.AvailabilityStatus = domain.AvailabilityStatus(next)
		return domain.Mutation{Listing: l}, nil
	})
	if err != nil {
		return domain.Listing{}, err
	}

	s.notify(ctx, domain.ListingNotification(domain.NotifyListingReactivated, m.Listing, actorID, m.Listing.UpdatedAt))
	return m.Listing, nil
}

// DeleteListing removes a listing together with its applications.
func (s *Service) DeleteListing(ctx context.Context, actorID, id string) error {
	l, err := s.store.GetListing(ctx, id)
	if err != nil {
		return err
	}
	if !s.ownerOrModerator(ctx, actorID, &l) {
		return denied(actorID, "delete listing "+l.ID)
	}
	if err := s.store.DeleteListing(ctx, id); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "listing deleted", "listing_id", id, "actor_id", actorID)
	s.notify(ctx, domain.ListingNotification(domain.NotifyListingDeleted, l, actorID, s.now()))
	return nil
}

// ListingStats returns application totals by status for one listing,
// computed from the ledger on every call.
func (s *Service) ListingStats(ctx context.Context, actorID, id string) (domain.ApplicationCounts, error) {
	l, err := s.store.GetListing(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.ownerOrModerator(ctx, actorID, &l) {
		return nil, denied(actorID, "view stats of listing "+l.ID)
	}
	apps, err := s.store.ListApplications(ctx, domain.ApplicationFilter{ListingID: l.ID})
	if err != nil {
		return nil, err
	}
	return domain.CountApplications(apps), nil
}

// ListApplicationsForListing returns every application on a listing, oldest first.
func (s *Service) ListApplicationsForListing(ctx context.Context, actorID, listingID string) ([]domain.Application, error) {
	l, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !s.ownerOrModerator(ctx, actorID, &l) {
		return nil, denied(actorID, "list applications on listing "+l.ID)
	}
	return s.store.ListApplications(ctx, domain.ApplicationFilter{ListingID: l.ID})
}

// ListApplicationsForApplicant returns every application made by applicantID.
// Only that applicant and moderators may look.
func (s *Service) ListApplicationsForApplicant(ctx context.Context, actorID, applicantID string) ([]domain.Application, error) {
	probe := domain.Resource{Application: &domain.Application{ApplicantID: applicantID}}
	if applicantID == "" || !(s.can(ctx, actorID, domain.RoleApplicant, probe) || s.can(ctx, actorID, domain.RoleModerator, probe)) {
		return nil, denied(actorID, "list applications of "+applicantID)
	}
	return s.store.ListApplications(ctx, domain.ApplicationFilter{ApplicantID: applicantID})
}
