// Package memory provides a mutex-guarded in-memory domain.Store. It honours
// the same conditional-write contract as the SQLite store and is used for
// STORE=memory deployments and by the application test suites.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/neomorfeo/rehome/internal/domain"
)

// Compile-time check: Store implements domain.Store.
var _ domain.Store = (*Store)(nil)

// Store keeps listings and applications in maps. Values are copied in and
// out, so callers never share memory with the store.
type Store struct {
	mu           sync.RWMutex
	listings     map[string]domain.Listing
	applications map[string]domain.Application
	// byListing indexes application ids in insertion order.
	byListing map[string][]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		listings:     make(map[string]domain.Listing),
		applications: make(map[string]domain.Application),
		byListing:    make(map[string][]string),
	}
}

func (s *Store) CreateListing(_ context.Context, l domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.listings[l.ID]; exists {
		return &domain.ConflictError{ListingID: l.ID, Reason: "listing already exists"}
	}
	s.listings[l.ID] = l
	return nil
}

func (s *Store) GetListing(_ context.Context, id string) (domain.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrListingNotFound
	}
	return l, nil
}

func (s *Store) ListListings(_ context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
	s.mu.RLock()
	out := make([]domain.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		if matchListing(l, filter) {
			out = append(out, l)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		if filter.OldestFirst {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return []domain.Listing{}, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchListing(l domain.Listing, f domain.ListingFilter) bool {
	if f.OwnerID != "" && l.OwnerID != f.OwnerID {
		return false
	}
	if f.Moderation != nil && l.ModerationStatus != *f.Moderation {
		return false
	}
	if f.Availability != nil && l.AvailabilityStatus != *f.Availability {
		return false
	}
	if f.Species != "" && l.Species != f.Species {
		return false
	}
	if f.Location != "" && !strings.EqualFold(l.Location, f.Location) {
		return false
	}
	return true
}

func (s *Store) DeleteListing(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.listings[id]; !ok {
		return domain.ErrListingNotFound
	}
	for _, appID := range s.byListing[id] {
		delete(s.applications, appID)
	}
	delete(s.byListing, id)
	delete(s.listings, id)
	return nil
}

func (s *Store) GetApplication(_ context.Context, listingID, applicationID string) (domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.applications[applicationID]
	if !ok || a.ListingID != listingID {
		return domain.Application{}, domain.ErrApplicationNotFound
	}
	return a, nil
}

func (s *Store) ListApplications(_ context.Context, filter domain.ApplicationFilter) ([]domain.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	if filter.ListingID != "" {
		ids = s.byListing[filter.ListingID]
	} else {
		ids = make([]string, 0, len(s.applications))
		for id := range s.applications {
			ids = append(ids, id)
		}
	}

	out := make([]domain.Application, 0, len(ids))
	for _, id := range ids {
		a := s.applications[id]
		if filter.ApplicantID != "" && a.ApplicantID != filter.ApplicantID {
			continue
		}
		if filter.ActiveOnly && !a.Status.Active() {
			continue
		}
		out = append(out, a)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].AppliedAt.Equal(out[j].AppliedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].AppliedAt.Before(out[j].AppliedAt)
	})
	return out, nil
}

// Commit applies the mutation if the stored listing is still at m.ExpectedVersion.
func (s *Store) Commit(_ context.Context, m domain.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.listings[m.Listing.ID]
	if !ok {
		return domain.ErrListingNotFound
	}
	if current.Version != m.ExpectedVersion {
		return domain.ErrVersionConflict
	}

	// Validate every row before touching state so a failed commit writes nothing.
	inserting := make(map[string]bool, len(m.Insert))
	for _, a := range m.Insert {
		if a.ListingID != m.Listing.ID {
			return &domain.ConflictError{ListingID: m.Listing.ID, Reason: "application belongs to another listing"}
		}
		if _, exists := s.applications[a.ID]; exists {
			return &domain.ConflictError{ListingID: m.Listing.ID, Reason: "application already exists"}
		}
		if a.Status != domain.ApplicationWithdrawn {
			if inserting[a.ApplicantID] || s.hasLiveApplication(a.ListingID, a.ApplicantID) {
				return &domain.DuplicateError{ListingID: a.ListingID, ApplicantID: a.ApplicantID}
			}
			inserting[a.ApplicantID] = true
		}
	}
	for _, a := range m.Update {
		stored, ok := s.applications[a.ID]
		if !ok || stored.ListingID != m.Listing.ID {
			return domain.ErrApplicationNotFound
		}
	}
	if s.approvalsAfter(m) > 1 {
		return &domain.ConflictError{ListingID: m.Listing.ID, Reason: "listing already has an approved application"}
	}

	s.listings[m.Listing.ID] = m.Listing
	for _, a := range m.Insert {
		s.applications[a.ID] = a
		s.byListing[a.ListingID] = append(s.byListing[a.ListingID], a.ID)
	}
	for _, a := range m.Update {
		s.applications[a.ID] = a
	}
	return nil
}

// hasLiveApplication reports whether the applicant holds a non-withdrawn
// application on the listing. Caller must hold s.mu.
func (s *Store) hasLiveApplication(listingID, applicantID string) bool {
	for _, id := range s.byListing[listingID] {
		a := s.applications[id]
		if a.ApplicantID == applicantID && a.Status != domain.ApplicationWithdrawn {
			return true
		}
	}
	return false
}

// approvalsAfter counts approved applications the listing would hold once m
// is applied. Caller must hold s.mu.
func (s *Store) approvalsAfter(m domain.Mutation) int {
	status := make(map[string]domain.ApplicationStatus)
	for _, id := range s.byListing[m.Listing.ID] {
		status[id] = s.applications[id].Status
	}
	for _, a := range m.Insert {
		status[a.ID] = a.Status
	}
	for _, a := range m.Update {
		status[a.ID] = a.Status
	}

	n := 0
	for _, st := range status {
		if st == domain.ApplicationApproved {
			n++
		}
	}
	return n
}
