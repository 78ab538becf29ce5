// Package storetest is a contract suite every domain.Store implementation must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/neomorfeo/rehome/internal/domain"
)

// Run executes the contract suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) domain.Store) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s domain.Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"GetListing_NotFound", testGetListingNotFound},
		{"ListListings_Filters", testListListingsFilters},
		{"ListListings_Pagination", testListListingsPagination},
		{"Commit_WritesListingAndApplications", testCommitWrites},
		{"Commit_VersionConflict", testCommitVersionConflict},
		{"Commit_DuplicateApplicant", testCommitDuplicate},
		{"Commit_WithdrawnDoesNotBlock", testCommitWithdrawnDoesNotBlock},
		{"Commit_UnknownApplication", testCommitUnknownApplication},
		{"ListApplications_Filters", testListApplications},
		{"GetApplication_WrongListing", testGetApplicationWrongListing},
		{"DeleteListing_Cascades", testDeleteCascades},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// seq spaces out application timestamps so ordering assertions are deterministic.
var seq atomic.Int64

// NewListing builds a listing created at base+offset minutes.
func NewListing(id, owner string, offset int) domain.Listing {
	attrs := domain.ListingAttributes{
		Name:      "Pet " + id,
		Species:   "cat",
		Sex:       "female",
		AgeMonths: 12,
		Location:  "Porto",
	}
	return domain.NewListing(id, owner, attrs, domain.PolicyManualReview, base.Add(time.Duration(offset)*time.Minute))
}

func mustCreate(t *testing.T, s domain.Store, l domain.Listing) {
	t.Helper()
	if err := s.CreateListing(context.Background(), l); err != nil {
		t.Fatalf("CreateListing(%s) failed: %v", l.ID, err)
	}
}

// submit commits a new pending application and returns the updated listing.
func submit(t *testing.T, s domain.Store, l domain.Listing, appID, applicant string) domain.Listing {
	t.Helper()
	next := l
	next.Version++
	next.AvailabilityStatus = domain.AvailabilityUnderReview
	app := domain.NewApplication(appID, l.ID, applicant, "hello", base.Add(time.Duration(seq.Add(1))*time.Second))
	if err := s.Commit(context.Background(), domain.Mutation{
		Listing:         next,
		ExpectedVersion: l.Version,
		Insert:          []domain.Application{app},
	}); err != nil {
		t.Fatalf("commit %s failed: %v", appID, err)
	}
	return next
}

func testCreateAndGet(t *testing.T, s domain.Store) {
	ctx := context.Background()
	l := NewListing("l-1", "owner-1", 0)
	l.Breed = "siamese"
	l.Description = "calm"
	mustCreate(t, s, l)

	got, err := s.GetListing(ctx, "l-1")
	if err != nil {
		t.Fatalf("GetListing failed: %v", err)
	}
	if got.OwnerID != "owner-1" {
		t.Errorf("OwnerID = %q, want %q", got.OwnerID, "owner-1")
	}
	if got.ListingAttributes != l.ListingAttributes {
		t.Errorf("attributes = %+v, want %+v", got.ListingAttributes, l.ListingAttributes)
	}
	if got.ModerationStatus != domain.ModerationPending {
		t.Errorf("ModerationStatus = %q, want %q", got.ModerationStatus, domain.ModerationPending)
	}
	if got.AvailabilityStatus != domain.AvailabilityAvailable {
		t.Errorf("AvailabilityStatus = %q, want %q", got.AvailabilityStatus, domain.AvailabilityAvailable)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}
	if !got.CreatedAt.Equal(l.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, l.CreatedAt)
	}
	if !got.ModeratedAt.IsZero() || !got.AdoptedAt.IsZero() {
		t.Error("unset timestamps should round-trip as zero")
	}
}

func testGetListingNotFound(t *testing.T, s domain.Store) {
	_, err := s.GetListing(context.Background(), "nonexistent")
	if !errors.Is(err, domain.ErrListingNotFound) {
		t.Errorf("expected ErrListingNotFound, got %v", err)
	}
}

func testListListingsFilters(t *testing.T, s domain.Store) {
	ctx := context.Background()

	a := NewListing("l-a", "owner-1", 0)
	b := NewListing("l-b", "owner-2", 1)
	b.ModerationStatus = domain.ModerationApproved
	c := NewListing("l-c", "owner-2", 2)
	c.ModerationStatus = domain.ModerationApproved
	c.Species = "dog"
	c.Location = "Lisbon"
	for _, l := range []domain.Listing{a, b, c} {
		mustCreate(t, s, l)
	}

	approved := domain.ModerationApproved
	available := domain.AvailabilityAvailable

	cases := []struct {
		name   string
		filter domain.ListingFilter
		want   []string
	}{
		{"all newest first", domain.ListingFilter{}, []string{"l-c", "l-b", "l-a"}},
		{"oldest first", domain.ListingFilter{OldestFirst: true}, []string{"l-a", "l-b", "l-c"}},
		{"owner", domain.ListingFilter{OwnerID: "owner-2"}, []string{"l-c", "l-b"}},
		{"discoverable", domain.ListingFilter{Moderation: &approved, Availability: &available}, []string{"l-c", "l-b"}},
		{"species", domain.ListingFilter{Species: "dog"}, []string{"l-c"}},
		{"location case-insensitive", domain.ListingFilter{Location: "lisbon"}, []string{"l-c"}},
	}

	for _, tc := range cases {
		got, err := s.ListListings(ctx, tc.filter)
		if err != nil {
			t.Fatalf("%s: ListListings failed: %v", tc.name, err)
		}
		if ids := listingIDs(got); fmt.Sprint(ids) != fmt.Sprint(tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, ids, tc.want)
		}
	}
}

func testListListingsPagination(t *testing.T, s domain.Store) {
	for i := range 5 {
		mustCreate(t, s, NewListing(fmt.Sprintf("l-%d", i), "owner-1", i))
	}

	got, err := s.ListListings(context.Background(), domain.ListingFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListListings failed: %v", err)
	}
	if ids := listingIDs(got); fmt.Sprint(ids) != fmt.Sprint([]string{"l-3", "l-2"}) {
		t.Errorf("got %v, want [l-3 l-2]", ids)
	}

	got, err = s.ListListings(context.Background(), domain.ListingFilter{Offset: 10})
	if err != nil {
		t.Fatalf("ListListings failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d listings past the end, want 0", len(got))
	}
}

func testCommitWrites(t *testing.T, s domain.Store) {
	ctx := context.Background()
	l := NewListing("l-1", "owner-1", 0)
	mustCreate(t, s, l)

	l = submit(t, s, l, "a-1", "applicant-1")

	got, err := s.GetListing(ctx, "l-1")
	if err != nil {
		t.Fatalf("GetListing failed: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}
	if got.AvailabilityStatus != domain.AvailabilityUnderReview {
		t.Errorf("AvailabilityStatus = %q, want %q", got.AvailabilityStatus, domain.AvailabilityUnderReview)
	}

	app, err := s.GetApplication(ctx, "l-1", "a-1")
	if err != nil {
		t.Fatalf("GetApplication failed: %v", err)
	}
	if app.Status != domain.ApplicationPending || app.ApplicantID != "applicant-1" || app.Message != "hello" {
		t.Errorf("application = %+v", app)
	}

	// Approve it: update the application and adopt the listing in one write.
	decided := base.Add(time.Hour)
	app.Status = domain.ApplicationApproved
	app.DecidedAt = decided
	app.DeciderID = "owner-1"
	next := l
	next.Version++
	next.AvailabilityStatus = domain.AvailabilityAdopted
	next.AdopterID = "applicant-1"
	next.AdoptedAt = decided
	if err := s.Commit(ctx, domain.Mutation{Listing: next, ExpectedVersion: l.Version, Update: []domain.Application{app}}); err != nil {
		t.Fatalf("approve commit failed: %v", err)
	}

	got, _ = s.GetListing(ctx, "l-1")
	if got.AdopterID != "applicant-1" || !got.AdoptedAt.Equal(decided) {
		t.Errorf("adoption not recorded: %+v", got)
	}
	app, _ = s.GetApplication(ctx, "l-1", "a-1")
	if app.Status != domain.ApplicationApproved || app.DeciderID != "owner-1" || !app.DecidedAt.Equal(decided) {
		t.Errorf("decision not recorded: %+v", app)
	}
}

func testCommitVersionConflict(t *testing.T, s domain.Store) {
	ctx := context.Background()
	l := NewListing("l-1", "owner-1", 0)
	mustCreate(t, s, l)

	stale := l
	submit(t, s, l, "a-1", "applicant-1")

	// A second writer still holding version 1 must lose and write nothing.
	next := stale
	next.Version++
	next.Name = "overwritten"
	err := s.Commit(ctx, domain.Mutation{
		Listing:         next,
		ExpectedVersion: stale.Version,
		Insert:          []domain.Application{domain.NewApplication("a-2", "l-1", "applicant-2", "", base)},
	})
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	got, _ := s.GetListing(ctx, "l-1")
	if got.Name == "overwritten" {
		t.Error("losing writer overwrote the listing")
	}
	if _, err := s.GetApplication(ctx, "l-1", "a-2"); !errors.Is(err, domain.ErrApplicationNotFound) {
		t.Errorf("losing writer inserted its application: %v", err)
	}
}

func testCommitDuplicate(t *testing.T, s domain.Store) {
	ctx := context.Background()
	l := NewListing("l-1", "owner-1", 0)
	mustCreate(t, s, l)
	l = submit(t, s, l, "a-1", "applicant-1")

	next := l
	next.Version++
	err := s.Commit(ctx, domain.Mutation{
		Listing:         next,
		ExpectedVersion: l.Version,
		Insert:          []domain.Application{domain.NewApplication("a-2", "l-1", "applicant-1", "", base)},
	})
	var dupErr *domain.DuplicateError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dupErr.ApplicantID != "applicant-1" || dupErr.ListingID != "l-1" {
		t.Errorf("DuplicateError = %+v", dupErr)
	}

	got, _ := s.GetListing(ctx, "l-1")
	if got.Version != l.Version {
		t.Errorf("Version = %d, want unchanged %d", got.Version, l.Version)
	}
}

func testCommitWithdrawnDoesNotBlock(t *testing.T, s domain.Store) {
	ctx := context.Background()
	l := NewListing("l-1", "owner-1", 0)
	mustCreate(t, s, l)
	l = submit(t, s, l, "a-1", "applicant-1")

	app, _ := s.GetApplication(ctx, "l-1", "a-1")
	app.Status = domain.ApplicationWithdrawn
	next := l
	next.Version++
	next.AvailabilityStatus = domain.AvailabilityAvailable
	if err := s.Commit(ctx, domain.Mutation{Listing: next, ExpectedVersion: l.Version, Update: []domain.Application{app}}); err != nil {
		t.Fatalf("withdraw commit failed: %v", err)
	}

	submit(t, s, next, "a-2", "applicant-1")
}

func testCommitUnknownApplication(t *testing.T, s domain.Store) {
	l := NewListing("l-1", "owner-1", 0)
	mustCreate(t, s, l)

	next := l
	next.Version++
	ghost := domain.NewApplication("ghost", "l-1", "applicant-1", "", base)
	err := s.Commit(context.Background(), domain.Mutation{Listing: next, ExpectedVersion: l.Version, Update: []domain.Application{ghost}})
	if !errors.Is(err, domain.ErrApplicationNotFound) {
		t.Errorf("expected ErrApplicationNotFound, got %v", err)
	}

	missing := NewListing("nope", "owner-1", 0)
	err = s.Commit(context.Background(), domain.Mutation{Listing: missing, ExpectedVersion: 1})
	if !errors.Is(err, domain.ErrListingNotFound) {
		t.Errorf("expected ErrListingNotFound, got %v", err)
	}
}

func testListApplications(t *testing.T, s domain.Store) {
	ctx := context.Background()
	l1 := NewListing("l-1", "owner-1", 0)
	l2 := NewListing("l-2", "owner-1", 1)
	mustCreate(t, s, l1)
	mustCreate(t, s, l2)

	l1 = submit(t, s, l1, "a-1", "applicant-1")
	submit(t, s, l2, "a-2", "applicant-1")

	// Reject a-1 so only a-2 stays active.
	app, _ := s.GetApplication(ctx, "l-1", "a-1")
	app.Status = domain.ApplicationRejected
	next := l1
	next.Version++
	next.AvailabilityStatus = domain.AvailabilityAvailable
	if err := s.Commit(ctx, domain.Mutation{Listing: next, ExpectedVersion: l1.Version, Update: []domain.Application{app}}); err != nil {
		t.Fatalf("reject commit failed: %v", err)
	}
	submit(t, s, next, "a-3", "applicant-2")

	cases := []struct {
		name   string
		filter domain.ApplicationFilter
		want   []string
	}{
		{"by listing", domain.ApplicationFilter{ListingID: "l-1"}, []string{"a-1", "a-3"}},
		{"by listing active", domain.ApplicationFilter{ListingID: "l-1", ActiveOnly: true}, []string{"a-3"}},
		{"by applicant", domain.ApplicationFilter{ApplicantID: "applicant-1"}, []string{"a-1", "a-2"}},
		{"by applicant active", domain.ApplicationFilter{ApplicantID: "applicant-1", ActiveOnly: true}, []string{"a-2"}},
		{"by listing and applicant", domain.ApplicationFilter{ListingID: "l-1", ApplicantID: "applicant-2"}, []string{"a-3"}},
	}
	for _, tc := range cases {
		got, err := s.ListApplications(ctx, tc.filter)
		if err != nil {
			t.Fatalf("%s: ListApplications failed: %v", tc.name, err)
		}
		if ids := applicationIDs(got); fmt.Sprint(ids) != fmt.Sprint(tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, ids, tc.want)
		}
	}
}

func testGetApplicationWrongListing(t *testing.T, s domain.Store) {
	l1 := NewListing("l-1", "owner-1", 0)
	mustCreate(t, s, l1)
	mustCreate(t, s, NewListing("l-2", "owner-1", 1))
	submit(t, s, l1, "a-1", "applicant-1")

	_, err := s.GetApplication(context.Background(), "l-2", "a-1")
	if !errors.Is(err, domain.ErrApplicationNotFound) {
		t.Errorf("expected ErrApplicationNotFound, got %v", err)
	}
}

func testDeleteCascades(t *testing.T, s domain.Store) {
	ctx := context.Background()
	l := NewListing("l-1", "owner-1", 0)
	mustCreate(t, s, l)
	submit(t, s, l, "a-1", "applicant-1")

	if err := s.DeleteListing(ctx, "l-1"); err != nil {
		t.Fatalf("DeleteListing failed: %v", err)
	}
	if _, err := s.GetListing(ctx, "l-1"); !errors.Is(err, domain.ErrListingNotFound) {
		t.Errorf("listing still present: %v", err)
	}
	apps, err := s.ListApplications(ctx, domain.ApplicationFilter{ApplicantID: "applicant-1"})
	if err != nil {
		t.Fatalf("ListApplications failed: %v", err)
	}
	if len(apps) != 0 {
		t.Errorf("got %d applications after cascade, want 0", len(apps))
	}

	if err := s.DeleteListing(ctx, "l-1"); !errors.Is(err, domain.ErrListingNotFound) {
		t.Errorf("second delete: expected ErrListingNotFound, got %v", err)
	}
}

func listingIDs(ls []domain.Listing) []string {
	ids := make([]string, len(ls))
	for i, l := range ls {
		ids[i] = l.ID
	}
	return ids
}

func applicationIDs(as []domain.Application) []string {
	ids := make([]string, len(as))
	for i, a := range as {
		ids[i] = a.ID
	}
	return ids
}
