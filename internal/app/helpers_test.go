package app_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neomorfeo/rehome/internal/adapter/authz"
	"github.com/neomorfeo/rehome/internal/adapter/fsm"
	"github.com/neomorfeo/rehome/internal/adapter/memory"
	"github.com/neomorfeo/rehome/internal/app"
	"github.com/neomorfeo/rehome/internal/domain"
)

const (
	owner     = "owner-1"
	moderator = "mod-1"
	alice     = "alice"
	bob       = "bob"
)

// --- Fakes ---

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Notification
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, n domain.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, n)
	return p.err
}

func (p *recordingPublisher) types() []domain.NotificationType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.NotificationType, len(p.events))
	for i, n := range p.events {
		out[i] = n.Type
	}
	return out
}

// conflictingStore fails the next n commits with ErrVersionConflict.
type conflictingStore struct {
	domain.Store
	remaining atomic.Int32
	commits   atomic.Int32
}

func (s *conflictingStore) Commit(ctx context.Context, m domain.Mutation) error {
	s.commits.Add(1)
	if s.remaining.Add(-1) >= 0 {
		return domain.ErrVersionConflict
	}
	return s.Store.Commit(ctx, m)
}

// failingStore returns err from every read.
type failingStore struct {
	domain.Store
	err error
}

func (s failingStore) GetListing(context.Context, string) (domain.Listing, error) {
	return domain.Listing{}, s.err
}

var errStorageDown = errors.New("storage unavailable")

// --- Fixture ---

type fixture struct {
	svc   *app.Service
	store domain.Store
	pub   *recordingPublisher
}

func newFixture(t *testing.T, opts ...app.Option) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.New(), opts...)
}

func newFixtureWithStore(t *testing.T, store domain.Store, opts ...app.Option) *fixture {
	t.Helper()
	pub := &recordingPublisher{}
	opts = append([]app.Option{app.WithRetryDelay(time.Millisecond)}, opts...)
	svc := app.NewService(store, pub, fsm.New(), authz.NewPolicy([]string{moderator}), opts...)
	t.Cleanup(svc.Wait)
	return &fixture{svc: svc, store: store, pub: pub}
}

func validAttrs() domain.ListingAttributes {
	return domain.ListingAttributes{
		Name:        "Mia",
		Species:     "cat",
		Breed:       "tabby",
		Sex:         "female",
		AgeMonths:   18,
		Description: "Calm indoor cat.",
		Location:    "Porto",
	}
}

// published creates a listing and approves it so it is discoverable.
func (f *fixture) published(t *testing.T) domain.Listing {
	t.Helper()
	ctx := context.Background()
	l, err := f.svc.CreateListing(ctx, owner, validAttrs())
	require.NoError(t, err)
	l, err = f.svc.ModerateListing(ctx, moderator, l.ID, domain.ModerationApproved, "")
	require.NoError(t, err)
	return l
}

func (f *fixture) listing(t *testing.T, id string) domain.Listing {
	t.Helper()
	l, err := f.store.GetListing(context.Background(), id)
	require.NoError(t, err)
	return l
}

func (f *fixture) applications(t *testing.T, listingID string) []domain.Application {
	t.Helper()
	apps, err := f.store.ListApplications(context.Background(), domain.ApplicationFilter{ListingID: listingID})
	require.NoError(t, err)
	return apps
}

func discoverableIDs(t *testing.T, svc *app.Service) []string {
	t.Helper()
	ls, err := svc.ListDiscoverableListings(context.Background(), app.DiscoveryFilter{}, app.Page{})
	require.NoError(t, err)
	ids := make([]string, len(ls))
	for i, l := range ls {
		ids[i] = l.ID
	}
	return ids
}

// requireInvariants checks the cross-entity rules that must hold after any
// sequence of operations.
func requireInvariants(t *testing.T, l domain.Listing, apps []domain.Application) {
	t.Helper()
	approved, active := 0, 0
	for _, a := range apps {
		if a.Status == domain.ApplicationApproved {
			approved++
			require.Equal(t, a.ApplicantID, l.AdopterID, "adopter must match the approved applicant")
		}
		if a.Status.Active() {
			active++
		}
	}
	require.LessOrEqual(t, approved, 1, "at most one approved application")
	require.Equal(t, l.AvailabilityStatus == domain.AvailabilityAdopted, approved == 1, "adopted iff one approved")
	if l.AvailabilityStatus == domain.AvailabilityAvailable || l.AvailabilityStatus == domain.AvailabilityInactive {
		require.Zero(t, active, "no active applications on a %s listing", l.AvailabilityStatus)
	}
}
