package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neomorfeo/rehome/internal/app"
	"github.com/neomorfeo/rehome/internal/domain"
)

func TestCreateListing_ManualReviewIsNotDiscoverable(t *testing.T) {
	f := newFixture(t)

	l, err := f.svc.CreateListing(context.Background(), owner, validAttrs())
	require.NoError(t, err)

	assert.NotEmpty(t, l.ID)
	assert.Equal(t, owner, l.OwnerID)
	assert.Equal(t, domain.ModerationPending, l.ModerationStatus)
	assert.Equal(t, domain.AvailabilityAvailable, l.AvailabilityStatus)
	assert.Equal(t, int64(1), l.Version)
	assert.NotContains(t, discoverableIDs(t, f.svc), l.ID)

	f.svc.Wait()
	assert.Equal(t, []domain.NotificationType{domain.NotifyListingCreated}, f.pub.types())
}

func TestCreateListing_AutoApprove(t *testing.T) {
	f := newFixture(t, app.WithModerationPolicy(domain.PolicyAutoApprove))

	l, err := f.svc.CreateListing(context.Background(), owner, validAttrs())
	require.NoError(t, err)

	assert.Equal(t, domain.ModerationApproved, l.ModerationStatus)
	assert.Equal(t, domain.SystemModerator, l.ModeratorID)
	assert.Contains(t, discoverableIDs(t, f.svc), l.ID)
}

func TestCreateListing_Validation(t *testing.T) {
	f := newFixture(t)
	attrs := validAttrs()
	attrs.Name = ""
	attrs.Species = "dragon"

	_, err := f.svc.CreateListing(context.Background(), owner, attrs)

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Fields, 2)
	assert.Equal(t, "name", ve.Fields[0].Field)
	assert.Equal(t, "species", ve.Fields[1].Field)
}

func TestCreateListing_AnonymousDenied(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateListing(context.Background(), "", validAttrs())

	var ae *domain.AuthorizationError
	require.ErrorAs(t, err, &ae)
}

func TestGetListing_Visibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l, err := f.svc.CreateListing(ctx, owner, validAttrs())
	require.NoError(t, err)

	for _, actor := range []string{owner, moderator} {
		got, err := f.svc.GetListing(ctx, actor, l.ID)
		require.NoError(t, err, actor)
		assert.Equal(t, l.ID, got.ID)
	}
	for _, actor := range []string{alice, ""} {
		_, err := f.svc.GetListing(ctx, actor, l.ID)
		assert.ErrorIs(t, err, domain.ErrListingNotFound, actor)
	}

	_, err = f.svc.ModerateListing(ctx, moderator, l.ID, domain.ModerationApproved, "")
	require.NoError(t, err)
	_, err = f.svc.GetListing(ctx, "", l.ID)
	require.NoError(t, err)

	// Under review the listing is hidden again, except from its applicant.
	_, err = f.svc.ApplyToListing(ctx, alice, l.ID, "")
	require.NoError(t, err)
	_, err = f.svc.GetListing(ctx, alice, l.ID)
	require.NoError(t, err)
	_, err = f.svc.GetListing(ctx, bob, l.ID)
	assert.ErrorIs(t, err, domain.ErrListingNotFound)
}

func TestGetListing_StorageFailure(t *testing.T) {
	f := newFixtureWithStore(t, failingStore{err: errStorageDown})

	_, err := f.svc.GetListing(context.Background(), owner, "l-1")
	assert.ErrorIs(t, err, errStorageDown)
}

func TestListDiscoverableListings_FiltersAndPaging(t *testing.T) {
	f := newFixture(t, app.WithModerationPolicy(domain.PolicyAutoApprove))
	ctx := context.Background()

	dog := validAttrs()
	dog.Species = "dog"
	dog.Location = "Lisbon"

	cat, err := f.svc.CreateListing(ctx, owner, validAttrs())
	require.NoError(t, err)
	_, err = f.svc.CreateListing(ctx, owner, dog)
	require.NoError(t, err)

	ls, err := f.svc.ListDiscoverableListings(ctx, app.DiscoveryFilter{Species: "cat"}, app.Page{})
	require.NoError(t, err)
	require.Len(t, ls, 1)
	assert.Equal(t, cat.ID, ls[0].ID)

	ls, err = f.svc.ListDiscoverableListings(ctx, app.DiscoveryFilter{Location: "lisbon"}, app.Page{})
	require.NoError(t, err)
	require.Len(t, ls, 1)
	assert.Equal(t, "dog", ls[0].Species)

	ls, err = f.svc.ListDiscoverableListings(ctx, app.DiscoveryFilter{}, app.Page{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, ls, 1)
}

func TestListOwnListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mine, err := f.svc.CreateListing(ctx, owner, validAttrs())
	require.NoError(t, err)
	_, err = f.svc.CreateListing(ctx, bob, validAttrs())
	require.NoError(t, err)

	ls, err := f.svc.ListOwnListings(ctx, owner, app.Page{})
	require.NoError(t, err)
	require.Len(t, ls, 1)
	assert.Equal(t, mine.ID, ls[0].ID)

	_, err = f.svc.ListOwnListings(ctx, "", app.Page{})
	var ae *domain.AuthorizationError
	assert.ErrorAs(t, err, &ae)
}

func TestListModerationQueue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, app.WithClock(func() time.Time {
		now = now.Add(time.Minute)
		return now
	}))
	ctx := context.Background()

	first, err := f.svc.CreateListing(ctx, owner, validAttrs())
	require.NoError(t, err)
	second, err := f.svc.CreateListing(ctx, bob, validAttrs())
	require.NoError(t, err)
	approved, err := f.svc.CreateListing(ctx, bob, validAttrs())
	require.NoError(t, err)
	_, err = f.svc.ModerateListing(ctx, moderator, approved.ID, domain.ModerationApproved, "")
	require.NoError(t, err)

	queue, err := f.svc.ListModerationQueue(ctx, moderator, app.Page{})
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, first.ID, queue[0].ID)
	assert.Equal(t, second.ID, queue[1].ID)

	_, err = f.svc.ListModerationQueue(ctx, owner, app.Page{})
	var ae *domain.AuthorizationError
	assert.ErrorAs(t, err, &ae)
}

func TestModerateListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l, err := f.svc.CreateListing(ctx, owner, validAttrs())
	require.NoError(t, err)

	got, err := f.svc.ModerateListing(ctx, moderator, l.ID, domain.ModerationRejected, "blurry photo")
	require.NoError(t, err)

	assert.Equal(t, domain.ModerationRejected, got.ModerationStatus)
	assert.Equal(t, "blurry photo", got.ModerationNote)
	assert.Equal(t, moderator, got.ModeratorID)
	assert.False(t, got.ModeratedAt.IsZero())
	assert.Equal(t, int64(2), got.Version)
}

func TestModerateListing_TwiceConflictsBothTimes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.published(t)

	for range 2 {
		_, err := f.svc.ModerateListing(ctx, moderator, l.ID, domain.ModerationApproved, "")
		require.ErrorIs(t, err, domain.ErrConflict)

		var te *domain.TransitionError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, domain.MachineModeration, te.Machine)
	}

	after := f.listing(t, l.ID)
	assert.Equal(t, l.Version, after.Version, "state must be unchanged")
	assert.Equal(t, domain.ModerationApproved, after.ModerationStatus)
}

func TestModerateListing_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l, err := f.svc.CreateListing(ctx, owner, validAttrs())
	require.NoError(t, err)

	_, err = f.svc.ModerateListing(ctx, owner, l.ID, domain.ModerationApproved, "")
	var ae *domain.AuthorizationError
	assert.ErrorAs(t, err, &ae, "owners cannot moderate")

	_, err = f.svc.ModerateListing(ctx, moderator, l.ID, domain.ModerationPending, "")
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = f.svc.ModerateListing(ctx, moderator, "missing", domain.ModerationApproved, "")
	assert.ErrorIs(t, err, domain.ErrListingNotFound)
}

func TestEditListing_ReopensModeration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.published(t)
	require.Contains(t, discoverableIDs(t, f.svc), l.ID)

	name := "Mia II"
	got, err := f.svc.EditListing(ctx, owner, l.ID, domain.ListingEdit{Name: &name})
	require.NoError(t, err)

	assert.Equal(t, "Mia II", got.Name)
	assert.Equal(t, domain.ModerationPending, got.ModerationStatus)
	assert.Empty(t, got.ModeratorID)
	assert.Equal(t, domain.AvailabilityAvailable, got.AvailabilityStatus, "availability is untouched")
	assert.NotContains(t, discoverableIDs(t, f.svc), l.ID)
}

func TestEditListing_PendingStaysPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l, err := f.svc.CreateListing(ctx, owner, validAttrs())
	require.NoError(t, err)

	age := 24
	got, err := f.svc.EditListing(ctx, owner, l.ID, domain.ListingEdit{AgeMonths: &age})
	require.NoError(t, err)

	assert.Equal(t, 24, got.AgeMonths)
	assert.Equal(t, domain.ModerationPending, got.ModerationStatus)
	assert.Equal(t, l.Version+1, got.Version)
}

func TestEditListing_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.published(t)

	_, err := f.svc.EditListing(ctx, owner, l.ID, domain.ListingEdit{})
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve, "empty edit")

	bad := "dragon"
	_, err = f.svc.EditListing(ctx, owner, l.ID, domain.ListingEdit{Species: &bad})
	assert.ErrorAs(t, err, &ve, "invalid species")

	name := "x"
	_, err = f.svc.EditListing(ctx, moderator, l.ID, domain.ListingEdit{Name: &name})
	var ae *domain.AuthorizationError
	assert.ErrorAs(t, err, &ae, "only the owner edits")

	assert.Equal(t, domain.ModerationApproved, f.listing(t, l.ID).ModerationStatus, "failed edits change nothing")
}

func TestDeactivateAndReactivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.published(t)

	got, err := f.svc.DeactivateListing(ctx, owner, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilityInactive, got.AvailabilityStatus)
	assert.NotContains(t, discoverableIDs(t, f.svc), l.ID)

	_, err = f.svc.DeactivateListing(ctx, owner, l.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.svc.ApplyToListing(ctx, alice, l.ID, "")
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err = f.svc.ReactivateListing(ctx, moderator, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilityAvailable, got.AvailabilityStatus)
	assert.Contains(t, discoverableIDs(t, f.svc), l.ID)

	_, err = f.svc.ReactivateListing(ctx, alice, l.ID)
	var ae *domain.AuthorizationError
	assert.ErrorAs(t, err, &ae)
}

func TestDeactivate_RejectsActiveApplications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.published(t)
	a, err := f.svc.ApplyToListing(ctx, alice, l.ID, "hi")
	require.NoError(t, err)

	got, err := f.svc.DeactivateListing(ctx, moderator, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AvailabilityInactive, got.AvailabilityStatus)

	apps := f.applications(t, l.ID)
	require.Len(t, apps, 1)
	assert.Equal(t, a.ID, apps[0].ID)
	assert.Equal(t, domain.ApplicationRejected, apps[0].Status)
	assert.Equal(t, moderator, apps[0].DeciderID)
	requireInvariants(t, got, apps)
}

func TestDeactivate_AdoptedIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.published(t)
	a, err := f.svc.ApplyToListing(ctx, alice, l.ID, "")
	require.NoError(t, err)
	_, err = f.svc.DecideApplication(ctx, owner, l.ID, a.ID, domain.DecisionApproved)
	require.NoError(t, err)

	_, err = f.svc.DeactivateListing(ctx, owner, l.ID)

	var te *domain.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, string(domain.AvailabilityAdopted), te.Current)
}

func TestDeleteListing_Cascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.published(t)
	_, err := f.svc.ApplyToListing(ctx, alice, l.ID, "")
	require.NoError(t, err)

	err = f.svc.DeleteListing(ctx, bob, l.ID)
	var ae *domain.AuthorizationError
	require.ErrorAs(t, err, &ae)

	require.NoError(t, f.svc.DeleteListing(ctx, owner, l.ID))

	_, err = f.store.GetListing(ctx, l.ID)
	assert.ErrorIs(t, err, domain.ErrListingNotFound)
	assert.Empty(t, f.applications(t, l.ID))

	err = f.svc.DeleteListing(ctx, owner, l.ID)
	assert.ErrorIs(t, err, domain.ErrListingNotFound)
}

func TestListingStats_DerivedFromLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.published(t)

	a, err := f.svc.ApplyToListing(ctx, alice, l.ID, "")
	require.NoError(t, err)
	_, err = f.svc.DecideApplication(ctx, owner, l.ID, a.ID, domain.DecisionRejected)
	require.NoError(t, err)
	b, err := f.svc.ApplyToListing(ctx, bob, l.ID, "")
	require.NoError(t, err)
	_, err = f.svc.DecideApplication(ctx, owner, l.ID, b.ID, domain.DecisionReviewing)
	require.NoError(t, err)

	stats, err := f.svc.ListingStats(ctx, owner, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApplicationCounts{
		domain.ApplicationPending:   0,
		domain.ApplicationReviewing: 1,
		domain.ApplicationApproved:  0,
		domain.ApplicationRejected:  1,
		domain.ApplicationWithdrawn: 0,
	}, stats)

	_, err = f.svc.ListingStats(ctx, alice, l.ID)
	var ae *domain.AuthorizationError
	assert.ErrorAs(t, err, &ae)
}

func TestNotificationFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("sink down")

	l, err := f.svc.CreateListing(context.Background(), owner, validAttrs())
	require.NoError(t, err)

	f.svc.Wait()
	assert.Equal(t, []domain.NotificationType{domain.NotifyListingCreated}, f.pub.types())
	assert.Equal(t, l.ID, f.listing(t, l.ID).ID)
}
