package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// ModerationStatus is the moderator-controlled approval state of a listing.
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationRejected ModerationStatus = "rejected"
)

// AvailabilityStatus is the claim state of a listing.
type AvailabilityStatus string

const (
	AvailabilityAvailable   AvailabilityStatus = "available"
	AvailabilityUnderReview AvailabilityStatus = "under_review"
	AvailabilityAdopted     AvailabilityStatus = "adopted"
	AvailabilityInactive    AvailabilityStatus = "inactive"
)

// ModerationPolicy decides the moderation status a new listing starts in.
type ModerationPolicy string

const (
	PolicyAutoApprove  ModerationPolicy = "auto_approve"
	PolicyManualReview ModerationPolicy = "manual_review"
)

// SystemModerator is recorded as the moderator of auto-approved listings.
const SystemModerator = "system"

// Species accepted on a listing.
var Species = []string{"dog", "cat", "rabbit", "bird", "reptile", "small_mammal", "other"}

// Sex values accepted on a listing.
var Sexes = []string{"male", "female", "unknown"}

// ListingAttributes are the descriptive, owner-editable fields of a listing.
type ListingAttributes struct {
	Name        string
	Species     string
	Breed       string
	Sex         string
	AgeMonths   int
	Description string
	Location    string
}

// Validate checks every attribute and reports all offending fields at once.
func (a ListingAttributes) Validate() error {
	var fields []FieldError

	if n := utf8.RuneCountInString(strings.TrimSpace(a.Name)); n == 0 || n > 120 {
		fields = append(fields, FieldError{Field: "name", Message: "must be between 1 and 120 characters"})
	}
	if !oneOf(a.Species, Species) {
		fields = append(fields, FieldError{Field: "species", Message: "must be one of " + strings.Join(Species, ", ")})
	}
	if utf8.RuneCountInString(a.Breed) > 120 {
		fields = append(fields, FieldError{Field: "breed", Message: "must be at most 120 characters"})
	}
	if !oneOf(a.Sex, Sexes) {
		fields = append(fields, FieldError{Field: "sex", Message: "must be one of " + strings.Join(Sexes, ", ")})
	}
	if a.AgeMonths < 0 || a.AgeMonths > 600 {
		fields = append(fields, FieldError{Field: "age_months", Message: "must be between 0 and 600"})
	}
	if utf8.RuneCountInString(a.Description) > 4000 {
		fields = append(fields, FieldError{Field: "description", Message: "must be at most 4000 characters"})
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(a.Location)); n == 0 || n > 120 {
		fields = append(fields, FieldError{Field: "location", Message: "must be between 1 and 120 characters"})
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ListingEdit is the whitelist of attributes an owner may change after creation.
// Nil fields are left untouched.
type ListingEdit struct {
	Name        *string
	Species     *string
	Breed       *string
	Sex         *string
	AgeMonths   *int
	Description *string
	Location    *string
}

// Empty reports whether the edit changes nothing.
func (e ListingEdit) Empty() bool {
	return e.Name == nil && e.Species == nil && e.Breed == nil && e.Sex == nil &&
		e.AgeMonths == nil && e.Description == nil && e.Location == nil
}

// ApplyTo returns attrs with the edit's non-nil fields applied.
func (e ListingEdit) ApplyTo(attrs ListingAttributes) ListingAttributes {
	if e.Name != nil {
		attrs.Name = *e.Name
	}
	if e.Species != nil {
		attrs.Species = *e.Species
	}
	if e.Breed != nil {
		attrs.Breed = *e.Breed
	}
	if e.Sex != nil {
		attrs.Sex = *e.Sex
	}
	if e.AgeMonths != nil {
		attrs.AgeMonths = *e.AgeMonths
	}
	if e.Description != nil {
		attrs.Description = *e.Description
	}
	if e.Location != nil {
		attrs.Location = *e.Location
	}
	return attrs
}

// Listing is an animal offered for adoption by its owner.
type Listing struct {
	ID      string
	OwnerID string
	ListingAttributes

	ModerationStatus ModerationStatus
	ModerationNote   string
	ModeratorID      string
	ModeratedAt      time.Time

	AvailabilityStatus AvailabilityStatus
	AdopterID          string
	AdoptedAt          time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewListing creates a listing at version 1 whose moderation status follows the policy.
func NewListing(id, ownerID string, attrs ListingAttributes, policy ModerationPolicy, now time.Time) Listing {
	l := Listing{
		ID:                 id,
		OwnerID:            ownerID,
		ListingAttributes:  attrs,
		ModerationStatus:   ModerationPending,
		AvailabilityStatus: AvailabilityAvailable,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if policy == PolicyAutoApprove {
		l.ModerationStatus = ModerationApproved
		l.ModeratorID = SystemModerator
		l.ModeratedAt = now
	}
	return l
}

// Discoverable reports whether the listing is publicly visible and open to applicants.
func (l Listing) Discoverable() bool {
	return l.ModerationStatus == ModerationApproved && l.AvailabilityStatus == AvailabilityAvailable
}

// ListingFilter holds optional criteria for listing queries.
type ListingFilter struct {
	OwnerID      string
	Moderation   *ModerationStatus
	Availability *AvailabilityStatus
	Species      string
	Location     string
	OldestFirst  bool
	Limit        int
	Offset       int
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
