package http

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/rehome/internal/app"
	"github.com/neomorfeo/rehome/internal/domain"
)

// ActorHeader carries the authenticated caller. Identity is established
// upstream; an empty value is an anonymous caller.
type ActorHeader struct {
	ActorID string `header:"X-Actor-ID" required:"false" doc:"Authenticated actor ID"`
}

// ListingResponse is the API representation of a listing.
type ListingResponse struct {
	ID                 string `json:"id" doc:"Unique identifier"`
	OwnerID            string `json:"owner_id" doc:"Actor who listed the animal"`
	Name               string `json:"name"`
	Species            string `json:"species"`
	Breed              string `json:"breed,omitempty"`
	Sex                string `json:"sex"`
	AgeMonths          int    `json:"age_months"`
	Description        string `json:"description,omitempty"`
	Location           string `json:"location"`
	ModerationStatus   string `json:"moderation_status" doc:"pending, approved or rejected"`
	ModerationNote     string `json:"moderation_note,omitempty"`
	ModeratorID        string `json:"moderator_id,omitempty"`
	ModeratedAt        string `json:"moderated_at,omitempty" doc:"Moderation timestamp (ISO 8601)"`
	AvailabilityStatus string `json:"availability_status" doc:"available, under_review, adopted or inactive"`
	AdopterID          string `json:"adopter_id,omitempty"`
	AdoptedAt          string `json:"adopted_at,omitempty" doc:"Adoption timestamp (ISO 8601)"`
	Version            int64  `json:"version" doc:"Optimistic concurrency version"`
	CreatedAt          string `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	UpdatedAt          string `json:"updated_at" doc:"Last update timestamp (ISO 8601)"`
}

func toListingResponse(l domain.Listing) ListingResponse {
	return ListingResponse{
		ID:                 l.ID,
		OwnerID:            l.OwnerID,
		Name:               l.Name,
		Species:            l.Species,
		Breed:              l.Breed,
		Sex:                l.Sex,
		AgeMonths:          l.AgeMonths,
		Description:        l.Description,
		Location:           l.Location,
		ModerationStatus:   string(l.ModerationStatus),
		ModerationNote:     l.ModerationNote,
		ModeratorID:        l.ModeratorID,
		ModeratedAt:        formatTime(l.ModeratedAt),
		AvailabilityStatus: string(l.AvailabilityStatus),
		AdopterID:          l.AdopterID,
		AdoptedAt:          formatTime(l.AdoptedAt),
		Version:            l.Version,
		CreatedAt:          formatTime(l.CreatedAt),
		UpdatedAt:          formatTime(l.UpdatedAt),
	}
}

func toListingResponses(ls []domain.Listing) []ListingResponse {
	resp := make([]ListingResponse, len(ls))
	for i, l := range ls {
		resp[i] = toListingResponse(l)
	}
	return resp
}

// ApplicationResponse is the API representation of an application.
type ApplicationResponse struct {
	ID          string `json:"id" doc:"Unique identifier"`
	ListingID   string `json:"listing_id"`
	ApplicantID string `json:"applicant_id"`
	Status      string `json:"status" doc:"pending, reviewing, approved, rejected or withdrawn"`
	Message     string `json:"message,omitempty"`
	AppliedAt   string `json:"applied_at" doc:"Submission timestamp (ISO 8601)"`
	DecidedAt   string `json:"decided_at,omitempty" doc:"Decision or withdrawal timestamp (ISO 8601)"`
	DeciderID   string `json:"decider_id,omitempty"`
}

func toApplicationResponse(a domain.Application) ApplicationResponse {
	return ApplicationResponse{
		ID:          a.ID,
		ListingID:   a.ListingID,
		ApplicantID: a.ApplicantID,
		Status:      string(a.Status),
		Message:     a.Message,
		AppliedAt:   formatTime(a.AppliedAt),
		DecidedAt:   formatTime(a.DecidedAt),
		DeciderID:   a.DeciderID,
	}
}

func toApplicationResponses(as []domain.Application) []ApplicationResponse {
	resp := make([]ApplicationResponse, len(as))
	for i, a := range as {
		resp[i] = toApplicationResponse(a)
	}
	return resp
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// --- Inputs and outputs ---

type ListingBody struct {
	Name        string `json:"name" doc:"Animal name"`
	Species     string `json:"species" doc:"dog, cat, rabbit, bird, reptile, small_mammal or other"`
	Breed       string `json:"breed,omitempty"`
	Sex         string `json:"sex" doc:"male, female or unknown"`
	AgeMonths   int    `json:"age_months" doc:"Age in months"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location" doc:"City or region"`
}

type CreateListingInput struct {
	ActorHeader
	Body ListingBody
}

type ListingOutput struct {
	Body ListingResponse
}

type ListingsOutput struct {
	Body []ListingResponse
}

type ListingPathInput struct {
	ActorHeader
	ID string `path:"id" doc:"Listing ID"`
}

type DiscoverInput struct {
	Species  string `query:"species" required:"false" doc:"Filter by species"`
	Location string `query:"location" required:"false" doc:"Filter by location (case-insensitive)"`
	Limit    int    `query:"limit" required:"false" default:"50" doc:"Max results"`
	Offset   int    `query:"offset" required:"false" default:"0" doc:"Pagination offset"`
}

type PageInput struct {
	ActorHeader
	Limit  int `query:"limit" required:"false" default:"50" doc:"Max results"`
	Offset int `query:"offset" required:"false" default:"0" doc:"Pagination offset"`
}

type EditListingInput struct {
	ActorHeader
	ID   string `path:"id" doc:"Listing ID"`
	Body struct {
		Name        *string `json:"name,omitempty"`
		Species     *string `json:"species,omitempty"`
		Breed       *string `json:"breed,omitempty"`
		Sex         *string `json:"sex,omitempty"`
		AgeMonths   *int    `json:"age_months,omitempty"`
		Description *string `json:"description,omitempty"`
		Location    *string `json:"location,omitempty"`
	}
}

type ModerateInput struct {
	ActorHeader
	ID   string `path:"id" doc:"Listing ID"`
	Body struct {
		Decision string `json:"decision" enum:"approved,rejected" doc:"Moderation verdict"`
		Note     string `json:"note,omitempty" doc:"Note shown to the owner"`
	}
}

type StatsOutput struct {
	Body map[string]int
}

type ApplyInput struct {
	ActorHeader
	ID   string `path:"id" doc:"Listing ID"`
	Body struct {
		Message string `json:"message,omitempty" doc:"Message to the owner"`
	}
}

type ApplicationPathInput struct {
	ActorHeader
	ID            string `path:"id" doc:"Listing ID"`
	ApplicationID string `path:"applicationId" doc:"Application ID"`
}

type DecideInput struct {
	ActorHeader
	ID            string `path:"id" doc:"Listing ID"`
	ApplicationID string `path:"applicationId" doc:"Application ID"`
	Body          struct {
		Decision string `json:"decision" enum:"reviewing,approved,rejected" doc:"Decision on the application"`
	}
}

type ApplicationOutput struct {
	Body ApplicationResponse
}

type ApplicationsOutput struct {
	Body []ApplicationResponse
}

type ApplicantInput struct {
	ActorHeader
	ApplicantID string `path:"applicantId" doc:"Applicant actor ID"`
}

// Register adds all listing and application routes to the Huma API.
func Register(api huma.API, svc *app.Service) {
	registerListings(api, svc)
	registerApplications(api, svc)
}

func registerListings(api huma.API, svc *app.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-listing",
		Method:        http.MethodPost,
		Path:          "/api/v1/listings",
		Summary:       "Create a listing",
		Tags:          []string{"Listings"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *CreateListingInput) (*ListingOutput, error) {
		b := input.Body
		l, err := svc.CreateListing(ctx, input.ActorID, domain.ListingAttributes{
			Name:        b.Name,
			Species:     b.Species,
			Breed:       b.Breed,
			Sex:         b.Sex,
			AgeMonths:   b.AgeMonths,
			Description: b.Description,
			Location:    b.Location,
		})
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &ListingOutput{Body: toListingResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-discoverable-listings",
		Method:      http.MethodGet,
		Path:        "/api/v1/listings",
		Summary:     "List listings open for adoption",
		Tags:        []string{"Listings"},
	}, func(ctx context.Context, input *DiscoverInput) (*ListingsOutput, error) {
		ls, err := svc.ListDiscoverableListings(ctx,
			app.DiscoveryFilter{Species: input.Species, Location: input.Location},
			app.Page{Limit: input.Limit, Offset: input.Offset},
		)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &ListingsOutput{Body: toListingResponses(ls)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-own-listings",
		Method:      http.MethodGet,
		Path:        "/api/v1/listings/mine",
		Summary:     "List the caller's listings",
		Tags:        []string{"Listings"},
	}, func(ctx context.Context, input *PageInput) (*ListingsOutput, error) {
		ls, err := svc.ListOwnListings(ctx, input.ActorID, app.Page{Limit: input.Limit, Offset: input.Offset})
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &ListingsOutput{Body: toListingResponses(ls)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-moderation-queue",
		Method:      http.MethodGet,
		Path:        "/api/v1/moderation/queue",
		Summary:     "List listings awaiting moderation",
		Tags:        []string{"Moderation"},
	}, func(ctx context.Context, input *PageInput) (*ListingsOutput, error) {
		ls, err := svc.ListModerationQueue(ctx, input.ActorID, app.Page{Limit: input.Limit, Offset: input.Offset})
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &ListingsOutput{Body: toListingResponses(ls)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-listing",
		Method:      http.MethodGet,
		Path:        "/api/v1/listings/{id}",
		Summary:     "Get a listing by ID",
		Tags:        []string{"Listings"},
	}, func(ctx context.Context, input *ListingPathInput) (*ListingOutput, error) {
		l, err := svc.GetListing(ctx, input.ActorID, input.ID)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &ListingOutput{Body: toListingResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-listing",
		Method:      http.MethodPatch,
		Path:        "/api/v1/listings/{id}",
		Summary:     "Edit listing attributes",
		Description: "Changes descriptive attributes. A moderated listing returns to pending.",
		Tags:        []string{"Listings"},
	}, func(ctx context.Context, input *EditListingInput) (*ListingOutput, error) {
		b := input.Body
		l, err := svc.EditListing(ctx, input.ActorID, input.ID, domain.ListingEdit{
			Name:        b.Name,
			Species:     b.Species,
			Breed:       b.Breed,
			Sex:         b.Sex,
			AgeMonths:   b.AgeMonths,
			Description: b.Description,
			Location:    b.Location,
		})
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &ListingOutput{Body: toListingResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-listing",
		Method:        http.MethodDelete,
		Path:          "/api/v1/listings/{id}",
		Summary:       "Delete a listing and its applications",
		Tags:          []string{"Listings"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *ListingPathInput) (*struct{}, error) {
		if err := svc.DeleteListing(ctx, input.ActorID, input.ID); err != nil {
			return nil, toHumaError(ctx, err)
		}
		return nil, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "moderate-listing",
		Method:      http.MethodPost,
		Path:        "/api/v1/listings/{id}/moderation",
		Summary:     "Approve or reject a pending listing",
		Tags:        []string{"Moderation"},
	}, func(ctx context.Context, input *ModerateInput) (*ListingOutput, error) {
		l, err := svc.ModerateListing(ctx, input.ActorID, input.ID,
			domain.ModerationStatus(input.Body.Decision), input.Body.Note)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &ListingOutput{Body: toListingResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deactivate-listing",
		Method:      http.MethodPost,
		Path:        "/api/v1/listings/{id}/deactivate",
		Summary:     "Take a listing off offer",
		Tags:        []string{"Listings"},
	}, func(ctx context.Context, input *ListingPathInput) (*ListingOutput, error) {
		l, err := svc.DeactivateListing(ctx, input.ActorID, input.ID)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &ListingOutput{Body: toListingResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reactivate-listing",
		Method:      http.MethodPost,
		Path:        "/api/v1/listings/{id}/reactivate",
		Summary:     "Put an inactive listing back on offer",
		Tags:        []string{"Listings"},
	}, func(ctx context.Context, input *ListingPathInput) (*ListingOutput, error) {
		l, err := svc.ReactivateListing(ctx, input.ActorID, input.ID)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &ListingOutput{Body: toListingResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-listing-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/listings/{id}/stats",
		Summary:     "Application counts by status",
		Tags:        []string{"Listings"},
	}, func(ctx context.Context, input *ListingPathInput) (*StatsOutput, error) {
		counts, err := svc.ListingStats(ctx, input.ActorID, input.ID)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		body := make(map[string]int, len(counts))
		for status, n := range counts {
			body[string(status)] = n
		}
		return &StatsOutput{Body: body}, nil
	})
}

func registerApplications(api huma.API, svc *app.Service) {
	huma.Register(api, huma.Operation{
		OperationID:   "apply-to-listing",
		Method:        http.MethodPost,
		Path:          "/api/v1/listings/{id}/applications",
		Summary:       "Apply to adopt",
		Tags:          []string{"Applications"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *ApplyInput) (*ApplicationOutput, error) {
		a, err := svc.ApplyToListing(ctx, input.ActorID, input.ID, input.Body.Message)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &ApplicationOutput{Body: toApplicationResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-listing-applications",
		Method:      http.MethodGet,
		Path:        "/api/v1/listings/{id}/applications",
		Summary:     "List applications on a listing",
		Tags:        []string{"Applications"},
	}, func(ctx context.Context, input *ListingPathInput) (*ApplicationsOutput, error) {
		as, err := svc.ListApplicationsForListing(ctx, input.ActorID, input.ID)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &ApplicationsOutput{Body: toApplicationResponses(as)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-application",
		Method:      http.MethodPost,
		Path:        "/api/v1/listings/{id}/applications/{applicationId}/decision",
		Summary:     "Decide on an application",
		Description: "Approval adopts the listing and rejects every other active application.",
		Tags:        []string{"Applications"},
	}, func(ctx context.Context, input *DecideInput) (*ApplicationOutput, error) {
		a, err := svc.DecideApplication(ctx, input.ActorID, input.ID, input.ApplicationID,
			domain.Decision(input.Body.Decision))
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &ApplicationOutput{Body: toApplicationResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "withdraw-application",
		Method:      http.MethodPost,
		Path:        "/api/v1/listings/{id}/applications/{applicationId}/withdraw",
		Summary:     "Withdraw an undecided application",
		Tags:        []string{"Applications"},
	}, func(ctx context.Context, input *ApplicationPathInput) (*ApplicationOutput, error) {
		a, err := svc.WithdrawApplication(ctx, input.ActorID, input.ID, input.ApplicationID)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &ApplicationOutput{Body: toApplicationResponse(a)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-applicant-applications",
		Method:      http.MethodGet,
		Path:        "/api/v1/applicants/{applicantId}/applications",
		Summary:     "List applications made by an applicant",
		Tags:        []string{"Applications"},
	}, func(ctx context.Context, input *ApplicantInput) (*ApplicationsOutput, error) {
		as, err := svc.ListApplicationsForApplicant(ctx, input.ActorID, input.ApplicantID)
		if err != nil {
			return nil, toHumaError(ctx, err)
		}
		return &ApplicationsOutput{Body: toApplicationResponses(as)}, nil
	})
}
