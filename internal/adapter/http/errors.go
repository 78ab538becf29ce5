package http

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/rehome/internal/domain"
)

// toHumaError translates domain errors to Huma HTTP errors. Anything it does
// not recognise is an infrastructure fault: logged, then reported without detail.
func toHumaError(ctx context.Context, err error) error {
	var valErr *domain.ValidationError
	if errors.As(err, &valErr) {
		details := make([]error, len(valErr.Fields))
		for i, f := range valErr.Fields {
			details[i] = &huma.ErrorDetail{
				Location: "body." + f.Field,
				Message:  f.Message,
			}
		}
		return huma.Error422UnprocessableEntity("validation failed", details...)
	}

	if errors.Is(err, domain.ErrListingNotFound) {
		return huma.Error404NotFound("listing not found")
	}
	if errors.Is(err, domain.ErrApplicationNotFound) {
		return huma.Error404NotFound("application not found")
	}

	var authErr *domain.AuthorizationError
	if errors.As(err, &authErr) {
		return huma.Error403Forbidden(authErr.Error())
	}

	var dupErr *domain.DuplicateError
	if errors.As(err, &dupErr) {
		return huma.Error409Conflict(dupErr.Error())
	}

	if errors.Is(err, domain.ErrConflict) {
		return huma.Error409Conflict(err.Error())
	}

	slog.ErrorContext(ctx, "request failed", "error", err)
	return huma.Error500InternalServerError("internal server error")
}
