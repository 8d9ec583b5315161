// Package handlers exposes the HTTP surface. Handlers stay thin: bind,
// call a service, translate the error taxonomy to status codes.
package handlers

import (
	"errors"

	"tiketi/internal/status"

	"github.com/pocketbase/pocketbase/apis"
)

// apiError maps service errors onto the HTTP error taxonomy. Internal
// details never leak into the response body.
func apiError(err error) error {
	switch {
	case errors.Is(err, status.ErrInvalidInput):
		return apis.NewBadRequestError("Invalid input", nil)
	case errors.Is(err, status.ErrPaymentFailed):
		return apis.NewBadRequestError("Payment failed", nil)
	case errors.Is(err, status.ErrUnauthorized):
		return apis.NewUnauthorizedError("Unauthorized", nil)
	case errors.Is(err, status.ErrForbidden):
		return apis.NewForbiddenError("Access denied", nil)
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError("Not found", nil)
	case errors.Is(err, status.ErrInsufficientInventory):
		return apis.NewApiError(409, "Not enough tickets available", nil)
	case errors.Is(err, status.ErrConflict):
		return apis.NewApiError(409, "Conflicting state", nil)
	case errors.Is(err, status.ErrServiceUnavailable):
		return apis.NewApiError(503, "Payment provider unavailable, try again shortly", nil)
	default:
		return apis.NewInternalServerError("Something went wrong", nil)
	}
}
