// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/meridian-his/meridian/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	if locked, ok := shared.AsLockedError(err); ok {
		JSON(w, http.StatusLocked, ProblemDetail{
			Title:       "Temporarily Locked",
			Status:      http.StatusLocked,
			Detail:      "too many failed login attempts",
			LockedUntil: &locked.Until,
		})
		return
	}
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		// Generic message, no hint of which factor was wrong.
		Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
	case errors.Is(err, shared.ErrTokenInvalid), errors.Is(err, shared.ErrRefreshRevoked):
		Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid or expired token")
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "")
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
