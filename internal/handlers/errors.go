package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/nkiryanov/fireshare/internal/apperrors"
	"github.com/nkiryanov/fireshare/internal/handlers/render"
	"github.com/nkiryanov/fireshare/internal/logger"
)

// Render service error with status matching its kind
func serviceError(w http.ResponseWriter, err error, l logger.Logger) {
	switch {
	case errors.Is(err, apperrors.ErrPendingAuth):
		render.ServiceError(w, "Lender has to log in to Steam again", http.StatusConflict)
	case errors.Is(err, apperrors.ErrNotFound):
		render.ServiceError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrChallengeNotFound):
		render.ServiceError(w, "QR challenge not found", http.StatusNotFound)
	case errors.Is(err, apperrors.ErrChallengeBusy):
		render.ServiceError(w, "QR challenge is already being awaited", http.StatusConflict)
	case errors.Is(err, apperrors.ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		render.ServiceError(w, "Timed out", http.StatusRequestTimeout)
	case errors.Is(err, apperrors.ErrRejected):
		render.ServiceError(w, "Login rejected", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrAccountMismatch):
		render.ServiceError(w, "Logged in with another Steam account", http.StatusForbidden)
	case errors.Is(err, apperrors.ErrMachineIDRequired):
		render.ServiceError(w, "Machine id is not set", http.StatusPreconditionFailed)
	case errors.Is(err, apperrors.ErrMachineIDInvalid):
		render.ServiceError(w, "Machine id is invalid", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrSteamIDInvalid):
		render.ServiceError(w, "Steam id is invalid", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrSelfShare):
		render.ServiceError(w, "Can't share with yourself", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrTransport):
		l.Warn("Steam is unavailable", "error", err)
		render.ServiceError(w, "Steam is unavailable", http.StatusServiceUnavailable)
	default:
		l.Error("Request failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
