package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/nkiryanov/fireshare/internal/handlers/render"
	"github.com/nkiryanov/fireshare/internal/handlers/userctx"
	"github.com/nkiryanov/fireshare/internal/logger"
	"github.com/nkiryanov/fireshare/internal/service/qrlogin"
)

// Upper bound of a single complete request. Client repeats the request until challenge expires.
const maxAwaitTimeout = 60 * time.Second

// Start QR login to Steam for the current user
func handleBeginChallenge(qrService qrService, logger logger.Logger) http.Handler {
	type response struct {
		ClientID             string    `json:"client_id"`
		RequestID            string    `json:"request_id"`
		ChallengeURL         string    `json:"challenge_url"`
		Version              int       `json:"version"`
		PollInterval         float64   `json:"poll_interval"`
		AllowedConfirmations []string  `json:"allowed_confirmations"`
		ExpiresAt            time.Time `json:"expires_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		steamID, _ := userctx.FromContext(r.Context())

		c, err := qrService.BeginChallenge(r.Context(), steamID)
		if err != nil {
			serviceError(w, err, logger)
			return
		}

		render.JSON(w, response{
			ClientID:             c.ClientID,
			RequestID:            c.RequestID,
			ChallengeURL:         c.ChallengeURL,
			Version:              c.Version,
			PollInterval:         c.PollInterval.Seconds(),
			AllowedConfirmations: c.AllowedConfirmations,
			ExpiresAt:            c.ExpiresAt,
		})
	})
}

// Wait until user scans QR code and confirms login.
// 202 means the challenge is still valid and the request may be repeated.
func handleCompleteChallenge(qrService qrService, logger logger.Logger) http.Handler {
	type request struct {
		ClientID string `json:"client_id" validate:"required"`
		Timeout  int    `json:"timeout" validate:"min=0,max=60"` // seconds
	}
	type response struct {
		Message string `json:"message"`
	}
	type pendingResponse struct {
		Message      string    `json:"message"`
		ChallengeURL string    `json:"challenge_url"`
		ExpiresAt    time.Time `json:"expires_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		steamID, _ := userctx.FromContext(r.Context())

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		timeout := maxAwaitTimeout
		if data.Timeout > 0 {
			timeout = time.Duration(data.Timeout) * time.Second
		}

		_, err = qrService.AwaitCompletion(r.Context(), steamID, data.ClientID, timeout)
		var pending *qrlogin.PendingError
		switch {
		case errors.As(err, &pending):
			render.JSONWithStatus(w, pendingResponse{
				Message:      "Waiting for confirmation",
				ChallengeURL: pending.Challenge.ChallengeURL,
				ExpiresAt:    pending.Challenge.ExpiresAt,
			}, http.StatusAccepted)
			return
		case err != nil:
			serviceError(w, err, logger)
			return
		}

		render.JSON(w, response{Message: "Logged in to Steam successfully"})
	})
}

func handleCancelChallenge(qrService qrService, logger logger.Logger) http.Handler {
	type request struct {
		ClientID string `json:"client_id" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		steamID, _ := userctx.FromContext(r.Context())

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := qrService.Cancel(steamID, data.ClientID); err != nil {
			serviceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

// Forget refresh token of the current user
func handleResetRefreshToken(shareService shareService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		steamID, _ := userctx.FromContext(r.Context())

		if err := shareService.ResetRefreshToken(r.Context(), steamID); err != nil {
			serviceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}
