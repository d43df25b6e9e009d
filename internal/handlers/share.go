package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/fireshare/internal/handlers/render"
	"github.com/nkiryanov/fireshare/internal/handlers/userctx"
	"github.com/nkiryanov/fireshare/internal/logger"
)

type LendInfoResponse struct {
	LenderID                      string  `json:"lender_id"`
	IsAuthenticated               bool    `json:"is_authenticated"`
	BorrowerAuthorizedDeviceToken *string `json:"borrower_authorized_device_token"`
	BorrowerInCurrentShareList    bool    `json:"borrower_in_current_share_list"`
}

type ShareInfoResponse struct {
	BorrowerID string     `json:"borrower_id"`
	DeviceName string     `json:"device_name,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	InUse      bool       `json:"in_use"`
}

type ShareResponse struct {
	ID         uuid.UUID `json:"id"`
	LenderID   string    `json:"lender_id"`
	BorrowerID string    `json:"borrower_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Lenders of the current user
func handleListLenders(lendingService lendingService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		steamID, _ := userctx.FromContext(r.Context())

		view, err := lendingService.BuildBorrowerView(r.Context(), steamID)
		if err != nil {
			serviceError(w, err, logger)
			return
		}

		res := make([]LendInfoResponse, 0, len(view))
		for _, info := range view {
			res = append(res, LendInfoResponse{
				LenderID:                      info.LenderID,
				IsAuthenticated:               info.IsAuthenticated,
				BorrowerAuthorizedDeviceToken: info.BorrowerAuthorizedDeviceToken,
				BorrowerInCurrentShareList:    info.BorrowerInCurrentShareList,
			})
		}

		render.JSON(w, res)
	})
}

// Borrowers of the current user
func handleListShares(lendingService lendingService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		steamID, _ := userctx.FromContext(r.Context())

		shares, err := lendingService.ListShares(r.Context(), steamID)
		if err != nil {
			serviceError(w, err, logger)
			return
		}

		res := make([]ShareInfoResponse, 0, len(shares))
		for _, s := range shares {
			res = append(res, ShareInfoResponse{
				BorrowerID: s.BorrowerID,
				DeviceName: s.DeviceName,
				LastUsedAt: s.LastUsedAt,
				InUse:      s.InUse,
			})
		}

		render.JSON(w, res)
	})
}

func handleAddShare(shareService shareService, logger logger.Logger) http.Handler {
	type request struct {
		Borrower string `json:"borrower" validate:"required,steamid"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		steamID, _ := userctx.FromContext(r.Context())

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		share, err := shareService.AddShare(r.Context(), steamID, data.Borrower)
		if err != nil {
			serviceError(w, err, logger)
			return
		}

		render.JSON(w, ShareResponse{
			ID:         share.ID,
			LenderID:   share.LenderID,
			BorrowerID: share.BorrowerID,
			CreatedAt:  share.CreatedAt,
		})
	})
}

func handleRemoveShare(shareService shareService, logger logger.Logger) http.Handler {
	type request struct {
		Borrower     string `json:"borrower" validate:"required,steamid"`
		RevokeRemote bool   `json:"revoke_remote"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		steamID, _ := userctx.FromContext(r.Context())

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := shareService.RemoveShare(r.Context(), steamID, data.Borrower, data.RevokeRemote); err != nil {
			serviceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

// Device token of the current user for the lender library
func handleAskShare(shareService shareService, logger logger.Logger) http.Handler {
	type request struct {
		Lender string `json:"lender" validate:"required,steamid"`
	}
	type response struct {
		DeviceToken string `json:"device_token"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		steamID, _ := userctx.FromContext(r.Context())

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		token, err := shareService.RequestShareToken(r.Context(), steamID, data.Lender)
		if err != nil {
			serviceError(w, err, logger)
			return
		}

		render.JSON(w, response{DeviceToken: token})
	})
}

func handleShareScript(shareService shareService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		steamID, _ := userctx.FromContext(r.Context())

		lender := r.URL.Query().Get("lender")
		if err := render.Var(w, "lender", lender, "required,steamid"); err != nil {
			return
		}

		script, err := shareService.ShareScript(r.Context(), steamID, lender)
		if err != nil {
			serviceError(w, err, logger)
			return
		}

		render.Attachment(w, script.Filename, script.Content)
	})
}
