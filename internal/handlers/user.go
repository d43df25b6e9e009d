package handlers

import (
	"net/http"

	"github.com/nkiryanov/fireshare/internal/handlers/render"
	"github.com/nkiryanov/fireshare/internal/handlers/userctx"
	"github.com/nkiryanov/fireshare/internal/logger"
)

func handleMe(shareService shareService, logger logger.Logger) http.Handler {
	type response struct {
		SteamID         string `json:"steam_id"`
		IsAuthenticated bool   `json:"is_authenticated"`
		HasMachineID    bool   `json:"has_machine_id"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		steamID, _ := userctx.FromContext(r.Context())

		cred, err := shareService.Credential(r.Context(), steamID)
		if err != nil {
			serviceError(w, err, logger)
			return
		}

		render.JSON(w, response{
			SteamID:         steamID,
			IsAuthenticated: cred.IsAuthenticated(),
			HasMachineID:    cred.HasMachineID(),
		})
	})
}

func handleSetMachineID(shareService shareService, logger logger.Logger) http.Handler {
	type request struct {
		MachineID string `json:"machine_id" validate:"required,ascii,len=310"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		steamID, _ := userctx.FromContext(r.Context())

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := shareService.SetMachineID(r.Context(), steamID, data.MachineID); err != nil {
			serviceError(w, err, logger)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}
