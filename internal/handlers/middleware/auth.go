package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/nkiryanov/fireshare/internal/handlers/render"
	"github.com/nkiryanov/fireshare/internal/handlers/userctx"
)

const bearerPrefix = "Bearer "

type authService interface {
	// Parse access token and return steam id of its user
	ParseAccess(ctx context.Context, access string) (string, error)
}

func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			steamID, err := as.ParseAccess(r.Context(), strings.TrimPrefix(header, bearerPrefix))
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(r.Context(), steamID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
