package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/nkiryanov/fireshare/internal/handlers/middleware"
	"github.com/nkiryanov/fireshare/internal/logger"
	"github.com/nkiryanov/fireshare/internal/metrics"
	"github.com/nkiryanov/fireshare/internal/models"
	"github.com/nkiryanov/fireshare/internal/setupscript"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	shareService shareService,
	lendingService lendingService,
	qrService qrService,
	m *metrics.Metrics,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.AuthMiddleware(authService)

	api := http.NewServeMux()

	api.Handle("GET /me", handleMe(shareService, logger))
	api.Handle("GET /lenders", handleListLenders(lendingService, logger))
	api.Handle("GET /shares", handleListShares(lendingService, logger))
	api.Handle("POST /shares/add", handleAddShare(shareService, logger))
	api.Handle("POST /shares/remove", handleRemoveShare(shareService, logger))
	api.Handle("POST /shares/ask", handleAskShare(shareService, logger))
	api.Handle("GET /shares/script", handleShareScript(shareService, logger))
	api.Handle("POST /machine-id", handleSetMachineID(shareService, logger))
	api.Handle("POST /refresh-token/challenge", handleBeginChallenge(qrService, logger))
	api.Handle("POST /refresh-token/complete", handleCompleteChallenge(qrService, logger))
	api.Handle("POST /refresh-token/cancel", handleCancelChallenge(qrService, logger))
	api.Handle("DELETE /refresh-token", handleResetRefreshToken(shareService, logger))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", withAuth(api)))
	root.Handle("GET /metrics", m.Handler())

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type authService interface {
	// Parse access token and return steam id of the user
	ParseAccess(ctx context.Context, access string) (string, error)
}

type shareService interface {
	Credential(ctx context.Context, userID string) (models.Credential, error)
	AddShare(ctx context.Context, lenderID string, borrowerID string) (models.ShareEdge, error)
	RemoveShare(ctx context.Context, lenderID string, borrowerID string, revokeRemote bool) error
	RequestShareToken(ctx context.Context, borrowerID string, lenderID string) (string, error)
	ShareScript(ctx context.Context, borrowerID string, lenderID string) (setupscript.Script, error)
	SetMachineID(ctx context.Context, userID string, machineID string) error
	ResetRefreshToken(ctx context.Context, userID string) error
}

type lendingService interface {
	BuildBorrowerView(ctx context.Context, borrowerID string) ([]models.LendInfo, error)
	ListShares(ctx context.Context, lenderID string) ([]models.ShareInfo, error)
}

type qrService interface {
	BeginChallenge(ctx context.Context, userID string) (models.QRChallenge, error)
	AwaitCompletion(ctx context.Context, userID string, clientID string, timeout time.Duration) (string, error)
	Cancel(userID string, clientID string) error
}
