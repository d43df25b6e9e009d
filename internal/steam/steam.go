// Package steam declares the Steam session boundary used by the services.
//
// Implementations must report a revoked or expired refresh token with an error
// matching apperrors.ErrAuthFailure and network or service failures with an error
// matching apperrors.ErrTransport. An empty device or borrower list is never an error.
package steam

import (
	"context"
	"time"

	"github.com/nkiryanov/fireshare/internal/models"
)

// Platform Steam issues refresh tokens for. Family sharing needs SteamClient tokens.
const PlatformSteamClient = 1

// Entry point to Steam authentication
type Authenticator interface {
	// Exchange long lived refresh token to a short lived session of the user
	Authenticate(ctx context.Context, steamID string, refreshToken string) (Session, error)

	// Begin QR login. Doesn't poll: caller drives polling with PollQR
	StartWithQR(ctx context.Context) (QRStart, error)

	// Poll QR login status once
	PollQR(ctx context.Context, clientID string, requestID []byte) (QRPoll, error)
}

// Authenticated session of a lender. Must be closed after use.
type Session interface {
	SteamID() string

	// Devices the lender authorized for family sharing
	AuthorizedDevices(ctx context.Context) ([]models.AuthorizedDevice, error)

	// Steam ids of borrowers allowed to use the library
	AuthorizedBorrowers(ctx context.Context) ([]string, error)

	// Authorize new sharing device with the name; returns device token
	AuthorizeDevice(ctx context.Context, deviceName string) (string, error)

	AddAuthorizedBorrowers(ctx context.Context, borrowerIDs []string) error
	RemoveAuthorizedBorrowers(ctx context.Context, borrowerIDs []string) error

	Close(ctx context.Context) error
}

type QRStart struct {
	ClientID             string
	RequestID            []byte
	PollInterval         time.Duration
	ChallengeURL         string
	Version              int
	AllowedConfirmations []string
}

type QRStatus int

const (
	QRPending QRStatus = iota
	QRConfirmed
	QRRejected
	QRExpired
)

func (s QRStatus) String() string {
	switch s {
	case QRPending:
		return "pending"
	case QRConfirmed:
		return "confirmed"
	case QRRejected:
		return "rejected"
	case QRExpired:
		return "expired"
	default:
		return "unknown"
	}
}

type QRPoll struct {
	Status       QRStatus
	SteamID      string
	AccountName  string
	RefreshToken string // set when Status == QRConfirmed

	// Steam may rotate challenge url while the code is displayed
	NewChallengeURL string
}
