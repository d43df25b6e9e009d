package repository

import (
	"context"

	"github.com/nkiryanov/fireshare/internal/models"
)

// Per-user Steam credentials
type CredentialRepo interface {
	// Get credentials of the user
	// If user has no record must return apperrors.ErrUserNotFound
	Get(ctx context.Context, userID string) (models.Credential, error)

	// Set or replace refresh token. Creates the user record if missing
	SetRefreshToken(ctx context.Context, userID string, token string) error

	// Drop refresh token, the user has to log in again
	// Has no effect if user has no token
	ClearRefreshToken(ctx context.Context, userID string) error

	// Set or replace machine id. Creates the user record if missing
	SetMachineID(ctx context.Context, userID string, machineID string) error
}

// Declared lender -> borrower shares
type ShareRepo interface {
	// Add share. Must be idempotent: if share exists return it as is
	AddShare(ctx context.Context, lenderID string, borrowerID string) (models.ShareEdge, error)

	// Get share
	// If share not exists must return apperrors.ErrShareNotFound
	GetShare(ctx context.Context, lenderID string, borrowerID string) (models.ShareEdge, error)

	// Remove share
	// If share not exists must return apperrors.ErrShareNotFound
	RemoveShare(ctx context.Context, lenderID string, borrowerID string) error

	// Shares of lender ordered by creation time
	ListBorrowers(ctx context.Context, lenderID string) ([]models.ShareEdge, error)

	// Shares of borrower ordered by creation time
	ListLenders(ctx context.Context, borrowerID string) ([]models.ShareEdge, error)
}

type Storage interface {
	Credential() CredentialRepo
	Share() ShareRepo

	// Run fn in transaction. Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
