// Package devices resolves Steam side sharing state of a lender
package devices

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nkiryanov/fireshare/internal/apperrors"
	"github.com/nkiryanov/fireshare/internal/logger"
	"github.com/nkiryanov/fireshare/internal/metrics"
	"github.com/nkiryanov/fireshare/internal/models"
	"github.com/nkiryanov/fireshare/internal/repository"
	"github.com/nkiryanov/fireshare/internal/steam"
)

const namePrefix = "FireShare "

// Name of the sharing device authorized for the borrower.
// Depends on borrower id only, so the same borrower always gets the same name.
func CanonicalName(borrowerID string) string {
	return namePrefix + borrowerID
}

// Find not revoked device authorized for the borrower
func MatchDevice(devices []models.AuthorizedDevice, borrowerID string) (models.AuthorizedDevice, bool) {
	name := CanonicalName(borrowerID)
	for _, d := range devices {
		if d.DeviceName == name && !d.IsRevoked {
			return d, true
		}
	}
	return models.AuthorizedDevice{}, false
}

// Steam state of a lender at the moment of resolution
type Resolution struct {
	Devices   []models.AuthorizedDevice
	Borrowers models.BorrowerSet
}

type Resolver struct {
	auth    steam.Authenticator
	logger  logger.Logger
	metrics *metrics.Metrics
}

func NewResolver(auth steam.Authenticator, l logger.Logger, m *metrics.Metrics) *Resolver {
	return &Resolver{
		auth:    auth,
		logger:  l,
		metrics: m,
	}
}

// Open lender session, run fn and close the session.
// Credential must have refresh token, it is checked by the callers.
func (r *Resolver) WithSession(ctx context.Context, cred models.Credential, fn func(steam.Session) error) error {
	if !cred.IsAuthenticated() {
		return fmt.Errorf("resolve %s: %w", cred.UserID, apperrors.ErrNoRefreshToken)
	}

	session, err := r.auth.Authenticate(ctx, cred.UserID, *cred.RefreshToken)
	if err != nil {
		return fmt.Errorf("steam authenticate: %w", err)
	}
	defer func() {
		if err := session.Close(ctx); err != nil {
			r.logger.Warn("Failed to close steam session", "lender_id", cred.UserID, "error", err)
		}
	}()

	return fn(session)
}

// Fetch authorized devices and borrowers of the lender.
// A revoked token is reported as apperrors.ErrAuthFailure, never as empty result.
func (r *Resolver) Resolve(ctx context.Context, cred models.Credential) (Resolution, error) {
	var res Resolution

	err := r.WithSession(ctx, cred, func(s steam.Session) error {
		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			devices, err := s.AuthorizedDevices(gctx)
			if err != nil {
				return fmt.Errorf("authorized devices: %w", err)
			}
			res.Devices = devices
			return nil
		})

		g.Go(func() error {
			borrowers, err := s.AuthorizedBorrowers(gctx)
			if err != nil {
				return fmt.Errorf("authorized borrowers: %w", err)
			}
			res.Borrowers = models.NewBorrowerSet(borrowers...)
			return nil
		})

		return g.Wait()
	})

	r.metrics.LenderResolved(Outcome(err))
	if err != nil {
		return Resolution{}, err
	}

	return res, nil
}

// Drop refresh token Steam refused. Token is dropped only if it wasn't replaced
// since cred was read: a concurrent QR login may have stored a fresh one.
func ClearStaleToken(ctx context.Context, storage repository.Storage, cred models.Credential) error {
	if !cred.IsAuthenticated() {
		return nil
	}

	return storage.InTx(ctx, func(s repository.Storage) error {
		current, err := s.Credential().Get(ctx, cred.UserID)
		switch {
		case errors.Is(err, apperrors.ErrUserNotFound):
			return nil
		case err != nil:
			return err
		case !current.IsAuthenticated() || *current.RefreshToken != *cred.RefreshToken:
			return nil
		}
		return s.Credential().ClearRefreshToken(ctx, cred.UserID)
	})
}

// Metrics outcome label of steam related error
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, apperrors.ErrAuthFailure):
		return metrics.OutcomeAuthFailure
	case errors.Is(err, apperrors.ErrTransport), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeTransport
	default:
		return metrics.OutcomeError
	}
}
