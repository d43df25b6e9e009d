// Package lending builds borrower and lender views of shares from local intent and Steam state
package lending

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nkiryanov/fireshare/internal/apperrors"
	"github.com/nkiryanov/fireshare/internal/logger"
	"github.com/nkiryanov/fireshare/internal/models"
	"github.com/nkiryanov/fireshare/internal/repository"
	"github.com/nkiryanov/fireshare/internal/service/devices"
)

// Lenders resolved at once for a single view
const DefaultFanoutLimit = 4

type resolver interface {
	Resolve(ctx context.Context, cred models.Credential) (devices.Resolution, error)
}

type Reconciler struct {
	storage  repository.Storage
	resolver resolver
	limit    int
	logger   logger.Logger
}

func New(storage repository.Storage, resolver resolver, limit int, l logger.Logger) *Reconciler {
	if limit <= 0 {
		limit = DefaultFanoutLimit
	}

	return &Reconciler{
		storage:  storage,
		resolver: resolver,
		limit:    limit,
		logger:   l,
	}
}

// Lend view of every lender of the borrower
func (r *Reconciler) BuildBorrowerView(ctx context.Context, borrowerID string) ([]models.LendInfo, error) {
	edges, err := r.storage.Share().ListLenders(ctx, borrowerID)
	if err != nil {
		return nil, err
	}

	lenderIDs := make([]string, 0, len(edges))
	for _, e := range edges {
		lenderIDs = append(lenderIDs, e.LenderID)
	}

	return r.BuildLendView(ctx, borrowerID, lenderIDs)
}

// One entry per lender id in the same order.
// Lenders without refresh token are not resolved at all.
// Steam failure of a lender turns only its entry to unauthenticated.
func (r *Reconciler) BuildLendView(ctx context.Context, borrowerID string, lenderIDs []string) ([]models.LendInfo, error) {
	view := make([]models.LendInfo, len(lenderIDs))

	g := errgroup.Group{}
	g.SetLimit(r.limit)

	for i, lenderID := range lenderIDs {
		view[i] = models.UnauthenticatedLendInfo(lenderID)

		cred, ok, err := r.credential(ctx, lenderID)
		if err != nil {
			_ = g.Wait()
			return nil, err
		}
		if !ok {
			continue
		}

		g.Go(func() error {
			res, err := r.resolver.Resolve(ctx, cred)
			if err != nil {
				r.degrade(ctx, cred, err)
				return nil
			}
			view[i] = lendInfo(lenderID, borrowerID, res)
			return nil
		})
	}

	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return view, nil
}

// Shares of the lender with device details of every borrower.
// Without lender session the rows have no Steam details.
func (r *Reconciler) ListShares(ctx context.Context, lenderID string) ([]models.ShareInfo, error) {
	edges, err := r.storage.Share().ListBorrowers(ctx, lenderID)
	if err != nil {
		return nil, err
	}

	shares := make([]models.ShareInfo, 0, len(edges))
	for _, e := range edges {
		shares = append(shares, models.ShareInfo{BorrowerID: e.BorrowerID})
	}

	cred, ok, err := r.credential(ctx, lenderID)
	if err != nil || !ok || len(shares) == 0 {
		return shares, err
	}

	res, err := r.resolver.Resolve(ctx, cred)
	if err != nil {
		r.degrade(ctx, cred, err)
		return shares, nil
	}

	for i := range shares {
		if d, ok := devices.MatchDevice(res.Devices, shares[i].BorrowerID); ok {
			shares[i].DeviceName = d.DeviceName
			shares[i].LastUsedAt = d.LastUsedAt
		}
		shares[i].InUse = res.Borrowers.Has(shares[i].BorrowerID)
	}

	return shares, nil
}

// Credential of the lender if the lender has refresh token
func (r *Reconciler) credential(ctx context.Context, lenderID string) (models.Credential, bool, error) {
	cred, err := r.storage.Credential().Get(ctx, lenderID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return cred, false, nil
	case err != nil:
		return cred, false, fmt.Errorf("get credential of %s: %w", lenderID, err)
	}
	return cred, cred.IsAuthenticated(), nil
}

func (r *Reconciler) degrade(ctx context.Context, cred models.Credential, err error) {
	r.logger.Warn("Failed to resolve lender, show it unauthenticated", "lender_id", cred.UserID, "error", err)

	if !errors.Is(err, apperrors.ErrAuthFailure) {
		return
	}
	if err := devices.ClearStaleToken(ctx, r.storage, cred); err != nil {
		r.logger.Error("Failed to clear stale refresh token", "lender_id", cred.UserID, "error", err)
	}
}

func lendInfo(lenderID string, borrowerID string, res devices.Resolution) models.LendInfo {
	info := models.LendInfo{
		LenderID:                   lenderID,
		IsAuthenticated:            true,
		BorrowerInCurrentShareList: res.Borrowers.Has(borrowerID),
	}

	if d, ok := devices.MatchDevice(res.Devices, borrowerID); ok {
		token := d.DeviceToken
		info.BorrowerAuthorizedDeviceToken = &token
	}

	return info
}
