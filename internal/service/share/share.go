// Package share handles commands of lenders and borrowers on shares
package share

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nkiryanov/fireshare/internal/apperrors"
	"github.com/nkiryanov/fireshare/internal/logger"
	"github.com/nkiryanov/fireshare/internal/metrics"
	"github.com/nkiryanov/fireshare/internal/models"
	"github.com/nkiryanov/fireshare/internal/repository"
	"github.com/nkiryanov/fireshare/internal/service/devices"
	"github.com/nkiryanov/fireshare/internal/setupscript"
	"github.com/nkiryanov/fireshare/internal/steam"
	"github.com/nkiryanov/fireshare/internal/steamid"
)

// Bound of one coalesced share token request. It outlives the caller that started it.
const shareRequestTimeout = time.Minute

// Kinds of Steam state changes
const (
	MutationAuthorizeDevice = "authorize_device"
	MutationAddBorrower     = "add_borrower"
	MutationRemoveBorrower  = "remove_borrower"
)

type sessionOpener interface {
	WithSession(ctx context.Context, cred models.Credential, fn func(steam.Session) error) error
}

type Processor struct {
	storage  repository.Storage
	sessions sessionOpener

	// Requests of the same lender and borrower share one Steam round trip
	inflight singleflight.Group

	logger  logger.Logger
	metrics *metrics.Metrics
}

func New(storage repository.Storage, sessions sessionOpener, l logger.Logger, m *metrics.Metrics) *Processor {
	return &Processor{
		storage:  storage,
		sessions: sessions,
		logger:   l,
		metrics:  m,
	}
}

// Credential of the user. User without record gets empty credential.
func (p *Processor) Credential(ctx context.Context, userID string) (models.Credential, error) {
	cred, err := p.storage.Credential().Get(ctx, userID)
	if errors.Is(err, apperrors.ErrUserNotFound) {
		return models.Credential{UserID: userID}, nil
	}
	return cred, err
}

// Declare share. Adding existing share returns it as is.
func (p *Processor) AddShare(ctx context.Context, lenderID string, borrowerID string) (models.ShareEdge, error) {
	if !steamid.Valid(lenderID) || !steamid.Valid(borrowerID) {
		return models.ShareEdge{}, apperrors.ErrSteamIDInvalid
	}
	if lenderID == borrowerID {
		return models.ShareEdge{}, apperrors.ErrSelfShare
	}

	return p.storage.Share().AddShare(ctx, lenderID, borrowerID)
}

// Remove declared share. With revokeRemote borrower is also removed from lender's
// Steam borrowers. Revocation is best effort: its failure doesn't undo removal.
func (p *Processor) RemoveShare(ctx context.Context, lenderID string, borrowerID string, revokeRemote bool) error {
	if err := p.storage.Share().RemoveShare(ctx, lenderID, borrowerID); err != nil {
		return err
	}

	if revokeRemote {
		if err := p.revoke(ctx, lenderID, borrowerID); err != nil {
			p.logger.Warn("Share removed but borrower is still authorized on Steam",
				"lender_id", lenderID, "borrower_id", borrowerID, "error", err)
		}
	}

	return nil
}

func (p *Processor) revoke(ctx context.Context, lenderID string, borrowerID string) error {
	cred, err := p.lenderCredential(ctx, lenderID)
	if err != nil {
		return err
	}

	err = p.sessions.WithSession(ctx, cred, func(s steam.Session) error {
		return s.RemoveAuthorizedBorrowers(ctx, []string{borrowerID})
	})
	if err != nil {
		return p.steamError(ctx, cred, err)
	}

	p.metrics.RemoteMutation(MutationRemoveBorrower)
	return nil
}

// Device token of the borrower for the lender's library.
// Authorizes the device and the borrower on Steam when needed.
// Returns apperrors.ErrPendingAuth if lender has to log in to Steam first.
func (p *Processor) RequestShareToken(ctx context.Context, borrowerID string, lenderID string) (string, error) {
	key := lenderID + ":" + borrowerID

	// Shared call must not fail for the joiners when the caller that started it goes away
	ch := p.inflight.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shareRequestTimeout)
		defer cancel()
		return p.requestShareToken(ctx, borrowerID, lenderID)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Shared {
			p.logger.Debug("Share token request joined", "lender_id", lenderID, "borrower_id", borrowerID)
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (p *Processor) requestShareToken(ctx context.Context, borrowerID string, lenderID string) (string, error) {
	if _, err := p.storage.Share().GetShare(ctx, lenderID, borrowerID); err != nil {
		return "", err
	}

	borrower, err := p.Credential(ctx, borrowerID)
	if err != nil {
		return "", err
	}
	if !borrower.HasMachineID() {
		return "", apperrors.ErrMachineIDRequired
	}

	// Token is read right before Steam is touched, it could be changed by QR login
	lender, err := p.lenderCredential(ctx, lenderID)
	if err != nil {
		return "", err
	}

	var token string
	err = p.sessions.WithSession(ctx, lender, func(s steam.Session) error {
		var err error
		token, err = p.ensureDevice(ctx, s, borrowerID)
		if err != nil {
			return err
		}
		return p.ensureBorrower(ctx, s, borrowerID)
	})
	if err != nil {
		return "", p.steamError(ctx, lender, err)
	}

	p.logger.Info("Share token issued", "lender_id", lenderID, "borrower_id", borrowerID)
	return token, nil
}

func (p *Processor) ensureDevice(ctx context.Context, s steam.Session, borrowerID string) (string, error) {
	authorized, err := s.AuthorizedDevices(ctx)
	if err != nil {
		return "", fmt.Errorf("authorized devices: %w", err)
	}

	if d, ok := devices.MatchDevice(authorized, borrowerID); ok {
		return d.DeviceToken, nil
	}

	token, err := s.AuthorizeDevice(ctx, devices.CanonicalName(borrowerID))
	if err != nil {
		return "", fmt.Errorf("authorize device: %w", err)
	}
	p.metrics.RemoteMutation(MutationAuthorizeDevice)

	return token, nil
}

func (p *Processor) ensureBorrower(ctx context.Context, s steam.Session, borrowerID string) error {
	borrowers, err := s.AuthorizedBorrowers(ctx)
	if err != nil {
		return fmt.Errorf("authorized borrowers: %w", err)
	}
	if slices.Contains(borrowers, borrowerID) {
		return nil
	}

	if err := s.AddAuthorizedBorrowers(ctx, []string{borrowerID}); err != nil {
		return fmt.Errorf("add authorized borrower: %w", err)
	}
	p.metrics.RemoteMutation(MutationAddBorrower)

	return nil
}

// Setup script with the device token of the borrower
func (p *Processor) ShareScript(ctx context.Context, borrowerID string, lenderID string) (setupscript.Script, error) {
	lender, err := steamid.Parse(lenderID)
	if err != nil {
		return setupscript.Script{}, err
	}

	token, err := p.RequestShareToken(ctx, borrowerID, lenderID)
	if err != nil {
		return setupscript.Script{}, err
	}

	return setupscript.Render(setupscript.Params{
		LenderID:    lenderID,
		SteamID:     lender.Short(),
		DeviceToken: token,
		DeviceName:  devices.CanonicalName(borrowerID),
	})
}

func (p *Processor) SetMachineID(ctx context.Context, userID string, machineID string) error {
	if len(machineID) != models.MachineIDLength {
		return apperrors.ErrMachineIDInvalid
	}
	return p.storage.Credential().SetMachineID(ctx, userID, machineID)
}

// Forget refresh token of the user
func (p *Processor) ResetRefreshToken(ctx context.Context, userID string) error {
	return p.storage.Credential().ClearRefreshToken(ctx, userID)
}

// Credential of lender with refresh token, apperrors.ErrPendingAuth otherwise
func (p *Processor) lenderCredential(ctx context.Context, lenderID string) (models.Credential, error) {
	cred, err := p.Credential(ctx, lenderID)
	if err != nil {
		return cred, err
	}
	if !cred.IsAuthenticated() {
		return cred, fmt.Errorf("lender %s: %w", lenderID, apperrors.ErrPendingAuth)
	}
	return cred, nil
}

// Steam refused lender token: drop it and ask for new login
func (p *Processor) steamError(ctx context.Context, lender models.Credential, err error) error {
	if !errors.Is(err, apperrors.ErrAuthFailure) {
		return err
	}

	if err := devices.ClearStaleToken(ctx, p.storage, lender); err != nil {
		p.logger.Error("Failed to clear stale refresh token", "lender_id", lender.UserID, "error", err)
	}

	return fmt.Errorf("lender %s: %w", lender.UserID, apperrors.ErrPendingAuth)
}
