// Package qrlogin drives Steam QR login of a user and stores the obtained refresh token
package qrlogin

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nkiryanov/fireshare/internal/apperrors"
	"github.com/nkiryanov/fireshare/internal/logger"
	"github.com/nkiryanov/fireshare/internal/metrics"
	"github.com/nkiryanov/fireshare/internal/models"
	"github.com/nkiryanov/fireshare/internal/repository"
	"github.com/nkiryanov/fireshare/internal/steam"
)

const (
	DefaultChallengeTTL = 2 * time.Minute
	defaultPollInterval = 5 * time.Second
)

type challenge struct {
	info      models.QRChallenge
	requestID []byte
	awaiting  bool

	done      chan struct{} // closed when challenge is cancelled or replaced
	closeOnce sync.Once
}

func (c *challenge) discard() {
	c.closeOnce.Do(func() { close(c.done) })
}

type Orchestrator struct {
	auth    steam.Authenticator
	storage repository.Storage
	ttl     time.Duration
	now     func() time.Time

	logger  logger.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	challenges map[string]*challenge // by client id
	byUser     map[string]string     // user id -> client id
}

func New(auth steam.Authenticator, storage repository.Storage, ttl time.Duration, l logger.Logger, m *metrics.Metrics) *Orchestrator {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}

	return &Orchestrator{
		auth:       auth,
		storage:    storage,
		ttl:        ttl,
		now:        time.Now,
		logger:     l,
		metrics:    m,
		challenges: make(map[string]*challenge),
		byUser:     make(map[string]string),
	}
}

// Start QR login for the user. Previous challenge of the user becomes inert.
func (o *Orchestrator) BeginChallenge(ctx context.Context, userID string) (models.QRChallenge, error) {
	start, err := o.auth.StartWithQR(ctx)
	if err != nil {
		return models.QRChallenge{}, fmt.Errorf("start qr login: %w", err)
	}

	if start.PollInterval <= 0 {
		start.PollInterval = defaultPollInterval
	}

	c := &challenge{
		info: models.QRChallenge{
			UserID:       userID,
			ClientID:     start.ClientID,
			RequestID:    base64.StdEncoding.EncodeToString(start.RequestID),
			PollInterval: start.PollInterval,
			ChallengeURL: start.ChallengeURL,
			Version:      start.Version,
			// QR code doesn't know yet how user is going to confirm
			AllowedConfirmations: []string{},
			ExpiresAt:            o.now().Add(o.ttl),
		},
		requestID: start.RequestID,
		done:      make(chan struct{}),
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.sweep()
	if prev, ok := o.challenges[o.byUser[userID]]; ok {
		o.remove(prev)
	}
	o.challenges[c.info.ClientID] = c
	o.byUser[userID] = c.info.ClientID

	o.logger.Debug("QR challenge started", "user_id", userID, "client_id", c.info.ClientID)
	return c.info, nil
}

// Returned by AwaitCompletion when the wait of the call ran out while the challenge is still valid.
// Challenge holds the current QR code, Steam may have rotated it since the start.
type PendingError struct {
	Challenge models.QRChallenge
}

func (e *PendingError) Error() string {
	return apperrors.ErrChallengePending.Error()
}

func (e *PendingError) Unwrap() error {
	return apperrors.ErrChallengePending
}

// Poll Steam until the challenge is confirmed, rejected or expired.
// Refresh token is stored before it is returned. On any failure stored token is left as is.
// When only timeout (or ctx) ends the wait the challenge is kept and may be awaited again,
// otherwise it is discarded when the call returns.
func (o *Orchestrator) AwaitCompletion(ctx context.Context, userID string, clientID string, timeout time.Duration) (string, error) {
	c, err := o.acquire(userID, clientID)
	if err != nil {
		return "", err
	}

	token, err := o.poll(ctx, c, timeout)
	if errors.Is(err, apperrors.ErrChallengePending) || (err != nil && ctx.Err() != nil) {
		o.mu.Lock()
		c.awaiting = false
		info := c.info
		o.mu.Unlock()

		o.logger.Debug("QR challenge still pending", "user_id", userID, "client_id", clientID)
		if !errors.Is(err, apperrors.ErrChallengePending) {
			return "", err
		}
		return "", &PendingError{Challenge: info}
	}

	o.mu.Lock()
	o.remove(c)
	o.mu.Unlock()

	o.metrics.QRLogin(outcome(err))
	if err != nil {
		o.logger.Info("QR login failed", "user_id", userID, "client_id", clientID, "error", err)
		return "", err
	}

	o.logger.Info("QR login completed", "user_id", userID)
	return token, nil
}

// Drop the challenge. Running AwaitCompletion returns ErrChallengeNotFound.
func (o *Orchestrator) Cancel(userID string, clientID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	c, ok := o.challenges[clientID]
	if !ok || c.info.UserID != userID {
		return apperrors.ErrChallengeNotFound
	}
	o.remove(c)
	return nil
}

func (o *Orchestrator) acquire(userID string, clientID string) (*challenge, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	c, ok := o.challenges[clientID]
	switch {
	case !ok || c.info.UserID != userID:
		return nil, apperrors.ErrChallengeNotFound
	case c.awaiting:
		return nil, apperrors.ErrChallengeBusy
	case c.info.Expired(o.now()):
		o.remove(c)
		return nil, apperrors.ErrTimedOut
	}

	c.awaiting = true
	return c, nil
}

func (o *Orchestrator) poll(ctx context.Context, c *challenge, timeout time.Duration) (string, error) {
	deadline := c.info.ExpiresAt
	if timeout > 0 && o.now().Add(timeout).Before(deadline) {
		deadline = o.now().Add(timeout)
	}

	pollCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(c.info.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return "", fmt.Errorf("challenge cancelled: %w", apperrors.ErrChallengeNotFound)
		case <-pollCtx.Done():
			if err := ctx.Err(); err != nil {
				return "", err
			}
			if !c.info.Expired(o.now()) {
				return "", apperrors.ErrChallengePending
			}
			return "", apperrors.ErrTimedOut
		case <-ticker.C:
		}

		poll, err := o.auth.PollQR(pollCtx, c.info.ClientID, c.requestID)
		if err != nil {
			if pollCtx.Err() != nil {
				continue
			}
			return "", fmt.Errorf("poll qr login: %w", err)
		}

		switch poll.Status {
		case steam.QRPending:
			if poll.NewChallengeURL != "" {
				o.mu.Lock()
				c.info.ChallengeURL = poll.NewChallengeURL
				o.mu.Unlock()
			}
			continue
		case steam.QRRejected:
			return "", apperrors.ErrRejected
		case steam.QRExpired:
			return "", apperrors.ErrTimedOut
		case steam.QRConfirmed:
			return o.complete(ctx, c, poll)
		default:
			return "", fmt.Errorf("unexpected qr status %s: %w", poll.Status, apperrors.ErrTransport)
		}
	}
}

func (o *Orchestrator) complete(ctx context.Context, c *challenge, poll steam.QRPoll) (string, error) {
	// Confirmation that came after the validity window is stale
	if c.info.Expired(o.now()) {
		o.logger.Warn("Discard QR confirmation of expired challenge", "user_id", c.info.UserID, "client_id", c.info.ClientID)
		return "", apperrors.ErrTimedOut
	}

	select {
	case <-c.done:
		return "", fmt.Errorf("challenge cancelled: %w", apperrors.ErrChallengeNotFound)
	default:
	}

	if poll.SteamID != c.info.UserID {
		return "", apperrors.ErrAccountMismatch
	}

	err := o.storage.InTx(ctx, func(s repository.Storage) error {
		return s.Credential().SetRefreshToken(ctx, c.info.UserID, poll.RefreshToken)
	})
	if err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}

	return poll.RefreshToken, nil
}

// Must be called with o.mu held
func (o *Orchestrator) remove(c *challenge) {
	c.discard()
	if o.challenges[c.info.ClientID] == c {
		delete(o.challenges, c.info.ClientID)
	}
	if _, ok := o.challenges[o.byUser[c.info.UserID]]; !ok {
		delete(o.byUser, c.info.UserID)
	}
}

// Drop expired challenges nobody waits for. Must be called with o.mu held
func (o *Orchestrator) sweep() {
	now := o.now()
	for _, c := range o.challenges {
		if !c.awaiting && c.info.Expired(now) {
			o.remove(c)
		}
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, apperrors.ErrTimedOut):
		return metrics.OutcomeTimedOut
	case errors.Is(err, apperrors.ErrRejected), errors.Is(err, apperrors.ErrAccountMismatch):
		return metrics.OutcomeRejected
	case errors.Is(err, apperrors.ErrTransport):
		return metrics.OutcomeTransport
	default:
		return metrics.OutcomeError
	}
}
