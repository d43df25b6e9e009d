// Package steamfake is an in-memory Steam for tests
package steamfake

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nkiryanov/fireshare/internal/apperrors"
	"github.com/nkiryanov/fireshare/internal/models"
	"github.com/nkiryanov/fireshare/internal/steam"
)

type Lender struct {
	RefreshToken string
	Devices      []models.AuthorizedDevice
	Borrowers    []string
}

type Steam struct {
	mu      sync.Mutex
	lenders map[string]*Lender
	fail    map[string]error // error returned on any call of the lender
	tokens  int

	// Delay of AuthorizeDevice to let concurrent callers overlap
	AuthorizeDelay time.Duration

	// QR login behavior. Poll gets number of the poll starting from 1
	QRStart steam.QRStart
	Poll    func(clientID string, n int) (steam.QRPoll, error)
	polls   atomic.Int64

	authenticates atomic.Int64
	authorizes    atomic.Int64
	adds          atomic.Int64
	removes       atomic.Int64
	opened        atomic.Int64
	closed        atomic.Int64
}

var _ steam.Authenticator = (*Steam)(nil)

func New() *Steam {
	return &Steam{
		lenders: make(map[string]*Lender),
		fail:    make(map[string]error),
		QRStart: steam.QRStart{
			ClientID:             "client-1",
			RequestID:            []byte("request-1"),
			PollInterval:         time.Millisecond,
			ChallengeURL:         "https://s.team/q/1/client-1",
			Version:              1,
			AllowedConfirmations: []string{"4"},
		},
	}
}

func (s *Steam) AddLender(lenderID string, l Lender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lenders[lenderID] = &l
}

// Make every call of the lender fail with err
func (s *Steam) Fail(lenderID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[lenderID] = err
}

func (s *Steam) Lender(lenderID string) Lender {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lenders[lenderID]
	if !ok {
		return Lender{}
	}
	return Lender{
		RefreshToken: l.RefreshToken,
		Devices:      slices.Clone(l.Devices),
		Borrowers:    slices.Clone(l.Borrowers),
	}
}

func (s *Steam) Authenticates() int { return int(s.authenticates.Load()) }
func (s *Steam) Authorizes() int    { return int(s.authorizes.Load()) }
func (s *Steam) Adds() int          { return int(s.adds.Load()) }
func (s *Steam) Removes() int       { return int(s.removes.Load()) }
func (s *Steam) Polls() int         { return int(s.polls.Load()) }

// Sessions opened but not closed
func (s *Steam) OpenSessions() int { return int(s.opened.Load() - s.closed.Load()) }

func (s *Steam) Authenticate(ctx context.Context, steamID string, refreshToken string) (steam.Session, error) {
	s.authenticates.Add(1)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrTransport, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fail[steamID]; err != nil {
		return nil, err
	}
	l, ok := s.lenders[steamID]
	if !ok || l.RefreshToken != refreshToken {
		return nil, apperrors.ErrAuthFailure
	}

	s.opened.Add(1)
	return &session{steam: s, steamID: steamID}, nil
}

func (s *Steam) StartWithQR(ctx context.Context) (steam.QRStart, error) {
	return s.QRStart, ctx.Err()
}

func (s *Steam) PollQR(ctx context.Context, clientID string, requestID []byte) (steam.QRPoll, error) {
	n := s.polls.Add(1)
	if err := ctx.Err(); err != nil {
		return steam.QRPoll{}, err
	}
	if s.Poll == nil {
		return steam.QRPoll{Status: steam.QRPending}, nil
	}
	return s.Poll(clientID, int(n))
}

type session struct {
	steam   *Steam
	steamID string
}

func (ss *session) SteamID() string {
	return ss.steamID
}

func (ss *session) lender() (*Lender, error) {
	if err := ss.steam.fail[ss.steamID]; err != nil {
		return nil, err
	}
	return ss.steam.lenders[ss.steamID], nil
}

func (ss *session) AuthorizedDevices(ctx context.Context) ([]models.AuthorizedDevice, error) {
	ss.steam.mu.Lock()
	defer ss.steam.mu.Unlock()

	l, err := ss.lender()
	if err != nil {
		return nil, err
	}
	return slices.Clone(l.Devices), nil
}

func (ss *session) AuthorizedBorrowers(ctx context.Context) ([]string, error) {
	ss.steam.mu.Lock()
	defer ss.steam.mu.Unlock()

	l, err := ss.lender()
	if err != nil {
		return nil, err
	}
	return slices.Clone(l.Borrowers), nil
}

func (ss *session) AuthorizeDevice(ctx context.Context, deviceName string) (string, error) {
	ss.steam.authorizes.Add(1)

	select {
	case <-time.After(ss.steam.AuthorizeDelay):
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", apperrors.ErrTransport, ctx.Err())
	}

	ss.steam.mu.Lock()
	defer ss.steam.mu.Unlock()

	l, err := ss.lender()
	if err != nil {
		return "", err
	}

	ss.steam.tokens++
	token := strconv.Itoa(1000 + ss.steam.tokens)
	l.Devices = append(l.Devices, models.AuthorizedDevice{DeviceName: deviceName, DeviceToken: token})

	return token, nil
}

func (ss *session) AddAuthorizedBorrowers(ctx context.Context, borrowerIDs []string) error {
	ss.steam.adds.Add(1)

	ss.steam.mu.Lock()
	defer ss.steam.mu.Unlock()

	l, err := ss.lender()
	if err != nil {
		return err
	}
	for _, id := range borrowerIDs {
		if !slices.Contains(l.Borrowers, id) {
			l.Borrowers = append(l.Borrowers, id)
		}
	}
	return nil
}

func (ss *session) RemoveAuthorizedBorrowers(ctx context.Context, borrowerIDs []string) error {
	ss.steam.removes.Add(1)

	ss.steam.mu.Lock()
	defer ss.steam.mu.Unlock()

	l, err := ss.lender()
	if err != nil {
		return err
	}
	l.Borrowers = slices.DeleteFunc(l.Borrowers, func(id string) bool {
		return slices.Contains(borrowerIDs, id)
	})
	return nil
}

func (ss *session) Close(ctx context.Context) error {
	ss.steam.closed.Add(1)
	return nil
}
