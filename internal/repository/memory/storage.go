// Package memory keeps credentials and shares in process memory.
// Used in tests and when service started without database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/fireshare/internal/models"
	"github.com/nkiryanov/fireshare/internal/repository"
)

type pair struct {
	lender   string
	borrower string
}

type state struct {
	credentials map[string]models.Credential
	shares      map[pair]models.ShareEdge
}

func (s *state) clone() *state {
	c := &state{
		credentials: make(map[string]models.Credential, len(s.credentials)),
		shares:      make(map[pair]models.ShareEdge, len(s.shares)),
	}
	for k, v := range s.credentials {
		c.credentials[k] = v
	}
	for k, v := range s.shares {
		c.shares[k] = v
	}
	return c
}

type Storage struct {
	mu    *sync.RWMutex
	txMu  *sync.Mutex // serializes transactions
	state *state
}

func NewStorage() *Storage {
	return &Storage{
		mu:   &sync.RWMutex{},
		txMu: &sync.Mutex{},
		state: &state{
			credentials: make(map[string]models.Credential),
			shares:      make(map[pair]models.ShareEdge),
		},
	}
}

func (s *Storage) Credential() repository.CredentialRepo {
	return &CredentialRepo{s: s}
}

func (s *Storage) Share() repository.ShareRepo {
	return &ShareRepo{s: s}
}

// Run fn against a copy of the data; the copy replaces the data only if fn succeeds
func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	tx := &Storage{mu: &sync.RWMutex{}, txMu: &sync.Mutex{}, state: snapshot}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = tx.state
	s.mu.Unlock()

	return nil
}

// Lock for writing. Writes wait for running transaction, otherwise its commit would lose them
func (s *Storage) lock() func() {
	s.txMu.Lock()
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		s.txMu.Unlock()
	}
}

func sortShares(shares []models.ShareEdge) {
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].CreatedAt.Equal(shares[j].CreatedAt) {
			return shares[i].ID.String() < shares[j].ID.String()
		}
		return shares[i].CreatedAt.Before(shares[j].CreatedAt)
	})
}

func newShare(lenderID, borrowerID string) models.ShareEdge {
	return models.ShareEdge{
		ID:         uuid.New(),
		LenderID:   lenderID,
		BorrowerID: borrowerID,
		CreatedAt:  time.Now(),
	}
}
