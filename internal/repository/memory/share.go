package memory

import (
	"context"
	"fmt"

	"github.com/nkiryanov/fireshare/internal/apperrors"
	"github.com/nkiryanov/fireshare/internal/models"
)

type ShareRepo struct {
	s *Storage
}

func (r *ShareRepo) AddShare(_ context.Context, lenderID string, borrowerID string) (models.ShareEdge, error) {
	if lenderID == borrowerID {
		return models.ShareEdge{}, fmt.Errorf("repo error: %w", apperrors.ErrSelfShare)
	}

	unlock := r.s.lock()
	defer unlock()

	key := pair{lender: lenderID, borrower: borrowerID}
	if share, ok := r.s.state.shares[key]; ok {
		return share, nil
	}

	share := newShare(lenderID, borrowerID)
	r.s.state.shares[key] = share
	return share, nil
}

func (r *ShareRepo) GetShare(_ context.Context, lenderID string, borrowerID string) (models.ShareEdge, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	share, ok := r.s.state.shares[pair{lender: lenderID, borrower: borrowerID}]
	if !ok {
		return share, fmt.Errorf("repo error: %w", apperrors.ErrShareNotFound)
	}
	return share, nil
}

func (r *ShareRepo) RemoveShare(_ context.Context, lenderID string, borrowerID string) error {
	unlock := r.s.lock()
	defer unlock()

	key := pair{lender: lenderID, borrower: borrowerID}
	if _, ok := r.s.state.shares[key]; !ok {
		return fmt.Errorf("repo error: %w", apperrors.ErrShareNotFound)
	}
	delete(r.s.state.shares, key)
	return nil
}

func (r *ShareRepo) ListBorrowers(_ context.Context, lenderID string) ([]models.ShareEdge, error) {
	return r.filter(func(p pair) bool { return p.lender == lenderID }), nil
}

func (r *ShareRepo) ListLenders(_ context.Context, borrowerID string) ([]models.ShareEdge, error) {
	return r.filter(func(p pair) bool { return p.borrower == borrowerID }), nil
}

func (r *ShareRepo) filter(match func(pair) bool) []models.ShareEdge {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	shares := make([]models.ShareEdge, 0)
	for key, share := range r.s.state.shares {
		if match(key) {
			shares = append(shares, share)
		}
	}
	sortShares(shares)
	return shares
}
