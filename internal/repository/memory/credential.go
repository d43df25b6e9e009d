package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/nkiryanov/fireshare/internal/apperrors"
	"github.com/nkiryanov/fireshare/internal/models"
)

type CredentialRepo struct {
	s *Storage
}

func (r *CredentialRepo) Get(_ context.Context, userID string) (models.Credential, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.state.credentials[userID]
	if !ok {
		return c, fmt.Errorf("repo error: %w", apperrors.ErrUserNotFound)
	}
	return c, nil
}

func (r *CredentialRepo) SetRefreshToken(_ context.Context, userID string, token string) error {
	r.update(userID, func(c *models.Credential) {
		c.RefreshToken = &token
	})
	return nil
}

func (r *CredentialRepo) ClearRefreshToken(_ context.Context, userID string) error {
	unlock := r.s.lock()
	defer unlock()

	c, ok := r.s.state.credentials[userID]
	if !ok || c.RefreshToken == nil {
		return nil
	}
	c.RefreshToken = nil
	c.UpdatedAt = time.Now()
	r.s.state.credentials[userID] = c
	return nil
}

func (r *CredentialRepo) SetMachineID(_ context.Context, userID string, machineID string) error {
	if len(machineID) != models.MachineIDLength {
		return fmt.Errorf("repo error: %w", apperrors.ErrMachineIDInvalid)
	}

	r.update(userID, func(c *models.Credential) {
		c.MachineID = &machineID
	})
	return nil
}

func (r *CredentialRepo) update(userID string, fn func(*models.Credential)) {
	unlock := r.s.lock()
	defer unlock()

	c, ok := r.s.state.credentials[userID]
	if !ok {
		c = models.Credential{UserID: userID}
	}
	fn(&c)
	c.UpdatedAt = time.Now()
	r.s.state.credentials[userID] = c
}
