package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/fireshare/internal/apperrors"
	"github.com/nkiryanov/fireshare/internal/models"
)

type CredentialRepo struct {
	DB DBTX
}

const getCredential = `-- name: GetCredential
SELECT user_id, refresh_token, machine_id, updated_at
FROM credentials
WHERE user_id = $1
`

func (r *CredentialRepo) Get(ctx context.Context, userID string) (models.Credential, error) {
	rows, _ := r.DB.Query(ctx, getCredential, userID)
	c, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.Credential, error) {
		var c models.Credential
		err := row.Scan(&c.UserID, &c.RefreshToken, &c.MachineID, &c.UpdatedAt)
		return c, err
	})

	switch {
	case err == nil:
		return c, nil
	case errors.Is(err, pgx.ErrNoRows):
		return c, fmt.Errorf("repo error: %w", apperrors.ErrUserNotFound)
	default:
		return c, fmt.Errorf("db error: %w", err)
	}
}

const setRefreshToken = `-- name: SetRefreshToken
INSERT INTO credentials (user_id, refresh_token, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE
SET refresh_token = EXCLUDED.refresh_token, updated_at = EXCLUDED.updated_at
`

func (r *CredentialRepo) SetRefreshToken(ctx context.Context, userID string, token string) error {
	_, err := r.DB.Exec(ctx, setRefreshToken, userID, token)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const clearRefreshToken = `-- name: ClearRefreshToken
UPDATE credentials
SET refresh_token = NULL, updated_at = now()
WHERE user_id = $1 AND refresh_token IS NOT NULL
`

func (r *CredentialRepo) ClearRefreshToken(ctx context.Context, userID string) error {
	_, err := r.DB.Exec(ctx, clearRefreshToken, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

const setMachineID = `-- name: SetMachineID
INSERT INTO credentials (user_id, machine_id, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE
SET machine_id = EXCLUDED.machine_id, updated_at = EXCLUDED.updated_at
`

func (r *CredentialRepo) SetMachineID(ctx context.Context, userID string, machineID string) error {
	_, err := r.DB.Exec(ctx, setMachineID, userID, machineID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
			return fmt.Errorf("repo error: %w", apperrors.ErrMachineIDInvalid)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
