package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/fireshare/internal/apperrors"
	"github.com/nkiryanov/fireshare/internal/models"
)

type ShareRepo struct {
	DB DBTX
}

// Create share or return existing one as is
const addShare = `-- name: AddShare
WITH insert_share AS (
	INSERT INTO shares (id, lender_id, borrower_id, created_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (lender_id, borrower_id) DO NOTHING
	RETURNING id, lender_id, borrower_id, created_at
)
SELECT * FROM insert_share
UNION
SELECT id, lender_id, borrower_id, created_at FROM shares WHERE lender_id = $2 AND borrower_id = $3
`

func (r *ShareRepo) AddShare(ctx context.Context, lenderID string, borrowerID string) (models.ShareEdge, error) {
	rows, _ := r.DB.Query(ctx, addShare, uuid.New(), lenderID, borrowerID, time.Now())
	share, err := pgx.CollectOneRow(rows, rowToShare)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
			return share, fmt.Errorf("repo error: %w", apperrors.ErrSelfShare)
		}
		return share, fmt.Errorf("db error: %w", err)
	}

	return share, nil
}

const getShare = `-- name: GetShare
SELECT id, lender_id, borrower_id, created_at
FROM shares
WHERE lender_id = $1 AND borrower_id = $2
`

func (r *ShareRepo) GetShare(ctx context.Context, lenderID string, borrowerID string) (models.ShareEdge, error) {
	rows, _ := r.DB.Query(ctx, getShare, lenderID, borrowerID)
	share, err := pgx.CollectOneRow(rows, rowToShare)

	switch {
	case err == nil:
		return share, nil
	case errors.Is(err, pgx.ErrNoRows):
		return share, fmt.Errorf("repo error: %w", apperrors.ErrShareNotFound)
	default:
		return share, fmt.Errorf("db error: %w", err)
	}
}

const removeShare = `-- name: RemoveShare
DELETE FROM shares
WHERE lender_id = $1 AND borrower_id = $2
`

func (r *ShareRepo) RemoveShare(ctx context.Context, lenderID string, borrowerID string) error {
	tag, err := r.DB.Exec(ctx, removeShare, lenderID, borrowerID)

	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return fmt.Errorf("repo error: %w", apperrors.ErrShareNotFound)
	default:
		return nil
	}
}

const listBorrowers = `-- name: ListBorrowers
SELECT id, lender_id, borrower_id, created_at
FROM shares
WHERE lender_id = $1
ORDER BY created_at, borrower_id
`

func (r *ShareRepo) ListBorrowers(ctx context.Context, lenderID string) ([]models.ShareEdge, error) {
	rows, _ := r.DB.Query(ctx, listBorrowers, lenderID)
	shares, err := pgx.CollectRows(rows, rowToShare)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return shares, nil
}

const listLenders = `-- name: ListLenders
SELECT id, lender_id, borrower_id, created_at
FROM shares
WHERE borrower_id = $1
ORDER BY created_at, lender_id
`

func (r *ShareRepo) ListLenders(ctx context.Context, borrowerID string) ([]models.ShareEdge, error) {
	rows, _ := r.DB.Query(ctx, listLenders, borrowerID)
	shares, err := pgx.CollectRows(rows, rowToShare)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return shares, nil
}

func rowToShare(row pgx.CollectableRow) (models.ShareEdge, error) {
	var s models.ShareEdge
	err := row.Scan(&s.ID, &s.LenderID, &s.BorrowerID, &s.CreatedAt)
	return s, err
}
