package postgres

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/fireshare/internal/apperrors"
	"github.com/nkiryanov/fireshare/internal/testutil"
)

func Test_CredentialRepo(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	userID := testutil.SteamID(0)
	machineID := testutil.MachineID("machine")

	t.Run("get not existed", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := CredentialRepo{DB: tx}

			_, err := repo.Get(t.Context(), userID)

			require.Error(t, err)
			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			require.ErrorIs(t, err, apperrors.ErrNotFound, "user not found has to be a kind of not found")
		})
	})

	t.Run("set refresh token creates user", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := CredentialRepo{DB: tx}

			err := repo.SetRefreshToken(t.Context(), userID, "refresh-1")
			require.NoError(t, err)

			got, err := repo.Get(t.Context(), userID)

			require.NoError(t, err)
			require.Equal(t, userID, got.UserID)
			require.NotNil(t, got.RefreshToken)
			require.Equal(t, "refresh-1", *got.RefreshToken)
			require.Nil(t, got.MachineID, "machine id should not be set")
			require.True(t, got.IsAuthenticated())
			require.WithinDuration(t, time.Now(), got.UpdatedAt, time.Minute)
		})
	})

	t.Run("set refresh token replaces", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := CredentialRepo{DB: tx}
			require.NoError(t, repo.SetMachineID(t.Context(), userID, machineID))
			require.NoError(t, repo.SetRefreshToken(t.Context(), userID, "refresh-1"))

			err := repo.SetRefreshToken(t.Context(), userID, "refresh-2")
			require.NoError(t, err)

			got, err := repo.Get(t.Context(), userID)
			require.NoError(t, err)
			require.Equal(t, "refresh-2", *got.RefreshToken)
			require.NotNil(t, got.MachineID, "machine id must be kept")
			require.Equal(t, machineID, *got.MachineID)
		})
	})

	t.Run("clear refresh token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := CredentialRepo{DB: tx}
			require.NoError(t, repo.SetRefreshToken(t.Context(), userID, "refresh-1"))

			err := repo.ClearRefreshToken(t.Context(), userID)
			require.NoError(t, err)

			got, err := repo.Get(t.Context(), userID)
			require.NoError(t, err)
			require.Nil(t, got.RefreshToken)
			require.False(t, got.IsAuthenticated())
		})
	})

	t.Run("clear refresh token of unknown user is noop", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := CredentialRepo{DB: tx}

			err := repo.ClearRefreshToken(t.Context(), userID)

			require.NoError(t, err)
		})
	})

	t.Run("set machine id with wrong length", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := CredentialRepo{DB: tx}

			err := repo.SetMachineID(t.Context(), userID, "too-short")

			require.Error(t, err)
			require.ErrorIs(t, err, apperrors.ErrMachineIDInvalid)
		})
	})
}
