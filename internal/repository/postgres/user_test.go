package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/numrent/internal/apperrors"
	"github.com/nkiryanov/numrent/internal/testutil"
)

func Test_UserRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("create user ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			user, err := r.CreateUser(t.Context(), "testuser")

			require.NoError(t, err)
			assert.Equal(t, "testuser", user.Username)
			assert.True(t, user.Balance.IsZero(), "new user balance has to be zero")
			assert.True(t, user.FrozenBalance.IsZero(), "new user frozen balance has to be zero")
			assert.WithinDuration(t, time.Now(), user.CreatedAt, time.Second, "CreatedAt should be recent")
		})
	})

	t.Run("create user twice", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			_, err := r.CreateUser(t.Context(), "twice")
			require.NoError(t, err)

			_, err = r.CreateUser(t.Context(), "twice")

			require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists, "should return well known error")
		})
	})

	t.Run("get user ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), "findbyid")
			require.NoError(t, err)

			for _, lock := range []bool{false, true} {
				got, err := r.GetUser(t.Context(), created.ID, lock)

				require.NoError(t, err)
				assert.Equal(t, created.ID, got.ID)
				assert.Equal(t, created.Username, got.Username)
				assert.Equal(t, created.CreatedAt, got.CreatedAt)
			}
		})
	})

	t.Run("get user not found", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.GetUser(t.Context(), uuid.New(), false)

			assert.ErrorIs(t, err, apperrors.ErrUserNotFound, "should return well known error")
		})
	})

	t.Run("set counters ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), "counters")
			require.NoError(t, err)

			user, err := r.SetCounters(t.Context(), created.ID, decimal.NewFromInt(100), decimal.NewFromInt(30))

			require.NoError(t, err)
			require.True(t, user.Balance.Equal(decimal.NewFromInt(100)))
			require.True(t, user.FrozenBalance.Equal(decimal.NewFromInt(30)))
			require.True(t, user.Available().Equal(decimal.NewFromInt(70)))
		})
	})

	t.Run("set counters rejects frozen above balance", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), "overfrozen")
			require.NoError(t, err)

			_, err = r.SetCounters(t.Context(), created.ID, decimal.NewFromInt(10), decimal.NewFromInt(11))

			require.Error(t, err, "db constraint must reject negative available balance")
		})
	})

	t.Run("set counters user not found", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.SetCounters(t.Context(), uuid.New(), decimal.Zero, decimal.Zero)

			require.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})
}
