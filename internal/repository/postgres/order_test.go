package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/numrent/internal/apperrors"
	"github.com/nkiryanov/numrent/internal/models"
	"github.com/nkiryanov/numrent/internal/repository"
	"github.com/nkiryanov/numrent/internal/testutil"
)

func newTestOrder(userID uuid.UUID, status string) models.Order {
	return models.Order{
		UserID:       userID,
		Kind:         models.OrderKindActivation,
		Provider:     "smsactivate",
		Service:      "tg",
		Country:      "0",
		Price:        decimal.NewFromInt(10),
		FrozenAmount: decimal.NewFromInt(10),
		Status:       status,
		ExpiresAt:    time.Now().Add(20 * time.Minute),
	}
}

func TestOrders(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Create transaction and storage on the transaction
	// May be called several times(aka transaction in transaction)
	inTx := func(t *testing.T, outerTx DBTX, fn func(pgx.Tx, repository.Storage)) {
		testutil.InTx(outerTx, t, func(innerTx pgx.Tx) {
			fn(innerTx, NewStorage(innerTx))
		})
	}

	t.Run("CreateOrder", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			user, err := storage.User().CreateUser(t.Context(), "testuser")
			require.NoError(t, err)

			t.Run("create ok", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					order, err := storage.Order().CreateOrder(t.Context(), newTestOrder(user.ID, models.OrderStatusPending))

					require.NoError(t, err, "order has to be created ok")
					require.NotZero(t, order.ID)
					require.Equal(t, user.ID, order.UserID)
					require.Equal(t, models.OrderStatusPending, order.Status)
					require.True(t, order.FrozenAmount.Equal(decimal.NewFromInt(10)))
					require.False(t, order.Charged)
					require.Nil(t, order.ProviderRef)
					require.WithinDuration(t, time.Now(), order.CreatedAt, time.Second)
				})
			})

			t.Run("create for unknown user", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Order().CreateOrder(t.Context(), newTestOrder(uuid.New(), models.OrderStatusPending))

					require.ErrorIs(t, err, apperrors.ErrUserNotFound)
				})
			})

			t.Run("terminal order may not hold reservation", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Order().CreateOrder(t.Context(), newTestOrder(user.ID, models.OrderStatusTimeout))

					require.Error(t, err, "db constraint has to reject frozen terminal order")
				})
			})
		})
	})

	t.Run("GetOrder", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			user, err := storage.User().CreateUser(t.Context(), "testuser")
			require.NoError(t, err)
			created, err := storage.Order().CreateOrder(t.Context(), newTestOrder(user.ID, models.OrderStatusPending))
			require.NoError(t, err)

			got, err := storage.Order().GetOrder(t.Context(), created.ID)
			require.NoError(t, err)
			require.Equal(t, created.ID, got.ID)

			_, err = storage.Order().GetOrder(t.Context(), uuid.New())
			require.ErrorIs(t, err, apperrors.ErrOrderNotFound)
		})
	})

	t.Run("AttachProvider", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			user, err := storage.User().CreateUser(t.Context(), "testuser")
			require.NoError(t, err)

			t.Run("attach ok", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					created, err := storage.Order().CreateOrder(t.Context(), newTestOrder(user.ID, models.OrderStatusPending))
					require.NoError(t, err)

					order, err := storage.Order().AttachProvider(t.Context(), created.ID, "act-1", "79990001122", models.OrderStatusWaiting)

					require.NoError(t, err)
					require.Equal(t, models.OrderStatusWaiting, order.Status)
					require.Equal(t, "act-1", *order.ProviderRef)
					require.Equal(t, "79990001122", *order.Phone)

					byRef, err := storage.Order().GetOrderByRef(t.Context(), "smsactivate", "act-1")
					require.NoError(t, err)
					require.Equal(t, created.ID, byRef.ID)
				})
			})

			t.Run("attach not pending", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					created, err := storage.Order().CreateOrder(t.Context(), newTestOrder(user.ID, models.OrderStatusWaiting))
					require.NoError(t, err)

					_, err = storage.Order().AttachProvider(t.Context(), created.ID, "act-2", "7999", models.OrderStatusWaiting)

					require.ErrorIs(t, err, apperrors.ErrOrderAlreadySettled)
				})
			})

			t.Run("attach not found", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, err := storage.Order().AttachProvider(t.Context(), uuid.New(), "act-3", "7999", models.OrderStatusWaiting)

					require.ErrorIs(t, err, apperrors.ErrOrderNotFound)
				})
			})
		})
	})

	t.Run("Settle", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			user, err := storage.User().CreateUser(t.Context(), "testuser")
			require.NoError(t, err)

			t.Run("settle ok", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					created, err := storage.Order().CreateOrder(t.Context(), newTestOrder(user.ID, models.OrderStatusWaiting))
					require.NoError(t, err)

					order, released, err := storage.Order().Settle(t.Context(), repository.SettleOrderParams{
						OrderID: created.ID,
						From:    models.LiveOrderStatuses,
						To:      models.OrderStatusReceived,
						Charged: true,
					})

					require.NoError(t, err)
					require.True(t, released.Equal(decimal.NewFromInt(10)), "released amount has to be the reservation")
					require.Equal(t, models.OrderStatusReceived, order.Status)
					require.True(t, order.FrozenAmount.IsZero())
					require.True(t, order.Charged)
				})
			})

			t.Run("settle saves code", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					created, err := storage.Order().CreateOrder(t.Context(), newTestOrder(user.ID, models.OrderStatusWaiting))
					require.NoError(t, err)
					code := "5521"

					order, _, err := storage.Order().Settle(t.Context(), repository.SettleOrderParams{
						OrderID: created.ID,
						From:    models.LiveOrderStatuses,
						To:      models.OrderStatusReceived,
						Charged: true,
						Code:    &code,
					})

					require.NoError(t, err)
					require.NotNil(t, order.Code)
					require.Equal(t, "5521", *order.Code)

					stored, err := storage.Order().GetOrder(t.Context(), created.ID)
					require.NoError(t, err)
					require.Equal(t, "5521", *stored.Code)
				})
			})

			t.Run("settle without code", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					created, err := storage.Order().CreateOrder(t.Context(), newTestOrder(user.ID, models.OrderStatusWaiting))
					require.NoError(t, err)

					order, _, err := storage.Order().Settle(t.Context(), repository.SettleOrderParams{
						OrderID: created.ID,
						From:    models.LiveOrderStatuses,
						To:      models.OrderStatusTimeout,
					})

					require.NoError(t, err)
					require.Nil(t, order.Code)
				})
			})

			t.Run("settle twice", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					created, err := storage.Order().CreateOrder(t.Context(), newTestOrder(user.ID, models.OrderStatusWaiting))
					require.NoError(t, err)
					arg := repository.SettleOrderParams{OrderID: created.ID, From: models.LiveOrderStatuses, To: models.OrderStatusTimeout}
					_, _, err = storage.Order().Settle(t.Context(), arg)
					require.NoError(t, err)

					_, _, err = storage.Order().Settle(t.Context(), arg)

					require.ErrorIs(t, err, apperrors.ErrOrderAlreadySettled)
				})
			})

			t.Run("settle from not allowed status", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					created, err := storage.Order().CreateOrder(t.Context(), newTestOrder(user.ID, models.OrderStatusActive))
					require.NoError(t, err)

					_, _, err = storage.Order().Settle(t.Context(), repository.SettleOrderParams{
						OrderID: created.ID,
						From:    models.ExpirableOrderStatuses,
						To:      models.OrderStatusTimeout,
					})

					require.ErrorIs(t, err, apperrors.ErrOrderAlreadySettled, "active order is not expirable")
				})
			})

			t.Run("settle not found", func(t *testing.T) {
				inTx(t, tx, func(ttx pgx.Tx, storage repository.Storage) {
					_, _, err := storage.Order().Settle(t.Context(), repository.SettleOrderParams{
						OrderID: uuid.New(),
						From:    models.LiveOrderStatuses,
						To:      models.OrderStatusTimeout,
					})

					require.ErrorIs(t, err, apperrors.ErrOrderNotFound)
				})
			})
		})
	})

	t.Run("ListOrders", func(t *testing.T) {
		inTx(t, pg.Pool, func(tx pgx.Tx, storage repository.Storage) {
			user, err := storage.User().CreateUser(t.Context(), "testuser")
			require.NoError(t, err)
			now := time.Now()

			expiredLate := newTestOrder(user.ID, models.OrderStatusWaiting)
			expiredLate.ExpiresAt = now.Add(-time.Minute)
			expiredLate, err = storage.Order().CreateOrder(t.Context(), expiredLate)
			require.NoError(t, err)

			expiredEarly := newTestOrder(user.ID, models.OrderStatusPending)
			expiredEarly.ExpiresAt = now.Add(-time.Hour)
			expiredEarly, err = storage.Order().CreateOrder(t.Context(), expiredEarly)
			require.NoError(t, err)

			fresh, err := storage.Order().CreateOrder(t.Context(), newTestOrder(user.ID, models.OrderStatusWaiting))
			require.NoError(t, err)

			t.Run("expired oldest first", func(t *testing.T) {
				orders, err := storage.Order().ListOrders(t.Context(), repository.ListOrdersOpts{
					Statuses:      models.ExpirableOrderStatuses,
					ExpiredBefore: &now,
					OnlyFrozen:    true,
					ByExpiry:      true,
				})

				require.NoError(t, err)
				require.Len(t, orders, 2)
				require.Equal(t, expiredEarly.ID, orders[0].ID)
				require.Equal(t, expiredLate.ID, orders[1].ID)
			})

			t.Run("limit", func(t *testing.T) {
				orders, err := storage.Order().ListOrders(t.Context(), repository.ListOrdersOpts{ByExpiry: true, Limit: 1})

				require.NoError(t, err)
				require.Len(t, orders, 1)
				require.Equal(t, expiredEarly.ID, orders[0].ID)
			})

			t.Run("by user newest first", func(t *testing.T) {
				orders, err := storage.Order().ListOrders(t.Context(), repository.ListOrdersOpts{UserID: &user.ID})

				require.NoError(t, err)
				require.Len(t, orders, 3)
				require.Equal(t, fresh.ID, orders[0].ID)
			})

			t.Run("other user", func(t *testing.T) {
				other := uuid.New()
				orders, err := storage.Order().ListOrders(t.Context(), repository.ListOrdersOpts{UserID: &other})

				require.NoError(t, err)
				require.Empty(t, orders)
			})
		})
	})
}
