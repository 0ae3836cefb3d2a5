package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/numrent/internal/apperrors"
	"github.com/nkiryanov/numrent/internal/testutil"
)

func TestCatalog(t *testing.T) {
	t.Parallel()

	rc := testutil.StartRedisContainer(t)
	t.Cleanup(rc.Terminate)

	rdb, err := Connect(t.Context(), rc.Address)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	c := NewCatalog(rdb)

	t.Run("set and get", func(t *testing.T) {
		err := c.SetPrice(t.Context(), "smsactivate", "tg", "0", decimal.RequireFromString("12.5"))
		require.NoError(t, err)

		price, err := c.Price(t.Context(), "smsactivate", "tg", "0")

		require.NoError(t, err)
		require.True(t, price.Equal(decimal.RequireFromString("12.50")))
	})

	t.Run("price per provider", func(t *testing.T) {
		err := c.SetPrice(t.Context(), "fivesim", "tg", "0", decimal.NewFromInt(9))
		require.NoError(t, err)

		price, err := c.Price(t.Context(), "fivesim", "tg", "0")

		require.NoError(t, err)
		require.True(t, price.Equal(decimal.NewFromInt(9)))
	})

	t.Run("not found", func(t *testing.T) {
		_, err := c.Price(t.Context(), "smsactivate", "wa", "187")

		require.ErrorIs(t, err, apperrors.ErrPriceNotFound)
	})

	t.Run("deleted", func(t *testing.T) {
		require.NoError(t, c.SetPrice(t.Context(), "smsactivate", "vk", "0", decimal.NewFromInt(3)))
		require.NoError(t, c.DeletePrice(t.Context(), "smsactivate", "vk", "0"))

		_, err := c.Price(t.Context(), "smsactivate", "vk", "0")

		require.ErrorIs(t, err, apperrors.ErrPriceNotFound)
	})

	t.Run("malformed", func(t *testing.T) {
		require.NoError(t, rdb.Set(t.Context(), "price:smsactivate:ok:0", "abc", 0).Err())

		_, err := c.Price(t.Context(), "smsactivate", "ok", "0")

		require.Error(t, err)
		require.NotErrorIs(t, err, apperrors.ErrPriceNotFound)
	})

	t.Run("not positive rejected", func(t *testing.T) {
		err := c.SetPrice(t.Context(), "smsactivate", "tg", "0", decimal.Zero)

		require.ErrorIs(t, err, apperrors.ErrAmountInvalid)
	})

	t.Run("fraction of a cent rejected", func(t *testing.T) {
		err := c.SetPrice(t.Context(), "smsactivate", "tg", "0", decimal.RequireFromString("1.005"))
		require.ErrorIs(t, err, apperrors.ErrAmountInvalid)

		require.NoError(t, rdb.Set(t.Context(), "price:smsactivate:vk:0", "1.005", 0).Err())
		_, err = c.Price(t.Context(), "smsactivate", "vk", "0")

		require.Error(t, err)
		require.NotErrorIs(t, err, apperrors.ErrPriceNotFound)
	})
}
