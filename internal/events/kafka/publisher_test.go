package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/numrent/internal/models"
)

func TestNewOrderSettled(t *testing.T) {
	orderID := uuid.New()
	userID := uuid.New()
	settledAt := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	event := NewOrderSettled(
		models.Order{
			ID:       orderID,
			UserID:   userID,
			Kind:     models.OrderKindActivation,
			Provider: "smsactivate",
			Status:   models.OrderStatusReceived,
			Charged:  true,
		},
		models.LedgerEntry{
			Type:      models.LedgerEntryCommit,
			Amount:    decimal.RequireFromString("12.50"),
			Reason:    "code received",
			CreatedAt: settledAt,
		},
	)

	data, err := json.Marshal(event)
	require.NoError(t, err)

	require.JSONEq(t, `{
		"order_id": "`+orderID.String()+`",
		"user_id": "`+userID.String()+`",
		"kind": "activation",
		"provider": "smsactivate",
		"status": "received",
		"charged": true,
		"amount": "12.5",
		"reason": "code received",
		"settled_at": "2025-05-01T10:00:00Z"
	}`, string(data))
}

func TestNoOpPublisher(t *testing.T) {
	var p NoOpPublisher

	require.NoError(t, p.PublishOrderSettled(t.Context(), OrderSettled{OrderID: uuid.New()}))
	require.NoError(t, p.Close())
}
