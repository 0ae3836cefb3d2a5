package settlement

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/numrent/internal/apperrors"
	"github.com/nkiryanov/numrent/internal/logger"
	"github.com/nkiryanov/numrent/internal/models"
	"github.com/nkiryanov/numrent/internal/repository"
	"github.com/nkiryanov/numrent/internal/service/ledger"
	"github.com/nkiryanov/numrent/internal/service/provider"
)

type providers interface {
	Get(tag provider.Tag) (provider.Client, error)
}

// Canceller lets the owner give back an activation that has not received sms yet
type Canceller struct {
	storage   repository.Storage
	ledger    *ledger.Ledger
	providers providers
	logger    logger.Logger
}

func NewCanceller(storage repository.Storage, l *ledger.Ledger, providers providers, logger logger.Logger) *Canceller {
	return &Canceller{
		storage:   storage,
		ledger:    l,
		providers: providers,
		logger:    logger,
	}
}

// Cancel at the provider first, release the reservation after
// If the provider refuses, the reservation stays frozen and the error is returned
func (c *Canceller) Cancel(ctx context.Context, userID uuid.UUID, orderID uuid.UUID) (models.Order, error) {
	order, err := c.storage.Order().GetOrder(ctx, orderID)
	if err != nil {
		return order, err
	}

	if order.UserID != userID {
		return models.Order{}, apperrors.ErrOrderNotOwned
	}

	if order.Kind != models.OrderKindActivation || order.Status != models.OrderStatusWaiting || order.ProviderRef == nil {
		return order, apperrors.ErrOrderNotCancellable
	}

	client, err := c.providers.Get(order.Provider)
	if err != nil {
		return order, err
	}

	ctx = context.WithoutCancel(ctx)

	if err := client.Cancel(ctx, *order.ProviderRef); err != nil {
		c.logger.Warn("Provider refused to cancel", "order_id", order.ID, "error", err)
		return order, err
	}

	s, err := c.ledger.Refund(ctx, ledger.SettleParams{
		OrderID: order.ID,
		Status:  models.OrderStatusCancelled,
		From:    []string{models.OrderStatusWaiting},
		Reason:  "cancelled by user",
	})
	if err != nil {
		return order, err
	}

	// Lost the race with the completion signal or the sweeper, the order shows who won
	return s.Order, nil
}
