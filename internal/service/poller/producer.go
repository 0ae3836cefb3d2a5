package poller

import (
	"context"
	"time"

	"github.com/nkiryanov/numrent/internal/logger"
	"github.com/nkiryanov/numrent/internal/models"
	"github.com/nkiryanov/numrent/internal/repository"
)

type Producer struct {
	interval  time.Duration
	batchSize int
	orders    orderLister
	logger    logger.Logger
}

func (p *Producer) Produce(ctx context.Context, out chan<- models.Order) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting producer", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Producer stopped by context")
				return

			case <-ticker.C:
				orders, err := p.orders.ListOrders(ctx, repository.ListOrdersOpts{
					Kind:       models.OrderKindActivation,
					Statuses:   []string{models.OrderStatusWaiting},
					OnlyFrozen: true,
					WithRef:    true,
					ByExpiry:   true,
					Limit:      p.batchSize,
				})
				if err != nil {
					p.logger.Error("Failed to list waiting orders", "error", err)
					continue
				}

				p.logger.Debug("Producer tick", "orders", len(orders))

				for _, order := range orders {
					select {
					case <-ctx.Done():
						p.logger.Debug("Producer stopped by context while sending orders")
						return
					case out <- order:
					}
				}
			}
		}
	}()

	return idleStopped
}
