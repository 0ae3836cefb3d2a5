package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nkiryanov/numrent/internal/logger"
	"github.com/nkiryanov/numrent/internal/models"
	"github.com/nkiryanov/numrent/internal/service/provider"
	"github.com/nkiryanov/numrent/internal/service/settlement"
)

type Consumer struct {
	countWorkers int

	// Providers may rate-limit polling
	// If so all workers wait until the time is up
	waitUntil atomic.Int64

	providers providers
	handler   signalHandler
	logger    logger.Logger
}

func (c *Consumer) Consume(ctx context.Context, in <-chan models.Order) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < c.countWorkers; i++ {
		wg.Add(1)
		go func() {
			c.worker(ctx, in)
			wg.Done()
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("Consumer stopped")
	}()

	return idleStopped
}

func (c *Consumer) worker(ctx context.Context, in <-chan models.Order) {
	for {
		waitUntil := time.Unix(c.waitUntil.Load(), 0)
		if waitUntil.After(time.Now()) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Until(waitUntil)):
				continue
			}
		}

		select {
		case <-ctx.Done():
			return

		case order, ok := <-in:
			if !ok {
				c.logger.Debug("Consumer worker stopped, input channel closed")
				return
			}
			c.poll(ctx, order)
		}
	}
}

func (c *Consumer) poll(ctx context.Context, order models.Order) {
	log := c.logger.With("order_id", order.ID, "provider", order.Provider)

	if order.ProviderRef == nil {
		return
	}

	client, err := c.providers.Get(order.Provider)
	if err != nil {
		log.Error("Order has unknown provider", "error", err)
		return
	}

	poll, err := client.PollStatus(ctx, *order.ProviderRef)
	if err != nil {
		if wait, ok := provider.RetryAfter(err); ok {
			log.Info("Rate limit exceeded, waiting", "retry_after", wait)
			c.waitUntil.Store(time.Now().Add(wait).Unix())
			return
		}
		log.Warn("Failed to poll order status", "error", err)
		return
	}

	if poll.Status == provider.StatusWaiting {
		return
	}

	_, err = c.handler.Handle(ctx, settlement.Signal{
		Source:   settlement.SourcePoller,
		Provider: order.Provider,
		Ref:      *order.ProviderRef,
		Status:   poll.Status,
		Code:     poll.Code,
	})
	if err != nil {
		log.Error("Failed to handle polled status", "status", poll.Status, "error", err)
	}
}
