package poller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/numrent/internal/logger"
	"github.com/nkiryanov/numrent/internal/models"
	"github.com/nkiryanov/numrent/internal/repository"
	"github.com/nkiryanov/numrent/internal/service/provider"
	"github.com/nkiryanov/numrent/internal/service/settlement"
)

type stubLister struct {
	mu     sync.Mutex
	orders []models.Order
	opts   []repository.ListOrdersOpts
}

func (l *stubLister) ListOrders(_ context.Context, opts repository.ListOrdersOpts) ([]models.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opts = append(l.opts, opts)
	return l.orders, nil
}

type stubClient struct {
	poll provider.Poll
	err  error
}

func (c *stubClient) CreateNumber(context.Context, string, string, string) (provider.Number, error) {
	return provider.Number{}, nil
}

func (c *stubClient) PollStatus(context.Context, string) (provider.Poll, error) {
	return c.poll, c.err
}

func (c *stubClient) Cancel(context.Context, string) error {
	return nil
}

type stubHandler struct {
	mu      sync.Mutex
	signals []settlement.Signal
}

func (h *stubHandler) Handle(_ context.Context, sig settlement.Signal) (settlement.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.signals = append(h.signals, sig)
	return settlement.Result{}, nil
}

func (h *stubHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.signals)
}

func waitingOrder() models.Order {
	ref := uuid.NewString()
	return models.Order{
		ID:          uuid.New(),
		Kind:        models.OrderKindActivation,
		Provider:    provider.TagFiveSim,
		Status:      models.OrderStatusWaiting,
		ProviderRef: &ref,
	}
}

func TestPoller(t *testing.T) {
	newPoller := func(lister *stubLister, client *stubClient, handler *stubHandler) *Poller {
		registry := provider.NewRegistry(map[provider.Tag]provider.Client{provider.TagFiveSim: client})
		return New(Config{Interval: 10 * time.Millisecond, CountWorkers: 2}, lister, registry, handler, logger.NewNoOpLogger())
	}

	t.Run("received status goes to handler", func(t *testing.T) {
		order := waitingOrder()
		lister := &stubLister{orders: []models.Order{order}}
		client := &stubClient{poll: provider.Poll{Status: provider.StatusReceived, Code: "4321"}}
		handler := &stubHandler{}

		ctx, cancel := context.WithCancel(t.Context())
		stopped := newPoller(lister, client, handler).Process(ctx)

		require.Eventually(t, func() bool { return handler.count() > 0 }, time.Second, 5*time.Millisecond)
		cancel()
		<-stopped

		handler.mu.Lock()
		sig := handler.signals[0]
		handler.mu.Unlock()
		require.Equal(t, settlement.Signal{
			Source:   settlement.SourcePoller,
			Provider: provider.TagFiveSim,
			Ref:      *order.ProviderRef,
			Status:   provider.StatusReceived,
			Code:     "4321",
		}, sig)

		lister.mu.Lock()
		opts := lister.opts[0]
		lister.mu.Unlock()
		require.Equal(t, models.OrderKindActivation, opts.Kind)
		require.Equal(t, []string{models.OrderStatusWaiting}, opts.Statuses)
		require.True(t, opts.WithRef)
		require.True(t, opts.ByExpiry)
		require.Equal(t, defaultBatchSize, opts.Limit)
	})

	t.Run("waiting status is skipped", func(t *testing.T) {
		lister := &stubLister{orders: []models.Order{waitingOrder()}}
		client := &stubClient{poll: provider.Poll{Status: provider.StatusWaiting}}
		handler := &stubHandler{}

		ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
		defer cancel()
		<-newPoller(lister, client, handler).Process(ctx)

		require.Zero(t, handler.count())
	})

	t.Run("rate limit pauses workers", func(t *testing.T) {
		client := &stubClient{err: provider.NewError(provider.TagFiveSim, provider.CodeRetryAfter, time.Minute, nil)}
		handler := &stubHandler{}
		c := &Consumer{
			countWorkers: 1,
			providers:    provider.NewRegistry(map[provider.Tag]provider.Client{provider.TagFiveSim: client}),
			handler:      handler,
			logger:       logger.NewNoOpLogger(),
		}

		c.poll(t.Context(), waitingOrder())

		require.Greater(t, c.waitUntil.Load(), time.Now().Add(50*time.Second).Unix())
		require.Zero(t, handler.count())
	})
}
