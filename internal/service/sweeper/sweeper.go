package sweeper

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/numrent/internal/logger"
	"github.com/nkiryanov/numrent/internal/metrics"
	"github.com/nkiryanov/numrent/internal/models"
	"github.com/nkiryanov/numrent/internal/repository"
	"github.com/nkiryanov/numrent/internal/service/ledger"
	"github.com/nkiryanov/numrent/internal/service/provider"
)

const (
	defaultBatchSize = 500
	defaultInterval  = time.Minute
)

type providers interface {
	Get(tag provider.Tag) (provider.Client, error)
}

type Config struct {
	Interval  time.Duration
	BatchSize int
}

// Sweeper releases reservations of orders nobody finished before the deadline
// Runs may overlap: every order is settled through the ledger status gate
type Sweeper struct {
	storage   repository.Storage
	ledger    *ledger.Ledger
	providers providers
	cfg       Config
	logger    logger.Logger
}

func New(cfg Config, storage repository.Storage, l *ledger.Ledger, providers providers, logger logger.Logger) *Sweeper {
	if cfg.Interval == 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}

	return &Sweeper{
		storage:   storage,
		ledger:    l,
		providers: providers,
		cfg:       cfg,
		logger:    logger.WithGroup("sweeper"),
	}
}

// RunOnce sweeps one batch and saves the run summary
// A failing order is counted and skipped, the run goes on
func (s *Sweeper) RunOnce(ctx context.Context) (models.SweepRun, error) {
	run := models.SweepRun{
		StartedAt:      time.Now(),
		RefundedTotal:  decimal.Zero,
		CommittedTotal: decimal.Zero,
	}

	expired, err := s.storage.Order().ListOrders(ctx, repository.ListOrdersOpts{
		Statuses:      models.ExpirableOrderStatuses,
		ExpiredBefore: &run.StartedAt,
		OnlyFrozen:    true,
		ByExpiry:      true,
		Limit:         s.cfg.BatchSize,
	})
	if err != nil {
		return run, err
	}

	for _, order := range expired {
		run.Processed++
		s.expire(ctx, order, &run)
	}

	stale, err := s.storage.Order().ListOrders(ctx, repository.ListOrdersOpts{
		Kind:          models.OrderKindRental,
		Statuses:      []string{models.OrderStatusActive},
		ExpiredBefore: &run.StartedAt,
		OnlyFrozen:    true,
		ByExpiry:      true,
		Limit:         s.cfg.BatchSize,
	})
	if err != nil {
		s.logger.Error("Failed to list stale rentals", "error", err)
		run.Errors++
	}

	for _, order := range stale {
		run.Processed++
		s.commitRental(ctx, order, &run)
	}

	run.FinishedAt = time.Now()
	metrics.SweepDuration.Observe(run.FinishedAt.Sub(run.StartedAt).Seconds())

	if err := s.storage.Sweep().SaveRun(ctx, run); err != nil {
		s.logger.Error("Failed to save sweep run", "error", err)
		return run, err
	}

	if run.Processed > 0 {
		s.logger.Info("Sweep finished",
			"processed", run.Processed,
			"refunded", run.Refunded,
			"refunded_total", run.RefundedTotal,
			"committed", run.Committed,
			"errors", run.Errors,
		)
	}

	return run, nil
}

func (s *Sweeper) expire(ctx context.Context, order models.Order, run *models.SweepRun) {
	log := s.logger.With("order_id", order.ID)

	settled, err := s.ledger.Refund(ctx, ledger.SettleParams{
		OrderID: order.ID,
		Status:  models.OrderStatusTimeout,
		From:    models.ExpirableOrderStatuses,
		Reason:  "expired",
	})
	switch {
	case err != nil:
		log.Error("Failed to expire order", "error", err)
		metrics.SweepOrders.WithLabelValues("error").Inc()
		run.Errors++
		return

	case settled.Idempotent:
		metrics.SweepOrders.WithLabelValues("skipped").Inc()
		return
	}

	metrics.SweepOrders.WithLabelValues("refunded").Inc()
	run.Refunded++
	run.RefundedTotal = run.RefundedTotal.Add(settled.Entry.Amount)

	// Give the number back. The money is released already, failure only costs the provider slot
	if order.ProviderRef == nil {
		return
	}
	client, err := s.providers.Get(order.Provider)
	if err != nil {
		log.Warn("Order has unknown provider", "error", err)
		return
	}
	if err := client.Cancel(context.WithoutCancel(ctx), *order.ProviderRef); err != nil {
		log.Warn("Failed to cancel expired number", "ref", *order.ProviderRef, "error", err)
	}
}

// Rental accepted by the provider but never charged
func (s *Sweeper) commitRental(ctx context.Context, order models.Order, run *models.SweepRun) {
	settled, err := s.ledger.Commit(ctx, ledger.SettleParams{
		OrderID: order.ID,
		Status:  models.OrderStatusCompleted,
		From:    []string{models.OrderStatusActive},
		Reason:  "stale rental",
	})
	switch {
	case err != nil:
		s.logger.Error("Failed to commit stale rental", "order_id", order.ID, "error", err)
		metrics.SweepOrders.WithLabelValues("error").Inc()
		run.Errors++

	case settled.Idempotent:
		metrics.SweepOrders.WithLabelValues("skipped").Inc()

	default:
		metrics.SweepOrders.WithLabelValues("committed").Inc()
		run.Committed++
		run.CommittedTotal = run.CommittedTotal.Add(settled.Entry.Amount)
	}
}

// Run sweeps on every tick until context is done
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	s.logger.Debug("Starting sweeper", "interval", s.cfg.Interval, "batch_size", s.cfg.BatchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Sweeper stopped by context")
				return

			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil {
					s.logger.Error("Sweep failed", "error", err)
				}
			}
		}
	}()

	return idleStopped
}
