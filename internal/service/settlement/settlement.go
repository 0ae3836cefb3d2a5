package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/nkiryanov/numrent/internal/logger"
	"github.com/nkiryanov/numrent/internal/metrics"
	"github.com/nkiryanov/numrent/internal/models"
	"github.com/nkiryanov/numrent/internal/repository"
	"github.com/nkiryanov/numrent/internal/service/ledger"
	"github.com/nkiryanov/numrent/internal/service/provider"
)

// Where the completion signal came from
const (
	SourcePoller = "poller"
	SourceNats   = "nats"
	SourceManual = "manual"
)

// Upstream failure other than cancellation
const StatusFailed = "failed"

var ErrSignalInvalid = errors.New("signal status is unknown")

// Signal is an asynchronous completion report for the order identified by provider reference
type Signal struct {
	Source   string             `json:"source"`
	Provider models.ProviderTag `json:"provider"`
	Ref      string             `json:"ref"`

	// provider.StatusWaiting, provider.StatusReceived, provider.StatusCancelled or StatusFailed
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
}

type Result struct {
	Order models.Order

	// The order was terminal already or another actor settled it first. Ledger is untouched
	AlreadyProcessed bool
}

// Handler finalizes orders exactly once on completion signals. Duplicate delivery is fine
type Handler struct {
	storage repository.Storage
	ledger  *ledger.Ledger
	logger  logger.Logger
}

func NewHandler(storage repository.Storage, l *ledger.Ledger, logger logger.Logger) *Handler {
	return &Handler{
		storage: storage,
		ledger:  l,
		logger:  logger,
	}
}

func (h *Handler) Handle(ctx context.Context, sig Signal) (Result, error) {
	result, err := h.handle(ctx, sig)

	outcome := "settled"
	switch {
	case err != nil:
		outcome = "error"
	case result.AlreadyProcessed:
		outcome = "already_processed"
	case result.Order.IsLive():
		outcome = "pending"
	}
	metrics.Signals.WithLabelValues(sig.Source, outcome).Inc()

	return result, err
}

func (h *Handler) handle(ctx context.Context, sig Signal) (Result, error) {
	order, err := h.storage.Order().GetOrderByRef(ctx, sig.Provider, sig.Ref)
	if err != nil {
		return Result{}, err
	}

	if !order.IsLive() {
		return Result{Order: order, AlreadyProcessed: true}, nil
	}

	log := h.logger.With("order_id", order.ID, "ref", sig.Ref, "source", sig.Source)

	var (
		s      ledger.Settlement
		reason = fmt.Sprintf("%s signal: %s", sig.Source, sig.Status)
	)

	switch sig.Status {
	case provider.StatusWaiting:
		return Result{Order: order}, nil

	case provider.StatusReceived:
		s, err = h.ledger.Commit(ctx, ledger.SettleParams{OrderID: order.ID, Status: order.CommittedStatus(), Reason: reason, Code: sig.Code})

	case provider.StatusCancelled:
		s, err = h.ledger.Refund(ctx, ledger.SettleParams{OrderID: order.ID, Status: models.OrderStatusCancelled, Reason: reason})

	case StatusFailed:
		s, err = h.ledger.Refund(ctx, ledger.SettleParams{OrderID: order.ID, Status: models.OrderStatusFailed, Reason: reason})

	default:
		return Result{Order: order}, fmt.Errorf("%w: %q", ErrSignalInvalid, sig.Status)
	}

	if err != nil {
		log.Error("Failed to settle order", "status", sig.Status, "error", err)
		return Result{Order: order}, err
	}

	if s.Idempotent {
		log.Debug("Order settled by someone else", "status", s.Order.Status)
		return Result{Order: s.Order, AlreadyProcessed: true}, nil
	}

	log.Info("Order settled", "status", s.Order.Status, "amount", s.Entry.Amount)
	return Result{Order: s.Order}, nil
}
