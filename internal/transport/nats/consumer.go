package nats

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/nkiryanov/numrent/internal/apperrors"
	"github.com/nkiryanov/numrent/internal/logger"
	"github.com/nkiryanov/numrent/internal/service/settlement"
)

const (
	SubjectSignals = "provider.signals"
	queueGroup     = "numrent_settlement"
)

type signalHandler interface {
	Handle(ctx context.Context, sig settlement.Signal) (settlement.Result, error)
}

// Connect returns nil connection if url is empty: signals then come from the poller only
func Connect(url string) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}

	return nats.Connect(url, nats.Name("numrent"), nats.MaxReconnects(-1))
}

// Consumer feeds provider completion signals relayed to NATS into the settlement handler
// Delivery is at-least-once: the handler is idempotent
type Consumer struct {
	nc      *nats.Conn
	handler signalHandler
	logger  logger.Logger
}

func NewConsumer(nc *nats.Conn, handler signalHandler, logger logger.Logger) *Consumer {
	return &Consumer{
		nc:      nc,
		handler: handler,
		logger:  logger.WithGroup("nats"),
	}
}

// Start subscribes and returns channel closed once subscription is drained after ctx is done
func (c *Consumer) Start(ctx context.Context) (<-chan struct{}, error) {
	sub, err := c.nc.QueueSubscribe(SubjectSignals, queueGroup, func(m *nats.Msg) {
		c.handle(ctx, m)
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Signal consumer is running", "subject", SubjectSignals)

	idleStopped := make(chan struct{})
	go func() {
		defer close(idleStopped)
		<-ctx.Done()

		if err := sub.Drain(); err != nil {
			c.logger.Error("Failed to drain subscription", "error", err)
		}
		c.logger.Debug("Signal consumer stopped")
	}()

	return idleStopped, nil
}

func (c *Consumer) handle(ctx context.Context, m *nats.Msg) {
	var sig settlement.Signal
	if err := json.Unmarshal(m.Data, &sig); err != nil {
		c.logger.Error("Failed to unmarshal signal", "error", err)
		return
	}
	sig.Source = settlement.SourceNats

	res, err := c.handler.Handle(context.WithoutCancel(ctx), sig)
	switch {
	case errors.Is(err, apperrors.ErrOrderNotFound):
		c.logger.Warn("Signal for unknown order", "provider", sig.Provider, "ref", sig.Ref)
	case err != nil:
		c.logger.Error("Failed to handle signal", "provider", sig.Provider, "ref", sig.Ref, "error", err)
	default:
		c.logger.Debug("Signal handled", "order_id", res.Order.ID, "already_processed", res.AlreadyProcessed)
	}

	// Request-reply publishers get the result back
	if m.Reply != "" {
		ack := map[string]any{"ok": err == nil, "already_processed": res.AlreadyProcessed}
		if data, mErr := json.Marshal(ack); mErr == nil {
			_ = m.Respond(data)
		}
	}
}
