package poller

import (
	"context"
	"time"

	"github.com/nkiryanov/numrent/internal/logger"
	"github.com/nkiryanov/numrent/internal/models"
	"github.com/nkiryanov/numrent/internal/repository"
	"github.com/nkiryanov/numrent/internal/service/provider"
	"github.com/nkiryanov/numrent/internal/service/settlement"
)

const (
	defaultCountWorkers    = 10               // Number of workers polling providers
	defaultProduceInterval = 10 * time.Second // Interval for listing waiting orders
	defaultBatchSize       = 100
)

type orderLister interface {
	ListOrders(ctx context.Context, opts repository.ListOrdersOpts) ([]models.Order, error)
}

type providers interface {
	Get(tag provider.Tag) (provider.Client, error)
}

type signalHandler interface {
	Handle(ctx context.Context, sig settlement.Signal) (settlement.Result, error)
}

type Config struct {
	Interval     time.Duration
	BatchSize    int
	CountWorkers int
}

// Poller asks providers about activations still waiting for sms and settles the finished ones
type Poller struct {
	consumer *Consumer
	producer *Producer
}

func New(cfg Config, orders orderLister, providers providers, handler signalHandler, logger logger.Logger) *Poller {
	if cfg.Interval == 0 {
		cfg.Interval = defaultProduceInterval
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.CountWorkers == 0 {
		cfg.CountWorkers = defaultCountWorkers
	}

	logger = logger.WithGroup("poller")

	return &Poller{
		consumer: &Consumer{
			countWorkers: cfg.CountWorkers,
			providers:    providers,
			handler:      handler,
			logger:       logger,
		},
		producer: &Producer{
			interval:  cfg.Interval,
			batchSize: cfg.BatchSize,
			orders:    orders,
			logger:    logger,
		},
	}
}

func (p *Poller) Process(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	orderChan := make(chan models.Order)

	producerStopped := p.producer.Produce(ctx, orderChan)
	consumerStopped := p.consumer.Consume(ctx, orderChan)

	go func() {
		defer close(idleStopped)
		defer close(orderChan)
		<-producerStopped
		<-consumerStopped
		p.consumer.logger.Debug("Poller stopped")
	}()

	return idleStopped
}
