package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nkiryanov/numrent/internal/db"
	"github.com/nkiryanov/numrent/internal/events/kafka"
	"github.com/nkiryanov/numrent/internal/handlers"
	"github.com/nkiryanov/numrent/internal/logger"
	"github.com/nkiryanov/numrent/internal/repository/postgres"
	"github.com/nkiryanov/numrent/internal/service/auth"
	"github.com/nkiryanov/numrent/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/numrent/internal/service/credit"
	"github.com/nkiryanov/numrent/internal/service/ledger"
	"github.com/nkiryanov/numrent/internal/service/poller"
	"github.com/nkiryanov/numrent/internal/service/pricing"
	"github.com/nkiryanov/numrent/internal/service/provider"
	"github.com/nkiryanov/numrent/internal/service/purchase"
	"github.com/nkiryanov/numrent/internal/service/reconcile"
	"github.com/nkiryanov/numrent/internal/service/settlement"
	"github.com/nkiryanov/numrent/internal/service/sweeper"
	natstransport "github.com/nkiryanov/numrent/internal/transport/nats"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	poller   *poller.Poller
	sweeper  *sweeper.Sweeper
	consumer *natstransport.Consumer
	closers  []func() error
	logger   logger.Logger
}

type publisher interface {
	PublishOrderSettled(ctx context.Context, event kafka.OrderSettled) error
	io.Closer
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	app := &ServerApp{ListenAddr: c.ListenAddr, logger: logger}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app.closers = append(app.closers, func() error { pool.Close(); return nil })

	rdb, err := pricing.Connect(ctx, c.RedisAddr)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
	}
	app.closers = append(app.closers, rdb.Close)

	nc, err := natstransport.Connect(c.NatsURL)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("error while connecting to nats. Err: %w", err)
	}
	if nc != nil {
		app.closers = append(app.closers, func() error { nc.Close(); return nil })
	}

	var pub publisher = kafka.NoOpPublisher{}
	if len(c.KafkaBrokers) > 0 {
		pub = kafka.NewPublisher(c.KafkaBrokers)
	}
	app.closers = append(app.closers, pub.Close)

	// Initialize repositories
	storage := postgres.NewStorage(pool)
	l := ledger.New(storage).WithPublisher(pub, logger)

	clients := make(map[provider.Tag]provider.Client)
	if c.SMSActivateAPIKey != "" {
		clients[provider.TagSMSActivate] = provider.NewSMSActivate(c.SMSActivateAddr, c.SMSActivateAPIKey, logger)
	}
	if c.FiveSimAPIKey != "" {
		clients[provider.TagFiveSim] = provider.NewFiveSim(c.FiveSimAddr, c.FiveSimAPIKey, logger)
	}
	registry := provider.NewRegistry(clients)
	if len(clients) == 0 {
		logger.Warn("No number provider configured, orders will be rejected")
	}

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: c.SecretKey})
	if err != nil {
		app.close()
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}
	authService := auth.NewService(tokenManager, storage.User())
	purchaseService := purchase.New(
		purchase.Config{ActivationTTL: c.ActivationTTL, RentalTTL: c.RentalTTL},
		storage, l, registry, pricing.NewCatalog(rdb), logger,
	)
	settlementHandler := settlement.NewHandler(storage, l, logger)
	app.sweeper = sweeper.New(sweeper.Config{Interval: c.SweepInterval, BatchSize: c.SweepBatchSize}, storage, l, registry, logger)
	app.poller = poller.New(poller.Config{Interval: c.PollInterval}, storage.Order(), registry, settlementHandler, logger)

	if nc != nil {
		app.consumer = natstransport.NewConsumer(nc, settlementHandler, logger)
	}

	app.Handler = handlers.NewRouter(handlers.Services{
		Auth:         authService,
		Purchase:     purchaseService,
		Canceller:    settlement.NewCanceller(storage, l, registry, logger),
		Orders:       storage.Order(),
		Users:        storage.User(),
		Transactions: storage.Transaction(),
		Credit:       credit.NewHandler(storage, c.WebhookSecret, logger),
		Reconcile:    reconcile.New(storage, logger),
		Sweeper:      app.sweeper,
	}, logger)

	return app, nil
}

// Release connections in reverse order of opening
func (s *ServerApp) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Error("Failed to close resource", "error", err)
		}
	}
	s.closers = nil
}

// Run starts background workers and http server; closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	workers := []<-chan struct{}{
		s.poller.Process(srvCtx),
		s.sweeper.Run(srvCtx),
	}
	if s.consumer != nil {
		stopped, err := s.consumer.Start(srvCtx)
		if err != nil {
			srvCtxCancel()
			for _, w := range workers {
				<-w
			}
			return fmt.Errorf("error while starting signal consumer. Err: %w", err)
		}
		workers = append(workers, stopped)
	}

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	for _, w := range workers {
		<-w
	}
	s.logger.Info("Background workers stopped")

	return err
}
