package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/numrent/internal/apperrors"
	"github.com/nkiryanov/numrent/internal/logger"
	"github.com/nkiryanov/numrent/internal/models"
	"github.com/nkiryanov/numrent/internal/repository"
	"github.com/nkiryanov/numrent/internal/service/ledger"
	"github.com/nkiryanov/numrent/internal/service/provider"
)

const (
	defaultActivationTTL = 20 * time.Minute
	defaultRentalTTL     = 4 * time.Hour
)

var ErrKindInvalid = errors.New("order kind must be activation or rental")

type pricer interface {
	Price(ctx context.Context, provider string, service string, country string) (decimal.Decimal, error)
}

type providers interface {
	Get(tag provider.Tag) (provider.Client, error)
}

type Config struct {
	// How long the order may wait for completion before the sweeper releases it
	// If not set than default is used
	ActivationTTL time.Duration
	RentalTTL     time.Duration
}

// Orchestrator runs purchase as freeze, execute, settle
type Orchestrator struct {
	storage   repository.Storage
	ledger    *ledger.Ledger
	providers providers
	prices    pricer
	cfg       Config
	logger    logger.Logger
}

func New(cfg Config, storage repository.Storage, l *ledger.Ledger, providers providers, prices pricer, logger logger.Logger) *Orchestrator {
	if cfg.ActivationTTL == 0 {
		cfg.ActivationTTL = defaultActivationTTL
	}
	if cfg.RentalTTL == 0 {
		cfg.RentalTTL = defaultRentalTTL
	}

	return &Orchestrator{
		storage:   storage,
		ledger:    l,
		providers: providers,
		prices:    prices,
		cfg:       cfg,
		logger:    logger,
	}
}

type Request struct {
	UserID   uuid.UUID
	Kind     string
	Provider string
	Service  string
	Country  string
}

func (o *Orchestrator) Purchase(ctx context.Context, req Request) (models.Order, error) {
	var order models.Order

	ttl := o.cfg.ActivationTTL
	switch req.Kind {
	case models.OrderKindActivation:
	case models.OrderKindRental:
		ttl = o.cfg.RentalTTL
	default:
		return order, ErrKindInvalid
	}

	tag, err := provider.ParseTag(req.Provider)
	if err != nil {
		return order, err
	}

	client, err := o.providers.Get(tag)
	if err != nil {
		return order, err
	}

	price, err := o.prices.Price(ctx, string(tag), req.Service, req.Country)
	if err != nil {
		return order, err
	}

	// Freeze: order and reservation are created together or not at all
	err = o.storage.InTx(ctx, func(storage repository.Storage) error {
		order, err = storage.Order().CreateOrder(ctx, models.Order{
			UserID:       req.UserID,
			Kind:         req.Kind,
			Provider:     tag,
			Service:      req.Service,
			Country:      req.Country,
			Price:        price,
			FrozenAmount: price,
			Status:       models.OrderStatusPending,
			ExpiresAt:    time.Now().Add(ttl),
		})
		if err != nil {
			return err
		}

		_, err = ledger.New(storage).Freeze(ctx, req.UserID, price, order.ID, "purchase "+req.Kind)
		return err
	})
	if err != nil {
		return models.Order{}, err
	}

	log := o.logger.With("order_id", order.ID, "provider", tag)

	// From here the reservation must be settled even if the caller went away
	ctx = context.WithoutCancel(ctx)

	// Execute: exactly one provider call per order, never retried
	number, err := client.CreateNumber(ctx, req.Kind, req.Service, req.Country)
	if err != nil {
		log.Warn("Provider rejected order", "error", err)

		s, rErr := o.ledger.Refund(ctx, ledger.SettleParams{
			OrderID: order.ID,
			Status:  models.OrderStatusFailed,
			From:    []string{models.OrderStatusPending},
			Reason:  "provider error: " + err.Error(),
		})
		if rErr != nil {
			// Reservation stays frozen until the sweeper releases the expired order
			log.Error("Failed to refund order after provider error", "error", rErr)
			return order, err
		}

		return s.Order, err
	}

	attached, err := o.attach(ctx, order, number, log)
	if err != nil {
		// The order stays without provider ref and the sweeper releases it, so give the number back
		log.Error("Provider number is not attached to order, reconcile with provider",
			"ref", number.Ref,
			"phone", number.Phone,
			"error", err,
		)
		if cErr := client.Cancel(ctx, number.Ref); cErr != nil {
			log.Error("Failed to cancel orphan provider number", "ref", number.Ref, "error", cErr)
		}
		return order, fmt.Errorf("attach provider number: %w", err)
	}
	order = attached

	log.Info("Provider accepted order", "ref", number.Ref, "kind", order.Kind)

	// Settle: rentals are charged right away, activations wait for the completion signal
	if order.Kind != models.OrderKindRental {
		return order, nil
	}

	s, err := o.ledger.Commit(ctx, ledger.SettleParams{
		OrderID: order.ID,
		Status:  order.CommittedStatus(),
		Reason:  "rental started",
	})
	if err != nil {
		// Left active and frozen, the sweeper commits stale rentals
		log.Error("Failed to commit rental", "error", err)
		return order, err
	}

	return s.Order, nil
}

// The number is paid already: a db error gets one more attempt
func (o *Orchestrator) attach(ctx context.Context, order models.Order, number provider.Number, log logger.Logger) (models.Order, error) {
	attached, err := o.storage.Order().AttachProvider(ctx, order.ID, number.Ref, number.Phone, order.AcceptedStatus())
	if err == nil || errors.Is(err, apperrors.ErrOrderAlreadySettled) {
		return attached, err
	}

	log.Warn("Retry attaching provider number", "ref", number.Ref, "error", err)

	attached, err = o.storage.Order().AttachProvider(ctx, order.ID, number.Ref, number.Phone, order.AcceptedStatus())
	if errors.Is(err, apperrors.ErrOrderAlreadySettled) {
		// The first attempt could be applied despite the error
		current, gErr := o.storage.Order().GetOrder(ctx, order.ID)
		if gErr == nil && current.ProviderRef != nil && *current.ProviderRef == number.Ref {
			return current, nil
		}
	}
	return attached, err
}
