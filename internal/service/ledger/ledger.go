package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/numrent/internal/apperrors"
	"github.com/nkiryanov/numrent/internal/events/kafka"
	"github.com/nkiryanov/numrent/internal/logger"
	"github.com/nkiryanov/numrent/internal/metrics"
	"github.com/nkiryanov/numrent/internal/models"
	"github.com/nkiryanov/numrent/internal/repository"
)

// Ledger is the only writer of user balance counters
// Every operation is one database transaction: counters update and ledger entry insert go together
type Ledger struct {
	storage repository.Storage

	publisher publisher
	logger    logger.Logger
}

type publisher interface {
	PublishOrderSettled(ctx context.Context, event kafka.OrderSettled) error
}

func New(storage repository.Storage) *Ledger {
	return &Ledger{storage: storage}
}

// Copy of the ledger that announces every won settlement
// Must not be used on storage that runs inside outer transaction: the event would leave before commit
func (l *Ledger) WithPublisher(p publisher, logger logger.Logger) *Ledger {
	return &Ledger{
		storage:   l.storage,
		publisher: p,
		logger:    logger,
	}
}

type SettleParams struct {
	OrderID uuid.UUID

	// Terminal status to move the order to
	Status string

	// Statuses the order may be settled from. Defaults to models.LiveOrderStatuses
	From []string

	Reason string

	// Sms code to store on the order in the same transaction, commit only
	Code string
}

type Settlement struct {
	Order models.Order
	Entry models.LedgerEntry

	// The order was settled by someone else before, nothing changed
	Idempotent bool
}

// Reserve amount on user balance for the order
// Has to return apperrors.ErrInsufficientFunds if available balance is less than amount
func (l *Ledger) Freeze(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, orderID uuid.UUID, reason string) (models.LedgerEntry, error) {
	var entry models.LedgerEntry

	if !models.ValidAmount(amount) {
		return entry, apperrors.ErrAmountInvalid
	}

	err := l.storage.InTx(ctx, func(storage repository.Storage) error {
		user, err := storage.User().GetUser(ctx, userID, true)
		if err != nil {
			return err
		}

		if user.Available().LessThan(amount) {
			return apperrors.ErrInsufficientFunds
		}

		updated, err := storage.User().SetCounters(ctx, userID, user.Balance, user.FrozenBalance.Add(amount))
		if err != nil {
			return err
		}

		entry, err = storage.Ledger().CreateEntry(ctx, models.LedgerEntry{
			UserID:        userID,
			OrderID:       &orderID,
			Type:          models.LedgerEntryFreeze,
			Amount:        amount,
			BalanceBefore: user.Balance,
			BalanceAfter:  updated.Balance,
			FrozenBefore:  user.FrozenBalance,
			FrozenAfter:   updated.FrozenBalance,
			Reason:        reason,
		})
		return err
	})

	if err != nil {
		metrics.ObserveLedger(models.LedgerEntryFreeze, "error", amount)
		return entry, fmt.Errorf("freeze failed: %w", err)
	}

	metrics.ObserveLedger(models.LedgerEntryFreeze, "ok", amount)
	return entry, nil
}

// Charge the order reservation: both balance and frozen decrease by the reserved amount
// Already settled order is not an error, the result is marked idempotent
func (l *Ledger) Commit(ctx context.Context, arg SettleParams) (Settlement, error) {
	return l.settle(ctx, models.LedgerEntryCommit, arg)
}

// Release the order reservation: frozen decreases, balance stays
// Already settled order is not an error, the result is marked idempotent
func (l *Ledger) Refund(ctx context.Context, arg SettleParams) (Settlement, error) {
	return l.settle(ctx, models.LedgerEntryRefund, arg)
}

func (l *Ledger) settle(ctx context.Context, entryType string, arg SettleParams) (Settlement, error) {
	var s Settlement

	from := arg.From
	if len(from) == 0 {
		from = models.LiveOrderStatuses
	}
	charge := entryType == models.LedgerEntryCommit

	var code *string
	if charge && arg.Code != "" {
		code = &arg.Code
	}

	err := l.storage.InTx(ctx, func(storage repository.Storage) error {
		// Conditional status transition is the gate. It locks the order row first
		order, released, err := storage.Order().Settle(ctx, repository.SettleOrderParams{
			OrderID: arg.OrderID,
			From:    from,
			To:      arg.Status,
			Charged: charge,
			Code:    code,
		})
		switch {
		case errors.Is(err, apperrors.ErrOrderAlreadySettled):
			s.Idempotent = true
			s.Order, err = storage.Order().GetOrder(ctx, arg.OrderID)
			return err
		case err != nil:
			return err
		}
		s.Order = order

		user, err := storage.User().GetUser(ctx, order.UserID, true)
		if err != nil {
			return err
		}

		balance := user.Balance
		if charge {
			balance = balance.Sub(released)
		}
		updated, err := storage.User().SetCounters(ctx, user.ID, balance, user.FrozenBalance.Sub(released))
		if err != nil {
			return err
		}

		s.Entry, err = storage.Ledger().CreateEntry(ctx, models.LedgerEntry{
			UserID:        user.ID,
			OrderID:       &order.ID,
			Type:          entryType,
			Amount:        released,
			BalanceBefore: user.Balance,
			BalanceAfter:  updated.Balance,
			FrozenBefore:  user.FrozenBalance,
			FrozenAfter:   updated.FrozenBalance,
			Reason:        arg.Reason,
		})
		if err != nil {
			return err
		}

		if !charge {
			return nil
		}

		_, err = storage.Transaction().CreateTransaction(ctx, models.Transaction{
			UserID:      user.ID,
			Kind:        models.TransactionKindPurchase,
			Amount:      released,
			Status:      models.TransactionStatusCompleted,
			ExternalRef: "order:" + order.ID.String(),
			Metadata: map[string]string{
				"kind":     order.Kind,
				"provider": string(order.Provider),
				"service":  order.Service,
				"country":  order.Country,
			},
		})
		return err
	})

	switch {
	case err != nil:
		metrics.ObserveLedger(entryType, "error", decimal.Zero)
		return s, fmt.Errorf("%s failed: %w", entryType, err)
	case s.Idempotent:
		metrics.ObserveLedger(entryType, "idempotent", decimal.Zero)
	default:
		metrics.ObserveLedger(entryType, "ok", s.Entry.Amount)
		l.announce(ctx, s)
	}

	return s, nil
}

// Publish failure never fails the settlement, it is already committed
func (l *Ledger) announce(ctx context.Context, s Settlement) {
	if l.publisher == nil {
		return
	}

	err := l.publisher.PublishOrderSettled(ctx, kafka.NewOrderSettled(s.Order, s.Entry))
	if err != nil {
		l.logger.Warn("Failed to publish settlement event", "order_id", s.Order.ID, "error", err)
	}
}

// Increase user balance for the completed top-up transaction
// Has to return apperrors.ErrLedgerEntryExists if the transaction was credited already
func (l *Ledger) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, transactionID uuid.UUID, reason string) (models.LedgerEntry, error) {
	var entry models.LedgerEntry

	if !models.ValidAmount(amount) {
		return entry, apperrors.ErrAmountInvalid
	}

	err := l.storage.InTx(ctx, func(storage repository.Storage) error {
		user, err := storage.User().GetUser(ctx, userID, true)
		if err != nil {
			return err
		}

		updated, err := storage.User().SetCounters(ctx, userID, user.Balance.Add(amount), user.FrozenBalance)
		if err != nil {
			return err
		}

		entry, err = storage.Ledger().CreateEntry(ctx, models.LedgerEntry{
			UserID:        userID,
			TransactionID: &transactionID,
			Type:          models.LedgerEntryCredit,
			Amount:        amount,
			BalanceBefore: user.Balance,
			BalanceAfter:  updated.Balance,
			FrozenBefore:  user.FrozenBalance,
			FrozenAfter:   updated.FrozenBalance,
			Reason:        reason,
		})
		return err
	})

	if err != nil {
		metrics.ObserveLedger(models.LedgerEntryCredit, "error", amount)
		return entry, fmt.Errorf("credit failed: %w", err)
	}

	metrics.ObserveLedger(models.LedgerEntryCredit, "ok", amount)
	return entry, nil
}
