package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/numrent/internal/models"
)

// Storage gives access to all repositories
// Repositories returned by the storage inside InTx share the same database transaction
type Storage interface {
	User() UserRepo
	Order() OrderRepo
	Ledger() LedgerRepo
	Transaction() TransactionRepo
	Sweep() SweepRepo
	Reconciliation() ReconciliationRepo

	// Run fn in transaction. Nested calls create savepoints
	// Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}

type UserRepo interface {
	// Create user with zero balance
	// If user with username exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, username string) (models.User, error)

	// Get user by id. If lock is true the row is locked until transaction end
	// If user not found must return apperrors.ErrUserNotFound
	GetUser(ctx context.Context, userID uuid.UUID, lock bool) (models.User, error)

	// Overwrite balance counters. Must be called by the ledger only
	SetCounters(ctx context.Context, userID uuid.UUID, balance, frozen decimal.Decimal) (models.User, error)
}

type OrderRepo interface {
	CreateOrder(ctx context.Context, o models.Order) (models.Order, error)

	// If order not found must return apperrors.ErrOrderNotFound
	GetOrder(ctx context.Context, orderID uuid.UUID) (models.Order, error)
	GetOrderByRef(ctx context.Context, provider models.ProviderTag, ref string) (models.Order, error)

	// Attach provider identifiers and move order to status if it still pending
	// Has to return apperrors.ErrOrderAlreadySettled if the order is not pending anymore
	AttachProvider(ctx context.Context, orderID uuid.UUID, ref string, phone string, status string) (models.Order, error)

	// Conditional transition to the terminal status
	// The update happens only if the order status is one of 'from' and it holds a reservation
	// Returns the updated order and the released reservation amount
	// Has to return apperrors.ErrOrderAlreadySettled if the condition does not hold (lost the race)
	Settle(ctx context.Context, arg SettleOrderParams) (models.Order, decimal.Decimal, error)

	ListOrders(ctx context.Context, opts ListOrdersOpts) ([]models.Order, error)
}

type SettleOrderParams struct {
	OrderID uuid.UUID
	From    []string
	To      string
	Charged bool
	At      time.Time

	// Sms code saved together with the transition. Nil keeps the stored one
	Code *string
}

type ListOrdersOpts struct {
	UserID        *uuid.UUID
	Kind          string
	Statuses      []string
	ExpiredBefore *time.Time
	OnlyFrozen    bool // with live reservation only
	WithRef       bool // provider accepted the order
	ByExpiry      bool // oldest expiry first, newest created first otherwise
	Limit         int  // 0 means no limit
}

type LedgerRepo interface {
	// Insert entry. Has to return apperrors.ErrLedgerEntryExists if order already has entry of the same kind
	CreateEntry(ctx context.Context, e models.LedgerEntry) (models.LedgerEntry, error)

	ListEntries(ctx context.Context, opts ListEntriesOpts) ([]models.LedgerEntry, error)
}

type ListEntriesOpts struct {
	UserID        *uuid.UUID
	OrderID       *uuid.UUID
	TransactionID *uuid.UUID
	Types         []string
}

type TransactionRepo interface {
	CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error)

	// If transaction not found must return apperrors.ErrTransactionNotFound
	GetByExternalRef(ctx context.Context, ref string, lock bool) (models.Transaction, error)

	SetStatus(ctx context.Context, id uuid.UUID, status string) (models.Transaction, error)

	ListTransactions(ctx context.Context, userID uuid.UUID, kinds []string) ([]models.Transaction, error)
}

type SweepRepo interface {
	SaveRun(ctx context.Context, run models.SweepRun) error
	ListRuns(ctx context.Context, limit int) ([]models.SweepRun, error)
}

type ReconciliationRepo interface {
	// Frozen report for every user (or only requested ones)
	FrozenReports(ctx context.Context, userIDs ...uuid.UUID) ([]models.FrozenReport, error)
}
