package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/numrent/internal/apperrors"
	"github.com/nkiryanov/numrent/internal/models"
	"github.com/nkiryanov/numrent/internal/repository"
)

type LedgerRepo struct {
	DB DBTX
}

const ledgerColumns = `id, user_id, order_id, transaction_id, type, amount,
	balance_before, balance_after, frozen_before, frozen_after, reason, created_at`

const createEntry = `-- name: CreateEntry
INSERT INTO ledger_entries (id, user_id, order_id, transaction_id, type, amount,
	balance_before, balance_after, frozen_before, frozen_after, reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING ` + ledgerColumns

func (r *LedgerRepo) CreateEntry(ctx context.Context, e models.LedgerEntry) (models.LedgerEntry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createEntry,
		e.ID, e.UserID, e.OrderID, e.TransactionID, e.Type, e.Amount,
		e.BalanceBefore, e.BalanceAfter, e.FrozenBefore, e.FrozenAfter, e.Reason, e.CreatedAt,
	)
	entry, err := pgx.CollectOneRow(rows, rowToLedgerEntry)

	switch {
	case err == nil:
		return entry, nil
	case isUniqueViolation(err):
		return entry, apperrors.ErrLedgerEntryExists
	default:
		return entry, fmt.Errorf("db error: %w", err)
	}
}

// List entries in the order they were written
func (r *LedgerRepo) ListEntries(ctx context.Context, opts repository.ListEntriesOpts) ([]models.LedgerEntry, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.UserID != nil {
		where = append(where, "user_id = "+arg(*opts.UserID))
	}
	if opts.OrderID != nil {
		where = append(where, "order_id = "+arg(*opts.OrderID))
	}
	if opts.TransactionID != nil {
		where = append(where, "transaction_id = "+arg(*opts.TransactionID))
	}
	if len(opts.Types) > 0 {
		where = append(where, "type = ANY("+arg(opts.Types)+")")
	}

	query := "SELECT " + ledgerColumns + " FROM ledger_entries"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, _ := r.DB.Query(ctx, query, args...)
	entries, err := pgx.CollectRows(rows, rowToLedgerEntry)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return entries, nil
}

func rowToLedgerEntry(row pgx.CollectableRow) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	err := row.Scan(
		&e.ID, &e.UserID, &e.OrderID, &e.TransactionID, &e.Type, &e.Amount,
		&e.BalanceBefore, &e.BalanceAfter, &e.FrozenBefore, &e.FrozenAfter, &e.Reason, &e.CreatedAt,
	)
	return e, err
}
