package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/numrent/internal/apperrors"
	"github.com/nkiryanov/numrent/internal/models"
)

type TransactionRepo struct {
	DB DBTX
}

const transactionColumns = `id, user_id, kind, amount, status, external_ref, metadata, created_at, updated_at`

const createTransaction = `-- name: CreateTransaction
INSERT INTO transactions (id, user_id, kind, amount, status, external_ref, metadata, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
RETURNING ` + transactionColumns

// Create transaction
// Has to return apperrors.ErrLedgerEntryExists if transaction with the same external ref exists
func (r *TransactionRepo) CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.Metadata == nil {
		t.Metadata = map[string]string{}
	}

	rows, _ := r.DB.Query(ctx, createTransaction,
		t.ID, t.UserID, t.Kind, t.Amount, t.Status, t.ExternalRef, t.Metadata, t.CreatedAt,
	)
	tx, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return tx, nil
	case isUniqueViolation(err):
		return tx, apperrors.ErrLedgerEntryExists
	case isForeignKeyViolation(err):
		return tx, apperrors.ErrUserNotFound
	default:
		return tx, fmt.Errorf("db error: %w", err)
	}
}

const getTransactionByRef = `-- name: GetTransactionByRef
SELECT ` + transactionColumns + ` FROM transactions
WHERE external_ref = $1
`

const getTransactionByRefForUpdate = getTransactionByRef + `FOR UPDATE`

func (r *TransactionRepo) GetByExternalRef(ctx context.Context, ref string, lock bool) (models.Transaction, error) {
	query := getTransactionByRef
	if lock {
		query = getTransactionByRefForUpdate
	}

	rows, _ := r.DB.Query(ctx, query, ref)
	return collectTransaction(rows)
}

const setTransactionStatus = `-- name: SetTransactionStatus
UPDATE transactions
SET status = $2, updated_at = $3
WHERE id = $1
RETURNING ` + transactionColumns

func (r *TransactionRepo) SetStatus(ctx context.Context, id uuid.UUID, status string) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, setTransactionStatus, id, status, time.Now())
	return collectTransaction(rows)
}

const listTransactions = `-- name: ListTransactions
SELECT ` + transactionColumns + ` FROM transactions
WHERE user_id = $1 AND (cardinality($2::text[]) = 0 OR kind = ANY($2))
ORDER BY created_at DESC, id
`

func (r *TransactionRepo) ListTransactions(ctx context.Context, userID uuid.UUID, kinds []string) ([]models.Transaction, error) {
	if kinds == nil {
		kinds = []string{}
	}

	rows, _ := r.DB.Query(ctx, listTransactions, userID, kinds)
	txs, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return txs, nil
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.Kind, &t.Amount, &t.Status, &t.ExternalRef, &t.Metadata, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

func collectTransaction(rows pgx.Rows) (models.Transaction, error) {
	tx, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return tx, nil
	case errors.Is(err, pgx.ErrNoRows):
		return tx, apperrors.ErrTransactionNotFound
	default:
		return tx, fmt.Errorf("db error: %w", err)
	}
}
