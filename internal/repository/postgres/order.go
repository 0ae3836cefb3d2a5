package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/numrent/internal/apperrors"
	"github.com/nkiryanov/numrent/internal/models"
	"github.com/nkiryanov/numrent/internal/repository"
)

type OrderRepo struct {
	DB DBTX
}

const orderColumns = `id, user_id, kind, provider, service, country, price, frozen_amount, status, charged,
	provider_ref, phone, code, expires_at, created_at, updated_at`

const createOrder = `-- name: CreateOrder
INSERT INTO orders (id, user_id, kind, provider, service, country, price, frozen_amount, status, expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
RETURNING ` + orderColumns

// Create order with the provided options
// ID and CreatedAt are generated if not set
func (r *OrderRepo) CreateOrder(ctx context.Context, o models.Order) (models.Order, error) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	rows, _ := r.DB.Query(ctx, createOrder,
		o.ID, o.UserID, o.Kind, o.Provider, o.Service, o.Country, o.Price, o.FrozenAmount, o.Status, o.ExpiresAt, o.CreatedAt,
	)
	order, err := pgx.CollectOneRow(rows, rowToOrder)

	switch {
	case err == nil:
		return order, nil
	case isForeignKeyViolation(err):
		return order, apperrors.ErrUserNotFound
	default:
		return order, fmt.Errorf("db error: %w", err)
	}
}

const getOrder = `-- name: GetOrder
SELECT ` + orderColumns + ` FROM orders
WHERE id = $1
`

func (r *OrderRepo) GetOrder(ctx context.Context, orderID uuid.UUID) (models.Order, error) {
	rows, _ := r.DB.Query(ctx, getOrder, orderID)
	return collectOrder(rows)
}

const getOrderByRef = `-- name: GetOrderByRef
SELECT ` + orderColumns + ` FROM orders
WHERE provider = $1 AND provider_ref = $2
`

func (r *OrderRepo) GetOrderByRef(ctx context.Context, provider models.ProviderTag, ref string) (models.Order, error) {
	rows, _ := r.DB.Query(ctx, getOrderByRef, provider, ref)
	return collectOrder(rows)
}

const attachProvider = `-- name: AttachProvider
UPDATE orders
SET provider_ref = $2, phone = $3, status = $4, updated_at = $5
WHERE id = $1 AND status = 'pending'
RETURNING ` + orderColumns

func (r *OrderRepo) AttachProvider(ctx context.Context, orderID uuid.UUID, ref string, phone string, status string) (models.Order, error) {
	rows, _ := r.DB.Query(ctx, attachProvider, orderID, ref, phone, status, time.Now())
	order, err := pgx.CollectOneRow(rows, rowToOrder)

	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, pgx.ErrNoRows):
		return order, r.lostRace(ctx, orderID)
	default:
		return order, fmt.Errorf("db error: %w", err)
	}
}

// The row lock in 'prev' serializes concurrent settlers
// The loser re-reads the committed row and its status/frozen_amount check fails
const settleOrder = `-- name: SettleOrder
WITH prev AS (
	SELECT id, frozen_amount FROM orders
	WHERE id = $1
	FOR UPDATE
)
UPDATE orders o
SET status = $3, frozen_amount = 0, charged = $4, updated_at = $5, code = COALESCE($6, o.code)
FROM prev
WHERE o.id = prev.id AND o.status = ANY($2) AND prev.frozen_amount > 0
RETURNING prev.frozen_amount, ` + orderColumnsPrefixed

func (r *OrderRepo) Settle(ctx context.Context, arg repository.SettleOrderParams) (models.Order, decimal.Decimal, error) {
	at := arg.At
	if at.IsZero() {
		at = time.Now()
	}

	var released decimal.Decimal
	rows, _ := r.DB.Query(ctx, settleOrder, arg.OrderID, arg.From, arg.To, arg.Charged, at, arg.Code)
	order, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (models.Order, error) {
		var o models.Order
		err := row.Scan(append([]any{&released}, orderFields(&o)...)...)
		return o, err
	})

	switch {
	case err == nil:
		return order, released, nil
	case errors.Is(err, pgx.ErrNoRows):
		return order, released, r.lostRace(ctx, arg.OrderID)
	default:
		return order, released, fmt.Errorf("db error: %w", err)
	}
}

func (r *OrderRepo) ListOrders(ctx context.Context, opts repository.ListOrdersOpts) ([]models.Order, error) {
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
	if opts.Kind != "" {
		where = append(where, "kind = "+arg(opts.Kind))
	}
	if len(opts.Statuses) > 0 {
		where = append(where, "status = ANY("+arg(opts.Statuses)+")")
	}
	if opts.ExpiredBefore != nil {
		where = append(where, "expires_at < "+arg(*opts.ExpiredBefore))
	}
	if opts.OnlyFrozen {
		where = append(where, "frozen_amount > 0")
	}
	if opts.WithRef {
		where = append(where, "provider_ref IS NOT NULL")
	}

	query := "SELECT " + orderColumns + " FROM orders"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if opts.ByExpiry {
		query += " ORDER BY expires_at ASC, id"
	} else {
		query += " ORDER BY created_at DESC, id"
	}
	if opts.Limit > 0 {
		query += " LIMIT " + arg(opts.Limit)
	}

	rows, _ := r.DB.Query(ctx, query, args...)
	orders, err := pgx.CollectRows(rows, rowToOrder)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return orders, nil
}

// Tell apart missing order and the one that was already moved by someone else
func (r *OrderRepo) lostRace(ctx context.Context, orderID uuid.UUID) error {
	_, err := r.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	return apperrors.ErrOrderAlreadySettled
}

const orderColumnsPrefixed = `o.id, o.user_id, o.kind, o.provider, o.service, o.country, o.price, o.frozen_amount, o.status, o.charged,
	o.provider_ref, o.phone, o.code, o.expires_at, o.created_at, o.updated_at`

func orderFields(o *models.Order) []any {
	return []any{
		&o.ID, &o.UserID, &o.Kind, &o.Provider, &o.Service, &o.Country, &o.Price, &o.FrozenAmount, &o.Status, &o.Charged,
		&o.ProviderRef, &o.Phone, &o.Code, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt,
	}
}

func rowToOrder(row pgx.CollectableRow) (models.Order, error) {
	var o models.Order
	err := row.Scan(orderFields(&o)...)
	return o, err
}

func collectOrder(rows pgx.Rows) (models.Order, error) {
	order, err := pgx.CollectOneRow(rows, rowToOrder)

	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, pgx.ErrNoRows):
		return order, apperrors.ErrOrderNotFound
	default:
		return order, fmt.Errorf("db error: %w", err)
	}
}
