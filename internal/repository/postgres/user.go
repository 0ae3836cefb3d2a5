package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/numrent/internal/apperrors"
	"github.com/nkiryanov/numrent/internal/models"
)

type UserRepo struct {
	DB DBTX
}

const userColumns = `id, created_at, username, balance, frozen_balance`

const createUser = `-- name: CreateUser
INSERT INTO users (id, username)
VALUES ($1, $2)
RETURNING ` + userColumns

func (r *UserRepo) CreateUser(ctx context.Context, username string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createUser, uuid.New(), username)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case isUniqueViolation(err):
		return user, apperrors.ErrUserAlreadyExists
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

const getUser = `-- name: GetUser
SELECT ` + userColumns + ` FROM users
WHERE id = $1
`

const getUserForUpdate = getUser + `FOR UPDATE`

func (r *UserRepo) GetUser(ctx context.Context, userID uuid.UUID, lock bool) (models.User, error) {
	query := getUser
	if lock {
		query = getUserForUpdate
	}

	rows, _ := r.DB.Query(ctx, query, userID)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

const setCounters = `-- name: SetCounters
UPDATE users
SET balance = $2, frozen_balance = $3
WHERE id = $1
RETURNING ` + userColumns

func (r *UserRepo) SetCounters(ctx context.Context, userID uuid.UUID, balance, frozen decimal.Decimal) (models.User, error) {
	rows, _ := r.DB.Query(ctx, setCounters, userID, balance, frozen)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Username, &u.Balance, &u.FrozenBalance)
	return u, err
}
