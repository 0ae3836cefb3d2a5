package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/numrent/internal/repository"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx
// Begin on pgx.Tx creates a savepoint, so InTx may be nested
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Storage struct {
	db DBTX
}

func NewStorage(db DBTX) repository.Storage {
	return &Storage{db: db}
}

func (s *Storage) User() repository.UserRepo {
	return &UserRepo{DB: s.db}
}

func (s *Storage) Order() repository.OrderRepo {
	return &OrderRepo{DB: s.db}
}

func (s *Storage) Ledger() repository.LedgerRepo {
	return &LedgerRepo{DB: s.db}
}

func (s *Storage) Transaction() repository.TransactionRepo {
	return &TransactionRepo{DB: s.db}
}

func (s *Storage) Sweep() repository.SweepRepo {
	return &SweepRepo{DB: s.db}
}

func (s *Storage) Reconciliation() repository.ReconciliationRepo {
	return &ReconciliationRepo{DB: s.db}
}

func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("db tx error: %w", err)
	}

	defer func() {
		switch err {
		case nil:
			err = tx.Commit(ctx)
		default:
			_ = tx.Rollback(ctx)
		}
	}()

	err = fn(NewStorage(tx))

	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}
