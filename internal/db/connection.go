package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Run embedded migrations
// dsn: database source name in format postgres://...
func Migrate(dsn string) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}

	migrator, err := migrate.NewWithSourceInstance(
		"iofs",
		source,
		// golang-migrate expects dsn in format 'pgx5://...' only
		strings.NewReplacer(
			"postgres://", "pgx5://",
			"postgresql://", "pgx5://",
		).Replace(dsn),
	)
	if err != nil {
		return fmt.Errorf("error while preparing migrator. Err: %w", err)
	}
	defer migrator.Close() // nolint:errcheck

	err = migrator.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error while applying migrations. Err: %w", err)
	}

	return nil
}

// Connect to the database and check the connection is alive
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("cant parse database dsn. Err: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("cant initialize connection pool. Err: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cant ping database. Err: %w", err)
	}

	return pool, nil
}

func ConnectAndMigrate(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	err := Migrate(dsn)
	if err != nil {
		return nil, err
	}

	return Connect(ctx, dsn)
}
