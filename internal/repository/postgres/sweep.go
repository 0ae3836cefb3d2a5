package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/numrent/internal/models"
)

type SweepRepo struct {
	DB DBTX
}

const sweepColumns = `id, started_at, finished_at, processed, refunded, refunded_total, committed, committed_total, errors`

const saveSweepRun = `-- name: SaveSweepRun
INSERT INTO sweep_runs (` + sweepColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

func (r *SweepRepo) SaveRun(ctx context.Context, run models.SweepRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	_, err := r.DB.Exec(ctx, saveSweepRun,
		run.ID, run.StartedAt, run.FinishedAt, run.Processed,
		run.Refunded, run.RefundedTotal, run.Committed, run.CommittedTotal, run.Errors,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const listSweepRuns = `-- name: ListSweepRuns
SELECT ` + sweepColumns + ` FROM sweep_runs
ORDER BY started_at DESC
LIMIT $1
`

// Latest runs first
func (r *SweepRepo) ListRuns(ctx context.Context, limit int) ([]models.SweepRun, error) {
	rows, _ := r.DB.Query(ctx, listSweepRuns, limit)
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.SweepRun, error) {
		var s models.SweepRun
		err := row.Scan(
			&s.ID, &s.StartedAt, &s.FinishedAt, &s.Processed,
			&s.Refunded, &s.RefundedTotal, &s.Committed, &s.CommittedTotal, &s.Errors,
		)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return runs, nil
}
