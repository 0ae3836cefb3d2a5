package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/numrent/internal/models"
)

type ReconciliationRepo struct {
	DB DBTX
}

// Read only, never touches the counters
const frozenReports = `-- name: FrozenReports
SELECT
	u.id,
	u.username,
	COALESCE(o.expected, 0),
	u.frozen_balance,
	COALESCE(l.frozen, 0),
	COALESCE(o.live, 0)
FROM users u
LEFT JOIN (
	SELECT user_id, SUM(frozen_amount) AS expected, COUNT(*) AS live
	FROM orders
	WHERE status IN ('pending', 'waiting', 'active')
	GROUP BY user_id
) o ON o.user_id = u.id
LEFT JOIN (
	SELECT user_id, SUM(CASE WHEN type = 'freeze' THEN amount ELSE -amount END) AS frozen
	FROM ledger_entries
	WHERE type IN ('freeze', 'commit', 'refund')
	GROUP BY user_id
) l ON l.user_id = u.id
WHERE cardinality($1::uuid[]) = 0 OR u.id = ANY($1)
ORDER BY u.username
`

func (r *ReconciliationRepo) FrozenReports(ctx context.Context, userIDs ...uuid.UUID) ([]models.FrozenReport, error) {
	if userIDs == nil {
		userIDs = []uuid.UUID{}
	}

	rows, _ := r.DB.Query(ctx, frozenReports, userIDs)
	reports, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.FrozenReport, error) {
		var rep models.FrozenReport
		err := row.Scan(&rep.UserID, &rep.Username, &rep.ExpectedFrozen, &rep.ActualFrozen, &rep.LedgerFrozen, &rep.LiveOrders)
		return rep, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return reports, nil
}
