package reconcile

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/numrent/internal/logger"
	"github.com/nkiryanov/numrent/internal/models"
	"github.com/nkiryanov/numrent/internal/repository"
)

type Opts struct {
	UserIDs []uuid.UUID

	// Include healthy users too
	All bool
}

// Service reports frozen counters that differ from live reservations
// It never repairs anything
type Service struct {
	storage repository.Storage
	logger  logger.Logger
}

func New(storage repository.Storage, logger logger.Logger) *Service {
	return &Service{storage: storage, logger: logger}
}

func (s *Service) Report(ctx context.Context, opts Opts) ([]models.FrozenReport, error) {
	reports, err := s.storage.Reconciliation().FrozenReports(ctx, opts.UserIDs...)
	if err != nil {
		return nil, err
	}

	out := make([]models.FrozenReport, 0, len(reports))
	for _, r := range reports {
		healthy := r.Classification() == models.ReconHealthy && r.LedgerFrozen.Equal(r.ActualFrozen)
		if !healthy {
			s.logger.Warn("Frozen balance discrepancy",
				"user_id", r.UserID,
				"classification", r.Classification(),
				"expected", r.ExpectedFrozen,
				"actual", r.ActualFrozen,
				"ledger", r.LedgerFrozen,
			)
		}
		if healthy && !opts.All {
			continue
		}
		out = append(out, r)
	}

	return out, nil
}
