package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SweepRun summary of one expiry sweeper run
type SweepRun struct {
	ID             uuid.UUID
	StartedAt      time.Time
	FinishedAt     time.Time
	Processed      int
	Refunded       int
	RefundedTotal  decimal.Decimal
	Committed      int
	CommittedTotal decimal.Decimal
	Errors         int
}
