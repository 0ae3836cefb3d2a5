package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	ReconHealthy       = "HEALTHY"
	ReconPhantomFrozen = "PHANTOM_FROZEN"
	ReconUnderFrozen   = "UNDER_FROZEN"
)

// FrozenReport compares user frozen counter with what live orders and the ledger say it should be
type FrozenReport struct {
	UserID         uuid.UUID
	Username       string
	ExpectedFrozen decimal.Decimal // sum of frozen_amount over live orders
	ActualFrozen   decimal.Decimal // users.frozen_balance
	LedgerFrozen   decimal.Decimal // freeze - commit - refund over ledger entries
	LiveOrders     int
}

func (r FrozenReport) Discrepancy() decimal.Decimal {
	return r.ActualFrozen.Sub(r.ExpectedFrozen)
}

func (r FrozenReport) Classification() string {
	switch d := r.Discrepancy(); {
	case d.IsPositive():
		return ReconPhantomFrozen
	case d.IsNegative():
		return ReconUnderFrozen
	default:
		return ReconHealthy
	}
}
