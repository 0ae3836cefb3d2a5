package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	LedgerEntryFreeze = "freeze"
	LedgerEntryCommit = "commit"
	LedgerEntryRefund = "refund"
	LedgerEntryCredit = "credit"
)

// LedgerEntry is an immutable record of one balance/frozen counters transition
type LedgerEntry struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	OrderID       *uuid.UUID // set for freeze, commit, refund
	TransactionID *uuid.UUID // set for credit
	Type          string
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	FrozenBefore  decimal.Decimal
	FrozenAfter   decimal.Decimal
	Reason        string
	CreatedAt     time.Time
}
