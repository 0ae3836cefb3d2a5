package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TransactionKindTopUp    = "topup"
	TransactionKindPurchase = "purchase"
)

const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
)

// Transaction is a user facing record of a purchase or a top-up
type Transaction struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Kind        string
	Amount      decimal.Decimal
	Status      string
	ExternalRef string
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (t Transaction) IsTerminal() bool {
	return t.Status != TransactionStatusPending
}
