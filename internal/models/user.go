package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type User struct {
	ID            uuid.UUID
	CreatedAt     time.Time
	Username      string
	Balance       decimal.Decimal
	FrozenBalance decimal.Decimal
}

// Available is the part of the balance that may be frozen for a new purchase
func (u User) Available() decimal.Decimal {
	return u.Balance.Sub(u.FrozenBalance)
}
