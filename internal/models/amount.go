package models

import (
	"github.com/shopspring/decimal"
)

// Balances and ledger amounts are stored as NUMERIC(20,2)
const AmountScale = 2

// ValidAmount reports whether amount is positive and has no fraction finer than a cent
func ValidAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && amount.Equal(amount.Truncate(AmountScale))
}
