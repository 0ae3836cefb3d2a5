package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrAmountInvalid       = errors.New("amount must be positive and in whole cents")
	ErrLedgerEntryExists   = errors.New("ledger entry already exists")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderAlreadySettled = errors.New("order already settled")
	ErrOrderNotOwned       = errors.New("order belongs to different user")
	ErrOrderNotCancellable = errors.New("order can't be cancelled")

	ErrProvider        = errors.New("provider request failed")
	ErrProviderUnknown = errors.New("unknown provider")
	ErrPriceNotFound   = errors.New("price not found")

	ErrSignatureInvalid    = errors.New("signature is invalid")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAmountMismatch      = errors.New("declared amount doesn't match transaction")
)
