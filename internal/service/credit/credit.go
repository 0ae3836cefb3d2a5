package credit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/numrent/internal/apperrors"
	"github.com/nkiryanov/numrent/internal/logger"
	"github.com/nkiryanov/numrent/internal/models"
	"github.com/nkiryanov/numrent/internal/repository"
	"github.com/nkiryanov/numrent/internal/service/ledger"
)

// Payment statuses reported by the payment provider
const (
	EventStatusSucceeded = "succeeded"
	EventStatusFailed    = "failed"
)

var ErrStatusInvalid = errors.New("payment status is unknown")

// Event is the payment provider webhook body
type Event struct {
	Token     string          `json:"token"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	Signature string          `json:"signature"`
}

type Result struct {
	Transaction models.Transaction

	// The transaction was terminal already, nothing changed
	AlreadyProcessed bool
}

// Handler credits user balance exactly once per payment
type Handler struct {
	storage repository.Storage
	secret  []byte
	logger  logger.Logger
}

func NewHandler(storage repository.Storage, secret string, logger logger.Logger) *Handler {
	return &Handler{
		storage: storage,
		secret:  []byte(secret),
		logger:  logger,
	}
}

// Sign returns hex HMAC-SHA256 of the event fields the payment provider signs
func Sign(secret string, token string, amount decimal.Decimal, status string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token + ":" + amount.StringFixed(2) + ":" + status))
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *Handler) verify(e Event) error {
	if len(h.secret) == 0 || e.Signature == "" {
		return apperrors.ErrSignatureInvalid
	}

	got, err := hex.DecodeString(e.Signature)
	if err != nil {
		return apperrors.ErrSignatureInvalid
	}
	want, _ := hex.DecodeString(Sign(string(h.secret), e.Token, e.Amount, e.Status))

	if !hmac.Equal(got, want) {
		return apperrors.ErrSignatureInvalid
	}
	return nil
}

// CreateTopUp registers a pending top-up. The token is handed to the payment provider
// and comes back in the webhook
func (h *Handler) CreateTopUp(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (models.Transaction, error) {
	if !models.ValidAmount(amount) {
		return models.Transaction{}, apperrors.ErrAmountInvalid
	}

	return h.storage.Transaction().CreateTransaction(ctx, models.Transaction{
		UserID:      userID,
		Kind:        models.TransactionKindTopUp,
		Amount:      amount,
		Status:      models.TransactionStatusPending,
		ExternalRef: uuid.NewString(),
	})
}

// Handle applies payment webhook. Repeated delivery of the same event is a no-op
// Nothing changes unless the signature is valid
func (h *Handler) Handle(ctx context.Context, e Event) (Result, error) {
	if err := h.verify(e); err != nil {
		h.logger.Warn("Rejected payment event", "token", e.Token, "error", err)
		return Result{}, err
	}

	if e.Status != EventStatusSucceeded && e.Status != EventStatusFailed {
		return Result{}, fmt.Errorf("%w: %q", ErrStatusInvalid, e.Status)
	}

	var result Result

	err := h.storage.InTx(ctx, func(storage repository.Storage) error {
		tx, err := storage.Transaction().GetByExternalRef(ctx, e.Token, true)
		if err != nil {
			return err
		}
		if tx.Kind != models.TransactionKindTopUp {
			return apperrors.ErrTransactionNotFound
		}

		if tx.IsTerminal() {
			result = Result{Transaction: tx, AlreadyProcessed: true}
			return nil
		}

		if e.Status == EventStatusFailed {
			result.Transaction, err = storage.Transaction().SetStatus(ctx, tx.ID, models.TransactionStatusFailed)
			return err
		}

		if !tx.Amount.Equal(e.Amount) {
			return apperrors.ErrAmountMismatch
		}

		credits, err := storage.Ledger().ListEntries(ctx, repository.ListEntriesOpts{
			TransactionID: &tx.ID,
			Types:         []string{models.LedgerEntryCredit},
		})
		if err != nil {
			return err
		}

		// Balance was credited but the status was not saved: only finish the status
		if len(credits) == 0 {
			_, err = ledger.New(storage).Credit(ctx, tx.UserID, tx.Amount, tx.ID, "top-up "+tx.ExternalRef)
			if err != nil {
				return err
			}
		} else {
			h.logger.Warn("Top-up credited before, completing status only", "transaction_id", tx.ID)
		}

		result.Transaction, err = storage.Transaction().SetStatus(ctx, tx.ID, models.TransactionStatusCompleted)
		return err
	})
	if err != nil {
		h.logger.Error("Failed to handle payment event", "token", e.Token, "error", err)
		return Result{}, err
	}

	if !result.AlreadyProcessed {
		h.logger.Info("Payment event handled", "transaction_id", result.Transaction.ID, "status", result.Transaction.Status)
	}
	return result, nil
}
