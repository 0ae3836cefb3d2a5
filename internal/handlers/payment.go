package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/numrent/internal/apperrors"
	"github.com/nkiryanov/numrent/internal/handlers/render"
	"github.com/nkiryanov/numrent/internal/handlers/userctx"
	"github.com/nkiryanov/numrent/internal/logger"
	"github.com/nkiryanov/numrent/internal/service/credit"
)

func handleCreateTopUp(creditService creditService, l logger.Logger) http.Handler {
	type request struct {
		Amount decimal.Decimal `json:"amount" validate:"positive"`
	}
	type response struct {
		ID     uuid.UUID       `json:"id"`
		Token  string          `json:"token"`
		Amount decimal.Decimal `json:"amount"`
		Status string          `json:"status"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		tx, err := creditService.CreateTopUp(r.Context(), user.ID, data.Amount)
		if err != nil {
			l.Error("Failed to create top-up", "user_id", user.ID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSONWithStatus(w, response{
			ID:     tx.ID,
			Token:  tx.ExternalRef,
			Amount: tx.Amount,
			Status: tx.Status,
		}, http.StatusCreated)
	})
}

func handlePaymentWebhook(creditService creditService, l logger.Logger) http.Handler {
	type request struct {
		Token     string          `json:"token" validate:"required"`
		Amount    decimal.Decimal `json:"amount" validate:"positive"`
		Status    string          `json:"status" validate:"required"`
		Signature string          `json:"signature" validate:"required"`
	}
	type response struct {
		Status           string `json:"status"`
		AlreadyProcessed bool   `json:"already_processed"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		res, err := creditService.Handle(r.Context(), credit.Event{
			Token:     data.Token,
			Amount:    data.Amount,
			Status:    data.Status,
			Signature: data.Signature,
		})

		switch {
		case err == nil:
			render.JSON(w, response{Status: res.Transaction.Status, AlreadyProcessed: res.AlreadyProcessed})
		case errors.Is(err, apperrors.ErrSignatureInvalid):
			render.ServiceError(w, "Invalid signature", http.StatusUnauthorized)
		case errors.Is(err, apperrors.ErrTransactionNotFound):
			render.ServiceError(w, "Payment not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrAmountMismatch), errors.Is(err, credit.ErrStatusInvalid):
			render.ServiceError(w, "Payment does not match top-up", http.StatusUnprocessableEntity)
		default:
			l.Error("Failed to handle payment webhook", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
