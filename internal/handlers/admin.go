package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/numrent/internal/apperrors"
	"github.com/nkiryanov/numrent/internal/handlers/render"
	"github.com/nkiryanov/numrent/internal/logger"
	"github.com/nkiryanov/numrent/internal/service/reconcile"
)

type tokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func handleCreateUser(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required,min=2,max=50"`
	}
	type response struct {
		ID       uuid.UUID `json:"id"`
		Username string    `json:"username"`
		tokenResponse
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, token, err := authService.CreateUser(r.Context(), data.Username)

		switch {
		case err == nil:
			render.JSONWithStatus(w, response{
				ID:            user.ID,
				Username:      user.Username,
				tokenResponse: tokenResponse{AccessToken: token.Value, ExpiresAt: token.ExpiresAt},
			}, http.StatusCreated)
		case errors.Is(err, apperrors.ErrUserAlreadyExists):
			render.ServiceError(w, "User already exists", http.StatusConflict)
		default:
			l.Error("Failed to create user", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleIssueToken(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "User not found", http.StatusNotFound)
			return
		}

		token, err := authService.IssueToken(r.Context(), userID)

		switch {
		case err == nil:
			render.JSON(w, tokenResponse{AccessToken: token.Value, ExpiresAt: token.ExpiresAt})
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusNotFound)
		default:
			l.Error("Failed to issue token", "user_id", userID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleReconciliation(reconcileService reconcileService, l logger.Logger) http.Handler {
	type report struct {
		UserID         uuid.UUID       `json:"user_id"`
		Username       string          `json:"username"`
		ExpectedFrozen decimal.Decimal `json:"expected_frozen"`
		ActualFrozen   decimal.Decimal `json:"actual_frozen"`
		LedgerFrozen   decimal.Decimal `json:"ledger_frozen"`
		Discrepancy    decimal.Decimal `json:"discrepancy"`
		Classification string          `json:"classification"`
		LiveOrders     int             `json:"live_orders"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		opts := reconcile.Opts{}

		query := r.URL.Query()
		opts.All, _ = strconv.ParseBool(query.Get("all"))
		for _, raw := range query["user_id"] {
			id, err := uuid.Parse(raw)
			if err != nil {
				render.ServiceError(w, "Invalid user_id", http.StatusBadRequest)
				return
			}
			opts.UserIDs = append(opts.UserIDs, id)
		}

		reports, err := reconcileService.Report(r.Context(), opts)
		if err != nil {
			l.Error("Failed to build reconciliation report", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		res := make([]report, 0, len(reports))
		for _, rep := range reports {
			res = append(res, report{
				UserID:         rep.UserID,
				Username:       rep.Username,
				ExpectedFrozen: rep.ExpectedFrozen,
				ActualFrozen:   rep.ActualFrozen,
				LedgerFrozen:   rep.LedgerFrozen,
				Discrepancy:    rep.Discrepancy(),
				Classification: rep.Classification(),
				LiveOrders:     rep.LiveOrders,
			})
		}
		render.JSON(w, res)
	})
}

func handleSweep(sweeper sweepService, l logger.Logger) http.Handler {
	type response struct {
		Processed      int             `json:"processed"`
		Refunded       int             `json:"refunded"`
		RefundedTotal  decimal.Decimal `json:"refunded_total"`
		Committed      int             `json:"committed"`
		CommittedTotal decimal.Decimal `json:"committed_total"`
		Errors         int             `json:"errors"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		run, err := sweeper.RunOnce(r.Context())
		if err != nil {
			l.Error("Manual sweep failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{
			Processed:      run.Processed,
			Refunded:       run.Refunded,
			RefundedTotal:  run.RefundedTotal,
			Committed:      run.Committed,
			CommittedTotal: run.CommittedTotal,
			Errors:         run.Errors,
		})
	})
}
