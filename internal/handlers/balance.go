package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/numrent/internal/handlers/render"
	"github.com/nkiryanov/numrent/internal/handlers/userctx"
	"github.com/nkiryanov/numrent/internal/logger"
)

func handleUserMe() http.Handler {
	type response struct {
		ID       uuid.UUID `json:"id"`
		Username string    `json:"username"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := userctx.FromContext(r.Context())
		render.JSON(w, response{ID: user.ID, Username: user.Username})
	})
}

func handleUserBalance(users userReader, l logger.Logger) http.Handler {
	type response struct {
		Balance   decimal.Decimal `json:"balance"`
		Frozen    decimal.Decimal `json:"frozen"`
		Available decimal.Decimal `json:"available"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		// The user in context may be stale, read counters again
		fresh, err := users.GetUser(r.Context(), user.ID, false)
		if err != nil {
			l.Error("Failed to get balance", "user_id", user.ID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{
			Balance:   fresh.Balance,
			Frozen:    fresh.FrozenBalance,
			Available: fresh.Available(),
		})
	})
}

func handleListTransactions(transactions transactionReader, l logger.Logger) http.Handler {
	type transaction struct {
		ID        uuid.UUID         `json:"id"`
		Kind      string            `json:"kind"`
		Amount    decimal.Decimal   `json:"amount"`
		Status    string            `json:"status"`
		Metadata  map[string]string `json:"metadata,omitempty"`
		CreatedAt time.Time         `json:"created_at"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		var kinds []string
		if kind := r.URL.Query().Get("kind"); kind != "" {
			kinds = []string{kind}
		}

		list, err := transactions.ListTransactions(r.Context(), user.ID, kinds)
		if err != nil {
			l.Error("Failed to list transactions", "user_id", user.ID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		res := make([]transaction, 0, len(list))
		for _, t := range list {
			res = append(res, transaction{
				ID:        t.ID,
				Kind:      t.Kind,
				Amount:    t.Amount,
				Status:    t.Status,
				Metadata:  t.Metadata,
				CreatedAt: t.CreatedAt,
			})
		}
		render.JSON(w, res)
	})
}
