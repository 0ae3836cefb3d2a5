package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/numrent/internal/apperrors"
	"github.com/nkiryanov/numrent/internal/handlers/render"
	"github.com/nkiryanov/numrent/internal/handlers/userctx"
	"github.com/nkiryanov/numrent/internal/logger"
	"github.com/nkiryanov/numrent/internal/models"
	"github.com/nkiryanov/numrent/internal/repository"
	"github.com/nkiryanov/numrent/internal/service/purchase"
)

type orderResponse struct {
	ID        uuid.UUID       `json:"id"`
	Kind      string          `json:"kind"`
	Provider  string          `json:"provider"`
	Service   string          `json:"service"`
	Country   string          `json:"country"`
	Price     decimal.Decimal `json:"price"`
	Status    string          `json:"status"`
	Phone     *string         `json:"phone,omitempty"`
	Code      *string         `json:"code,omitempty"`
	ExpiresAt time.Time       `json:"expires_at"`
	CreatedAt time.Time       `json:"created_at"`
}

func newOrderResponse(o models.Order) orderResponse {
	return orderResponse{
		ID:        o.ID,
		Kind:      o.Kind,
		Provider:  string(o.Provider),
		Service:   o.Service,
		Country:   o.Country,
		Price:     o.Price,
		Status:    o.Status,
		Phone:     o.Phone,
		Code:      o.Code,
		ExpiresAt: o.ExpiresAt,
		CreatedAt: o.CreatedAt,
	}
}

func handleCreateOrder(purchaseService purchaseService, l logger.Logger) http.Handler {
	type request struct {
		Kind     string `json:"kind" validate:"required,oneof=activation rental"`
		Provider string `json:"provider" validate:"required"`
		Service  string `json:"service" validate:"required,max=32"`
		Country  string `json:"country" validate:"required,max=32"`
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

		order, err := purchaseService.Purchase(r.Context(), purchase.Request{
			UserID:   user.ID,
			Kind:     data.Kind,
			Provider: data.Provider,
			Service:  data.Service,
			Country:  data.Country,
		})

		switch {
		case err == nil:
			userctx.SetOrder(r.Context(), order.ID)
			render.JSONWithStatus(w, newOrderResponse(order), http.StatusCreated)
		case errors.Is(err, apperrors.ErrInsufficientFunds):
			render.ServiceError(w, "Insufficient funds", http.StatusPaymentRequired)
		case errors.Is(err, apperrors.ErrProviderUnknown), errors.Is(err, purchase.ErrKindInvalid):
			render.ServiceError(w, "Unknown provider or order kind", http.StatusUnprocessableEntity)
		case errors.Is(err, apperrors.ErrPriceNotFound):
			render.ServiceError(w, "Service is not available for the country", http.StatusUnprocessableEntity)
		case errors.Is(err, apperrors.ErrProvider):
			render.ServiceError(w, "Provider could not give a number, funds are released", http.StatusBadGateway)
		default:
			l.Error("Failed to purchase number", "user_id", user.ID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleGetOrder(orders orderReader, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		orderID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Order not found", http.StatusNotFound)
			return
		}
		userctx.SetOrder(r.Context(), orderID)

		order, err := orders.GetOrder(r.Context(), orderID)

		switch {
		case err == nil && order.UserID == user.ID:
			render.JSON(w, newOrderResponse(order))
		case err == nil, errors.Is(err, apperrors.ErrOrderNotFound):
			render.ServiceError(w, "Order not found", http.StatusNotFound)
		default:
			l.Error("Failed to get order", "order_id", orderID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}

func handleListOrders(orders orderReader, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		list, err := orders.ListOrders(r.Context(), repository.ListOrdersOpts{UserID: &user.ID, Limit: 100})
		if err != nil {
			l.Error("Failed to list orders", "user_id", user.ID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		res := make([]orderResponse, 0, len(list))
		for _, o := range list {
			res = append(res, newOrderResponse(o))
		}
		render.JSON(w, res)
	})
}

func handleCancelOrder(canceller cancelService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		if !ok {
			render.ServiceError(w, "Internal service error", http.StatusInternalServerError)
			return
		}

		orderID, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			render.ServiceError(w, "Order not found", http.StatusNotFound)
			return
		}
		userctx.SetOrder(r.Context(), orderID)

		order, err := canceller.Cancel(r.Context(), user.ID, orderID)

		switch {
		case err == nil:
			render.JSON(w, newOrderResponse(order))
		case errors.Is(err, apperrors.ErrOrderNotFound), errors.Is(err, apperrors.ErrOrderNotOwned):
			render.ServiceError(w, "Order not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrOrderNotCancellable):
			render.ServiceError(w, "Order can't be cancelled", http.StatusConflict)
		case errors.Is(err, apperrors.ErrProvider):
			render.ServiceError(w, "Provider refused to cancel, try later", http.StatusBadGateway)
		default:
			l.Error("Failed to cancel order", "order_id", orderID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	})
}
