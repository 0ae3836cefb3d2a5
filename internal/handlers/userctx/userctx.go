package userctx

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/numrent/internal/models"
)

type ctxKey string

const (
	userKey  ctxKey = "user"
	traceKey ctxKey = "trace"
)

// Trace collects ids resolved while the request is served, so the access log can report them
// Written by the request goroutine only
type Trace struct {
	UserID  uuid.UUID
	OrderID uuid.UUID
}

// Attach an empty trace. Inner handlers fill it through New and SetOrder
func WithTrace(ctx context.Context) (context.Context, *Trace) {
	t := &Trace{}
	return context.WithValue(ctx, traceKey, t), t
}

// Create a new context with the authenticated user; the request trace gets user id as well
func New(ctx context.Context, u models.User) context.Context {
	if t, ok := ctx.Value(traceKey).(*Trace); ok {
		t.UserID = u.ID
	}
	return context.WithValue(ctx, userKey, u)
}

// Extract the user from the context
func FromContext(ctx context.Context) (models.User, bool) {
	u, ok := ctx.Value(userKey).(models.User)
	return u, ok
}

// Remember the order the request works on. No-op without trace
func SetOrder(ctx context.Context, orderID uuid.UUID) {
	if t, ok := ctx.Value(traceKey).(*Trace); ok {
		t.OrderID = orderID
	}
}
