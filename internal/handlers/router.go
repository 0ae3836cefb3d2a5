package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/numrent/internal/handlers/middleware"
	"github.com/nkiryanov/numrent/internal/logger"
	"github.com/nkiryanov/numrent/internal/models"
	"github.com/nkiryanov/numrent/internal/repository"
	"github.com/nkiryanov/numrent/internal/service/auth"
	"github.com/nkiryanov/numrent/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/numrent/internal/service/credit"
	"github.com/nkiryanov/numrent/internal/service/purchase"
	"github.com/nkiryanov/numrent/internal/service/reconcile"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type Services struct {
	Auth         authService
	Purchase     purchaseService
	Canceller    cancelService
	Orders       orderReader
	Users        userReader
	Transactions transactionReader
	Credit       creditService
	Reconcile    reconcileService
	Sweeper      sweepService
}

func NewRouter(s Services, logger logger.Logger) http.Handler {
	withAuth := middleware.AuthMiddleware(s.Auth)
	withAdmin := middleware.AdminMiddleware(s.Auth)

	mux := http.NewServeMux()

	mux.Handle("POST /api/user/orders", withAuth(handleCreateOrder(s.Purchase, logger)))
	mux.Handle("GET /api/user/orders", withAuth(handleListOrders(s.Orders, logger)))
	mux.Handle("GET /api/user/orders/{id}", withAuth(handleGetOrder(s.Orders, logger)))
	mux.Handle("POST /api/user/orders/{id}/cancel", withAuth(handleCancelOrder(s.Canceller, logger)))
	mux.Handle("GET /api/user/balance", withAuth(handleUserBalance(s.Users, logger)))
	mux.Handle("GET /api/user/transactions", withAuth(handleListTransactions(s.Transactions, logger)))
	mux.Handle("POST /api/user/topups", withAuth(handleCreateTopUp(s.Credit, logger)))
	mux.Handle("GET /api/user/me", withAuth(handleUserMe()))

	// Signed by the payment provider, no user token here
	mux.Handle("POST /api/payments/webhook", handlePaymentWebhook(s.Credit, logger))

	mux.Handle("POST /api/admin/users", withAdmin(handleCreateUser(s.Auth, logger)))
	mux.Handle("POST /api/admin/users/{id}/token", withAdmin(handleIssueToken(s.Auth, logger)))
	mux.Handle("GET /api/admin/reconciliation", withAdmin(handleReconciliation(s.Reconcile, logger)))
	mux.Handle("POST /api/admin/sweep", withAdmin(handleSweep(s.Sweeper, logger)))

	mux.Handle("GET /metrics", promhttp.Handler())

	handler := chain(mux,
		middleware.LoggerMiddleware(logger),
		middleware.MetricsMiddleware,
	)

	return handler
}

type authService interface {
	Auth(ctx context.Context, r *http.Request) (auth.Identity, error)

	// Has to return apperrors.ErrUserAlreadyExists if username is taken
	CreateUser(ctx context.Context, username string) (models.User, tokenmanager.IssuedToken, error)

	// Has to return apperrors.ErrUserNotFound if user does not exist
	IssueToken(ctx context.Context, userID uuid.UUID) (tokenmanager.IssuedToken, error)
}

type purchaseService interface {
	Purchase(ctx context.Context, req purchase.Request) (models.Order, error)
}

type cancelService interface {
	Cancel(ctx context.Context, userID uuid.UUID, orderID uuid.UUID) (models.Order, error)
}

type orderReader interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (models.Order, error)
	ListOrders(ctx context.Context, opts repository.ListOrdersOpts) ([]models.Order, error)
}

type userReader interface {
	GetUser(ctx context.Context, userID uuid.UUID, lock bool) (models.User, error)
}

type transactionReader interface {
	ListTransactions(ctx context.Context, userID uuid.UUID, kinds []string) ([]models.Transaction, error)
}

type creditService interface {
	CreateTopUp(ctx context.Context, userID uuid.UUID, amount decimal.Decimal) (models.Transaction, error)
	Handle(ctx context.Context, e credit.Event) (credit.Result, error)
}

type reconcileService interface {
	Report(ctx context.Context, opts reconcile.Opts) ([]models.FrozenReport, error)
}

type sweepService interface {
	RunOnce(ctx context.Context) (models.SweepRun, error)
}
