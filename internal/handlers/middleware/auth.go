package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/numrent/internal/handlers/render"
	"github.com/nkiryanov/numrent/internal/handlers/userctx"
	"github.com/nkiryanov/numrent/internal/service/auth"
)

type authService interface {
	Auth(ctx context.Context, r *http.Request) (auth.Identity, error)
}

// AuthMiddleware lets through requests of existing users only
func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := as.Auth(r.Context(), r)
			if err != nil || id.User.ID == uuid.Nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := userctx.New(r.Context(), id.User)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminMiddleware lets through operator tokens only
func AdminMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := as.Auth(r.Context(), r)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !id.Admin {
				render.ServiceError(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
