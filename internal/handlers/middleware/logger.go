package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/numrent/internal/handlers/userctx"
)

type logger interface {
	Info(msg string, args ...any)
}

type logData struct {
	responseStatus int
	responseSize   int
}

type logWriter struct {
	http.ResponseWriter
	data logData
}

func (w *logWriter) Write(p []byte) (int, error) {
	size, err := w.ResponseWriter.Write(p)
	w.data.responseSize += size
	return size, err
}

func (w *logWriter) WriteHeader(statusCode int) {
	w.ResponseWriter.WriteHeader(statusCode)
	w.data.responseStatus = statusCode
}

// LoggerMiddleware writes access log with the matched route and ids the handlers resolved
// Has to be the outermost middleware
func LoggerMiddleware(l logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx, trace := userctx.WithTrace(r.Context())
			r = r.WithContext(ctx)

			lw := &logWriter{
				ResponseWriter: w,
				data:           logData{responseStatus: http.StatusOK},
			}

			next.ServeHTTP(lw, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}

			args := []any{
				"method", r.Method,
				"uri", r.RequestURI,
				"route", route,
				"duration", time.Since(start),
				"status", lw.data.responseStatus,
				"size", lw.data.responseSize,
			}
			if trace.UserID != uuid.Nil {
				args = append(args, "user_id", trace.UserID)
			}
			if trace.OrderID != uuid.Nil {
				args = append(args, "order_id", trace.OrderID)
			}

			l.Info("got HTTP request", args...)
		})
	}
}
