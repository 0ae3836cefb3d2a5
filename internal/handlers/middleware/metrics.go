package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nkiryanov/numrent/internal/metrics"
)

// MetricsMiddleware counts requests by route pattern
// Must wrap the mux directly: the pattern is known after routing only
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lw := &logWriter{
			ResponseWriter: w,
			data:           logData{responseStatus: http.StatusOK},
		}

		next.ServeHTTP(lw, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}

		metrics.HTTPRequests.WithLabelValues(r.Method, endpoint, strconv.Itoa(lw.data.responseStatus)).Inc()
		metrics.HTTPLatency.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}
