package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/numrent/internal/handlers/userctx"
	"github.com/nkiryanov/numrent/internal/models"
)

type loggerFunc func(string, ...any)

func (f loggerFunc) Info(msg string, v ...any) { f(msg, v...) }

// Record the last access log line as key/value map
func recordLogger(called *int, msg *string, fields map[string]any) loggerFunc {
	return func(m string, v ...any) {
		*called++
		*msg = m
		for i := 0; i+1 < len(v); i += 2 {
			fields[v[i].(string)] = v[i+1]
		}
	}
}

func TestLoggerMiddleware(t *testing.T) {
	user := models.User{ID: uuid.New(), Username: "buyer"}
	orderID := uuid.New()

	// Same shape as the real router: logger outside, mux and auth inside
	mux := http.NewServeMux()
	mux.Handle("POST /api/user/orders/{id}/cancel", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := userctx.New(r.Context(), user)
		id, err := uuid.Parse(r.PathValue("id"))
		require.NoError(t, err)
		userctx.SetOrder(ctx, id)

		w.WriteHeader(http.StatusConflict)
		_, err = w.Write([]byte(`{"error":"service_error"}`))
		require.NoError(t, err, "should write response")
	}))

	t.Run("order request", func(t *testing.T) {
		called, msg, fields := 0, "", map[string]any{}
		srv := httptest.NewServer(LoggerMiddleware(recordLogger(&called, &msg, fields))(mux))
		defer srv.Close()

		resp, err := http.Post(srv.URL+"/api/user/orders/"+orderID.String()+"/cancel", "application/json", strings.NewReader("{}"))
		require.NoError(t, err, "should make request to test server")
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err, "should read response body")
		defer resp.Body.Close() // nolint:errcheck

		require.Equal(t, http.StatusConflict, resp.StatusCode)
		require.Equal(t, 1, called, "logger should be called once")
		require.Equal(t, "got HTTP request", msg)
		require.Equal(t, "POST", fields["method"])
		require.Equal(t, "/api/user/orders/"+orderID.String()+"/cancel", fields["uri"])
		require.Equal(t, "POST /api/user/orders/{id}/cancel", fields["route"])
		require.Equal(t, http.StatusConflict, fields["status"])
		require.Equal(t, len(body), fields["size"])
		require.NotEmpty(t, fields["duration"])
		require.Equal(t, user.ID, fields["user_id"])
		require.Equal(t, orderID, fields["order_id"])
	})

	t.Run("unmatched anonymous request", func(t *testing.T) {
		called, msg, fields := 0, "", map[string]any{}
		srv := httptest.NewServer(LoggerMiddleware(recordLogger(&called, &msg, fields))(mux))
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/api/unknown")
		require.NoError(t, err)
		defer resp.Body.Close() // nolint:errcheck

		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		require.Equal(t, 1, called)
		require.Equal(t, "unmatched", fields["route"])
		require.Equal(t, http.StatusNotFound, fields["status"])
		require.NotContains(t, fields, "user_id")
		require.NotContains(t, fields, "order_id")
	})
}
