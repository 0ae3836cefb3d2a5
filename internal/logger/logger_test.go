package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newBuffered(t *testing.T, env string, level string) (Logger, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	l, err := newLogger(&buf, env, level)
	require.NoError(t, err)
	return l, &buf
}

func TestLogger_New(t *testing.T) {
	t.Run("known environments", func(t *testing.T) {
		for _, env := range []string{EnvDevelopment, EnvProduction} {
			l, err := New(env, LevelInfo)
			require.NoError(t, err, env)
			require.NotNil(t, l)
		}
	})

	t.Run("unknown environment", func(t *testing.T) {
		_, err := New("staging", LevelInfo)
		require.ErrorContains(t, err, "staging")
	})

	t.Run("unknown level", func(t *testing.T) {
		_, err := New(EnvProduction, "verbose")
		require.ErrorContains(t, err, "verbose")
	})
}

func TestLogger_parseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"Warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := parseLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "trace"} {
		_, err := parseLevel(in)
		require.Error(t, err, "level %q must be rejected", in)
	}
}

func TestLogger_JSON(t *testing.T) {
	l, buf := newBuffered(t, EnvProduction, LevelInfo)
	orderID := uuid.New()

	l.WithGroup("sweeper").Info("Order expired",
		"order_id", orderID,
		"amount", decimal.RequireFromString("15.50"),
	)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "JSON log should be valid: %s", buf.String())
	require.Equal(t, "Order expired", entry["msg"])
	require.Equal(t, "INFO", entry["level"])

	group, ok := entry["sweeper"].(map[string]any)
	require.True(t, ok, "attributes go under the group")
	require.Equal(t, orderID.String(), group["order_id"])
	require.Equal(t, "15.5", group["amount"], "money is logged as decimal string, never float")

	source, ok := entry["source"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "logger_test.go", source["file"], "source points to the caller without directory")
}

func TestLogger_Text(t *testing.T) {
	l, buf := newBuffered(t, EnvDevelopment, LevelInfo)

	l.With("source_kind", "nats").Warn("Signal ignored", "ref", "12345")

	out := buf.String()
	require.Contains(t, out, "level=WARN")
	require.Contains(t, out, `msg="Signal ignored"`)
	require.Contains(t, out, "source_kind=nats")
	require.Contains(t, out, "ref=12345")
	require.Contains(t, out, "logger_test.go:")
}

func TestLogger_Levels(t *testing.T) {
	log := func(l Logger) {
		l.Debug("poll")
		l.Info("settled")
		l.Warn("retry after")
		l.Error("settle failed")
	}

	tests := []struct {
		level string
		lines int
	}{
		{LevelDebug, 4},
		{LevelInfo, 3},
		{LevelWarn, 2},
		{LevelError, 1},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l, buf := newBuffered(t, EnvDevelopment, tt.level)

			log(l)

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			require.Len(t, lines, tt.lines)
		})
	}
}

func TestLogger_NewNoOpLogger(t *testing.T) {
	l := NewNoOpLogger()

	require.NotPanics(t, func() {
		l.With("order_id", uuid.New()).WithGroup("ledger").Error("commit failed")
	})
}
