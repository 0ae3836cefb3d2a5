package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Constants for logging levels
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Environments the logger knows about
const (
	EnvDevelopment = "dev"
	EnvProduction  = "prod"
)

// Logger interface defines the logging contract
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

// New returns text logger for development and JSON logger for production
func New(env string, level string) (Logger, error) {
	switch env {
	case EnvDevelopment:
		return NewTextLogger(level)
	case EnvProduction:
		return NewJSONLogger(level)
	default:
		return nil, fmt.Errorf("unknown environment %q", env)
	}
}

// NewTextLogger creates a new text logger with the specified level
func NewTextLogger(level string) (Logger, error) {
	return newLogger(os.Stderr, EnvDevelopment, level)
}

// NewJSONLogger creates a new JSON logger with the specified level
func NewJSONLogger(level string) (Logger, error) {
	return newLogger(os.Stderr, EnvProduction, level)
}

// NewNoOpLogger creates a logger that discards all log messages
func NewNoOpLogger() Logger {
	logger := slog.New(slog.DiscardHandler)
	return &slogLogger{logger: logger}
}

func newLogger(w io.Writer, env string, level string) (Logger, error) {
	l, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level:       l,
		AddSource:   true,
		ReplaceAttr: replace,
	}

	if env == EnvProduction {
		return &slogLogger{logger: slog.New(slog.NewJSONHandler(w, opts))}, nil
	}
	return &slogLogger{logger: slog.New(slog.NewTextHandler(w, opts))}, nil
}
