package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Getenv, os.Getwd, os.Args[1:]); err != nil {
		slog.Error("numrent stopped with error", "error", err.Error())
		os.Exit(1)
	}
}

// Options are applied in order: defaults, '.env' file, environment, flags
func run(ctx context.Context, getenv func(string) string, getwd func() (string, error), args []string) error {
	c := NewConfig()

	if err := c.LoadDotEnv(getwd); err != nil {
		return fmt.Errorf("error while loading .env file: %w", err)
	}
	if err := c.LoadEnv(getenv); err != nil {
		return fmt.Errorf("error while loading env: %w", err)
	}
	if err := c.ParseFlags(args); err != nil {
		return fmt.Errorf("error while parsing flags: %w", err)
	}

	srv, err := NewServerApp(ctx, c)
	if err != nil {
		return fmt.Errorf("can't initialize app, sorry: %w", err)
	}

	if err := srv.Run(ctx); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}
