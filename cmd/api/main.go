// cmd/api/main.go
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
	"time"

	app "chatpay-wallet/internal"
)

const shutdownGrace = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		// The application logger may not exist if configuration failed.
		slog.Error("chat wallet stopped", "error", err)
		os.Exit(1)
	}
}

// run serves the webhook and operator API until ctx is cancelled or the
// listener fails, then drains requests and closes the stores.
func run(ctx context.Context) error {
	application := app.NewApplication()
	if err := application.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	logger := application.Logger
	cfg := application.Config

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           application.HTTPHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      35 * time.Second, // above the router timeout, which covers a gateway call
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			"port", cfg.ServerPort,
			"db_driver", cfg.DB.Driver,
			"lock_backend", cfg.Lock.Backend,
			"gateway_mode", cfg.Gateway.Mode,
			"assistant_mode", cfg.Assistant.Mode,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var listenErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case listenErr = <-serveErr:
		logger.Error("HTTP server failed", "error", listenErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		return errors.Join(listenErr, fmt.Errorf("shutdown: %w", err))
	}
	if listenErr != nil {
		return fmt.Errorf("serve: %w", listenErr)
	}

	logger.Info("Application gracefully stopped.")
	return nil
}
