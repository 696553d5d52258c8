// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"go.uber.org/zap"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/config"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/handler"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/logger"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log.Logger)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Info("starting API server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.GopsEnabled {
		if err := agent.Listen(agent.Options{ShutdownCleanup: false}); err != nil {
			log.Warn("failed to start gops agent", zap.Error(err))
		} else {
			defer agent.Close()
		}
	}

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "leadify-qualifier", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	app, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()

	server := &http.Server{
		Addr: ":" + cfg.ServerPort,
		Handler: handler.NewRouter(handler.RouterConfig{
			Service:               app.chat,
			Checks:                app.checks,
			Logger:                log,
			JWTSecret:             cfg.JWTSecret,
			AllowedOrigins:        cfg.AllowedOrigins,
			RateLimitRequests:     cfg.RateLimitRequests,
			RateLimitWindow:       cfg.RateLimitWindow,
			UserRateLimitRequests: cfg.UserRateLimitRequests,
		}),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	// Leads already finalized still reach their sinks.
	app.chat.Wait()

	log.Info("server stopped")
	return nil
}
