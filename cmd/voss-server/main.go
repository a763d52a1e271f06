// Package main provides the VOSS chat HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/voss-go/internal/app"
	"github.com/raphaelgruber/voss-go/internal/config"
	"github.com/raphaelgruber/voss-go/internal/server"
)

const sessionSweepInterval = time.Hour

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg := config.Load()

	logger, closeLog := config.SetupLogger("voss-server", cfg.LogFile, cfg.LogLevel)
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	if err := run(cfg, logger, *wipeDB || os.Getenv("VOSS_WIPE_DB") == "true"); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger, wipe bool) error {
	logger.Info("starting voss-server", "port", cfg.ServerPort,
		"llm_provider", cfg.LLMProvider, "llm_model", cfg.LLMModel,
		"embed_provider", cfg.EmbedProvider, "embed_model", cfg.EmbedModel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(ctx, cfg, logger, app.Options{Embeddings: true, Completion: true})
	cancel()
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Error("failed to close app", "error", err)
		}
	}()

	if wipe {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := a.WipeData(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("wipe database: %w", err)
		}
		logger.Warn("database wiped")
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweepSessions(sweepCtx, a, logger)

	srv := server.New(a.Conversation, a.Identity, a.Metrics, server.Config{
		CookieSecure:  cfg.CookieSecure,
		AllowedOrigin: cfg.AllowedOrigin,
	}, logger)

	httpServer := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 2*cfg.LLMTimeout + 2*cfg.EmbedTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("API available", "url", fmt.Sprintf("http://localhost:%s/", cfg.ServerPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-quit:
	}

	logger.Info("shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// sweepSessions deletes expired sessions at startup and then hourly.
func sweepSessions(ctx context.Context, a *app.App, logger *slog.Logger) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		n, err := a.DB.DeleteExpiredSessions(ctx)
		if err != nil {
			logger.Warn("session sweep failed", "error", err)
		} else if n > 0 {
			logger.Info("expired sessions removed", "count", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
