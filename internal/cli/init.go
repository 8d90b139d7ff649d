// Package cli provides common initialization shared by cmd/report-viewer and
// cmd/report-index.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"reportviewer/internal/config"
	"reportviewer/internal/fetch"
	"reportviewer/internal/index"
	"reportviewer/internal/listing"
	applog "reportviewer/internal/log"
	"reportviewer/internal/resolver"
	"reportviewer/internal/storage"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger initializes structured logging at level and sets it as the
// default logger.
func SetupLogger(level slog.Level) *applog.Logger {
	logger := applog.New(applog.Config{Level: level, Component: applog.ComponentApp})
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration, builds the logger at the
// configured level and validates. It exits the process on validation
// failure.
func LoadAndValidateConfig() (*config.Config, *applog.Logger) {
	cfg := config.Load()
	logger := SetupLogger(cfg.SlogLevel())
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg, logger
}

// NewFetchClient builds the HTTP client used for every read and the legal
// submission.
func NewFetchClient(cfg *config.Config) *fetch.Client {
	opts := fetch.DefaultOptions()
	opts.Timeout = cfg.FetchTimeout
	opts.RetryMax = cfg.FetchRetries
	return fetch.New(opts)
}

// NewIndexBuilder wires the listing reader and artifact resolver against the
// configured data root.
func NewIndexBuilder(cfg *config.Config, client *fetch.Client, logger *slog.Logger) *index.Builder {
	layout := resolver.NewLayout(cfg.DataBaseURL)
	res := resolver.New(client, layout, cfg.SummaryCandidates, logger)
	return index.NewBuilder(listing.NewReader(client), res, layout, cfg.ScanWorkers, logger)
}

// InitAuditRepository opens the submission audit log at dbPath.
// Returns the repository or exits the process on failure.
func InitAuditRepository(logger *applog.Logger, dbPath string) *storage.AuditRepository {
	repo, err := storage.NewAuditRepository(dbPath, logger.Logger)
	if err != nil {
		logger.Error("Failed to initialize audit repository", applog.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that is cancelled on SIGINT or SIGTERM, and a channel
// closed once cleanup has finished. cleanup receives a context bounded by
// timeout.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
