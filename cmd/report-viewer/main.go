package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"reportviewer/internal/amqp"
	"reportviewer/internal/cache"
	"reportviewer/internal/cli"
	apphttp "reportviewer/internal/http"
	"reportviewer/internal/legal"
	applog "reportviewer/internal/log"
	"reportviewer/internal/storage"
	"reportviewer/internal/viewer"
	"reportviewer/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig()

	client := cli.NewFetchClient(cfg)

	rendered := cache.NewLRUCache[string](cfg.RenderCacheSize, cfg.RenderCacheTTL)
	caches := cache.NewManager(logger.Logger)
	caches.Register(rendered)
	caches.StartCleanup(cfg.RenderCacheTTL)

	ctrl := viewer.NewController(viewer.Options{
		Builder:   cli.NewIndexBuilder(cfg, client, logger.Logger),
		Fetcher:   client,
		Submitter: legal.NewSubmitter(client, cfg.APIBaseURL, logger.Logger),
		Rendered:  rendered,
		Logger:    logger,
	})

	store, err := storage.NewLegalStore(context.Background(), cfg, logger.Logger)
	if err != nil {
		logger.Error("Failed to initialize legal store", applog.FieldError, err, "store", cfg.LegalStore)
		os.Exit(1)
	}

	var audit legal.AuditRecorder
	if cfg.SQLiteDBPath != "" {
		repo := cli.InitAuditRepository(logger, cfg.SQLiteDBPath)
		defer repo.Close()
		audit = repo
		logger.Info("Submission audit log enabled", "path", cfg.SQLiteDBPath)
	}

	var amqpClient *amqp.Client
	var notifier legal.Notifier
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.Logger)
		if err != nil {
			logger.Warn("AMQP unavailable, rescan notifications disabled", applog.FieldError, err)
		} else {
			defer amqpClient.Close()
			notifier = amqpClient
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Controller:     ctrl,
		LegalAPI:       legal.NewHandler(store, audit, notifier, logger.Logger),
		DataDir:        cfg.DataDir,
		Caches:         caches,
		TrustedProxies: cfg.TrustedProxies,
		Logger:         logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
	})

	// The first scan runs in the background; /readyz reports 503 until it commits.
	go func() {
		if err := ctrl.Reload(ctx); err != nil && !errors.Is(err, viewer.ErrStaleScan) {
			logger.Warn("Initial month index scan failed", applog.FieldError, err)
		}
	}()

	if amqpClient != nil {
		rescans := worker.NewRescanWorker(ctrl, cfg.RescanMinInterval, logger.Logger)
		go func() {
			if err := amqpClient.ConsumeRescan(ctx, rescans.HandleRescanMessage); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Rescan consumption stopped", applog.FieldError, err)
			}
		}()
		logger.Info("Rescan notifications enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	logger.Info("Starting report viewer",
		"port", cfg.Port,
		"data_dir", cfg.DataDir,
		"data_base_url", cfg.DataBaseURL,
		"legal_store", cfg.LegalStore)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
