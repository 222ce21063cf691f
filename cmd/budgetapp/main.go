// Command budgetapp serves the budgeting web front-end.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"budgetapp/internal/amqp"
	"budgetapp/internal/api"
	"budgetapp/internal/cache"
	"budgetapp/internal/cli"
	"budgetapp/internal/config"
	apphttp "budgetapp/internal/http"
	"budgetapp/internal/imports"
	applog "budgetapp/internal/log"
	"budgetapp/internal/settings"
	"budgetapp/internal/sheets"
	gsheet "budgetapp/internal/sheets/google"
	"budgetapp/internal/state"
	"budgetapp/internal/storage"
	"budgetapp/internal/worker"
)

const (
	cacheCleanupInterval = 5 * time.Minute
	shutdownTimeout      = 30 * time.Second
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)
	cli.MustValidate(logger, cfg.Validate)

	logger.Info("Starting budgetapp", "port", cfg.Port, "backend", cfg.BackendURL)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	manager := cache.NewManager(logger)
	manager.StartCleanup(cacheCleanupInterval)
	defer manager.Stop()

	client, err := api.New(cfg.BackendURL, cfg.BackendTimeout, logger)
	if err != nil {
		logger.Error("Failed to initialize backend client", applog.FieldError, err)
		os.Exit(1)
	}

	store := state.New(client, state.Config{
		Size:        cfg.SessionCacheSize,
		TTL:         cfg.SessionCacheTTL,
		Concurrency: cfg.BucketFetchConcurrency,
	}, manager, logger)

	exporter, closeExporter := initExporter(ctx, cfg, repo, logger)
	defer closeExporter()

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Backend:            client,
		State:              store,
		Settings:           settings.NewService(repo, logger),
		Imports:            imports.NewService(repo, logger),
		Exporter:           exporter,
		History:            repo,
		DB:                 repo,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
	}()

	logger.Info("Server listening", "addr", srv.Addr, "export_enabled", srv.ExportEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server failed", applog.FieldError, err)
		cancel()
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

// initExporter picks the export path. With a broker configured, exports
// are queued for cmd/export-worker; otherwise, with a spreadsheet
// configured, they are written in-process. Neither leaves export off.
func initExporter(ctx context.Context, cfg *config.Config, repo *storage.SQLiteRepository, logger *applog.Logger) (sheets.TransactionExporter, func()) {
	switch {
	case cfg.AMQPEnabled():
		c, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		logger.Info("Exports go through the message queue", "queue", cfg.AMQPQueue)
		return c, func() { _ = c.Close() }

	case cfg.SheetsEnabled():
		sc, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
			OAuthClientFile:    cfg.GoogleOAuthClientFile,
			OAuthTokenFile:     cfg.GoogleOAuthTokenFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		logger.Info("Exports go straight to Google Sheets", "spreadsheet_id", cfg.GoogleSpreadsheetID)
		return worker.NewExportWorker(sc, repo, logger), func() {}
	}

	logger.Info("Export disabled")
	return nil, func() {}
}
