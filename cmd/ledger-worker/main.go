package main

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"ledgerbook/internal/amqp"
	"ledgerbook/internal/cli"
	"ledgerbook/internal/config"
	applog "ledgerbook/internal/log"
	gsheet "ledgerbook/internal/sheets/google"
	"ledgerbook/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig((*config.Config).ValidateWorker)
	if err != nil {
		cli.Fatal(cli.SetupLogger(nil, applog.ComponentWorker), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)
	logger.Info("Starting ledger-worker", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	backendRes, err := cli.OpenStore(ctx, cfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize storage backend", err)
	}
	defer func() {
		if err := backendRes.Cleanup(); err != nil {
			logger.Error("Failed to close storage backend", applog.FieldError, err)
		}
	}()
	engine := cli.NewEngine(backendRes.Store, cfg)

	sheetsClient, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleCredentialsJSON,
		CredentialsFile: cfg.GoogleCredentialsFile,
	})
	if err != nil {
		cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(engine.Views, sheetsClient, cfg.Location())

	// Catch up on anything written while the worker was down.
	if err := syncWorker.SyncAll(ctx); err != nil {
		logger.Error("Startup sync failed", applog.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeChanges(gctx, syncWorker.HandleChange)
	})
	g.Go(func() error {
		return syncWorker.RunPeriodic(gctx, cfg.SyncInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", applog.FieldError, err)
	}
	last, count := syncWorker.Status()
	logger.Info("Worker shutdown complete", applog.FieldOperation, applog.OpShutdown, "last_sync", last, "rows", count)
}
