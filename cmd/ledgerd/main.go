package main

import (
	"context"
	"errors"
	"net/http"

	"ledgerbook/internal/amqp"
	"ledgerbook/internal/cli"
	"ledgerbook/internal/config"
	apphttp "ledgerbook/internal/http"
	"ledgerbook/internal/ledger"
	applog "ledgerbook/internal/log"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadConfig((*config.Config).Validate)
	if err != nil {
		cli.Fatal(cli.SetupLogger(nil, applog.ComponentApp), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

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

	// Change events are optional; without a broker the ledger still works.
	var opts []ledger.Option
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			cli.Fatal(logger, "Failed to initialize AMQP client", err)
		}
		defer amqpClient.Close()
		opts = append(opts, ledger.WithPublisher(amqpClient))
		logger.Info("AMQP publisher enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	engine := cli.NewEngine(backendRes.Store, cfg, opts...)
	if err := engine.Seed(ctx); err != nil {
		cli.Fatal(logger, "Failed to seed categories", err)
	}

	if cfg.CacheCleanupInterval > 0 {
		caches := engine.Views.Caches()
		caches.StartCleanup(ctx, cfg.CacheCleanupInterval)
		defer caches.Stop()
	}

	var ready func(context.Context) error
	if p, ok := backendRes.Store.(interface{ Ping(context.Context) error }); ok {
		ready = p.Ping
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Registry:       engine.Registry,
		Ledger:         engine.Ledger,
		Views:          engine.Views,
		Backup:         engine.Backup,
		Logger:         logger,
		Ready:          ready,
		Location:       cfg.Location(),
		WriteRateLimit: cfg.WriteRateLimit,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting ledgerd", applog.FieldOperation, applog.OpStartup, "port", cfg.Port, "backend", cfg.DataBackend, "timezone", cfg.Timezone)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", applog.FieldError, err)
	}
	logger.Info("Server stopped gracefully", applog.FieldOperation, applog.OpShutdown)
}
