// Package cli provides common initialization shared by cmd/ledgerd,
// cmd/ledger-worker and cmd/ledgerctl.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ledgerbook/internal/backend"
	"ledgerbook/internal/backup"
	"ledgerbook/internal/category"
	"ledgerbook/internal/config"
	"ledgerbook/internal/ledger"
	applog "ledgerbook/internal/log"
	"ledgerbook/internal/ports"
	"ledgerbook/internal/services"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	return SetupLoggerTo(cfg, component, os.Stdout)
}

// SetupLoggerTo is SetupLogger writing to out. ledgerctl logs to stderr so
// stdout stays clean for backups and exports.
func SetupLoggerTo(cfg *config.Config, component string, out io.Writer) *applog.Logger {
	lc := applog.DefaultConfig()
	lc.Component = component
	lc.Output = out
	if cfg != nil {
		lc.Level = applog.ParseLevel(cfg.LogLevel)
		lc.Format = cfg.LogFormat
	}
	logger := applog.New(lc)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig loads the environment configuration and runs validate on it.
func LoadConfig(validate func(*config.Config) error) (*config.Config, error) {
	cfg := config.Load()
	if validate != nil {
		if err := validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// OpenStore creates the configured store.
func OpenStore(ctx context.Context, cfg *config.Config) (*backend.BackendResult, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	return backend.NewFactory(slog.Default()).CreateBackend(ctx, bc)
}

// Engine bundles the services that make up the ledger.
type Engine struct {
	Store    ports.Store
	Registry *category.Registry
	Ledger   *ledger.Service
	Views    *services.Views
	Backup   *backup.Service
}

// NewEngine wires the services over store. Every ledger write and every
// restore invalidates the views; extra options (publisher, hooks) are
// passed to the ledger.
func NewEngine(store ports.Store, cfg *config.Config, opts ...ledger.Option) *Engine {
	vc := services.DefaultViewsConfig()
	if cfg != nil {
		vc.SnapshotTTL = cfg.SnapshotTTL
		vc.SuggestionTTL = cfg.SuggestionTTL
		vc.CacheSize = cfg.CacheSize
	}

	reg := category.NewRegistry(store)
	led := ledger.NewService(store, opts...)
	views := services.NewViews(led, reg, store, vc)
	led.OnChange(views.OnLedgerChange)

	bk := backup.NewService(store, nil)
	bk.OnRestore(func(context.Context) { views.Invalidate() })

	return &Engine{Store: store, Registry: reg, Ledger: led, Views: views, Backup: bk}
}

// Seed installs missing built-in categories.
func (e *Engine) Seed(ctx context.Context) error {
	n, err := e.Registry.SeedDefaults(ctx)
	if err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Seeded built-in categories", "count", n)
	}
	return nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
	}()
	return ctx, stop
}

// Fatal logs err and exits.
func Fatal(logger *applog.Logger, msg string, err error) {
	logger.Error(msg, applog.FieldError, err)
	os.Exit(1)
}
