// Package worker mirrors the ledger into a spreadsheet.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ledgerbook/internal/amqp"
	"ledgerbook/internal/core"
	"ledgerbook/internal/export"
	applog "ledgerbook/internal/log"
	"ledgerbook/internal/sheets"
)

// RowSource is the read side the worker exports from. Invalidate drops any
// cached snapshot, since writes happen in another process.
type RowSource interface {
	Invalidate()
	ExportRows(ctx context.Context, r *core.DateRange, loc *time.Location) ([]export.Row, error)
}

// SyncWorker rewrites the whole sheet from the ledger. A change message
// triggers a full rewrite, which keeps the sheet correct after updates
// and deletes without tracking row positions.
type SyncWorker struct {
	source RowSource
	sheet  sheets.RowWriter
	loc    *time.Location

	mu       sync.Mutex
	lastSync time.Time
	synced   int
}

func NewSyncWorker(source RowSource, sheet sheets.RowWriter, loc *time.Location) *SyncWorker {
	if loc == nil {
		loc = time.UTC
	}
	return &SyncWorker{source: source, sheet: sheet, loc: loc}
}

// HandleChange processes one change message from AMQP. Messages older
// than the last full sync are already reflected in the sheet.
func (w *SyncWorker) HandleChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	slog.InfoContext(ctx, "Processing change message",
		"message_id", msg.MessageID,
		"op", msg.Op,
		"transaction_id", msg.TransactionID)

	w.mu.Lock()
	stale := !w.lastSync.IsZero() && !msg.OccurredAt.IsZero() && msg.OccurredAt.Before(w.lastSync)
	w.mu.Unlock()
	if stale {
		slog.DebugContext(ctx, "Change already covered by last sync", "message_id", msg.MessageID)
		return nil
	}
	return w.SyncAll(ctx)
}

// SyncAll exports every transaction and replaces the sheet content.
func (w *SyncWorker) SyncAll(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	started := time.Now()
	w.source.Invalidate()
	rows, err := w.source.ExportRows(ctx, nil, w.loc)
	if err != nil {
		return fmt.Errorf("export rows: %w", err)
	}
	values := make([][]string, len(rows))
	for i, r := range rows {
		values[i] = r.Values()
	}
	if err := w.sheet.ReplaceRows(ctx, export.Header, values); err != nil {
		return fmt.Errorf("replace sheet rows: %w", err)
	}

	w.lastSync = started
	w.synced = len(rows)
	slog.InfoContext(ctx, "Sheet synced",
		applog.FieldOperation, applog.OpSync,
		"rows", len(rows),
		"duration", time.Since(started))
	return nil
}

// RunPeriodic resyncs on every tick until ctx is done. Failures are logged
// and retried on the next tick.
func (w *SyncWorker) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.SyncAll(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic sync failed", "error", err)
			}
		}
	}
}

// Status reports when the sheet was last rewritten and how many rows it holds.
func (w *SyncWorker) Status() (time.Time, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSync, w.synced
}
