// Package backup writes the whole ledger as one JSON document and restores
// it atomically.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"ledgerbook/internal/core"
	applog "ledgerbook/internal/log"
	"ledgerbook/internal/ports"
)

// FormatVersion is written into every document.
const FormatVersion = 1

// Document is the backup file layout. Dates are ISO-8601 strings.
type Document struct {
	Version       int                 `json:"version"`
	ExportedAt    time.Time           `json:"exportedAt"`
	Transactions  []core.Transaction  `json:"transactions"`
	Categories    []core.Category     `json:"categories"`
	BudgetHistory []core.BudgetChange `json:"budgetHistory,omitempty"`
}

// Result summarises a restore.
type Result struct {
	Transactions  int `json:"transactions"`
	Categories    int `json:"categories"`
	BudgetChanges int `json:"budgetChanges"`
}

type Service struct {
	store     ports.Store
	now       func() time.Time
	onRestore []func(context.Context)
}

func NewService(store ports.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now}
}

// OnRestore registers fn to run after a successful restore.
func (s *Service) OnRestore(fn func(context.Context)) {
	s.onRestore = append(s.onRestore, fn)
}

func (s *Service) Snapshot(ctx context.Context) (Document, error) {
	txs, err := s.store.AllTransactions(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("read transactions: %w", err)
	}
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("read categories: %w", err)
	}
	hist, err := s.store.BudgetHistory(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("read budget history: %w", err)
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	if cats == nil {
		cats = []core.Category{}
	}
	return Document{
		Version:       FormatVersion,
		ExportedAt:    s.now().UTC(),
		Transactions:  txs,
		Categories:    cats,
		BudgetHistory: hist,
	}, nil
}

// Write encodes a snapshot to w.
func (s *Service) Write(ctx context.Context, w io.Writer) error {
	doc, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	slog.InfoContext(ctx, "Backup written",
		applog.FieldComponent, applog.ComponentBackup,
		applog.FieldOperation, applog.OpExport,
		"transactions", len(doc.Transactions),
		"categories", len(doc.Categories))
	return nil
}

// Restore validates the document read from r, then replaces the ledger
// with it in one batch. Nothing is cleared when validation fails.
func (s *Service) Restore(ctx context.Context, r io.Reader) (Result, error) {
	doc, err := Decode(r)
	if err != nil {
		return Result{}, err
	}

	cats, renumbered := denseCategoryOrders(doc.Categories)
	if renumbered > 0 {
		slog.WarnContext(ctx, "Category orders renumbered on restore",
			applog.FieldComponent, applog.ComponentBackup,
			"count", renumbered)
	}
	snap := ports.Snapshot{
		Transactions:  doc.Transactions,
		Categories:    cats,
		BudgetHistory: doc.BudgetHistory,
	}
	if err := s.store.ReplaceAll(ctx, snap); err != nil {
		return Result{}, fmt.Errorf("replace ledger: %w", err)
	}
	for _, fn := range s.onRestore {
		fn(ctx)
	}

	res := Result{
		Transactions:  len(doc.Transactions),
		Categories:    len(doc.Categories),
		BudgetChanges: len(doc.BudgetHistory),
	}
	slog.InfoContext(ctx, "Backup restored",
		applog.FieldComponent, applog.ComponentBackup,
		applog.FieldOperation, applog.OpRestore,
		"transactions", res.Transactions,
		"categories", res.Categories,
		"budget_changes", res.BudgetChanges)
	return res, nil
}

// Decode parses and validates a backup document. categories must be a
// non-empty array and transactions an array.
func Decode(r io.Reader) (Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Document{}, fmt.Errorf("read backup: %w", err)
	}

	var shape map[string]json.RawMessage
	if err := json.Unmarshal(raw, &shape); err != nil {
		return Document{}, &core.ValidationError{Field: "backup", Message: "not a JSON object"}
	}
	if !isArray(shape["categories"]) {
		return Document{}, &core.ValidationError{Field: "categories", Message: "must be an array"}
	}
	if !isArray(shape["transactions"]) {
		return Document{}, &core.ValidationError{Field: "transactions", Message: "must be an array"}
	}
	if hist, ok := shape["budgetHistory"]; ok && !isArray(hist) && !isNull(hist) {
		return Document{}, &core.ValidationError{Field: "budgetHistory", Message: "must be an array"}
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			return Document{}, ve
		}
		return Document{}, &core.ValidationError{Field: "backup", Message: err.Error()}
	}
	if len(doc.Categories) == 0 {
		return Document{}, &core.ValidationError{Field: "categories", Message: "must not be empty"}
	}
	if err := validate(doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func validate(doc Document) error {
	catIDs := make(map[int64]bool, len(doc.Categories))
	for i, c := range doc.Categories {
		if c.ID <= 0 || catIDs[c.ID] {
			return &core.ValidationError{Field: fmt.Sprintf("categories[%d].id", i), Message: "must be a unique positive id"}
		}
		catIDs[c.ID] = true
		if err := c.Validate(); err != nil {
			return fmt.Errorf("categories[%d]: %w", i, err)
		}
	}
	txIDs := make(map[int64]bool, len(doc.Transactions))
	for i, tx := range doc.Transactions {
		if tx.ID <= 0 || txIDs[tx.ID] {
			return &core.ValidationError{Field: fmt.Sprintf("transactions[%d].id", i), Message: "must be a unique positive id"}
		}
		txIDs[tx.ID] = true
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("transactions[%d]: %w", i, err)
		}
	}
	return nil
}

// denseCategoryOrders returns a copy of cats whose orders run 1..N within
// each type, keeping the document's relative order (ties broken by id). It
// also reports how many categories changed order.
func denseCategoryOrders(cats []core.Category) ([]core.Category, int) {
	out := make([]core.Category, len(cats))
	copy(out, cats)

	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ca, cb := out[idx[a]], out[idx[b]]
		if ca.Type != cb.Type {
			return ca.Type < cb.Type
		}
		if ca.Order != cb.Order {
			return ca.Order < cb.Order
		}
		return ca.ID < cb.ID
	})

	changed := 0
	next := make(map[core.TxType]int)
	for _, i := range idx {
		next[out[i].Type]++
		if out[i].Order != next[out[i].Type] {
			out[i].Order = next[out[i].Type]
			changed++
		}
	}
	return out, changed
}

func isArray(raw json.RawMessage) bool {
	b := bytes.TrimSpace(raw)
	return len(b) > 0 && b[0] == '['
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
