// Package ledger is the transaction store: validated writes over a
// ports.TransactionRepository plus change notification.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ledgerbook/internal/core"
	"ledgerbook/internal/ports"
)

// EventPublisher forwards change events to other processes.
type EventPublisher interface {
	PublishChange(ctx context.Context, ev core.ChangeEvent) error
}

// ChangeHook runs synchronously after every successful write.
type ChangeHook func(ctx context.Context, ev core.ChangeEvent)

type Service struct {
	store     ports.TransactionRepository
	publisher EventPublisher
	hooks     []ChangeHook
	now       func() time.Time
}

type Option func(*Service)

func WithPublisher(p EventPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithHook(h ChangeHook) Option {
	return func(s *Service) { s.hooks = append(s.hooks, h) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store ports.TransactionRepository, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers a hook after construction.
func (s *Service) OnChange(h ChangeHook) {
	s.hooks = append(s.hooks, h)
}

// Add validates tx and stores it under a fresh id.
func (s *Service) Add(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tx = normalize(tx)
	tx.ID = 0
	if err := s.validate(ctx, tx); err != nil {
		return core.Transaction{}, err
	}

	saved, err := s.store.InsertTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction added",
		"id", saved.ID,
		"type", saved.Type,
		"sub_type", saved.SubType,
		"amount_cents", saved.Amount.Cents)

	s.notify(ctx, core.ChangeCreated, saved)
	return saved, nil
}

// Update replaces the stored record with the same id.
func (s *Service) Update(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if _, err := s.store.GetTransaction(ctx, tx.ID); err != nil {
		return core.Transaction{}, err
	}
	tx = normalize(tx)
	if pid, ok := tx.ParentID(); ok && pid == tx.ID {
		return core.Transaction{}, &core.ValidationError{Field: "parentId", Message: "transaction cannot reference itself"}
	}
	if err := s.validate(ctx, tx); err != nil {
		return core.Transaction{}, err
	}

	if err := s.store.UpdateTransaction(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction updated", "id", tx.ID, "sub_type", tx.SubType)
	s.notify(ctx, core.ChangeUpdated, tx)
	return tx, nil
}

// Delete removes one record. Children of a deleted root are kept and
// become dangling.
func (s *Service) Delete(ctx context.Context, id int64) error {
	existing, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction deleted", "id", id, "sub_type", existing.SubType)
	s.notify(ctx, core.ChangeDeleted, existing)
	return nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

// QueryByDateRange is inclusive on both bounds. Result order is unspecified.
func (s *Service) QueryByDateRange(ctx context.Context, start, end time.Time) ([]core.Transaction, error) {
	if end.Before(start) {
		return []core.Transaction{}, nil
	}
	txs, err := s.store.TransactionsBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by date range: %w", err)
	}
	return txs, nil
}

func (s *Service) QueryBySubType(ctx context.Context, subTypes ...core.SubType) ([]core.Transaction, error) {
	for _, st := range subTypes {
		if !st.Valid() {
			return nil, &core.ValidationError{Field: "subType", Message: "unknown subtype " + string(st)}
		}
	}
	txs, err := s.store.TransactionsBySubType(ctx, subTypes...)
	if err != nil {
		return nil, fmt.Errorf("query by subtype: %w", err)
	}
	return txs, nil
}

func (s *Service) All(ctx context.Context) ([]core.Transaction, error) {
	txs, err := s.store.AllTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func normalize(tx core.Transaction) core.Transaction {
	tx = tx.Clone()
	if tx.SubType == "" {
		tx.SubType = core.SubTypeNone
	}
	return tx
}

// validate runs record checks, then confirms the parent exists and belongs
// to the right family.
func (s *Service) validate(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	pid, ok := tx.ParentID()
	if !ok {
		return nil
	}

	parent, err := s.store.GetTransaction(ctx, pid)
	if errors.Is(err, core.ErrNotFound) {
		return &core.ValidationError{Field: "parentId", Message: fmt.Sprintf("references unknown transaction %d", pid)}
	}
	if err != nil {
		return fmt.Errorf("load parent: %w", err)
	}

	var want core.SubType
	switch tx.SubType {
	case core.SubTypeRepaid:
		want = core.SubTypeLoan
	case core.SubTypeAssetCost, core.SubTypeAssetIncome:
		want = core.SubTypeAsset
	default:
		return &core.ValidationError{Field: "parentId", Message: "subtype " + string(tx.SubType) + " cannot have a parent"}
	}
	if parent.SubType != want {
		return &core.ValidationError{Field: "parentId", Message: fmt.Sprintf("transaction %d is not a %s", pid, want)}
	}
	return nil
}

// notify runs hooks and publishes. Publish failures never fail the write.
func (s *Service) notify(ctx context.Context, op core.ChangeOp, tx core.Transaction) {
	ev := core.ChangeEvent{Op: op, TransactionID: tx.ID, SubType: tx.SubType, OccurredAt: s.now()}
	for _, h := range s.hooks {
		h(ctx, ev)
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishChange(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger change",
			"id", tx.ID,
			"op", op,
			"error", err)
	}
}
