// Package memory provides an in-memory ports.Store used for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ledgerbook/internal/core"
	"ledgerbook/internal/ports"
)

var _ ports.Store = (*Store)(nil)

// Store keeps every record in maps guarded by one RWMutex, so each method is
// atomic with respect to the others.
type Store struct {
	mu        sync.RWMutex
	txs       map[int64]core.Transaction
	cats      map[int64]core.Category
	budgets   []core.BudgetChange
	settings  map[string]string
	nextTxID  int64
	nextCatID int64
}

// New constructs an empty store.
func New() *Store {
	return &Store{
		txs:       make(map[int64]core.Transaction),
		cats:      make(map[int64]core.Category),
		settings:  make(map[string]string),
		nextTxID:  1,
		nextCatID: 1,
	}
}

func (s *Store) InsertTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx = tx.Clone()
	tx.ID = s.nextTxID
	s.nextTxID++
	s.txs[tx.ID] = tx
	return tx.Clone(), nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[tx.ID]; !ok {
		return &core.NotFoundError{Resource: "transaction", ID: tx.ID}
	}
	s.txs[tx.ID] = tx.Clone()
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[id]; !ok {
		return &core.NotFoundError{Resource: "transaction", ID: id}
	}
	delete(s.txs, id)
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, &core.NotFoundError{Resource: "transaction", ID: id}
	}
	return tx.Clone(), nil
}

func (s *Store) TransactionsBetween(_ context.Context, start, end time.Time) ([]core.Transaction, error) {
	r := core.DateRange{Start: start, End: end}
	return s.filter(func(tx core.Transaction) bool { return r.Contains(tx.Date) }), nil
}

func (s *Store) TransactionsBySubType(_ context.Context, subTypes ...core.SubType) ([]core.Transaction, error) {
	want := make(map[core.SubType]struct{}, len(subTypes))
	for _, st := range subTypes {
		want[st] = struct{}{}
	}
	return s.filter(func(tx core.Transaction) bool {
		_, ok := want[tx.SubType]
		return ok
	}), nil
}

func (s *Store) AllTransactions(_ context.Context) ([]core.Transaction, error) {
	return s.filter(func(core.Transaction) bool { return true }), nil
}

// filter returns matches sorted by id so callers get a stable snapshot.
func (s *Store) filter(keep func(core.Transaction) bool) []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Transaction, 0, len(s.txs))
	for _, tx := range s.txs {
		if keep(tx) {
			out = append(out, tx.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Category, 0, len(s.cats))
	for _, c := range s.cats {
		out = append(out, cloneCategory(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, id int64) (core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cats[id]
	if !ok {
		return core.Category{}, &core.NotFoundError{Resource: "category", ID: id}
	}
	return cloneCategory(c), nil
}

func (s *Store) InsertCategory(_ context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c = cloneCategory(c)
	c.ID = s.nextCatID
	s.nextCatID++
	s.cats[c.ID] = c
	return cloneCategory(c), nil
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cats[c.ID]; !ok {
		return &core.NotFoundError{Resource: "category", ID: c.ID}
	}
	s.cats[c.ID] = cloneCategory(c)
	return nil
}

func (s *Store) DeleteCategory(_ context.Context, id int64, orders map[int64]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cats[id]; !ok {
		return &core.NotFoundError{Resource: "category", ID: id}
	}
	if err := s.checkOrdersLocked(orders); err != nil {
		return err
	}
	delete(s.cats, id)
	s.applyOrdersLocked(orders)
	return nil
}

func (s *Store) ApplyCategoryOrder(_ context.Context, orders map[int64]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOrdersLocked(orders); err != nil {
		return err
	}
	s.applyOrdersLocked(orders)
	return nil
}

// checkOrdersLocked validates the whole batch before any write.
func (s *Store) checkOrdersLocked(orders map[int64]int) error {
	for id := range orders {
		if _, ok := s.cats[id]; !ok {
			return &core.NotFoundError{Resource: "category", ID: id}
		}
	}
	return nil
}

func (s *Store) applyOrdersLocked(orders map[int64]int) {
	for id, order := range orders {
		c := s.cats[id]
		c.Order = order
		s.cats[id] = c
	}
}

func (s *Store) AppendBudgetChange(_ context.Context, change core.BudgetChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets = append(s.budgets, cloneBudgetChange(change))
	return nil
}

func (s *Store) BudgetHistory(_ context.Context) ([]core.BudgetChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.BudgetChange, len(s.budgets))
	for i, b := range s.budgets {
		out[i] = cloneBudgetChange(b)
	}
	return out, nil
}

func (s *Store) GetSetting(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.settings[key]
	return v, ok, nil
}

func (s *Store) PutSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

func (s *Store) ReplaceAll(_ context.Context, snap ports.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = make(map[int64]core.Transaction, len(snap.Transactions))
	s.cats = make(map[int64]core.Category, len(snap.Categories))
	s.budgets = nil
	s.nextTxID, s.nextCatID = 1, 1
	for _, tx := range snap.Transactions {
		s.txs[tx.ID] = tx.Clone()
		if tx.ID >= s.nextTxID {
			s.nextTxID = tx.ID + 1
		}
	}
	for _, c := range snap.Categories {
		s.cats[c.ID] = cloneCategory(c)
		if c.ID >= s.nextCatID {
			s.nextCatID = c.ID + 1
		}
	}
	for _, b := range snap.BudgetHistory {
		s.budgets = append(s.budgets, cloneBudgetChange(b))
	}
	return nil
}

func (s *Store) Close() error { return nil }

func cloneCategory(c core.Category) core.Category {
	if c.Budget != nil {
		b := *c.Budget
		c.Budget = &b
	}
	return c
}

func cloneBudgetChange(b core.BudgetChange) core.BudgetChange {
	if b.Budget != nil {
		v := *b.Budget
		b.Budget = &v
	}
	return b
}
