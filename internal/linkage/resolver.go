// Package linkage resolves the soft parent references between transactions.
//
// Resolution is two-pass: New indexes every record by id and by parent id,
// and lookups then read those indexes. A parent id that matches nothing is
// dangling; it is reported, never treated as an error.
package linkage

import (
	"context"
	"log/slog"
	"sort"

	"ledgerbook/internal/core"
)

type Resolver struct {
	byID     map[int64]core.Transaction
	children map[int64][]core.Transaction
	dangling []core.Transaction
}

// New indexes txs. The slice is not retained.
func New(txs []core.Transaction) *Resolver {
	r := &Resolver{
		byID:     make(map[int64]core.Transaction, len(txs)),
		children: make(map[int64][]core.Transaction),
	}
	for _, tx := range txs {
		r.byID[tx.ID] = tx
	}
	for _, tx := range txs {
		pid, ok := tx.ParentID()
		if !ok {
			continue
		}
		r.children[pid] = append(r.children[pid], tx)
		if _, found := r.byID[pid]; !found {
			r.dangling = append(r.dangling, tx)
		}
	}
	for pid := range r.children {
		SortByDate(r.children[pid])
	}
	SortByDate(r.dangling)
	return r
}

// Get returns the record with id.
func (r *Resolver) Get(id int64) (core.Transaction, bool) {
	tx, ok := r.byID[id]
	return tx, ok
}

// ResolveChildren returns the children of parentID by date ascending, id
// breaking ties. The returned slice is a copy.
func (r *Resolver) ResolveChildren(parentID int64) []core.Transaction {
	kids := r.children[parentID]
	out := make([]core.Transaction, len(kids))
	copy(out, kids)
	return out
}

// ResolveParent returns tx's parent. ok is false for roots and for dangling
// references; the latter are logged as a linkage warning.
func (r *Resolver) ResolveParent(ctx context.Context, tx core.Transaction) (core.Transaction, bool) {
	pid, ok := tx.ParentID()
	if !ok {
		return core.Transaction{}, false
	}
	parent, found := r.byID[pid]
	if !found {
		slog.WarnContext(ctx, "Dangling parent reference",
			"id", tx.ID,
			"parent_id", pid,
			"sub_type", tx.SubType)
		return core.Transaction{}, false
	}
	return parent, true
}

// Dangling lists children whose parent is missing, by date.
func (r *Resolver) Dangling() []core.Transaction {
	out := make([]core.Transaction, len(r.dangling))
	copy(out, r.dangling)
	return out
}

// SortByDate orders txs by date ascending with id as tiebreak.
func SortByDate(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.Before(txs[j].Date)
		}
		return txs[i].ID < txs[j].ID
	})
}
