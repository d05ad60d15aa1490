// Package ports declares the persistence boundary the ledger engine consumes.
// Any durable keyed store can implement it; the repo ships an in-memory and a
// SQLite adapter.
package ports

import (
	"context"
	"time"

	"ledgerbook/internal/core"
)

type (
	TransactionRepository interface {
		// InsertTransaction assigns a fresh id and returns the stored record.
		InsertTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, tx core.Transaction) error
		DeleteTransaction(ctx context.Context, id int64) error
		GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
		// TransactionsBetween is inclusive on both bounds; order is unspecified.
		TransactionsBetween(ctx context.Context, start, end time.Time) ([]core.Transaction, error)
		TransactionsBySubType(ctx context.Context, subTypes ...core.SubType) ([]core.Transaction, error)
		AllTransactions(ctx context.Context) ([]core.Transaction, error)
	}

	CategoryRepository interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
		GetCategory(ctx context.Context, id int64) (core.Category, error)
		InsertCategory(ctx context.Context, c core.Category) (core.Category, error)
		UpdateCategory(ctx context.Context, c core.Category) error
		// DeleteCategory removes the category and applies the compacted
		// orders of its siblings in the same batch.
		DeleteCategory(ctx context.Context, id int64, orders map[int64]int) error
		// ApplyCategoryOrder rewrites several orders atomically.
		ApplyCategoryOrder(ctx context.Context, orders map[int64]int) error
		AppendBudgetChange(ctx context.Context, change core.BudgetChange) error
		BudgetHistory(ctx context.Context) ([]core.BudgetChange, error)
	}

	SettingsRepository interface {
		GetSetting(ctx context.Context, key string) (string, bool, error)
		PutSetting(ctx context.Context, key, value string) error
	}

	// Snapshot is the full ledger content moved by backup and restore.
	Snapshot struct {
		Transactions  []core.Transaction
		Categories    []core.Category
		BudgetHistory []core.BudgetChange
	}

	Store interface {
		TransactionRepository
		CategoryRepository
		SettingsRepository
		// ReplaceAll clears transactions, categories and budget history and
		// loads the snapshot, keeping its ids. Settings survive.
		ReplaceAll(ctx context.Context, snap Snapshot) error
		Close() error
	}
)
