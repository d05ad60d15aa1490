package cli

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerbook/internal/config"
	"ledgerbook/internal/core"
	"ledgerbook/internal/services"
	"ledgerbook/internal/storage/memory"
)

func TestEngineWiring(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(memory.New(), nil)
	require.NoError(t, e.Seed(ctx))

	cats, err := e.Views.ListCategories(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, cats)

	var food core.Category
	for _, c := range cats {
		if c.Type == core.Expense && c.SubType == core.SubTypeNone {
			food = c
			break
		}
	}
	require.NotZero(t, food.ID)

	before, err := e.Views.QueryTransactions(ctx, services.TxFilter{})
	require.NoError(t, err)
	_, err = e.Ledger.Add(ctx, core.Transaction{Type: core.Expense, Amount: core.Money{Cents: 500}, CategoryID: food.ID, Memo: "bread", Date: time.Now()})
	require.NoError(t, err)
	after, err := e.Views.QueryTransactions(ctx, services.TxFilter{})
	require.NoError(t, err)
	assert.Len(t, after, len(before)+1, "ledger writes invalidate views")

	var buf strings.Builder
	require.NoError(t, e.Backup.Write(ctx, &buf))
	_, err = e.Backup.Restore(ctx, strings.NewReader(`{"categories":[{"id":1,"name":"A","icon":"a","type":"expense","subType":"none"}],"transactions":[]}`))
	require.NoError(t, err)
	after, err = e.Views.QueryTransactions(ctx, services.TxFilter{})
	require.NoError(t, err)
	assert.Empty(t, after, "restore invalidates views")
}

func TestLoadConfigRunsValidation(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	_, err := LoadConfig(func(c *config.Config) error { return c.Validate() })
	assert.Error(t, err)

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "not-a-port", cfg.Port)
}

func TestOpenStoreMemory(t *testing.T) {
	res, err := OpenStore(context.Background(), &config.Config{DataBackend: "memory"})
	require.NoError(t, err)
	assert.NoError(t, res.Cleanup())
}
