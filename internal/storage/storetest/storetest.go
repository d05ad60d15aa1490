// Package storetest holds the behaviour every ports.Store adapter must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerbook/internal/core"
	"ledgerbook/internal/ports"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) ports.Store

func day(d int) time.Time {
	return time.Date(2025, 3, d, 12, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

// Run executes the shared suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("TransactionRoundTrip", func(t *testing.T) { testTransactionRoundTrip(t, newStore(t)) })
	t.Run("TransactionNotFound", func(t *testing.T) { testTransactionNotFound(t, newStore(t)) })
	t.Run("DateRangeInclusive", func(t *testing.T) { testDateRangeInclusive(t, newStore(t)) })
	t.Run("BySubType", func(t *testing.T) { testBySubType(t, newStore(t)) })
	t.Run("CategoryOrderBatch", func(t *testing.T) { testCategoryOrderBatch(t, newStore(t)) })
	t.Run("DeleteCategoryCompacts", func(t *testing.T) { testDeleteCategory(t, newStore(t)) })
	t.Run("Settings", func(t *testing.T) { testSettings(t, newStore(t)) })
	t.Run("ReplaceAll", func(t *testing.T) { testReplaceAll(t, newStore(t)) })
}

func testTransactionRoundTrip(t *testing.T, s ports.Store) {
	ctx := context.Background()
	due := day(30)

	loan, err := s.InsertTransaction(ctx, core.Transaction{
		Type: core.Expense, SubType: core.SubTypeLoan, Amount: core.Money{Cents: 100000},
		CategoryID: 3, Memo: "to Alice", Date: day(1),
		Details: &core.LoanDetails{PersonName: "Alice", LoanDate: day(1), DueDate: &due},
	})
	require.NoError(t, err)
	require.NotZero(t, loan.ID)

	repay, err := s.InsertTransaction(ctx, core.Transaction{
		Type: core.Income, SubType: core.SubTypeRepaid, Amount: core.Money{Cents: 40000},
		CategoryID: 4, Date: day(5),
		Details: &core.LoanDetails{PersonName: "Alice", LoanDate: day(5), ParentID: ptr(loan.ID)},
	})
	require.NoError(t, err)
	assert.NotEqual(t, loan.ID, repay.ID)

	fuel, err := s.InsertTransaction(ctx, core.Transaction{
		Type: core.Expense, SubType: core.SubTypeFuel, Amount: core.Money{Cents: 5000},
		CategoryID: 5, Date: day(6),
		Details: &core.FuelDetails{OdometerReading: 12500.5, FuelQuantity: 30, FuelType: "petrol"},
	})
	require.NoError(t, err)

	got, err := s.GetTransaction(ctx, loan.ID)
	require.NoError(t, err)
	d, ok := got.Loan()
	require.True(t, ok)
	assert.Equal(t, "Alice", d.PersonName)
	require.NotNil(t, d.DueDate)
	assert.True(t, due.Equal(*d.DueDate))
	assert.True(t, got.IsRoot())
	assert.True(t, day(1).Equal(got.Date))

	got, err = s.GetTransaction(ctx, repay.ID)
	require.NoError(t, err)
	pid, ok := got.ParentID()
	require.True(t, ok)
	assert.Equal(t, loan.ID, pid)

	got, err = s.GetTransaction(ctx, fuel.ID)
	require.NoError(t, err)
	f, ok := got.Fuel()
	require.True(t, ok)
	assert.InDelta(t, 12500.5, f.OdometerReading, 1e-9)
	assert.Equal(t, "petrol", f.FuelType)

	got.Memo = "full tank"
	got.Amount = core.Money{Cents: 5200}
	require.NoError(t, s.UpdateTransaction(ctx, got))
	got, err = s.GetTransaction(ctx, fuel.ID)
	require.NoError(t, err)
	assert.Equal(t, "full tank", got.Memo)
	assert.Equal(t, int64(5200), got.Amount.Cents)

	require.NoError(t, s.DeleteTransaction(ctx, fuel.ID))
	all, err := s.AllTransactions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func testTransactionNotFound(t *testing.T, s ports.Store) {
	ctx := context.Background()

	_, err := s.GetTransaction(ctx, 42)
	assert.ErrorIs(t, err, core.ErrNotFound)

	err = s.UpdateTransaction(ctx, core.Transaction{ID: 42, Type: core.Expense, SubType: core.SubTypeNone, Amount: core.Money{Cents: 1}, CategoryID: 1, Date: day(1)})
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.ErrorIs(t, s.DeleteTransaction(ctx, 42), core.ErrNotFound)
}

func testDateRangeInclusive(t *testing.T, s ports.Store) {
	ctx := context.Background()
	for _, d := range []int{1, 10, 20} {
		_, err := s.InsertTransaction(ctx, core.Transaction{
			Type: core.Expense, SubType: core.SubTypeNone, Amount: core.Money{Cents: 100}, CategoryID: 1, Date: day(d),
		})
		require.NoError(t, err)
	}

	got, err := s.TransactionsBetween(ctx, day(1), day(10))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.TransactionsBetween(ctx, day(11), day(19))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testBySubType(t *testing.T, s ports.Store) {
	ctx := context.Background()
	_, err := s.InsertTransaction(ctx, core.Transaction{
		Type: core.Expense, SubType: core.SubTypeAsset, Amount: core.Money{Cents: 500000}, CategoryID: 2, Date: day(1),
		Details: &core.AssetDetails{AssetName: "Gold", TransactionDate: day(1), Quantity: 10, MeasurementUnit: "g", CurrentValue: core.Money{Cents: 550000}},
	})
	require.NoError(t, err)
	_, err = s.InsertTransaction(ctx, core.Transaction{
		Type: core.Expense, SubType: core.SubTypeNone, Amount: core.Money{Cents: 100}, CategoryID: 1, Date: day(1),
	})
	require.NoError(t, err)

	got, err := s.TransactionsBySubType(ctx, core.SubTypeAsset, core.SubTypeAssetCost)
	require.NoError(t, err)
	require.Len(t, got, 1)
	a, ok := got[0].Asset()
	require.True(t, ok)
	assert.Equal(t, "Gold", a.AssetName)
	assert.Equal(t, int64(550000), a.CurrentValue.Cents)
}

func insertCategories(t *testing.T, s ports.Store, n int) []core.Category {
	t.Helper()
	out := make([]core.Category, 0, n)
	for i := 1; i <= n; i++ {
		c, err := s.InsertCategory(context.Background(), core.Category{
			Name: "Cat", Icon: "icon", Type: core.Expense, SubType: core.SubTypeNone, Order: i, IsCustom: true, Version: 1,
		})
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

func ordersByID(t *testing.T, s ports.Store) map[int64]int {
	t.Helper()
	cats, err := s.ListCategories(context.Background())
	require.NoError(t, err)
	out := make(map[int64]int, len(cats))
	for _, c := range cats {
		out[c.ID] = c.Order
	}
	return out
}

func testCategoryOrderBatch(t *testing.T, s ports.Store) {
	ctx := context.Background()
	cats := insertCategories(t, s, 3)

	require.NoError(t, s.ApplyCategoryOrder(ctx, map[int64]int{cats[0].ID: 3, cats[2].ID: 1}))
	orders := ordersByID(t, s)
	assert.Equal(t, 3, orders[cats[0].ID])
	assert.Equal(t, 2, orders[cats[1].ID])
	assert.Equal(t, 1, orders[cats[2].ID])

	// An unknown id fails the whole batch.
	err := s.ApplyCategoryOrder(ctx, map[int64]int{cats[0].ID: 1, 999: 2})
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Equal(t, 3, ordersByID(t, s)[cats[0].ID])
}

func testDeleteCategory(t *testing.T, s ports.Store) {
	ctx := context.Background()
	cats := insertCategories(t, s, 3)

	require.NoError(t, s.DeleteCategory(ctx, cats[0].ID, map[int64]int{cats[1].ID: 1, cats[2].ID: 2}))
	orders := ordersByID(t, s)
	assert.Len(t, orders, 2)
	assert.Equal(t, 1, orders[cats[1].ID])
	assert.Equal(t, 2, orders[cats[2].ID])

	_, err := s.GetCategory(ctx, cats[0].ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.DeleteCategory(ctx, cats[0].ID, nil), core.ErrNotFound)
}

func testSettings(t *testing.T, s ports.Store) {
	ctx := context.Background()
	_, ok, err := s.GetSetting(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutSetting(ctx, "k", "1"))
	require.NoError(t, s.PutSetting(ctx, "k", "2"))
	v, ok, err := s.GetSetting(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)
}

func testReplaceAll(t *testing.T, s ports.Store) {
	ctx := context.Background()
	insertCategories(t, s, 2)
	_, err := s.InsertTransaction(ctx, core.Transaction{
		Type: core.Expense, SubType: core.SubTypeNone, Amount: core.Money{Cents: 100}, CategoryID: 1, Date: day(1),
	})
	require.NoError(t, err)
	require.NoError(t, s.PutSetting(ctx, "keep", "yes"))

	snap := ports.Snapshot{
		Categories: []core.Category{
			{ID: 7, Name: "Food", Icon: "food", Type: core.Expense, SubType: core.SubTypeNone, Order: 1, Budget: &core.Money{Cents: 30000}, Version: 1},
		},
		Transactions: []core.Transaction{
			{ID: 11, Type: core.Expense, SubType: core.SubTypeNone, Amount: core.Money{Cents: 1234}, CategoryID: 7, Memo: "lunch", Date: day(2)},
		},
		BudgetHistory: []core.BudgetChange{
			{CategoryID: 7, Budget: &core.Money{Cents: 30000}, EffectiveFrom: day(1)},
		},
	}
	require.NoError(t, s.ReplaceAll(ctx, snap))

	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, int64(7), cats[0].ID)
	require.NotNil(t, cats[0].Budget)
	assert.Equal(t, int64(30000), cats[0].Budget.Cents)

	txs, err := s.AllTransactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(11), txs[0].ID)

	hist, err := s.BudgetHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	next, err := s.InsertTransaction(ctx, core.Transaction{
		Type: core.Expense, SubType: core.SubTypeNone, Amount: core.Money{Cents: 1}, CategoryID: 7, Date: day(3),
	})
	require.NoError(t, err)
	assert.Greater(t, next.ID, int64(11))

	v, ok, err := s.GetSetting(ctx, "keep")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "yes", v)
}
