package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerbook/internal/category"
	"ledgerbook/internal/core"
	"ledgerbook/internal/ledger"
	"ledgerbook/internal/storage/memory"
)

type fixture struct {
	store    *memory.Store
	ledger   *ledger.Service
	registry *category.Registry
	views    *Views
	clock    *fakeClock
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)}
	store := memory.New()
	reg := category.NewRegistry(store, category.WithClock(clock.Now))
	led := ledger.NewService(store, ledger.WithClock(clock.Now))
	cfg := DefaultViewsConfig()
	cfg.Clock = clock.Now
	views := NewViews(led, reg, store, cfg)
	led.OnChange(views.OnLedgerChange)
	return &fixture{store: store, ledger: led, registry: reg, views: views, clock: clock}
}

func (f *fixture) addCategory(t *testing.T, name string, typ core.TxType, st core.SubType) core.Category {
	t.Helper()
	c, err := f.registry.Add(context.Background(), core.Category{Name: name, Icon: name, Type: typ, SubType: st})
	require.NoError(t, err)
	return c
}

func (f *fixture) add(t *testing.T, tx core.Transaction) core.Transaction {
	t.Helper()
	saved, err := f.ledger.Add(context.Background(), tx)
	require.NoError(t, err)
	return saved
}

func june(d int) time.Time { return time.Date(2025, 6, d, 10, 0, 0, 0, time.UTC) }

func ptr[T any](v T) *T { return &v }

func TestViewsInvalidateOnWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	food := f.addCategory(t, "Food", core.Expense, core.SubTypeNone)

	f.add(t, core.Transaction{Type: core.Expense, Amount: core.Money{Cents: 100}, CategoryID: food.ID, Memo: "Coffee", Date: june(1)})
	got, err := f.views.QueryTransactions(ctx, TxFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	f.add(t, core.Transaction{Type: core.Expense, Amount: core.Money{Cents: 200}, CategoryID: food.ID, Memo: "Cake", Date: june(2)})
	got, err = f.views.QueryTransactions(ctx, TxFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Cake", got[0].Memo, "newest first")
}

func TestViewsQueryFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.addCategory(t, "Car", core.Expense, core.SubTypeFuel)

	f.add(t, core.Transaction{Type: core.Expense, SubType: core.SubTypeFuel, Amount: core.Money{Cents: 500}, CategoryID: cat.ID, Date: june(1),
		Details: &core.FuelDetails{OdometerReading: 1000, FuelQuantity: 5}})
	f.add(t, core.Transaction{Type: core.Expense, Amount: core.Money{Cents: 100}, CategoryID: cat.ID, Date: june(10)})

	got, err := f.views.QueryTransactions(ctx, TxFilter{From: june(5), To: june(30)})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = f.views.QueryTransactions(ctx, TxFilter{SubType: core.SubTypeFuel})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = f.views.QueryTransactions(ctx, TxFilter{SubType: "nope"})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestViewsLoans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	given := f.addCategory(t, "Lent", core.Expense, core.SubTypeLoan)
	back := f.addCategory(t, "Back", core.Income, core.SubTypeRepaid)

	root := f.add(t, core.Transaction{Type: core.Expense, SubType: core.SubTypeLoan, Amount: core.Money{Cents: 1000}, CategoryID: given.ID, Date: june(1),
		Details: &core.LoanDetails{PersonName: "Alice", DueDate: ptr(june(10))}})
	f.add(t, core.Transaction{Type: core.Income, SubType: core.SubTypeRepaid, Amount: core.Money{Cents: 400}, CategoryID: back.ID, Date: june(5),
		Details: &core.LoanDetails{PersonName: "Alice", ParentID: ptr(root.ID)}})

	groups, err := f.views.Loans(ctx, LoansGiven, nil)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, int64(600), groups[0].Status.RemainingAmount.Cents)
	assert.True(t, groups[0].Status.IsOverdue)

	groups, err = f.views.Loans(ctx, LoansTaken, nil)
	require.NoError(t, err)
	assert.Empty(t, groups)

	_, err = f.views.Loans(ctx, "sideways", nil)
	assert.ErrorIs(t, err, core.ErrValidation)

	people, err := f.views.LoanPeople(ctx)
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, int64(600), people[0].Remaining.Cents)
}

func TestViewsAssetGrouping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.addCategory(t, "Metals", core.Expense, core.SubTypeAsset)

	for _, name := range []string{"Gold", "Silver"} {
		f.add(t, core.Transaction{Type: core.Expense, SubType: core.SubTypeAsset, Amount: core.Money{Cents: 1000}, CategoryID: inv.ID, Date: june(1),
			Details: &core.AssetDetails{AssetName: name, Quantity: 1}})
	}

	rows, err := f.views.AssetSummary(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	require.NoError(t, f.views.SetAssetGrouping(ctx, inv.ID, true))
	rows, err = f.views.AssetSummary(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2000), rows[0].Value.Cents)

	require.NoError(t, f.views.SetAssetGrouping(ctx, inv.ID, false))
	rows, err = f.views.AssetSummary(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	assert.ErrorIs(t, f.views.SetAssetGrouping(ctx, 999, true), core.ErrNotFound)
}

func TestViewsBudgets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	food := f.addCategory(t, "Food", core.Expense, core.SubTypeNone)
	_, err := f.registry.SetBudget(ctx, food.ID, &core.Money{Cents: 10000})
	require.NoError(t, err)

	f.add(t, core.Transaction{Type: core.Expense, Amount: core.Money{Cents: 5000}, CategoryID: food.ID, Date: june(3)})
	f.add(t, core.Transaction{Type: core.Expense, Amount: core.Money{Cents: 9000}, CategoryID: food.ID, Date: time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC)})

	overview, err := f.views.BudgetOverview(ctx, june(15))
	require.NoError(t, err)
	require.Len(t, overview, 1)
	assert.InDelta(t, 50, overview[0].PercentUsed, 1e-9)
	assert.Equal(t, core.Threshold50, overview[0].Threshold)

	st, err := f.views.BudgetStatus(ctx, food.ID, june(15))
	require.NoError(t, err)
	assert.Equal(t, int64(5000), st.Spend.Cents)

	_, err = f.views.BudgetStatus(ctx, 999, june(15))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestViewsMemoSuggestions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	food := f.addCategory(t, "Food", core.Expense, core.SubTypeNone)

	for i, memo := range []string{"Coffee", "coffee", "Cookies", "Coffee beans", ""} {
		f.add(t, core.Transaction{Type: core.Expense, Amount: core.Money{Cents: 100}, CategoryID: food.ID, Memo: memo, Date: june(i + 1)})
	}

	got, err := f.views.MemoSuggestions(ctx, "co", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "coffee", got[0], "most used, latest spelling")

	got, err = f.views.MemoSuggestions(ctx, "coff", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	f.add(t, core.Transaction{Type: core.Expense, Amount: core.Money{Cents: 100}, CategoryID: food.ID, Memo: "Cola", Date: june(9)})
	got, err = f.views.MemoSuggestions(ctx, "co", 10)
	require.NoError(t, err)
	assert.Contains(t, got, "Cola")
}

func TestViewsCategoryNameAfterDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	food := f.addCategory(t, "Food", core.Expense, core.SubTypeNone)
	tx := f.add(t, core.Transaction{Type: core.Expense, Amount: core.Money{Cents: 100}, CategoryID: food.ID, Date: june(1)})

	require.NoError(t, f.registry.Delete(ctx, food.ID))

	got, err := f.ledger.GetByID(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, category.UnknownName, f.views.CategoryName(ctx, got.CategoryID))

	rows, err := f.views.ExportRows(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, category.UnknownName, rows[0].Category)
}

func TestViewsOrphans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.addCategory(t, "Lent", core.Expense, core.SubTypeLoan)

	root := f.add(t, core.Transaction{Type: core.Expense, SubType: core.SubTypeLoan, Amount: core.Money{Cents: 1000}, CategoryID: cat.ID, Date: june(1),
		Details: &core.LoanDetails{PersonName: "Bob"}})
	child := f.add(t, core.Transaction{Type: core.Income, SubType: core.SubTypeRepaid, Amount: core.Money{Cents: 100}, CategoryID: cat.ID, Date: june(2),
		Details: &core.LoanDetails{PersonName: "Bob", ParentID: ptr(root.ID)}})
	require.NoError(t, f.ledger.Delete(ctx, root.ID))

	orphans, err := f.views.Orphans(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, child.ID, orphans[0].ID)

	groups, err := f.views.Loans(ctx, LoansAll, nil)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestViewsFuel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.addCategory(t, "Fuel", core.Expense, core.SubTypeFuel)
	f.add(t, core.Transaction{Type: core.Expense, SubType: core.SubTypeFuel, Amount: core.Money{Cents: 1000}, CategoryID: cat.ID, Date: june(1),
		Details: &core.FuelDetails{OdometerReading: 1000, FuelQuantity: 5}})
	f.add(t, core.Transaction{Type: core.Expense, SubType: core.SubTypeFuel, Amount: core.Money{Cents: 4000}, CategoryID: cat.ID, Date: june(8),
		Details: &core.FuelDetails{OdometerReading: 1300, FuelQuantity: 20}})

	stats, err := f.views.FuelStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats.Fills, 2)
	assert.InDelta(t, 15, stats.Fills[1].Mileage, 1e-9)
	assert.Equal(t, int64(5000), stats.TotalCost.Cents)
}

// gatedStore blocks AllTransactions until gate is closed and fails when the
// context it was handed is already done.
type gatedStore struct {
	*memory.Store
	started chan struct{}
	gate    chan struct{}
	calls   atomic.Int32
}

func (g *gatedStore) AllTransactions(ctx context.Context) ([]core.Transaction, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	<-g.gate
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Store.AllTransactions(ctx)
}

func TestViewsSnapshotSurvivesCancelledCaller(t *testing.T) {
	store := &gatedStore{Store: memory.New(), started: make(chan struct{}), gate: make(chan struct{})}
	ctx := context.Background()
	reg := category.NewRegistry(store.Store)
	food, err := reg.Add(ctx, core.Category{Name: "Food", Icon: "food", Type: core.Expense, SubType: core.SubTypeNone})
	require.NoError(t, err)
	_, err = store.InsertTransaction(ctx, core.Transaction{Type: core.Expense, SubType: core.SubTypeNone, Amount: core.Money{Cents: 100}, CategoryID: food.ID, Date: june(1)})
	require.NoError(t, err)

	views := NewViews(ledger.NewService(store), reg, store.Store, DefaultViewsConfig())

	first, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		_, err := views.QueryTransactions(first, TxFilter{})
		done <- err
	}()
	<-store.started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(store.gate)
	require.Eventually(t, func() bool {
		_, ok := views.snapshots.Get(snapshotKey)
		return ok
	}, time.Second, 5*time.Millisecond)

	got, err := views.QueryTransactions(ctx, TxFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(1), store.calls.Load())
}
