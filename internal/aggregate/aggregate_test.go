package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerbook/internal/core"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func money(cents int64) core.Money { return core.Money{Cents: cents} }

func at(m time.Month, d int) time.Time {
	return time.Date(2025, m, d, 12, 0, 0, 0, time.UTC)
}

func loan(id int64, typ core.TxType, amount int64, person string, date time.Time, due *time.Time) core.Transaction {
	return core.Transaction{
		ID: id, Type: typ, SubType: core.SubTypeLoan, Amount: money(amount), CategoryID: 1, Date: date,
		Details: &core.LoanDetails{PersonName: person, LoanDate: date, DueDate: due},
	}
}

func repaid(id, parent int64, typ core.TxType, amount int64, date time.Time) core.Transaction {
	return core.Transaction{
		ID: id, Type: typ, SubType: core.SubTypeRepaid, Amount: money(amount), CategoryID: 2, Date: date,
		Details: &core.LoanDetails{ParentID: ptr(parent)},
	}
}

func TestGroupLoansAliceScenario(t *testing.T) {
	groups := GroupLoans([]core.Transaction{
		loan(1, core.Expense, 1000, "Alice", at(5, 1), nil),
		repaid(2, 1, core.Income, 400, at(5, 10)),
	}, now)

	require.Len(t, groups, 1)
	g := groups[0]
	assert.Equal(t, int64(1), g.ParentID)
	assert.Equal(t, "Alice", g.PersonName)
	assert.Equal(t, int64(400), g.Status.PaidAmount.Cents)
	assert.Equal(t, int64(600), g.Status.RemainingAmount.Cents)
	assert.False(t, g.Status.IsCompleted)
	assert.Equal(t, core.LoanPartial, g.StatusText)
	assert.Len(t, g.Transactions, 2)
}

func TestGroupLoansExactRepaymentCompletes(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7} {
		txs := []core.Transaction{loan(1, core.Income, 2100, "Bob", at(1, 1), nil)}
		per := int64(2100 / n)
		var sum int64
		for i := 0; i < n; i++ {
			amount := per
			if i == n-1 {
				amount = 2100 - sum
			}
			sum += amount
			txs = append(txs, repaid(int64(10+i), 1, core.Expense, amount, at(2, i+1)))
		}

		groups := GroupLoans(txs, now)
		require.Len(t, groups, 1)
		assert.True(t, groups[0].Status.IsCompleted, "n=%d", n)
		assert.Zero(t, groups[0].Status.RemainingAmount.Cents, "n=%d", n)
		assert.Equal(t, core.LoanCompleted, groups[0].StatusText)
	}
}

func TestGroupLoansOverRepaymentAndStoredStatusIgnored(t *testing.T) {
	root := loan(1, core.Expense, 100, "Carol", at(1, 1), nil)
	d, _ := root.Loan()
	d.Status = core.LoanRemaining

	groups := GroupLoans([]core.Transaction{root, repaid(2, 1, core.Income, 150, at(1, 2))}, now)
	require.Len(t, groups, 1)
	assert.Equal(t, int64(-50), groups[0].Status.RemainingAmount.Cents)
	assert.True(t, groups[0].Status.IsCompleted)
	assert.Equal(t, core.LoanCompleted, groups[0].StatusText)
}

func TestGroupLoansOrderingAndDangling(t *testing.T) {
	groups := GroupLoans([]core.Transaction{
		loan(1, core.Expense, 100, "A", at(1, 1), nil),
		loan(2, core.Expense, 100, "B", at(3, 1), nil),
		repaid(3, 99, core.Income, 50, at(3, 2)),
		{ID: 4, Type: core.Expense, SubType: core.SubTypeNone, Amount: money(5), CategoryID: 1, Date: at(1, 1)},
	}, now)

	require.Len(t, groups, 2)
	assert.Equal(t, int64(2), groups[0].ParentID)
	assert.Equal(t, int64(1), groups[1].ParentID)
	assert.Zero(t, groups[0].Status.PaidAmount.Cents)
	assert.Equal(t, core.LoanRemaining, groups[0].StatusText)
}

func TestLoanStatusDueDates(t *testing.T) {
	past := now.Add(-48 * time.Hour)
	future := now.Add(36 * time.Hour)

	st := LoanStatusOf([]core.Transaction{loan(1, core.Expense, 100, "A", at(1, 1), &past)}, now)
	assert.True(t, st.IsOverdue)
	require.NotNil(t, st.DaysUntilDue)
	assert.Equal(t, -2, *st.DaysUntilDue)

	st = LoanStatusOf([]core.Transaction{loan(1, core.Expense, 100, "A", at(1, 1), &future)}, now)
	assert.False(t, st.IsOverdue)
	assert.Equal(t, 1, *st.DaysUntilDue)

	st = LoanStatusOf([]core.Transaction{
		loan(1, core.Expense, 100, "A", at(1, 1), &past),
		repaid(2, 1, core.Income, 100, at(1, 2)),
	}, now)
	assert.False(t, st.IsOverdue)

	st = LoanStatusOf([]core.Transaction{loan(1, core.Expense, 100, "A", at(1, 1), nil)}, now)
	assert.Nil(t, st.DaysUntilDue)
	assert.False(t, st.IsOverdue)
}

func TestLoanStatusEmptyIsSettled(t *testing.T) {
	st := LoanStatusOf(nil, now)
	assert.Zero(t, st.TotalAmount.Cents)
	assert.Zero(t, st.PaidAmount.Cents)
	assert.Zero(t, st.RemainingAmount.Cents)
	assert.True(t, st.IsCompleted)
	assert.Equal(t, core.LoanCompleted, StatusText(st))
}

func TestLoansGivenAndTaken(t *testing.T) {
	groups := GroupLoans([]core.Transaction{
		loan(1, core.Expense, 1000, "Alice", at(5, 1), nil),
		loan(2, core.Income, 500, "Alice", at(5, 2), nil),
		loan(3, core.Expense, 300, "Bob", at(7, 1), nil),
		repaid(4, 2, core.Expense, 200, at(5, 20)),
	}, now)
	may := core.MonthRange(at(5, 1))

	given := LoansGiven(groups, may)
	require.Len(t, given, 1)
	assert.Equal(t, int64(1), given[0].ParentID)

	taken := LoansTaken(groups, may)
	require.Len(t, taken, 1)
	assert.Equal(t, int64(200), taken[0].Status.PaidAmount.Cents)

	people := SummarizeByPerson(groups)
	require.Len(t, people, 2)
	assert.Equal(t, "Alice", people[0].PersonName)
	assert.Equal(t, int64(1000), people[0].Given.Cents)
	assert.Equal(t, int64(500), people[0].Taken.Cents)
	assert.Equal(t, int64(1000-300), people[0].Remaining.Cents)
	assert.Equal(t, 2, people[0].Groups)
}

func asset(id int64, parent *int64, st core.SubType, typ core.TxType, amount int64, cat int64) core.Transaction {
	return core.Transaction{
		ID: id, Type: typ, SubType: st, Amount: money(amount), CategoryID: cat, Date: at(1, int(id%28)+1),
		Details: &core.AssetDetails{AssetName: "Gold", Quantity: 10, MeasurementUnit: "g", CurrentValue: money(amount + 500), ParentID: parent},
	}
}

func TestGroupAssetsGoldScenario(t *testing.T) {
	groups := GroupAssets([]core.Transaction{
		asset(10, nil, core.SubTypeAsset, core.Expense, 5000, 3),
		asset(11, ptr(int64(10)), core.SubTypeAssetCost, core.Expense, 200, 3),
		asset(12, ptr(int64(10)), core.SubTypeAssetIncome, core.Income, 50, 3),
	})

	require.Len(t, groups, 1)
	g := groups[0]
	assert.Equal(t, int64(10), g.ID)
	assert.Equal(t, "Gold", g.AssetName)
	assert.Equal(t, int64(5000), g.Value.Cents)
	assert.Equal(t, int64(5500), g.CurrentValue.Cents)
	assert.Equal(t, int64(200), g.TotalCost.Cents)
	assert.Equal(t, int64(50), g.TotalIncome.Cents)
	assert.Len(t, g.Transactions, 3)
}

func TestGroupAssetsByCategory(t *testing.T) {
	groups := GroupAssets([]core.Transaction{
		asset(1, nil, core.SubTypeAsset, core.Expense, 1000, 3),
		asset(2, nil, core.SubTypeAsset, core.Expense, 2000, 3),
		asset(3, nil, core.SubTypeAsset, core.Expense, 4000, 4),
		asset(4, ptr(int64(2)), core.SubTypeAssetCost, core.Expense, 100, 3),
	})
	require.Len(t, groups, 3)

	rows := GroupAssetsByCategory(groups, nil)
	assert.Len(t, rows, 3)
	assert.False(t, rows[0].Merged)

	rows = GroupAssetsByCategory(groups, map[int64]bool{3: true})
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Merged)
	assert.Equal(t, int64(3), rows[0].CategoryID)
	assert.Len(t, rows[0].Groups, 2)
	assert.InDelta(t, 20, rows[0].Quantity, 1e-9)
	assert.Equal(t, int64(3000), rows[0].Value.Cents)
	assert.Equal(t, int64(100), rows[0].TotalCost.Cents)
	assert.False(t, rows[1].Merged)
}

func fill(id int64, day int, odo, qty float64, cost int64) core.Transaction {
	return core.Transaction{
		ID: id, Type: core.Expense, SubType: core.SubTypeFuel, Amount: money(cost), CategoryID: 9, Date: at(4, day),
		Details: &core.FuelDetails{OdometerReading: odo, FuelQuantity: qty, FuelType: "petrol"},
	}
}

func TestMileage(t *testing.T) {
	prev := fill(1, 1, 1000, 5, 500)
	cur := fill(2, 2, 1300, 20, 2000)

	assert.InDelta(t, 15, Mileage(cur, &prev), 1e-9)
	assert.Zero(t, Mileage(cur, nil))

	tests := map[string]core.Transaction{
		"odometer unchanged":   fill(3, 3, 1000, 20, 1),
		"odometer went back":   fill(3, 3, 900, 20, 1),
		"no fuel":              fill(3, 3, 1300, 0, 1),
		"negative fuel":        fill(3, 3, 1300, -1, 1),
		"missing fuel details": {ID: 3, SubType: core.SubTypeFuel},
	}
	for name, c := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Zero(t, Mileage(c, &prev))
		})
	}
}

func TestMileageMatchesFormula(t *testing.T) {
	prev := fill(1, 1, 12345.6, 40, 1)
	for _, tc := range []struct{ odo, qty float64 }{{12400, 3.3}, {13000.1, 41.7}, {20000, 0.5}} {
		cur := fill(2, 2, tc.odo, tc.qty, 1)
		assert.InDelta(t, (tc.odo-12345.6)/tc.qty, Mileage(cur, &prev), 1e-9)
	}
}

func TestFuelStats(t *testing.T) {
	stats := FuelStats([]core.Transaction{
		fill(3, 20, 1700, 25, 3000),
		fill(1, 1, 1000, 5, 700),
		fill(2, 10, 1300, 20, 2500),
		fill(4, 25, 1650, 10, 1200),
		{ID: 5, Type: core.Expense, SubType: core.SubTypeNone, Amount: money(99), CategoryID: 1, Date: at(4, 2)},
	})

	require.Len(t, stats.Fills, 4)
	assert.Equal(t, []int64{1, 2, 3, 4}, []int64{
		stats.Fills[0].Transaction.ID, stats.Fills[1].Transaction.ID,
		stats.Fills[2].Transaction.ID, stats.Fills[3].Transaction.ID,
	})
	assert.Zero(t, stats.Fills[0].Mileage)
	assert.InDelta(t, 15, stats.Fills[1].Mileage, 1e-9)
	assert.InDelta(t, 16, stats.Fills[2].Mileage, 1e-9)
	assert.Zero(t, stats.Fills[3].Mileage)

	assert.InDelta(t, 700, stats.TotalDistance, 1e-9)
	assert.InDelta(t, 45, stats.TotalFuel, 1e-9)
	assert.Equal(t, int64(7400), stats.TotalCost.Cents)
	assert.InDelta(t, 700.0/45.0, stats.OverallMileage, 1e-9)
}

func TestFuelStatsEmpty(t *testing.T) {
	stats := FuelStats(nil)
	assert.Empty(t, stats.Fills)
	assert.Zero(t, stats.OverallMileage)
}

func TestPercentUsedAndClassify(t *testing.T) {
	assert.Zero(t, PercentUsed(nil, money(100)))
	assert.Zero(t, PercentUsed(&core.Money{}, money(100)))
	assert.InDelta(t, 50, PercentUsed(ptr(money(200)), money(100)), 1e-9)

	tests := []struct {
		pct  float64
		want core.Threshold
	}{
		{0, core.ThresholdUnder25},
		{24.99, core.ThresholdUnder25},
		{25, core.Threshold25},
		{50, core.Threshold50},
		{74.9, core.Threshold50},
		{75, core.Threshold75},
		{100, core.Threshold100},
		{100.01, core.ThresholdOver},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.pct), "pct=%v", tt.pct)
	}
}

func TestBudgetOverview(t *testing.T) {
	cats := []core.Category{
		{ID: 1, Name: "Food", Type: core.Expense, Budget: ptr(money(10000))},
		{ID: 2, Name: "Fun", Type: core.Expense},
		{ID: 3, Name: "Salary", Type: core.Income, Budget: ptr(money(200000))},
	}
	txs := []core.Transaction{
		{ID: 1, Type: core.Expense, CategoryID: 1, Amount: money(8000)},
		{ID: 2, Type: core.Expense, CategoryID: 1, Amount: money(500)},
		{ID: 3, Type: core.Income, CategoryID: 1, Amount: money(9999)},
		{ID: 4, Type: core.Income, CategoryID: 3, Amount: money(50000)},
	}

	out := BudgetOverview(cats, txs)
	require.Len(t, out, 2)
	assert.Equal(t, int64(8500), out[0].Spend.Cents)
	assert.InDelta(t, 85, out[0].PercentUsed, 1e-9)
	assert.Equal(t, core.Threshold75, out[0].Threshold)
	assert.Equal(t, "Salary", out[1].Category)
	assert.Equal(t, core.Threshold25, out[1].Threshold)
}
