package aggregate

import "ledgerbook/internal/core"

// PercentUsed is spend as a percentage of budget, 0 for a nil or zero budget.
func PercentUsed(budget *core.Money, spend core.Money) float64 {
	if budget == nil || budget.Cents == 0 {
		return 0
	}
	return float64(spend.Cents) / float64(budget.Cents) * 100
}

// Classify buckets a percentage into its display threshold.
func Classify(pct float64) core.Threshold {
	switch {
	case pct > 100:
		return core.ThresholdOver
	case pct >= 100:
		return core.Threshold100
	case pct >= 75:
		return core.Threshold75
	case pct >= 50:
		return core.Threshold50
	case pct >= 25:
		return core.Threshold25
	default:
		return core.ThresholdUnder25
	}
}

// EvaluateBudget pairs a category with the spend recorded against it.
func EvaluateBudget(c core.Category, spend core.Money) core.BudgetStatus {
	pct := PercentUsed(c.Budget, spend)
	return core.BudgetStatus{
		CategoryID:  c.ID,
		Category:    c.Name,
		Budget:      c.Budget,
		Spend:       spend,
		PercentUsed: pct,
		Threshold:   Classify(pct),
	}
}

// SpendByCategory sums amounts per category, counting only transactions
// whose type matches typ.
func SpendByCategory(txs []core.Transaction, typ core.TxType) map[int64]core.Money {
	out := make(map[int64]core.Money)
	for _, tx := range txs {
		if tx.Type == typ {
			out[tx.CategoryID] = out[tx.CategoryID].Add(tx.Amount)
		}
	}
	return out
}

// BudgetOverview evaluates every category that has a budget, in the order
// given. Spend for each category counts transactions of its own type.
func BudgetOverview(cats []core.Category, txs []core.Transaction) []core.BudgetStatus {
	spend := map[core.TxType]map[int64]core.Money{
		core.Income:  SpendByCategory(txs, core.Income),
		core.Expense: SpendByCategory(txs, core.Expense),
	}
	out := make([]core.BudgetStatus, 0, len(cats))
	for _, c := range cats {
		if c.Budget == nil {
			continue
		}
		out = append(out, EvaluateBudget(c, spend[c.Type][c.ID]))
	}
	return out
}
