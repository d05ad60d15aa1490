package aggregate

import (
	"ledgerbook/internal/core"
	"ledgerbook/internal/linkage"
)

// GroupAssets builds one group per asset root in input order. Cost and
// income children accumulate by their type; value stays the root amount.
func GroupAssets(txs []core.Transaction) []core.AssetGroup {
	assets := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.SubType.Family() == core.FamilyAsset {
			assets = append(assets, tx)
		}
	}
	res := linkage.New(assets)

	groups := make([]core.AssetGroup, 0)
	for _, root := range assets {
		if root.SubType != core.SubTypeAsset || !root.IsRoot() {
			continue
		}
		g := core.AssetGroup{
			ID:           root.ID,
			CategoryID:   root.CategoryID,
			Value:        root.Amount,
			PurchaseDate: root.Date,
			Transactions: []core.Transaction{root},
		}
		if d, ok := root.Asset(); ok {
			g.AssetName = d.AssetName
			g.Quantity = d.Quantity
			g.MeasurementUnit = d.MeasurementUnit
			g.CurrentValue = d.CurrentValue
			if !d.TransactionDate.IsZero() {
				g.PurchaseDate = d.TransactionDate
			}
		}

		for _, child := range res.ResolveChildren(root.ID) {
			switch child.SubType {
			case core.SubTypeAssetCost, core.SubTypeAssetIncome:
			default:
				continue
			}
			g.Transactions = append(g.Transactions, child)
			switch child.Type {
			case core.Expense:
				g.TotalCost = g.TotalCost.Add(child.Amount)
			case core.Income:
				g.TotalIncome = g.TotalIncome.Add(child.Amount)
			}
		}
		groups = append(groups, g)
	}
	return groups
}

// GroupAssetsByCategory merges the groups of every category whose toggle is
// on into a single row. Other groups stay one row each. Rows keep the order
// in which their first group appears.
func GroupAssetsByCategory(groups []core.AssetGroup, enabled map[int64]bool) []core.AssetCategorySummary {
	out := make([]core.AssetCategorySummary, 0, len(groups))
	merged := make(map[int64]int)

	for _, g := range groups {
		if enabled[g.CategoryID] {
			if idx, ok := merged[g.CategoryID]; ok {
				addGroup(&out[idx], g)
				continue
			}
			merged[g.CategoryID] = len(out)
			row := core.AssetCategorySummary{CategoryID: g.CategoryID, Merged: true}
			addGroup(&row, g)
			out = append(out, row)
			continue
		}
		row := core.AssetCategorySummary{CategoryID: g.CategoryID}
		addGroup(&row, g)
		out = append(out, row)
	}
	return out
}

func addGroup(row *core.AssetCategorySummary, g core.AssetGroup) {
	row.Quantity += g.Quantity
	row.Value = row.Value.Add(g.Value)
	row.CurrentValue = row.CurrentValue.Add(g.CurrentValue)
	row.TotalCost = row.TotalCost.Add(g.TotalCost)
	row.TotalIncome = row.TotalIncome.Add(g.TotalIncome)
	row.Groups = append(row.Groups, g)
}
