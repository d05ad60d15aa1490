package category

import "ledgerbook/internal/core"

// CurrentVersion is the newest built-in taxonomy. Bump it when appending
// entries to builtins; existing entries keep the version they shipped with.
const CurrentVersion = 3

// builtins is append-only: seeding inserts each entry once, matched by its
// icon, type and subtype.
var builtins = []core.Category{
	// v1: plain income and expense.
	{Name: "Salary", Icon: "salary", Type: core.Income, SubType: core.SubTypeNone, Version: 1},
	{Name: "Gifts", Icon: "gift", Type: core.Income, SubType: core.SubTypeNone, Version: 1},
	{Name: "Other income", Icon: "coins", Type: core.Income, SubType: core.SubTypeNone, Version: 1},
	{Name: "Food", Icon: "food", Type: core.Expense, SubType: core.SubTypeNone, Version: 1},
	{Name: "Transport", Icon: "bus", Type: core.Expense, SubType: core.SubTypeNone, Version: 1},
	{Name: "Housing", Icon: "home", Type: core.Expense, SubType: core.SubTypeNone, Version: 1},
	{Name: "Utilities", Icon: "bolt", Type: core.Expense, SubType: core.SubTypeNone, Version: 1},
	{Name: "Health", Icon: "health", Type: core.Expense, SubType: core.SubTypeNone, Version: 1},
	{Name: "Shopping", Icon: "bag", Type: core.Expense, SubType: core.SubTypeNone, Version: 1},
	{Name: "Entertainment", Icon: "film", Type: core.Expense, SubType: core.SubTypeNone, Version: 1},

	// v2: loans in both directions.
	{Name: "Loan given", Icon: "handshake", Type: core.Expense, SubType: core.SubTypeLoan, Version: 2},
	{Name: "Loan taken", Icon: "handshake", Type: core.Income, SubType: core.SubTypeLoan, Version: 2},
	{Name: "Repayment received", Icon: "repay", Type: core.Income, SubType: core.SubTypeRepaid, Version: 2},
	{Name: "Repayment made", Icon: "repay", Type: core.Expense, SubType: core.SubTypeRepaid, Version: 2},

	// v3: assets and fuel.
	{Name: "Investments", Icon: "chart", Type: core.Expense, SubType: core.SubTypeAsset, Version: 3},
	{Name: "Asset costs", Icon: "wrench", Type: core.Expense, SubType: core.SubTypeAssetCost, Version: 3},
	{Name: "Asset income", Icon: "dividend", Type: core.Income, SubType: core.SubTypeAssetIncome, Version: 3},
	{Name: "Fuel", Icon: "fuel", Type: core.Expense, SubType: core.SubTypeFuel, Version: 3},
}

// Builtins returns a copy of the built-in definitions.
func Builtins() []core.Category {
	out := make([]core.Category, len(builtins))
	copy(out, builtins)
	return out
}
