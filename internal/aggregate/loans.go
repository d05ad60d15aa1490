// Package aggregate derives loan, asset, fuel and budget views from a
// snapshot of transactions. Every function here is pure and safe to call
// from concurrent readers; none of them fail on missing linkage or zero
// divisors.
package aggregate

import (
	"math"
	"sort"
	"time"

	"ledgerbook/internal/core"
	"ledgerbook/internal/linkage"
)

// GroupLoans builds one group per root loan, newest first. Repayments join
// their root through parentId whatever their direction.
func GroupLoans(txs []core.Transaction, now time.Time) []core.LoanGroup {
	loans := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.SubType.Family() == core.FamilyLoan {
			loans = append(loans, tx)
		}
	}
	res := linkage.New(loans)

	groups := make([]core.LoanGroup, 0)
	for _, root := range loans {
		if root.SubType != core.SubTypeLoan || !root.IsRoot() {
			continue
		}
		members := []core.Transaction{root}
		for _, child := range res.ResolveChildren(root.ID) {
			if child.SubType == core.SubTypeRepaid {
				members = append(members, child)
			}
		}
		status := LoanStatusOf(members, now)

		var person string
		if d, ok := root.Loan(); ok {
			person = d.PersonName
		}
		groups = append(groups, core.LoanGroup{
			ParentID:     root.ID,
			PersonName:   person,
			Parent:       root,
			Transactions: members,
			Status:       status,
			StatusText:   StatusText(status),
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		a, b := groups[i].Parent, groups[j].Parent
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.ID > b.ID
	})
	return groups
}

// LoanStatusOf computes the status of one loan from its root(s) and
// repayments. An empty list is vacuously settled.
func LoanStatusOf(txs []core.Transaction, now time.Time) core.LoanStatus {
	var (
		total, paid core.Money
		due         *time.Time
	)
	for _, tx := range txs {
		if tx.IsRoot() {
			total = total.Add(tx.Amount)
			if d, ok := tx.Loan(); ok && d.DueDate != nil && due == nil {
				v := *d.DueDate
				due = &v
			}
			continue
		}
		paid = paid.Add(tx.Amount)
	}

	remaining := total.Sub(paid)
	st := core.LoanStatus{
		TotalAmount:     total,
		PaidAmount:      paid,
		RemainingAmount: remaining,
		IsCompleted:     remaining.Cents <= 0,
		DueDate:         due,
	}
	if due != nil {
		st.IsOverdue = due.Before(now) && !st.IsCompleted
		days := int(math.Floor(float64(due.Sub(now)) / float64(24*time.Hour)))
		st.DaysUntilDue = &days
	}
	return st
}

// StatusText buckets a status by paid against total. Stored status hints
// are never consulted.
func StatusText(st core.LoanStatus) core.LoanStatusText {
	switch {
	case st.PaidAmount.Cents >= st.TotalAmount.Cents:
		return core.LoanCompleted
	case st.PaidAmount.Cents <= 0:
		return core.LoanRemaining
	default:
		return core.LoanPartial
	}
}

// LoansGiven keeps groups whose root is an expense dated within r.
func LoansGiven(groups []core.LoanGroup, r core.DateRange) []core.LoanGroup {
	return loansByDirection(groups, core.Expense, r)
}

// LoansTaken keeps groups whose root is an income dated within r.
func LoansTaken(groups []core.LoanGroup, r core.DateRange) []core.LoanGroup {
	return loansByDirection(groups, core.Income, r)
}

func loansByDirection(groups []core.LoanGroup, typ core.TxType, r core.DateRange) []core.LoanGroup {
	out := make([]core.LoanGroup, 0, len(groups))
	for _, g := range groups {
		if g.Parent.Type == typ && r.Contains(g.Parent.Date) {
			out = append(out, g)
		}
	}
	return out
}

// SummarizeByPerson totals loan groups per person, sorted by name.
// Remaining is net of direction: positive means the person owes the user.
func SummarizeByPerson(groups []core.LoanGroup) []core.PersonLoans {
	byName := make(map[string]*core.PersonLoans)
	for _, g := range groups {
		p, ok := byName[g.PersonName]
		if !ok {
			p = &core.PersonLoans{PersonName: g.PersonName}
			byName[g.PersonName] = p
		}
		p.Groups++
		switch g.Parent.Type {
		case core.Expense:
			p.Given = p.Given.Add(g.Status.TotalAmount)
			p.Remaining = p.Remaining.Add(g.Status.RemainingAmount)
		case core.Income:
			p.Taken = p.Taken.Add(g.Status.TotalAmount)
			p.Remaining = p.Remaining.Sub(g.Status.RemainingAmount)
		}
	}

	out := make([]core.PersonLoans, 0, len(byName))
	for _, p := range byName {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PersonName < out[j].PersonName })
	return out
}
