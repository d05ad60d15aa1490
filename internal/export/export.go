// Package export projects transactions into flat rows for CSV files and
// spreadsheets.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"ledgerbook/internal/core"
	"ledgerbook/internal/linkage"
)

// Header is the column order of every export.
var Header = []string{"Date", "Time", "Type", "Category", "Amount", "Memo"}

type Row struct {
	Date     string
	Time     string
	Type     string
	Category string
	Amount   string
	Memo     string
}

// Values returns the row in Header order.
func (r Row) Values() []string {
	return []string{r.Date, r.Time, r.Type, r.Category, r.Amount, r.Memo}
}

// Rows projects txs in date order. names resolves category ids; loc is
// the zone dates are rendered in (nil means UTC).
func Rows(txs []core.Transaction, names func(int64) string, loc *time.Location) []Row {
	if loc == nil {
		loc = time.UTC
	}
	sorted := make([]core.Transaction, len(txs))
	copy(sorted, txs)
	linkage.SortByDate(sorted)

	rows := make([]Row, 0, len(sorted))
	for _, tx := range sorted {
		d := tx.Date.In(loc)
		rows = append(rows, Row{
			Date:     d.Format("2006-01-02"),
			Time:     d.Format("15:04"),
			Type:     string(tx.Type),
			Category: names(tx.CategoryID),
			Amount:   tx.Amount.String(),
			Memo:     tx.Memo,
		})
	}
	return rows
}

// Table returns the header followed by every row.
func Table(rows []Row) [][]string {
	out := make([][]string, 0, len(rows)+1)
	out = append(out, Header)
	for _, r := range rows {
		out = append(out, r.Values())
	}
	return out
}

// WriteCSV writes the header and rows to w.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(Table(rows)); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
