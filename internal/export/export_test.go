package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerbook/internal/core"
)

func TestRowsAndCSV(t *testing.T) {
	names := map[int64]string{1: "Food"}
	resolve := func(id int64) string {
		if n, ok := names[id]; ok {
			return n
		}
		return "Unknown"
	}
	txs := []core.Transaction{
		{ID: 2, Type: core.Income, Amount: core.Money{Cents: 250000}, CategoryID: 9, Memo: "salary, june", Date: time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC)},
		{ID: 1, Type: core.Expense, Amount: core.Money{Cents: 1205}, CategoryID: 1, Memo: "lunch", Date: time.Date(2025, 6, 1, 13, 5, 0, 0, time.UTC)},
	}

	rows := Rows(txs, resolve, nil)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{Date: "2025-06-01", Time: "13:05", Type: "expense", Category: "Food", Amount: "12.05", Memo: "lunch"}, rows[0])
	assert.Equal(t, "Unknown", rows[1].Category)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))
	assert.Equal(t,
		"Date,Time,Type,Category,Amount,Memo\n"+
			"2025-06-01,13:05,expense,Food,12.05,lunch\n"+
			"2025-06-02,08:30,income,Unknown,2500.00,\"salary, june\"\n",
		buf.String())
}

func TestRowsLocation(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	rows := Rows([]core.Transaction{
		{Type: core.Expense, Amount: core.Money{Cents: 1}, CategoryID: 1, Date: time.Date(2025, 1, 1, 23, 30, 0, 0, time.UTC)},
	}, func(int64) string { return "x" }, loc)
	assert.Equal(t, "2025-01-02", rows[0].Date)
	assert.Equal(t, "00:30", rows[0].Time)
}
