package sheets

import "context"

// Ports for outbound spreadsheet adapters.
type (
	// RowWriter mirrors tabular ledger exports into a sheet.
	RowWriter interface {
		// ReplaceRows clears the sheet and writes header followed by rows.
		ReplaceRows(ctx context.Context, header []string, rows [][]string) error
	}
)
