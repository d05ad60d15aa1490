// Package memory is an in-process RowWriter for exercising the sync worker
// without a spreadsheet.
package memory

import (
	"context"
	"sync"

	ports "ledgerbook/internal/sheets"
)

var _ ports.RowWriter = (*Sheet)(nil)

type Sheet struct {
	mu     sync.Mutex
	rows   [][]string
	writes int
}

func New() *Sheet { return &Sheet{} }

func (s *Sheet) ReplaceRows(_ context.Context, header []string, rows [][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = make([][]string, 0, len(rows)+1)
	s.rows = append(s.rows, cloneRow(header))
	for _, r := range rows {
		s.rows = append(s.rows, cloneRow(r))
	}
	s.writes++
	return nil
}

// Rows returns a copy of the current content, header first.
func (s *Sheet) Rows() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.rows))
	for i, r := range s.rows {
		out[i] = cloneRow(r)
	}
	return out
}

// Writes counts ReplaceRows calls.
func (s *Sheet) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func cloneRow(r []string) []string { return append([]string(nil), r...) }
