package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSheetReplaceRows(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.ReplaceRows(ctx, []string{"Date", "Memo"}, [][]string{{"2025-06-01", "a"}, {"2025-06-02", "b"}}))
	assert.Equal(t, [][]string{{"Date", "Memo"}, {"2025-06-01", "a"}, {"2025-06-02", "b"}}, s.Rows())

	require.NoError(t, s.ReplaceRows(ctx, []string{"Date", "Memo"}, nil))
	assert.Len(t, s.Rows(), 1)
	assert.Equal(t, 2, s.Writes())
}

func TestSheetRowsAreCopies(t *testing.T) {
	s := New()
	header := []string{"Date"}
	require.NoError(t, s.ReplaceRows(context.Background(), header, nil))
	header[0] = "changed"
	rows := s.Rows()
	rows[0][0] = "also changed"
	assert.Equal(t, "Date", s.Rows()[0][0])
}
