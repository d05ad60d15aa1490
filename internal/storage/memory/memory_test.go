package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerbook/internal/core"
	"ledgerbook/internal/ports"
	"ledgerbook/internal/storage/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) ports.Store { return New() })
}

func TestStoreClonesRecords(t *testing.T) {
	s := New()
	ctx := context.Background()
	tx, err := s.InsertTransaction(ctx, core.Transaction{
		Type: core.Expense, SubType: core.SubTypeFuel, Amount: core.Money{Cents: 100}, CategoryID: 1,
		Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Details: &core.FuelDetails{FuelQuantity: 10},
	})
	require.NoError(t, err)

	f, _ := tx.Fuel()
	f.FuelQuantity = 99

	got, err := s.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	stored, _ := got.Fuel()
	assert.InDelta(t, 10, stored.FuelQuantity, 1e-9)
}
