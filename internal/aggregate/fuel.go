package aggregate

import (
	"ledgerbook/internal/core"
	"ledgerbook/internal/linkage"
)

// Mileage is distance per fuel unit between prev and cur. It is zero without
// a previous fill, when the odometer did not advance, or when cur holds no
// fuel.
func Mileage(cur core.Transaction, prev *core.Transaction) float64 {
	distance, fuel, ok := fillPair(cur, prev)
	if !ok {
		return 0
	}
	return distance / fuel
}

// fillPair returns the distance driven and fuel added for a valid pair.
func fillPair(cur core.Transaction, prev *core.Transaction) (float64, float64, bool) {
	if prev == nil {
		return 0, 0, false
	}
	c, ok := cur.Fuel()
	if !ok {
		return 0, 0, false
	}
	p, ok := prev.Fuel()
	if !ok {
		return 0, 0, false
	}
	distance := c.OdometerReading - p.OdometerReading
	if distance <= 0 || c.FuelQuantity <= 0 {
		return 0, 0, false
	}
	return distance, c.FuelQuantity, true
}

// FuelStats folds fuel fills in date order. Distance and fuel totals count
// valid consecutive pairs only; cost counts every fill.
func FuelStats(txs []core.Transaction) core.FuelStats {
	fills := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if _, ok := tx.Fuel(); ok && tx.SubType == core.SubTypeFuel {
			fills = append(fills, tx)
		}
	}
	linkage.SortByDate(fills)

	stats := core.FuelStats{Fills: make([]core.FuelFill, 0, len(fills))}
	for i, cur := range fills {
		var prev *core.Transaction
		if i > 0 {
			prev = &fills[i-1]
		}
		fill := core.FuelFill{Transaction: cur}
		if distance, fuel, ok := fillPair(cur, prev); ok {
			fill.Distance = distance
			fill.Mileage = distance / fuel
			stats.TotalDistance += distance
			stats.TotalFuel += fuel
		}
		stats.TotalCost = stats.TotalCost.Add(cur.Amount)
		stats.Fills = append(stats.Fills, fill)
	}
	if stats.TotalFuel > 0 {
		stats.OverallMileage = stats.TotalDistance / stats.TotalFuel
	}
	return stats
}
