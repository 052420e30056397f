package analytics

import (
	"sort"

	"mt5dash/internal/domain"
)

// AggregateClosedTrades groups raw broker deals into closed round-trip
// trades keyed by position identifier. Only buy/sell deals with a
// round-trip entry kind and a real position id participate; balance
// operations and rejected orders are excluded.
//
// The first deal of each position (time ascending) supplies side, symbol,
// strategy, open time/price and volume; the last supplies close time/price.
// Profit, commission and swap are summed over the whole group so partial
// closes and adjustments are captured. Results are ordered by close time
// descending for display, but callers are free to re-sort.
func AggregateClosedTrades(deals []domain.Deal) []domain.ClosedTrade {
	groups := make(map[int64][]domain.Deal)
	for _, d := range deals {
		if !d.IsTradeDeal() {
			continue
		}
		groups[d.PositionID] = append(groups[d.PositionID], d)
	}

	trades := make([]domain.ClosedTrade, 0, len(groups))
	for positionID, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Time.Before(group[j].Time)
		})
		first := group[0]
		last := group[len(group)-1]

		var gross, commission, swap float64
		for _, d := range group {
			gross += d.Profit
			commission += d.Commission
			swap += d.Swap
		}

		trades = append(trades, domain.ClosedTrade{
			PositionID:  positionID,
			Symbol:      first.Symbol,
			Strategy:    first.Strategy,
			Side:        first.Type,
			OpenTime:    first.Time,
			OpenPrice:   first.Price,
			CloseTime:   last.Time,
			ClosePrice:  last.Price,
			Volume:      first.Volume,
			GrossProfit: gross,
			Commission:  commission,
			Swap:        swap,
			NetProfit:   gross + commission + swap,
		})
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].CloseTime.After(trades[j].CloseTime)
	})
	return trades
}

// FilterByStrategy returns the subset of trades attributed to one strategy.
func FilterByStrategy(trades []domain.ClosedTrade, tag domain.StrategyTag) []domain.ClosedTrade {
	filtered := make([]domain.ClosedTrade, 0, len(trades))
	for _, t := range trades {
		if t.Strategy == tag {
			filtered = append(filtered, t)
		}
	}
	return filtered
}
