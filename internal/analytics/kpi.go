package analytics

import (
	"math"
	"sort"

	"mt5dash/internal/domain"
)

// KPISnapshot holds scalar performance metrics over a set of closed trades.
// Monetary values and percentages are rounded to 2 decimals.
type KPISnapshot struct {
	NumTrades            int
	WinRate              float64 // percent of trades with positive gross profit
	TotalNetProfit       float64 // sum of net profit (gross + commission + swap)
	GrossProfit          float64 // sum of positive raw profits
	GrossLoss            float64 // sum of absolute negative raw profits
	ProfitFactor         float64 // GrossProfit / GrossLoss; +Inf with no losses, NaN when undefined
	MaxDrawdownValue     float64
	MaxDrawdownPercent   float64
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
}

// ComputeKPIs calculates performance metrics from closed trades.
//
// Trades are processed in close-time ascending order; the ordering is
// load-bearing for streaks and drawdown. Drawdown tracks the running net
// equity (cumulative net profit) against its high-water mark. Win/loss
// classification for streaks and gross profit/loss uses the raw gross
// profit, not the net: a zero gross trade breaks both streaks.
//
// Drawdown percent is computed against initialBalance when positive;
// otherwise against the peak net equity of the period. The fallback exists
// because an accurate period-starting balance is not always derivable from
// account totals alone. An empty trade set yields a zeroed snapshot with a
// NaN profit factor.
func ComputeKPIs(trades []domain.ClosedTrade, initialBalance float64) KPISnapshot {
	snap := KPISnapshot{ProfitFactor: math.NaN()}
	if len(trades) == 0 {
		return snap
	}

	sorted := make([]domain.ClosedTrade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CloseTime.Before(sorted[j].CloseTime)
	})

	var (
		equity, peak, maxDrawdown       float64
		totalNet, grossProfit, grossLoss float64
		wins                            int
		winStreak, lossStreak           int
		maxWinStreak, maxLossStreak     int
	)

	for _, t := range sorted {
		equity += t.NetProfit
		totalNet += t.NetProfit
		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > maxDrawdown {
			maxDrawdown = dd
		}

		switch {
		case t.GrossProfit > 0:
			wins++
			grossProfit += t.GrossProfit
			winStreak++
			lossStreak = 0
			if winStreak > maxWinStreak {
				maxWinStreak = winStreak
			}
		case t.GrossProfit < 0:
			grossLoss += -t.GrossProfit
			lossStreak++
			winStreak = 0
			if lossStreak > maxLossStreak {
				maxLossStreak = lossStreak
			}
		default:
			// Break-even trades interrupt both streaks.
			winStreak = 0
			lossStreak = 0
		}
	}

	snap.NumTrades = len(sorted)
	snap.WinRate = round2(float64(wins) / float64(len(sorted)) * 100)
	snap.TotalNetProfit = round2(totalNet)
	snap.GrossProfit = round2(grossProfit)
	snap.GrossLoss = round2(grossLoss)
	snap.MaxDrawdownValue = round2(maxDrawdown)
	snap.MaxConsecutiveWins = maxWinStreak
	snap.MaxConsecutiveLosses = maxLossStreak

	if maxDrawdown > 0 {
		if initialBalance > 0 {
			snap.MaxDrawdownPercent = round2(maxDrawdown / initialBalance * 100)
		} else if peak > 0 {
			snap.MaxDrawdownPercent = round2(maxDrawdown / peak * 100)
		}
	}

	if grossLoss > 0 {
		snap.ProfitFactor = round2(grossProfit / grossLoss)
	} else if grossProfit > 0 {
		snap.ProfitFactor = math.Inf(1)
	}

	return snap
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
