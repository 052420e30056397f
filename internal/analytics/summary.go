package analytics

import (
	"sort"
	"time"

	"mt5dash/internal/domain"
)

// avgDaysPerMonth is the mean length of a calendar month in days. The
// monthly average gain is the daily average projected by this constant
// rather than an aggregation of actual monthly buckets; this is a
// deliberate approximation kept from the metric's common definition.
const avgDaysPerMonth = 30.44

// AccountSummary condenses the whole account history into headline
// figures for the track-record view.
type AccountSummary struct {
	FirstActivity         time.Time
	TotalGainPercent      float64
	DailyAvgGainPercent   float64
	MonthlyAvgGainPercent float64
	NetProfit             float64 // trading profit incl. commission and swap
	Deposits              float64
	Withdrawals           float64 // reported as a positive amount
	InterestCosts         float64 // commission + swap over trading deals
	HighestBalance        float64
}

// ComputeSummary walks the full deal history chronologically and produces
// whole-account summary figures. Gain percentages are normalized against
// the initial balance plus all deposits, so capital injections do not
// inflate the reported return. The highest balance tracks the running
// balance seeded at initialBalance across trading deals and balance
// operations. asOf bounds the account-age calculation behind the daily
// average gain. Monetary values and percentages are rounded to 2 decimals.
func ComputeSummary(deals []domain.Deal, initialBalance float64, asOf time.Time) (AccountSummary, error) {
	if initialBalance <= 0 {
		return AccountSummary{}, ErrInvalidInitialBalance
	}
	s := AccountSummary{HighestBalance: round2(initialBalance)}
	if len(deals) == 0 {
		return s, nil
	}

	sorted := make([]domain.Deal, len(deals))
	copy(sorted, deals)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})
	s.FirstActivity = sorted[0].Time

	var profit, deposits, withdrawals, costs float64
	running := initialBalance
	highest := initialBalance
	for _, d := range sorted {
		switch {
		case d.IsTradeDeal():
			profit += d.NetChange()
			costs += d.Commission + d.Swap
			running += d.NetChange()
		case d.IsBalanceOp():
			if d.Profit > 0 {
				deposits += d.Profit
			} else {
				withdrawals += -d.Profit
			}
			running += d.Profit
		default:
			continue
		}
		if running > highest {
			highest = running
		}
	}

	base := initialBalance + deposits
	if base <= 0 {
		base = 1
	}
	days := int(asOf.Sub(s.FirstActivity).Hours() / 24)
	if days <= 0 {
		days = 1
	}
	dailyAvgGain := (profit / float64(days)) / base * 100

	s.TotalGainPercent = round2(profit / base * 100)
	s.DailyAvgGainPercent = round2(dailyAvgGain)
	s.MonthlyAvgGainPercent = round2(dailyAvgGain * avgDaysPerMonth)
	s.NetProfit = round2(profit)
	s.Deposits = round2(deposits)
	s.Withdrawals = round2(withdrawals)
	s.InterestCosts = round2(costs)
	s.HighestBalance = round2(highest)
	return s, nil
}
