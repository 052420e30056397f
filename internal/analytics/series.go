package analytics

import (
	"fmt"
	"sort"
	"time"

	"mt5dash/internal/domain"
	"mt5dash/internal/ports"
)

// ErrInvalidInitialBalance signals a caller configuration error, distinct
// from an empty deal history (which produces an empty, error-free result).
var ErrInvalidInitialBalance = fmt.Errorf("%w: initial balance must be positive", ports.ErrConfigurationError)

// Grouping selects the bucket width of a performance series.
type Grouping string

const (
	GroupDaily   Grouping = "daily"   // calendar day
	GroupWeekly  Grouping = "weekly"  // week starting Monday
	GroupMonthly Grouping = "monthly" // calendar month
)

// SeriesKind distinguishes the account-balance curve from per-strategy curves.
type SeriesKind string

const (
	SeriesAccountBalance SeriesKind = "balance"
	SeriesStrategy       SeriesKind = "strategy"
)

// SeriesKey identifies one curve of the performance chart.
type SeriesKey struct {
	Kind     SeriesKind         `json:"kind"`
	Strategy domain.StrategyTag `json:"strategy"`
}

// AccountBalanceSeries is the key of the whole-account balance curve.
func AccountBalanceSeries() SeriesKey {
	return SeriesKey{Kind: SeriesAccountBalance}
}

// StrategySeries is the key of one strategy's cumulative profit curve.
func StrategySeries(tag domain.StrategyTag) SeriesKey {
	return SeriesKey{Kind: SeriesStrategy, Strategy: tag}
}

// PeriodPoint is one bucket of a performance series: the cumulative return
// of the series at the end of the bucket, in percent of the initial balance.
type PeriodPoint struct {
	PeriodStart  time.Time `json:"period_start"`
	Series       SeriesKey `json:"series"`
	ValuePercent float64   `json:"value_percent"`
}

// SeriesConfig parametrizes BuildSeries.
type SeriesConfig struct {
	// InitialBalance is the user-supplied account starting balance the whole
	// chart is normalized against. Brokers do not expose the true historical
	// starting balance, so it must be configured. Must be positive.
	InitialBalance float64
	Grouping       Grouping
	From, To       time.Time
	Selected       []SeriesKey
}

// BuildSeries buckets the full deal history into consecutive periods and
// produces a cumulative performance curve per selected series.
//
// The account-balance curve tracks a running balance seeded at
// InitialBalance and advanced each bucket by that bucket's trading profit
// (incl. commission and swap) plus deposits/withdrawals. Each strategy
// curve tracks the cumulative attributed profit of its tag, seeded at zero.
//
// Every per-strategy curve is normalized against the same account initial
// balance, not a per-strategy basis. That keeps the curves visually
// comparable, but they do not sum to the account curve when strategies
// share margin.
//
// Buckets run from the later of From or the first deal's bucket through To,
// inclusive. Buckets without activity carry the accumulators forward and
// still emit a point for every selected series. An empty deal history
// yields an empty result.
func BuildSeries(deals []domain.Deal, cfg SeriesConfig) ([]PeriodPoint, error) {
	if cfg.InitialBalance <= 0 {
		return nil, ErrInvalidInitialBalance
	}
	switch cfg.Grouping {
	case GroupDaily, GroupWeekly, GroupMonthly:
	default:
		return nil, fmt.Errorf("%w: unknown grouping %q", ports.ErrInvalidRequest, cfg.Grouping)
	}
	if len(deals) == 0 || len(cfg.Selected) == 0 {
		return nil, nil
	}

	start := cfg.From
	first := firstDealTime(deals)
	if first.After(start) {
		start = first
	}
	startBucket := BucketStart(start, cfg.Grouping)
	if startBucket.After(cfg.To) {
		return nil, nil
	}

	type bucketSums struct {
		trading    float64 // profit + commission + swap of trading deals
		balanceOps float64 // deposits (+) and withdrawals (−)
		byStrategy map[domain.StrategyTag]float64
	}
	buckets := make(map[time.Time]*bucketSums)
	for _, d := range deals {
		key := BucketStart(d.Time, cfg.Grouping)
		if key.Before(startBucket) || key.After(cfg.To) {
			continue
		}
		b := buckets[key]
		if b == nil {
			b = &bucketSums{byStrategy: make(map[domain.StrategyTag]float64)}
			buckets[key] = b
		}
		switch {
		case d.IsTradeDeal():
			b.trading += d.NetChange()
			b.byStrategy[d.Strategy] += d.NetChange()
		case d.IsBalanceOp():
			b.balanceOps += d.Profit
		}
	}

	runningBalance := cfg.InitialBalance
	cumulative := make(map[domain.StrategyTag]float64)

	var points []PeriodPoint
	for cur := startBucket; !cur.After(cfg.To); cur = nextBucket(cur, cfg.Grouping) {
		if b := buckets[cur]; b != nil {
			runningBalance += b.trading + b.balanceOps
			for tag, delta := range b.byStrategy {
				cumulative[tag] += delta
			}
		}
		for _, key := range cfg.Selected {
			var value float64
			switch key.Kind {
			case SeriesAccountBalance:
				value = (runningBalance - cfg.InitialBalance) / cfg.InitialBalance * 100
			case SeriesStrategy:
				value = cumulative[key.Strategy] / cfg.InitialBalance * 100
			default:
				continue
			}
			points = append(points, PeriodPoint{
				PeriodStart:  cur,
				Series:       key,
				ValuePercent: value,
			})
		}
	}
	return points, nil
}

// ObservedStrategies returns the distinct strategy tags among trading
// deals, sorted ascending. It drives the series selector options.
func ObservedStrategies(deals []domain.Deal) []domain.StrategyTag {
	seen := make(map[domain.StrategyTag]bool)
	for _, d := range deals {
		if d.IsTradeDeal() {
			seen[d.Strategy] = true
		}
	}
	tags := make([]domain.StrategyTag, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// BucketStart maps an instant to the start of its bucket, in UTC.
func BucketStart(t time.Time, g Grouping) time.Time {
	t = t.UTC()
	switch g {
	case GroupWeekly:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		// Weeks start on Monday.
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case GroupMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

func nextBucket(t time.Time, g Grouping) time.Time {
	switch g {
	case GroupWeekly:
		return t.AddDate(0, 0, 7)
	case GroupMonthly:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

func firstDealTime(deals []domain.Deal) time.Time {
	first := deals[0].Time
	for _, d := range deals[1:] {
		if d.Time.Before(first) {
			first = d.Time
		}
	}
	return first
}
