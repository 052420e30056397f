package domain

import "time"

// Deal is a single broker-reported execution or balance event.
// Deals are append-only and broker-supplied; nothing in this system
// mutates them. The struct is built once at the adapter boundary so
// the analytics core never touches the feed's native field names.
type Deal struct {
	ID         int64       // terminal deal ticket
	PositionID int64       // position the deal belongs to (0 for balance ops)
	OrderID    int64       // order that produced the deal
	Time       time.Time   // execution time, UTC, millisecond precision
	Symbol     string      // trading symbol (empty for balance ops)
	Strategy   StrategyTag // originating strategy (magic number)
	Type       DealType
	Entry      DealEntry
	Volume     float64
	Price      float64
	Profit     float64 // raw profit; for balance ops: +deposit / -withdrawal
	Commission float64
	Swap       float64
}

// IsTradeDeal reports whether the deal qualifies for round-trip trade
// aggregation: a buy/sell execution with a round-trip entry kind and a
// real position identifier.
func (d Deal) IsTradeDeal() bool {
	return d.Type.IsMarketSide() && d.Entry.IsRoundTrip() && d.PositionID > 0
}

// IsBalanceOp reports whether the deal is a deposit or withdrawal.
func (d Deal) IsBalanceOp() bool {
	return d.Type == DealBalance
}

// NetChange is the deal's total effect on the account balance.
func (d Deal) NetChange() float64 {
	return d.Profit + d.Commission + d.Swap
}
