package domain

import "time"

// ClosedTrade aggregates all deals sharing one position identifier into
// a single round-trip record. It is recomputed on every query and never
// persisted.
type ClosedTrade struct {
	PositionID  int64
	Symbol      string
	Strategy    StrategyTag
	Side        DealType  // side of the first (opening) deal
	OpenTime    time.Time // time of the first deal in the group
	OpenPrice   float64
	CloseTime   time.Time // time of the chronologically last deal
	ClosePrice  float64
	Volume      float64 // volume of the opening deal
	GrossProfit float64 // sum of raw profit across every deal in the group
	Commission  float64 // sum of commissions across the group
	Swap        float64 // sum of swaps across the group
	NetProfit   float64 // GrossProfit + Commission + Swap
}

// Duration is the time the position was held.
func (t ClosedTrade) Duration() time.Duration {
	return t.CloseTime.Sub(t.OpenTime)
}
