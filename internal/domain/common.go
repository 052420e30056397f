package domain

// DealType classifies a broker deal record.
type DealType string

const (
	DealBuy     DealType = "BUY"
	DealSell    DealType = "SELL"
	DealBalance DealType = "BALANCE" // deposit (positive profit) or withdrawal (negative)
	DealCredit  DealType = "CREDIT"
	DealOther   DealType = "OTHER"
)

// IsMarketSide reports whether the deal type is a buy or sell execution.
func (t DealType) IsMarketSide() bool {
	return t == DealBuy || t == DealSell
}

// DealEntry indicates how a deal changed its position (MT5 "entry" field).
type DealEntry string

const (
	EntryIn    DealEntry = "IN"     // opened or added to a position
	EntryOut   DealEntry = "OUT"    // closed or reduced a position
	EntryInOut DealEntry = "INOUT"  // reversed a position in one deal
	EntryOutBy DealEntry = "OUT_BY" // closed by an opposite position
	EntryNone  DealEntry = ""       // balance operations carry no entry kind
)

// IsRoundTrip reports whether the entry kind participates in round-trip
// trade aggregation. OUT_BY deals are excluded, matching the terminal's
// own closed-trade accounting.
func (e DealEntry) IsRoundTrip() bool {
	return e == EntryIn || e == EntryOut || e == EntryInOut
}

// OrderType is the pending order type as reported by the terminal.
type OrderType string

const (
	OrderBuy           OrderType = "BUY"
	OrderSell          OrderType = "SELL"
	OrderBuyLimit      OrderType = "BUY LIMIT"
	OrderSellLimit     OrderType = "SELL LIMIT"
	OrderBuyStop       OrderType = "BUY STOP"
	OrderSellStop      OrderType = "SELL STOP"
	OrderBuyStopLimit  OrderType = "BUY STOP LIMIT"
	OrderSellStopLimit OrderType = "SELL STOP LIMIT"
)
