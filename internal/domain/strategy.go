package domain

// StrategyTag identifies which automated strategy originated a deal
// (the terminal's "magic number"). Tag 0 means the trade was placed
// manually. Display formatting of tags belongs to the presentation
// layer, not here.
type StrategyTag int64

// ManualTrading is the tag carried by deals placed by hand.
const ManualTrading StrategyTag = 0

// IsManual reports whether the tag denotes manual trading.
func (t StrategyTag) IsManual() bool {
	return t == ManualTrading
}
