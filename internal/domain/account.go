package domain

import "time"

// AccountSnapshot is the terminal's current view of an account.
type AccountSnapshot struct {
	Login          int64
	Name           string
	Server         string
	Currency       string
	Balance        float64
	Equity         float64
	MarginFree     float64
	FloatingProfit float64
}

// Position is an open position as reported by the terminal.
type Position struct {
	Ticket       int64
	OpenTime     time.Time
	Type         DealType // BUY or SELL
	Strategy     StrategyTag
	Symbol       string
	Volume       float64
	OpenPrice    float64
	StopLoss     float64 // 0 when not set
	TakeProfit   float64 // 0 when not set
	CurrentPrice float64
	Profit       float64 // floating profit
}

// Order is a pending order as reported by the terminal.
type Order struct {
	Ticket     int64
	SetupTime  time.Time
	Type       OrderType
	Strategy   StrategyTag
	Symbol     string
	Volume     float64
	OpenPrice  float64
	StopLoss   float64
	TakeProfit float64
}
