package domain

import "time"

// KeyLevel is a nearby structural price level annotated by the chart analysis.
type KeyLevel struct {
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	DistancePips float64 `json:"distance_pips"`
}

// PositionInfo describes an open position on the broker side.
type PositionInfo struct {
	Ticket     int64   `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Volume     float64 `json:"volume"`
	EntryPrice float64 `json:"entry_price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Profit     float64 `json:"profit"`
	Comment    string  `json:"comment"`
}

// MarketSnapshot is the read-only market context captured once per decision
// cycle. The engine never mutates it.
type MarketSnapshot struct {
	Symbol         string
	Time           time.Time
	Bid            float64
	Ask            float64
	Point          float64
	PipSize        float64
	Digits         int
	SpreadPoints   float64
	SpreadP90      float64 // rolling 90th percentile of recent spreads, 0 = unknown
	ATR            map[string]float64
	TicksPerMinute float64 // negative = unknown
	Session        string  // active session name, empty = none
	KeyLevels      []KeyLevel
	NewsWindow     bool
	NewsReason     string
	Equity         float64
	FreeMargin     float64
	OpenPositions  []PositionInfo
}

// ATRFor returns the ATR for a timeframe, 0 when unavailable.
func (s *MarketSnapshot) ATRFor(timeframe string) float64 {
	if s == nil || s.ATR == nil {
		return 0
	}
	return s.ATR[timeframe]
}
