package domain

import "time"

// Tick is a single best bid/ask observation.
type Tick struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}

type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// SymbolInfo carries the broker's trading constraints for a symbol.
type SymbolInfo struct {
	Symbol       string  `json:"symbol"`
	Point        float64 `json:"point"`
	Digits       int     `json:"digits"`
	TickValue    float64 `json:"tick_value"` // account currency per tick per lot
	TickSize     float64 `json:"tick_size"`
	ContractSize float64 `json:"contract_size"`
	VolumeMin    float64 `json:"volume_min"`
	VolumeStep   float64 `json:"volume_step"`
	VolumeMax    float64 `json:"volume_max"`
}

// PipSize is one pip in price units. Fractional-pip quotes (3/5 digits) price
// a pip at ten points, everything else at one point.
func (s *SymbolInfo) PipSize() float64 {
	if s.Digits == 3 || s.Digits == 5 {
		return s.Point * 10
	}
	return s.Point
}

type AccountInfo struct {
	Equity     float64 `json:"equity"`
	Balance    float64 `json:"balance"`
	FreeMargin float64 `json:"free_margin"`
	Currency   string  `json:"currency"`
}
