package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Setup is the raw proposal produced by the analysis pipeline. It may arrive
// fully structured or be reconstructed from the summary text.
type Setup struct {
	Direction  string  `json:"direction"`
	Entry      float64 `json:"entry"`
	Stop       float64 `json:"stop"`
	TP1        float64 `json:"tp1"`
	TP2        float64 `json:"tp2"`
	Bias       string  `json:"bias"`
	Sufficient bool    `json:"sufficient"`
}

// SetupPayload carries whichever form the setup source produced this cycle.
type SetupPayload struct {
	Structured *Setup
	Text       string
}

// TradeIntent is a validated, normalized trade proposal. Immutable after
// validation.
type TradeIntent struct {
	Symbol    string
	Direction Side
	Entry     float64
	Stop      float64
	TP1       float64
	TP2       float64
	Bias      string
}

// Signature is a content hash identifying this exact setup. Two intents with
// the same symbol, direction and price levels hash identically, which is what
// the cooldown tracker keys on.
func (i TradeIntent) Signature() string {
	payload := fmt.Sprintf("%s|%s|%.5f|%.5f|%.5f|%.5f",
		i.Symbol, i.Direction, i.Entry, i.Stop, i.TP1, i.TP2)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:16]
}

// RewardRisk returns |tp2-entry| / |entry-stop|, or 0 when the stop distance
// is degenerate.
func (i TradeIntent) RewardRisk() float64 {
	risk := i.Entry - i.Stop
	if risk < 0 {
		risk = -risk
	}
	if risk == 0 {
		return 0
	}
	reward := i.TP2 - i.Entry
	if reward < 0 {
		reward = -reward
	}
	return reward / risk
}
