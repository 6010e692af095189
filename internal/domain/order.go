package domain

import "time"

// OrderAction distinguishes immediate execution from a resting order.
type OrderAction string

const (
	ActionMarket  OrderAction = "market"
	ActionPending OrderAction = "pending"
)

// PendingKind selects the trigger semantics of a resting order.
type PendingKind string

const (
	PendingLimit PendingKind = "limit"
	PendingStop  PendingKind = "stop"
)

// FillMode is the broker execution semantics flag. A symbol/account may
// support only a subset, so submission falls back across modes.
type FillMode string

const (
	FillFOK    FillMode = "FOK"
	FillIOC    FillMode = "IOC"
	FillReturn FillMode = "RETURN"
)

// OrderRequest is one leg of a submission.
type OrderRequest struct {
	Action     OrderAction `json:"action"`
	Kind       PendingKind `json:"kind,omitempty"` // pending orders only
	Symbol     string      `json:"symbol"`
	Side       Side        `json:"side"`
	Volume     float64     `json:"volume"`
	Price      float64     `json:"price"`
	StopLoss   float64     `json:"stop_loss"`
	TakeProfit float64     `json:"take_profit"`
	Deviation  int         `json:"deviation"` // max slippage, broker points
	FillMode   FillMode    `json:"fill_mode"`
	Comment    string      `json:"comment"`
	Expiry     time.Time   `json:"expiry,omitempty"` // pending orders only
}

// OrderResult is the broker's answer to a single submission attempt.
type OrderResult struct {
	Ticket          int64   `json:"ticket"`
	ExecutedPrice   float64 `json:"executed_price"`
	ExecutedVolume  float64 `json:"executed_volume"`
	RetCode         int     `json:"ret_code"`
	RetMessage      string  `json:"ret_message"`
	UnsupportedFill bool    `json:"unsupported_fill"`
}

// Deal is a closed trade from broker history, used to confirm that the
// first-target leg has already banked.
type Deal struct {
	Ticket  int64     `json:"ticket"`
	Symbol  string    `json:"symbol"`
	Side    Side      `json:"side"`
	Volume  float64   `json:"volume"`
	Price   float64   `json:"price"`
	Profit  float64   `json:"profit"`
	Comment string    `json:"comment"`
	Time    time.Time `json:"time"`
}

// ExecutedOrder is the persisted record of a leg the engine got accepted.
type ExecutedOrder struct {
	ID         string
	Ticket     int64
	Symbol     string
	Side       Side
	Action     OrderAction
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	FillMode   FillMode
	Comment    string
	DryRun     bool
	CreatedAt  time.Time
}

// PositionHistory represents a closed position snapshotted for reporting.
type PositionHistory struct {
	ID         int64
	Symbol     string
	Side       Side
	Volume     float64
	EntryPrice float64
	ExitPrice  float64
	Profit     float64
	ClosedAt   time.Time
}
