package domain

import (
	"context"
	"time"
)

// Broker abstracts the terminal connection so the engine is testable against
// an in-memory fake.
type Broker interface {
	EnsureConnected(ctx context.Context) error
	GetTick(ctx context.Context, symbol string) (*Tick, error)
	GetSymbolInfo(ctx context.Context, symbol string) (*SymbolInfo, error)
	GetAccount(ctx context.Context) (*AccountInfo, error)
	GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	GetPositions(ctx context.Context, symbol string) ([]*PositionInfo, error)
	GetRecentDeals(ctx context.Context, symbol string, since time.Time) ([]*Deal, error)
	SubmitOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error)
	ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error
	CalcProfit(ctx context.Context, symbol string, side Side, volume, openPrice, closePrice float64) (float64, error)
}

// SnapshotProvider produces a fresh market snapshot for a symbol.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, symbol string) (*MarketSnapshot, error)
}

// SetupSource yields the latest trade proposal for a symbol, in whichever
// form the analysis produced it.
type SetupSource interface {
	Latest(ctx context.Context, symbol string) (SetupPayload, error)
}

// TradeState is the persisted idempotency record.
type TradeState struct {
	Sig  string  `json:"sig"`
	Time float64 `json:"time"` // unix seconds
}

// StateStore persists the last-executed setup signature across runs.
// A missing or corrupt record loads as the zero state.
type StateStore interface {
	Load() (TradeState, error)
	Store(state TradeState) error
}

// DecisionLogEntry is one audit record.
type DecisionLogEntry struct {
	Time    time.Time
	Stage   string
	CycleID string
	Payload map[string]any
	Reasons []string
}

// AuditSink is the append-only decision journal.
type AuditSink interface {
	Append(entry DecisionLogEntry) error
	LastReasons() []string
}

// OrderRepository persists executed orders and closed-position history.
type OrderRepository interface {
	SaveOrder(ctx context.Context, order *ExecutedOrder) error
	ListOrders(ctx context.Context, limit int) ([]*ExecutedOrder, error)
	SavePositionHistory(ctx context.Context, history *PositionHistory) error
	ListPositionHistory(ctx context.Context, limit int) ([]*PositionHistory, error)
}
