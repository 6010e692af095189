package usecase_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vitos/trade_engine/internal/config"
	"github.com/vitos/trade_engine/internal/domain"
)

type modifyCall struct {
	Ticket     int64
	StopLoss   float64
	TakeProfit float64
}

// FakeBroker is an in-memory broker for engine tests.
type FakeBroker struct {
	mu sync.Mutex

	Tick     domain.Tick
	Info     domain.SymbolInfo
	Account  domain.AccountInfo
	Candles  map[string][]domain.Candle
	Position []*domain.PositionInfo
	Deals    []*domain.Deal

	Profit    float64
	ProfitErr error

	SubmitErr        error
	UnsupportedFills map[domain.FillMode]bool
	Submitted        []*domain.OrderRequest
	nextTicket       int64

	ModifyErr error
	Modified  []modifyCall

	ConnectErr error
}

func NewFakeBroker() *FakeBroker {
	return &FakeBroker{
		Info: domain.SymbolInfo{
			Symbol:       "EURUSD",
			Point:        0.0001,
			Digits:       4,
			TickValue:    10.0,
			TickSize:     0.0001,
			ContractSize: 100000,
			VolumeMin:    0.01,
			VolumeStep:   0.01,
			VolumeMax:    100,
		},
		Account:          domain.AccountInfo{Equity: 10000, FreeMargin: 9000, Currency: "USD"},
		Candles:          make(map[string][]domain.Candle),
		UnsupportedFills: make(map[domain.FillMode]bool),
		nextTicket:       1000,
	}
}

func (f *FakeBroker) EnsureConnected(ctx context.Context) error { return f.ConnectErr }

func (f *FakeBroker) GetTick(ctx context.Context, symbol string) (*domain.Tick, error) {
	t := f.Tick
	t.Symbol = symbol
	return &t, nil
}

func (f *FakeBroker) GetSymbolInfo(ctx context.Context, symbol string) (*domain.SymbolInfo, error) {
	info := f.Info
	return &info, nil
}

func (f *FakeBroker) GetAccount(ctx context.Context) (*domain.AccountInfo, error) {
	acct := f.Account
	return &acct, nil
}

func (f *FakeBroker) GetCandles(ctx context.Context, symbol, timeframe string, limit int) ([]domain.Candle, error) {
	return f.Candles[timeframe], nil
}

func (f *FakeBroker) GetPositions(ctx context.Context, symbol string) ([]*domain.PositionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.PositionInfo, len(f.Position))
	for i, p := range f.Position {
		cp := *p
		out[i] = &cp
	}
	return out, nil
}

func (f *FakeBroker) GetRecentDeals(ctx context.Context, symbol string, since time.Time) ([]*domain.Deal, error) {
	return f.Deals, nil
}

func (f *FakeBroker) SubmitOrder(ctx context.Context, req *domain.OrderRequest) (*domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *req
	f.Submitted = append(f.Submitted, &cp)

	if f.SubmitErr != nil {
		return nil, f.SubmitErr
	}
	if f.UnsupportedFills[req.FillMode] {
		return &domain.OrderResult{
			RetCode:         10030,
			RetMessage:      "unsupported filling mode",
			UnsupportedFill: true,
		}, nil
	}
	f.nextTicket++
	return &domain.OrderResult{
		Ticket:         f.nextTicket,
		ExecutedPrice:  req.Price,
		ExecutedVolume: req.Volume,
	}, nil
}

func (f *FakeBroker) ModifyPosition(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Modified = append(f.Modified, modifyCall{Ticket: ticket, StopLoss: stopLoss, TakeProfit: takeProfit})
	if f.ModifyErr != nil {
		return f.ModifyErr
	}
	for _, p := range f.Position {
		if p.Ticket == ticket {
			p.StopLoss = stopLoss
			p.TakeProfit = takeProfit
		}
	}
	return nil
}

func (f *FakeBroker) CalcProfit(ctx context.Context, symbol string, side domain.Side, volume, openPrice, closePrice float64) (float64, error) {
	if f.ProfitErr != nil {
		return 0, f.ProfitErr
	}
	return f.Profit, nil
}

func (f *FakeBroker) SubmittedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Submitted)
}

// FakeStateStore keeps the trade state in memory.
type FakeStateStore struct {
	mu       sync.Mutex
	State    domain.TradeState
	LoadErr  error
	StoreErr error
	Stores   int
}

func (f *FakeStateStore) Load() (domain.TradeState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LoadErr != nil {
		return domain.TradeState{}, f.LoadErr
	}
	return f.State, nil
}

func (f *FakeStateStore) Store(state domain.TradeState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StoreErr != nil {
		return f.StoreErr
	}
	f.State = state
	f.Stores++
	return nil
}

// FakeAudit records entries in memory.
type FakeAudit struct {
	mu      sync.Mutex
	Entries []domain.DecisionLogEntry
	reasons []string
}

func (f *FakeAudit) Append(entry domain.DecisionLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Entries = append(f.Entries, entry)
	if len(entry.Reasons) > 0 {
		f.reasons = entry.Reasons
	}
	return nil
}

func (f *FakeAudit) LastReasons() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reasons
}

func (f *FakeAudit) Stages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.Entries {
		out = append(out, e.Stage)
	}
	return out
}

// FakeSnapshots returns a fixed snapshot.
type FakeSnapshots struct {
	Snap *domain.MarketSnapshot
	Err  error
}

func (f *FakeSnapshots) Snapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Snap == nil {
		return nil, errors.New("no snapshot")
	}
	return f.Snap, nil
}

// FakeSetups returns a fixed payload.
type FakeSetups struct {
	Payload domain.SetupPayload
	Err     error
}

func (f *FakeSetups) Latest(ctx context.Context, symbol string) (domain.SetupPayload, error) {
	return f.Payload, f.Err
}

// FakeOrderRepo records saved orders.
type FakeOrderRepo struct {
	mu     sync.Mutex
	Orders []*domain.ExecutedOrder
}

func (f *FakeOrderRepo) SaveOrder(ctx context.Context, order *domain.ExecutedOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Orders = append(f.Orders, order)
	return nil
}

func (f *FakeOrderRepo) ListOrders(ctx context.Context, limit int) ([]*domain.ExecutedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Orders, nil
}

func (f *FakeOrderRepo) SavePositionHistory(ctx context.Context, history *domain.PositionHistory) error {
	return nil
}

func (f *FakeOrderRepo) ListPositionHistory(ctx context.Context, limit int) ([]*domain.PositionHistory, error) {
	return nil, nil
}

// testConfig returns defaults with the wall-clock dependent checks off so
// tests are deterministic regardless of when they run.
func testConfig() config.Config {
	cfg := *config.Default()
	cfg.Gate.BlockWeekend = false
	cfg.Gate.SessionCheck = false
	cfg.Gate.SpreadCheck = true
	cfg.Gate.ATRCheck = true
	cfg.Gate.LiquidityCheck = true
	cfg.Gate.NewsCheck = true
	cfg.Engine.DryRun = false
	return cfg
}

// healthySnapshot passes every trade-level gate check.
func healthySnapshot() *domain.MarketSnapshot {
	return &domain.MarketSnapshot{
		Symbol:         "EURUSD",
		Time:           time.Now(),
		Bid:            1.08400,
		Ask:            1.08420,
		Point:          0.0001,
		PipSize:        0.0001,
		Digits:         4,
		SpreadPoints:   10,
		SpreadP90:      20,
		ATR:            map[string]float64{"M5": 0.0008, "M15": 0.0015},
		TicksPerMinute: 30,
		Equity:         10000,
		FreeMargin:     9000,
	}
}
