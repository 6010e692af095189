package market

import (
	"context"
	"sync"
	"time"

	"github.com/vitos/trade_engine/internal/config"
	"github.com/vitos/trade_engine/internal/domain"
	"go.uber.org/zap"
)

const (
	atrPeriod      = 14
	spreadWindow   = 200 // spreads retained for the rolling p90
	tickRateWindow = 60 * time.Second
)

// TickStream is the push side of the broker connection; the provider counts
// ticks and samples spreads from it.
type TickStream interface {
	OnTick(callback func(tick domain.Tick))
}

// Provider assembles the read-only MarketSnapshot the engine consumes each
// cycle: tick, spread history, ATR per timeframe, tick rate, session, key
// levels, news window and account state.
type Provider struct {
	broker   domain.Broker
	calendar Calendar
	cfg      *config.Config
	logger   *zap.Logger

	mu        sync.Mutex
	spreads   map[string][]float64 // symbol -> recent spreads in points
	tickTimes map[string][]time.Time
	timeNow   func() time.Time
}

func NewProvider(broker domain.Broker, stream TickStream, calendar Calendar, cfg *config.Config, logger *zap.Logger) *Provider {
	p := &Provider{
		broker:    broker,
		calendar:  calendar,
		cfg:       cfg,
		logger:    logger,
		spreads:   make(map[string][]float64),
		tickTimes: make(map[string][]time.Time),
		timeNow:   time.Now,
	}
	if stream != nil {
		stream.OnTick(p.handleTick)
	}
	return p
}

func (p *Provider) handleTick(tick domain.Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.timeNow()
	times := append(p.tickTimes[tick.Symbol], now)

	// Prune outside the rate window.
	cutoff := now.Add(-tickRateWindow)
	valid := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	p.tickTimes[tick.Symbol] = valid
}

// recordSpread keeps a bounded rolling history of spreads per symbol.
func (p *Provider) recordSpread(symbol string, spreadPoints float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	spreads := append(p.spreads[symbol], spreadPoints)
	if len(spreads) > spreadWindow {
		spreads = spreads[len(spreads)-spreadWindow:]
	}
	p.spreads[symbol] = spreads
}

// Snapshot builds a fresh snapshot. Individual inputs that fail are left at
// their unknown values; the gate skips checks it cannot evaluate.
func (p *Provider) Snapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error) {
	tick, err := p.broker.GetTick(ctx, symbol)
	if err != nil {
		return nil, err
	}
	info, err := p.broker.GetSymbolInfo(ctx, symbol)
	if err != nil {
		return nil, err
	}

	now := p.timeNow()
	spreadPoints := 0.0
	if info.Point > 0 {
		spreadPoints = (tick.Ask - tick.Bid) / info.Point
	}
	p.recordSpread(symbol, spreadPoints)

	snap := &domain.MarketSnapshot{
		Symbol:         symbol,
		Time:           now,
		Bid:            tick.Bid,
		Ask:            tick.Ask,
		Point:          info.Point,
		PipSize:        info.PipSize(),
		Digits:         info.Digits,
		SpreadPoints:   spreadPoints,
		SpreadP90:      p.spreadP90(symbol),
		ATR:            p.atrByTimeframe(ctx, symbol),
		TicksPerMinute: p.ticksPerMinute(symbol),
		KeyLevels:      p.keyLevels(symbol, (tick.Bid+tick.Ask)/2, info.PipSize()),
	}

	if loc, err := time.LoadLocation(p.cfg.Gate.Timezone); err == nil {
		snap.Session = domain.ActiveSession(now, loc)
	}

	if p.calendar != nil {
		before := time.Duration(p.cfg.Gate.NewsBeforeMin) * time.Minute
		after := time.Duration(p.cfg.Gate.NewsAfterMin) * time.Minute
		snap.NewsWindow, snap.NewsReason = p.calendar.NewsWindow(symbol, now, before, after)
	}

	if acct, err := p.broker.GetAccount(ctx); err == nil {
		snap.Equity = acct.Equity
		snap.FreeMargin = acct.FreeMargin
	} else {
		p.logger.Debug("account info unavailable for snapshot", zap.Error(err))
	}

	if positions, err := p.broker.GetPositions(ctx, symbol); err == nil {
		for _, pos := range positions {
			snap.OpenPositions = append(snap.OpenPositions, *pos)
		}
	}

	return snap, nil
}

func (p *Provider) spreadP90(symbol string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	spreads := p.spreads[symbol]
	// A handful of samples is not a distribution yet.
	if len(spreads) < 20 {
		return 0
	}
	return percentile(spreads, 90)
}

func (p *Provider) atrByTimeframe(ctx context.Context, symbol string) map[string]float64 {
	out := make(map[string]float64)
	for _, tf := range []string{"M5", "M15", "H1"} {
		candles, err := p.broker.GetCandles(ctx, symbol, tf, atrPeriod+1)
		if err != nil {
			continue
		}
		if atr := atrFromCandles(candles, atrPeriod); atr > 0 {
			out[tf] = atr
		}
	}
	return out
}

func (p *Provider) ticksPerMinute(symbol string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	times, ok := p.tickTimes[symbol]
	if !ok {
		return -1 // no stream for this symbol yet: unknown, not zero
	}

	// Prune here as well: a silent stream must read as a dead feed, not as
	// the rate of its last active window.
	cutoff := p.timeNow().Add(-tickRateWindow)
	valid := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	p.tickTimes[symbol] = valid
	return float64(len(valid)) / tickRateWindow.Minutes()
}

func (p *Provider) keyLevels(symbol string, price, pipSize float64) []domain.KeyLevel {
	configured := p.cfg.KeyLevels[symbol]
	if len(configured) == 0 || pipSize <= 0 {
		return nil
	}
	levels := make([]domain.KeyLevel, 0, len(configured))
	for _, kl := range configured {
		dist := (price - kl.Price) / pipSize
		if dist < 0 {
			dist = -dist
		}
		levels = append(levels, domain.KeyLevel{
			Name:         kl.Name,
			Price:        kl.Price,
			DistancePips: dist,
		})
	}
	return levels
}
