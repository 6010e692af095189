package usecase

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/vitos/trade_engine/internal/config"
	"github.com/vitos/trade_engine/internal/domain"
	"go.uber.org/zap"
)

// engineTagPrefix marks positions opened by this engine; only those are
// managed.
const engineTagPrefix = "eng-"

// LifecycleManager maintains risk discipline on open positions: break-even
// shifts and ATR trailing. It runs on its own cadence, may overlap the
// decision pipeline, and is an idempotent no-op when no condition is met.
type LifecycleManager struct {
	broker    domain.Broker
	snapshots domain.SnapshotProvider
	audit     domain.AuditSink
	logger    *zap.Logger
	timeNow   func() time.Time
}

func NewLifecycleManager(broker domain.Broker, snapshots domain.SnapshotProvider, audit domain.AuditSink, logger *zap.Logger) *LifecycleManager {
	return &LifecycleManager{
		broker:    broker,
		snapshots: snapshots,
		audit:     audit,
		logger:    logger,
		timeNow:   time.Now,
	}
}

// ManageSymbol inspects every engine-tagged position on the symbol and
// applies at most one stop modification per position. Unexpected faults and
// stale data skip the position rather than abort the sweep.
func (m *LifecycleManager) ManageSymbol(ctx context.Context, cfg config.Config, symbol string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("lifecycle fault, skipping sweep", zap.String("symbol", symbol), zap.Any("panic", r))
		}
	}()

	positions, err := m.broker.GetPositions(ctx, symbol)
	if err != nil || len(positions) == 0 {
		return
	}

	snap, err := m.snapshots.Snapshot(ctx, symbol)
	if err != nil || snap == nil || snap.Point <= 0 {
		// Stale or missing snapshot: skip silently, next sweep retries.
		return
	}

	for _, pos := range positions {
		if !strings.HasPrefix(pos.Comment, engineTagPrefix) {
			continue
		}
		m.managePosition(ctx, cfg, snap, pos)
	}
}

func (m *LifecycleManager) managePosition(ctx context.Context, cfg config.Config, snap *domain.MarketSnapshot, pos *domain.PositionInfo) {
	current := snap.Bid
	if pos.Side == domain.SideShort {
		current = snap.Ask
	}

	newStop := pos.StopLoss
	reason := ""

	if cfg.Lifecycle.BreakEven {
		if be, ok := m.breakEvenStop(ctx, cfg, snap, pos, current); ok && moreProtective(pos.Side, be, newStop) {
			newStop = be
			reason = "break-even"
		}
	}

	if cfg.Lifecycle.TrailingATRMult > 0 {
		if trail, ok := trailingStop(cfg, snap, pos, current); ok && moreProtective(pos.Side, trail, newStop) {
			newStop = trail
			reason = "atr-trail"
		}
	}

	if reason == "" || newStop == pos.StopLoss {
		return
	}

	// One attempt only; a failure is logged and the next sweep tries again.
	err := m.broker.ModifyPosition(ctx, pos.Ticket, newStop, pos.TakeProfit)
	m.auditEntry("position-modify", map[string]any{
		"ticket":   pos.Ticket,
		"symbol":   pos.Symbol,
		"reason":   reason,
		"old_stop": pos.StopLoss,
		"new_stop": newStop,
		"ok":       err == nil,
	})
	if err != nil {
		m.logger.Warn("stop modification failed",
			zap.Int64("ticket", pos.Ticket),
			zap.String("reason", reason),
			zap.Error(err))
		return
	}
	m.logger.Info("stop moved",
		zap.Int64("ticket", pos.Ticket),
		zap.String("reason", reason),
		zap.Float64("old", pos.StopLoss),
		zap.Float64("new", newStop))
}

// breakEvenStop computes the break-even target when either the tp1 leg has
// already closed (confirmed in recent deal history by tag) or price has
// travelled at least half the original stop distance in our favor.
func (m *LifecycleManager) breakEvenStop(ctx context.Context, cfg config.Config, snap *domain.MarketSnapshot, pos *domain.PositionInfo, current float64) (float64, bool) {
	buffer := cfg.Lifecycle.BreakEvenBufferPts * snap.Point

	var target float64
	if pos.Side == domain.SideLong {
		target = pos.EntryPrice + buffer
	} else {
		target = pos.EntryPrice - buffer
	}

	// Already at or beyond break-even: nothing to do.
	if !moreProtective(pos.Side, target, pos.StopLoss) {
		return 0, false
	}

	if m.tp1Closed(ctx, pos) {
		return target, true
	}

	stopDist := math.Abs(pos.EntryPrice - pos.StopLoss)
	if stopDist <= 0 {
		return 0, false
	}
	var progress float64
	if pos.Side == domain.SideLong {
		progress = current - pos.EntryPrice
	} else {
		progress = pos.EntryPrice - current
	}
	if progress >= stopDist/2 {
		return target, true
	}
	return 0, false
}

// tp1Closed checks recent deal history for a closed first-target leg sharing
// this position's tag family.
func (m *LifecycleManager) tp1Closed(ctx context.Context, pos *domain.PositionInfo) bool {
	base := tagBase(pos.Comment)
	if base == "" {
		return false
	}
	since := m.timeNow().Add(-24 * time.Hour)
	deals, err := m.broker.GetRecentDeals(ctx, pos.Symbol, since)
	if err != nil {
		return false
	}
	for _, d := range deals {
		if strings.HasPrefix(d.Comment, base) && strings.HasSuffix(d.Comment, "-tp1") {
			return true
		}
	}
	return false
}

// trailingStop computes the ATR-derived candidate stop. Monotonic tightening
// is enforced by the caller via moreProtective.
func trailingStop(cfg config.Config, snap *domain.MarketSnapshot, pos *domain.PositionInfo, current float64) (float64, bool) {
	atr := snap.ATRFor(cfg.Lifecycle.ATRTimeframe)
	if atr <= 0 {
		return 0, false
	}
	distance := atr * cfg.Lifecycle.TrailingATRMult
	if pos.Side == domain.SideLong {
		return current - distance, true
	}
	return current + distance, true
}

// moreProtective reports whether candidate tightens the stop relative to
// existing. A zero existing stop is always improved by a real one.
func moreProtective(side domain.Side, candidate, existing float64) bool {
	if candidate <= 0 {
		return false
	}
	if existing <= 0 {
		return true
	}
	if side == domain.SideLong {
		return candidate > existing
	}
	return candidate < existing
}

// tagBase extracts "eng-<sig8>" from an "eng-<sig8>-tpN" comment.
func tagBase(comment string) string {
	if !strings.HasPrefix(comment, engineTagPrefix) {
		return ""
	}
	idx := strings.LastIndex(comment, "-tp")
	if idx <= 0 {
		return ""
	}
	return comment[:idx]
}

func (m *LifecycleManager) auditEntry(stage string, payload map[string]any) {
	if m.audit == nil {
		return
	}
	err := m.audit.Append(domain.DecisionLogEntry{
		Time:    m.timeNow(),
		Stage:   stage,
		Payload: payload,
	})
	if err != nil {
		m.logger.Warn("audit append failed", zap.String("stage", stage), zap.Error(err))
	}
}
