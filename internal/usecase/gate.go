package usecase

import (
	"fmt"
	"time"

	"github.com/vitos/trade_engine/internal/config"
	"github.com/vitos/trade_engine/internal/domain"
	"go.uber.org/zap"
)

// Verdict is the gate's answer for one cycle.
type Verdict struct {
	Allowed bool
	Reasons []string
}

// PreconditionGate decides whether the engine may act at all this cycle.
//
// Policy: a violated threshold blocks (fail-closed); a metric that simply
// cannot be evaluated is skipped (fail-open); an unexpected fault inside the
// evaluation itself allows the cycle through and is only logged. The last
// branch mirrors the long-standing production behavior and is kept
// deliberately, see DESIGN.md.
type PreconditionGate struct {
	logger  *zap.Logger
	timeNow func() time.Time // for testing
}

func NewPreconditionGate(logger *zap.Logger) *PreconditionGate {
	return &PreconditionGate{
		logger:  logger,
		timeNow: time.Now,
	}
}

// Evaluate runs every check and collects all triggered reasons. Recovers from
// unexpected panics with an allow verdict.
func (g *PreconditionGate) Evaluate(cfg config.Config, snap *domain.MarketSnapshot) (verdict Verdict) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("gate evaluation fault, failing open", zap.Any("panic", r))
			verdict = Verdict{Allowed: true}
		}
	}()

	var reasons []string
	reasons = append(reasons, g.runLevelReasons(cfg)...)
	if snap != nil {
		reasons = append(reasons, g.tradeLevelReasons(cfg, snap)...)
	}

	return Verdict{Allowed: len(reasons) == 0, Reasons: reasons}
}

// runLevelReasons covers the checks that need no market snapshot.
func (g *PreconditionGate) runLevelReasons(cfg config.Config) []string {
	loc, err := time.LoadLocation(cfg.Gate.Timezone)
	if err != nil {
		// Unknown timezone: session and weekend checks cannot be evaluated.
		g.logger.Warn("unknown gate timezone, skipping time checks", zap.String("tz", cfg.Gate.Timezone))
		return nil
	}

	now := g.timeNow()
	var reasons []string

	if cfg.Gate.BlockWeekend && domain.IsWeekend(now, loc) {
		reasons = append(reasons, "weekend: trading disabled")
	}

	if cfg.Gate.SessionCheck {
		session := domain.ActiveSession(now, loc)
		if !sessionAllowed(cfg, session) {
			reasons = append(reasons, fmt.Sprintf("outside allowed session (active=%q)", session))
		}
	}

	return reasons
}

func sessionAllowed(cfg config.Config, session string) bool {
	switch session {
	case domain.SessionAsia:
		return cfg.Gate.AsiaSession
	case domain.SessionLondon:
		return cfg.Gate.LondonSession
	case domain.SessionNewYork:
		return cfg.Gate.NewYorkSession
	default:
		return false
	}
}

// tradeLevelReasons covers the checks that need a fresh snapshot. Each check
// skips silently when its input is missing.
func (g *PreconditionGate) tradeLevelReasons(cfg config.Config, snap *domain.MarketSnapshot) []string {
	var reasons []string

	if cfg.Gate.SpreadCheck && snap.SpreadP90 > 0 {
		factor := cfg.Gate.SpreadFactor
		if factor < 1.0 {
			factor = 1.0
		}
		limit := snap.SpreadP90 * factor
		if snap.SpreadPoints > limit {
			reasons = append(reasons, fmt.Sprintf(
				"spread too high: %.1f pts > p90 %.1f x %.2f", snap.SpreadPoints, snap.SpreadP90, factor))
		}
	}

	if cfg.Gate.ATRCheck && snap.PipSize > 0 {
		atr := snap.ATRFor(cfg.Gate.ATRTimeframe)
		if atr > 0 {
			atrPips := atr / snap.PipSize
			if atrPips < cfg.Gate.MinATRPips {
				reasons = append(reasons, fmt.Sprintf(
					"ATR too low: %.1f pips < min %.1f", atrPips, cfg.Gate.MinATRPips))
			}
		}
	}

	if cfg.Gate.LiquidityCheck && snap.TicksPerMinute >= 0 {
		if snap.TicksPerMinute < cfg.Gate.MinTicksPerMinute {
			reasons = append(reasons, fmt.Sprintf(
				"liquidity too low: %.1f ticks/min < min %.1f", snap.TicksPerMinute, cfg.Gate.MinTicksPerMinute))
		}
	}

	if cfg.Gate.NewsCheck && snap.NewsWindow {
		reason := snap.NewsReason
		if reason == "" {
			reason = "news blackout window"
		}
		reasons = append(reasons, reason)
	}

	return reasons
}
