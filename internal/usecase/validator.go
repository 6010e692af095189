package usecase

import (
	"fmt"
	"math"
	"time"

	"github.com/vitos/trade_engine/internal/config"
	"github.com/vitos/trade_engine/internal/domain"
)

// Rejection explains why a setup was refused, with the numeric inputs that
// drove the decision.
type Rejection struct {
	Reason string
	Fields map[string]any
}

func (r *Rejection) Error() string { return r.Reason }

// SetupValidator applies the risk rules that turn an extracted intent into an
// executable one. Any rejection is terminal for the cycle.
type SetupValidator struct {
	state   domain.StateStore
	timeNow func() time.Time
}

func NewSetupValidator(state domain.StateStore) *SetupValidator {
	return &SetupValidator{state: state, timeNow: time.Now}
}

// Validate returns nil when the intent may proceed, otherwise a *Rejection.
func (v *SetupValidator) Validate(cfg config.Config, intent *domain.TradeIntent, snap *domain.MarketSnapshot) *Rejection {
	if intent.Direction != domain.SideLong && intent.Direction != domain.SideShort {
		return &Rejection{
			Reason: fmt.Sprintf("invalid direction %q", intent.Direction),
			Fields: map[string]any{"direction": string(intent.Direction)},
		}
	}

	if cfg.Validation.StrictBias && opposesBias(intent.Direction, intent.Bias) {
		return &Rejection{
			Reason: fmt.Sprintf("direction %s opposes higher-timeframe bias %q", intent.Direction, intent.Bias),
			Fields: map[string]any{"direction": string(intent.Direction), "bias": intent.Bias},
		}
	}

	if rr := intent.RewardRisk(); rr < cfg.Validation.MinRewardRisk {
		return &Rejection{
			Reason: fmt.Sprintf("reward:risk %.2f below minimum %.2f", rr, cfg.Validation.MinRewardRisk),
			Fields: map[string]any{
				"reward_risk": rr,
				"min":         cfg.Validation.MinRewardRisk,
				"entry":       intent.Entry,
				"stop":        intent.Stop,
				"tp2":         intent.TP2,
			},
		}
	}

	if snap != nil && cfg.Validation.MinKeyLevelDistPips > 0 {
		price := midPrice(snap)
		for _, lvl := range snap.KeyLevels {
			dist := lvl.DistancePips
			if dist == 0 && snap.PipSize > 0 {
				dist = math.Abs(price-lvl.Price) / snap.PipSize
			}
			if dist < cfg.Validation.MinKeyLevelDistPips {
				return &Rejection{
					Reason: fmt.Sprintf("price within %.1f pips of key level %s (min %.1f)",
						dist, lvl.Name, cfg.Validation.MinKeyLevelDistPips),
					Fields: map[string]any{
						"level":         lvl.Name,
						"level_price":   lvl.Price,
						"distance_pips": dist,
						"min_pips":      cfg.Validation.MinKeyLevelDistPips,
					},
				}
			}
		}
	}

	if rej := v.cooldownRejection(cfg, intent); rej != nil {
		return rej
	}

	return nil
}

// cooldownRejection blocks resubmission of an identical signature inside the
// cooldown window. A missing or corrupt state record reads as no prior trade.
func (v *SetupValidator) cooldownRejection(cfg config.Config, intent *domain.TradeIntent) *Rejection {
	state, err := v.state.Load()
	if err != nil || state.Sig == "" {
		return nil
	}

	sig := intent.Signature()
	if state.Sig != sig {
		return nil
	}

	elapsed := v.timeNow().Sub(time.Unix(int64(state.Time), 0))
	cooldown := time.Duration(cfg.Validation.CooldownMin) * time.Minute
	if elapsed < cooldown {
		return &Rejection{
			Reason: fmt.Sprintf("duplicate setup %s inside cooldown (%.0fs of %.0fs elapsed)",
				sig, elapsed.Seconds(), cooldown.Seconds()),
			Fields: map[string]any{
				"signature":    sig,
				"elapsed_sec":  elapsed.Seconds(),
				"cooldown_sec": cooldown.Seconds(),
			},
		}
	}
	return nil
}

func opposesBias(side domain.Side, bias string) bool {
	switch bias {
	case "bullish":
		return side == domain.SideShort
	case "bearish":
		return side == domain.SideLong
	default:
		return false
	}
}

func midPrice(snap *domain.MarketSnapshot) float64 {
	return (snap.Bid + snap.Ask) / 2
}
