package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/vitos/trade_engine/internal/config"
	"github.com/vitos/trade_engine/internal/domain"
	"go.uber.org/zap"
)

// SizingResult carries the broker-legal volumes for the two legs.
type SizingResult struct {
	TotalVolume float64
	TP1Volume   float64
	TP2Volume   float64
	RiskAmount  float64
}

// ErrLegBelowMinimum aborts the submission when the split would leave a leg
// under the broker minimum. Silent dropping of one leg is not allowed.
var ErrLegBelowMinimum = errors.New("split leg below broker minimum volume")

// PositionSizer converts risk configuration into tradable volumes.
type PositionSizer struct {
	broker domain.Broker
	logger *zap.Logger
}

func NewPositionSizer(broker domain.Broker, logger *zap.Logger) *PositionSizer {
	return &PositionSizer{broker: broker, logger: logger}
}

// Size computes the total and split volumes for the intent. Equity comes from
// the snapshot so the whole cycle sees one consistent account state.
func (s *PositionSizer) Size(ctx context.Context, cfg config.Config, intent *domain.TradeIntent, info *domain.SymbolInfo, equity float64) (*SizingResult, error) {
	var total, riskAmount float64

	switch cfg.Sizing.Mode {
	case "lots":
		total = cfg.Sizing.FixedLots
	case "percent-equity":
		riskAmount = equity * cfg.Sizing.RiskPercent / 100
		v, err := s.volumeForRisk(ctx, intent, info, riskAmount)
		if err != nil {
			return nil, err
		}
		total = v
	case "money":
		riskAmount = cfg.Sizing.RiskMoney
		v, err := s.volumeForRisk(ctx, intent, info, riskAmount)
		if err != nil {
			return nil, err
		}
		total = v
	default:
		return nil, fmt.Errorf("unknown sizing mode %q", cfg.Sizing.Mode)
	}

	total = snapVolume(total, info.VolumeStep)
	if total < info.VolumeMin {
		return nil, fmt.Errorf("total volume %.4f below broker minimum %.4f", total, info.VolumeMin)
	}
	if total > info.VolumeMax {
		total = info.VolumeMax
	}

	tp1 := snapVolume(total*cfg.Sizing.SplitTP1Pct/100, info.VolumeStep)
	tp2 := snapVolume(total-tp1, info.VolumeStep)
	if tp1 < info.VolumeMin || tp2 < info.VolumeMin {
		return nil, fmt.Errorf("%w: total=%.4f tp1=%.4f tp2=%.4f min=%.4f",
			ErrLegBelowMinimum, total, tp1, tp2, info.VolumeMin)
	}

	return &SizingResult{
		TotalVolume: total,
		TP1Volume:   tp1,
		TP2Volume:   tp2,
		RiskAmount:  riskAmount,
	}, nil
}

// volumeForRisk divides the risk amount by the loss a one-lot position takes
// over the stop distance.
func (s *PositionSizer) volumeForRisk(ctx context.Context, intent *domain.TradeIntent, info *domain.SymbolInfo, riskAmount float64) (float64, error) {
	if riskAmount <= 0 {
		return 0, fmt.Errorf("non-positive risk amount %.2f", riskAmount)
	}
	stopPoints := math.Abs(intent.Entry-intent.Stop) / info.Point
	if stopPoints <= 0 {
		return 0, fmt.Errorf("degenerate stop distance (entry=%v stop=%v)", intent.Entry, intent.Stop)
	}

	vpp := s.valuePerPoint(ctx, intent, info)
	if vpp <= 0 {
		return 0, fmt.Errorf("cannot determine point value for %s", intent.Symbol)
	}

	return riskAmount / (stopPoints * vpp), nil
}

// valuePerPoint resolves the account-currency value of one point per lot.
// Preference order: tick economics from symbol metadata, then a broker-side
// profit calculation over a one-point move, then the contract-size
// approximation.
func (s *PositionSizer) valuePerPoint(ctx context.Context, intent *domain.TradeIntent, info *domain.SymbolInfo) float64 {
	if info.TickValue > 0 && info.TickSize > 0 {
		return info.TickValue * info.Point / info.TickSize
	}

	mid := intent.Entry
	profit, err := s.broker.CalcProfit(ctx, intent.Symbol, domain.SideLong, 1.0, mid, mid+info.Point)
	if err == nil && profit > 0 {
		return profit
	}
	if err != nil {
		s.logger.Debug("profit calc fallback failed", zap.String("symbol", intent.Symbol), zap.Error(err))
	}

	if info.ContractSize > 0 {
		return info.ContractSize * info.Point
	}
	return 0
}

// snapVolume rounds to the nearest volume step.
func snapVolume(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	snapped := math.Round(v/step) * step
	// Clean up float drift so 0.30000000000000004 compares equal to 0.3.
	return math.Round(snapped*1e8) / 1e8
}
