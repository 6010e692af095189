package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/vitos/trade_engine/internal/config"
	"github.com/vitos/trade_engine/internal/domain"
	"go.uber.org/zap"
)

// Fill-mode preference per order class. Pending orders lead with RETURN since
// most servers only book resting orders in return mode; immediate orders try
// the strict modes first.
var (
	marketFillModes  = []domain.FillMode{domain.FillIOC, domain.FillFOK, domain.FillReturn}
	pendingFillModes = []domain.FillMode{domain.FillReturn, domain.FillIOC, domain.FillFOK}
)

// LegResult is the outcome of one leg after the fallback loop.
type LegResult struct {
	Request  *domain.OrderRequest
	Result   *domain.OrderResult
	Err      error
	Attempts int
}

// SubmissionReport summarizes a full two-leg submission.
type SubmissionReport struct {
	Signature string
	Action    domain.OrderAction
	Kind      domain.PendingKind
	Legs      []LegResult
	Persisted bool
	DryRun    bool
}

// Failed reports whether any leg ended in a hard failure.
func (r *SubmissionReport) Failed() bool {
	for _, leg := range r.Legs {
		if leg.Err != nil {
			return true
		}
	}
	return false
}

// OrderSubmitter builds both legs and gets them accepted by the broker
// despite fill-mode incompatibility.
type OrderSubmitter struct {
	broker  domain.Broker
	state   domain.StateStore
	audit   domain.AuditSink
	orders  domain.OrderRepository
	logger  *zap.Logger
	sleep   func(time.Duration) // for testing
	timeNow func() time.Time
}

func NewOrderSubmitter(broker domain.Broker, state domain.StateStore, audit domain.AuditSink, orders domain.OrderRepository, logger *zap.Logger) *OrderSubmitter {
	return &OrderSubmitter{
		broker:  broker,
		state:   state,
		audit:   audit,
		orders:  orders,
		logger:  logger,
		sleep:   time.Sleep,
		timeNow: time.Now,
	}
}

// Submit executes the intent as two legs. The signature is persisted only
// when no leg hard-failed, so a failed setup is retryable next cycle.
// In dry-run mode the broker call is skipped but everything else, including
// the signature persist, runs identically.
func (s *OrderSubmitter) Submit(ctx context.Context, cfg config.Config, cycleID string, intent *domain.TradeIntent, sizing *SizingResult, snap *domain.MarketSnapshot, info *domain.SymbolInfo) (*SubmissionReport, error) {
	sig := intent.Signature()
	action, kind := s.decideAction(cfg, intent, snap)

	report := &SubmissionReport{
		Signature: sig,
		Action:    action,
		Kind:      kind,
		DryRun:    cfg.Engine.DryRun,
	}

	legs := s.buildLegs(cfg, intent, sizing, snap, info, action, kind, sig)

	s.auditEntry(cycleID, "send", map[string]any{
		"signature": sig,
		"action":    string(action),
		"kind":      string(kind),
		"volume":    sizing.TotalVolume,
		"tp1_vol":   sizing.TP1Volume,
		"tp2_vol":   sizing.TP2Volume,
		"dry_run":   cfg.Engine.DryRun,
	}, nil)

	// Once submission starts, legs run to completion even if the cycle was
	// cancelled, to avoid indeterminate order state.
	sendCtx := context.WithoutCancel(ctx)
	for _, req := range legs {
		report.Legs = append(report.Legs, s.submitLeg(sendCtx, cfg, cycleID, req))
	}

	if report.Failed() {
		s.auditEntry(cycleID, "send-failed", map[string]any{
			"signature": sig,
			"errors":    legErrors(report.Legs),
		}, nil)
		return report, fmt.Errorf("submission failed for %s", sig)
	}

	if err := s.state.Store(domain.TradeState{
		Sig:  sig,
		Time: float64(s.timeNow().Unix()),
	}); err != nil {
		s.logger.Error("failed to persist trade state", zap.Error(err))
	} else {
		report.Persisted = true
	}

	s.recordOrders(ctx, report)
	return report, nil
}

// decideAction picks market vs pending from the point distance between the
// current price and the intended entry. Near-price setups inside the
// deviation tolerance never wait as pending orders.
func (s *OrderSubmitter) decideAction(cfg config.Config, intent *domain.TradeIntent, snap *domain.MarketSnapshot) (domain.OrderAction, domain.PendingKind) {
	current := snap.Ask
	if intent.Direction == domain.SideShort {
		current = snap.Bid
	}

	distPoints := math.Abs(intent.Entry-current) / snap.Point

	if distPoints <= float64(cfg.Orders.DeviationPoints) {
		return domain.ActionMarket, ""
	}

	threshold := cfg.Orders.PendingThresholdPoints
	if cfg.Orders.DynamicPending {
		if atr := snap.ATRFor(cfg.Gate.ATRTimeframe); atr > 0 && snap.Point > 0 {
			threshold += (atr / snap.Point) * cfg.Orders.PendingATRFraction
		}
	}

	if distPoints < threshold {
		return domain.ActionMarket, ""
	}

	// Pending: kind follows the price relation. A long entry below market
	// rests as a limit, above market as a stop; shorts mirror.
	if intent.Direction == domain.SideLong {
		if intent.Entry < current {
			return domain.ActionPending, domain.PendingLimit
		}
		return domain.ActionPending, domain.PendingStop
	}
	if intent.Entry > current {
		return domain.ActionPending, domain.PendingLimit
	}
	return domain.ActionPending, domain.PendingStop
}

func (s *OrderSubmitter) buildLegs(cfg config.Config, intent *domain.TradeIntent, sizing *SizingResult, snap *domain.MarketSnapshot, info *domain.SymbolInfo, action domain.OrderAction, kind domain.PendingKind, sig string) []*domain.OrderRequest {
	price := intent.Entry
	if action == domain.ActionMarket {
		price = snap.Ask
		if intent.Direction == domain.SideShort {
			price = snap.Bid
		}
	}

	var expiry time.Time
	if action == domain.ActionPending {
		expiry = s.timeNow().Add(time.Duration(cfg.Orders.PendingExpiryMin) * time.Minute)
	}

	tag := sig
	if len(tag) > 8 {
		tag = tag[:8]
	}

	leg := func(volume, target float64, suffix string) *domain.OrderRequest {
		return &domain.OrderRequest{
			Action:     action,
			Kind:       kind,
			Symbol:     intent.Symbol,
			Side:       intent.Direction,
			Volume:     volume,
			Price:      price,
			StopLoss:   intent.Stop,
			TakeProfit: target,
			Deviation:  cfg.Orders.DeviationPoints,
			Comment:    fmt.Sprintf("eng-%s-%s", tag, suffix),
			Expiry:     expiry,
		}
	}

	return []*domain.OrderRequest{
		leg(sizing.TP1Volume, intent.TP1, "tp1"),
		leg(sizing.TP2Volume, intent.TP2, "tp2"),
	}
}

// submitLeg walks the fill-mode preference list for the leg's order class,
// retrying each mode a fixed number of times with a short delay, until one
// attempt is accepted or all modes are exhausted.
func (s *OrderSubmitter) submitLeg(ctx context.Context, cfg config.Config, cycleID string, req *domain.OrderRequest) LegResult {
	leg := LegResult{Request: req}

	if cfg.Engine.DryRun {
		s.auditEntry(cycleID, "send-attempt", map[string]any{
			"comment": req.Comment,
			"dry_run": true,
		}, nil)
		leg.Result = &domain.OrderResult{RetMessage: "dry-run"}
		return leg
	}

	modes := marketFillModes
	if req.Action == domain.ActionPending {
		modes = pendingFillModes
	}

	retries := cfg.Orders.RetriesPerFillMode
	if retries < 1 {
		retries = 1
	}
	delay := time.Duration(cfg.Orders.RetryDelayMs) * time.Millisecond

	var lastErr error
	for _, mode := range modes {
		for attempt := 1; attempt <= retries; attempt++ {
			leg.Attempts++
			req.FillMode = mode

			result, err := s.broker.SubmitOrder(ctx, req)
			s.auditEntry(cycleID, "send-attempt", map[string]any{
				"comment":   req.Comment,
				"fill_mode": string(mode),
				"attempt":   leg.Attempts,
				"ok":        err == nil && (result == nil || !result.UnsupportedFill),
			}, nil)

			if err == nil && result != nil && !result.UnsupportedFill {
				leg.Result = result
				return leg
			}

			if result != nil && result.UnsupportedFill {
				// No point retrying the same mode the server refuses.
				lastErr = fmt.Errorf("fill mode %s unsupported: %s", mode, result.RetMessage)
				break
			}
			if err != nil {
				lastErr = err
			}
			if attempt < retries {
				s.sleep(delay)
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("all fill modes exhausted for %s", req.Comment)
	}
	leg.Err = lastErr
	s.logger.Error("leg submission exhausted",
		zap.String("comment", req.Comment),
		zap.Int("attempts", leg.Attempts),
		zap.Error(lastErr))
	return leg
}

func (s *OrderSubmitter) recordOrders(ctx context.Context, report *SubmissionReport) {
	if s.orders == nil {
		return
	}
	for _, leg := range report.Legs {
		if leg.Err != nil {
			continue
		}
		order := &domain.ExecutedOrder{
			ID:         fmt.Sprintf("%s-%s", report.Signature, leg.Request.Comment),
			Symbol:     leg.Request.Symbol,
			Side:       leg.Request.Side,
			Action:     leg.Request.Action,
			Volume:     leg.Request.Volume,
			Price:      leg.Request.Price,
			StopLoss:   leg.Request.StopLoss,
			TakeProfit: leg.Request.TakeProfit,
			FillMode:   leg.Request.FillMode,
			Comment:    leg.Request.Comment,
			DryRun:     report.DryRun,
			CreatedAt:  s.timeNow(),
		}
		if leg.Result != nil {
			order.Ticket = leg.Result.Ticket
		}
		if err := s.orders.SaveOrder(ctx, order); err != nil {
			s.logger.Warn("failed to record order", zap.String("comment", order.Comment), zap.Error(err))
		}
	}
}

func (s *OrderSubmitter) auditEntry(cycleID, stage string, payload map[string]any, reasons []string) {
	if s.audit == nil {
		return
	}
	entry := domain.DecisionLogEntry{
		Time:    s.timeNow(),
		Stage:   stage,
		CycleID: cycleID,
		Payload: payload,
		Reasons: reasons,
	}
	if err := s.audit.Append(entry); err != nil {
		s.logger.Warn("audit append failed", zap.String("stage", stage), zap.Error(err))
	}
}

func legErrors(legs []LegResult) []string {
	var out []string
	for _, leg := range legs {
		if leg.Err != nil {
			out = append(out, leg.Err.Error())
		}
	}
	return out
}
