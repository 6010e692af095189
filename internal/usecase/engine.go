package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/trade_engine/internal/config"
	"github.com/vitos/trade_engine/internal/domain"
	"go.uber.org/zap"
)

// CycleOutcome tells the caller how a decision cycle ended.
type CycleOutcome string

const (
	OutcomeBlocked   CycleOutcome = "blocked"
	OutcomeNoSetup   CycleOutcome = "no-setup"
	OutcomeRejected  CycleOutcome = "rejected"
	OutcomeSubmitted CycleOutcome = "submitted"
	OutcomeFailed    CycleOutcome = "failed"
)

// Engine drives the setup -> gate -> validate -> size -> submit pipeline.
// One cycle per invocation; the lifecycle sweep runs on its own cadence and
// may overlap.
type Engine struct {
	cfg       *config.Config
	broker    domain.Broker
	snapshots domain.SnapshotProvider
	setups    domain.SetupSource
	audit     domain.AuditSink
	logger    *zap.Logger

	gate      *PreconditionGate
	extractor *SetupExtractor
	validator *SetupValidator
	sizer     *PositionSizer
	submitter *OrderSubmitter
	lifecycle *LifecycleManager

	mu          sync.RWMutex
	lastOutcome CycleOutcome
	lastReasons []string
	lastCycleAt time.Time
}

func NewEngine(
	cfg *config.Config,
	broker domain.Broker,
	snapshots domain.SnapshotProvider,
	setups domain.SetupSource,
	state domain.StateStore,
	audit domain.AuditSink,
	orders domain.OrderRepository,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		cfg:       cfg,
		broker:    broker,
		snapshots: snapshots,
		setups:    setups,
		audit:     audit,
		logger:    logger,
		gate:      NewPreconditionGate(logger),
		extractor: NewSetupExtractor(cfg.Validation.MinSetupChars),
		validator: NewSetupValidator(state),
		sizer:     NewPositionSizer(broker, logger),
		submitter: NewOrderSubmitter(broker, state, audit, orders, logger),
		lifecycle: NewLifecycleManager(broker, snapshots, audit, logger),
	}
}

// RunCycle executes one full decision cycle for a symbol. The configuration
// is copied by value up front so concurrent edits never touch this cycle.
func (e *Engine) RunCycle(ctx context.Context, symbol string) (CycleOutcome, error) {
	cfg := e.cfg.Clone()
	cycleID := uuid.NewString()
	log := e.logger.With(zap.String("symbol", symbol), zap.String("cycle", cycleID))

	if err := e.broker.EnsureConnected(ctx); err != nil {
		e.setStatus(OutcomeFailed, []string{"broker unavailable: " + err.Error()})
		return OutcomeFailed, err
	}

	snap, err := e.snapshots.Snapshot(ctx, symbol)
	if err != nil {
		// The gate fails open on missing data; run-level checks still apply.
		log.Warn("snapshot unavailable", zap.Error(err))
		snap = nil
	}

	verdict := e.gate.Evaluate(cfg, snap)
	if !verdict.Allowed {
		e.auditStage(cycleID, "precheck-fail", map[string]any{"symbol": symbol}, verdict.Reasons)
		e.setStatus(OutcomeBlocked, verdict.Reasons)
		log.Info("cycle blocked by gate", zap.Strings("reasons", verdict.Reasons))
		return OutcomeBlocked, nil
	}
	e.auditStage(cycleID, "pre-check", map[string]any{"symbol": symbol}, nil)

	if err := ctx.Err(); err != nil {
		return OutcomeFailed, err
	}

	payload, err := e.setups.Latest(ctx, symbol)
	if err != nil {
		e.setStatus(OutcomeNoSetup, []string{"setup source: " + err.Error()})
		return OutcomeNoSetup, err
	}

	intent, err := e.extractor.Extract(symbol, payload)
	if err != nil {
		if errors.Is(err, ErrSetupNotReady) {
			e.setStatus(OutcomeNoSetup, []string{"setup not yet available"})
			return OutcomeNoSetup, nil
		}
		e.auditStage(cycleID, "extract-fail", map[string]any{"symbol": symbol, "error": err.Error()}, nil)
		e.setStatus(OutcomeRejected, []string{err.Error()})
		return OutcomeRejected, nil
	}

	if rej := e.validator.Validate(cfg, intent, snap); rej != nil {
		fields := map[string]any{"symbol": symbol}
		for k, v := range rej.Fields {
			fields[k] = v
		}
		e.auditStage(cycleID, "validate-fail", fields, []string{rej.Reason})
		e.setStatus(OutcomeRejected, []string{rej.Reason})
		log.Info("setup rejected", zap.String("reason", rej.Reason))
		return OutcomeRejected, nil
	}

	if err := ctx.Err(); err != nil {
		return OutcomeFailed, err
	}

	// Sizing and submission need a current price; without a snapshot there is
	// no market-vs-pending decision to make, so the cycle ends here.
	if snap == nil {
		err := errors.New("no market snapshot: cannot price submission")
		e.auditStage(cycleID, "send-failed", map[string]any{"symbol": symbol, "error": err.Error()}, nil)
		e.setStatus(OutcomeFailed, []string{err.Error()})
		log.Warn("cycle aborted before submission", zap.Error(err))
		return OutcomeFailed, err
	}

	info, err := e.broker.GetSymbolInfo(ctx, symbol)
	if err != nil {
		e.setStatus(OutcomeFailed, []string{"symbol info: " + err.Error()})
		return OutcomeFailed, err
	}
	equity := 0.0
	if snap != nil {
		equity = snap.Equity
	}
	if equity == 0 {
		if acct, err := e.broker.GetAccount(ctx); err == nil {
			equity = acct.Equity
		}
	}

	sizing, err := e.sizer.Size(ctx, cfg, intent, info, equity)
	if err != nil {
		e.auditStage(cycleID, "sizing-fail", map[string]any{
			"symbol": symbol,
			"error":  err.Error(),
			"equity": equity,
		}, nil)
		e.setStatus(OutcomeRejected, []string{err.Error()})
		log.Info("sizing aborted", zap.Error(err))
		return OutcomeRejected, nil
	}

	report, err := e.submitter.Submit(ctx, cfg, cycleID, intent, sizing, snap, info)
	if err != nil {
		e.setStatus(OutcomeFailed, legErrors(report.Legs))
		return OutcomeFailed, err
	}

	e.setStatus(OutcomeSubmitted, nil)
	log.Info("setup submitted",
		zap.String("signature", report.Signature),
		zap.String("action", string(report.Action)),
		zap.Bool("dry_run", report.DryRun))
	return OutcomeSubmitted, nil
}

// ManagePositions runs one lifecycle sweep across all configured symbols.
func (e *Engine) ManagePositions(ctx context.Context) {
	cfg := e.cfg.Clone()
	if err := e.broker.EnsureConnected(ctx); err != nil {
		e.logger.Warn("lifecycle sweep skipped, broker unavailable", zap.Error(err))
		return
	}
	for _, symbol := range cfg.Symbols {
		e.lifecycle.ManageSymbol(ctx, cfg, symbol)
	}
}

// LastStatus returns the most recent outcome and reasons for display.
func (e *Engine) LastStatus() (CycleOutcome, []string, time.Time) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	reasons := make([]string, len(e.lastReasons))
	copy(reasons, e.lastReasons)
	return e.lastOutcome, reasons, e.lastCycleAt
}

func (e *Engine) setStatus(outcome CycleOutcome, reasons []string) {
	e.mu.Lock()
	e.lastOutcome = outcome
	e.lastReasons = reasons
	e.lastCycleAt = time.Now()
	e.mu.Unlock()
}

func (e *Engine) auditStage(cycleID, stage string, payload map[string]any, reasons []string) {
	if e.audit == nil {
		return
	}
	err := e.audit.Append(domain.DecisionLogEntry{
		Time:    time.Now(),
		Stage:   stage,
		CycleID: cycleID,
		Payload: payload,
		Reasons: reasons,
	})
	if err != nil {
		e.logger.Warn("audit append failed", zap.String("stage", stage), zap.Error(err))
	}
}
