package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/trade_engine/internal/config"
	"github.com/vitos/trade_engine/internal/domain"
	"github.com/vitos/trade_engine/internal/usecase"
	"go.uber.org/zap"
)

type engineFixture struct {
	broker *FakeBroker
	snaps  *FakeSnapshots
	setups *FakeSetups
	state  *FakeStateStore
	audit  *FakeAudit
	engine *usecase.Engine
}

func newEngineFixture(cfg config.Config) *engineFixture {
	f := &engineFixture{
		broker: NewFakeBroker(),
		snaps:  &FakeSnapshots{Snap: healthySnapshot()},
		setups: &FakeSetups{},
		state:  &FakeStateStore{},
		audit:  &FakeAudit{},
	}
	f.setups.Payload = domain.SetupPayload{
		Structured: &domain.Setup{
			Direction:  "long",
			Entry:      1.08420, // at the ask: market order
			Stop:       1.07920,
			TP1:        1.08920,
			TP2:        1.09420,
			Bias:       "bullish",
			Sufficient: true,
		},
	}
	f.engine = usecase.NewEngine(&cfg, f.broker, f.snaps, f.setups, f.state, f.audit, &FakeOrderRepo{}, zap.NewNop())
	return f
}

func TestEngine_FullPipelineSubmits(t *testing.T) {
	f := newEngineFixture(testConfig())

	outcome, err := f.engine.RunCycle(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeSubmitted, outcome)
	assert.Equal(t, 2, f.broker.SubmittedCount())
	assert.NotEmpty(t, f.state.State.Sig)

	stages := f.audit.Stages()
	assert.Contains(t, stages, "pre-check")
	assert.Contains(t, stages, "send")
	assert.Contains(t, stages, "send-attempt")
}

func TestEngine_BlockedBySpreadShortCircuits(t *testing.T) {
	f := newEngineFixture(testConfig())
	f.snaps.Snap.SpreadPoints = 40
	f.snaps.Snap.SpreadP90 = 20

	outcome, err := f.engine.RunCycle(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeBlocked, outcome)
	assert.Zero(t, f.broker.SubmittedCount(), "no sizing or submission after a gate block")

	stages := f.audit.Stages()
	assert.Contains(t, stages, "precheck-fail")
	assert.NotContains(t, stages, "send")

	_, reasons, _ := f.engine.LastStatus()
	require.NotEmpty(t, reasons)
	assert.Contains(t, reasons[0], "spread")
}

func TestEngine_IdempotencyAcrossCycles(t *testing.T) {
	f := newEngineFixture(testConfig())

	outcome, err := f.engine.RunCycle(context.Background(), "EURUSD")
	require.NoError(t, err)
	require.Equal(t, usecase.OutcomeSubmitted, outcome)
	require.Equal(t, 2, f.broker.SubmittedCount())

	// Same setup again inside the cooldown: exactly one submission total.
	outcome, err = f.engine.RunCycle(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeRejected, outcome)
	assert.Equal(t, 2, f.broker.SubmittedCount())

	// Simulate cooldown expiry: the same signature may trade again.
	f.state.State.Time -= 3600
	outcome, err = f.engine.RunCycle(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeSubmitted, outcome)
	assert.Equal(t, 4, f.broker.SubmittedCount())
}

func TestEngine_FailedLegIsRetryableNextCycle(t *testing.T) {
	f := newEngineFixture(testConfig())
	for _, mode := range []domain.FillMode{domain.FillFOK, domain.FillIOC, domain.FillReturn} {
		f.broker.UnsupportedFills[mode] = true
	}

	outcome, err := f.engine.RunCycle(context.Background(), "EURUSD")
	require.Error(t, err)
	assert.Equal(t, usecase.OutcomeFailed, outcome)
	assert.Empty(t, f.state.State.Sig)

	// Broker recovers: the very same setup goes through.
	f.broker.UnsupportedFills = map[domain.FillMode]bool{}
	outcome, err = f.engine.RunCycle(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeSubmitted, outcome)
	assert.NotEmpty(t, f.state.State.Sig)
}

func TestEngine_DryRunSkipsBrokerButPersists(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.DryRun = true
	f := newEngineFixture(cfg)

	outcome, err := f.engine.RunCycle(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeSubmitted, outcome)
	assert.Zero(t, f.broker.SubmittedCount())
	assert.NotEmpty(t, f.state.State.Sig)
}

func TestEngine_MissingSnapshotNeverReachesSubmission(t *testing.T) {
	f := newEngineFixture(testConfig())
	f.snaps.Err = errors.New("feed stale")

	var outcome usecase.CycleOutcome
	var err error
	require.NotPanics(t, func() {
		outcome, err = f.engine.RunCycle(context.Background(), "EURUSD")
	})

	// A valid setup without a current price must end the cycle cleanly: no
	// order traffic, no persisted signature.
	require.Error(t, err)
	assert.Equal(t, usecase.OutcomeFailed, outcome)
	assert.Zero(t, f.broker.SubmittedCount())
	assert.Empty(t, f.state.State.Sig)

	stages := f.audit.Stages()
	assert.Contains(t, stages, "send-failed")
	assert.NotContains(t, stages, "send")
}

func TestEngine_SetupNotReadyIsNotAnError(t *testing.T) {
	f := newEngineFixture(testConfig())
	f.setups.Payload = domain.SetupPayload{Text: "partial"}

	outcome, err := f.engine.RunCycle(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, usecase.OutcomeNoSetup, outcome)
	assert.Zero(t, f.broker.SubmittedCount())
}

func TestEngine_LifecycleSweepRuns(t *testing.T) {
	cfg := testConfig()
	cfg.Symbols = []string{"EURUSD"}
	cfg.Lifecycle.TrailingATRMult = 0
	f := newEngineFixture(cfg)

	f.broker.Position = []*domain.PositionInfo{{
		Ticket:     42,
		Symbol:     "EURUSD",
		Side:       domain.SideLong,
		Volume:     0.1,
		EntryPrice: 1.0800,
		StopLoss:   1.0750,
		Comment:    "eng-abcd1234-tp2",
	}}
	// Snapshot bid 1.0840 is 40 points past entry, beyond half the risk.
	f.engine.ManagePositions(context.Background())

	require.Len(t, f.broker.Modified, 1)
	assert.Greater(t, f.broker.Modified[0].StopLoss, 1.0800)
}
