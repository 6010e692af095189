package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/trade_engine/internal/domain"
	"github.com/vitos/trade_engine/internal/usecase"
	"go.uber.org/zap"
)

func newSubmitter(broker *FakeBroker, state *FakeStateStore, audit *FakeAudit) *usecase.OrderSubmitter {
	return usecase.NewOrderSubmitter(broker, state, audit, &FakeOrderRepo{}, zap.NewNop())
}

func defaultSizing() *usecase.SizingResult {
	return &usecase.SizingResult{TotalVolume: 0.2, TP1Volume: 0.1, TP2Volume: 0.1}
}

func TestSubmitter_MarketOrderWithinDeviation(t *testing.T) {
	broker := NewFakeBroker()
	state := &FakeStateStore{}
	s := newSubmitter(broker, state, &FakeAudit{})

	cfg := testConfig()
	snap := healthySnapshot()

	// Entry 10 points from the ask, inside the 20-point deviation: market.
	intent := validIntent()
	intent.Entry = snap.Ask + 10*snap.Point

	report, err := s.Submit(context.Background(), cfg, "c1", intent, defaultSizing(), snap, &broker.Info)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionMarket, report.Action)
	require.Len(t, broker.Submitted, 2)
	assert.Equal(t, snap.Ask, broker.Submitted[0].Price)
	assert.True(t, report.Persisted)
}

func TestSubmitter_PendingLimitForLongBelowMarket(t *testing.T) {
	broker := NewFakeBroker()
	state := &FakeStateStore{}
	s := newSubmitter(broker, state, &FakeAudit{})

	cfg := testConfig()
	cfg.Orders.PendingThresholdPoints = 60
	cfg.Orders.DeviationPoints = 20
	cfg.Orders.DynamicPending = false

	snap := healthySnapshot()
	intent := validIntent()
	intent.Entry = snap.Ask - 80*snap.Point // 80 points below market

	report, err := s.Submit(context.Background(), cfg, "c1", intent, defaultSizing(), snap, &broker.Info)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionPending, report.Action)
	assert.Equal(t, domain.PendingLimit, report.Kind)

	require.Len(t, broker.Submitted, 2)
	for _, req := range broker.Submitted {
		assert.Equal(t, intent.Entry, req.Price)
		assert.False(t, req.Expiry.IsZero(), "pending leg must carry expiry")
	}
}

func TestSubmitter_PendingStopForLongAboveMarket(t *testing.T) {
	broker := NewFakeBroker()
	s := newSubmitter(broker, &FakeStateStore{}, &FakeAudit{})

	cfg := testConfig()
	cfg.Orders.DynamicPending = false

	snap := healthySnapshot()
	intent := validIntent()
	intent.Entry = snap.Ask + 100*snap.Point

	report, err := s.Submit(context.Background(), cfg, "c1", intent, defaultSizing(), snap, &broker.Info)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionPending, report.Action)
	assert.Equal(t, domain.PendingStop, report.Kind)
}

func TestSubmitter_DynamicPendingWidensThreshold(t *testing.T) {
	broker := NewFakeBroker()
	s := newSubmitter(broker, &FakeStateStore{}, &FakeAudit{})

	cfg := testConfig()
	cfg.Orders.PendingThresholdPoints = 60
	cfg.Orders.DynamicPending = true
	cfg.Orders.PendingATRFraction = 0.5

	snap := healthySnapshot() // M5 ATR 0.0008 = 8 points... widened by 4
	snap.ATR["M5"] = 0.0080   // 80 points; threshold becomes 60 + 40 = 100

	intent := validIntent()
	intent.Entry = snap.Ask - 80*snap.Point // below widened threshold: market

	report, err := s.Submit(context.Background(), cfg, "c1", intent, defaultSizing(), snap, &broker.Info)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionMarket, report.Action)
}

func TestSubmitter_LegsShareSideEntryStop(t *testing.T) {
	broker := NewFakeBroker()
	s := newSubmitter(broker, &FakeStateStore{}, &FakeAudit{})

	snap := healthySnapshot()
	intent := validIntent()
	intent.Entry = snap.Ask - 80*snap.Point

	_, err := s.Submit(context.Background(), testConfig(), "c1", intent, defaultSizing(), snap, &broker.Info)
	require.NoError(t, err)
	require.Len(t, broker.Submitted, 2)

	a, b := broker.Submitted[0], broker.Submitted[1]
	assert.Equal(t, a.Side, b.Side)
	assert.Equal(t, a.Price, b.Price)
	assert.Equal(t, a.StopLoss, b.StopLoss)
	assert.Equal(t, intent.TP1, a.TakeProfit)
	assert.Equal(t, intent.TP2, b.TakeProfit)
}

func TestSubmitter_FillModeFallback(t *testing.T) {
	broker := NewFakeBroker()
	broker.UnsupportedFills[domain.FillIOC] = true // first market mode refused

	state := &FakeStateStore{}
	s := newSubmitter(broker, state, &FakeAudit{})

	snap := healthySnapshot()
	intent := validIntent()
	intent.Entry = snap.Ask // market

	report, err := s.Submit(context.Background(), testConfig(), "c1", intent, defaultSizing(), snap, &broker.Info)
	require.NoError(t, err)
	assert.False(t, report.Failed())

	// Each leg: one refused IOC attempt, then an accepted FOK.
	require.Len(t, broker.Submitted, 4)
	assert.Equal(t, domain.FillIOC, broker.Submitted[0].FillMode)
	assert.Equal(t, domain.FillFOK, broker.Submitted[1].FillMode)
	assert.True(t, report.Persisted)
}

func TestSubmitter_FallbackExhaustionDoesNotPersist(t *testing.T) {
	broker := NewFakeBroker()
	for _, mode := range []domain.FillMode{domain.FillFOK, domain.FillIOC, domain.FillReturn} {
		broker.UnsupportedFills[mode] = true
	}

	state := &FakeStateStore{}
	s := newSubmitter(broker, state, &FakeAudit{})

	snap := healthySnapshot()
	intent := validIntent()
	intent.Entry = snap.Ask

	report, err := s.Submit(context.Background(), testConfig(), "c1", intent, defaultSizing(), snap, &broker.Info)
	require.Error(t, err)
	assert.True(t, report.Failed())
	assert.False(t, report.Persisted)
	assert.Empty(t, state.State.Sig, "signature must not persist after a failed leg")
}

func TestSubmitter_DryRunPersistsWithoutBrokerCall(t *testing.T) {
	broker := NewFakeBroker()
	state := &FakeStateStore{}
	s := newSubmitter(broker, state, &FakeAudit{})

	cfg := testConfig()
	cfg.Engine.DryRun = true

	snap := healthySnapshot()
	intent := validIntent()
	intent.Entry = snap.Ask

	report, err := s.Submit(context.Background(), cfg, "c1", intent, defaultSizing(), snap, &broker.Info)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Empty(t, broker.Submitted, "dry run must not reach the broker")
	assert.Equal(t, intent.Signature(), state.State.Sig)
	assert.InDelta(t, float64(time.Now().Unix()), state.State.Time, 5)
}

func TestSubmitter_LegTagsCarrySignature(t *testing.T) {
	broker := NewFakeBroker()
	s := newSubmitter(broker, &FakeStateStore{}, &FakeAudit{})

	snap := healthySnapshot()
	intent := validIntent()
	intent.Entry = snap.Ask

	_, err := s.Submit(context.Background(), testConfig(), "c1", intent, defaultSizing(), snap, &broker.Info)
	require.NoError(t, err)
	require.Len(t, broker.Submitted, 2)

	sig8 := intent.Signature()[:8]
	assert.Equal(t, "eng-"+sig8+"-tp1", broker.Submitted[0].Comment)
	assert.Equal(t, "eng-"+sig8+"-tp2", broker.Submitted[1].Comment)
}
