package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
symbols: [EURUSD]
broker:
  rest_endpoint: http://localhost:5000
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"EURUSD"}, cfg.Symbols)
	assert.Equal(t, 60, cfg.Engine.CycleIntervalSec)
	assert.Equal(t, 1.2, cfg.Gate.SpreadFactor)
	assert.Equal(t, "percent-equity", cfg.Sizing.Mode)
	assert.Equal(t, 50.0, cfg.Sizing.SplitTP1Pct)
	assert.Equal(t, 30, cfg.Validation.CooldownMin)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
sizing:
  mode: money
  risk_money: 250
orders:
  deviation_points: 10
`))
	require.NoError(t, err)

	assert.Equal(t, "money", cfg.Sizing.Mode)
	assert.Equal(t, 250.0, cfg.Sizing.RiskMoney)
	assert.Equal(t, 10, cfg.Orders.DeviationPoints)
	// Untouched sections keep their defaults.
	assert.Equal(t, 60.0, cfg.Orders.PendingThresholdPoints)
}

func TestValidate_RejectsBadSizingMode(t *testing.T) {
	_, err := Load(writeConfig(t, `
sizing:
  mode: martingale
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sizing mode")
}

func TestValidate_RejectsBadSplit(t *testing.T) {
	for _, split := range []string{"0", "100", "-5"} {
		_, err := Load(writeConfig(t, "sizing:\n  mode: lots\n  split_tp1_pct: "+split+"\n"))
		assert.Error(t, err, "split %s", split)
	}
}

func TestValidate_FloorsSpreadFactor(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
gate:
  spread_factor: 0.5
`))
	require.NoError(t, err)
	assert.Equal(t, 1.0, cfg.Gate.SpreadFactor)
}

func TestClone_IsolatesSliceAndMapFields(t *testing.T) {
	cfg := Default()
	cfg.Symbols = []string{"EURUSD"}
	cfg.KeyLevels = map[string][]KeyLevelConfig{
		"EURUSD": {{Name: "daily high", Price: 1.0900}},
	}

	clone := cfg.Clone()

	cfg.Symbols[0] = "GBPUSD"
	cfg.KeyLevels["EURUSD"][0].Price = 1.1000
	cfg.KeyLevels["USDJPY"] = []KeyLevelConfig{{Name: "weekly low", Price: 150.00}}

	assert.Equal(t, []string{"EURUSD"}, clone.Symbols)
	assert.Equal(t, 1.0900, clone.KeyLevels["EURUSD"][0].Price)
	assert.NotContains(t, clone.KeyLevels, "USDJPY")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
