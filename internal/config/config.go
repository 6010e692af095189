package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the immutable configuration snapshot. The engine copies it by
// value at the start of every cycle so edits never touch an in-flight
// decision.
type Config struct {
	Broker struct {
		RESTEndpoint string `yaml:"rest_endpoint"`
		WSEndpoint   string `yaml:"ws_endpoint"`
		AuthToken    string `yaml:"auth_token"`
	} `yaml:"broker"`

	Symbols []string `yaml:"symbols"`

	Engine struct {
		CycleIntervalSec     int  `yaml:"cycle_interval_sec"`
		LifecycleIntervalSec int  `yaml:"lifecycle_interval_sec"`
		DryRun               bool `yaml:"dry_run"`
	} `yaml:"engine"`

	Gate struct {
		BlockWeekend      bool    `yaml:"block_weekend"`
		SessionCheck      bool    `yaml:"session_check"`
		Timezone          string  `yaml:"timezone"`
		AsiaSession       bool    `yaml:"asia_session"`
		LondonSession     bool    `yaml:"london_session"`
		NewYorkSession    bool    `yaml:"newyork_session"`
		SpreadCheck       bool    `yaml:"spread_check"`
		SpreadFactor      float64 `yaml:"spread_factor"`
		ATRCheck          bool    `yaml:"atr_check"`
		MinATRPips        float64 `yaml:"min_atr_pips"`
		ATRTimeframe      string  `yaml:"atr_timeframe"`
		LiquidityCheck    bool    `yaml:"liquidity_check"`
		MinTicksPerMinute float64 `yaml:"min_ticks_per_minute"`
		NewsCheck         bool    `yaml:"news_check"`
		NewsBeforeMin     int     `yaml:"news_before_min"`
		NewsAfterMin      int     `yaml:"news_after_min"`
	} `yaml:"gate"`

	Validation struct {
		StrictBias          bool    `yaml:"strict_bias"`
		MinRewardRisk       float64 `yaml:"min_reward_risk"`
		MinKeyLevelDistPips float64 `yaml:"min_key_level_dist_pips"`
		CooldownMin         int     `yaml:"cooldown_min"`
		MinSetupChars       int     `yaml:"min_setup_chars"`
	} `yaml:"validation"`

	Sizing struct {
		Mode        string  `yaml:"mode"` // lots | percent-equity | money
		FixedLots   float64 `yaml:"fixed_lots"`
		RiskPercent float64 `yaml:"risk_percent"`
		RiskMoney   float64 `yaml:"risk_money"`
		SplitTP1Pct float64 `yaml:"split_tp1_pct"`
	} `yaml:"sizing"`

	Orders struct {
		DeviationPoints        int     `yaml:"deviation_points"`
		PendingThresholdPoints float64 `yaml:"pending_threshold_points"`
		DynamicPending         bool    `yaml:"dynamic_pending"`
		PendingATRFraction     float64 `yaml:"pending_atr_fraction"`
		PendingExpiryMin       int     `yaml:"pending_expiry_min"`
		RetriesPerFillMode     int     `yaml:"retries_per_fill_mode"`
		RetryDelayMs           int     `yaml:"retry_delay_ms"`
	} `yaml:"orders"`

	Lifecycle struct {
		BreakEven          bool    `yaml:"break_even"`
		BreakEvenBufferPts float64 `yaml:"break_even_buffer_pts"`
		TrailingATRMult    float64 `yaml:"trailing_atr_mult"` // 0 disables trailing
		ATRTimeframe       string  `yaml:"atr_timeframe"`
	} `yaml:"lifecycle"`

	Calendar struct {
		Path string `yaml:"path"`
	} `yaml:"calendar"`

	KeyLevels map[string][]KeyLevelConfig `yaml:"key_levels"`

	Storage struct {
		DBPath    string `yaml:"db_path"`
		StatePath string `yaml:"state_path"`
		AuditDir  string `yaml:"audit_dir"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

// KeyLevelConfig is one structural price level pinned per symbol.
type KeyLevelConfig struct {
	Name  string  `yaml:"name"`
	Price float64 `yaml:"price"`
}

// Clone returns a copy safe to hold for a whole cycle: the slice and map
// fields are duplicated so concurrent edits to the original are never seen.
func (c *Config) Clone() Config {
	out := *c
	out.Symbols = append([]string(nil), c.Symbols...)
	if c.KeyLevels != nil {
		levels := make(map[string][]KeyLevelConfig, len(c.KeyLevels))
		for symbol, kls := range c.KeyLevels {
			levels[symbol] = append([]KeyLevelConfig(nil), kls...)
		}
		out.KeyLevels = levels
	}
	return out
}

// Load reads and decodes the YAML config, applying defaults for anything the
// file leaves out.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := Default()
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config populated with safe defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.Engine.CycleIntervalSec = 60
	cfg.Engine.LifecycleIntervalSec = 15
	cfg.Gate.Timezone = "America/New_York"
	cfg.Gate.SpreadFactor = 1.2
	cfg.Gate.MinATRPips = 3
	cfg.Gate.ATRTimeframe = "M5"
	cfg.Gate.MinTicksPerMinute = 5
	cfg.Gate.NewsBeforeMin = 30
	cfg.Gate.NewsAfterMin = 15
	cfg.Validation.MinRewardRisk = 1.5
	cfg.Validation.MinKeyLevelDistPips = 5
	cfg.Validation.CooldownMin = 30
	cfg.Validation.MinSetupChars = 40
	cfg.Sizing.Mode = "percent-equity"
	cfg.Sizing.FixedLots = 0.01
	cfg.Sizing.RiskPercent = 1.0
	cfg.Sizing.RiskMoney = 100
	cfg.Sizing.SplitTP1Pct = 50
	cfg.Orders.DeviationPoints = 20
	cfg.Orders.PendingThresholdPoints = 60
	cfg.Orders.PendingATRFraction = 0.25
	cfg.Orders.PendingExpiryMin = 120
	cfg.Orders.RetriesPerFillMode = 2
	cfg.Orders.RetryDelayMs = 300
	cfg.Lifecycle.BreakEven = true
	cfg.Lifecycle.BreakEvenBufferPts = 3
	cfg.Lifecycle.ATRTimeframe = "M15"
	cfg.Storage.DBPath = "engine.db"
	cfg.Storage.StatePath = "trade_state.json"
	cfg.Storage.AuditDir = "audit"
	cfg.Logging.Level = "info"
	cfg.Server.Port = 8087
	return cfg
}

// Validate rejects configurations that would make sizing or submission
// nonsensical.
func (c *Config) Validate() error {
	switch c.Sizing.Mode {
	case "lots", "percent-equity", "money":
	default:
		return fmt.Errorf("invalid sizing mode %q", c.Sizing.Mode)
	}
	if c.Sizing.SplitTP1Pct <= 0 || c.Sizing.SplitTP1Pct >= 100 {
		return fmt.Errorf("split_tp1_pct must be in (0,100), got %v", c.Sizing.SplitTP1Pct)
	}
	if c.Gate.SpreadFactor < 1.0 {
		// The factor is floored: anything tighter than the p90 itself is
		// treated as the p90.
		c.Gate.SpreadFactor = 1.0
	}
	return nil
}
