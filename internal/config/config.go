package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the complete risk-engine session configuration. It is loaded once
// at session start and never mutated by the engine.
type Config struct {
	Engine   EngineConfig   `json:"engine"`
	Sizing   SizingConfig   `json:"position_sizing"`
	StopLoss StopLossConfig `json:"stop_loss"`
	Limits   LimitsConfig   `json:"risk_limits"`

	// AssetClasses maps a symbol to its exposure bucket (e.g. BTCUSDT ->
	// "crypto-major"). Unmapped symbols fall into the "other" bucket.
	AssetClasses map[string]string `json:"asset_classes,omitempty"`
}

// EngineConfig holds operational settings outside the risk contract itself.
type EngineConfig struct {
	LogLevel       string  `json:"log_level"`
	InitialEquity  float64 `json:"initial_equity"`
	DailyResetTime string  `json:"daily_reset_time"` // "HH:MM" UTC
	RequestQueue   int     `json:"request_queue"`    // bounded intent queue depth
	EventBuffer    int     `json:"event_buffer"`
}

// SizingConfig holds position sizing configuration.
type SizingConfig struct {
	MaxPositionSize float64           `json:"max_position_size"` // fraction of equity per position
	RiskPerTrade    float64           `json:"risk_per_trade"`    // fraction of equity risked to stop
	MaxPositions    int               `json:"max_positions"`
	Method          string            `json:"sizing_method"` // fixed_risk, equal_weight, kelly
	KellyFraction   float64           `json:"kelly_fraction"`
	Correlation     CorrelationConfig `json:"correlation"`
}

// CorrelationConfig controls the correlated-asset size penalty.
type CorrelationConfig struct {
	Enabled        bool    `json:"enabled"`
	MaxCorrelation float64 `json:"max_correlation"`
	LookbackPeriod int     `json:"lookback_period"`
	Penalty        float64 `json:"penalty"` // max fraction shaved off at correlation 1.0

	// Matrix is the static pairwise correlation fallback used when the
	// caller supplies no live correlation source. Keys are "SYM1:SYM2".
	Matrix map[string]float64 `json:"matrix,omitempty"`
}

// StopLossConfig holds protective stop configuration.
type StopLossConfig struct {
	Method      string  `json:"method"`       // fixed_percent, atr_multiple, volatility_based
	DefaultStop float64 `json:"default_stop"` // fraction of entry for fixed_percent
	ATRMultiple float64 `json:"atr_multiple"`
	VolMultiple float64 `json:"vol_multiple"`
	RiskReward  float64 `json:"risk_reward"` // take-profit distance as multiple of stop distance

	TrailingStop TrailingStopConfig `json:"trailing_stop"`
	BreakEven    BreakEvenConfig    `json:"break_even"`
}

// TrailingStopConfig controls trailing-stop advancement.
type TrailingStopConfig struct {
	Enabled           bool    `json:"enabled"`
	ActivationPercent float64 `json:"activation_percent"`
	TrailPercent      float64 `json:"trail_percent"`
}

// BreakEvenConfig controls break-even stop migration.
type BreakEvenConfig struct {
	Enabled        bool    `json:"enabled"`
	TriggerPercent float64 `json:"trigger_percent"`
	Offset         float64 `json:"offset"` // fraction of entry added to cover fees
}

// LimitsConfig holds the portfolio-wide risk limits. Ratios are fractions.
type LimitsConfig struct {
	MaxDrawdown       float64        `json:"max_drawdown"`
	DailyLossLimit    float64        `json:"daily_loss_limit"`
	MaxLeverage       float64        `json:"max_leverage"`
	Exposure          ExposureConfig `json:"exposure"`
	WarningThreshold  float64        `json:"warning_threshold"`  // fraction of each limit
	CriticalThreshold float64        `json:"critical_threshold"` // fraction of each limit
}

// ExposureConfig caps notional exposure as multiples of equity.
type ExposureConfig struct {
	SingleAsset float64 `json:"single_asset"`
	AssetClass  float64 `json:"asset_class"`
	Total       float64 `json:"total"`
}

// Load reads a session configuration from file. Bare names resolve inside the
// configs/ directory and get a .json extension, matching the other bot tools.
func Load(configFile string) (*Config, error) {
	if !strings.ContainsAny(configFile, "/\\") {
		configFile = filepath.Join("configs", configFile)
	}
	if !strings.HasSuffix(configFile, ".json") {
		configFile += ".json"
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns a fully defaulted configuration, used by tests and the
// simulator when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills unset fields with conservative defaults.
func (c *Config) SetDefaults() {
	if c.Engine.LogLevel == "" {
		c.Engine.LogLevel = getEnv("LOG_LEVEL", "info")
	}
	if c.Engine.InitialEquity <= 0 {
		c.Engine.InitialEquity = getEnvFloat("INITIAL_EQUITY", 10000.0)
	}
	if c.Engine.DailyResetTime == "" {
		c.Engine.DailyResetTime = "00:00"
	}
	if c.Engine.RequestQueue <= 0 {
		c.Engine.RequestQueue = 64
	}
	if c.Engine.EventBuffer <= 0 {
		c.Engine.EventBuffer = 256
	}

	if c.Sizing.MaxPositionSize <= 0 {
		c.Sizing.MaxPositionSize = 0.1
	}
	if c.Sizing.RiskPerTrade <= 0 {
		c.Sizing.RiskPerTrade = 0.01
	}
	if c.Sizing.MaxPositions <= 0 {
		c.Sizing.MaxPositions = 5
	}
	if c.Sizing.Method == "" {
		c.Sizing.Method = "fixed_risk"
	}
	if c.Sizing.KellyFraction <= 0 {
		c.Sizing.KellyFraction = 0.5
	}
	if c.Sizing.Correlation.MaxCorrelation <= 0 {
		c.Sizing.Correlation.MaxCorrelation = 0.7
	}
	if c.Sizing.Correlation.Penalty <= 0 {
		c.Sizing.Correlation.Penalty = 0.5
	}
	if c.Sizing.Correlation.LookbackPeriod <= 0 {
		c.Sizing.Correlation.LookbackPeriod = 30
	}

	if c.StopLoss.Method == "" {
		c.StopLoss.Method = "fixed_percent"
	}
	if c.StopLoss.DefaultStop <= 0 {
		c.StopLoss.DefaultStop = 0.02
	}
	if c.StopLoss.ATRMultiple <= 0 {
		c.StopLoss.ATRMultiple = 2.0
	}
	if c.StopLoss.VolMultiple <= 0 {
		c.StopLoss.VolMultiple = 2.0
	}
	if c.StopLoss.RiskReward <= 0 {
		c.StopLoss.RiskReward = 2.0
	}
	if c.StopLoss.TrailingStop.TrailPercent <= 0 {
		c.StopLoss.TrailingStop.TrailPercent = 0.01
	}
	if c.StopLoss.BreakEven.TriggerPercent <= 0 {
		c.StopLoss.BreakEven.TriggerPercent = 0.01
	}

	if c.Limits.MaxDrawdown <= 0 {
		c.Limits.MaxDrawdown = 0.15
	}
	if c.Limits.DailyLossLimit <= 0 {
		c.Limits.DailyLossLimit = 0.05
	}
	if c.Limits.MaxLeverage <= 0 {
		c.Limits.MaxLeverage = 3.0
	}
	if c.Limits.Exposure.SingleAsset <= 0 {
		c.Limits.Exposure.SingleAsset = 0.3
	}
	if c.Limits.Exposure.AssetClass <= 0 {
		c.Limits.Exposure.AssetClass = 0.6
	}
	if c.Limits.Exposure.Total <= 0 {
		c.Limits.Exposure.Total = 1.0
	}
	if c.Limits.WarningThreshold <= 0 {
		c.Limits.WarningThreshold = 0.8
	}
	if c.Limits.CriticalThreshold <= 0 {
		c.Limits.CriticalThreshold = 0.95
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if c.Sizing.MaxPositionSize > 1.0 {
		return fmt.Errorf("max_position_size %.2f must be <= 1.0", c.Sizing.MaxPositionSize)
	}
	if c.Sizing.RiskPerTrade > c.Sizing.MaxPositionSize {
		return fmt.Errorf("risk_per_trade %.3f exceeds max_position_size %.3f", c.Sizing.RiskPerTrade, c.Sizing.MaxPositionSize)
	}
	switch c.Sizing.Method {
	case "fixed_risk", "equal_weight", "kelly":
	default:
		return fmt.Errorf("unknown sizing_method: %s", c.Sizing.Method)
	}
	switch c.StopLoss.Method {
	case "fixed_percent", "atr_multiple", "volatility_based":
	default:
		return fmt.Errorf("unknown stop_loss method: %s", c.StopLoss.Method)
	}
	if c.Sizing.Correlation.MaxCorrelation >= 1.0 {
		return fmt.Errorf("max_correlation %.2f must be < 1.0", c.Sizing.Correlation.MaxCorrelation)
	}
	// Penalty 1.0 would zero the size multiplier at correlation 1.0 and turn
	// every correlated intent into an insufficient-size rejection.
	if c.Sizing.Correlation.Penalty >= 1.0 {
		return fmt.Errorf("correlation penalty %.2f must be < 1.0", c.Sizing.Correlation.Penalty)
	}
	if c.Limits.WarningThreshold >= c.Limits.CriticalThreshold {
		return fmt.Errorf("warning_threshold %.2f must be below critical_threshold %.2f",
			c.Limits.WarningThreshold, c.Limits.CriticalThreshold)
	}
	if c.Limits.CriticalThreshold >= 1.0 {
		return fmt.Errorf("critical_threshold %.2f must be < 1.0", c.Limits.CriticalThreshold)
	}
	if _, _, err := parseResetTime(c.Engine.DailyResetTime); err != nil {
		return err
	}
	return nil
}

// AssetClass resolves the exposure bucket for a symbol.
func (c *Config) AssetClass(symbol string) string {
	if class, ok := c.AssetClasses[symbol]; ok {
		return class
	}
	return "other"
}

func parseResetTime(v string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(v, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid daily_reset_time %q: %w", v, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid daily_reset_time %q", v)
	}
	return hour, minute, nil
}

// ResetBoundary returns the configured daily reset time as hour/minute, UTC.
func (c *Config) ResetBoundary() (hour, minute int) {
	hour, minute, _ = parseResetTime(c.Engine.DailyResetTime)
	return hour, minute
}
