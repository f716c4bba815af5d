package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "fixed_risk", cfg.Sizing.Method)
	assert.InDelta(t, 0.1, cfg.Sizing.MaxPositionSize, 1e-9)
	assert.InDelta(t, 0.01, cfg.Sizing.RiskPerTrade, 1e-9)
	assert.Equal(t, 5, cfg.Sizing.MaxPositions)
	assert.Equal(t, "fixed_percent", cfg.StopLoss.Method)
	assert.InDelta(t, 0.15, cfg.Limits.MaxDrawdown, 1e-9)
	assert.InDelta(t, 0.05, cfg.Limits.DailyLossLimit, 1e-9)
	assert.Equal(t, "00:00", cfg.Engine.DailyResetTime)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	raw := `{
		"engine": {"initial_equity": 250000, "daily_reset_time": "08:30"},
		"position_sizing": {"sizing_method": "kelly", "risk_per_trade": 0.02, "max_position_size": 0.2},
		"risk_limits": {"max_drawdown": 0.1},
		"asset_classes": {"BTCUSDT": "crypto-major"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.InDelta(t, 250000.0, cfg.Engine.InitialEquity, 1e-9)
	assert.Equal(t, "kelly", cfg.Sizing.Method)
	assert.InDelta(t, 0.02, cfg.Sizing.RiskPerTrade, 1e-9)
	assert.InDelta(t, 0.1, cfg.Limits.MaxDrawdown, 1e-9)
	// Untouched sections still get defaults.
	assert.Equal(t, "fixed_percent", cfg.StopLoss.Method)
	assert.InDelta(t, 3.0, cfg.Limits.MaxLeverage, 1e-9)

	hour, minute := cfg.ResetBoundary()
	assert.Equal(t, 8, hour)
	assert.Equal(t, 30, minute)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"oversized max_position_size", func(c *Config) { c.Sizing.MaxPositionSize = 1.5 }},
		{"risk above position cap", func(c *Config) { c.Sizing.RiskPerTrade = 0.2 }},
		{"unknown sizing method", func(c *Config) { c.Sizing.Method = "martingale" }},
		{"unknown stop method", func(c *Config) { c.StopLoss.Method = "psychic" }},
		{"correlation limit at 1", func(c *Config) { c.Sizing.Correlation.MaxCorrelation = 1.0 }},
		{"penalty above 1", func(c *Config) { c.Sizing.Correlation.Penalty = 1.2 }},
		{"penalty at 1", func(c *Config) { c.Sizing.Correlation.Penalty = 1.0 }},
		{"warning above critical", func(c *Config) { c.Limits.WarningThreshold = 0.96 }},
		{"critical at 1", func(c *Config) { c.Limits.CriticalThreshold = 1.0 }},
		{"bad reset time", func(c *Config) { c.Engine.DailyResetTime = "25:00" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestAssetClass_FallsBackToOther(t *testing.T) {
	cfg := Default()
	cfg.AssetClasses = map[string]string{"BTCUSDT": "crypto-major"}

	assert.Equal(t, "crypto-major", cfg.AssetClass("BTCUSDT"))
	assert.Equal(t, "other", cfg.AssetClass("DOGEUSDT"))
}
