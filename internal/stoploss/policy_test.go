package stoploss

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/risk-engine/internal/config"
	"github.com/ducminhle1904/risk-engine/internal/ledger"
	"github.com/ducminhle1904/risk-engine/pkg/types"
)

func testConfig() config.StopLossConfig {
	return config.Default().StopLoss
}

func candles(n int, high, low, close float64) []types.OHLCV {
	out := make([]types.OHLCV, n)
	for i := range out {
		out[i] = types.OHLCV{Open: close, High: high, Low: low, Close: close}
	}
	return out
}

func TestInitialStop_FixedPercent(t *testing.T) {
	p := New(testConfig())

	stop, err := p.InitialStop(50000, types.SideLong, MethodFixedPercent, Params{Percent: 0.02})
	require.NoError(t, err)
	assert.InDelta(t, 49000.0, stop, 1e-9)

	stop, err = p.InitialStop(50000, types.SideShort, MethodFixedPercent, Params{Percent: 0.02})
	require.NoError(t, err)
	assert.InDelta(t, 51000.0, stop, 1e-9)
}

func TestInitialStop_FixedPercentUsesConfiguredDefault(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultStop = 0.05
	p := New(cfg)

	stop, err := p.InitialStop(1000, types.SideLong, MethodFixedPercent, Params{})
	require.NoError(t, err)
	assert.InDelta(t, 950.0, stop, 1e-9)
}

func TestInitialStop_ATRMultiple(t *testing.T) {
	p := New(testConfig())

	// Constant 200-wide candles give ATR 200; 2x multiple is a 400 stop.
	window := candles(20, 50100, 49900, 50000)
	stop, err := p.InitialStop(50000, types.SideLong, MethodATRMultiple, Params{ATRMultiple: 2.0, Window: window})
	require.NoError(t, err)
	assert.InDelta(t, 49600.0, stop, 1e-6)

	// Too few candles is an error, not a silent fallback.
	_, err = p.InitialStop(50000, types.SideLong, MethodATRMultiple, Params{ATRMultiple: 2.0, Window: candles(5, 50100, 49900, 50000)})
	assert.Error(t, err)
}

func TestInitialStop_VolatilityBased(t *testing.T) {
	p := New(testConfig())

	// Closes alternating +/-100 around 50000 have stddev 100.
	window := make([]types.OHLCV, 20)
	for i := range window {
		c := 50100.0
		if i%2 == 1 {
			c = 49900.0
		}
		window[i] = types.OHLCV{Open: c, High: c, Low: c, Close: c}
	}
	stop, err := p.InitialStop(50000, types.SideShort, MethodVolatilityBased, Params{VolMultiple: 2.0, Window: window})
	require.NoError(t, err)
	assert.InDelta(t, 50200.0, stop, 1e-6)
}

func TestInitialStop_Rejections(t *testing.T) {
	p := New(testConfig())

	_, err := p.InitialStop(0, types.SideLong, MethodFixedPercent, Params{Percent: 0.02})
	assert.Error(t, err)

	_, err = p.InitialStop(50000, "sideways", MethodFixedPercent, Params{Percent: 0.02})
	assert.Error(t, err)

	_, err = p.InitialStop(50000, types.SideLong, Method("parabolic"), Params{})
	assert.Error(t, err)

	// A stop distance wider than entry would go nonpositive.
	_, err = p.InitialStop(100, types.SideLong, MethodFixedPercent, Params{Percent: 1.5})
	assert.Error(t, err)
}

func TestTakeProfit_RiskRewardSymmetry(t *testing.T) {
	cfg := testConfig()
	cfg.RiskReward = 2.0
	p := New(cfg)

	assert.InDelta(t, 52000.0, p.TakeProfit(50000, 49000, types.SideLong), 1e-9)
	assert.InDelta(t, 48000.0, p.TakeProfit(50000, 51000, types.SideShort), 1e-9)
}

func TestTakeProfit_ShortTargetFlooredAboveZero(t *testing.T) {
	cfg := testConfig()
	cfg.RiskReward = 2.0
	p := New(cfg)

	// Raw target would be 100 - 2*60 = -20; it floors at 1% of entry so a
	// collapse can still take profit instead of the target vanishing.
	tp := p.TakeProfit(100, 160, types.SideShort)
	assert.InDelta(t, 1.0, tp, 1e-9)
	assert.Greater(t, tp, 0.0)
}

func longPosition(entry, stop float64) ledger.Position {
	return ledger.Position{
		ID: "p1", Symbol: "BTCUSDT", Side: types.SideLong,
		Quantity: 1, EntryPrice: entry, CurrentPrice: entry, StopPrice: stop,
	}
}

func TestAdvanceTrailing_TightensOnly(t *testing.T) {
	cfg := testConfig()
	cfg.TrailingStop.Enabled = true
	cfg.TrailingStop.TrailPercent = 0.01
	cfg.TrailingStop.ActivationPercent = 0
	p := New(cfg)

	pos := longPosition(50000, 49000)

	stop, ok := p.AdvanceTrailing(pos, 50600)
	require.True(t, ok)
	assert.InDelta(t, 50600*0.99, stop, 1e-9)

	// Price pulling back must not propose a looser stop.
	pos.StopPrice = stop
	_, ok = p.AdvanceTrailing(pos, 50500)
	assert.False(t, ok)

	// Each further advance is strictly tighter than the last.
	prev := pos.StopPrice
	for _, price := range []float64{50700, 51200, 52000} {
		stop, ok := p.AdvanceTrailing(pos, price)
		require.True(t, ok)
		assert.Greater(t, stop, prev)
		pos.StopPrice = stop
		prev = stop
	}
}

func TestAdvanceTrailing_Disabled(t *testing.T) {
	p := New(testConfig()) // trailing disabled by default

	_, ok := p.AdvanceTrailing(longPosition(50000, 49000), 60000)
	assert.False(t, ok)
}

func TestAdvanceTrailing_ActivationGate(t *testing.T) {
	cfg := testConfig()
	cfg.TrailingStop.Enabled = true
	cfg.TrailingStop.TrailPercent = 0.01
	cfg.TrailingStop.ActivationPercent = 0.02
	p := New(cfg)

	pos := longPosition(50000, 49000)

	// 1.2% in profit: below the 2% activation margin.
	_, ok := p.AdvanceTrailing(pos, 50600)
	assert.False(t, ok)

	stop, ok := p.AdvanceTrailing(pos, 51100)
	require.True(t, ok)
	assert.InDelta(t, 51100*0.99, stop, 1e-9)
}

func TestAdvanceTrailing_Short(t *testing.T) {
	cfg := testConfig()
	cfg.TrailingStop.Enabled = true
	cfg.TrailingStop.TrailPercent = 0.01
	p := New(cfg)

	pos := ledger.Position{
		ID: "p1", Symbol: "BTCUSDT", Side: types.SideShort,
		Quantity: 1, EntryPrice: 50000, CurrentPrice: 50000, StopPrice: 51000,
	}
	stop, ok := p.AdvanceTrailing(pos, 49000)
	require.True(t, ok)
	assert.InDelta(t, 49000*1.01, stop, 1e-9)

	pos.StopPrice = stop
	_, ok = p.AdvanceTrailing(pos, 49300)
	assert.False(t, ok)
}

func TestMaybeBreakEven_MigratesOnce(t *testing.T) {
	cfg := testConfig()
	cfg.BreakEven.Enabled = true
	cfg.BreakEven.TriggerPercent = 0.01
	cfg.BreakEven.Offset = 0.001
	p := New(cfg)

	pos := longPosition(50000, 49000)

	// 1.2% in profit clears the 1% trigger; stop moves to entry plus offset.
	stop, ok := p.MaybeBreakEven(pos, 50600)
	require.True(t, ok)
	assert.InDelta(t, 50000*1.001, stop, 1e-9)

	pos.StopPrice = stop
	pos.BreakEvenApplied = true
	_, ok = p.MaybeBreakEven(pos, 52000)
	assert.False(t, ok)
}

func TestMaybeBreakEven_BelowTrigger(t *testing.T) {
	cfg := testConfig()
	cfg.BreakEven.Enabled = true
	cfg.BreakEven.TriggerPercent = 0.01
	p := New(cfg)

	_, ok := p.MaybeBreakEven(longPosition(50000, 49000), 50400)
	assert.False(t, ok)
}

func TestMaybeBreakEven_NeverBeyondCurrentPrice(t *testing.T) {
	cfg := testConfig()
	cfg.BreakEven.Enabled = true
	cfg.BreakEven.TriggerPercent = 0.01
	cfg.BreakEven.Offset = 0.02 // offset target would sit above the price
	p := New(cfg)

	_, ok := p.MaybeBreakEven(longPosition(50000, 49000), 50600)
	assert.False(t, ok)
}

func TestShouldClose(t *testing.T) {
	p := New(testConfig())

	long := longPosition(50000, 49000)
	long.TakeProfitPrice = 52000

	reason, ok := p.ShouldClose(long, 48900)
	require.True(t, ok)
	assert.Equal(t, CloseReasonStopHit, reason)

	reason, ok = p.ShouldClose(long, 52100)
	require.True(t, ok)
	assert.Equal(t, CloseReasonTakeProfit, reason)

	_, ok = p.ShouldClose(long, 50500)
	assert.False(t, ok)

	short := ledger.Position{
		Side: types.SideShort, EntryPrice: 50000, StopPrice: 51000, TakeProfitPrice: 48000,
	}
	reason, ok = p.ShouldClose(short, 51200)
	require.True(t, ok)
	assert.Equal(t, CloseReasonStopHit, reason)

	reason, ok = p.ShouldClose(short, 47900)
	require.True(t, ok)
	assert.Equal(t, CloseReasonTakeProfit, reason)
}

func TestATR_WindowRules(t *testing.T) {
	assert.Zero(t, ATR(candles(14, 50100, 49900, 50000)))
	assert.InDelta(t, 200.0, ATR(candles(15, 50100, 49900, 50000)), 1e-9)
}
