package stoploss

import (
	"fmt"
	"math"

	"github.com/ducminhle1904/risk-engine/internal/config"
	"github.com/ducminhle1904/risk-engine/internal/ledger"
	"github.com/ducminhle1904/risk-engine/pkg/types"
)

// Method selects how the initial protective stop is computed.
type Method string

const (
	MethodFixedPercent    Method = "fixed_percent"
	MethodATRMultiple     Method = "atr_multiple"
	MethodVolatilityBased Method = "volatility_based"
)

// Params carries the market inputs some stop methods need. The engine never
// fetches market data itself; the caller supplies the window.
type Params struct {
	Percent     float64       // fixed_percent fraction of entry
	ATRMultiple float64       // atr_multiple distance in ATRs
	VolMultiple float64       // volatility_based distance in stddevs
	Window      []types.OHLCV // candles for ATR / volatility methods
}

// CloseReason explains a closure decision.
type CloseReason string

const (
	CloseReasonStopHit    CloseReason = "stop_loss"
	CloseReasonTakeProfit CloseReason = "take_profit"
)

// Policy computes initial stops and evaluates trailing / break-even
// advancement. It never mutates positions; proposed stops are committed by
// the gate through the ledger.
type Policy struct {
	cfg config.StopLossConfig
}

// New creates a stop-loss policy from session configuration.
func New(cfg config.StopLossConfig) *Policy {
	return &Policy{cfg: cfg}
}

// InitialStop computes the protective stop for a new position. For longs the
// stop is strictly below entry, for shorts strictly above; anything else is
// returned as an error, never as a value.
func (p *Policy) InitialStop(entry float64, side types.Side, method Method, params Params) (float64, error) {
	if entry <= 0 {
		return 0, fmt.Errorf("entry price %.4f must be positive", entry)
	}
	if !side.Valid() {
		return 0, fmt.Errorf("invalid side %q", side)
	}

	var distance float64
	switch method {
	case MethodFixedPercent:
		pct := params.Percent
		if pct <= 0 {
			pct = p.cfg.DefaultStop
		}
		distance = entry * pct
	case MethodATRMultiple:
		atr := ATR(params.Window)
		if atr <= 0 {
			return 0, fmt.Errorf("atr_multiple stop needs at least %d candles", atrPeriod+1)
		}
		mult := params.ATRMultiple
		if mult <= 0 {
			mult = p.cfg.ATRMultiple
		}
		distance = atr * mult
	case MethodVolatilityBased:
		vol := closeStdDev(params.Window)
		if vol <= 0 {
			return 0, fmt.Errorf("volatility_based stop needs a candle window")
		}
		mult := params.VolMultiple
		if mult <= 0 {
			mult = p.cfg.VolMultiple
		}
		distance = vol * mult
	default:
		return 0, fmt.Errorf("unknown stop method %q", method)
	}

	var stop float64
	if side == types.SideLong {
		stop = entry - distance
	} else {
		stop = entry + distance
	}
	if stop <= 0 || (side == types.SideLong && stop >= entry) || (side == types.SideShort && stop <= entry) {
		return 0, fmt.Errorf("computed stop %.4f not on loss side of entry %.4f for %s", stop, entry, side)
	}
	return stop, nil
}

// minShortTargetFraction floors a short take-profit at this fraction of the
// entry price. A wide stop times the risk-reward ratio can push the raw
// target to zero or below, which no price can ever cross.
const minShortTargetFraction = 0.01

// TakeProfit derives the take-profit price from the configured risk-reward
// ratio and the stop distance. Short targets are floored above zero so the
// target stays reachable.
func (p *Policy) TakeProfit(entry, stop float64, side types.Side) float64 {
	distance := math.Abs(entry-stop) * p.cfg.RiskReward
	if side == types.SideLong {
		return entry + distance
	}
	target := entry - distance
	if floor := entry * minShortTargetFraction; target < floor {
		target = floor
	}
	return target
}

// AdvanceTrailing proposes a tightened trailing stop for the position at the
// given price, or returns false. The stop never loosens: the candidate is
// returned only when strictly more protective than the current stop.
func (p *Policy) AdvanceTrailing(pos ledger.Position, currentPrice float64) (float64, bool) {
	if !p.cfg.TrailingStop.Enabled {
		return 0, false
	}
	trail := pos.TrailPercent
	if trail <= 0 {
		trail = p.cfg.TrailingStop.TrailPercent
	}

	// Trailing only activates once the position is in profit by the
	// configured activation margin.
	if profitRatioAt(pos, currentPrice) < p.cfg.TrailingStop.ActivationPercent {
		return 0, false
	}

	if pos.Side == types.SideLong {
		candidate := currentPrice * (1 - trail)
		if candidate > pos.StopPrice {
			return candidate, true
		}
		return 0, false
	}
	candidate := currentPrice * (1 + trail)
	if candidate < pos.StopPrice {
		return candidate, true
	}
	return 0, false
}

// MaybeBreakEven proposes moving the stop to entry plus the configured offset
// once unrealized profit reaches the trigger, if that is tighter than the
// current stop. Applied at most once per position.
func (p *Policy) MaybeBreakEven(pos ledger.Position, currentPrice float64) (float64, bool) {
	if !p.cfg.BreakEven.Enabled || pos.BreakEvenApplied {
		return 0, false
	}
	if profitRatioAt(pos, currentPrice) < p.cfg.BreakEven.TriggerPercent {
		return 0, false
	}

	if pos.Side == types.SideLong {
		candidate := pos.EntryPrice * (1 + p.cfg.BreakEven.Offset)
		if candidate > pos.StopPrice && candidate < currentPrice {
			return candidate, true
		}
		return 0, false
	}
	candidate := pos.EntryPrice * (1 - p.cfg.BreakEven.Offset)
	if candidate < pos.StopPrice && candidate > currentPrice {
		return candidate, true
	}
	return 0, false
}

// ShouldClose reports whether the price has crossed the stop adversely or the
// take-profit favorably.
func (p *Policy) ShouldClose(pos ledger.Position, currentPrice float64) (CloseReason, bool) {
	if pos.Side == types.SideLong {
		if currentPrice <= pos.StopPrice {
			return CloseReasonStopHit, true
		}
		if pos.TakeProfitPrice > 0 && currentPrice >= pos.TakeProfitPrice {
			return CloseReasonTakeProfit, true
		}
		return "", false
	}
	if currentPrice >= pos.StopPrice {
		return CloseReasonStopHit, true
	}
	if pos.TakeProfitPrice > 0 && currentPrice <= pos.TakeProfitPrice {
		return CloseReasonTakeProfit, true
	}
	return "", false
}

func profitRatioAt(pos ledger.Position, price float64) float64 {
	if pos.EntryPrice <= 0 {
		return 0
	}
	if pos.Side == types.SideLong {
		return (price - pos.EntryPrice) / pos.EntryPrice
	}
	return (pos.EntryPrice - price) / pos.EntryPrice
}
