package monitor

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/ducminhle1904/risk-engine/internal/config"
	"github.com/ducminhle1904/risk-engine/internal/ledger"
)

// RiskState is the portfolio-wide trading state. It is recomputed from
// portfolio state and limits on every evaluation; only the HALTED latch and
// the no-silent-downgrade rule carry state between evaluations.
type RiskState int

const (
	StateNormal RiskState = iota
	StateWarning
	StateCritical
	StateHalted
)

func (s RiskState) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateWarning:
		return "WARNING"
	case StateCritical:
		return "CRITICAL"
	case StateHalted:
		return "HALTED"
	default:
		return "UNKNOWN"
	}
}

// Limit type names used in breaches and events.
const (
	LimitDrawdown      = "drawdown"
	LimitDailyLoss     = "daily_loss"
	LimitPositionCount = "position_count"
	LimitLeverage      = "leverage"
	LimitSingleAsset   = "exposure_single_asset"
	LimitAssetClass    = "exposure_asset_class"
	LimitTotalExposure = "exposure_total"
)

// Breach reports one limit ratio at or above its warning threshold.
type Breach struct {
	LimitType string
	Current   float64 // current metric value (e.g. drawdown fraction)
	Limit     float64 // configured limit for the metric
	Ratio     float64 // Current / Limit
}

// Assessment is the outcome of one evaluation.
type Assessment struct {
	State    RiskState
	Breaches []Breach
}

// Monitor evaluates portfolio-wide limits. HALTED is terminal for the
// session: once latched, it is cleared only by an explicit operator Reset,
// and recomputation while recovered drops no lower than CRITICAL.
type Monitor struct {
	mu           sync.Mutex
	limits       config.LimitsConfig
	maxPositions int
	classOf      func(symbol string) string
	halted       bool
	log          zerolog.Logger
}

// New creates a monitor. classOf maps symbols to exposure buckets.
func New(limits config.LimitsConfig, maxPositions int, classOf func(string) string, log zerolog.Logger) *Monitor {
	if classOf == nil {
		classOf = func(string) string { return "other" }
	}
	return &Monitor{limits: limits, maxPositions: maxPositions, classOf: classOf, log: log}
}

// Evaluate recomputes the risk state against the given snapshot.
func (m *Monitor) Evaluate(state ledger.PortfolioState) Assessment {
	m.mu.Lock()
	defer m.mu.Unlock()

	ratios := m.ratios(state)

	maxRatio := 0.0
	var breaches []Breach
	for _, r := range ratios {
		if r.Ratio > maxRatio {
			maxRatio = r.Ratio
		}
		if r.Ratio >= m.limits.WarningThreshold {
			breaches = append(breaches, r)
		}
	}

	computed := StateNormal
	switch {
	case maxRatio >= 1.0:
		computed = StateHalted
	case maxRatio >= m.limits.CriticalThreshold:
		computed = StateCritical
	case maxRatio >= m.limits.WarningThreshold:
		computed = StateWarning
	}

	if computed == StateHalted && !m.halted {
		m.halted = true
		m.log.Error().Float64("max_ratio", maxRatio).Msg("risk limits breached, trading halted")
	}
	if m.halted && computed < StateCritical {
		// Recovery without an operator reset never drops below CRITICAL.
		computed = StateCritical
	}
	if m.halted && maxRatio >= 1.0 {
		computed = StateHalted
	}

	return Assessment{State: computed, Breaches: breaches}
}

// Halted reports whether the session halt latch is set. The gate rejects all
// new positions while latched, whatever Evaluate currently returns.
func (m *Monitor) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// Reset clears the halt latch. Operator action only.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.halted {
		m.halted = false
		m.log.Warn().Msg("risk halt latch cleared by operator")
	}
}

// Per-limit predicates, true at or above 100% of the limit.

func (m *Monitor) DrawdownBreached(state ledger.PortfolioState) bool {
	return Drawdown(state) >= m.limits.MaxDrawdown
}

func (m *Monitor) DailyLossBreached(state ledger.PortfolioState) bool {
	return dailyLoss(state) >= m.limits.DailyLossLimit
}

func (m *Monitor) PositionCountBreached(state ledger.PortfolioState) bool {
	return m.maxPositions > 0 && state.OpenCount() >= m.maxPositions
}

func (m *Monitor) LeverageBreached(state ledger.PortfolioState) bool {
	return leverage(state) >= m.limits.MaxLeverage
}

func (m *Monitor) ExposureBreached(state ledger.PortfolioState) bool {
	if state.Equity <= 0 {
		return state.TotalExposure() > 0
	}
	if state.TotalExposure()/state.Equity >= m.limits.Exposure.Total {
		return true
	}
	single, class := m.worstExposures(state)
	return single >= m.limits.Exposure.SingleAsset || class >= m.limits.Exposure.AssetClass
}

func (m *Monitor) ratios(state ledger.PortfolioState) []Breach {
	out := []Breach{
		{LimitType: LimitDrawdown, Current: Drawdown(state), Limit: m.limits.MaxDrawdown},
		{LimitType: LimitDailyLoss, Current: dailyLoss(state), Limit: m.limits.DailyLossLimit},
		{LimitType: LimitLeverage, Current: leverage(state), Limit: m.limits.MaxLeverage},
	}
	if m.maxPositions > 0 {
		b := Breach{
			LimitType: LimitPositionCount,
			Current:   float64(state.OpenCount()),
			Limit:     float64(m.maxPositions),
		}
		// A full book is a capacity condition, not a loss condition: the gate
		// rejects further opens, but it must not latch a terminal halt, or
		// closing positions could never resume trading. Cap its contribution
		// at the critical band.
		b.Ratio = b.Current / b.Limit
		if b.Ratio > m.limits.CriticalThreshold {
			b.Ratio = m.limits.CriticalThreshold
		}
		out = append(out, b)
	}

	single, class := m.worstExposures(state)
	total := 0.0
	if state.Equity > 0 {
		total = state.TotalExposure() / state.Equity
	} else if state.TotalExposure() > 0 {
		// Exposure with non-positive equity is unconditionally over-limit.
		total = m.limits.Exposure.Total
		single = m.limits.Exposure.SingleAsset
		class = m.limits.Exposure.AssetClass
	}
	out = append(out,
		Breach{LimitType: LimitSingleAsset, Current: single, Limit: m.limits.Exposure.SingleAsset},
		Breach{LimitType: LimitAssetClass, Current: class, Limit: m.limits.Exposure.AssetClass},
		Breach{LimitType: LimitTotalExposure, Current: total, Limit: m.limits.Exposure.Total},
	)

	for i := range out {
		if out[i].LimitType == LimitPositionCount {
			continue // ratio already capped above
		}
		if out[i].Limit > 0 {
			out[i].Ratio = out[i].Current / out[i].Limit
		}
	}
	return out
}

func (m *Monitor) worstExposures(state ledger.PortfolioState) (single, class float64) {
	if state.Equity <= 0 {
		return 0, 0
	}
	for _, notional := range state.ExposureBySymbol() {
		if frac := notional / state.Equity; frac > single {
			single = frac
		}
	}
	for _, notional := range state.ExposureByClass(m.classOf) {
		if frac := notional / state.Equity; frac > class {
			class = frac
		}
	}
	return single, class
}

// Drawdown returns the fractional decline from peak equity, 0 when the peak
// is not positive, clamped to [0, 1].
func Drawdown(state ledger.PortfolioState) float64 {
	if state.PeakEquity <= 0 {
		return 0
	}
	dd := (state.PeakEquity - state.Equity) / state.PeakEquity
	if dd < 0 {
		return 0
	}
	if dd > 1 {
		return 1
	}
	return dd
}

func dailyLoss(state ledger.PortfolioState) float64 {
	if state.PeakEquity <= 0 {
		return 0
	}
	loss := -state.RealizedPnLToday
	if loss < 0 {
		return 0
	}
	return loss / state.PeakEquity
}

func leverage(state ledger.PortfolioState) float64 {
	if state.Equity <= 0 {
		if state.TotalExposure() > 0 {
			// Any exposure on non-positive equity reads as infinite leverage;
			// report it as a full breach of the limit.
			return 1e9
		}
		return 0
	}
	return state.TotalExposure() / state.Equity
}
