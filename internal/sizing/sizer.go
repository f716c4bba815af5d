package sizing

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/ducminhle1904/risk-engine/internal/config"
	"github.com/ducminhle1904/risk-engine/internal/ledger"
	"github.com/ducminhle1904/risk-engine/pkg/types"
)

// Request carries everything the sizer needs for one candidate trade.
// Exchange constraints (min order size, lot step) and market volatility are
// caller-supplied; the engine owns neither.
type Request struct {
	Symbol     string
	Side       types.Side
	EntryPrice float64
	StopPrice  float64

	// Volatility inputs for kelly sizing and the volatility adjustment.
	// Zero means unavailable.
	Volatility         float64
	BaselineVolatility float64

	// Exchange constraints.
	MinOrderSize float64
	LotStep      float64
}

// Sizer computes position quantities. Read-only with respect to the ledger:
// it only consumes the portfolio snapshot it is handed.
type Sizer struct {
	cfg  config.SizingConfig
	corr CorrelationSource
	log  zerolog.Logger
}

// New creates a sizer. A nil correlation source falls back to the configured
// static matrix.
func New(cfg config.SizingConfig, corr CorrelationSource, log zerolog.Logger) *Sizer {
	if corr == nil {
		corr = NewStaticMatrix(cfg.Correlation.Matrix)
	}
	return &Sizer{cfg: cfg, corr: corr, log: log}
}

// Size computes the quantity to open. The clamp order is fixed: risk-based
// base, then the max-position-size notional cap, then the correlation
// penalty, then the volatility adjustment, then lot quantization and the
// minimum-order-size check.
func (s *Sizer) Size(req Request, portfolio ledger.PortfolioState) (float64, error) {
	equity := portfolio.Equity
	if equity <= 0 {
		return 0, newError(ErrCodeNonPositiveEquity, req.Symbol, "equity %.2f is not positive", equity)
	}
	if req.EntryPrice <= 0 {
		return 0, newError(ErrCodeInvalidStop, req.Symbol, "entry price %.4f must be positive", req.EntryPrice)
	}

	perUnitRisk, err := s.perUnitRisk(req)
	if err != nil {
		return 0, err
	}

	var quantity float64
	switch s.cfg.Method {
	case "equal_weight":
		quantity = equity / float64(s.cfg.MaxPositions) / req.EntryPrice
	case "kelly":
		quantity = s.kellyQuantity(req, equity, perUnitRisk)
	default: // fixed_risk
		quantity = s.fixedRiskQuantity(equity, perUnitRisk)
	}

	// Notional cap.
	maxNotional := equity * s.cfg.MaxPositionSize
	if quantity*req.EntryPrice > maxNotional {
		quantity = maxNotional / req.EntryPrice
	}

	// Correlation penalty against currently open positions.
	if s.cfg.Correlation.Enabled {
		quantity *= s.correlationMultiplier(req.Symbol, portfolio)
	}

	// Volatility adjustment scales inversely to relative volatility and
	// never increases size beyond the unadjusted value.
	if req.Volatility > 0 && req.BaselineVolatility > 0 {
		ratio := req.BaselineVolatility / req.Volatility
		if ratio < 1 {
			quantity *= ratio
		}
	}

	quantity = quantizeToStep(quantity, req.LotStep)
	if quantity <= 0 || quantity < req.MinOrderSize {
		return 0, newError(ErrCodeInsufficientSize, req.Symbol,
			"quantity %.8f below exchange minimum %.8f", quantity, req.MinOrderSize)
	}

	s.log.Debug().
		Str("symbol", req.Symbol).
		Str("method", s.cfg.Method).
		Float64("quantity", quantity).
		Float64("notional", quantity*req.EntryPrice).
		Msg("position sized")
	return quantity, nil
}

func (s *Sizer) perUnitRisk(req Request) (float64, error) {
	dist := math.Abs(req.EntryPrice - req.StopPrice)
	if dist == 0 {
		return 0, newError(ErrCodeInvalidStop, req.Symbol, "stop equals entry %.4f", req.EntryPrice)
	}
	wrongSide := (req.Side == types.SideLong && req.StopPrice >= req.EntryPrice) ||
		(req.Side == types.SideShort && req.StopPrice <= req.EntryPrice)
	if req.StopPrice <= 0 || wrongSide {
		return 0, newError(ErrCodeInvalidStop, req.Symbol,
			"stop %.4f on wrong side of entry %.4f for %s", req.StopPrice, req.EntryPrice, req.Side)
	}
	return dist, nil
}

func (s *Sizer) fixedRiskQuantity(equity, perUnitRisk float64) float64 {
	riskAmount := equity * s.cfg.RiskPerTrade
	return riskAmount / perUnitRisk
}

// kellyQuantity estimates a Kelly fraction from volatility: higher volatility
// lowers the assumed win probability. Falls back to fixed-risk sizing when no
// volatility is available.
func (s *Sizer) kellyQuantity(req Request, equity, perUnitRisk float64) float64 {
	if req.Volatility <= 0 {
		return s.fixedRiskQuantity(equity, perUnitRisk)
	}

	winProb := 0.55 - req.Volatility*5
	winProb = math.Max(0.1, math.Min(0.9, winProb))

	const payoffRatio = 2.0 // 2:1 reward-risk target
	kelly := (payoffRatio*winProb - (1 - winProb)) / payoffRatio
	kelly *= s.cfg.KellyFraction
	kelly = math.Max(0, math.Min(kelly, 0.5))

	return equity * kelly / req.EntryPrice
}

// correlationMultiplier returns a factor in (0,1]: 1 when no open position
// correlates above max_correlation, shrinking monotonically toward
// 1-penalty as the worst correlation approaches 1.
func (s *Sizer) correlationMultiplier(symbol string, portfolio ledger.PortfolioState) float64 {
	maxCorr := 0.0
	for _, pos := range portfolio.OpenPositions {
		if pos.Symbol == symbol {
			continue
		}
		if c := math.Abs(s.corr.Correlation(symbol, pos.Symbol)); c > maxCorr {
			maxCorr = c
		}
	}
	limit := s.cfg.Correlation.MaxCorrelation
	if maxCorr <= limit {
		return 1
	}
	excess := (maxCorr - limit) / (1 - limit)
	if excess > 1 {
		excess = 1
	}
	return 1 - s.cfg.Correlation.Penalty*excess
}
