package gate

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ducminhle1904/risk-engine/internal/config"
	"github.com/ducminhle1904/risk-engine/internal/events"
	"github.com/ducminhle1904/risk-engine/internal/ledger"
	"github.com/ducminhle1904/risk-engine/internal/logger"
	"github.com/ducminhle1904/risk-engine/internal/monitor"
	"github.com/ducminhle1904/risk-engine/internal/monitoring"
	"github.com/ducminhle1904/risk-engine/internal/sizing"
	"github.com/ducminhle1904/risk-engine/internal/stoploss"
	"github.com/ducminhle1904/risk-engine/pkg/types"
)

// ExchangeInfo supplies per-symbol exchange constraints. The exchange layer
// owns these; the engine only consumes them.
type ExchangeInfo interface {
	MinOrderSize(symbol string) float64
	LotStep(symbol string) float64
}

// MarketSnapshot carries optional caller-supplied market context for one
// decision. Zero values mean unavailable.
type MarketSnapshot struct {
	Volatility         float64
	BaselineVolatility float64
	Candles            []types.OHLCV
}

// ApprovedOrder is the order the exchange layer executes for an approved open.
type ApprovedOrder struct {
	PositionID      string
	Symbol          string
	Side            types.Side
	Quantity        float64
	EntryPrice      float64
	StopPrice       float64
	TakeProfitPrice float64
	ApprovedAt      time.Time
}

// ClosureDirective asks the exchange layer to close a position. The ledger
// keeps the position visible in PENDING_CLOSE until ConfirmClose.
type ClosureDirective struct {
	PositionID string
	Symbol     string
	Side       types.Side
	Quantity   float64
	Price      float64
	Reason     string
	Timestamp  time.Time
}

// Gate is the single entry point for trade admission. All mutating paths run
// under one mutex, so a snapshot used for a decision and the mutation it
// justifies form one critical section.
type Gate struct {
	mu sync.Mutex

	cfg      *config.Config
	ledger   *ledger.Ledger
	sizer    *sizing.Sizer
	stops    *stoploss.Policy
	monitor  *monitor.Monitor
	exchange ExchangeInfo
	bus      *events.Bus
	log      zerolog.Logger

	// activeBreaches dedupes breach events: limit type -> resulting state
	// it was last announced with. An entry clears when the limit recovers.
	activeBreaches map[string]string

	requests chan openRequest
}

// New wires the full engine from session configuration. A nil correlation
// source falls back to the configured static matrix.
func New(cfg *config.Config, exchange ExchangeInfo, corr sizing.CorrelationSource, log zerolog.Logger) *Gate {
	resetHour, resetMinute := cfg.ResetBoundary()
	lg := ledger.New(cfg.Engine.InitialEquity, resetHour, resetMinute, logger.Component(log, "ledger"))
	return &Gate{
		cfg:      cfg,
		ledger:   lg,
		sizer:    sizing.New(cfg.Sizing, corr, logger.Component(log, "sizer")),
		stops:    stoploss.New(cfg.StopLoss),
		monitor:  monitor.New(cfg.Limits, cfg.Sizing.MaxPositions, cfg.AssetClass, logger.Component(log, "monitor")),
		exchange: exchange,
		bus: events.NewBus(cfg.Engine.EventBuffer, func(events.Event) {
			monitoring.RecordEventDropped()
		}),
		log:            logger.Component(log, "gate"),
		activeBreaches: make(map[string]string),
		requests:       make(chan openRequest, cfg.Engine.RequestQueue),
	}
}

// Ledger exposes the portfolio ledger for cold-start restore and reporting.
func (g *Gate) Ledger() *ledger.Ledger {
	return g.ledger
}

// Events returns the engine event stream.
func (g *Gate) Events() <-chan events.Event {
	return g.bus.Events()
}

// RequestOpen runs the full admission sequence for a candidate trade. The
// sequence is transactional: any failure before the ledger apply leaves the
// portfolio untouched.
func (g *Gate) RequestOpen(intent types.TradeIntent, market MarketSnapshot) (*ApprovedOrder, *Rejection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requestOpenLocked(intent, market)
}

func (g *Gate) requestOpenLocked(intent types.TradeIntent, market MarketSnapshot) (*ApprovedOrder, *Rejection) {
	if !intent.Side.Valid() || intent.Symbol == "" || intent.RequestedEntry <= 0 {
		return nil, g.rejected(intent, reject(ReasonInvalidIntent,
			"intent needs symbol, side and a positive entry price"))
	}

	snapshot := g.ledger.Snapshot()
	assessment := g.monitor.Evaluate(snapshot)
	g.publishAssessment(snapshot, assessment)

	if g.monitor.Halted() {
		return nil, g.rejected(intent, reject(ReasonTradingHalted,
			"trading halted for the session, operator reset required"))
	}
	if snapshot.OpenCount() >= g.cfg.Sizing.MaxPositions {
		return nil, g.rejected(intent, reject(ReasonMaxPositions,
			"%d positions already open (limit %d)", snapshot.OpenCount(), g.cfg.Sizing.MaxPositions))
	}

	entry := intent.RequestedEntry
	stop, rej := g.resolveStop(intent, market)
	if rej != nil {
		return nil, g.rejected(intent, rej)
	}

	quantity, err := g.sizer.Size(sizing.Request{
		Symbol:             intent.Symbol,
		Side:               intent.Side,
		EntryPrice:         entry,
		StopPrice:          stop,
		Volatility:         market.Volatility,
		BaselineVolatility: market.BaselineVolatility,
		MinOrderSize:       g.exchange.MinOrderSize(intent.Symbol),
		LotStep:            g.exchange.LotStep(intent.Symbol),
	}, snapshot)
	if err != nil {
		return nil, g.rejected(intent, rejectionFromSizing(err))
	}

	if rej := g.checkExposure(snapshot, intent.Symbol, quantity*entry); rej != nil {
		return nil, g.rejected(intent, rej)
	}

	takeProfit := intent.TakeProfitOverride
	if takeProfit <= 0 {
		takeProfit = g.stops.TakeProfit(entry, stop, intent.Side)
	}

	now := time.Now().UTC()
	pos := &ledger.Position{
		ID:              uuid.NewString(),
		Symbol:          intent.Symbol,
		Side:            intent.Side,
		Quantity:        quantity,
		EntryPrice:      entry,
		StopPrice:       stop,
		TakeProfitPrice: takeProfit,
		TrailPercent:    g.cfg.StopLoss.TrailingStop.TrailPercent,
		OpenedAt:        now,
	}

	state, err := g.ledger.Apply(ledger.Delta{Kind: ledger.DeltaOpen, Position: pos, Timestamp: now})
	if err != nil {
		g.log.Error().Err(err).Str("symbol", intent.Symbol).Msg("ledger refused open")
		return nil, g.rejected(intent, reject(ReasonInternalError, "%v", err))
	}

	g.bus.Publish(events.PositionOpened{
		Timestamp:  now,
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		StopPrice:  pos.StopPrice,
	})
	monitoring.RecordApproval(pos.Symbol, pos.Quantity*pos.EntryPrice)
	g.updateGauges(state)

	g.log.Info().
		Str("position_id", pos.ID).
		Str("symbol", pos.Symbol).
		Str("strategy", intent.Strategy).
		Float64("quantity", quantity).
		Msg("trade intent approved")

	return &ApprovedOrder{
		PositionID:      pos.ID,
		Symbol:          pos.Symbol,
		Side:            pos.Side,
		Quantity:        pos.Quantity,
		EntryPrice:      pos.EntryPrice,
		StopPrice:       pos.StopPrice,
		TakeProfitPrice: pos.TakeProfitPrice,
		ApprovedAt:      now,
	}, nil
}

func (g *Gate) resolveStop(intent types.TradeIntent, market MarketSnapshot) (float64, *Rejection) {
	entry := intent.RequestedEntry
	if intent.StopOverride > 0 {
		wrongSide := (intent.Side == types.SideLong && intent.StopOverride >= entry) ||
			(intent.Side == types.SideShort && intent.StopOverride <= entry)
		if wrongSide {
			return 0, reject(ReasonInvalidStop,
				"stop override %.4f on wrong side of entry %.4f for %s", intent.StopOverride, entry, intent.Side)
		}
		return intent.StopOverride, nil
	}
	stop, err := g.stops.InitialStop(entry, intent.Side, stoploss.Method(g.cfg.StopLoss.Method),
		stoploss.Params{Window: market.Candles})
	if err != nil {
		return 0, reject(ReasonInvalidStop, "%v", err)
	}
	return stop, nil
}

// checkExposure rejects an open whose notional would push symbol, class or
// total exposure past its limit.
func (g *Gate) checkExposure(snapshot ledger.PortfolioState, symbol string, notional float64) *Rejection {
	if snapshot.Equity <= 0 {
		return reject(ReasonInsufficientEquity, "equity %.2f is not positive", snapshot.Equity)
	}
	bySymbol := snapshot.ExposureBySymbol()

	single := (bySymbol[symbol] + notional) / snapshot.Equity
	if single > g.cfg.Limits.Exposure.SingleAsset {
		return reject(ReasonLimitBreach, "single-asset exposure %.3f would exceed limit %.3f",
			single, g.cfg.Limits.Exposure.SingleAsset)
	}

	class := g.cfg.AssetClass(symbol)
	classExposure := snapshot.ExposureByClass(g.cfg.AssetClass)[class] + notional
	if classExposure/snapshot.Equity > g.cfg.Limits.Exposure.AssetClass {
		return reject(ReasonLimitBreach, "asset-class %q exposure %.3f would exceed limit %.3f",
			class, classExposure/snapshot.Equity, g.cfg.Limits.Exposure.AssetClass)
	}

	total := (snapshot.TotalExposure() + notional) / snapshot.Equity
	if total > g.cfg.Limits.Exposure.Total {
		return reject(ReasonLimitBreach, "total exposure %.3f would exceed limit %.3f",
			total, g.cfg.Limits.Exposure.Total)
	}
	if total > g.cfg.Limits.MaxLeverage {
		return reject(ReasonLimitBreach, "leverage %.3f would exceed limit %.3f",
			total, g.cfg.Limits.MaxLeverage)
	}
	return nil
}

// OnPriceTick refreshes matching positions, advances stops and returns
// closure directives for positions that must be closed. Ticks for one symbol
// are applied in arrival order; the ledger drops anything out of order.
func (g *Gate) OnPriceTick(tick types.PriceTick) []ClosureDirective {
	g.mu.Lock()
	defer g.mu.Unlock()

	if tick.Timestamp.IsZero() {
		tick.Timestamp = time.Now().UTC()
	}

	snapshot := g.ledger.Snapshot()
	var directives []ClosureDirective
	var state ledger.PortfolioState

	for id, pos := range snapshot.OpenPositions {
		if pos.Symbol != tick.Symbol {
			continue
		}

		var err error
		state, err = g.ledger.Apply(ledger.Delta{
			Kind:       ledger.DeltaPriceRefresh,
			PositionID: id,
			Price:      tick.Price,
			Timestamp:  tick.Timestamp,
		})
		if err != nil {
			g.log.Error().Err(err).Str("position_id", id).Msg("price refresh failed")
			continue
		}
		current := state.OpenPositions[id]

		if current.Status == ledger.StatusPendingClose {
			// Already directed; nothing further until the close confirms.
			continue
		}

		current = g.advanceStops(current, tick)

		if reason, closeNow := g.stops.ShouldClose(current, tick.Price); closeNow {
			if _, err := g.ledger.Apply(ledger.Delta{
				Kind:       ledger.DeltaPendingClose,
				PositionID: id,
				Reason:     string(reason),
				Timestamp:  tick.Timestamp,
			}); err != nil {
				g.log.Error().Err(err).Str("position_id", id).Msg("pending close failed")
				continue
			}
			directives = append(directives, ClosureDirective{
				PositionID: id,
				Symbol:     current.Symbol,
				Side:       current.Side,
				Quantity:   current.Quantity,
				Price:      tick.Price,
				Reason:     string(reason),
				Timestamp:  tick.Timestamp,
			})
		}
	}

	latest := g.ledger.Snapshot()
	assessment := g.monitor.Evaluate(latest)
	g.publishAssessment(latest, assessment)
	g.updateGauges(latest)

	return directives
}

// advanceStops applies break-even migration then trailing advancement, each
// only when strictly tighter, and returns the refreshed position.
func (g *Gate) advanceStops(pos ledger.Position, tick types.PriceTick) ledger.Position {
	if candidate, ok := g.stops.MaybeBreakEven(pos, tick.Price); ok {
		if updated, applied := g.applyStop(pos, candidate, ledger.BreakEvenReason, events.StopKindBreakEven, tick); applied {
			pos = updated
		}
	}
	if candidate, ok := g.stops.AdvanceTrailing(pos, tick.Price); ok {
		if updated, applied := g.applyStop(pos, candidate, "trailing", events.StopKindTrailing, tick); applied {
			pos = updated
		}
	}
	return pos
}

func (g *Gate) applyStop(pos ledger.Position, newStop float64, reason string, kind events.StopKind, tick types.PriceTick) (ledger.Position, bool) {
	state, err := g.ledger.Apply(ledger.Delta{
		Kind:       ledger.DeltaStopUpdate,
		PositionID: pos.ID,
		NewStop:    newStop,
		Reason:     reason,
		Timestamp:  tick.Timestamp,
	})
	if err != nil {
		g.log.Error().Err(err).Str("position_id", pos.ID).Msg("stop update refused")
		return pos, false
	}
	g.bus.Publish(events.StopAdjusted{
		Timestamp:  tick.Timestamp,
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		OldStop:    pos.StopPrice,
		NewStop:    newStop,
		Adjustment: kind,
	})
	monitoring.RecordStopAdjustment(string(kind))
	return state.OpenPositions[pos.ID], true
}

// ConfirmClose completes a closure directive: the exchange layer reports the
// executed exit and the ledger realizes P&L.
func (g *Gate) ConfirmClose(positionID string, exitPrice, fees float64) (*ledger.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closeLocked(positionID, exitPrice, fees, "")
}

// RequestClose closes a position on explicit request (operator or strategy),
// bypassing the directive handshake.
func (g *Gate) RequestClose(positionID string, exitPrice, fees float64, reason string) (*ledger.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if reason == "" {
		reason = "manual"
	}
	return g.closeLocked(positionID, exitPrice, fees, reason)
}

func (g *Gate) closeLocked(positionID string, exitPrice, fees float64, reason string) (*ledger.Position, error) {
	now := time.Now().UTC()
	state, err := g.ledger.Apply(ledger.Delta{
		Kind:       ledger.DeltaClose,
		PositionID: positionID,
		Price:      exitPrice,
		Fees:       fees,
		Reason:     reason,
		Timestamp:  now,
	})
	if err != nil {
		return nil, err
	}

	var closed ledger.Position
	for _, p := range g.ledger.ClosedPositions("") {
		if p.ID == positionID {
			closed = p
			break
		}
	}

	g.bus.Publish(events.PositionClosed{
		Timestamp:   now,
		PositionID:  closed.ID,
		Symbol:      closed.Symbol,
		ExitPrice:   exitPrice,
		RealizedPnL: closed.RealizedPnL,
		Reason:      closed.CloseReason,
	})
	g.updateGauges(state)
	return &closed, nil
}

// ResetSession is the operator action that recovers from HALTED: the halt
// latch clears and the high-water mark re-baselines to current equity.
func (g *Gate) ResetSession() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.monitor.Reset()
	g.ledger.ResetPeak()
	g.activeBreaches = make(map[string]string)
	g.log.Warn().Msg("session reset by operator")
}

// Close shuts the event stream down.
func (g *Gate) Close() {
	g.bus.Close()
}

func (g *Gate) rejected(intent types.TradeIntent, rej *Rejection) *Rejection {
	monitoring.RecordRejection(string(rej.Code))
	g.log.Info().
		Str("symbol", intent.Symbol).
		Str("strategy", intent.Strategy).
		Str("reason", string(rej.Code)).
		Str("detail", rej.Message).
		Msg("trade intent rejected")
	return rej
}

// publishAssessment announces limit breaches. A sustained breach is announced
// once per resulting state, not on every evaluation; it re-arms when the
// limit recovers or the state changes.
func (g *Gate) publishAssessment(state ledger.PortfolioState, assessment monitor.Assessment) {
	current := make(map[string]struct{}, len(assessment.Breaches))
	for _, b := range assessment.Breaches {
		current[b.LimitType] = struct{}{}
		resulting := assessment.State.String()
		if g.activeBreaches[b.LimitType] == resulting {
			continue
		}
		g.activeBreaches[b.LimitType] = resulting
		g.bus.Publish(events.RiskLimitBreached{
			Timestamp:      time.Now().UTC(),
			LimitType:      b.LimitType,
			CurrentValue:   b.Current,
			Threshold:      b.Limit,
			ResultingState: resulting,
		})
	}
	for limit := range g.activeBreaches {
		if _, ok := current[limit]; !ok {
			delete(g.activeBreaches, limit)
		}
	}
	g.updateGaugesWithState(state, assessment.State)
}

func (g *Gate) updateGauges(state ledger.PortfolioState) {
	g.updateGaugesWithState(state, g.monitor.Evaluate(state).State)
}

func (g *Gate) updateGaugesWithState(state ledger.PortfolioState, rs monitor.RiskState) {
	monitoring.UpdatePortfolio(state.OpenCount(), state.Equity, monitor.Drawdown(state), int(rs))
}
