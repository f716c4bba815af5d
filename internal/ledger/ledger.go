package ledger

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ducminhle1904/risk-engine/pkg/types"
)

// Ledger is the authoritative in-memory record of equity, open positions and
// realized P&L. Every mutation is a single atomic step under one mutex;
// readers only ever observe fully applied state.
type Ledger struct {
	mu sync.Mutex

	cash             float64
	equity           float64
	peakEquity       float64
	realizedPnLToday float64

	positions map[string]*Position
	closed    []*Position

	resetHour   int
	resetMinute int
	lastReset   time.Time

	sessionStart time.Time
	lastUpdated  time.Time

	now func() time.Time
	log zerolog.Logger
}

// New creates a ledger with the given starting equity and daily reset
// boundary (UTC hour/minute).
func New(initialEquity float64, resetHour, resetMinute int, log zerolog.Logger) *Ledger {
	now := time.Now().UTC()
	l := &Ledger{
		cash:         initialEquity,
		equity:       initialEquity,
		peakEquity:   initialEquity,
		positions:    make(map[string]*Position),
		resetHour:    resetHour,
		resetMinute:  resetMinute,
		sessionStart: now,
		lastUpdated:  now,
		now:          func() time.Time { return time.Now().UTC() },
		log:          log,
	}
	l.lastReset = l.boundaryBefore(now)
	return l
}

// SetClock overrides the ledger clock. Test hook.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Snapshot returns a consistent deep copy of portfolio state.
func (l *Ledger) Snapshot() PortfolioState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() PortfolioState {
	open := make(map[string]Position, len(l.positions))
	for id, p := range l.positions {
		open[id] = *p
	}
	return PortfolioState{
		Equity:           l.equity,
		PeakEquity:       l.peakEquity,
		CashBalance:      l.cash,
		RealizedPnLToday: l.realizedPnLToday,
		OpenPositions:    open,
		SessionStart:     l.sessionStart,
		DailyResetAt:     l.lastReset,
		LastUpdated:      l.lastUpdated,
	}
}

// Apply executes one atomic mutation and returns the resulting state. A
// returned error means nothing was applied.
func (l *Ledger) Apply(d Delta) (PortfolioState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := d.Timestamp
	if now.IsZero() {
		now = l.now()
	}
	l.resetDailyIfNeeded(now)

	var err error
	switch d.Kind {
	case DeltaOpen:
		err = l.applyOpen(d, now)
	case DeltaClose:
		err = l.applyClose(d, now)
	case DeltaPriceRefresh:
		err = l.applyPriceRefresh(d, now)
	case DeltaStopUpdate:
		err = l.applyStopUpdate(d, now)
	case DeltaPendingClose:
		err = l.applyPendingClose(d, now)
	default:
		err = newError(ErrCodeInvariantViolation, d.PositionID, "unknown delta kind %q", d.Kind)
	}
	if err != nil {
		return PortfolioState{}, err
	}

	l.recomputeEquity(now)
	return l.snapshotLocked(), nil
}

func (l *Ledger) applyOpen(d Delta, now time.Time) error {
	p := d.Position
	if p == nil {
		return newError(ErrCodeInvariantViolation, "", "open delta carries no position")
	}
	if p.Quantity <= 0 {
		return newError(ErrCodeNonPositiveQuantity, p.ID, "open quantity %.8f must be positive", p.Quantity)
	}
	if !p.Side.Valid() {
		return newError(ErrCodeInvariantViolation, p.ID, "invalid side %q", p.Side)
	}
	if _, exists := l.positions[p.ID]; exists {
		return newError(ErrCodeDuplicatePosition, p.ID, "position already open")
	}
	if !stopOnLossSide(p.Side, p.EntryPrice, p.StopPrice) {
		return newError(ErrCodeInvariantViolation, p.ID,
			"stop %.4f on wrong side of entry %.4f for %s", p.StopPrice, p.EntryPrice, p.Side)
	}

	cp := *p
	cp.Status = StatusOpen
	cp.CurrentPrice = cp.EntryPrice
	cp.HighestPrice = cp.EntryPrice
	cp.LowestPrice = cp.EntryPrice
	cp.UnrealizedPnL = cp.pnlAt(cp.EntryPrice)
	if cp.OpenedAt.IsZero() {
		cp.OpenedAt = now
	}
	cp.LastUpdate = now

	l.positions[cp.ID] = &cp
	l.log.Info().
		Str("position_id", cp.ID).
		Str("symbol", cp.Symbol).
		Str("side", string(cp.Side)).
		Float64("quantity", cp.Quantity).
		Float64("entry", cp.EntryPrice).
		Float64("stop", cp.StopPrice).
		Msg("position opened")
	return nil
}

func (l *Ledger) applyClose(d Delta, now time.Time) error {
	p, ok := l.positions[d.PositionID]
	if !ok {
		return newError(ErrCodeUnknownPosition, d.PositionID, "close references missing position")
	}

	p.Fees += d.Fees
	p.CurrentPrice = d.Price
	p.ExitPrice = d.Price
	p.ExitTime = now
	p.Status = StatusClosed
	if d.Reason != "" {
		p.CloseReason = d.Reason
	}
	p.RealizedPnL = p.pnlAt(d.Price)
	p.UnrealizedPnL = 0
	p.LastUpdate = now

	l.cash += p.RealizedPnL
	l.realizedPnLToday += p.RealizedPnL

	delete(l.positions, d.PositionID)
	l.closed = append(l.closed, p)

	l.log.Info().
		Str("position_id", p.ID).
		Str("symbol", p.Symbol).
		Float64("exit", d.Price).
		Float64("realized_pnl", p.RealizedPnL).
		Str("reason", p.CloseReason).
		Msg("position closed")
	return nil
}

func (l *Ledger) applyPriceRefresh(d Delta, now time.Time) error {
	p, ok := l.positions[d.PositionID]
	if !ok {
		return newError(ErrCodeUnknownPosition, d.PositionID, "price refresh references missing position")
	}
	// Out-of-order ticks are dropped: current_price never rolls back in
	// time. Ticks are compared only against the last accepted tick, in the
	// exchange clock domain; the open's local wall-clock stamp must not
	// gate them.
	if now.Before(p.LastTickAt) {
		return nil
	}
	p.CurrentPrice = d.Price
	if d.Price > p.HighestPrice {
		p.HighestPrice = d.Price
	}
	if d.Price < p.LowestPrice {
		p.LowestPrice = d.Price
	}
	p.UnrealizedPnL = p.pnlAt(d.Price)
	p.LastTickAt = now
	p.LastUpdate = now
	return nil
}

func (l *Ledger) applyStopUpdate(d Delta, now time.Time) error {
	p, ok := l.positions[d.PositionID]
	if !ok {
		return newError(ErrCodeUnknownPosition, d.PositionID, "stop update references missing position")
	}
	// Stops only ever tighten. A loosening stop is a policy defect, refused
	// rather than silently corrected.
	if p.Side == types.SideLong && d.NewStop <= p.StopPrice {
		return newError(ErrCodeInvariantViolation, p.ID,
			"long stop %.4f does not tighten current %.4f", d.NewStop, p.StopPrice)
	}
	if p.Side == types.SideShort && d.NewStop >= p.StopPrice {
		return newError(ErrCodeInvariantViolation, p.ID,
			"short stop %.4f does not tighten current %.4f", d.NewStop, p.StopPrice)
	}
	old := p.StopPrice
	p.StopPrice = d.NewStop
	if d.Reason == string(reasonBreakEven) {
		p.BreakEvenApplied = true
	}
	p.LastUpdate = now
	l.log.Debug().
		Str("position_id", p.ID).
		Float64("old_stop", old).
		Float64("new_stop", d.NewStop).
		Str("kind", d.Reason).
		Msg("stop advanced")
	return nil
}

func (l *Ledger) applyPendingClose(d Delta, now time.Time) error {
	p, ok := l.positions[d.PositionID]
	if !ok {
		return newError(ErrCodeUnknownPosition, d.PositionID, "pending close references missing position")
	}
	p.Status = StatusPendingClose
	p.CloseReason = d.Reason
	p.LastUpdate = now
	return nil
}

type stopReason string

const reasonBreakEven stopReason = "break_even"

// BreakEvenReason is the stop-update reason that marks break-even migration.
const BreakEvenReason = string(reasonBreakEven)

func (l *Ledger) recomputeEquity(now time.Time) {
	equity := l.cash
	for _, p := range l.positions {
		equity += p.UnrealizedPnL
	}
	l.equity = equity
	// Peak is recomputed in the same critical section as the equity change,
	// so readers never observe peak < equity.
	if l.equity > l.peakEquity {
		l.peakEquity = l.equity
	}
	l.lastUpdated = now
}

func (l *Ledger) resetDailyIfNeeded(now time.Time) {
	boundary := l.boundaryBefore(now)
	if boundary.After(l.lastReset) {
		l.realizedPnLToday = 0
		l.lastReset = boundary
		l.log.Info().Time("boundary", boundary).Msg("daily P&L reset")
	}
}

// boundaryBefore returns the most recent configured reset boundary at or
// before t.
func (l *Ledger) boundaryBefore(t time.Time) time.Time {
	b := time.Date(t.Year(), t.Month(), t.Day(), l.resetHour, l.resetMinute, 0, 0, time.UTC)
	if b.After(t) {
		b = b.AddDate(0, 0, -1)
	}
	return b
}

// Restore rebuilds the ledger from externally supplied position snapshots
// after a restart. Cash is derived so that the restored equity matches the
// supplied account equity.
func (l *Ledger) Restore(snapshots []types.PositionSnapshot, equity float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	positions := make(map[string]*Position, len(snapshots))
	unrealized := 0.0
	for _, s := range snapshots {
		if s.Quantity <= 0 {
			return newError(ErrCodeNonPositiveQuantity, s.ID, "snapshot quantity %.8f must be positive", s.Quantity)
		}
		if !stopOnLossSide(s.Side, s.EntryPrice, s.StopPrice) {
			return newError(ErrCodeInvariantViolation, s.ID,
				"snapshot stop %.4f on wrong side of entry %.4f for %s", s.StopPrice, s.EntryPrice, s.Side)
		}
		p := &Position{
			ID:              s.ID,
			Symbol:          s.Symbol,
			Side:            s.Side,
			Quantity:        s.Quantity,
			EntryPrice:      s.EntryPrice,
			CurrentPrice:    s.CurrentPrice,
			StopPrice:       s.StopPrice,
			TakeProfitPrice: s.TakeProfitPrice,
			TrailPercent:    s.TrailPercent,
			HighestPrice:    s.CurrentPrice,
			LowestPrice:     s.CurrentPrice,
			Fees:            s.Fees,
			Status:          StatusOpen,
			OpenedAt:        s.OpenedAt,
			LastUpdate:      now,
		}
		p.UnrealizedPnL = p.pnlAt(p.CurrentPrice)
		positions[p.ID] = p
		unrealized += p.UnrealizedPnL
	}

	l.positions = positions
	l.cash = equity - unrealized
	l.equity = equity
	if l.peakEquity < equity {
		l.peakEquity = equity
	}
	l.lastUpdated = now
	l.log.Info().Int("positions", len(positions)).Float64("equity", equity).Msg("ledger restored from snapshots")
	return nil
}

// ResetPeak re-baselines the high-water mark to current equity and clears
// today's realized loss. Operator action, part of a session reset.
func (l *Ledger) ResetPeak() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.peakEquity = l.equity
	l.realizedPnLToday = 0
	l.lastUpdated = l.now()
	l.log.Warn().Float64("equity", l.equity).Msg("peak equity re-baselined by operator")
}

// ClosedPositions returns archived positions, optionally filtered by symbol.
func (l *Ledger) ClosedPositions(symbol string) []Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Position, 0, len(l.closed))
	for _, p := range l.closed {
		if symbol != "" && p.Symbol != symbol {
			continue
		}
		out = append(out, *p)
	}
	return out
}

func stopOnLossSide(side types.Side, entry, stop float64) bool {
	if stop <= 0 {
		return false
	}
	if side == types.SideLong {
		return stop < entry
	}
	return stop > entry
}
