package ledger

import (
	"time"

	"github.com/ducminhle1904/risk-engine/pkg/types"
)

// PositionStatus tracks a position through its lifecycle.
type PositionStatus string

const (
	StatusOpen         PositionStatus = "OPEN"
	StatusPendingClose PositionStatus = "PENDING_CLOSE"
	StatusClosed       PositionStatus = "CLOSED"
)

// Position is an open (or archived) trading position. All mutation goes
// through Ledger.Apply; callers only ever see copies.
type Position struct {
	ID              string
	Symbol          string
	Side            types.Side
	Quantity        float64
	EntryPrice      float64
	CurrentPrice    float64
	StopPrice       float64
	TakeProfitPrice float64

	// Trailing / break-even state, mutated only via stop-update deltas.
	TrailPercent     float64
	BreakEvenApplied bool

	HighestPrice  float64
	LowestPrice   float64
	Fees          float64
	UnrealizedPnL float64
	RealizedPnL   float64

	// LastTickAt is the exchange timestamp of the last accepted price
	// refresh. Ticks are ordered against it, never against LastUpdate,
	// which opens and stop updates stamp in the local clock domain.
	LastTickAt time.Time

	Status      PositionStatus
	CloseReason string
	OpenedAt    time.Time
	LastUpdate  time.Time
	ExitTime    time.Time
	ExitPrice   float64
}

// Notional returns the position's current notional value.
func (p *Position) Notional() float64 {
	return p.CurrentPrice * p.Quantity
}

// pnlAt computes P&L at the given price, net of accumulated fees.
func (p *Position) pnlAt(price float64) float64 {
	if p.Side == types.SideLong {
		return (price-p.EntryPrice)*p.Quantity - p.Fees
	}
	return (p.EntryPrice-price)*p.Quantity - p.Fees
}

// ProfitRatio returns the unrealized move from entry as a signed fraction of
// the entry price, positive when favorable.
func (p *Position) ProfitRatio() float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	if p.Side == types.SideLong {
		return (p.CurrentPrice - p.EntryPrice) / p.EntryPrice
	}
	return (p.EntryPrice - p.CurrentPrice) / p.EntryPrice
}

// PortfolioState is a consistent read-only snapshot of the ledger.
type PortfolioState struct {
	Equity           float64
	PeakEquity       float64
	CashBalance      float64
	RealizedPnLToday float64
	OpenPositions    map[string]Position
	SessionStart     time.Time
	DailyResetAt     time.Time
	LastUpdated      time.Time
}

// OpenCount returns the number of positions still held, including those
// pending close confirmation.
func (s PortfolioState) OpenCount() int {
	return len(s.OpenPositions)
}

// TotalExposure returns the summed notional of all held positions.
func (s PortfolioState) TotalExposure() float64 {
	total := 0.0
	for _, p := range s.OpenPositions {
		total += p.Notional()
	}
	return total
}

// ExposureBySymbol returns notional exposure keyed by symbol.
func (s PortfolioState) ExposureBySymbol() map[string]float64 {
	out := make(map[string]float64, len(s.OpenPositions))
	for _, p := range s.OpenPositions {
		out[p.Symbol] += p.Notional()
	}
	return out
}

// ExposureByClass returns notional exposure keyed by the bucket classOf
// assigns each symbol. The ledger does not own the class mapping.
func (s PortfolioState) ExposureByClass(classOf func(symbol string) string) map[string]float64 {
	out := make(map[string]float64)
	for _, p := range s.OpenPositions {
		out[classOf(p.Symbol)] += p.Notional()
	}
	return out
}

// DeltaKind selects the mutation a Delta carries.
type DeltaKind string

const (
	DeltaOpen         DeltaKind = "open"
	DeltaClose        DeltaKind = "close"
	DeltaPriceRefresh DeltaKind = "price_refresh"
	DeltaStopUpdate   DeltaKind = "stop_update"
	DeltaPendingClose DeltaKind = "pending_close"
)

// Delta is a single atomic ledger mutation.
type Delta struct {
	Kind       DeltaKind
	Position   *Position // open only
	PositionID string
	Price      float64 // price refresh / exit price
	Fees       float64 // exit fees on close
	NewStop    float64
	Reason     string
	Timestamp  time.Time
}
