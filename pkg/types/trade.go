package types

import "time"

// Side identifies the direction of a position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// TradeIntent is a candidate trade proposed by a strategy. The engine only
// ever sees this value type, never the strategy that produced it.
type TradeIntent struct {
	Symbol         string
	Side           Side
	RequestedEntry float64

	// StopOverride, when > 0, replaces the configured stop computation.
	StopOverride float64
	// TakeProfitOverride, when > 0, replaces the configured risk-reward target.
	TakeProfitOverride float64

	// Strategy tags the producer for logging and reporting.
	Strategy string
}

// PositionSnapshot is the externally supplied record used to rebuild the
// ledger after a restart. The engine itself never persists anything.
type PositionSnapshot struct {
	ID              string
	Symbol          string
	Side            Side
	Quantity        float64
	EntryPrice      float64
	CurrentPrice    float64
	StopPrice       float64
	TakeProfitPrice float64
	TrailPercent    float64
	Fees            float64
	OpenedAt        time.Time
}
