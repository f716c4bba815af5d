package events

import (
	"time"

	"github.com/ducminhle1904/risk-engine/pkg/types"
)

// Type identifies an engine event kind.
type Type string

const (
	TypePositionOpened    Type = "position_opened"
	TypePositionClosed    Type = "position_closed"
	TypeStopAdjusted      Type = "stop_adjusted"
	TypeRiskLimitBreached Type = "risk_limit_breached"
)

// StopKind distinguishes the two stop-tightening mechanisms.
type StopKind string

const (
	StopKindTrailing  StopKind = "trailing"
	StopKindBreakEven StopKind = "break_even"
)

// Event is the common surface of all engine events.
type Event interface {
	Kind() Type
	When() time.Time
}

// PositionOpened is emitted after the ledger commits an approved open.
type PositionOpened struct {
	Timestamp  time.Time
	PositionID string
	Symbol     string
	Side       types.Side
	Quantity   float64
	EntryPrice float64
	StopPrice  float64
}

func (e PositionOpened) Kind() Type { return TypePositionOpened }
func (e PositionOpened) When() time.Time { return e.Timestamp }

// PositionClosed is emitted after a close is confirmed and P&L realized.
type PositionClosed struct {
	Timestamp   time.Time
	PositionID  string
	Symbol      string
	ExitPrice   float64
	RealizedPnL float64
	Reason      string
}

func (e PositionClosed) Kind() Type { return TypePositionClosed }
func (e PositionClosed) When() time.Time { return e.Timestamp }

// StopAdjusted is emitted whenever a protective stop tightens.
type StopAdjusted struct {
	Timestamp  time.Time
	PositionID string
	Symbol     string
	OldStop    float64
	NewStop    float64
	Adjustment StopKind
}

func (e StopAdjusted) Kind() Type { return TypeStopAdjusted }
func (e StopAdjusted) When() time.Time { return e.Timestamp }

// RiskLimitBreached is emitted for every limit ratio at or above its warning
// threshold during an evaluation.
type RiskLimitBreached struct {
	Timestamp      time.Time
	LimitType      string
	CurrentValue   float64
	Threshold      float64
	ResultingState string
}

func (e RiskLimitBreached) Kind() Type { return TypeRiskLimitBreached }
func (e RiskLimitBreached) When() time.Time { return e.Timestamp }
