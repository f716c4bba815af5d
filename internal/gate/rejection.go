package gate

import (
	"fmt"

	"github.com/ducminhle1904/risk-engine/internal/sizing"
)

// ReasonCode is the machine-readable rejection reason carried back to the
// proposing strategy.
type ReasonCode string

const (
	ReasonTradingHalted      ReasonCode = "TRADING_HALTED"
	ReasonMaxPositions       ReasonCode = "MAX_POSITIONS"
	ReasonInvalidIntent      ReasonCode = "INVALID_INTENT"
	ReasonInvalidStop        ReasonCode = "INVALID_STOP"
	ReasonInsufficientSize   ReasonCode = "INSUFFICIENT_SIZE"
	ReasonInsufficientEquity ReasonCode = "INSUFFICIENT_EQUITY"
	ReasonLimitBreach        ReasonCode = "LIMIT_BREACH"

	// ReasonInternalError marks a refused mutation (invariant violation).
	// Unlike the codes above it is a defect, not a business outcome.
	ReasonInternalError ReasonCode = "INTERNAL_ERROR"
)

// Rejection is the typed non-exceptional outcome of a declined trade intent.
type Rejection struct {
	Code    ReasonCode
	Message string
}

func (r *Rejection) String() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

func reject(code ReasonCode, format string, args ...interface{}) *Rejection {
	return &Rejection{Code: code, Message: fmt.Sprintf(format, args...)}
}

// rejectionFromSizing maps sizer error codes onto gate reason codes.
func rejectionFromSizing(err error) *Rejection {
	switch sizing.CodeOf(err) {
	case sizing.ErrCodeInvalidStop:
		return reject(ReasonInvalidStop, "%v", err)
	case sizing.ErrCodeInsufficientSize:
		return reject(ReasonInsufficientSize, "%v", err)
	case sizing.ErrCodeNonPositiveEquity:
		return reject(ReasonInsufficientEquity, "%v", err)
	default:
		return reject(ReasonInternalError, "%v", err)
	}
}
