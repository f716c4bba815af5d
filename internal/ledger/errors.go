package ledger

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode classifies ledger failures.
type ErrorCode string

const (
	ErrCodeUnknownPosition     ErrorCode = "UNKNOWN_POSITION"
	ErrCodeDuplicatePosition   ErrorCode = "DUPLICATE_POSITION"
	ErrCodeNonPositiveQuantity ErrorCode = "NON_POSITIVE_QUANTITY"

	// ErrCodeInvariantViolation marks a mutation the ledger refused because
	// applying it would corrupt state. These are engine defects, never
	// recovered into a rejection.
	ErrCodeInvariantViolation ErrorCode = "INVARIANT_VIOLATION"
)

// LedgerError is a categorized ledger failure.
type LedgerError struct {
	Code       ErrorCode
	Message    string
	PositionID string
	Timestamp  time.Time
}

func (e *LedgerError) Error() string {
	if e.PositionID != "" {
		return fmt.Sprintf("[%s] %s (position %s)", e.Code, e.Message, e.PositionID)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func newError(code ErrorCode, positionID, format string, args ...interface{}) *LedgerError {
	return &LedgerError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		PositionID: positionID,
		Timestamp:  time.Now(),
	}
}

// CodeOf extracts the ledger error code, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsInvariantViolation reports whether err is a refused-mutation defect.
func IsInvariantViolation(err error) bool {
	return CodeOf(err) == ErrCodeInvariantViolation
}
