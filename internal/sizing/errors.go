package sizing

import (
	"errors"
	"fmt"
)

// ErrorCode classifies sizing failures. All of them surface to the caller as
// rejections, never as crashes.
type ErrorCode string

const (
	ErrCodeInvalidStop       ErrorCode = "INVALID_STOP"
	ErrCodeInsufficientSize  ErrorCode = "INSUFFICIENT_SIZE"
	ErrCodeNonPositiveEquity ErrorCode = "NON_POSITIVE_EQUITY"
)

// SizingError is a categorized sizing failure.
type SizingError struct {
	Code    ErrorCode
	Symbol  string
	Message string
}

func (e *SizingError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Symbol, e.Message)
}

func newError(code ErrorCode, symbol, format string, args ...interface{}) *SizingError {
	return &SizingError{Code: code, Symbol: symbol, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the sizing error code, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var se *SizingError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
