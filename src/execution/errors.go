package execution

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SpreadTooWideError aborts an entry before any order is sent because the
// book spread exceeds the configured ceiling.
type SpreadTooWideError struct {
	Symbol string
	Ratio  decimal.Decimal
	Max    decimal.Decimal
}

func (e *SpreadTooWideError) Error() string {
	return fmt.Sprintf("spread too wide for %s: %s exceeds %s", e.Symbol, e.Ratio, e.Max)
}

// ExecutionError is a failed entry that left no unprotected exposure behind:
// either nothing was filled or the filled quantity was unwound.
type ExecutionError struct {
	Stage  string
	Symbol string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed at %s for %s: %v", e.Stage, e.Symbol, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// CriticalError means a position is open without a protective stop and the
// emergency unwind also failed. Trading must halt until an operator resolves
// the exposure by hand.
type CriticalError struct {
	Symbol string
	Reason string
	Err    error
}

func (e *CriticalError) Error() string {
	return fmt.Sprintf("CRITICAL: unprotected position on %s (%s): %v", e.Symbol, e.Reason, e.Err)
}

func (e *CriticalError) Unwrap() error { return e.Err }
