package connectors

import (
	"fmt"
	"time"
)

// StaleDataError signals that market data is older than the freshness
// threshold and must not be traded on.
type StaleDataError struct {
	Symbol    string
	Age       time.Duration
	Threshold time.Duration
}

func (e *StaleDataError) Error() string {
	return fmt.Sprintf("stale market data for %s: age %s exceeds threshold %s", e.Symbol, e.Age, e.Threshold)
}

// RejectionError is a definitive business rejection from the exchange
// (insufficient margin, bad price, filter violations). Retrying the same
// request cannot succeed.
type RejectionError struct {
	Code    int
	Msg     string
	Symbol  string
	Request string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("exchange rejected %s for %s: %s (code %d)", e.Request, e.Symbol, GetErrorMsg(e.Code, e.Msg), e.Code)
}

// IsInsufficientMargin reports whether the rejection was for lack of margin.
func (e *RejectionError) IsInsufficientMargin() bool {
	return e.Code == -2019
}
