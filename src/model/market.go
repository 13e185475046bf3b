package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticker is a freshness-checked market data snapshot. Timestamp may be zero
// when the venue did not report one; the gateway logs that case instead of
// refusing outright.
type Ticker struct {
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Last      decimal.Decimal `json:"last"`
	Timestamp time.Time       `json:"timestamp"`
}

// HasBook reports whether both sides of the book were available. Some venues
// (testnets in particular) omit bid/ask, in which case callers fall back to
// the last traded price.
func (t Ticker) HasBook() bool {
	return t.Bid.IsPositive() && t.Ask.IsPositive()
}

// SymbolMeta is the cached trading-rule snapshot for one instrument.
// Immutable once cached; the gateway refreshes the whole table on TTL expiry.
type SymbolMeta struct {
	Symbol      string          `json:"symbol"`
	StepSize    decimal.Decimal `json:"step_size"`
	TickSize    decimal.Decimal `json:"tick_size"`
	MinNotional decimal.Decimal `json:"min_notional"`
}

// Balance is the available margin currency balance.
type Balance struct {
	Asset     string          `json:"asset"`
	Available decimal.Decimal `json:"available"`
	Total     decimal.Decimal `json:"total"`
}
