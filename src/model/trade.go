package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord is a closed-trade outcome appended to the in-memory ledger.
type TradeRecord struct {
	Symbol     string          `json:"symbol"`
	Side       PositionSide    `json:"side"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	Pnl        decimal.Decimal `json:"pnl"`
	Win        bool            `json:"win"`
	Timestamp  time.Time       `json:"timestamp"`
}
