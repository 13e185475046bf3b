package model

import "github.com/shopspring/decimal"

// Signal is what the scanner hands to the entry path. The trading core only
// consumes this struct; it never re-validates the indicator math behind it.
type Signal struct {
	Symbol        string          `json:"symbol"`
	Direction     PositionSide    `json:"direction"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	StoplossPrice decimal.Decimal `json:"stoploss_price"`
	Strength      float64         `json:"strength"`
	Reason        string          `json:"reason"`
}
