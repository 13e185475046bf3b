package model

import "github.com/shopspring/decimal"

type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// MarginMode selects how collateral backs a position.
type MarginMode string

const (
	MarginModeIsolated MarginMode = "ISOLATED"
	MarginModeCrossed  MarginMode = "CROSSED"
)

// Position is exchange-reported open exposure. Quantity is always the
// absolute size; the side carries the direction, derived by the gateway from
// the sign of the raw position amount.
type Position struct {
	Symbol        string          `json:"symbol"`
	Side          PositionSide    `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	UnrealizedPnl decimal.Decimal `json:"unrealized_pnl"`
	Leverage      int             `json:"leverage"`
}

func (p Position) IsLong() bool {
	return p.Side == PositionSideLong
}

// CloseSide is the order side that reduces the position.
func (p Position) CloseSide() OrderSide {
	if p.IsLong() {
		return OrderSideSell
	}
	return OrderSideBuy
}
