package calculator

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInvalidStep is returned when a rounding step or tick is zero or negative.
var ErrInvalidStep = errors.New("calculator: step must be positive")

var (
	one        = decimal.NewFromInt(1)
	two        = decimal.NewFromInt(2)
	oneHundred = decimal.NewFromInt(100)
)

// FloorToStep rounds value down to the nearest multiple of step.
// The result never exceeds value.
func FloorToStep(value, step decimal.Decimal) (decimal.Decimal, error) {
	if step.Sign() <= 0 {
		return decimal.Zero, ErrInvalidStep
	}
	return value.Div(step).Floor().Mul(step), nil
}

// FloorPriceToTick rounds price down to the nearest multiple of tick.
func FloorPriceToTick(price, tick decimal.Decimal) (decimal.Decimal, error) {
	return FloorToStep(price, tick)
}

// PositionSize computes the order quantity from risk-based sizing.
//
// The risk budget is balance * riskPct percent, amplified by leverage; the
// per-unit loss is the distance between entry and stop. The resulting
// quantity is capped by the max-position limit (balance * maxPositionPct
// percent of notional, with leverage) and floored to step. Degenerate inputs
// yield zero, never an error and never a negative quantity.
func PositionSize(balance, riskPct, entry, stop, step decimal.Decimal, leverage int, maxPositionPct decimal.Decimal) decimal.Decimal {
	if balance.Sign() <= 0 || entry.Sign() <= 0 || step.Sign() <= 0 || leverage <= 0 {
		return decimal.Zero
	}
	perUnitLoss := entry.Sub(stop).Abs()
	if perUnitLoss.Sign() == 0 {
		return decimal.Zero
	}
	riskAmount := balance.Mul(riskPct).Div(oneHundred)
	if riskAmount.Sign() <= 0 {
		return decimal.Zero
	}
	lev := decimal.NewFromInt(int64(leverage))
	qty := riskAmount.Mul(lev).Div(perUnitLoss)

	if maxPositionPct.Sign() > 0 {
		maxNotional := balance.Mul(maxPositionPct).Div(oneHundred).Mul(lev)
		maxQty := maxNotional.Div(entry)
		if qty.GreaterThan(maxQty) {
			qty = maxQty
		}
	}

	floored, err := FloorToStep(qty, step)
	if err != nil || floored.Sign() < 0 {
		return decimal.Zero
	}
	return floored
}

// ValidMinNotional reports whether qty*price clears the exchange minimum.
func ValidMinNotional(qty, price, minNotional decimal.Decimal) bool {
	return qty.Mul(price).GreaterThanOrEqual(minNotional)
}

// StopPrice derives the protective stop from the entry price.
//
// For a long the stop sits stopPct percent below entry. For a short the
// multiplier is mirrored above entry: entry * (2 - (1 - stopPct/100)).
func StopPrice(entry, stopPct decimal.Decimal, isLong bool, tick decimal.Decimal) (decimal.Decimal, error) {
	mult := one.Sub(stopPct.Div(oneHundred))
	if !isLong {
		mult = two.Sub(mult)
	}
	return FloorPriceToTick(entry.Mul(mult), tick)
}

// TakeProfitPrice derives the profit target from the entry price, mirrored
// across sides the same way StopPrice is.
func TakeProfitPrice(entry, tpPct decimal.Decimal, isLong bool, tick decimal.Decimal) (decimal.Decimal, error) {
	mult := one.Add(tpPct.Div(oneHundred))
	if !isLong {
		mult = two.Sub(mult)
	}
	return FloorPriceToTick(entry.Mul(mult), tick)
}

// PnL returns the signed profit for qty units between entry and exit.
func PnL(entry, exit, qty decimal.Decimal, isLong bool) decimal.Decimal {
	diff := exit.Sub(entry)
	if !isLong {
		diff = diff.Neg()
	}
	return diff.Mul(qty)
}
