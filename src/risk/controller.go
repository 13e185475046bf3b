package risk

import (
	"fmt"

	"safetrader/src/model"
)

// Controller turns a metrics snapshot into leverage, margin mode, and
// halt decisions. All methods are pure per-call; state lives in the Ledger.
type Controller struct {
	cfg Config
}

func NewController(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

// OptimalLeverage adapts leverage to recent conditions. Any drawdown breach
// or a loss streak drops straight to the minimum.
func (c *Controller) OptimalLeverage(m Metrics) int {
	if m.DrawdownPct > c.cfg.CrossDrawdownPct || m.ConsecLosses >= c.cfg.LossReduceStreak {
		return c.cfg.MinLeverage
	}

	leverage := c.cfg.BaseLeverage

	switch {
	case m.VolatilityPct >= c.cfg.HighVolatilityPct:
		leverage = leverage / 2
	case m.VolatilityPct > 0 && m.VolatilityPct <= c.cfg.LowVolatilityPct:
		leverage = leverage + leverage/5
	}

	if m.SampleSize >= c.cfg.MinSample {
		if m.WinRatePct >= c.cfg.GoodWinRatePct {
			leverage += 2
		} else if m.WinRatePct <= c.cfg.PoorWinRatePct {
			leverage -= 2
		}
	}

	if leverage < c.cfg.MinLeverage {
		leverage = c.cfg.MinLeverage
	}
	if leverage > c.cfg.MaxLeverage {
		leverage = c.cfg.MaxLeverage
	}
	return leverage
}

// MarginMode defaults to isolated. Cross margin is earned, never assumed:
// every condition below has to hold at once.
func (c *Controller) MarginMode(m Metrics) model.MarginMode {
	if m.SampleSize >= c.cfg.MinSample &&
		m.DrawdownPct <= c.cfg.CrossDrawdownPct &&
		m.VolatilityPct < c.cfg.HighVolatilityPct &&
		m.ConsecLosses < 2 &&
		m.TrendStrength > c.cfg.TrendThreshold &&
		m.WinRatePct > c.cfg.GoodWinRatePct {
		return model.MarginModeCrossed
	}
	return model.MarginModeIsolated
}

// ShouldStopTrading halts new entries on a max drawdown breach or a hard
// loss streak.
func (c *Controller) ShouldStopTrading(m Metrics) (bool, string) {
	if m.DrawdownPct > c.cfg.MaxDrawdownPct {
		return true, fmt.Sprintf("drawdown %.2f%% exceeds maximum %.2f%%", m.DrawdownPct, c.cfg.MaxDrawdownPct)
	}
	if m.ConsecLosses >= c.cfg.LossHaltStreak {
		return true, fmt.Sprintf("%d consecutive losses reached halt threshold %d", m.ConsecLosses, c.cfg.LossHaltStreak)
	}
	return false, ""
}
