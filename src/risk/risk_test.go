package risk

// Test index:
// 1. TestLedgerCap bounds the history and keeps the newest trades.
// 2. TestLedgerStreaks counts consecutive losses and resets on a win.
// 3. TestMetricsWinRateWindow computes the win rate over the recent window only.
// 4. TestMetricsDrawdown ratchets the peak and measures the fall from it.
// 5. TestOptimalLeverage covers volatility, win rate, streak, and clamping paths.
// 6. TestMarginMode grants cross margin only when every condition holds.
// 7. TestShouldStopTrading halts on drawdown breach or hard loss streaks.

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"safetrader/src/model"
)

func testRiskConfig() Config {
	return Config{
		BaseLeverage:      10,
		MinLeverage:       3,
		MaxLeverage:       20,
		HighVolatilityPct: 3.0,
		LowVolatilityPct:  1.0,
		GoodWinRatePct:    60,
		PoorWinRatePct:    40,
		MaxDrawdownPct:    20,
		CrossDrawdownPct:  10,
		TrendThreshold:    0.7,
		MinSample:         10,
		LossReduceStreak:  3,
		LossHaltStreak:    5,
	}
}

func trade(win bool) model.TradeRecord {
	pnl := decimal.NewFromInt(10)
	if !win {
		pnl = pnl.Neg()
	}
	return model.TradeRecord{
		Symbol:    "BTCUSDT",
		Side:      model.PositionSideLong,
		Pnl:       pnl,
		Win:       win,
		Timestamp: time.Now(),
	}
}

func addN(l *Ledger, n int, win bool) {
	for i := 0; i < n; i++ {
		l.Add(trade(win))
	}
}

func TestLedgerCap(t *testing.T) {
	l := NewLedger()
	addN(l, LedgerCap+25, true)

	stats := l.Stats()
	if stats.Trades != LedgerCap {
		t.Fatalf("expected ledger capped at %d, got %d", LedgerCap, stats.Trades)
	}
}

func TestLedgerStreaks(t *testing.T) {
	l := NewLedger()
	addN(l, 3, false)
	if got := l.Stats().ConsecLosses; got != 3 {
		t.Fatalf("expected 3 consecutive losses, got %d", got)
	}

	l.Add(trade(true))
	if got := l.Stats().ConsecLosses; got != 0 {
		t.Fatalf("expected streak reset after win, got %d", got)
	}
}

func TestMetricsWinRateWindow(t *testing.T) {
	l := NewLedger()
	// Old losses pushed outside the window by newer wins.
	addN(l, 30, false)
	addN(l, WinRateWindow, true)

	m := l.Metrics(decimal.NewFromInt(10000), 2.0)
	if m.WinRatePct != 100 {
		t.Fatalf("expected 100%% win rate over recent window, got %.2f", m.WinRatePct)
	}
	if m.SampleSize != WinRateWindow {
		t.Fatalf("expected sample %d, got %d", WinRateWindow, m.SampleSize)
	}
	if m.TrendStrength != 1.0 {
		t.Fatalf("expected trend clamped at 1.0, got %.2f", m.TrendStrength)
	}
}

func TestMetricsDrawdown(t *testing.T) {
	l := NewLedger()

	m := l.Metrics(decimal.NewFromInt(10000), 2.0)
	if m.DrawdownPct != 0 {
		t.Fatalf("expected zero drawdown at peak, got %.2f", m.DrawdownPct)
	}

	m = l.Metrics(decimal.NewFromInt(8500), 2.0)
	if m.DrawdownPct != 15 {
		t.Fatalf("expected 15%% drawdown from 10000 peak, got %.2f", m.DrawdownPct)
	}

	// A new high resets the reference.
	m = l.Metrics(decimal.NewFromInt(12000), 2.0)
	if m.DrawdownPct != 0 {
		t.Fatalf("expected zero drawdown at new peak, got %.2f", m.DrawdownPct)
	}
}

func TestOptimalLeverage(t *testing.T) {
	c := NewController(testRiskConfig())

	tests := []struct {
		name string
		m    Metrics
		want int
	}{
		{"baseline", Metrics{VolatilityPct: 2.0}, 10},
		{"high volatility halves", Metrics{VolatilityPct: 3.5}, 5},
		{"low volatility bumps", Metrics{VolatilityPct: 0.8}, 12},
		{"good win rate adds", Metrics{VolatilityPct: 2.0, WinRatePct: 70, SampleSize: 10}, 12},
		{"poor win rate subtracts", Metrics{VolatilityPct: 2.0, WinRatePct: 30, SampleSize: 10}, 8},
		{"small sample ignores win rate", Metrics{VolatilityPct: 2.0, WinRatePct: 70, SampleSize: 5}, 10},
		{"drawdown breach floors", Metrics{VolatilityPct: 2.0, DrawdownPct: 12}, 3},
		{"loss streak floors", Metrics{VolatilityPct: 2.0, ConsecLosses: 3}, 3},
		{"high vol and poor win clamp to min", Metrics{VolatilityPct: 4.0, WinRatePct: 20, SampleSize: 20}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.OptimalLeverage(tt.m); got != tt.want {
				t.Fatalf("leverage mismatch. got=%d want=%d", got, tt.want)
			}
		})
	}
}

func TestMarginMode(t *testing.T) {
	c := NewController(testRiskConfig())

	earned := Metrics{
		WinRatePct:    65,
		DrawdownPct:   5,
		VolatilityPct: 2.0,
		TrendStrength: 0.8,
		ConsecLosses:  0,
		SampleSize:    15,
	}
	if got := c.MarginMode(earned); got != model.MarginModeCrossed {
		t.Fatalf("expected cross margin when all conditions hold, got %s", got)
	}

	tests := []struct {
		name   string
		mutate func(m Metrics) Metrics
	}{
		{"small sample", func(m Metrics) Metrics { m.SampleSize = 5; return m }},
		{"drawdown too deep", func(m Metrics) Metrics { m.DrawdownPct = 11; return m }},
		{"high volatility", func(m Metrics) Metrics { m.VolatilityPct = 3.5; return m }},
		{"two losses", func(m Metrics) Metrics { m.ConsecLosses = 2; return m }},
		{"weak trend", func(m Metrics) Metrics { m.TrendStrength = 0.6; return m }},
		{"mediocre win rate", func(m Metrics) Metrics { m.WinRatePct = 55; return m }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.MarginMode(tt.mutate(earned)); got != model.MarginModeIsolated {
				t.Fatalf("expected isolated margin, got %s", got)
			}
		})
	}
}

func TestShouldStopTrading(t *testing.T) {
	c := NewController(testRiskConfig())

	if stop, _ := c.ShouldStopTrading(Metrics{DrawdownPct: 10, ConsecLosses: 2}); stop {
		t.Fatalf("expected trading allowed")
	}

	stop, reason := c.ShouldStopTrading(Metrics{DrawdownPct: 25})
	if !stop || reason == "" {
		t.Fatalf("expected halt with reason on drawdown breach, got stop=%v reason=%q", stop, reason)
	}

	stop, reason = c.ShouldStopTrading(Metrics{ConsecLosses: 5})
	if !stop || reason == "" {
		t.Fatalf("expected halt with reason on loss streak, got stop=%v reason=%q", stop, reason)
	}
}
