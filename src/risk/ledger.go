package risk

import (
	"sync"

	"github.com/shopspring/decimal"

	"safetrader/src/model"
)

const (
	// LedgerCap bounds the in-memory trade history.
	LedgerCap = 100
	// WinRateWindow is how many recent trades feed the win rate.
	WinRateWindow = 20
)

// Metrics is the per-decision snapshot the controller works from.
type Metrics struct {
	Balance       decimal.Decimal
	WinRatePct    float64
	DrawdownPct   float64
	VolatilityPct float64
	TrendStrength float64
	ConsecLosses  int
	SampleSize    int
}

// Stats is the ledger summary exposed on the status endpoint.
type Stats struct {
	Trades       int             `json:"trades"`
	Wins         int             `json:"wins"`
	ConsecLosses int             `json:"consec_losses"`
	PeakBalance  decimal.Decimal `json:"peak_balance"`
}

// Ledger is the bounded in-memory trade history. It survives only for the
// process lifetime; the exchange remains the source of truth for positions.
type Ledger struct {
	mu           sync.Mutex
	trades       []model.TradeRecord
	peakBalance  decimal.Decimal
	consecLosses int
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Add appends a closed trade, trimming the oldest entries past the cap.
func (l *Ledger) Add(trade model.TradeRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.trades = append(l.trades, trade)
	if len(l.trades) > LedgerCap {
		l.trades = l.trades[len(l.trades)-LedgerCap:]
	}

	if trade.Win {
		l.consecLosses = 0
	} else {
		l.consecLosses++
	}
}

// Metrics computes the current risk snapshot. The peak balance ratchets up
// with every observation; drawdown measures the fall from that peak.
func (l *Ledger) Metrics(balance decimal.Decimal, volatilityPct float64) Metrics {
	l.mu.Lock()
	defer l.mu.Unlock()

	if balance.GreaterThan(l.peakBalance) {
		l.peakBalance = balance
	}

	var drawdown float64
	if l.peakBalance.Sign() > 0 {
		dd := l.peakBalance.Sub(balance).Div(l.peakBalance).Mul(decimal.NewFromInt(100))
		drawdown, _ = dd.Float64()
		if drawdown < 0 {
			drawdown = 0
		}
	}

	window := l.trades
	if len(window) > WinRateWindow {
		window = window[len(window)-WinRateWindow:]
	}
	wins := 0
	for _, t := range window {
		if t.Win {
			wins++
		}
	}
	winRate := 0.0
	if len(window) > 0 {
		winRate = float64(wins) / float64(len(window)) * 100
	}

	// Trend proxy: the win rate as a fraction, clamped to [0, 1].
	trend := winRate / 100
	if trend < 0 {
		trend = 0
	}
	if trend > 1 {
		trend = 1
	}

	return Metrics{
		Balance:       balance,
		WinRatePct:    winRate,
		DrawdownPct:   drawdown,
		VolatilityPct: volatilityPct,
		TrendStrength: trend,
		ConsecLosses:  l.consecLosses,
		SampleSize:    len(window),
	}
}

// Stats returns the ledger summary for /status.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	wins := 0
	for _, t := range l.trades {
		if t.Win {
			wins++
		}
	}
	return Stats{
		Trades:       len(l.trades),
		Wins:         wins,
		ConsecLosses: l.consecLosses,
		PeakBalance:  l.peakBalance,
	}
}
