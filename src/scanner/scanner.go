package scanner

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"safetrader/src/model"
)

// klineSource is the slice of the exchange API the scanner consumes.
type klineSource interface {
	GetKlineRecords(currency goex.CurrencyPair, period goex.KlinePeriod, size int, optional ...goex.OptionalParameter) ([]goex.Kline, error)
}

// Scanner watches one symbol's 1m candles and emits an entry signal when the
// fast EMA crosses the slow EMA on a closed bar and the RSI does not already
// sit in the exhaustion zone for that direction.
type Scanner struct {
	Log    *logger.Entry
	cfg    Config
	source klineSource
	pair   goex.CurrencyPair
}

func NewScanner(cfg Config, source klineSource) *Scanner {
	return &Scanner{
		Log:    logger.WithField("component", "scanner"),
		cfg:    cfg,
		source: source,
		pair:   goex.NewCurrencyPair(goex.Currency{Symbol: cfg.Symbol}, goex.Currency{Symbol: cfg.Quote}),
	}
}

// NewBinanceScanner wires the scanner to the public Binance kline endpoint.
func NewBinanceScanner(cfg Config) *Scanner {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return NewScanner(cfg, binance.NewWithConfig(apiConfig))
}

func (s *Scanner) fetchClosed(ctx context.Context) ([]goex.Kline, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	klines, err := s.source.GetKlineRecords(s.pair, goex.KLINE_PERIOD_1MIN, s.cfg.KlineLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch klines for %s: %w", s.pair.ToSymbol(""), err)
	}

	sort.Slice(klines, func(i, j int) bool { return klines[i].Timestamp < klines[j].Timestamp })

	// The newest kline is still forming, only closed bars count.
	if len(klines) > 0 {
		klines = klines[:len(klines)-1]
	}
	return klines, nil
}

// Scan fetches the latest candles and evaluates the crossover rules. It
// returns nil without error when no setup is present.
func (s *Scanner) Scan(ctx context.Context) (*model.Signal, error) {
	klines, err := s.fetchClosed(ctx)
	if err != nil {
		return nil, err
	}
	if len(klines) <= s.cfg.EMASlow || len(klines) <= s.cfg.RSIPeriod {
		return nil, fmt.Errorf("not enough closed klines for %s: got %d", s.pair.ToSymbol(""), len(klines))
	}

	closes := make([]float64, len(klines))
	vols := make([]float64, len(klines))
	for i := range klines {
		closes[i] = klines[i].Close
		vols[i] = klines[i].Vol
	}

	fast := ema(closes, s.cfg.EMAFast)
	slow := ema(closes, s.cfg.EMASlow)
	strength := rsi(closes, s.cfg.RSIPeriod)

	i := len(closes) - 1
	crossUp := fast[i-1] <= slow[i-1] && fast[i] > slow[i]
	crossDown := fast[i-1] >= slow[i-1] && fast[i] < slow[i]
	if !crossUp && !crossDown {
		return nil, nil
	}

	if s.cfg.VolumeFloor > 0 && vols[i] < s.cfg.VolumeFloor {
		s.Log.WithFields(logger.Fields{
			"Symbol": s.pair.ToSymbol(""),
			"Volume": vols[i],
			"Floor":  s.cfg.VolumeFloor,
		}).Info("crossover ignored, volume below floor")
		return nil, nil
	}

	if crossUp && strength[i] >= s.cfg.RSIOverbought {
		s.Log.WithFields(logger.Fields{
			"Symbol": s.pair.ToSymbol(""),
			"RSI":    strength[i],
		}).Info("bullish crossover ignored, RSI overbought")
		return nil, nil
	}
	if crossDown && strength[i] <= s.cfg.RSIOversold {
		s.Log.WithFields(logger.Fields{
			"Symbol": s.pair.ToSymbol(""),
			"RSI":    strength[i],
		}).Info("bearish crossover ignored, RSI oversold")
		return nil, nil
	}

	return s.buildSignal(crossUp, closes[i], fast[i], slow[i], strength[i]), nil
}

func (s *Scanner) buildSignal(long bool, lastClose, fastEMA, slowEMA, rsiNow float64) *model.Signal {
	direction := model.PositionSideShort
	if long {
		direction = model.PositionSideLong
	}

	entry := decimal.NewFromFloat(lastClose)
	pct := decimal.NewFromFloat(s.cfg.StopLossPct).Div(decimal.NewFromInt(100))
	stop := entry.Mul(decimal.NewFromInt(1).Add(pct))
	if long {
		stop = entry.Mul(decimal.NewFromInt(1).Sub(pct))
	}

	signal := &model.Signal{
		Symbol:        s.pair.ToSymbol(""),
		Direction:     direction,
		EntryPrice:    entry,
		StoplossPrice: stop,
		Strength:      math.Abs(fastEMA-slowEMA) / slowEMA,
		Reason: fmt.Sprintf("ema %d/%d cross %s, rsi %.1f",
			s.cfg.EMAFast, s.cfg.EMASlow, directionWord(long), rsiNow),
	}

	s.Log.WithFields(logger.Fields{
		"Symbol":    signal.Symbol,
		"Direction": signal.Direction,
		"Entry":     signal.EntryPrice,
		"Stop":      signal.StoplossPrice,
		"Reason":    signal.Reason,
	}).Info("entry signal produced")

	return signal
}

// volatilityWindow is how many closed bars feed the range measure.
const volatilityWindow = 20

// VolatilityPct measures recent volatility as the high-to-low range of the
// last closed bars, as a percent of the low.
func (s *Scanner) VolatilityPct(ctx context.Context) (float64, error) {
	klines, err := s.fetchClosed(ctx)
	if err != nil {
		return 0, err
	}
	if len(klines) == 0 {
		return 0, fmt.Errorf("no closed klines for %s", s.pair.ToSymbol(""))
	}
	if len(klines) > volatilityWindow {
		klines = klines[len(klines)-volatilityWindow:]
	}

	high, low := klines[0].High, klines[0].Low
	for _, k := range klines[1:] {
		high = math.Max(high, k.High)
		low = math.Min(low, k.Low)
	}
	if low <= 0 {
		return 0, nil
	}
	return (high - low) / low * 100, nil
}

func directionWord(long bool) string {
	if long {
		return "up"
	}
	return "down"
}
