package scanner

import (
	"context"
	"math"
	"testing"

	"github.com/nntaoli-project/goex"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"safetrader/src/model"
)

// Test index:
// 1. TestEMAKnownSeries
// 2. TestRSIAllGains
// 3. TestRSIMixedSeries
// 4. TestScanBullishCrossover
// 5. TestScanBearishCrossover
// 6. TestScanNoCrossover
// 7. TestScanRSIOverboughtBlocksLong
// 8. TestScanVolumeFloorBlocks
// 9. TestScanNotEnoughKlines
// 10. TestScanSourceError
// 11. TestVolatilityPct

type mockKlineSource struct {
	klines []goex.Kline
	err    error
}

var _ klineSource = (*mockKlineSource)(nil)

func (m *mockKlineSource) GetKlineRecords(currency goex.CurrencyPair, period goex.KlinePeriod, size int, optional ...goex.OptionalParameter) ([]goex.Kline, error) {
	return m.klines, m.err
}

func testConfig() Config {
	return Config{
		Symbol:        "BTC",
		Quote:         "USDT",
		KlineLimit:    10,
		RSIPeriod:     2,
		EMAFast:       2,
		EMASlow:       3,
		RSIOverbought: 70,
		RSIOversold:   30,
		StopLossPct:   2,
	}
}

func klinesFromCloses(closes ...float64) []goex.Kline {
	out := make([]goex.Kline, len(closes))
	for i, c := range closes {
		out[i] = goex.Kline{Timestamp: int64(i * 60), Close: c, Vol: 100}
	}
	return out
}

func TestEMAKnownSeries(t *testing.T) {
	got := ema([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{0, 0, 2, 3, 4}
	require.Len(t, got, len(want))
	for i := range want {
		require.InDelta(t, want[i], got[i], 1e-9, "index %d", i)
	}
}

func TestRSIAllGains(t *testing.T) {
	got := rsi([]float64{1, 2, 3, 4, 5}, 3)
	for i := 3; i < len(got); i++ {
		require.Equal(t, 100.0, got[i], "index %d", i)
	}
}

func TestRSIMixedSeries(t *testing.T) {
	got := rsi([]float64{44, 44.34, 44.09, 44.15, 43.61, 44.33}, 5)
	if math.Abs(got[5]-58.64) > 0.01 {
		t.Fatalf("expected rsi around 58.64, got %f", got[5])
	}
}

func TestScanBullishCrossover(t *testing.T) {
	cfg := testConfig()
	// RSI on this series lands at 85.7, lift the ceiling so the filter
	// does not interfere with the crossover assertion.
	cfg.RSIOverbought = 90

	// Last bar is still forming and must be ignored.
	source := &mockKlineSource{klines: klinesFromCloses(10, 10, 10, 9, 12, 13)}
	signal, err := NewScanner(cfg, source).Scan(context.Background())
	require.NoError(t, err)
	require.NotNil(t, signal)

	require.Equal(t, "BTCUSDT", signal.Symbol)
	require.Equal(t, model.PositionSideLong, signal.Direction)
	require.True(t, signal.EntryPrice.Equal(decimal.NewFromInt(12)), "entry %s", signal.EntryPrice)
	require.True(t, signal.StoplossPrice.Equal(decimal.NewFromFloat(11.76)), "stop %s", signal.StoplossPrice)
	require.Greater(t, signal.Strength, 0.0)
	require.Contains(t, signal.Reason, "cross up")
}

func TestScanBearishCrossover(t *testing.T) {
	cfg := testConfig()
	cfg.RSIOversold = 10

	source := &mockKlineSource{klines: klinesFromCloses(10, 10, 10, 11, 8, 7)}
	signal, err := NewScanner(cfg, source).Scan(context.Background())
	require.NoError(t, err)
	require.NotNil(t, signal)

	require.Equal(t, model.PositionSideShort, signal.Direction)
	require.True(t, signal.EntryPrice.Equal(decimal.NewFromInt(8)), "entry %s", signal.EntryPrice)
	require.True(t, signal.StoplossPrice.Equal(decimal.NewFromFloat(8.16)), "stop %s", signal.StoplossPrice)
}

func TestScanNoCrossover(t *testing.T) {
	source := &mockKlineSource{klines: klinesFromCloses(10, 10, 10, 10, 10, 10)}
	signal, err := NewScanner(testConfig(), source).Scan(context.Background())
	require.NoError(t, err)
	require.Nil(t, signal)
}

func TestScanRSIOverboughtBlocksLong(t *testing.T) {
	// Same crossover series as the bullish test, but the default 70
	// ceiling is below the 85.7 the series produces.
	source := &mockKlineSource{klines: klinesFromCloses(10, 10, 10, 9, 12, 13)}
	signal, err := NewScanner(testConfig(), source).Scan(context.Background())
	require.NoError(t, err)
	require.Nil(t, signal)
}

func TestScanVolumeFloorBlocks(t *testing.T) {
	cfg := testConfig()
	cfg.RSIOverbought = 90
	cfg.VolumeFloor = 500

	source := &mockKlineSource{klines: klinesFromCloses(10, 10, 10, 9, 12, 13)}
	signal, err := NewScanner(cfg, source).Scan(context.Background())
	require.NoError(t, err)
	require.Nil(t, signal)
}

func TestScanNotEnoughKlines(t *testing.T) {
	source := &mockKlineSource{klines: klinesFromCloses(10, 10, 10)}
	signal, err := NewScanner(testConfig(), source).Scan(context.Background())
	require.Error(t, err)
	require.Nil(t, signal)
}

func TestScanSourceError(t *testing.T) {
	source := &mockKlineSource{err: context.DeadlineExceeded}
	signal, err := NewScanner(testConfig(), source).Scan(context.Background())
	require.Error(t, err)
	require.Nil(t, signal)
}

func TestVolatilityPct(t *testing.T) {
	source := &mockKlineSource{klines: []goex.Kline{
		{Timestamp: 0, High: 110, Low: 100},
		{Timestamp: 60, High: 105, Low: 95},
		{Timestamp: 120, High: 120, Low: 102},
		{Timestamp: 180, High: 999, Low: 1}, // still forming, ignored
	}}

	vol, err := NewScanner(testConfig(), source).VolatilityPct(context.Background())
	require.NoError(t, err)
	require.InDelta(t, (120.0-95.0)/95.0*100, vol, 1e-9)
}
