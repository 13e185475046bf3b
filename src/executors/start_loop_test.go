package executors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"safetrader/src/execution"
	"safetrader/src/manager"
	"safetrader/src/model"
	"safetrader/src/risk"
	"safetrader/src/safety"
)

// Test index:
// 1. TestTickEntersProtectedPosition
// 2. TestTickShortSignalSellsEntry
// 3. TestTickSkipsEntryWhenOutOfSync
// 4. TestTickSkipsEntryWhenPositionOpen
// 5. TestTickRecordsClosedTrades
// 6. TestTickRiskVetoBlocksEntry
// 7. TestTickCriticalFailureHalts
// 8. TestTickQtyBelowMinimumSkips
// 9. TestTickSpreadRejectionDoesNotHalt
// 10. TestTickSyncFailureSkipsEverything
// 11. TestTickZeroTakeProfitEntersWithoutTarget
// 12. TestHaltedReadableWhileTicking

type mockClient struct {
	balance   model.Balance
	positions []model.Position
	orders    []model.Order
	meta      model.SymbolMeta

	balanceErr   error
	positionsErr error
	ordersErr    error
	metaErr      error
}

var _ exchangeClient = (*mockClient)(nil)

func (m *mockClient) FetchBalance(ctx context.Context, asset string) (model.Balance, error) {
	return m.balance, m.balanceErr
}

func (m *mockClient) FetchPositions(ctx context.Context, symbol string) ([]model.Position, error) {
	return m.positions, m.positionsErr
}

func (m *mockClient) FetchOpenOrders(ctx context.Context, symbol string) ([]model.Order, error) {
	return m.orders, m.ordersErr
}

func (m *mockClient) SymbolMeta(ctx context.Context, symbol string) (model.SymbolMeta, error) {
	return m.meta, m.metaErr
}

type mockEngine struct {
	requests []execution.EntryRequest
	result   *execution.EntryResult
	err      error
}

var _ entryEngine = (*mockEngine)(nil)

func (m *mockEngine) EnterAtomic(ctx context.Context, req execution.EntryRequest) (*execution.EntryResult, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockSync struct {
	report safety.Report
	err    error
	runs   int
}

var _ stopSynchronizer = (*mockSync)(nil)

func (m *mockSync) Run(ctx context.Context) (safety.Report, error) {
	m.runs++
	return m.report, m.err
}

type mockMonitor struct {
	report manager.Report
	err    error
	runs   int
}

var _ positionMonitor = (*mockMonitor)(nil)

func (m *mockMonitor) Process(ctx context.Context, positions []model.Position, openOrders []model.Order) (manager.Report, error) {
	m.runs++
	return m.report, m.err
}

type mockSignals struct {
	signal *model.Signal
	err    error
	vol    float64
	scans  int
}

var _ signalSource = (*mockSignals)(nil)

func (m *mockSignals) Scan(ctx context.Context) (*model.Signal, error) {
	m.scans++
	return m.signal, m.err
}

func (m *mockSignals) VolatilityPct(ctx context.Context) (float64, error) {
	return m.vol, nil
}

type mockLedger struct {
	added    []model.TradeRecord
	snapshot risk.Metrics
}

var _ tradeLedger = (*mockLedger)(nil)

func (m *mockLedger) Add(trade model.TradeRecord) {
	m.added = append(m.added, trade)
}

func (m *mockLedger) Metrics(balance decimal.Decimal, volatilityPct float64) risk.Metrics {
	return m.snapshot
}

type mockRisk struct {
	leverage int
	mode     model.MarginMode
	stop     bool
	reason   string
}

var _ riskController = (*mockRisk)(nil)

func (m *mockRisk) OptimalLeverage(risk.Metrics) int { return m.leverage }

func (m *mockRisk) MarginMode(risk.Metrics) model.MarginMode { return m.mode }

func (m *mockRisk) ShouldStopTrading(risk.Metrics) (bool, string) {
	return m.stop, m.reason
}

type mockNotifier struct {
	events []model.Event
}

var _ eventNotifier = (*mockNotifier)(nil)

func (m *mockNotifier) Notify(ctx context.Context, event model.Event) {
	m.events = append(m.events, event)
}

func d(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

type loopFixture struct {
	client   *mockClient
	engine   *mockEngine
	syncer   *mockSync
	monitor  *mockMonitor
	signals  *mockSignals
	ledger   *mockLedger
	riskCtl  *mockRisk
	notifier *mockNotifier
	loop     *Loop
}

func newLoopFixture() *loopFixture {
	f := &loopFixture{
		client: &mockClient{
			balance: model.Balance{Asset: "USDT", Available: d("10000")},
			meta: model.SymbolMeta{
				Symbol:      "BTCUSDT",
				StepSize:    d("0.001"),
				TickSize:    d("0.1"),
				MinNotional: d("6"),
			},
		},
		engine:  &mockEngine{result: &execution.EntryResult{FilledQty: d("0.1")}},
		syncer:  &mockSync{report: safety.Report{AllSynced: true}},
		monitor: &mockMonitor{},
		signals: &mockSignals{signal: &model.Signal{
			Symbol:        "BTCUSDT",
			Direction:     model.PositionSideLong,
			EntryPrice:    d("50000"),
			StoplossPrice: d("49000"),
		}},
		ledger:   &mockLedger{},
		riskCtl:  &mockRisk{leverage: 10, mode: model.MarginModeIsolated},
		notifier: &mockNotifier{},
	}

	cfg := Config{
		LoopPeriod:       time.Second,
		MarginAsset:      "USDT",
		RiskPct:          1,
		MaxPositionPct:   20,
		MaxOpenPositions: 1,
		TakeProfitPct:    3,
	}
	f.loop = NewLoop(cfg, f.client, f.engine, f.syncer, f.monitor, f.signals, f.ledger, f.riskCtl, f.notifier)
	return f
}

// Verifies a long signal turns into a fully specified protected entry.
func TestTickEntersProtectedPosition(t *testing.T) {
	f := newLoopFixture()

	if err := f.loop.Tick(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(f.engine.requests) != 1 {
		t.Fatalf("expected one entry request, got %d", len(f.engine.requests))
	}
	req := f.engine.requests[0]

	if req.Symbol != "BTCUSDT" || req.Side != model.OrderSideBuy {
		t.Fatalf("unexpected entry target: %s %s", req.Symbol, req.Side)
	}
	// 1% of 10000 at 10x over a 1000 point stop distance is 1.0; the 20%
	// exposure cap takes it down to 0.4.
	if !req.Quantity.Equal(d("0.4")) {
		t.Fatalf("unexpected quantity: %s", req.Quantity)
	}
	if !req.StopPrice.Equal(d("49000")) {
		t.Fatalf("unexpected stop price: %s", req.StopPrice)
	}
	if !req.TakeProfitPrice.Equal(d("51500")) {
		t.Fatalf("unexpected take profit: %s", req.TakeProfitPrice)
	}
	if req.Leverage != 10 || req.MarginMode != model.MarginModeIsolated {
		t.Fatalf("risk settings not applied: %d %s", req.Leverage, req.MarginMode)
	}
}

// Verifies a short signal enters with a sell order.
func TestTickShortSignalSellsEntry(t *testing.T) {
	f := newLoopFixture()
	f.signals.signal = &model.Signal{
		Symbol:        "BTCUSDT",
		Direction:     model.PositionSideShort,
		EntryPrice:    d("50000"),
		StoplossPrice: d("51000"),
	}

	if err := f.loop.Tick(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(f.engine.requests) != 1 {
		t.Fatalf("expected one entry request, got %d", len(f.engine.requests))
	}
	if f.engine.requests[0].Side != model.OrderSideSell {
		t.Fatalf("expected sell entry, got %s", f.engine.requests[0].Side)
	}
}

// Unrepaired stops must suspend entries while management still runs.
func TestTickSkipsEntryWhenOutOfSync(t *testing.T) {
	f := newLoopFixture()
	f.syncer.report = safety.Report{Checked: 1, Errors: 1}

	if err := f.loop.Tick(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if f.monitor.runs != 1 {
		t.Fatalf("expected management pass to run")
	}
	if len(f.engine.requests) != 0 {
		t.Fatalf("expected no entry while out of sync")
	}
}

// The position cap blocks new entries but not position management.
func TestTickSkipsEntryWhenPositionOpen(t *testing.T) {
	f := newLoopFixture()
	f.client.positions = []model.Position{{
		Symbol:     "BTCUSDT",
		Side:       model.PositionSideLong,
		Quantity:   d("0.5"),
		EntryPrice: d("50000"),
	}}

	if err := f.loop.Tick(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if f.monitor.runs != 1 {
		t.Fatalf("expected management pass to run")
	}
	if len(f.engine.requests) != 0 {
		t.Fatalf("expected no entry at the position cap")
	}
}

// Closed positions reported by the manager land in the ledger with signed
// PnL and the win flag set from it.
func TestTickRecordsClosedTrades(t *testing.T) {
	f := newLoopFixture()
	f.signals.signal = nil
	f.monitor.report = manager.Report{Closed: []manager.ClosedPosition{
		{Symbol: "BTCUSDT", Side: model.PositionSideLong, EntryPrice: d("100"), ExitPrice: d("110"), Quantity: d("1")},
		{Symbol: "ETHUSDT", Side: model.PositionSideShort, EntryPrice: d("100"), ExitPrice: d("110"), Quantity: d("2")},
	}}

	if err := f.loop.Tick(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(f.ledger.added) != 2 {
		t.Fatalf("expected two ledger records, got %d", len(f.ledger.added))
	}

	win := f.ledger.added[0]
	if !win.Win || !win.Pnl.Equal(d("10")) {
		t.Fatalf("expected winning long with pnl 10, got win=%v pnl=%s", win.Win, win.Pnl)
	}

	loss := f.ledger.added[1]
	if loss.Win || !loss.Pnl.Equal(d("-20")) {
		t.Fatalf("expected losing short with pnl -20, got win=%v pnl=%s", loss.Win, loss.Pnl)
	}
}

// A risk veto blocks scanning entirely and notifies once, not every tick.
func TestTickRiskVetoBlocksEntry(t *testing.T) {
	f := newLoopFixture()
	f.riskCtl.stop = true
	f.riskCtl.reason = "drawdown 25.0% exceeds 20.0%"

	for i := 0; i < 3; i++ {
		if err := f.loop.Tick(context.Background()); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	}

	if f.signals.scans != 0 {
		t.Fatalf("expected no market scans under veto, got %d", f.signals.scans)
	}
	if len(f.engine.requests) != 0 {
		t.Fatalf("expected no entries under veto")
	}
	if len(f.notifier.events) != 1 {
		t.Fatalf("expected a single veto notification, got %d", len(f.notifier.events))
	}
}

// A critical entry failure latches the loop shut for good.
func TestTickCriticalFailureHalts(t *testing.T) {
	f := newLoopFixture()
	f.engine.err = &execution.CriticalError{
		Symbol: "BTCUSDT",
		Reason: "stop placement failed",
		Err:    errors.New("emergency close rejected"),
	}

	err := f.loop.Tick(context.Background())
	if err == nil {
		t.Fatalf("expected critical error to propagate")
	}
	if !f.loop.Halted() {
		t.Fatalf("expected loop to latch halted")
	}

	if err := f.loop.Tick(context.Background()); !errors.Is(err, ErrHalted) {
		t.Fatalf("expected ErrHalted on the next tick, got %v", err)
	}
	if f.syncer.runs != 1 {
		t.Fatalf("expected no further sync passes after halt, got %d", f.syncer.runs)
	}
}

// Quantities that cannot meet the exchange minimum never reach the engine.
func TestTickQtyBelowMinimumSkips(t *testing.T) {
	f := newLoopFixture()
	f.client.meta.MinNotional = d("1000000")

	if err := f.loop.Tick(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(f.engine.requests) != 0 {
		t.Fatalf("expected no entry below the minimum notional")
	}
}

// A wide spread abort is a normal skip, not a halt.
func TestTickSpreadRejectionDoesNotHalt(t *testing.T) {
	f := newLoopFixture()
	f.engine.err = &execution.SpreadTooWideError{
		Symbol: "BTCUSDT",
		Ratio:  d("0.002"),
		Max:    d("0.001"),
	}

	if err := f.loop.Tick(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.loop.Halted() {
		t.Fatalf("expected loop to keep running after a spread abort")
	}
}

// With the take-profit percent unset the entry goes out with no target
// price, so the engine places no instantly-triggering TP order.
func TestTickZeroTakeProfitEntersWithoutTarget(t *testing.T) {
	f := newLoopFixture()
	f.loop.cfg.TakeProfitPct = 0

	if err := f.loop.Tick(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(f.engine.requests) != 1 {
		t.Fatalf("expected one entry request, got %d", len(f.engine.requests))
	}
	if !f.engine.requests[0].TakeProfitPrice.IsZero() {
		t.Fatalf("expected zero take profit price, got %s", f.engine.requests[0].TakeProfitPrice)
	}
}

// Halted is served to the status endpoint from another goroutine; reads
// stay safe while a tick latches it.
func TestHaltedReadableWhileTicking(t *testing.T) {
	f := newLoopFixture()
	f.engine.err = &execution.CriticalError{
		Symbol: "BTCUSDT",
		Reason: "stop placement failed",
		Err:    errors.New("emergency close rejected"),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			f.loop.Halted()
		}
	}()

	err := f.loop.Tick(context.Background())
	<-done

	if err == nil {
		t.Fatalf("expected critical error to propagate")
	}
	if !f.loop.Halted() {
		t.Fatalf("expected halt latch to be visible")
	}
}

// When reconciliation itself fails nothing else runs that tick.
func TestTickSyncFailureSkipsEverything(t *testing.T) {
	f := newLoopFixture()
	f.syncer.err = errors.New("exchange unavailable")

	if err := f.loop.Tick(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if f.monitor.runs != 0 {
		t.Fatalf("expected no management pass after sync failure")
	}
	if len(f.engine.requests) != 0 {
		t.Fatalf("expected no entry after sync failure")
	}
}
