package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"safetrader/src/calculator"
	"safetrader/src/model"
)

type exchangeClient interface {
	FetchTicker(ctx context.Context, symbol string) (model.Ticker, error)
	FetchPositions(ctx context.Context, symbol string) ([]model.Position, error)
	CreateStopMarketOrder(ctx context.Context, symbol string, side model.OrderSide, qty, stopPrice decimal.Decimal) (model.Order, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	ClosePosition(ctx context.Context, position model.Position) (model.Order, error)
	SymbolMeta(ctx context.Context, symbol string) (model.SymbolMeta, error)
}

type eventNotifier interface {
	Notify(ctx context.Context, event model.Event)
}

// TPState tracks the take-profit timeout cycle for one position.
type TPState string

const (
	TPIdle     TPState = "IDLE"
	TPReached  TPState = "TP_REACHED"
	TPTimedOut TPState = "TIMED_OUT"
)

// Tracker is the advisory in-memory state for one open position. The
// exchange snapshot is the source of truth; a tracker only remembers what
// cannot be read back from the exchange, like the price extreme and the
// trailing activation latch.
type Tracker struct {
	Symbol     string             `json:"symbol"`
	Side       model.PositionSide `json:"side"`
	EntryPrice decimal.Decimal    `json:"entry_price"`
	Quantity   decimal.Decimal    `json:"quantity"`
	Extreme    decimal.Decimal    `json:"extreme"`
	LastPrice  decimal.Decimal    `json:"last_price"`
	Activated  bool               `json:"activated"`
	TPState    TPState            `json:"tp_state"`

	tpReachedAt time.Time
}

// ClosedPosition reports a position that left the exchange snapshot, either
// on its own or through a forced exit.
type ClosedPosition struct {
	Symbol     string
	Side       model.PositionSide
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	Quantity   decimal.Decimal
}

// Report summarizes one management pass.
type Report struct {
	Processed   int
	Activated   int
	StopsMoved  int
	ForcedExits int
	Errors      int
	Closed      []ClosedPosition
}

// PositionManager trails protective stops behind profitable positions and
// force-closes positions that stall at their take-profit level.
type PositionManager struct {
	client   exchangeClient
	notifier eventNotifier
	cfg      Config

	settleDelay time.Duration
	now         func() time.Time

	mu       sync.Mutex
	trackers map[string]*Tracker
}

func NewPositionManager(client exchangeClient, notifier eventNotifier, cfg Config) *PositionManager {
	return &PositionManager{
		client:      client,
		notifier:    notifier,
		cfg:         cfg,
		settleDelay: time.Duration(cfg.SettleDelayMs) * time.Millisecond,
		now:         time.Now,
		trackers:    make(map[string]*Tracker),
	}
}

func (m *PositionManager) notify(ctx context.Context, severity model.Severity, title, body string) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(ctx, model.Event{Title: title, Body: body, Severity: severity})
}

// Trackers returns a snapshot of the current tracker states for /status.
func (m *PositionManager) Trackers() []Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Tracker, 0, len(m.trackers))
	for _, t := range m.trackers {
		out = append(out, *t)
	}
	return out
}

// Process runs one management pass over the exchange snapshot: tracker
// lifecycle, trailing stop moves, and the take-profit timeout.
func (m *PositionManager) Process(ctx context.Context, positions []model.Position, openOrders []model.Order) (Report, error) {
	var report Report

	report.Closed = m.dropMissing(positions)

	for _, position := range positions {
		report.Processed++

		tracker := m.ensureTracker(position)

		ticker, err := m.client.FetchTicker(ctx, position.Symbol)
		if err != nil {
			logger.WithError(err).WithFields(logger.Fields{"symbol": position.Symbol}).
				Warn("Skipping position management, no fresh price")
			report.Errors++
			continue
		}
		price := ticker.Last

		tracker.Quantity = position.Quantity
		tracker.LastPrice = price
		m.updateExtreme(tracker, price)

		if m.updateActivation(tracker) {
			report.Activated++
			logger.WithFields(logger.Fields{
				"symbol":  tracker.Symbol,
				"extreme": tracker.Extreme,
			}).Info("Trailing stop activated")
		}

		if tracker.Activated {
			moved, err := m.trailStop(ctx, tracker, position, openOrders)
			if err != nil {
				report.Errors++
			} else if moved {
				report.StopsMoved++
			}
		}

		closed, err := m.runTPTimeout(ctx, tracker, position, openOrders, price)
		if err != nil {
			report.Errors++
			continue
		}
		if closed {
			report.ForcedExits++
			report.Closed = append(report.Closed, ClosedPosition{
				Symbol:     tracker.Symbol,
				Side:       tracker.Side,
				EntryPrice: tracker.EntryPrice,
				ExitPrice:  price,
				Quantity:   tracker.Quantity,
			})
			m.removeTracker(tracker.Symbol)
		}
	}

	return report, nil
}

// dropMissing removes trackers whose positions left the exchange snapshot
// and reports them as closed at the last seen price.
func (m *PositionManager) dropMissing(positions []model.Position) []ClosedPosition {
	open := make(map[string]bool, len(positions))
	for _, p := range positions {
		open[p.Symbol] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var closed []ClosedPosition
	for symbol, tracker := range m.trackers {
		if open[symbol] {
			continue
		}
		closed = append(closed, ClosedPosition{
			Symbol:     tracker.Symbol,
			Side:       tracker.Side,
			EntryPrice: tracker.EntryPrice,
			ExitPrice:  tracker.LastPrice,
			Quantity:   tracker.Quantity,
		})
		delete(m.trackers, symbol)
	}
	return closed
}

func (m *PositionManager) ensureTracker(position model.Position) *Tracker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.trackers[position.Symbol]; ok {
		return t
	}
	t := &Tracker{
		Symbol:     position.Symbol,
		Side:       position.Side,
		EntryPrice: position.EntryPrice,
		Quantity:   position.Quantity,
		Extreme:    position.EntryPrice,
		LastPrice:  position.EntryPrice,
		TPState:    TPIdle,
	}
	m.trackers[position.Symbol] = t
	return t
}

func (m *PositionManager) removeTracker(symbol string) {
	m.mu.Lock()
	delete(m.trackers, symbol)
	m.mu.Unlock()
}

// updateExtreme ratchets the favorable price extreme. It never moves back.
func (m *PositionManager) updateExtreme(t *Tracker, price decimal.Decimal) {
	if t.Side == model.PositionSideLong {
		if price.GreaterThan(t.Extreme) {
			t.Extreme = price
		}
		return
	}
	if price.LessThan(t.Extreme) {
		t.Extreme = price
	}
}

// updateActivation latches the trailing mode once profit at the extreme
// reaches the activation threshold. The latch never clears. An activation
// percent of zero or less keeps trailing off entirely.
func (m *PositionManager) updateActivation(t *Tracker) bool {
	if m.cfg.TrailActivationPct <= 0 {
		return false
	}
	if t.Activated || t.EntryPrice.Sign() <= 0 {
		return false
	}

	profit := t.Extreme.Sub(t.EntryPrice).Div(t.EntryPrice)
	if t.Side == model.PositionSideShort {
		profit = profit.Neg()
	}
	threshold := decimal.NewFromFloat(m.cfg.TrailActivationPct / 100)
	if profit.GreaterThanOrEqual(threshold) {
		t.Activated = true
		return true
	}
	return false
}

// trailStop computes the callback stop from the extreme and replaces the
// live stop when the candidate is strictly better for the position.
func (m *PositionManager) trailStop(ctx context.Context, t *Tracker, position model.Position, openOrders []model.Order) (bool, error) {
	if m.cfg.TrailCallbackPct <= 0 {
		// Callback distance of zero would pin the stop to the last price.
		return false, nil
	}
	stop, found := matchStop(position, openOrders)
	if !found {
		// Missing protection is the synchronizer's repair, not a trail move.
		return false, nil
	}

	meta, err := m.client.SymbolMeta(ctx, position.Symbol)
	if err != nil {
		return false, fmt.Errorf("load symbol meta %s: %w", position.Symbol, err)
	}

	callback := decimal.NewFromFloat(m.cfg.TrailCallbackPct / 100)
	var candidate decimal.Decimal
	if t.Side == model.PositionSideLong {
		candidate = t.Extreme.Mul(decimal.NewFromInt(1).Sub(callback))
	} else {
		candidate = t.Extreme.Mul(decimal.NewFromInt(1).Add(callback))
	}
	candidate, err = calculator.FloorPriceToTick(candidate, meta.TickSize)
	if err != nil {
		return false, fmt.Errorf("floor candidate stop %s: %w", position.Symbol, err)
	}

	if !betterStop(t.Side, candidate, stop.StopPrice) {
		return false, nil
	}

	if err := m.moveStop(ctx, t, position, stop, candidate, meta); err != nil {
		return false, err
	}
	return true, nil
}

// betterStop is strictly-better: equal prices never trigger a move.
func betterStop(side model.PositionSide, candidate, current decimal.Decimal) bool {
	if side == model.PositionSideLong {
		return candidate.GreaterThan(current)
	}
	return candidate.LessThan(current)
}

// moveStop replaces the live stop with the candidate. Cancel first, wait
// for the book to settle, size to the freshly fetched quantity, place. When
// the new stop cannot be placed the position is immediately re-covered with
// a stop at the fixed distance from entry.
func (m *PositionManager) moveStop(ctx context.Context, t *Tracker, position model.Position, stop model.Order, candidate decimal.Decimal, meta model.SymbolMeta) error {
	if err := m.client.CancelOrder(ctx, position.Symbol, stop.ID); err != nil {
		return fmt.Errorf("cancel stop %d: %w", stop.ID, err)
	}

	if err := sleepCtx(ctx, m.settleDelay); err != nil {
		return err
	}

	qty := position.Quantity
	if fresh, err := m.client.FetchPositions(ctx, position.Symbol); err == nil {
		for _, p := range fresh {
			if p.Symbol == position.Symbol {
				qty = p.Quantity
			}
		}
	}

	_, err := m.client.CreateStopMarketOrder(ctx, position.Symbol, position.CloseSide(), qty, candidate)
	if err == nil {
		logger.WithFields(logger.Fields{
			"symbol": position.Symbol,
			"stop":   candidate,
			"qty":    qty,
		}).Info("Trailing stop moved")
		return nil
	}

	logger.WithError(err).WithFields(logger.Fields{"symbol": position.Symbol}).
		Error("Trailing stop placement failed, falling back to fixed stop")

	fallback, calcErr := calculator.StopPrice(t.EntryPrice,
		decimal.NewFromFloat(m.cfg.StopLossPct), t.Side == model.PositionSideLong, meta.TickSize)
	if calcErr != nil {
		return fmt.Errorf("compute fallback stop %s: %w", position.Symbol, calcErr)
	}

	if _, fbErr := m.client.CreateStopMarketOrder(ctx, position.Symbol, position.CloseSide(), qty, fallback); fbErr != nil {
		m.notify(ctx, model.SeverityError, "Position unprotected",
			fmt.Sprintf("%s trailing move and fallback stop both failed", position.Symbol))
		return fmt.Errorf("fallback stop %s: %w", position.Symbol, fbErr)
	}

	m.notify(ctx, model.SeverityWarning, "Trailing move degraded",
		fmt.Sprintf("%s re-protected at fixed stop %s after failed trail to %s", position.Symbol, fallback, candidate))
	return nil
}

// runTPTimeout advances the take-profit timeout state machine. It returns
// true when the position was force-closed.
func (m *PositionManager) runTPTimeout(ctx context.Context, t *Tracker, position model.Position, openOrders []model.Order, price decimal.Decimal) (bool, error) {
	trigger, tpOrder, hasOrder := m.tpTrigger(ctx, t, position, openOrders)
	if trigger.Sign() <= 0 {
		return false, nil
	}

	reached := price.GreaterThanOrEqual(trigger)
	if t.Side == model.PositionSideShort {
		reached = price.LessThanOrEqual(trigger)
	}

	switch t.TPState {
	case TPIdle, "":
		if reached {
			t.TPState = TPReached
			t.tpReachedAt = m.now()
			logger.WithFields(logger.Fields{
				"symbol":  t.Symbol,
				"price":   price,
				"trigger": trigger,
			}).Info("Take profit level reached, timeout armed")
		}
		return false, nil

	case TPReached:
		if !reached {
			t.TPState = TPIdle
			logger.WithFields(logger.Fields{"symbol": t.Symbol}).Info("Price retreated from take profit, timeout reset")
			return false, nil
		}
		if m.now().Sub(t.tpReachedAt) <= time.Duration(m.cfg.TPTimeoutSec)*time.Second {
			return false, nil
		}
		if err := m.forceExit(ctx, t, position, tpOrder, hasOrder); err != nil {
			// Stay in TPReached so the close is retried next pass.
			return false, err
		}
		t.TPState = TPTimedOut
		return true, nil

	case TPTimedOut:
		if err := m.forceExit(ctx, t, position, tpOrder, hasOrder); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// tpTrigger prefers the live take-profit order price; without one the
// trigger is derived from the entry price and the configured TP distance.
// With the TP percent unset there is nothing to derive and no timeout runs.
func (m *PositionManager) tpTrigger(ctx context.Context, t *Tracker, position model.Position, openOrders []model.Order) (decimal.Decimal, model.Order, bool) {
	for _, o := range openOrders {
		if o.Symbol == position.Symbol && o.IsTakeProfit() && o.Side == position.CloseSide() {
			return o.StopPrice, o, true
		}
	}

	if m.cfg.TakeProfitPct <= 0 {
		return decimal.Zero, model.Order{}, false
	}

	meta, err := m.client.SymbolMeta(ctx, position.Symbol)
	if err != nil {
		return decimal.Zero, model.Order{}, false
	}
	trigger, err := calculator.TakeProfitPrice(t.EntryPrice,
		decimal.NewFromFloat(m.cfg.TakeProfitPct), t.Side == model.PositionSideLong, meta.TickSize)
	if err != nil {
		return decimal.Zero, model.Order{}, false
	}
	return trigger, model.Order{}, false
}

// forceExit closes a position that sat at its take-profit level past the
// timeout. The stale TP order goes first so the market close cannot race it
// into a double fill.
func (m *PositionManager) forceExit(ctx context.Context, t *Tracker, position model.Position, tpOrder model.Order, hasOrder bool) error {
	logger.WithFields(logger.Fields{
		"symbol":  t.Symbol,
		"timeout": m.cfg.TPTimeoutSec,
	}).Warn("Take profit timed out, force closing position")

	if hasOrder {
		if err := m.client.CancelOrder(ctx, position.Symbol, tpOrder.ID); err != nil {
			return fmt.Errorf("cancel stale TP %d: %w", tpOrder.ID, err)
		}
		if err := sleepCtx(ctx, m.settleDelay); err != nil {
			return err
		}
	}

	if _, err := m.client.ClosePosition(ctx, position); err != nil {
		m.notify(ctx, model.SeverityError, "Forced exit failed",
			fmt.Sprintf("%s TP timeout close failed: %v", t.Symbol, err))
		return fmt.Errorf("force close %s: %w", t.Symbol, err)
	}

	m.notify(ctx, model.SeverityWarning, "Forced exit",
		fmt.Sprintf("%s closed at market after %ds at take profit", t.Symbol, m.cfg.TPTimeoutSec))
	return nil
}

func matchStop(position model.Position, orders []model.Order) (model.Order, bool) {
	for _, o := range orders {
		if o.Symbol == position.Symbol && o.IsStop() && o.Side == position.CloseSide() {
			return o, true
		}
	}
	return model.Order{}, false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
