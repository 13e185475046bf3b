package safety

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
	FetchPositions(ctx context.Context, symbol string) ([]model.Position, error)
	FetchOpenOrders(ctx context.Context, symbol string) ([]model.Order, error)
	FetchOrder(ctx context.Context, symbol string, orderID int64) (model.Order, error)
	CreateStopMarketOrder(ctx context.Context, symbol string, side model.OrderSide, qty, stopPrice decimal.Decimal) (model.Order, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	SymbolMeta(ctx context.Context, symbol string) (model.SymbolMeta, error)
}

type eventNotifier interface {
	Notify(ctx context.Context, event model.Event)
}

// Report summarizes one reconciliation pass. Errors counts repairs that
// could not be completed; callers must not open new positions while it is
// nonzero.
type Report struct {
	Checked       int  `json:"checked"`
	MissingFixed  int  `json:"missing_fixed"`
	MismatchFixed int  `json:"mismatch_fixed"`
	Errors        int  `json:"errors"`
	AllSynced     bool `json:"all_synced"`
}

// Synchronizer repairs the drift between live positions and their
// protective stop orders. Every pass works from fresh exchange state.
type Synchronizer struct {
	client   exchangeClient
	notifier eventNotifier
	cfg      Config

	settleDelay time.Duration

	mu         sync.Mutex
	lastReport Report
	lastRun    time.Time
}

func NewSynchronizer(client exchangeClient, notifier eventNotifier, cfg Config) *Synchronizer {
	return &Synchronizer{
		client:      client,
		notifier:    notifier,
		cfg:         cfg,
		settleDelay: time.Duration(cfg.SettleDelayMs) * time.Millisecond,
	}
}

func (s *Synchronizer) notify(ctx context.Context, severity model.Severity, title, body string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, model.Event{Title: title, Body: body, Severity: severity})
}

// Run performs one reconciliation pass over all open positions.
func (s *Synchronizer) Run(ctx context.Context) (Report, error) {
	var report Report

	positions, err := s.client.FetchPositions(ctx, "")
	if err != nil {
		return report, fmt.Errorf("fetch positions: %w", err)
	}

	for _, position := range positions {
		report.Checked++

		orders, err := s.client.FetchOpenOrders(ctx, position.Symbol)
		if err != nil {
			logger.WithError(err).WithFields(logger.Fields{"symbol": position.Symbol}).
				Error("Failed to fetch open orders, skipping symbol")
			report.Errors++
			continue
		}

		stop, found := matchStop(position, orders)
		switch {
		case !found:
			logger.WithFields(logger.Fields{
				"symbol": position.Symbol,
				"qty":    position.Quantity,
			}).Warn("Position has no protective stop")
			if s.repairMissing(ctx, position) {
				report.MissingFixed++
			} else {
				report.Errors++
			}
		case qtyMismatch(position.Quantity, stop.Quantity, s.cfg.QtyTolerance):
			logger.WithFields(logger.Fields{
				"symbol":  position.Symbol,
				"posQty":  position.Quantity,
				"stopQty": stop.Quantity,
				"stopID":  stop.ID,
			}).Warn("Stop quantity drifted from position")
			if s.repairMismatch(ctx, position, stop) {
				report.MismatchFixed++
			} else {
				report.Errors++
			}
		}
	}

	report.AllSynced = report.Errors == 0

	s.mu.Lock()
	s.lastReport = report
	s.lastRun = time.Now()
	s.mu.Unlock()

	if report.MissingFixed > 0 || report.MismatchFixed > 0 {
		s.notify(ctx, model.SeverityWarning, "Stops repaired",
			fmt.Sprintf("repaired %d missing and %d mismatched stops across %d positions",
				report.MissingFixed, report.MismatchFixed, report.Checked))
	}
	return report, nil
}

// Protected reports whether every open position currently has a matching
// stop. It never mutates exchange state.
func (s *Synchronizer) Protected(ctx context.Context) (bool, error) {
	positions, err := s.client.FetchPositions(ctx, "")
	if err != nil {
		return false, fmt.Errorf("fetch positions: %w", err)
	}

	for _, position := range positions {
		orders, err := s.client.FetchOpenOrders(ctx, position.Symbol)
		if err != nil {
			return false, fmt.Errorf("fetch open orders %s: %w", position.Symbol, err)
		}
		stop, found := matchStop(position, orders)
		if !found || qtyMismatch(position.Quantity, stop.Quantity, s.cfg.QtyTolerance) {
			return false, nil
		}
	}
	return true, nil
}

// LastReport returns the most recent pass result for the status endpoint.
func (s *Synchronizer) LastReport() (Report, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport, s.lastRun
}

// repairMissing places a fresh protective stop computed from the entry
// price, then re-fetches the order to catch silent rejections.
func (s *Synchronizer) repairMissing(ctx context.Context, position model.Position) bool {
	meta, err := s.client.SymbolMeta(ctx, position.Symbol)
	if err != nil {
		logger.WithError(err).WithFields(logger.Fields{"symbol": position.Symbol}).
			Error("Failed to load symbol meta for stop repair")
		return false
	}

	stopPrice, err := calculator.StopPrice(position.EntryPrice,
		decimal.NewFromFloat(s.cfg.StopLossPct), position.IsLong(), meta.TickSize)
	if err != nil {
		logger.WithError(err).WithFields(logger.Fields{"symbol": position.Symbol}).
			Error("Failed to compute stop price")
		return false
	}

	stop, err := s.client.CreateStopMarketOrder(ctx, position.Symbol, position.CloseSide(),
		position.Quantity, stopPrice)
	if err != nil {
		logger.WithError(err).WithFields(logger.Fields{"symbol": position.Symbol}).
			Error("Failed to place repair stop")
		return false
	}

	if err := sleepCtx(ctx, s.settleDelay); err != nil {
		return false
	}

	// A stop the exchange accepted and then killed is not protection.
	confirmed, err := s.client.FetchOrder(ctx, position.Symbol, stop.ID)
	if err != nil {
		logger.WithError(err).WithFields(logger.Fields{"symbol": position.Symbol, "orderID": stop.ID}).
			Error("Failed to confirm repair stop")
		return false
	}
	if confirmed.IsClosed() && confirmed.Status != model.OrderStatusFilled {
		logger.WithFields(logger.Fields{
			"symbol":  position.Symbol,
			"orderID": stop.ID,
			"status":  confirmed.Status,
		}).Error("Repair stop was silently rejected")
		return false
	}

	logger.WithFields(logger.Fields{
		"symbol": position.Symbol,
		"qty":    position.Quantity,
		"stop":   stopPrice,
	}).Info("Placed missing protective stop")
	return true
}

// repairMismatch cancels the drifted stop and re-places it sized to the
// freshly fetched position quantity.
func (s *Synchronizer) repairMismatch(ctx context.Context, position model.Position, stop model.Order) bool {
	if err := s.client.CancelOrder(ctx, position.Symbol, stop.ID); err != nil {
		logger.WithError(err).WithFields(logger.Fields{"symbol": position.Symbol, "orderID": stop.ID}).
			Error("Failed to cancel drifted stop")
		return false
	}

	if err := sleepCtx(ctx, s.settleDelay); err != nil {
		return false
	}

	fresh, err := s.client.FetchPositions(ctx, position.Symbol)
	if err != nil {
		logger.WithError(err).WithFields(logger.Fields{"symbol": position.Symbol}).
			Error("Failed to re-fetch position after cancel")
		return false
	}
	for _, p := range fresh {
		if p.Symbol == position.Symbol {
			return s.repairMissing(ctx, p)
		}
	}

	// Position disappeared between cancel and re-fetch; nothing left to protect.
	logger.WithFields(logger.Fields{"symbol": position.Symbol}).
		Info("Position closed during stop repair")
	return true
}

// matchStop finds the protective stop for a position: a stop-type order on
// the side that reduces it.
func matchStop(position model.Position, orders []model.Order) (model.Order, bool) {
	for _, o := range orders {
		if o.Symbol == position.Symbol && o.IsStop() && o.Side == position.CloseSide() {
			return o, true
		}
	}
	return model.Order{}, false
}

func qtyMismatch(posQty, stopQty decimal.Decimal, tolerance float64) bool {
	return posQty.Sub(stopQty).Abs().GreaterThan(decimal.NewFromFloat(tolerance))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
