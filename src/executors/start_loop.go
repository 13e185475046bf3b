package executors

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"safetrader/src/calculator"
	"safetrader/src/execution"
	"safetrader/src/manager"
	"safetrader/src/metrics"
	"safetrader/src/model"
	"safetrader/src/risk"
	"safetrader/src/safety"
)

type exchangeClient interface {
	FetchBalance(ctx context.Context, asset string) (model.Balance, error)
	FetchPositions(ctx context.Context, symbol string) ([]model.Position, error)
	FetchOpenOrders(ctx context.Context, symbol string) ([]model.Order, error)
	SymbolMeta(ctx context.Context, symbol string) (model.SymbolMeta, error)
}

type entryEngine interface {
	EnterAtomic(ctx context.Context, req execution.EntryRequest) (*execution.EntryResult, error)
}

type stopSynchronizer interface {
	Run(ctx context.Context) (safety.Report, error)
}

type positionMonitor interface {
	Process(ctx context.Context, positions []model.Position, openOrders []model.Order) (manager.Report, error)
}

type signalSource interface {
	Scan(ctx context.Context) (*model.Signal, error)
	VolatilityPct(ctx context.Context) (float64, error)
}

type tradeLedger interface {
	Add(trade model.TradeRecord)
	Metrics(balance decimal.Decimal, volatilityPct float64) risk.Metrics
}

type riskController interface {
	OptimalLeverage(m risk.Metrics) int
	MarginMode(m risk.Metrics) model.MarginMode
	ShouldStopTrading(m risk.Metrics) (bool, string)
}

type eventNotifier interface {
	Notify(ctx context.Context, event model.Event)
}

// ErrHalted is returned once a critical entry failure latched the loop shut.
// The process must not trade again until an operator has inspected the
// exchange state.
var ErrHalted = errors.New("trading halted after critical failure")

// Loop owns one full trading cycle: reconcile stops, manage open positions,
// then consider a single new entry. Each phase works from a fresh exchange
// snapshot taken at the start of the tick.
type Loop struct {
	cfg      Config
	client   exchangeClient
	engine   entryEngine
	syncer   stopSynchronizer
	monitor  positionMonitor
	signals  signalSource
	ledger   tradeLedger
	riskCtl  riskController
	notifier eventNotifier

	// halted is also read by the status endpoint from its own goroutine.
	halted atomic.Bool
	vetoed bool
}

func NewLoop(
	cfg Config,
	client exchangeClient,
	engine entryEngine,
	syncer stopSynchronizer,
	monitor positionMonitor,
	signals signalSource,
	ledger tradeLedger,
	riskCtl riskController,
	notifier eventNotifier,
) *Loop {
	return &Loop{
		cfg:      cfg,
		client:   client,
		engine:   engine,
		syncer:   syncer,
		monitor:  monitor,
		signals:  signals,
		ledger:   ledger,
		riskCtl:  riskCtl,
		notifier: notifier,
	}
}

func (l *Loop) notify(ctx context.Context, severity model.Severity, title, body string) {
	if l.notifier == nil {
		return
	}
	l.notifier.Notify(ctx, model.Event{Title: title, Body: body, Severity: severity})
}

// Halted reports whether a critical failure has latched the loop shut.
func (l *Loop) Halted() bool {
	return l.halted.Load()
}

// Tick runs one full cycle. It absorbs recoverable errors and returns one
// only when trading must stop for good.
func (l *Loop) Tick(ctx context.Context) error {
	if l.halted.Load() {
		return ErrHalted
	}

	syncReport, err := l.syncer.Run(ctx)
	if err != nil {
		logger.WithError(err).Error("Stop synchronization failed, skipping tick")
		metrics.IncLoopError()
		return nil
	}
	metrics.AddStopRepairs("missing", syncReport.MissingFixed)
	metrics.AddStopRepairs("mismatch", syncReport.MismatchFixed)

	positions, err := l.client.FetchPositions(ctx, "")
	if err != nil {
		logger.WithError(err).Error("Failed to fetch positions, skipping tick")
		metrics.IncLoopError()
		return nil
	}
	metrics.SetOpenPositions(len(positions))

	openOrders, err := l.client.FetchOpenOrders(ctx, "")
	if err != nil {
		logger.WithError(err).Error("Failed to fetch open orders, skipping tick")
		metrics.IncLoopError()
		return nil
	}

	mgrReport, err := l.monitor.Process(ctx, positions, openOrders)
	if err != nil {
		logger.WithError(err).Error("Position management pass failed")
		metrics.IncLoopError()
	}
	metrics.AddStopsMoved(mgrReport.StopsMoved)
	metrics.AddForcedExits(mgrReport.ForcedExits)
	l.recordClosed(mgrReport.Closed)

	if !syncReport.AllSynced {
		logger.WithField("errors", syncReport.Errors).Warn("Unrepaired stops remain, entries suspended")
		return nil
	}

	return l.tryEnter(ctx, len(positions))
}

func (l *Loop) recordClosed(closed []manager.ClosedPosition) {
	for _, c := range closed {
		pnl := calculator.PnL(c.EntryPrice, c.ExitPrice, c.Quantity, c.Side == model.PositionSideLong)
		win := pnl.Sign() > 0

		l.ledger.Add(model.TradeRecord{
			Symbol:     c.Symbol,
			Side:       c.Side,
			EntryPrice: c.EntryPrice,
			ExitPrice:  c.ExitPrice,
			Pnl:        pnl,
			Win:        win,
			Timestamp:  time.Now().UTC(),
		})
		metrics.IncTrade(win)

		logger.WithFields(logger.Fields{
			"Symbol": c.Symbol,
			"Pnl":    pnl,
			"Win":    win,
		}).Info("Closed trade recorded")
	}
}

func (l *Loop) tryEnter(ctx context.Context, openPositions int) error {
	if openPositions >= l.cfg.MaxOpenPositions {
		return nil
	}

	balance, err := l.client.FetchBalance(ctx, l.cfg.MarginAsset)
	if err != nil {
		logger.WithError(err).Error("Failed to fetch balance, skipping entry")
		metrics.IncLoopError()
		return nil
	}
	availableFloat, _ := balance.Available.Float64()
	metrics.SetBalance(availableFloat)

	volatility, err := l.signals.VolatilityPct(ctx)
	if err != nil {
		logger.WithError(err).Warn("Volatility read failed, assuming calm market")
		volatility = 0
	}

	snapshot := l.ledger.Metrics(balance.Available, volatility)
	if stop, reason := l.riskCtl.ShouldStopTrading(snapshot); stop {
		if !l.vetoed {
			l.vetoed = true
			logger.WithField("reason", reason).Warn("Risk controller vetoed new entries")
			l.notify(ctx, model.SeverityWarning, "Entries suspended", reason)
		}
		return nil
	}
	l.vetoed = false

	signal, err := l.signals.Scan(ctx)
	if err != nil {
		logger.WithError(err).Warn("Market scan failed")
		metrics.IncLoopError()
		return nil
	}
	if signal == nil {
		return nil
	}

	meta, err := l.client.SymbolMeta(ctx, signal.Symbol)
	if err != nil {
		logger.WithError(err).Error("Failed to load symbol rules, skipping signal")
		metrics.IncLoopError()
		return nil
	}

	leverage := l.riskCtl.OptimalLeverage(snapshot)
	marginMode := l.riskCtl.MarginMode(snapshot)
	metrics.SetLeverage(leverage)

	qty := calculator.PositionSize(
		balance.Available,
		decimal.NewFromFloat(l.cfg.RiskPct),
		signal.EntryPrice,
		signal.StoplossPrice,
		meta.StepSize,
		leverage,
		decimal.NewFromFloat(l.cfg.MaxPositionPct),
	)
	if qty.IsZero() || !calculator.ValidMinNotional(qty, signal.EntryPrice, meta.MinNotional) {
		logger.WithFields(logger.Fields{
			"Symbol": signal.Symbol,
			"Qty":    qty,
		}).Warn("Sized quantity below exchange minimum, skipping signal")
		metrics.IncEntry("rejected")
		return nil
	}

	isLong := signal.Direction == model.PositionSideLong

	stopPrice, err := calculator.FloorPriceToTick(signal.StoplossPrice, meta.TickSize)
	if err != nil {
		logger.WithError(err).Error("Failed to round stop price, skipping signal")
		return nil
	}
	// TakeProfitPct of zero means no target order; the engine skips a zero
	// TP price.
	var tpPrice decimal.Decimal
	if l.cfg.TakeProfitPct > 0 {
		tpPrice, err = calculator.TakeProfitPrice(signal.EntryPrice, decimal.NewFromFloat(l.cfg.TakeProfitPct), isLong, meta.TickSize)
		if err != nil {
			logger.WithError(err).Error("Failed to compute take profit, skipping signal")
			return nil
		}
	}

	side := model.OrderSideSell
	if isLong {
		side = model.OrderSideBuy
	}

	result, err := l.engine.EnterAtomic(ctx, execution.EntryRequest{
		Symbol:          signal.Symbol,
		Side:            side,
		Quantity:        qty,
		StopPrice:       stopPrice,
		TakeProfitPrice: tpPrice,
		Leverage:        leverage,
		MarginMode:      marginMode,
	})
	if err != nil {
		var critical *execution.CriticalError
		if errors.As(err, &critical) {
			l.halted.Store(true)
			metrics.IncEntry("critical")
			logger.WithError(err).Error("Critical entry failure, halting the loop")
			return err
		}

		var spread *execution.SpreadTooWideError
		if errors.As(err, &spread) {
			logger.WithError(err).Warn("Entry skipped on wide spread")
			metrics.IncEntry("rejected")
			return nil
		}

		logger.WithError(err).Error("Entry failed without leaving exposure")
		metrics.IncEntry("unwound")
		metrics.IncLoopError()
		return nil
	}

	if result.FilledQty.IsZero() {
		metrics.IncEntry("rejected")
		return nil
	}
	metrics.IncEntry("protected")
	return nil
}

// StartLoop drives ticks until the context is cancelled or the loop halts on
// a critical failure. The first tick runs immediately so a restart repairs
// missing stops without waiting a full period.
func StartLoop(ctx context.Context, loop *Loop) error {
	ticker := time.NewTicker(loop.cfg.LoopPeriod)
	defer ticker.Stop()

	logger.WithField("period", loop.cfg.LoopPeriod).Info("Trading loop started")

	if err := loop.Tick(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("loop stopped")
			return nil

		case <-ticker.C:
			logger.Info("loop tick")
			if err := loop.Tick(ctx); err != nil {
				logger.WithError(err).Error("Trading loop halted")
				return err
			}
		}
	}
}
