package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"safetrader/src/model"
)

type exchangeClient interface {
	FetchTicker(ctx context.Context, symbol string) (model.Ticker, error)
	CreateMarketOrder(ctx context.Context, symbol string, side model.OrderSide, qty decimal.Decimal) (model.Order, error)
	CreateStopMarketOrder(ctx context.Context, symbol string, side model.OrderSide, qty, stopPrice decimal.Decimal) (model.Order, error)
	CreateTakeProfitOrder(ctx context.Context, symbol string, side model.OrderSide, qty, stopPrice decimal.Decimal) (model.Order, error)
	FetchOrder(ctx context.Context, symbol string, orderID int64) (model.Order, error)
	ClosePosition(ctx context.Context, position model.Position) (model.Order, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	SetMarginMode(ctx context.Context, symbol, mode string) error
}

type eventNotifier interface {
	Notify(ctx context.Context, event model.Event)
}

// EntryRequest describes one atomic entry: a market order plus the
// protective stop that must exist before the entry is considered done.
type EntryRequest struct {
	Symbol          string
	Side            model.OrderSide
	Quantity        decimal.Decimal
	StopPrice       decimal.Decimal
	TakeProfitPrice decimal.Decimal
	Leverage        int
	MarginMode      model.MarginMode
}

// EntryResult reports what actually happened on the exchange. FilledQty is
// the executed quantity the stop was sized to, which can differ from the
// requested quantity on a partial fill.
type EntryResult struct {
	EntryOrder model.Order
	StopOrder  model.Order
	TPOrder    model.Order
	FilledQty  decimal.Decimal
	TPPlaced   bool
}

// Engine performs protected entries. An entry either ends with a live
// position covered by a stop sized to the real fill, with no position at
// all, or with a CriticalError demanding operator intervention.
type Engine struct {
	client   exchangeClient
	notifier eventNotifier
	cfg      Config

	settleDelay time.Duration
	retryDelay  time.Duration
}

func NewEngine(client exchangeClient, notifier eventNotifier, cfg Config) *Engine {
	return &Engine{
		client:      client,
		notifier:    notifier,
		cfg:         cfg,
		settleDelay: time.Duration(cfg.SettleDelayMs) * time.Millisecond,
		retryDelay:  time.Duration(cfg.RetryDelayMs) * time.Millisecond,
	}
}

func (e *Engine) notify(ctx context.Context, severity model.Severity, title, body string) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(ctx, model.Event{Title: title, Body: body, Severity: severity})
}

// EnterAtomic runs the full entry protocol for one request.
func (e *Engine) EnterAtomic(ctx context.Context, req EntryRequest) (*EntryResult, error) {
	log := logger.WithFields(logger.Fields{
		"symbol": req.Symbol,
		"side":   req.Side,
		"qty":    req.Quantity,
	})
	log.Info("Starting protected entry")

	e.configureMargin(ctx, req)

	if err := e.checkSpread(ctx, req.Symbol); err != nil {
		return nil, err
	}

	entry, err := e.client.CreateMarketOrder(ctx, req.Symbol, req.Side, req.Quantity)
	if err != nil {
		return nil, &ExecutionError{Stage: "market entry", Symbol: req.Symbol, Err: err}
	}

	filled, err := e.verifyFill(ctx, entry)
	if err != nil {
		return nil, &ExecutionError{Stage: "fill verification", Symbol: req.Symbol, Err: err}
	}
	if filled.IsZero() {
		log.Warn("Market order filled zero quantity, nothing to protect")
		e.notify(ctx, model.SeverityWarning, "Zero fill",
			fmt.Sprintf("%s %s market order executed nothing", req.Symbol, req.Side))
		return &EntryResult{EntryOrder: entry, FilledQty: decimal.Zero}, nil
	}

	result := &EntryResult{EntryOrder: entry, FilledQty: filled}

	stop, err := e.placeStop(ctx, req, filled)
	if err != nil {
		return result, e.emergencyUnwind(ctx, req, filled, err)
	}
	result.StopOrder = stop

	log.WithFields(logger.Fields{"filled": filled, "stop": stop.StopPrice}).Info("Entry protected")
	e.notify(ctx, model.SeveritySuccess, "Entry protected",
		fmt.Sprintf("%s %s filled %s, stop at %s", req.Symbol, req.Side, filled, stop.StopPrice))

	if req.TakeProfitPrice.Sign() > 0 {
		if tp, ok := e.placeTakeProfit(ctx, req, filled); ok {
			result.TPOrder = tp
			result.TPPlaced = true
		}
	}
	return result, nil
}

// configureMargin applies leverage and margin mode before entry. Both are
// best-effort; the exchange falls back to whatever is already configured.
func (e *Engine) configureMargin(ctx context.Context, req EntryRequest) {
	if req.MarginMode != "" {
		if err := e.client.SetMarginMode(ctx, req.Symbol, string(req.MarginMode)); err != nil {
			logger.WithError(err).WithFields(logger.Fields{"symbol": req.Symbol, "mode": req.MarginMode}).
				Warn("Failed to set margin mode, continuing with current")
		}
	}
	if req.Leverage > 0 {
		if err := e.client.SetLeverage(ctx, req.Symbol, req.Leverage); err != nil {
			logger.WithError(err).WithFields(logger.Fields{"symbol": req.Symbol, "leverage": req.Leverage}).
				Warn("Failed to set leverage, continuing with current")
		}
	}
}

// checkSpread aborts the entry when the bid/ask spread ratio exceeds the
// ceiling. When the book is missing both sides the check degrades to the
// last traded price, leaving only the freshness gate.
func (e *Engine) checkSpread(ctx context.Context, symbol string) error {
	ticker, err := e.client.FetchTicker(ctx, symbol)
	if err != nil {
		return err
	}

	if !ticker.HasBook() {
		logger.WithFields(logger.Fields{"symbol": symbol, "last": ticker.Last}).
			Warn("No bid/ask available, skipping spread check")
		return nil
	}

	ratio := ticker.Ask.Sub(ticker.Bid).Div(ticker.Ask)
	max := decimal.NewFromFloat(e.cfg.MaxSpreadRatio)
	if ratio.GreaterThan(max) {
		return &SpreadTooWideError{Symbol: symbol, Ratio: ratio, Max: max}
	}
	return nil
}

// verifyFill reads the executed quantity off the entry order, re-polling
// once after a settle delay when the immediate response reads zero.
func (e *Engine) verifyFill(ctx context.Context, entry model.Order) (decimal.Decimal, error) {
	if entry.ExecutedQty.Sign() > 0 {
		return entry.ExecutedQty, nil
	}

	if err := sleepCtx(ctx, e.settleDelay); err != nil {
		return decimal.Zero, err
	}

	refetched, err := e.client.FetchOrder(ctx, entry.Symbol, entry.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("re-fetch entry order %d: %w", entry.ID, err)
	}
	return refetched.ExecutedQty, nil
}

func (e *Engine) placeStop(ctx context.Context, req EntryRequest, filled decimal.Decimal) (model.Order, error) {
	stopSide := req.Side.Opposite()

	var lastErr error
	for attempt := 1; attempt <= e.cfg.StopAttempts; attempt++ {
		stop, err := e.client.CreateStopMarketOrder(ctx, req.Symbol, stopSide, filled, req.StopPrice)
		if err == nil {
			return stop, nil
		}
		lastErr = err
		logger.WithError(err).WithFields(logger.Fields{
			"symbol":  req.Symbol,
			"attempt": attempt,
		}).Error("Stop order placement failed")

		if attempt < e.cfg.StopAttempts {
			if err := sleepCtx(ctx, e.retryDelay); err != nil {
				return model.Order{}, err
			}
		}
	}
	return model.Order{}, fmt.Errorf("stop placement exhausted %d attempts: %w", e.cfg.StopAttempts, lastErr)
}

// placeTakeProfit is best-effort. A missing TP costs upside, not safety.
func (e *Engine) placeTakeProfit(ctx context.Context, req EntryRequest, filled decimal.Decimal) (model.Order, bool) {
	tpSide := req.Side.Opposite()

	for attempt := 1; attempt <= e.cfg.TPAttempts; attempt++ {
		tp, err := e.client.CreateTakeProfitOrder(ctx, req.Symbol, tpSide, filled, req.TakeProfitPrice)
		if err == nil {
			return tp, true
		}
		logger.WithError(err).WithFields(logger.Fields{
			"symbol":  req.Symbol,
			"attempt": attempt,
		}).Warn("Take profit placement failed")

		if attempt < e.cfg.TPAttempts {
			if err := sleepCtx(ctx, e.retryDelay); err != nil {
				return model.Order{}, false
			}
		}
	}
	e.notify(ctx, model.SeverityWarning, "Take profit not placed",
		fmt.Sprintf("%s TP at %s failed after %d attempts", req.Symbol, req.TakeProfitPrice, e.cfg.TPAttempts))
	return model.Order{}, false
}

// emergencyUnwind closes the freshly filled quantity after stop placement
// failed. Success downgrades the failure to an ExecutionError; failure
// escalates to a CriticalError because the exposure is live and bare.
func (e *Engine) emergencyUnwind(ctx context.Context, req EntryRequest, filled decimal.Decimal, stopErr error) error {
	logger.WithError(stopErr).WithFields(logger.Fields{
		"symbol": req.Symbol,
		"filled": filled,
	}).Error("Stop placement failed, unwinding position")
	e.notify(ctx, model.SeverityError, "Emergency unwind",
		fmt.Sprintf("%s stop placement failed, closing %s at market", req.Symbol, filled))

	position := model.Position{
		Symbol:   req.Symbol,
		Side:     positionSideFor(req.Side),
		Quantity: filled,
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.CloseAttempts; attempt++ {
		_, err := e.client.ClosePosition(ctx, position)
		if err == nil {
			e.notify(ctx, model.SeverityWarning, "Position unwound",
				fmt.Sprintf("%s closed %s after failed stop placement", req.Symbol, filled))
			return &ExecutionError{Stage: "stop placement", Symbol: req.Symbol,
				Err: fmt.Errorf("position unwound after stop failure: %w", stopErr)}
		}
		lastErr = err
		logger.WithError(err).WithFields(logger.Fields{
			"symbol":  req.Symbol,
			"attempt": attempt,
		}).Error("Emergency close failed")

		if attempt < e.cfg.CloseAttempts {
			if err := sleepCtx(ctx, e.retryDelay); err != nil {
				lastErr = err
				break
			}
		}
	}

	crit := &CriticalError{
		Symbol: req.Symbol,
		Reason: fmt.Sprintf("stop placement and emergency close both failed for %s filled", filled),
		Err:    lastErr,
	}
	e.notify(ctx, model.SeverityError, "CRITICAL unprotected position", crit.Error())
	return crit
}

func positionSideFor(side model.OrderSide) model.PositionSide {
	if side == model.OrderSideBuy {
		return model.PositionSideLong
	}
	return model.PositionSideShort
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
