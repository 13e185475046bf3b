// REST API CLIENT FOR BINANCE USDT-M FUTURES
// RESTY ONLY + INTERNAL RETRY
package connectors

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"safetrader/src/model"
)

// -----------------------------
// CONFIG
// -----------------------------
const (
	defaultRetryBaseDelay  = 1 * time.Second
	defaultRetryMaxBackoff = 30 * time.Second
	defaultTimeout         = 15 * time.Second

	clientOrderPrefix = "st-"
)

// -----------------------------
// API ERROR WRAPPER
// -----------------------------
type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// -----------------------------
// WIRE STRUCTURES
// -----------------------------
type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol  string `json:"symbol"`
		Status  string `json:"status"`
		Filters []struct {
			FilterType string `json:"filterType"`
			StepSize   string `json:"stepSize"`
			TickSize   string `json:"tickSize"`
			Notional   string `json:"notional"`
		} `json:"filters"`
	} `json:"symbols"`
}

type bookTickerResponse struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
	Time     int64  `json:"time"`
}

type priceTickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Time   int64  `json:"time"`
}

type balanceEntry struct {
	Asset            string `json:"asset"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"availableBalance"`
}

type positionEntry struct {
	Symbol           string `json:"symbol"`
	PositionAmt      string `json:"positionAmt"`
	EntryPrice       string `json:"entryPrice"`
	UnrealizedProfit string `json:"unRealizedProfit"`
	Leverage         string `json:"leverage"`
}

type orderResponse struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	AvgPrice      string `json:"avgPrice"`
	Price         string `json:"price"`
	StopPrice     string `json:"stopPrice"`
	ReduceOnly    bool   `json:"reduceOnly"`
	UpdateTime    int64  `json:"updateTime"`
}

type serverTimeResponse struct {
	ServerTime int64 `json:"serverTime"`
}

// -----------------------------
// A) AUTHENTICATED CLIENT
// -----------------------------
type BinanceFuturesClient struct {
	apiKey         string
	apiSecret      string
	recvWindow     int64
	staleThreshold time.Duration
	http           *resty.Client

	metaMu     sync.Mutex
	meta       map[string]model.SymbolMeta
	metaLoaded time.Time
	metaTTL    time.Duration
}

func isRetryableResp(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	if r == nil {
		return false
	}

	code := r.StatusCode()

	if code >= 500 && code <= 599 {
		return true
	}
	if code == 429 {
		return true
	}
	if code == 408 {
		return true
	}
	return false
}

func NewBinanceFuturesClient(cfg Config) *BinanceFuturesClient {
	baseURL := cfg.BinanceBaseURL
	if baseURL == "" {
		baseURL = "https://fapi.binance.com"
		logger.Warnf("No base URL provided, using default: %s", baseURL)
	}

	retryCount := cfg.RetryAttempts - 1
	if retryCount < 0 {
		retryCount = 0
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryBaseDelay).
		SetRetryMaxWaitTime(defaultRetryMaxBackoff).
		AddRetryCondition(isRetryableResp)

	return &BinanceFuturesClient{
		apiKey:         cfg.BinanceAPIKey,
		apiSecret:      cfg.BinanceAPISecret,
		recvWindow:     cfg.RecvWindowMs,
		staleThreshold: time.Duration(cfg.StaleThresholdMs) * time.Millisecond,
		http:           httpClient,
		meta:           make(map[string]model.SymbolMeta),
		metaTTL:        time.Duration(cfg.MetaCacheTTLSec) * time.Second,
	}
}

func (c *BinanceFuturesClient) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// newClientOrderID builds an idempotency token for one logical order. The
// same token survives transport-level retries of the same request, so the
// exchange collapses duplicates.
func newClientOrderID() string {
	u := uuid.New()
	return clientOrderPrefix + hex.EncodeToString(u[:])
}

func (c *BinanceFuturesClient) doPublic(ctx context.Context, path string, params url.Values, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if params != nil {
		req.SetQueryParamsFromValues(params)
	}

	resp, err := req.Get(path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.StatusCode() != 200 {
		return c.asAPIError(path, "", resp)
	}
	return json.Unmarshal(resp.Body(), out)
}

func (c *BinanceFuturesClient) doSigned(ctx context.Context, method, path string, params url.Values, out interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.recvWindow, 10))

	query := params.Encode()
	query += "&signature=" + c.sign(query)

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-MBX-APIKEY", c.apiKey).
		SetQueryString(query).
		Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode() != 200 {
		return c.asAPIError(path, params.Get("symbol"), resp)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Body(), out)
}

// asAPIError converts a non-200 response into a typed error. Definitive
// business rejections surface as *RejectionError; everything else keeps the
// raw status and body for the caller's logs. Retries for transient statuses
// already happened inside resty by the time we get here.
func (c *BinanceFuturesClient) asAPIError(path, symbol string, resp *resty.Response) error {
	var ae apiError
	if err := json.Unmarshal(resp.Body(), &ae); err == nil && ae.Code != 0 {
		if resp.StatusCode() >= 400 && resp.StatusCode() < 500 {
			return &RejectionError{Code: ae.Code, Msg: ae.Msg, Symbol: symbol, Request: path}
		}
		return fmt.Errorf("%s: HTTP %d: %s (code %d)", path, resp.StatusCode(), ae.Msg, ae.Code)
	}
	return fmt.Errorf("%s: HTTP %d: %s", path, resp.StatusCode(), string(resp.Body()))
}

// -----------------------------
// B) SYMBOL METADATA
// -----------------------------

// Connect loads the symbol metadata cache. Metadata is refreshed lazily when
// the TTL expires; between refreshes readers only copy values out.
func (c *BinanceFuturesClient) Connect(ctx context.Context) error {
	return c.refreshMeta(ctx)
}

func (c *BinanceFuturesClient) refreshMeta(ctx context.Context) error {
	var info exchangeInfoResponse
	if err := c.doPublic(ctx, "/fapi/v1/exchangeInfo", nil, &info); err != nil {
		return fmt.Errorf("load exchange info: %w", err)
	}

	meta := make(map[string]model.SymbolMeta, len(info.Symbols))
	for _, s := range info.Symbols {
		m := model.SymbolMeta{Symbol: s.Symbol}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "LOT_SIZE":
				m.StepSize, _ = decimal.NewFromString(f.StepSize)
			case "PRICE_FILTER":
				m.TickSize, _ = decimal.NewFromString(f.TickSize)
			case "MIN_NOTIONAL":
				m.MinNotional, _ = decimal.NewFromString(f.Notional)
			}
		}
		meta[s.Symbol] = m
	}

	c.metaMu.Lock()
	c.meta = meta
	c.metaLoaded = time.Now()
	c.metaMu.Unlock()

	logger.WithFields(logger.Fields{"symbols": len(meta)}).Info("Symbol metadata loaded")
	return nil
}

// SymbolMeta returns the exchange filters for one symbol, refreshing the
// cache when it is older than the TTL.
func (c *BinanceFuturesClient) SymbolMeta(ctx context.Context, symbol string) (model.SymbolMeta, error) {
	c.metaMu.Lock()
	expired := time.Since(c.metaLoaded) > c.metaTTL || len(c.meta) == 0
	c.metaMu.Unlock()

	if expired {
		if err := c.refreshMeta(ctx); err != nil {
			return model.SymbolMeta{}, err
		}
	}

	c.metaMu.Lock()
	m, ok := c.meta[symbol]
	c.metaMu.Unlock()
	if !ok {
		return model.SymbolMeta{}, fmt.Errorf("unknown symbol %s", symbol)
	}
	return m, nil
}

// -----------------------------
// C) MARKET DATA
// -----------------------------

// FetchTicker combines the best bid/ask with the last traded price and
// enforces the freshness gate. Data older than the stale threshold returns
// a *StaleDataError; an absent exchange timestamp degrades to pass-through
// with a warning.
func (c *BinanceFuturesClient) FetchTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	params := url.Values{"symbol": {symbol}}

	var book bookTickerResponse
	if err := c.doPublic(ctx, "/fapi/v1/ticker/bookTicker", params, &book); err != nil {
		return model.Ticker{}, fmt.Errorf("fetch book ticker %s: %w", symbol, err)
	}

	var last priceTickerResponse
	if err := c.doPublic(ctx, "/fapi/v1/ticker/price", params, &last); err != nil {
		return model.Ticker{}, fmt.Errorf("fetch last price %s: %w", symbol, err)
	}

	t := model.Ticker{Symbol: symbol}
	var err error
	if t.Bid, err = decimal.NewFromString(book.BidPrice); err != nil {
		return model.Ticker{}, fmt.Errorf("parse bid for %s: %w", symbol, err)
	}
	if t.Ask, err = decimal.NewFromString(book.AskPrice); err != nil {
		return model.Ticker{}, fmt.Errorf("parse ask for %s: %w", symbol, err)
	}
	if t.Last, err = decimal.NewFromString(last.Price); err != nil {
		return model.Ticker{}, fmt.Errorf("parse last price for %s: %w", symbol, err)
	}

	ts := book.Time
	if ts == 0 {
		ts = last.Time
	}
	if ts == 0 {
		logger.WithFields(logger.Fields{"symbol": symbol}).Warn("Ticker has no exchange timestamp, skipping freshness check")
		t.Timestamp = time.Now()
		return t, nil
	}

	t.Timestamp = time.UnixMilli(ts)
	if age := time.Since(t.Timestamp); age > c.staleThreshold {
		return model.Ticker{}, &StaleDataError{Symbol: symbol, Age: age, Threshold: c.staleThreshold}
	}
	return t, nil
}

func (c *BinanceFuturesClient) ServerTime(ctx context.Context) (time.Time, error) {
	var st serverTimeResponse
	if err := c.doPublic(ctx, "/fapi/v1/time", nil, &st); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(st.ServerTime), nil
}

// -----------------------------
// D) ACCOUNT & POSITION METHODS
// -----------------------------
func (c *BinanceFuturesClient) FetchBalance(ctx context.Context, asset string) (model.Balance, error) {
	var entries []balanceEntry
	if err := c.doSigned(ctx, "GET", "/fapi/v2/balance", nil, &entries); err != nil {
		return model.Balance{}, fmt.Errorf("fetch balance: %w", err)
	}

	for _, e := range entries {
		if e.Asset != asset {
			continue
		}
		available, err := decimal.NewFromString(e.AvailableBalance)
		if err != nil {
			return model.Balance{}, fmt.Errorf("parse available balance: %w", err)
		}
		total, err := decimal.NewFromString(e.Balance)
		if err != nil {
			return model.Balance{}, fmt.Errorf("parse total balance: %w", err)
		}
		return model.Balance{Asset: asset, Available: available, Total: total}, nil
	}
	return model.Balance{}, fmt.Errorf("no balance entry for asset %s", asset)
}

// FetchPositions returns open positions, filtered to nonzero amounts. The
// side comes from the sign of positionAmt and the quantity is returned as
// an absolute value.
func (c *BinanceFuturesClient) FetchPositions(ctx context.Context, symbol string) ([]model.Position, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	var entries []positionEntry
	if err := c.doSigned(ctx, "GET", "/fapi/v2/positionRisk", params, &entries); err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}

	positions := make([]model.Position, 0, len(entries))
	for _, e := range entries {
		amt, err := decimal.NewFromString(e.PositionAmt)
		if err != nil {
			return nil, fmt.Errorf("parse position amount for %s: %w", e.Symbol, err)
		}
		if amt.IsZero() {
			continue
		}

		p := model.Position{Symbol: e.Symbol, Quantity: amt.Abs()}
		if amt.Sign() > 0 {
			p.Side = model.PositionSideLong
		} else {
			p.Side = model.PositionSideShort
		}
		if p.EntryPrice, err = decimal.NewFromString(e.EntryPrice); err != nil {
			return nil, fmt.Errorf("parse entry price for %s: %w", e.Symbol, err)
		}
		if p.UnrealizedPnl, err = decimal.NewFromString(e.UnrealizedProfit); err != nil {
			return nil, fmt.Errorf("parse unrealized pnl for %s: %w", e.Symbol, err)
		}
		if lev, err := strconv.Atoi(e.Leverage); err == nil {
			p.Leverage = lev
		}
		positions = append(positions, p)
	}
	return positions, nil
}

// -----------------------------
// E) ORDER QUERY METHODS
// -----------------------------
// FetchOpenOrders lists open orders, account-wide when symbol is empty. The
// endpoint rejects an empty symbol value, so the param is only set when given.
func (c *BinanceFuturesClient) FetchOpenOrders(ctx context.Context, symbol string) ([]model.Order, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	var entries []orderResponse
	if err := c.doSigned(ctx, "GET", "/fapi/v1/openOrders", params, &entries); err != nil {
		return nil, fmt.Errorf("fetch open orders: %w", err)
	}

	orders := make([]model.Order, 0, len(entries))
	for _, e := range entries {
		o, err := parseOrder(e)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func (c *BinanceFuturesClient) FetchOrder(ctx context.Context, symbol string, orderID int64) (model.Order, error) {
	params := url.Values{
		"symbol":  {symbol},
		"orderId": {strconv.FormatInt(orderID, 10)},
	}

	var entry orderResponse
	if err := c.doSigned(ctx, "GET", "/fapi/v1/order", params, &entry); err != nil {
		return model.Order{}, fmt.Errorf("fetch order %d for %s: %w", orderID, symbol, err)
	}
	return parseOrder(entry)
}

// -----------------------------
// F) TRADING METHODS
// -----------------------------
func (c *BinanceFuturesClient) createOrder(ctx context.Context, params url.Values) (model.Order, error) {
	params.Set("newClientOrderId", newClientOrderID())
	params.Set("newOrderRespType", "RESULT")

	var entry orderResponse
	if err := c.doSigned(ctx, "POST", "/fapi/v1/order", params, &entry); err != nil {
		return model.Order{}, err
	}
	return parseOrder(entry)
}

func (c *BinanceFuturesClient) CreateMarketOrder(ctx context.Context, symbol string, side model.OrderSide, qty decimal.Decimal) (model.Order, error) {
	o, err := c.createOrder(ctx, url.Values{
		"symbol":   {symbol},
		"side":     {string(side)},
		"type":     {string(model.OrderTypeMarket)},
		"quantity": {qty.String()},
	})
	if err != nil {
		return model.Order{}, fmt.Errorf("market order %s %s: %w", side, symbol, err)
	}
	return o, nil
}

func (c *BinanceFuturesClient) CreateLimitOrder(ctx context.Context, symbol string, side model.OrderSide, qty, price decimal.Decimal) (model.Order, error) {
	o, err := c.createOrder(ctx, url.Values{
		"symbol":      {symbol},
		"side":        {string(side)},
		"type":        {string(model.OrderTypeLimit)},
		"quantity":    {qty.String()},
		"price":       {price.String()},
		"timeInForce": {"GTC"},
	})
	if err != nil {
		return model.Order{}, fmt.Errorf("limit order %s %s: %w", side, symbol, err)
	}
	return o, nil
}

// CreateStopMarketOrder places a reduce-only protective stop.
func (c *BinanceFuturesClient) CreateStopMarketOrder(ctx context.Context, symbol string, side model.OrderSide, qty, stopPrice decimal.Decimal) (model.Order, error) {
	o, err := c.createOrder(ctx, url.Values{
		"symbol":     {symbol},
		"side":       {string(side)},
		"type":       {string(model.OrderTypeStopMarket)},
		"quantity":   {qty.String()},
		"stopPrice":  {stopPrice.String()},
		"reduceOnly": {"true"},
	})
	if err != nil {
		return model.Order{}, fmt.Errorf("stop order %s %s: %w", side, symbol, err)
	}
	return o, nil
}

// CreateTakeProfitOrder places a reduce-only take-profit trigger.
func (c *BinanceFuturesClient) CreateTakeProfitOrder(ctx context.Context, symbol string, side model.OrderSide, qty, stopPrice decimal.Decimal) (model.Order, error) {
	o, err := c.createOrder(ctx, url.Values{
		"symbol":     {symbol},
		"side":       {string(side)},
		"type":       {string(model.OrderTypeTakeProfitMarket)},
		"quantity":   {qty.String()},
		"stopPrice":  {stopPrice.String()},
		"reduceOnly": {"true"},
	})
	if err != nil {
		return model.Order{}, fmt.Errorf("take profit order %s %s: %w", side, symbol, err)
	}
	return o, nil
}

func (c *BinanceFuturesClient) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	params := url.Values{
		"symbol":  {symbol},
		"orderId": {strconv.FormatInt(orderID, 10)},
	}
	if err := c.doSigned(ctx, "DELETE", "/fapi/v1/order", params, nil); err != nil {
		return fmt.Errorf("cancel order %d for %s: %w", orderID, symbol, err)
	}
	return nil
}

func (c *BinanceFuturesClient) CancelAllOrders(ctx context.Context, symbol string) error {
	params := url.Values{"symbol": {symbol}}
	if err := c.doSigned(ctx, "DELETE", "/fapi/v1/allOpenOrders", params, nil); err != nil {
		return fmt.Errorf("cancel all orders for %s: %w", symbol, err)
	}
	return nil
}

// ClosePosition sends a reduce-only market order in the opposite direction
// for the full position size.
func (c *BinanceFuturesClient) ClosePosition(ctx context.Context, position model.Position) (model.Order, error) {
	logger.WithFields(logger.Fields{
		"symbol": position.Symbol,
		"side":   position.Side,
		"qty":    position.Quantity,
	}).Info("Closing position at market")

	o, err := c.createOrder(ctx, url.Values{
		"symbol":     {position.Symbol},
		"side":       {string(position.CloseSide())},
		"type":       {string(model.OrderTypeMarket)},
		"quantity":   {position.Quantity.String()},
		"reduceOnly": {"true"},
	})
	if err != nil {
		return model.Order{}, fmt.Errorf("close position %s: %w", position.Symbol, err)
	}
	return o, nil
}

// -----------------------------
// G) LEVERAGE & MARGIN
// -----------------------------
func (c *BinanceFuturesClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	params := url.Values{
		"symbol":   {symbol},
		"leverage": {strconv.Itoa(leverage)},
	}
	if err := c.doSigned(ctx, "POST", "/fapi/v1/leverage", params, nil); err != nil {
		return fmt.Errorf("set leverage %dx for %s: %w", leverage, symbol, err)
	}
	return nil
}

// SetMarginMode switches between ISOLATED and CROSSED. The exchange rejects
// a no-op switch with code -4046, which is not an error here.
func (c *BinanceFuturesClient) SetMarginMode(ctx context.Context, symbol, mode string) error {
	params := url.Values{
		"symbol":     {symbol},
		"marginType": {mode},
	}
	err := c.doSigned(ctx, "POST", "/fapi/v1/marginType", params, nil)
	if err != nil {
		var rej *RejectionError
		if errors.As(err, &rej) && rej.Code == -4046 {
			return nil
		}
		return fmt.Errorf("set margin mode %s for %s: %w", mode, symbol, err)
	}
	return nil
}

// -----------------------------
// PARSING HELPERS
// -----------------------------
func parseOrder(e orderResponse) (model.Order, error) {
	if e.OrderID == 0 || e.Symbol == "" || e.Status == "" {
		return model.Order{}, fmt.Errorf("order response missing required fields: id=%d symbol=%q status=%q", e.OrderID, e.Symbol, e.Status)
	}

	o := model.Order{
		ID:         e.OrderID,
		ClientID:   e.ClientOrderID,
		Symbol:     e.Symbol,
		Side:       model.OrderSide(e.Side),
		Type:       model.OrderType(e.Type),
		Status:     model.OrderStatus(e.Status),
		ReduceOnly: e.ReduceOnly,
		UpdatedAt:  time.UnixMilli(e.UpdateTime),
	}

	var err error
	if o.Quantity, err = parseDecimalField(e.OrigQty); err != nil {
		return model.Order{}, fmt.Errorf("parse order %d quantity: %w", e.OrderID, err)
	}
	if o.ExecutedQty, err = parseDecimalField(e.ExecutedQty); err != nil {
		return model.Order{}, fmt.Errorf("parse order %d executed quantity: %w", e.OrderID, err)
	}
	if o.AvgPrice, err = parseDecimalField(e.AvgPrice); err != nil {
		return model.Order{}, fmt.Errorf("parse order %d average price: %w", e.OrderID, err)
	}
	if o.Price, err = parseDecimalField(e.Price); err != nil {
		return model.Order{}, fmt.Errorf("parse order %d price: %w", e.OrderID, err)
	}
	if o.StopPrice, err = parseDecimalField(e.StopPrice); err != nil {
		return model.Order{}, fmt.Errorf("parse order %d stop price: %w", e.OrderID, err)
	}
	return o, nil
}

func parseDecimalField(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

