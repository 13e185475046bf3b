package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

type OrderType string

const (
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
	OrderTypeStop             OrderType = "STOP"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
	OrderTypeTakeProfit       OrderType = "TAKE_PROFIT"
)

type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// Order is the typed view of an exchange order. The gateway validates the
// required fields at the boundary instead of passing raw maps upward.
type Order struct {
	ID          int64           `json:"id"`
	ClientID    string          `json:"client_id"`
	Symbol      string          `json:"symbol"`
	Side        OrderSide       `json:"side"`
	Type        OrderType       `json:"type"`
	Status      OrderStatus     `json:"status"`
	Quantity    decimal.Decimal `json:"quantity"`
	ExecutedQty decimal.Decimal `json:"executed_qty"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	Price       decimal.Decimal `json:"price"`
	StopPrice   decimal.Decimal `json:"stop_price"`
	ReduceOnly  bool            `json:"reduce_only"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsStop reports whether the order is a protective stop-loss type.
func (o Order) IsStop() bool {
	switch o.Type {
	case OrderTypeStopMarket, OrderTypeStop:
		return true
	}
	return false
}

// IsTakeProfit reports whether the order is a take-profit type.
func (o Order) IsTakeProfit() bool {
	switch o.Type {
	case OrderTypeTakeProfitMarket, OrderTypeTakeProfit:
		return true
	}
	return false
}

func (o Order) IsClosed() bool {
	switch o.Status {
	case OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}
