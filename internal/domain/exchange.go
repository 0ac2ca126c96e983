package domain

import "context"

type Candle struct {
	Time   int64   `json:"time"` // open time, unix ms
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type Ticker struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
}

type Balance struct {
	USDT float64 `json:"USDT"`
}

type OrderSide string

const (
	OrderBuy  OrderSide = "buy"
	OrderSell OrderSide = "sell"
)

type OrderType string

const (
	OrderLimit  OrderType = "limit"
	OrderMarket OrderType = "market"
)

// OrderRequest mirrors the proxy's createOrder(symbol, side, type, amount, price, flags).
type OrderRequest struct {
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Type       OrderType `json:"type"`
	Amount     float64   `json:"amount"`
	Price      float64   `json:"price"`
	ReduceOnly bool      `json:"reduceOnly"`
	PostOnly   bool      `json:"-"`
}

type PlacedOrder struct {
	ID string `json:"id"`
}

// ExchangeProxy is the signed request/response surface the engine needs from an exchange.
type ExchangeProxy interface {
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)
	GetBalance(ctx context.Context, accountTypes []string) (*Balance, error)
	GetOHLCV(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	CreateOrder(ctx context.Context, req *OrderRequest) (*PlacedOrder, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// ExchangeConnector binds a bot and its credentials to an ExchangeProxy session.
type ExchangeConnector interface {
	Connect(bot *Bot, creds *Credentials) (ExchangeProxy, error)
}
