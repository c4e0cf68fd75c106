// Package exchange defines the boundary between the strategy core and a
// derivatives exchange: REST order/market-data operations plus the
// private stream of account events.
package exchange

import (
	"context"

	"strategybot/internal/model"
)

// Client is the REST surface the strategy core consumes. Timeframes
// follow the exchange's integer-minutes convention (1, 3, 5, 15, 30,
// 60, 120, 240, 360, 720) plus "D"/"W".
type Client interface {
	GetKlines(ctx context.Context, symbol, timeframe string, limit int, start, end int64) ([]model.Candle, error)

	PlaceMarketOrder(ctx context.Context, req OrderRequest) (*OrderAck, error)
	PlaceLimitOrder(ctx context.Context, req OrderRequest) (*OrderAck, error)
	CancelOrder(ctx context.Context, symbol, orderLinkID string) error
	CancelAllOrders(ctx context.Context, symbol string) error

	GetPosition(ctx context.Context, symbol string) (*model.TrackedPosition, error)
	GetAllPositions(ctx context.Context) ([]model.TrackedPosition, error)

	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

// OrderRequest is the exchange-agnostic order placement request. Stop
// loss/take profit are optional and, when present, are submitted
// atomically with the entry order so exit brackets never race the fill.
type OrderRequest struct {
	Symbol      string
	Side        model.Side
	Size        float64
	Price       *float64 // nil for market orders
	ReduceOnly  bool
	StopLoss    *float64
	TakeProfit  *float64
	OrderLinkID string // caller-supplied idempotency key
}

// OrderAck is the exchange's synchronous response to order placement.
type OrderAck struct {
	ExchangeOrderID string
	OrderLinkID     string
	Status          string
}

// StreamEvent is one frame off the private stream, carrying a topic
// discriminator and its raw data payload.
type StreamTopic string

const (
	TopicOrder     StreamTopic = "order"
	TopicExecution StreamTopic = "execution"
	TopicPosition  StreamTopic = "position"
	TopicWallet    StreamTopic = "wallet"
)

type StreamEvent struct {
	Topic StreamTopic
	Data  []map[string]interface{}
}

// KlineEvent is one frame off the public kline stream for a subscribed
// symbol/timeframe.
type KlineEvent struct {
	Symbol    string
	Timeframe string
	Candle    model.Candle
	Closed    bool
}

// Stream is the private account stream: order, execution, position and
// wallet updates delivered as they occur.
type Stream interface {
	Connect(ctx context.Context) error
	Events() <-chan StreamEvent
	Close() error
}

// KlineStream is the public market-data stream used to keep in-progress
// candles current between closes.
type KlineStream interface {
	Connect(ctx context.Context) error
	Subscribe(symbol, timeframe string) error
	Unsubscribe(symbol, timeframe string) error
	Events() <-chan KlineEvent
	Close() error
}
