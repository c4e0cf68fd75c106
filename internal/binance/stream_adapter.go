package binance

import (
	"context"
	"sync"

	"strategybot/internal/exchange"
)

// UserDataStreamAdapter adapts UserDataStream's callback-based API into
// the channel-based exchange.Stream contract the position tracker and
// order manager consume.
type UserDataStreamAdapter struct {
	stream *UserDataStream
	events chan exchange.StreamEvent

	mu     sync.Mutex
	closed bool
}

// NewUserDataStreamAdapter wraps stream, registering this adapter's
// handlers as its account/order update callbacks.
func NewUserDataStreamAdapter(stream *UserDataStream) *UserDataStreamAdapter {
	a := &UserDataStreamAdapter{
		stream: stream,
		events: make(chan exchange.StreamEvent, 256),
	}
	stream.SetAccountUpdateCallback(a.onAccountUpdate)
	stream.SetOrderUpdateCallback(a.onOrderUpdate)
	return a
}

var _ exchange.Stream = (*UserDataStreamAdapter)(nil)

// Connect starts the listen-key session and its websocket read loop.
func (a *UserDataStreamAdapter) Connect(ctx context.Context) error {
	return a.stream.Start()
}

// Events returns the channel fed by the underlying stream's callbacks.
func (a *UserDataStreamAdapter) Events() <-chan exchange.StreamEvent {
	return a.events
}

// Close stops the underlying stream and closes the event channel. Safe
// to call more than once.
func (a *UserDataStreamAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.stream.Stop()
	close(a.events)
	return nil
}

// emit drops a frame rather than blocking the stream's read loop if the
// consumer falls behind; the channel is generously buffered for the
// account-update volume a single-account bot sees.
func (a *UserDataStreamAdapter) emit(ev exchange.StreamEvent) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return
	}
	select {
	case a.events <- ev:
	default:
	}
}

func (a *UserDataStreamAdapter) onAccountUpdate(ev *AccountUpdateEvent) {
	if len(ev.AccountUpdate.Balances) > 0 {
		wallet := make([]map[string]interface{}, 0, len(ev.AccountUpdate.Balances))
		for _, b := range ev.AccountUpdate.Balances {
			wallet = append(wallet, map[string]interface{}{
				"asset":              b.Asset,
				"walletBalance":      b.WalletBalance,
				"crossWalletBalance": b.CrossWalletBalance,
			})
		}
		a.emit(exchange.StreamEvent{Topic: exchange.TopicWallet, Data: wallet})
	}

	if len(ev.AccountUpdate.Positions) > 0 {
		positions := make([]map[string]interface{}, 0, len(ev.AccountUpdate.Positions))
		for _, p := range ev.AccountUpdate.Positions {
			side := "Buy"
			size := p.PositionAmount
			if size < 0 {
				side = "Sell"
				size = -size
			}
			positions = append(positions, map[string]interface{}{
				"symbol":         p.Symbol,
				"side":           side,
				"size":           size,
				"avgPrice":       p.EntryPrice,
				"unrealisedPnl":  p.UnrealizedPnL,
				"cumRealisedPnl": p.AccumulatedPnL,
			})
		}
		a.emit(exchange.StreamEvent{Topic: exchange.TopicPosition, Data: positions})
	}
}

func (a *UserDataStreamAdapter) onOrderUpdate(ev *OrderUpdateEvent) {
	o := ev.Order
	data := []map[string]interface{}{{
		"symbol":          o.Symbol,
		"clientOrderId":   o.ClientOrderId,
		"orderId":         o.OrderId,
		"side":            o.Side,
		"status":          o.OrderStatus,
		"execType":        o.ExecutionType,
		"avgPrice":        o.AveragePrice,
		"cumQty":          o.CumulativeFilledQty,
		"lastFilledQty":   o.LastFilledQty,
		"lastFilledPrice": o.LastFilledPrice,
		"realizedPnl":     o.RealizedProfit,
	}}

	topic := exchange.TopicOrder
	if o.ExecutionType == "TRADE" {
		topic = exchange.TopicExecution
	}
	a.emit(exchange.StreamEvent{Topic: topic, Data: data})
}
