package position

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/exchange"
)

func openFrame(symbol, side, size, avgPrice string) exchange.StreamEvent {
	return exchange.StreamEvent{
		Topic: exchange.TopicPosition,
		Data: []map[string]interface{}{
			{
				"symbol":   symbol,
				"side":     side,
				"size":     size,
				"avgPrice": avgPrice,
			},
		},
	}
}

func TestOnStreamEventOpensPositionAndEmitsPositionOpened(t *testing.T) {
	bus := events.NewBus()
	opened := make(chan events.Event, 1)
	bus.Subscribe(events.EventPositionOpened, func(ev events.Event) { opened <- ev })

	tr := New(nil, bus, zerolog.Nop())
	tr.OnStreamEvent(context.Background(), openFrame("BTCUSDT", "Buy", "1.5", "100000"))

	select {
	case <-opened:
	case <-time.After(time.Second):
		t.Fatal("expected positionOpened event")
	}

	pos, ok := tr.Get("BTCUSDT")
	if !ok {
		t.Fatal("expected tracked position for BTCUSDT")
	}
	if pos.Size != 1.5 || pos.AvgPrice != 100000 {
		t.Errorf("unexpected position snapshot: %+v", pos)
	}
}

func TestOnStreamEventUpdateEmitsPnLUpdate(t *testing.T) {
	bus := events.NewBus()
	updated := make(chan events.Event, 1)
	bus.Subscribe(events.EventPnLUpdate, func(ev events.Event) { updated <- ev })

	tr := New(nil, bus, zerolog.Nop())
	tr.OnStreamEvent(context.Background(), openFrame("BTCUSDT", "Buy", "1.5", "100000"))
	tr.OnStreamEvent(context.Background(), openFrame("BTCUSDT", "Buy", "1.5", "101000"))

	select {
	case <-updated:
	case <-time.After(time.Second):
		t.Fatal("expected pnlUpdate event on the second frame for an already-open position")
	}
}

func TestOnStreamEventZeroSizeClosesPositionAndEmitsPositionClosed(t *testing.T) {
	bus := events.NewBus()
	closed := make(chan events.Event, 1)
	bus.Subscribe(events.EventPositionClosed, func(ev events.Event) { closed <- ev })

	tr := New(nil, bus, zerolog.Nop())
	tr.OnStreamEvent(context.Background(), openFrame("BTCUSDT", "Buy", "1.5", "100000"))
	tr.OnStreamEvent(context.Background(), openFrame("BTCUSDT", "Buy", "0", "0"))

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("expected positionClosed event once size drops to zero")
	}

	if _, ok := tr.Get("BTCUSDT"); ok {
		t.Error("expected position to be removed after closing")
	}
}

func TestOnStreamEventIgnoresNonPositionTopics(t *testing.T) {
	bus := events.NewBus()
	tr := New(nil, bus, zerolog.Nop())
	tr.OnStreamEvent(context.Background(), exchange.StreamEvent{Topic: exchange.TopicOrder, Data: []map[string]interface{}{{"symbol": "BTCUSDT"}}})

	if _, ok := tr.Get("BTCUSDT"); ok {
		t.Error("expected non-position topic frames to be ignored")
	}
}

func TestSetStopLossUpdatesTrackedPosition(t *testing.T) {
	tr := New(nil, events.NewBus(), zerolog.Nop())
	tr.OnStreamEvent(context.Background(), openFrame("BTCUSDT", "Buy", "1.5", "100000"))

	sl := 95000.0
	tr.SetStopLoss("BTCUSDT", &sl)

	pos, _ := tr.Get("BTCUSDT")
	if pos.StopLoss == nil || *pos.StopLoss != 95000 {
		t.Errorf("expected StopLoss to be set to 95000, got %+v", pos.StopLoss)
	}
}
