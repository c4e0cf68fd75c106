package stoploss

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/model"
)

type fakeExiter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeExiter) MarketExit(ctx context.Context, symbol string, side model.Side) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *fakeExiter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func stateAt(symbol string, price float64) events.Event {
	return events.Event{Type: events.EventStateUpdate, Data: map[string]interface{}{
		"state": model.StrategyState{Symbol: symbol, Snapshot: model.StrategySnapshot{LastPrice: price}},
	}}
}

func TestComputeEmergencySLLongIsBelowEntry(t *testing.T) {
	sl := ComputeEmergencySL(100000, model.SideLong, 4)
	if sl != 96000 {
		t.Errorf("expected 96000, got %v", sl)
	}
}

func TestComputeEmergencySLShortIsAboveEntry(t *testing.T) {
	sl := ComputeEmergencySL(100000, model.SideShort, 4)
	if sl != 104000 {
		t.Errorf("expected 104000, got %v", sl)
	}
}

func TestOnStateUpdateTriggersExitForLongBelowStrategicSL(t *testing.T) {
	bus := events.NewBus()
	triggered := make(chan events.Event, 1)
	bus.Subscribe(events.EventStrategicSLTriggered, func(ev events.Event) { triggered <- ev })

	exiter := &fakeExiter{}
	m := New(exiter, bus, zerolog.Nop())
	m.Arm("trade-1", "BTCUSDT", model.SideLong, 95000)

	m.OnStateUpdate(stateAt("BTCUSDT", 94000))

	select {
	case <-triggered:
	case <-time.After(time.Second):
		t.Fatal("expected strategicSlTriggered event")
	}
	if exiter.count() != 1 {
		t.Errorf("expected one market exit call, got %d", exiter.count())
	}
	if _, ok := m.Current("BTCUSDT"); ok {
		t.Error("expected symbol to be disarmed after a successful exit")
	}
}

func TestOnStateUpdateDoesNotTriggerAboveStrategicSLForLong(t *testing.T) {
	bus := events.NewBus()
	exiter := &fakeExiter{}
	m := New(exiter, bus, zerolog.Nop())
	m.Arm("trade-1", "BTCUSDT", model.SideLong, 95000)

	m.OnStateUpdate(stateAt("BTCUSDT", 96000))

	time.Sleep(50 * time.Millisecond)
	if exiter.count() != 0 {
		t.Errorf("expected no exit call while price remains above strategic SL, got %d", exiter.count())
	}
}

func TestOnStateUpdateIgnoresUnarmedSymbol(t *testing.T) {
	bus := events.NewBus()
	exiter := &fakeExiter{}
	m := New(exiter, bus, zerolog.Nop())

	m.OnStateUpdate(stateAt("ETHUSDT", 1))
	time.Sleep(20 * time.Millisecond)
	if exiter.count() != 0 {
		t.Error("expected no exit call for an unarmed symbol")
	}
}

func TestAdvanceOnlyMovesTighterForLong(t *testing.T) {
	bus := events.NewBus()
	m := New(&fakeExiter{}, bus, zerolog.Nop())
	m.Arm("trade-1", "BTCUSDT", model.SideLong, 95000)

	if !m.Advance("BTCUSDT", 97000) {
		t.Error("expected advance to a higher SL to succeed for LONG")
	}
	a, _ := m.Current("BTCUSDT")
	if a.StrategicSL != 97000 {
		t.Errorf("expected strategic SL 97000, got %v", a.StrategicSL)
	}

	if m.Advance("BTCUSDT", 96000) {
		t.Error("expected advance to a lower SL to be rejected for LONG (never loosens)")
	}
	a, _ = m.Current("BTCUSDT")
	if a.StrategicSL != 97000 {
		t.Errorf("expected strategic SL to remain 97000, got %v", a.StrategicSL)
	}
}

func TestAdvanceOnlyMovesTighterForShort(t *testing.T) {
	bus := events.NewBus()
	m := New(&fakeExiter{}, bus, zerolog.Nop())
	m.Arm("trade-1", "ETHUSDT", model.SideShort, 3000)

	if !m.Advance("ETHUSDT", 2900) {
		t.Error("expected advance to a lower SL to succeed for SHORT")
	}
	if m.Advance("ETHUSDT", 2950) {
		t.Error("expected advance to a higher SL to be rejected for SHORT")
	}
}

func TestSetStrategicSLOverridesRegardlessOfDirection(t *testing.T) {
	bus := events.NewBus()
	m := New(&fakeExiter{}, bus, zerolog.Nop())
	m.Arm("trade-1", "BTCUSDT", model.SideLong, 95000)

	if !m.SetStrategicSL("BTCUSDT", 90000) {
		t.Fatal("expected SetStrategicSL to succeed for an armed symbol")
	}
	a, _ := m.Current("BTCUSDT")
	if a.StrategicSL != 90000 {
		t.Errorf("expected override to 90000 even though it loosens the stop, got %v", a.StrategicSL)
	}
}

func TestDisarmStopsFutureTriggers(t *testing.T) {
	bus := events.NewBus()
	exiter := &fakeExiter{}
	m := New(exiter, bus, zerolog.Nop())
	m.Arm("trade-1", "BTCUSDT", model.SideLong, 95000)
	m.Disarm("BTCUSDT")

	m.OnStateUpdate(stateAt("BTCUSDT", 90000))
	time.Sleep(20 * time.Millisecond)
	if exiter.count() != 0 {
		t.Error("expected no exit call after disarming")
	}
}
