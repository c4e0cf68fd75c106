package invalidation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/model"
)

type fakeExiter struct {
	mu      sync.Mutex
	calls   int
	failN   int // first N calls fail
	succeed bool
}

func (f *fakeExiter) MarketExit(ctx context.Context, symbol string, side model.Side) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failN {
		return errors.New("exchange refused")
	}
	return nil
}

func (f *fakeExiter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func stateWithProtectedLow(symbol string, price, low float64) events.Event {
	return events.Event{Type: events.EventStateUpdate, Data: map[string]interface{}{
		"state": model.StrategyState{
			Symbol:    symbol,
			Snapshot:  model.StrategySnapshot{LastPrice: price},
			KeyLevels: model.KeyLevels{ProtectedSwingLow: &low},
		},
	}}
}

func newTestManager(exiter Exiter) *Manager {
	m := New(exiter, events.NewBus(), zerolog.Nop())
	m.retryDelay = 10 * time.Millisecond
	return m
}

func TestOnStateUpdateTriggersHardExitOnLongBreak(t *testing.T) {
	exiter := &fakeExiter{}
	m := newTestManager(exiter)
	broke := make(chan events.Event, 1)
	m.bus.Subscribe(events.EventSwingBreak, func(ev events.Event) { broke <- ev })
	m.Track("BTCUSDT", model.SideLong)

	m.OnStateUpdate(stateWithProtectedLow("BTCUSDT", 94000, 95000))

	select {
	case <-broke:
	case <-time.After(time.Second):
		t.Fatal("expected swingBreak event")
	}

	deadline := time.After(time.Second)
	for exiter.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected a market exit call")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestOnStateUpdateNoTriggerWhenPriceAboveProtectedLow(t *testing.T) {
	exiter := &fakeExiter{}
	m := newTestManager(exiter)
	m.Track("BTCUSDT", model.SideLong)

	m.OnStateUpdate(stateWithProtectedLow("BTCUSDT", 96000, 95000))

	time.Sleep(30 * time.Millisecond)
	if exiter.count() != 0 {
		t.Error("expected no exit call while price remains above the protected swing low")
	}
}

func TestHardExitRetriesOnceThenSucceeds(t *testing.T) {
	exiter := &fakeExiter{failN: 1}
	m := newTestManager(exiter)
	m.Track("BTCUSDT", model.SideLong)

	m.OnStateUpdate(stateWithProtectedLow("BTCUSDT", 94000, 95000))

	deadline := time.After(time.Second)
	for exiter.count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected 2 exit attempts, got %d", exiter.count())
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if _, tracked := m.open["BTCUSDT"]; tracked {
		t.Error("expected symbol to be untracked after a successful retry")
	}
}

func TestHardExitEmitsCriticalAfterTwoFailures(t *testing.T) {
	exiter := &fakeExiter{failN: 100}
	m := newTestManager(exiter)
	critical := make(chan events.Event, 1)
	m.bus.Subscribe(events.EventInvalidationCritical, func(ev events.Event) { critical <- ev })
	m.Track("BTCUSDT", model.SideLong)

	m.OnStateUpdate(stateWithProtectedLow("BTCUSDT", 94000, 95000))

	select {
	case <-critical:
	case <-time.After(time.Second):
		t.Fatal("expected invalidationCritical event after two failed exit attempts")
	}
	if exiter.count() != 2 {
		t.Errorf("expected exactly 2 exit attempts, got %d", exiter.count())
	}
}

func TestOnStateUpdateIgnoresUntrackedSymbol(t *testing.T) {
	exiter := &fakeExiter{}
	m := newTestManager(exiter)

	m.OnStateUpdate(stateWithProtectedLow("BTCUSDT", 94000, 95000))
	time.Sleep(20 * time.Millisecond)
	if exiter.count() != 0 {
		t.Error("expected no exit call for an untracked symbol")
	}
}
