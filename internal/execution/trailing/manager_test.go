package trailing

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/model"
)

type fakeAdvancer struct {
	mu        sync.Mutex
	lastCall  string
	candidate float64
	accept    bool
}

func (f *fakeAdvancer) Advance(symbol string, candidate float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCall = symbol
	f.candidate = candidate
	return f.accept
}

func stateUpdate(state model.StrategyState) events.Event {
	return events.Event{Type: events.EventStateUpdate, Data: map[string]interface{}{"state": state}}
}

func TestOnStateUpdateSupertrendModeUsesSupertrendValue(t *testing.T) {
	adv := &fakeAdvancer{accept: true}
	m := New(adv, zerolog.Nop())
	m.Activate("BTCUSDT", model.SideLong, model.TrailModeSupertrend)

	m.OnStateUpdate(stateUpdate(model.StrategyState{
		Symbol: "BTCUSDT",
		Snapshot: model.StrategySnapshot{
			Supertrend: model.SupertrendSnapshot{Value: 97000, Direction: model.BiasLong},
		},
	}))

	if adv.lastCall != "BTCUSDT" || adv.candidate != 97000 {
		t.Errorf("expected Advance(BTCUSDT, 97000), got (%s, %v)", adv.lastCall, adv.candidate)
	}
}

func TestOnStateUpdateSupertrendNeutralSkipsAdvance(t *testing.T) {
	adv := &fakeAdvancer{accept: true}
	m := New(adv, zerolog.Nop())
	m.Activate("BTCUSDT", model.SideLong, model.TrailModeSupertrend)

	m.OnStateUpdate(stateUpdate(model.StrategyState{
		Symbol:   "BTCUSDT",
		Snapshot: model.StrategySnapshot{Supertrend: model.SupertrendSnapshot{Direction: model.BiasNeutral}},
	}))

	if adv.lastCall != "" {
		t.Error("expected no Advance call for a neutral supertrend direction")
	}
}

func TestOnStateUpdateStructureModeUsesProtectedSwingLowForLong(t *testing.T) {
	adv := &fakeAdvancer{accept: true}
	m := New(adv, zerolog.Nop())
	m.Activate("BTCUSDT", model.SideLong, model.TrailModeStructure)

	low := 94500.0
	m.OnStateUpdate(stateUpdate(model.StrategyState{
		Symbol:    "BTCUSDT",
		KeyLevels: model.KeyLevels{ProtectedSwingLow: &low},
	}))

	if adv.candidate != 94500 {
		t.Errorf("expected candidate 94500, got %v", adv.candidate)
	}
}

func TestOnStateUpdateStructureModeUsesProtectedSwingHighForShort(t *testing.T) {
	adv := &fakeAdvancer{accept: true}
	m := New(adv, zerolog.Nop())
	m.Activate("ETHUSDT", model.SideShort, model.TrailModeStructure)

	high := 3100.0
	m.OnStateUpdate(stateUpdate(model.StrategyState{
		Symbol:    "ETHUSDT",
		KeyLevels: model.KeyLevels{ProtectedSwingHigh: &high},
	}))

	if adv.candidate != 3100 {
		t.Errorf("expected candidate 3100, got %v", adv.candidate)
	}
}

func TestOnStateUpdateNoneModeNeverAdvances(t *testing.T) {
	adv := &fakeAdvancer{accept: true}
	m := New(adv, zerolog.Nop())
	m.Activate("BTCUSDT", model.SideLong, model.TrailModeNone)

	m.OnStateUpdate(stateUpdate(model.StrategyState{
		Symbol:   "BTCUSDT",
		Snapshot: model.StrategySnapshot{Supertrend: model.SupertrendSnapshot{Value: 97000, Direction: model.BiasLong}},
	}))

	if adv.lastCall != "" {
		t.Error("expected no Advance call for TrailModeNone")
	}
}

func TestOnStateUpdateIgnoresInactiveSymbol(t *testing.T) {
	adv := &fakeAdvancer{accept: true}
	m := New(adv, zerolog.Nop())

	m.OnStateUpdate(stateUpdate(model.StrategyState{Symbol: "BTCUSDT"}))
	if adv.lastCall != "" {
		t.Error("expected no Advance call for a symbol never activated")
	}
}

func TestDeactivateStopsFutureAdvances(t *testing.T) {
	adv := &fakeAdvancer{accept: true}
	m := New(adv, zerolog.Nop())
	m.Activate("BTCUSDT", model.SideLong, model.TrailModeSupertrend)
	m.Deactivate("BTCUSDT")

	m.OnStateUpdate(stateUpdate(model.StrategyState{
		Symbol:   "BTCUSDT",
		Snapshot: model.StrategySnapshot{Supertrend: model.SupertrendSnapshot{Value: 97000, Direction: model.BiasLong}},
	}))

	if adv.lastCall != "" {
		t.Error("expected no Advance call after deactivating")
	}
}
