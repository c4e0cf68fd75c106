package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/model"
)

type fakeSubmitter struct {
	mu      sync.Mutex
	intents []model.Intent
}

func (f *fakeSubmitter) SubmitIntent(ctx context.Context, intent model.Intent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, intent)
	return nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.intents)
}

func stateWithSnapshot(symbol string, snapshot model.StrategySnapshot) events.Event {
	return events.Event{Type: events.EventStateUpdate, Data: map[string]interface{}{
		"state": model.StrategyState{Symbol: symbol, Snapshot: snapshot},
	}}
}

func TestCloserToSMA200FiresWithinThreshold(t *testing.T) {
	bus := events.NewBus()
	triggered := make(chan events.Event, 1)
	bus.Subscribe(events.EventWatchTriggered, func(ev events.Event) { triggered <- ev })

	m := New(nil, &fakeSubmitter{}, bus, zerolog.Nop())
	rule := m.Create(context.Background(), model.WatchRule{
		Symbol: "BTCUSDT", TriggerType: model.TriggerCloserToSMA200, ThresholdPct: 1, Mode: model.WatchNotifyOnly,
	})

	m.OnStateUpdate(stateWithSnapshot("BTCUSDT", model.StrategySnapshot{SMA200: model.MASnapshot{DistancePct: 0.5}}))

	select {
	case <-triggered:
	case <-time.After(time.Second):
		t.Fatal("expected watchTriggered event")
	}

	got, _ := m.Get(rule.ID)
	if got.Status != model.WatchTriggered {
		t.Errorf("expected TRIGGERED status, got %v", got.Status)
	}
}

func TestCloserToSMA200DoesNotFireBeyondThreshold(t *testing.T) {
	m := New(nil, &fakeSubmitter{}, events.NewBus(), zerolog.Nop())
	rule := m.Create(context.Background(), model.WatchRule{
		Symbol: "BTCUSDT", TriggerType: model.TriggerCloserToSMA200, ThresholdPct: 1, Mode: model.WatchNotifyOnly,
	})

	m.OnStateUpdate(stateWithSnapshot("BTCUSDT", model.StrategySnapshot{SMA200: model.MASnapshot{DistancePct: 5}}))

	got, _ := m.Get(rule.ID)
	if got.Status != model.WatchActive {
		t.Errorf("expected watch to remain ACTIVE, got %v", got.Status)
	}
}

func TestPriceAboveStrictCompare(t *testing.T) {
	m := New(nil, &fakeSubmitter{}, events.NewBus(), zerolog.Nop())
	target := 100000.0
	rule := m.Create(context.Background(), model.WatchRule{
		Symbol: "BTCUSDT", TriggerType: model.TriggerPriceAbove, TargetPrice: &target, Mode: model.WatchNotifyOnly,
	})

	m.OnStateUpdate(stateWithSnapshot("BTCUSDT", model.StrategySnapshot{LastPrice: 100000}))
	got, _ := m.Get(rule.ID)
	if got.Status != model.WatchActive {
		t.Error("expected equal price to not satisfy strict PRICE_ABOVE")
	}

	m.OnStateUpdate(stateWithSnapshot("BTCUSDT", model.StrategySnapshot{LastPrice: 100001}))
	got, _ = m.Get(rule.ID)
	if got.Status != model.WatchTriggered {
		t.Error("expected price strictly above target to trigger")
	}
}

func TestAutoEnterSubmitsIntentOnTrigger(t *testing.T) {
	submitter := &fakeSubmitter{}
	m := New(nil, submitter, events.NewBus(), zerolog.Nop())
	m.Create(context.Background(), model.WatchRule{
		Symbol: "BTCUSDT", IntendedSide: model.SideShort, TriggerType: model.TriggerCloserToEMA1000,
		ThresholdPct: 0.5, Mode: model.WatchAutoEnter,
		Preset: model.WatchPreset{RiskPercent: 1, SLRule: model.SLRuleSwing, TrailMode: model.TrailModeSupertrend},
	})

	m.OnStateUpdate(stateWithSnapshot("BTCUSDT", model.StrategySnapshot{EMA1000: model.MASnapshot{DistancePct: 0.1}}))

	deadline := time.After(time.Second)
	for submitter.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected an auto-enter intent to be submitted")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestNotifyOnlyDoesNotSubmitIntent(t *testing.T) {
	submitter := &fakeSubmitter{}
	m := New(nil, submitter, events.NewBus(), zerolog.Nop())
	m.Create(context.Background(), model.WatchRule{
		Symbol: "BTCUSDT", TriggerType: model.TriggerCloserToEMA1000, ThresholdPct: 0.5, Mode: model.WatchNotifyOnly,
	})

	m.OnStateUpdate(stateWithSnapshot("BTCUSDT", model.StrategySnapshot{EMA1000: model.MASnapshot{DistancePct: 0.1}}))
	time.Sleep(30 * time.Millisecond)
	if submitter.count() != 0 {
		t.Error("expected no intent submission for a NOTIFY_ONLY watch")
	}
}

func TestExpireDueExpiresPastDeadline(t *testing.T) {
	bus := events.NewBus()
	expired := make(chan events.Event, 1)
	bus.Subscribe(events.EventWatchExpired, func(ev events.Event) { expired <- ev })

	m := New(nil, &fakeSubmitter{}, bus, zerolog.Nop())
	rule := m.Create(context.Background(), model.WatchRule{
		Symbol: "BTCUSDT", TriggerType: model.TriggerPriceAbove, ExpiryTime: time.Now().Add(-time.Minute),
	})

	m.ExpireDue(context.Background())

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("expected watchExpired event")
	}

	got, _ := m.Get(rule.ID)
	if got.Status != model.WatchExpired {
		t.Errorf("expected EXPIRED status, got %v", got.Status)
	}
}

func TestCleanupDropsOldTerminalWatches(t *testing.T) {
	m := New(nil, &fakeSubmitter{}, events.NewBus(), zerolog.Nop())
	m.retention = 10 * time.Millisecond
	rule := m.Create(context.Background(), model.WatchRule{Symbol: "BTCUSDT", TriggerType: model.TriggerPriceAbove})
	m.Cancel(context.Background(), rule.ID)

	time.Sleep(30 * time.Millisecond)
	m.Cleanup()

	if _, ok := m.Get(rule.ID); ok {
		t.Error("expected an old cancelled watch to be dropped by Cleanup")
	}
}

func TestCleanupKeepsActiveWatchesRegardlessOfAge(t *testing.T) {
	m := New(nil, &fakeSubmitter{}, events.NewBus(), zerolog.Nop())
	m.retention = 10 * time.Millisecond
	rule := m.Create(context.Background(), model.WatchRule{Symbol: "BTCUSDT", TriggerType: model.TriggerPriceAbove})

	time.Sleep(30 * time.Millisecond)
	m.Cleanup()

	if _, ok := m.Get(rule.ID); !ok {
		t.Error("expected an active watch to survive Cleanup regardless of age")
	}
}
