package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/model"
	"strategybot/internal/statemachine"
)

type fakeStateMachine struct {
	mu      sync.Mutex
	canGate bool
	reason  statemachine.GateReason
	entered []string
	exited  []string
	stopped []string
	started []string
	paused  bool
}

func (f *fakeStateMachine) CanEnter(symbol string, side model.Side) (bool, statemachine.GateReason) {
	return f.canGate, f.reason
}
func (f *fakeStateMachine) Enter(symbol string, side model.Side) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entered = append(f.entered, symbol)
	return true
}
func (f *fakeStateMachine) StartExit(symbol string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, symbol)
	return true
}
func (f *fakeStateMachine) ExitClean(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exited = append(f.exited, symbol)
}
func (f *fakeStateMachine) ExitStopped(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, symbol)
}
func (f *fakeStateMachine) Pause()  { f.paused = true }
func (f *fakeStateMachine) Resume() { f.paused = false }

type fakeValidator struct{ contract model.TradeContract }

func (f *fakeValidator) Create(intent model.Intent) model.TradeContract { return f.contract }

type fakeWatches struct {
	created  []model.WatchRule
	canceled string
}

func (f *fakeWatches) Create(ctx context.Context, rule model.WatchRule) model.WatchRule {
	f.created = append(f.created, rule)
	return rule
}
func (f *fakeWatches) Cancel(ctx context.Context, id string) bool {
	f.canceled = id
	return true
}

func newTestOrchestrator() (*Orchestrator, *fakeStateMachine, *fakeValidator, *fakePositions, *fakeWatches, *events.Bus) {
	bus := events.NewBus()
	positions := newFakePositions()
	exec, _, _, _ := newTestExecutor(&fakeOrders{}, positions, model.StrategyState{Snapshot: model.StrategySnapshot{LastPrice: 100000}})
	sm := &fakeStateMachine{canGate: true}
	validator := &fakeValidator{contract: model.TradeContract{ID: "c1", Symbol: "BTCUSDT", Side: model.SideLong, SLRule: model.SLRuleNone, Status: model.ContractPending}}
	watches := &fakeWatches{}
	o := New(sm, validator, exec, positions, watches, bus, zerolog.Nop())
	return o, sm, validator, positions, watches, bus
}

func TestSubmitIntentEnterLongSucceeds(t *testing.T) {
	o, sm, _, _, _, _ := newTestOrchestrator()
	err := o.SubmitIntent(context.Background(), model.Intent{Action: model.ActionEnterLong, Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sm.entered) != 1 || sm.entered[0] != "BTCUSDT" {
		t.Errorf("expected state machine Enter to be called for BTCUSDT, got %v", sm.entered)
	}
}

func TestSubmitIntentEnterDeniedByGate(t *testing.T) {
	o, sm, _, _, _, _ := newTestOrchestrator()
	sm.canGate = false
	sm.reason = statemachine.GateReasonAlreadyOpen

	err := o.SubmitIntent(context.Background(), model.Intent{Action: model.ActionEnterLong, Symbol: "BTCUSDT"})
	if err != ErrGateDenied {
		t.Errorf("expected ErrGateDenied, got %v", err)
	}
	if len(sm.entered) != 0 {
		t.Error("expected Enter to not be called when the gate denies")
	}
}

func TestSubmitIntentEnterRejectedContractDoesNotEnter(t *testing.T) {
	o, sm, validator, _, _, _ := newTestOrchestrator()
	validator.contract = model.TradeContract{Status: model.ContractRejected, RejectReason: model.RejectInvalidRisk}

	err := o.SubmitIntent(context.Background(), model.Intent{Action: model.ActionEnterLong, Symbol: "BTCUSDT"})
	if err != ErrContractRejected {
		t.Errorf("expected ErrContractRejected, got %v", err)
	}
	if len(sm.entered) != 0 {
		t.Error("expected no Enter call for a rejected contract")
	}
}

func TestSubmitIntentCloseRequiresOpenPosition(t *testing.T) {
	o, _, _, _, _, _ := newTestOrchestrator()
	err := o.SubmitIntent(context.Background(), model.Intent{Action: model.ActionClose, Symbol: "BTCUSDT"})
	if err != ErrNotInPosition {
		t.Errorf("expected ErrNotInPosition, got %v", err)
	}
}

func TestSubmitIntentCloseStartsExitAndExecutes(t *testing.T) {
	o, sm, _, positions, _, _ := newTestOrchestrator()
	positions.set("BTCUSDT", model.TrackedPosition{Symbol: "BTCUSDT", Side: model.SideLong, Size: 1})

	err := o.SubmitIntent(context.Background(), model.Intent{Action: model.ActionClose, Symbol: "BTCUSDT"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sm.started) != 1 {
		t.Error("expected StartExit to be called")
	}
}

func TestSubmitIntentPauseAndResume(t *testing.T) {
	o, sm, _, _, _, _ := newTestOrchestrator()
	o.SubmitIntent(context.Background(), model.Intent{Action: model.ActionPause})
	if !sm.paused {
		t.Error("expected Pause to be called")
	}
	o.SubmitIntent(context.Background(), model.Intent{Action: model.ActionResume})
	if sm.paused {
		t.Error("expected Resume to be called")
	}
}

func TestSubmitIntentWatchCreateAndCancel(t *testing.T) {
	o, _, _, _, watches, _ := newTestOrchestrator()
	err := o.SubmitIntent(context.Background(), model.Intent{
		Action: model.ActionWatchCreate, Symbol: "BTCUSDT",
		Watch: &model.WatchRule{TriggerType: model.TriggerPriceAbove},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(watches.created) != 1 || watches.created[0].Symbol != "BTCUSDT" {
		t.Errorf("expected a watch to be created for BTCUSDT, got %v", watches.created)
	}

	o.SubmitIntent(context.Background(), model.Intent{Action: model.ActionWatchCancel, WatchID: "w1"})
	if watches.canceled != "w1" {
		t.Errorf("expected watch w1 to be canceled, got %q", watches.canceled)
	}
}

func TestPositionClosedAfterStopLossTriggerRoutesToExitStopped(t *testing.T) {
	o, sm, _, _, _, bus := newTestOrchestrator()

	bus.Publish(events.Event{Type: events.EventStrategicSLTriggered, Data: map[string]interface{}{"symbol": "BTCUSDT"}})
	time.Sleep(20 * time.Millisecond)
	bus.Publish(events.Event{Type: events.EventPositionClosed, Data: map[string]interface{}{"symbol": "BTCUSDT"}})
	time.Sleep(20 * time.Millisecond)

	if len(sm.stopped) != 1 || sm.stopped[0] != "BTCUSDT" {
		t.Errorf("expected ExitStopped to be called for BTCUSDT, got %v", sm.stopped)
	}
	if len(sm.exited) != 0 {
		t.Error("expected ExitClean to NOT be called for a stop-loss-driven close")
	}
	_ = o
}

func TestPositionClosedWithoutPendingReasonDefaultsToExitStopped(t *testing.T) {
	o, sm, _, _, _, bus := newTestOrchestrator()
	bus.Publish(events.Event{Type: events.EventPositionClosed, Data: map[string]interface{}{"symbol": "BTCUSDT"}})
	time.Sleep(20 * time.Millisecond)

	if len(sm.stopped) != 1 {
		t.Error("expected an orchestrator-uninitiated close to default to the conservative ExitStopped path")
	}
	_ = o
}

func TestSubmitIntentMoveSLToBreakeven(t *testing.T) {
	o, _, _, positions, _, _ := newTestOrchestrator()
	positions.set("BTCUSDT", model.TrackedPosition{Symbol: "BTCUSDT", Side: model.SideLong, Size: 1, AvgPrice: 98000})

	zero := 0.0
	err := o.SubmitIntent(context.Background(), model.Intent{Action: model.ActionMoveSL, Symbol: "BTCUSDT", NewSLPrice: &zero})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSubmitIntentMoveSLToExplicitPriceIsNotImplemented(t *testing.T) {
	o, _, _, positions, _, bus := newTestOrchestrator()
	positions.set("BTCUSDT", model.TrackedPosition{Symbol: "BTCUSDT", Side: model.SideLong, Size: 1, AvgPrice: 98000})

	rejected := make(chan events.Event, 1)
	bus.Subscribe(events.EventContractRejected, func(ev events.Event) { rejected <- ev })

	price := 99000.0
	err := o.SubmitIntent(context.Background(), model.Intent{Action: model.ActionMoveSL, Symbol: "BTCUSDT", NewSLPrice: &price})
	if err != ErrContractRejected {
		t.Fatalf("expected ErrContractRejected for an explicit SL price, got %v", err)
	}

	select {
	case ev := <-rejected:
		if ev.Data["reason"] != model.RejectNotImplemented {
			t.Errorf("expected reason NOT_IMPLEMENTED, got %v", ev.Data["reason"])
		}
	case <-time.After(time.Second):
		t.Fatal("expected a contractRejected event")
	}
}
