package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/exchange"
	"strategybot/internal/model"
)

type fakeOrders struct {
	mu       sync.Mutex
	placed   []exchange.OrderRequest
	nextErr  error
}

func (f *fakeOrders) PlaceMarket(ctx context.Context, req exchange.OrderRequest, flags model.OrderFlags, tradeID string) (*model.ManagedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nextErr != nil {
		return nil, f.nextErr
	}
	f.placed = append(f.placed, req)
	return &model.ManagedOrder{ID: "order-1", Symbol: req.Symbol, Side: req.Side, Size: req.Size}, nil
}

type fakeLeverage struct{ set int }

func (f *fakeLeverage) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	f.set = leverage
	return nil
}

type fakeSizer struct{ size float64 }

func (f *fakeSizer) Size(ctx context.Context, symbol string, side model.Side, riskPercent float64, leverage int) (float64, error) {
	return f.size, nil
}

type fakeStateReader struct{ state model.StrategyState }

func (f *fakeStateReader) Last(symbol string) (model.StrategyState, bool) {
	return f.state, true
}

type fakePositions struct {
	mu  sync.Mutex
	pos map[string]model.TrackedPosition
}

func newFakePositions() *fakePositions { return &fakePositions{pos: make(map[string]model.TrackedPosition)} }

func (f *fakePositions) Get(symbol string) (model.TrackedPosition, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pos[symbol]
	return p, ok
}

func (f *fakePositions) set(symbol string, pos model.TrackedPosition) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos[symbol] = pos
}

type fakeStopLoss struct {
	armedSymbol string
	armedSL     float64
	disarmed    string
	overridden  float64
}

func (f *fakeStopLoss) Arm(tradeID, symbol string, side model.Side, strategicSL float64) {
	f.armedSymbol = symbol
	f.armedSL = strategicSL
}
func (f *fakeStopLoss) Disarm(symbol string) { f.disarmed = symbol }
func (f *fakeStopLoss) SetStrategicSL(symbol string, price float64) bool {
	f.overridden = price
	return true
}

type fakeTrailing struct {
	activated   string
	deactivated string
}

func (f *fakeTrailing) Activate(symbol string, side model.Side, mode model.TrailMode) { f.activated = symbol }
func (f *fakeTrailing) Deactivate(symbol string)                                      { f.deactivated = symbol }

type fakeInvalidation struct {
	tracked   string
	untracked string
}

func (f *fakeInvalidation) Track(symbol string, side model.Side) { f.tracked = symbol }
func (f *fakeInvalidation) Untrack(symbol string)                { f.untracked = symbol }

func newTestExecutor(orders *fakeOrders, positions *fakePositions, state model.StrategyState) (*Executor, *fakeStopLoss, *fakeTrailing, *fakeInvalidation) {
	sl := &fakeStopLoss{}
	tr := &fakeTrailing{}
	inv := &fakeInvalidation{}
	exec := NewExecutor(orders, &fakeLeverage{}, &fakeSizer{size: 0.5}, &fakeStateReader{state: state}, positions, sl, tr, inv, events.NewBus(), zerolog.Nop())
	return exec, sl, tr, inv
}

func TestExecuteEntryPlacesOrderWithEmergencySLAttached(t *testing.T) {
	orders := &fakeOrders{}
	positions := newFakePositions()
	state := model.StrategyState{Snapshot: model.StrategySnapshot{LastPrice: 100000}}
	exec, sl, tr, inv := newTestExecutor(orders, positions, state)

	low := 95000.0
	contract := model.TradeContract{
		ID: "c1", Symbol: "BTCUSDT", Side: model.SideLong, RiskPercent: 0.5, Leverage: 5,
		SLRule: model.SLRuleSwing, EmergencySLPercent: 4, TrailMode: model.TrailModeSupertrend,
	}
	state.KeyLevels.ProtectedSwingLow = &low
	exec.state = &fakeStateReader{state: state}

	got, err := exec.ExecuteEntry(context.Background(), contract)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != model.ContractExecuted {
		t.Errorf("expected EXECUTED status, got %v", got.Status)
	}
	if len(orders.placed) != 1 {
		t.Fatalf("expected one order placed, got %d", len(orders.placed))
	}
	if orders.placed[0].StopLoss == nil || *orders.placed[0].StopLoss != 96000 {
		t.Errorf("expected emergency SL 96000 attached, got %v", orders.placed[0].StopLoss)
	}
	if sl.armedSymbol != "BTCUSDT" || sl.armedSL != 95000 {
		t.Errorf("expected strategic SL armed at the protected swing low 95000, got symbol=%s sl=%v", sl.armedSymbol, sl.armedSL)
	}
	if tr.activated != "BTCUSDT" {
		t.Error("expected trailing to be activated")
	}
	if inv.tracked != "BTCUSDT" {
		t.Error("expected invalidation tracking to start")
	}
}

func TestExecuteEntryPropagatesOrderPlacementError(t *testing.T) {
	orders := &fakeOrders{nextErr: errors.New("insufficient margin")}
	positions := newFakePositions()
	exec, _, _, _ := newTestExecutor(orders, positions, model.StrategyState{})

	contract := model.TradeContract{ID: "c1", Symbol: "BTCUSDT", Side: model.SideLong, SLRule: model.SLRuleNone}
	_, err := exec.ExecuteEntry(context.Background(), contract)
	if err == nil {
		t.Fatal("expected an error to propagate from order placement")
	}
}

func TestExecuteExitSizesByPercentAndFlipsSide(t *testing.T) {
	orders := &fakeOrders{}
	positions := newFakePositions()
	positions.set("BTCUSDT", model.TrackedPosition{Symbol: "BTCUSDT", Side: model.SideLong, Size: 2})
	exec, _, _, _ := newTestExecutor(orders, positions, model.StrategyState{})

	if err := exec.ExecuteExit(context.Background(), "BTCUSDT", model.SideLong, 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(orders.placed) != 1 {
		t.Fatalf("expected one exit order, got %d", len(orders.placed))
	}
	req := orders.placed[0]
	if req.Side != model.SideShort {
		t.Errorf("expected exit order to flip side to SHORT for a LONG position, got %v", req.Side)
	}
	if req.Size != 1 {
		t.Errorf("expected exit size 1 (50%% of 2), got %v", req.Size)
	}
	if !req.ReduceOnly {
		t.Error("expected exit order to be reduce-only")
	}
}

func TestExecuteExitRequiresOpenPosition(t *testing.T) {
	exec, _, _, _ := newTestExecutor(&fakeOrders{}, newFakePositions(), model.StrategyState{})
	err := exec.ExecuteExit(context.Background(), "BTCUSDT", model.SideLong, 100)
	if !errors.Is(err, ErrNotInPosition) {
		t.Errorf("expected ErrNotInPosition, got %v", err)
	}
}

func TestOnPositionClosedTearsDownTracking(t *testing.T) {
	exec, sl, tr, inv := newTestExecutor(&fakeOrders{}, newFakePositions(), model.StrategyState{})
	exec.OnPositionClosed("BTCUSDT")

	if sl.disarmed != "BTCUSDT" || tr.deactivated != "BTCUSDT" || inv.untracked != "BTCUSDT" {
		t.Error("expected stop-loss, trailing and invalidation tracking all torn down")
	}
}

func TestMoveStopLossDelegatesToStopLossArmer(t *testing.T) {
	exec, sl, _, _ := newTestExecutor(&fakeOrders{}, newFakePositions(), model.StrategyState{})
	exec.MoveStopLoss("BTCUSDT", 97000)
	if sl.overridden != 97000 {
		t.Errorf("expected strategic SL override to 97000, got %v", sl.overridden)
	}
}
