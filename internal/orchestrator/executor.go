package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/exchange"
	"strategybot/internal/execution/stoploss"
	"strategybot/internal/model"
)

// OrderPlacer places entry/exit orders. Satisfied by order.Manager.
type OrderPlacer interface {
	PlaceMarket(ctx context.Context, req exchange.OrderRequest, flags model.OrderFlags, tradeID string) (*model.ManagedOrder, error)
}

// LeverageSetter sets per-symbol leverage ahead of an entry.
type LeverageSetter interface {
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

// PositionSizer resolves a risk percent + leverage into an order size.
// The concrete implementation (composition root) reads account equity
// and the stop distance to size the position.
type PositionSizer interface {
	Size(ctx context.Context, symbol string, side model.Side, riskPercent float64, leverage int) (float64, error)
}

// StateReader supplies the most recently emitted strategy state for a
// symbol, used to resolve a SWING/SUPERTREND strategic SL and the
// reference price for the emergency SL. Satisfied by strategyengine.Engine.
type StateReader interface {
	Last(symbol string) (model.StrategyState, bool)
}

// StopLossArmer arms/disarms/overrides a trade's strategic SL. Satisfied
// by stoploss.Manager.
type StopLossArmer interface {
	Arm(tradeID, symbol string, side model.Side, strategicSL float64)
	Disarm(symbol string)
	SetStrategicSL(symbol string, price float64) bool
}

// TrailingActivator activates/deactivates strategic-SL trailing for a symbol.
type TrailingActivator interface {
	Activate(symbol string, side model.Side, mode model.TrailMode)
	Deactivate(symbol string)
}

// InvalidationTracker tracks/untracks a symbol's hard-exit monitor.
type InvalidationTracker interface {
	Track(symbol string, side model.Side)
	Untrack(symbol string)
}

// Executor carries out the mechanics of an entry or exit: order
// placement, SL arming, trailing activation and invalidation tracking.
// It implements stoploss.Exiter and invalidation.Exiter so those
// managers can drive a market exit without depending on the orchestrator.
type Executor struct {
	orders       OrderPlacer
	leverage     LeverageSetter
	sizer        PositionSizer
	state        StateReader
	positions    PositionProvider
	stopLoss     StopLossArmer
	trailing     TrailingActivator
	invalidation InvalidationTracker

	bus *events.Bus
	log zerolog.Logger
}

// NewExecutor constructs an Executor.
func NewExecutor(
	orders OrderPlacer,
	leverage LeverageSetter,
	sizer PositionSizer,
	state StateReader,
	positions PositionProvider,
	stopLoss StopLossArmer,
	trailing TrailingActivator,
	invalidation InvalidationTracker,
	bus *events.Bus,
	log zerolog.Logger,
) *Executor {
	return &Executor{
		orders:       orders,
		leverage:     leverage,
		sizer:        sizer,
		state:        state,
		positions:    positions,
		stopLoss:     stopLoss,
		trailing:     trailing,
		invalidation: invalidation,
		bus:          bus,
		log:          log.With().Str("component", "executor").Logger(),
	}
}

// ExecuteEntry sizes and places the entry order with the emergency SL
// attached atomically, then arms the strategic SL, activates trailing
// and starts invalidation tracking.
func (e *Executor) ExecuteEntry(ctx context.Context, contract model.TradeContract) (model.TradeContract, error) {
	state, _ := e.state.Last(contract.Symbol)
	refPrice := state.Snapshot.LastPrice

	size, err := e.sizer.Size(ctx, contract.Symbol, contract.Side, contract.RiskPercent, contract.Leverage)
	if err != nil {
		return contract, fmt.Errorf("executor: position size: %w", err)
	}

	if err := e.leverage.SetLeverage(ctx, contract.Symbol, contract.Leverage); err != nil {
		return contract, fmt.Errorf("executor: set leverage: %w", err)
	}

	emergencySL := stoploss.ComputeEmergencySL(refPrice, contract.Side, contract.EmergencySLPercent)
	strategicSL, hasStrategic := resolveStrategicSL(contract, state)

	req := exchange.OrderRequest{
		Symbol:   contract.Symbol,
		Side:     contract.Side,
		Size:     size,
		StopLoss: &emergencySL,
	}

	order, err := e.orders.PlaceMarket(ctx, req, model.OrderFlags{IsEntry: true}, contract.ID)
	if err != nil {
		return contract, fmt.Errorf("executor: place entry: %w", err)
	}

	contract.Status = model.ContractExecuted
	contract.OrderID = order.ID
	contract.PositionSize = size
	contract.ActualSLPrice = emergencySL
	contract.EntryPrice = refPrice

	if hasStrategic {
		e.stopLoss.Arm(contract.ID, contract.Symbol, contract.Side, strategicSL)
	}
	if contract.TrailMode != model.TrailModeNone {
		e.trailing.Activate(contract.Symbol, contract.Side, contract.TrailMode)
	}
	e.invalidation.Track(contract.Symbol, contract.Side)

	return contract, nil
}

// resolveStrategicSL derives the initial local SL price per the
// contract's SLRule, reading swing/supertrend levels off the last
// emitted strategy state. SLRuleNone has no strategic SL (emergency
// SL only).
func resolveStrategicSL(contract model.TradeContract, state model.StrategyState) (float64, bool) {
	switch contract.SLRule {
	case model.SLRuleSwing:
		if contract.Side == model.SideLong {
			if state.KeyLevels.ProtectedSwingLow == nil {
				return 0, false
			}
			return *state.KeyLevels.ProtectedSwingLow, true
		}
		if state.KeyLevels.ProtectedSwingHigh == nil {
			return 0, false
		}
		return *state.KeyLevels.ProtectedSwingHigh, true
	case model.SLRuleSupertrend:
		return state.Snapshot.Supertrend.Value, true
	case model.SLRulePrice:
		if contract.SLPrice == nil {
			return 0, false
		}
		return *contract.SLPrice, true
	default: // SLRuleNone
		return 0, false
	}
}

// ExecuteExit places a reduce-only market order against percent of the
// symbol's current tracked position size.
func (e *Executor) ExecuteExit(ctx context.Context, symbol string, side model.Side, percent float64) error {
	pos, open := e.positions.Get(symbol)
	if !open {
		return ErrNotInPosition
	}

	size := pos.Size * percent / 100
	opposite := model.SideShort
	if side == model.SideShort {
		opposite = model.SideLong
	}

	req := exchange.OrderRequest{Symbol: symbol, Side: opposite, Size: size, ReduceOnly: true}
	if _, err := e.orders.PlaceMarket(ctx, req, model.OrderFlags{IsExit: true}, ""); err != nil {
		return fmt.Errorf("executor: place exit: %w", err)
	}
	return nil
}

// MarketExit is ExecuteExit at 100%, satisfying stoploss.Exiter and
// invalidation.Exiter so those managers can drive a hard exit directly.
func (e *Executor) MarketExit(ctx context.Context, symbol string, side model.Side) error {
	return e.ExecuteExit(ctx, symbol, side, 100)
}

// MoveStopLoss overrides a symbol's strategic SL on an explicit user
// command (e.g. MOVE_SL to breakeven), bypassing the monotonic trail check.
func (e *Executor) MoveStopLoss(symbol string, price float64) {
	e.stopLoss.SetStrategicSL(symbol, price)
}

// OnPositionClosed tears down every piece of execution-side tracking
// for a symbol once its position has closed.
func (e *Executor) OnPositionClosed(symbol string) {
	e.stopLoss.Disarm(symbol)
	e.trailing.Deactivate(symbol)
	e.invalidation.Untrack(symbol)
}
