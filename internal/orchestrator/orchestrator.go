// Package orchestrator is the single entry point for user/strategy
// intents: it routes each action through the state machine, contract
// validator and executor, and reacts to position-close callbacks to
// return the state machine to FLAT or LOCKED.
package orchestrator

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/model"
	"strategybot/internal/statemachine"
)

// StateMachine is the narrow per-symbol lifecycle gate the orchestrator drives.
type StateMachine interface {
	CanEnter(symbol string, side model.Side) (bool, statemachine.GateReason)
	Enter(symbol string, side model.Side) bool
	StartExit(symbol string) bool
	ExitClean(symbol string)
	ExitStopped(symbol string)
	Pause()
	Resume()
}

// ContractValidator fills defaults and validates an intent into a trade contract.
type ContractValidator interface {
	Create(intent model.Intent) model.TradeContract
}

// PositionProvider reports the currently tracked position for a symbol.
type PositionProvider interface {
	Get(symbol string) (model.TrackedPosition, bool)
}

// WatchRegistry creates and cancels watch rules.
type WatchRegistry interface {
	Create(ctx context.Context, rule model.WatchRule) model.WatchRule
	Cancel(ctx context.Context, id string) bool
}

// RiskGate is an account-wide trading halt, checked alongside the
// per-symbol state machine gate. It is optional: a nil RiskGate permits
// every entry. Satisfied by *circuit.CircuitBreaker.
type RiskGate interface {
	CanTrade() (bool, string)
}

// closeReason records why the orchestrator itself initiated an exit, so
// the subsequent positionClosed callback can route the state machine
// correctly. A close the orchestrator did NOT initiate (e.g. a manual
// exchange-side liquidation) defaults to the stop-loss path, matching
// the conservative anti-rage posture.
type closeReason string

const (
	closeReasonClean     closeReason = "CLEAN"
	closeReasonStopLoss  closeReason = "STOP_LOSS"
)

// Orchestrator wires together the state machine, contract validator,
// executor and watch registry behind a single SubmitIntent entry point.
type Orchestrator struct {
	mu            sync.Mutex
	pendingReason map[string]closeReason

	sm        StateMachine
	validator ContractValidator
	executor  *Executor
	positions PositionProvider
	watches   WatchRegistry
	risk      RiskGate

	bus *events.Bus
	log zerolog.Logger
}

// SetRiskGate attaches an account-wide risk gate (typically a
// *circuit.CircuitBreaker). Optional: without one, enter() only checks
// the state machine's per-symbol gate.
func (o *Orchestrator) SetRiskGate(rg RiskGate) {
	o.risk = rg
}

// New constructs an Orchestrator and wires its event subscriptions.
func New(sm StateMachine, validator ContractValidator, executor *Executor, positions PositionProvider, watches WatchRegistry, bus *events.Bus, log zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		pendingReason: make(map[string]closeReason),
		sm:            sm,
		validator:     validator,
		executor:      executor,
		positions:     positions,
		watches:       watches,
		bus:           bus,
		log:           log.With().Str("component", "orchestrator").Logger(),
	}

	bus.Subscribe(events.EventPositionClosed, o.onPositionClosed)
	bus.Subscribe(events.EventStrategicSLTriggered, o.onStopLossTriggered)
	bus.Subscribe(events.EventSwingBreak, o.onSwingBreak)

	return o
}

// SubmitIntent routes a structured intent by action. It also satisfies
// watch.Submitter, so AUTO_ENTER watches re-enter through this same
// gated pipeline.
func (o *Orchestrator) SubmitIntent(ctx context.Context, intent model.Intent) error {
	switch intent.Action {
	case model.ActionEnterLong, model.ActionEnterShort:
		return o.enter(ctx, intent)
	case model.ActionClose, model.ActionClosePartial:
		return o.close(ctx, intent)
	case model.ActionMoveSL:
		return o.moveSL(ctx, intent)
	case model.ActionPause:
		o.sm.Pause()
		return nil
	case model.ActionResume:
		o.sm.Resume()
		return nil
	case model.ActionWatchCreate:
		return o.watchCreate(ctx, intent)
	case model.ActionWatchCancel:
		o.watches.Cancel(ctx, intent.WatchID)
		return nil
	default:
		return ErrUnhandledAction
	}
}

func (o *Orchestrator) enter(ctx context.Context, intent model.Intent) error {
	side := model.SideLong
	if intent.Action == model.ActionEnterShort {
		side = model.SideShort
	}

	ok, reason := o.sm.CanEnter(intent.Symbol, side)
	if !ok {
		o.bus.Publish(events.Event{Type: events.EventError, Data: map[string]interface{}{
			"symbol": intent.Symbol, "reason": reason, "stage": "gate",
		}})
		return ErrGateDenied
	}

	if o.risk != nil {
		if allowed, riskReason := o.risk.CanTrade(); !allowed {
			o.bus.Publish(events.Event{Type: events.EventError, Data: map[string]interface{}{
				"symbol": intent.Symbol, "reason": riskReason, "stage": "risk_gate",
			}})
			return ErrGateDenied
		}
	}

	contract := o.validator.Create(intent)
	if contract.Status == model.ContractRejected {
		o.bus.Publish(events.Event{Type: events.EventContractRejected, Data: map[string]interface{}{
			"symbol": intent.Symbol, "reason": contract.RejectReason,
		}})
		return ErrContractRejected
	}
	if contract.LeverageClamped {
		o.bus.Publish(events.Event{Type: events.EventLeverageClamped, Data: map[string]interface{}{
			"symbol": intent.Symbol, "leverage": contract.Leverage,
		}})
	}

	if !o.sm.Enter(intent.Symbol, side) {
		return ErrGateDenied
	}

	if _, err := o.executor.ExecuteEntry(ctx, contract); err != nil {
		// Restore FLAT: a failed entry must not leak a local position.
		o.sm.ExitClean(intent.Symbol)
		return err
	}
	return nil
}

func (o *Orchestrator) close(ctx context.Context, intent model.Intent) error {
	pos, open := o.positions.Get(intent.Symbol)
	if !open {
		return ErrNotInPosition
	}
	if !o.sm.StartExit(intent.Symbol) {
		return ErrNotInPosition
	}

	percent := 100.0
	if intent.Action == model.ActionClosePartial && intent.ClosePercent != nil {
		percent = *intent.ClosePercent
	}

	o.setPendingReason(intent.Symbol, closeReasonClean)
	if err := o.executor.ExecuteExit(ctx, intent.Symbol, pos.Side, percent); err != nil {
		o.clearPendingReason(intent.Symbol)
		return err
	}
	return nil
}

// moveSL only implements the breakeven move. A zero or absent NewSLPrice
// requests breakeven; a non-zero NewSLPrice asks for the general
// arbitrary-price case, which is rejected rather than silently
// reinterpreted as breakeven.
func (o *Orchestrator) moveSL(ctx context.Context, intent model.Intent) error {
	pos, open := o.positions.Get(intent.Symbol)
	if !open {
		return ErrNotInPosition
	}

	if intent.NewSLPrice != nil && *intent.NewSLPrice != 0 {
		o.bus.Publish(events.Event{Type: events.EventContractRejected, Data: map[string]interface{}{
			"symbol": intent.Symbol, "reason": model.RejectNotImplemented,
		}})
		return ErrContractRejected
	}

	o.executor.MoveStopLoss(intent.Symbol, pos.AvgPrice) // breakeven
	return nil
}

func (o *Orchestrator) watchCreate(ctx context.Context, intent model.Intent) error {
	if intent.Watch == nil {
		return ErrUnhandledAction
	}
	rule := *intent.Watch
	rule.Symbol = intent.Symbol
	o.watches.Create(ctx, rule)
	return nil
}

func (o *Orchestrator) setPendingReason(symbol string, reason closeReason) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pendingReason[symbol] = reason
}

func (o *Orchestrator) clearPendingReason(symbol string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.pendingReason, symbol)
}

func (o *Orchestrator) takePendingReason(symbol string) closeReason {
	o.mu.Lock()
	defer o.mu.Unlock()
	reason, ok := o.pendingReason[symbol]
	if !ok {
		return closeReasonStopLoss
	}
	delete(o.pendingReason, symbol)
	return reason
}

func (o *Orchestrator) onStopLossTriggered(ev events.Event) {
	symbol, _ := ev.Data["symbol"].(string)
	o.setPendingReason(symbol, closeReasonStopLoss)
}

func (o *Orchestrator) onSwingBreak(ev events.Event) {
	symbol, _ := ev.Data["symbol"].(string)
	o.setPendingReason(symbol, closeReasonStopLoss)
}

// onPositionClosed is wired to events.EventPositionClosed. It resolves
// the state machine per whether this close was a stop-loss/invalidation
// path or a clean user-initiated close, then deactivates execution-side
// tracking for the symbol.
func (o *Orchestrator) onPositionClosed(ev events.Event) {
	symbol, _ := ev.Data["symbol"].(string)
	if symbol == "" {
		return
	}

	o.executor.OnPositionClosed(symbol)

	if o.takePendingReason(symbol) == closeReasonStopLoss {
		o.sm.ExitStopped(symbol)
	} else {
		o.sm.ExitClean(symbol)
	}
}
