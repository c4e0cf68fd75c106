// Package statemachine owns the per-symbol position lifecycle:
//
//	FLAT --enter(side)--> IN_LONG | IN_SHORT
//	IN_* --startExit--> EXITING
//	EXITING --exitClean--> FLAT
//	EXITING --exitStopped--> LOCKED (TTL = anti-rage duration)
//	LOCKED --(timer expiry | forceUnlock)--> FLAT
//	Any --pause/resume--> (global flag; blocks all entries)
package statemachine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/model"
)

// GateReason is why canEnter denied a requested entry.
type GateReason string

const (
	GateReasonPaused       GateReason = "PAUSED"
	GateReasonAlreadyOpen  GateReason = "ALREADY_IN_POSITION"
	GateReasonAntiRage     GateReason = "ANTI_RAGE"
)

// Machine tracks every symbol's lifecycle state under a single mutex;
// the orchestrator is the sole caller, so writes are already serialized
// per the concurrency model, but the lock also guards the paused flag.
type Machine struct {
	mu      sync.Mutex
	entries map[string]model.StateMachineEntry
	paused  bool

	antiRageTTL time.Duration
	bus         *events.Bus
	log         zerolog.Logger
}

// New constructs a Machine. antiRageTTL is the LOCKED duration imposed
// after a stop-loss exit.
func New(antiRageTTL time.Duration, bus *events.Bus, log zerolog.Logger) *Machine {
	return &Machine{
		entries:     make(map[string]model.StateMachineEntry),
		antiRageTTL: antiRageTTL,
		bus:         bus,
		log:         log.With().Str("component", "state_machine").Logger(),
	}
}

// CanEnter reports whether symbol may enter side, and if not, why.
// Allowed iff: not globally paused, state is FLAT or LOCKED-with an
// expired TTL, and the symbol is not already in an open/exiting state.
func (m *Machine) CanEnter(symbol string, side model.Side) (bool, GateReason) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.canEnterLocked(symbol)
}

func (m *Machine) canEnterLocked(symbol string) (bool, GateReason) {
	if m.paused {
		return false, GateReasonPaused
	}

	entry, exists := m.entries[symbol]
	if !exists {
		return true, ""
	}

	switch entry.State {
	case model.StateFlat:
		return true, ""
	case model.StateLocked:
		if entry.LockExpired(time.Now()) {
			return true, ""
		}
		return false, GateReasonAntiRage
	default: // IN_LONG, IN_SHORT, EXITING
		return false, GateReasonAlreadyOpen
	}
}

// Enter transitions symbol FLAT/expired-LOCKED -> IN_LONG/IN_SHORT. The
// caller must have just confirmed CanEnter; Enter re-checks to avoid a
// race between the two calls.
func (m *Machine) Enter(symbol string, side model.Side) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ok, _ := m.canEnterLocked(symbol); !ok {
		return false
	}

	s := side
	m.entries[symbol] = model.StateMachineEntry{
		Symbol: symbol,
		State:  stateForSide(side),
		Side:   &s,
	}
	return true
}

func stateForSide(side model.Side) model.SymbolState {
	if side == model.SideShort {
		return model.StateInShort
	}
	return model.StateInLong
}

// StartExit transitions an open symbol into EXITING. No-op (returns
// false) if the symbol is not currently IN_LONG/IN_SHORT.
func (m *Machine) StartExit(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[symbol]
	if !exists || (entry.State != model.StateInLong && entry.State != model.StateInShort) {
		return false
	}
	entry.State = model.StateExiting
	m.entries[symbol] = entry
	return true
}

// ExitClean transitions EXITING -> FLAT, pruning the stale entry.
func (m *Machine) ExitClean(symbol string) {
	m.mu.Lock()
	delete(m.entries, symbol)
	m.mu.Unlock()

	m.bus.Publish(events.Event{Type: events.EventExitClean, Data: map[string]interface{}{"symbol": symbol}})
}

// ExitStopped transitions EXITING -> LOCKED with the anti-rage TTL, so
// the symbol cannot be re-entered until the cooldown expires.
func (m *Machine) ExitStopped(symbol string) {
	m.mu.Lock()
	m.entries[symbol] = model.StateMachineEntry{
		Symbol:        symbol,
		State:         model.StateLocked,
		LockExpiresAt: time.Now().Add(m.antiRageTTL),
		LockReason:    model.LockReasonStopLoss,
	}
	m.mu.Unlock()

	m.bus.Publish(events.Event{Type: events.EventExitStopped, Data: map[string]interface{}{"symbol": symbol}})
}

// ForceUnlock clears a LOCKED symbol back to FLAT regardless of TTL.
func (m *Machine) ForceUnlock(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, exists := m.entries[symbol]; exists && entry.State == model.StateLocked {
		delete(m.entries, symbol)
	}
}

// Pause sets the global flag blocking all new entries.
func (m *Machine) Pause() {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
	m.bus.Publish(events.Event{Type: events.EventPaused})
}

// Resume clears the global pause flag.
func (m *Machine) Resume() {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
	m.bus.Publish(events.Event{Type: events.EventResumed})
}

// Paused reports the current global pause flag.
func (m *Machine) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Get returns the current entry for symbol, if any.
func (m *Machine) Get(symbol string) (model.StateMachineEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[symbol]
	return entry, ok
}

// PruneExpired removes stale entries: LOCKED symbols whose TTL has
// elapsed and that no caller has since re-entered or force-unlocked.
// Intended to be called periodically by the composition root.
func (m *Machine) PruneExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for symbol, entry := range m.entries {
		if entry.State == model.StateLocked && entry.LockExpired(now) {
			delete(m.entries, symbol)
		}
	}
}
