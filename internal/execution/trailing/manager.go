// Package trailing advances a position's strategic stop-loss on every
// candle close, per the trade's configured trail mode. It never loosens
// the stop; the stoploss.Manager enforces that invariant.
package trailing

import (
	"sync"

	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/model"
)

// Advancer moves a symbol's strategic SL to candidate, rejecting the
// move if it would loosen the stop. Satisfied by stoploss.Manager.
type Advancer interface {
	Advance(symbol string, candidate float64) bool
}

// Active records which trail mode and side a symbol's open position is
// using, so the correct candidate can be derived from the state update.
type Active struct {
	Side      model.Side
	TrailMode model.TrailMode
}

// Manager reads the trail mode configured on a trade's contract and
// computes the next candidate stop from the matching snapshot field.
type Manager struct {
	mu     sync.Mutex
	active map[string]Active

	advancer Advancer
	log      zerolog.Logger
}

// New constructs a Manager.
func New(advancer Advancer, log zerolog.Logger) *Manager {
	return &Manager{
		active:   make(map[string]Active),
		advancer: advancer,
		log:      log.With().Str("component", "trailing_manager").Logger(),
	}
}

// Activate begins trailing a symbol's strategic SL. A TrailModeNone
// trail is accepted but never produces an advance.
func (m *Manager) Activate(symbol string, side model.Side, mode model.TrailMode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[symbol] = Active{Side: side, TrailMode: mode}
}

// Deactivate stops trailing a symbol, e.g. once its position closes.
func (m *Manager) Deactivate(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, symbol)
}

// OnStateUpdate is wired to events.EventStateUpdate.
func (m *Manager) OnStateUpdate(ev events.Event) {
	state, ok := ev.Data["state"].(model.StrategyState)
	if !ok {
		return
	}

	m.mu.Lock()
	active, tracked := m.active[state.Symbol]
	m.mu.Unlock()
	if !tracked {
		return
	}

	candidate, ok := m.candidate(active, state)
	if !ok {
		return
	}
	m.advancer.Advance(state.Symbol, candidate)
}

func (m *Manager) candidate(active Active, state model.StrategyState) (float64, bool) {
	switch active.TrailMode {
	case model.TrailModeSupertrend:
		if state.Snapshot.Supertrend.Direction == model.BiasNeutral {
			return 0, false
		}
		return state.Snapshot.Supertrend.Value, true
	case model.TrailModeStructure:
		if active.Side == model.SideLong {
			if state.KeyLevels.ProtectedSwingLow == nil {
				return 0, false
			}
			return *state.KeyLevels.ProtectedSwingLow, true
		}
		if state.KeyLevels.ProtectedSwingHigh == nil {
			return 0, false
		}
		return *state.KeyLevels.ProtectedSwingHigh, true
	default: // TrailModeNone
		return 0, false
	}
}
