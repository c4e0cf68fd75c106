// Package invalidation runs the hard-exit monitor: on every strategy
// state update for a symbol with an open position, it checks price
// against the protected swing level and forces an exit on break. This
// path cannot be suppressed by user configuration.
package invalidation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/model"
)

// Exiter drives an immediate hard exit. Satisfied by a thin adapter
// over the order manager (reduce-only market order).
type Exiter interface {
	MarketExit(ctx context.Context, symbol string, side model.Side) error
}

// defaultRetryDelay is the wait before a single retry of a failed hard exit.
const defaultRetryDelay = time.Second

// Manager tracks which symbols currently have an open position and
// their side, so it can evaluate the matching protected level.
type Manager struct {
	mu   sync.Mutex
	open map[string]model.Side

	exiter     Exiter
	bus        *events.Bus
	log        zerolog.Logger
	retryDelay time.Duration
}

// New constructs a Manager. exiter may be nil and attached later with
// SetExiter, breaking the constructor cycle with whatever implements
// Exiter (typically *orchestrator.Executor, which itself takes this
// Manager as its InvalidationTracker).
func New(exiter Exiter, bus *events.Bus, log zerolog.Logger) *Manager {
	return &Manager{
		open:       make(map[string]model.Side),
		exiter:     exiter,
		bus:        bus,
		log:        log.With().Str("component", "invalidation_manager").Logger(),
		retryDelay: defaultRetryDelay,
	}
}

// SetExiter attaches the exiter after construction.
func (m *Manager) SetExiter(exiter Exiter) {
	m.exiter = exiter
}

// Track begins watching a symbol's open position for an invalidation break.
func (m *Manager) Track(symbol string, side model.Side) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open[symbol] = side
}

// Untrack stops watching a symbol, e.g. once its position closes.
func (m *Manager) Untrack(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.open, symbol)
}

// OnStateUpdate is wired to events.EventStateUpdate.
func (m *Manager) OnStateUpdate(ev events.Event) {
	state, ok := ev.Data["state"].(model.StrategyState)
	if !ok {
		return
	}

	m.mu.Lock()
	side, tracked := m.open[state.Symbol]
	m.mu.Unlock()
	if !tracked {
		return
	}

	price := state.Snapshot.LastPrice
	broken := (side == model.SideLong && state.KeyLevels.ProtectedSwingLow != nil && price < *state.KeyLevels.ProtectedSwingLow) ||
		(side == model.SideShort && state.KeyLevels.ProtectedSwingHigh != nil && price > *state.KeyLevels.ProtectedSwingHigh)
	if !broken {
		return
	}

	m.bus.Publish(events.Event{Type: events.EventSwingBreak, Data: map[string]interface{}{"symbol": state.Symbol, "side": side, "price": price}})
	go m.hardExit(state.Symbol, side)
}

// hardExit drives the exit, retrying once after retryDelay. A second
// failure is a critical error surfaced for operator intervention: this
// path is not allowed to fail silently.
func (m *Manager) hardExit(symbol string, side model.Side) {
	if m.exiter == nil {
		return
	}
	ctx := context.Background()
	if err := m.exiter.MarketExit(ctx, symbol, side); err == nil {
		m.Untrack(symbol)
		return
	}

	time.Sleep(m.retryDelay)
	if err := m.exiter.MarketExit(ctx, symbol, side); err == nil {
		m.Untrack(symbol)
		return
	}

	m.log.Error().Str("symbol", symbol).Msg("invalidation hard exit failed twice")
	m.bus.Publish(events.Event{Type: events.EventInvalidationCritical, Data: map[string]interface{}{"symbol": symbol, "side": side}})
}
