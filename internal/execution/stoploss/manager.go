// Package stoploss operates the two-layer stop-loss system: an
// exchange-resident emergency stop placed atomically with entry, and a
// locally-tracked strategic stop checked on every candle close.
package stoploss

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/model"
)

// Exiter drives an immediate market exit for an open position. Satisfied
// by a thin adapter over the order manager (reduce-only market order).
type Exiter interface {
	MarketExit(ctx context.Context, symbol string, side model.Side) error
}

// Armed is the per-symbol strategic SL record.
type Armed struct {
	TradeID     string
	Symbol      string
	Side        model.Side
	StrategicSL float64
}

// Manager tracks one strategic SL per open trade and checks it against
// every candle close for the trade's symbol.
type Manager struct {
	mu     sync.Mutex
	armed  map[string]Armed // symbol -> record

	exiter Exiter
	bus    *events.Bus
	log    zerolog.Logger
}

// New constructs a Manager. exiter may be nil and attached later with
// SetExiter, breaking the constructor cycle with whatever implements
// Exiter (typically *orchestrator.Executor, which itself takes this
// Manager as its StopLossArmer).
func New(exiter Exiter, bus *events.Bus, log zerolog.Logger) *Manager {
	return &Manager{
		armed:  make(map[string]Armed),
		exiter: exiter,
		bus:    bus,
		log:    log.With().Str("component", "stoploss_manager").Logger(),
	}
}

// SetExiter attaches the exiter after construction.
func (m *Manager) SetExiter(exiter Exiter) {
	m.exiter = exiter
}

// ComputeEmergencySL derives the remote stop price placed atomically
// with entry: entryPrice * (1 -+ emergencySlPercent/100).
func ComputeEmergencySL(entryPrice float64, side model.Side, emergencySlPercent float64) float64 {
	frac := emergencySlPercent / 100
	if side == model.SideShort {
		return entryPrice * (1 + frac)
	}
	return entryPrice * (1 - frac)
}

// Arm begins tracking the strategic SL for a newly opened trade.
func (m *Manager) Arm(tradeID, symbol string, side model.Side, strategicSL float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armed[symbol] = Armed{TradeID: tradeID, Symbol: symbol, Side: side, StrategicSL: strategicSL}
}

// Disarm stops tracking a symbol, e.g. once its position is closed.
func (m *Manager) Disarm(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.armed, symbol)
}

// SetStrategicSL overrides a symbol's strategic SL directly, bypassing
// the monotonic-tightening check Advance enforces. Used for explicit
// user-driven stop moves (e.g. MOVE_SL to breakeven), not automatic
// trailing.
func (m *Manager) SetStrategicSL(symbol string, price float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.armed[symbol]
	if !ok {
		return false
	}
	a.StrategicSL = price
	m.armed[symbol] = a
	return true
}

// Current returns the armed strategic SL record for a symbol, if any.
func (m *Manager) Current(symbol string) (Armed, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.armed[symbol]
	return a, ok
}

// Advance moves a symbol's strategic SL to candidate, but only if doing
// so tightens it: higher for LONG, lower for SHORT. Never loosens.
// Reports whether the SL moved.
func (m *Manager) Advance(symbol string, candidate float64) bool {
	m.mu.Lock()
	a, ok := m.armed[symbol]
	if !ok {
		m.mu.Unlock()
		return false
	}

	tighter := (a.Side == model.SideLong && candidate > a.StrategicSL) ||
		(a.Side == model.SideShort && candidate < a.StrategicSL)
	if !tighter {
		m.mu.Unlock()
		return false
	}

	old := a.StrategicSL
	a.StrategicSL = candidate
	m.armed[symbol] = a
	m.mu.Unlock()

	m.bus.Publish(events.Event{Type: events.EventSLTrailed, Data: map[string]interface{}{
		"symbol": symbol, "old": old, "new": candidate,
	}})
	return true
}

// OnStateUpdate is wired to events.EventStateUpdate. It checks the
// armed strategic SL against the closed candle's price and, on
// trigger, drives an immediate market exit.
func (m *Manager) OnStateUpdate(ev events.Event) {
	state, ok := ev.Data["state"].(model.StrategyState)
	if !ok {
		return
	}

	m.mu.Lock()
	a, armed := m.armed[state.Symbol]
	m.mu.Unlock()
	if !armed {
		return
	}

	price := state.Snapshot.LastPrice
	triggered := (a.Side == model.SideLong && price < a.StrategicSL) ||
		(a.Side == model.SideShort && price > a.StrategicSL)
	if !triggered {
		return
	}

	m.bus.Publish(events.Event{Type: events.EventStrategicSLTriggered, Data: map[string]interface{}{
		"symbol": a.Symbol, "side": a.Side, "tradeId": a.TradeID, "strategicSl": a.StrategicSL, "price": price,
	}})

	if m.exiter == nil {
		return
	}
	if err := m.exiter.MarketExit(context.Background(), a.Symbol, a.Side); err != nil {
		m.log.Error().Err(err).Str("symbol", a.Symbol).Msg("strategic SL exit failed")
		return
	}
	m.Disarm(a.Symbol)
}
