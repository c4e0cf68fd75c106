// Package position holds the authoritative, stream-reconciled view of
// every open position, keyed by symbol.
package position

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/exchange"
	"strategybot/internal/model"
)

// Repository persists position snapshots. Implemented by internal/persistence.
type Repository interface {
	SavePosition(ctx context.Context, position model.TrackedPosition) error
}

// Tracker reconciles model.TrackedPosition from the exchange's private
// position stream. It holds no opinion on entry/exit intent: it simply
// mirrors what the exchange reports.
type Tracker struct {
	mu        sync.RWMutex
	positions map[string]model.TrackedPosition // symbol -> position, present only while Size > 0

	repo Repository
	bus  *events.Bus
	log  zerolog.Logger
}

// New constructs a Tracker. repo may be nil (no-op persistence).
func New(repo Repository, bus *events.Bus, log zerolog.Logger) *Tracker {
	return &Tracker{
		positions: make(map[string]model.TrackedPosition),
		repo:      repo,
		bus:       bus,
		log:       log.With().Str("component", "position_tracker").Logger(),
	}
}

// OnStreamEvent reconciles a frame off the private position topic. Each
// entry in the frame describes one symbol's current exchange-side
// position; a size of zero means the position is closed.
func (t *Tracker) OnStreamEvent(ctx context.Context, ev exchange.StreamEvent) {
	if ev.Topic != exchange.TopicPosition {
		return
	}
	for _, raw := range ev.Data {
		pos, ok := parsePosition(raw)
		if !ok {
			t.log.Warn().Interface("raw", raw).Msg("failed to parse position frame")
			continue
		}
		t.reconcile(ctx, pos, parseFloat(raw["cumRealisedPnl"]))
	}
}

func (t *Tracker) reconcile(ctx context.Context, pos model.TrackedPosition, realizedPnl float64) {
	t.mu.Lock()
	previous, existed := t.positions[pos.Symbol]

	// markPrice is defensive against the exchange occasionally sending 0
	// on a frame; hold the prior value rather than clobbering it.
	if pos.MarkPrice <= 0 && existed {
		pos.MarkPrice = previous.MarkPrice
	}

	if pos.Size == 0 {
		delete(t.positions, pos.Symbol)
	} else {
		t.positions[pos.Symbol] = pos
	}
	t.mu.Unlock()

	if t.repo != nil {
		if err := t.repo.SavePosition(ctx, pos); err != nil {
			t.log.Error().Err(err).Str("symbol", pos.Symbol).Msg("failed to persist position")
		}
	}

	switch {
	case pos.Size == 0 && existed:
		t.bus.Publish(events.Event{Type: events.EventPositionClosed, Data: map[string]interface{}{
			"symbol": previous.Symbol, "side": previous.Side, "realizedPnl": realizedPnl,
			"realizedPnlPercent": realizedPnlPercent(previous, realizedPnl),
		}})
	case pos.Size != 0 && !existed:
		t.bus.Publish(events.Event{Type: events.EventPositionOpened, Data: map[string]interface{}{"position": pos}})
	case pos.Size != 0 && existed:
		t.bus.Publish(events.Event{Type: events.EventPnLUpdate, Data: map[string]interface{}{
			"symbol": pos.Symbol, "pnl": pos.UnrealizedPnl, "pnlPct": pnlPercent(pos),
		}})
	}
}

// pnlPercent is unrealizedPnl / positionValue * 100, guarded against a
// zero-value position (no avgPrice or size yet reported).
func pnlPercent(pos model.TrackedPosition) float64 {
	value := pos.PositionValue()
	if value == 0 {
		return 0
	}
	return pos.UnrealizedPnl / value * 100
}

// realizedPnlPercent expresses a closed trade's realized PnL against
// the notional it was risking, for consumers (the circuit breaker) that
// reason about loss streaks in percent terms rather than currency.
func realizedPnlPercent(closed model.TrackedPosition, realizedPnl float64) float64 {
	value := closed.PositionValue()
	if value == 0 {
		return 0
	}
	return realizedPnl / value * 100
}

// Get returns the current tracked position for a symbol, if open.
func (t *Tracker) Get(symbol string) (model.TrackedPosition, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	pos, ok := t.positions[symbol]
	return pos, ok
}

// All returns a snapshot of every currently open position.
func (t *Tracker) All() []model.TrackedPosition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.TrackedPosition, 0, len(t.positions))
	for _, pos := range t.positions {
		out = append(out, pos)
	}
	return out
}

// SetStopLoss and SetTakeProfit record the exit levels currently
// resting on the exchange, so the two-layer SL and trailing managers
// can read back what is actually working without a round trip.
func (t *Tracker) SetStopLoss(symbol string, price *float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pos, ok := t.positions[symbol]; ok {
		pos.StopLoss = price
		t.positions[symbol] = pos
	}
}

func (t *Tracker) SetTakeProfit(symbol string, price *float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pos, ok := t.positions[symbol]; ok {
		pos.TakeProfit = price
		t.positions[symbol] = pos
	}
}

// parsePosition converts one raw position-topic entry into a
// TrackedPosition. Numeric fields arrive as strings on the wire.
func parsePosition(raw map[string]interface{}) (model.TrackedPosition, bool) {
	symbol, ok := raw["symbol"].(string)
	if !ok || symbol == "" {
		return model.TrackedPosition{}, false
	}

	size := parseFloat(raw["size"])
	side := model.SideLong
	if s, ok := raw["side"].(string); ok && s == "Sell" {
		side = model.SideShort
	}

	pos := model.TrackedPosition{
		Symbol:        symbol,
		Side:          side,
		Size:          size,
		AvgPrice:      parseFloat(raw["avgPrice"]),
		Leverage:      int(parseFloat(raw["leverage"])),
		UnrealizedPnl: parseFloat(raw["unrealisedPnl"]),
		MarkPrice:     parseFloat(raw["markPrice"]),
		LiqPrice:      parseFloat(raw["liqPrice"]),
		UpdatedAt:     time.Now(),
	}
	return pos, true
}

func parseFloat(v interface{}) float64 {
	switch val := v.(type) {
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0
		}
		return f
	case float64:
		return val
	default:
		return 0
	}
}
