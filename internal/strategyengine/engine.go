// Package strategyengine recomputes a symbol's indicator snapshot on
// every matching candle close and emits the resulting strategy state.
package strategyengine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/indicator"
	"strategybot/internal/model"
)

// Repository persists a strategy-state snapshot on every emission.
// Implemented by internal/persistence.
type Repository interface {
	SaveStrategyState(state model.StrategyState) error
}

// SeriesProvider supplies the buffered candle ring for a symbol's
// configured timeframe. Implemented by internal/candle.Manager.
type SeriesProvider interface {
	Series(symbol, timeframe string) []model.Candle
}

// Engine holds per-symbol configuration and the last-emitted state, so
// it can detect bias/supertrend flips across consecutive closes.
type Engine struct {
	mu      sync.Mutex
	configs map[string]model.SymbolConfig
	last    map[string]model.StrategyState

	candles SeriesProvider
	repo    Repository
	bus     *events.Bus
	log     zerolog.Logger
}

// New constructs a strategy Engine. repo may be nil (no-op persistence).
func New(candles SeriesProvider, repo Repository, bus *events.Bus, log zerolog.Logger) *Engine {
	return &Engine{
		configs: make(map[string]model.SymbolConfig),
		last:    make(map[string]model.StrategyState),
		candles: candles,
		repo:    repo,
		bus:     bus,
		log:     log.With().Str("component", "strategy_engine").Logger(),
	}
}

// Configure registers or replaces a symbol's strategy configuration.
func (e *Engine) Configure(cfg model.SymbolConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.configs[cfg.Symbol] = cfg
}

// Last returns the most recently emitted strategy state for a symbol.
func (e *Engine) Last(symbol string) (model.StrategyState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.last[symbol]
	return state, ok
}

// OnCandleClose is wired to events.EventCandleClose. It recomputes the
// full indicator snapshot for the closed candle's symbol, provided the
// candle's timeframe matches the symbol's configured timeframe, and
// there are enough buffered candles to seed EMA1000.
func (e *Engine) OnCandleClose(ev events.Event) {
	symbol, _ := ev.Data["symbol"].(string)
	timeframe, _ := ev.Data["timeframe"].(string)
	closedCandle, _ := ev.Data["candle"].(model.Candle)

	e.mu.Lock()
	cfg, configured := e.configs[symbol]
	e.mu.Unlock()
	if !configured || !cfg.Enabled || cfg.Timeframe != timeframe {
		return
	}

	series := e.candles.Series(symbol, timeframe)
	if len(series) <= cfg.EMA1000Period {
		return
	}

	state := e.recompute(cfg, series, closedCandle)

	e.mu.Lock()
	prev, hadPrev := e.last[symbol]
	e.last[symbol] = state
	e.mu.Unlock()

	if e.repo != nil {
		if err := e.repo.SaveStrategyState(state); err != nil {
			e.log.Error().Err(err).Str("symbol", symbol).Msg("failed to persist strategy state")
		}
	}

	e.bus.Publish(events.Event{
		Type: events.EventStateUpdate,
		Data: map[string]interface{}{"state": state},
	})

	if hadPrev {
		if prev.Bias != state.Bias {
			e.bus.Publish(events.Event{
				Type: events.EventBiasFlip,
				Data: map[string]interface{}{"symbol": symbol, "from": prev.Bias, "to": state.Bias},
			})
		}
		if indicator.SupertrendFlipped(prev.Snapshot.Supertrend, state.Snapshot.Supertrend) {
			e.bus.Publish(events.Event{
				Type: events.EventSupertrendFlip,
				Data: map[string]interface{}{
					"symbol": symbol,
					"from":   prev.Snapshot.Supertrend.Direction,
					"to":     state.Snapshot.Supertrend.Direction,
				},
			})
		}
	}
}

func (e *Engine) recompute(cfg model.SymbolConfig, series []model.Candle, closed model.Candle) model.StrategyState {
	supertrend := indicator.Supertrend(series, cfg.SupertrendPeriod, cfg.SupertrendMultiplier)
	sma200 := indicator.MASnapshot(series, indicator.SMA(series, cfg.SMA200Period))
	ema1000 := indicator.MASnapshot(series, indicator.EMA(series, cfg.EMA1000Period))
	structure := indicator.AnalyzeStructure(series, cfg.SwingLookback)

	strategyID := selectStrategy(supertrend, sma200, ema1000)

	snapshot := model.StrategySnapshot{
		Supertrend:    supertrend,
		SMA200:        sma200,
		EMA1000:       ema1000,
		StructureBias: structure.Bias,
		Trend:         structure.Trend,
		LastBOS:       structure.LastBOS,
		LastCHoCH:     structure.LastCHoCH,
		LastPrice:     closed.Close,
	}

	return model.StrategyState{
		Symbol:          cfg.Symbol,
		Timeframe:       cfg.Timeframe,
		Timestamp:       time.Now().UnixMilli(),
		CandleCloseTime: closed.CloseTime,
		Bias:            structure.Bias,
		AllowLongEntry:  supertrend.Direction == model.BiasLong,
		AllowShortEntry: supertrend.Direction == model.BiasShort,
		StrategyID:      strategyID,
		KeyLevels:       structure.Protected,
		Snapshot:        snapshot,
	}
}

// selectStrategy picks strategyId by priority: S101 (supertrend + SMA200
// aligned) beats S102 (supertrend + EMA1000 aligned) beats S103
// (supertrend alone); nil when supertrend has no active direction.
func selectStrategy(supertrend model.SupertrendSnapshot, sma200, ema1000 model.MASnapshot) *model.StrategyID {
	switch supertrend.Direction {
	case model.BiasLong:
		if sma200.PriceAbove {
			return strategyPtr(model.StrategyS101)
		}
		if ema1000.PriceAbove {
			return strategyPtr(model.StrategyS102)
		}
		return strategyPtr(model.StrategyS103)
	case model.BiasShort:
		if sma200.PriceBelow {
			return strategyPtr(model.StrategyS101)
		}
		if ema1000.PriceBelow {
			return strategyPtr(model.StrategyS102)
		}
		return strategyPtr(model.StrategyS103)
	default:
		return nil
	}
}

func strategyPtr(id model.StrategyID) *model.StrategyID {
	return &id
}
