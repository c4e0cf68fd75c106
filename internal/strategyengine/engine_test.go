package strategyengine

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/model"
)

type fakeSeriesProvider struct {
	series []model.Candle
}

func (f *fakeSeriesProvider) Series(symbol, timeframe string) []model.Candle {
	return f.series
}

type fakeRepository struct {
	mu    sync.Mutex
	saved []model.StrategyState
}

func (f *fakeRepository) SaveStrategyState(state model.StrategyState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, state)
	return nil
}

func (f *fakeRepository) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func trendingSeries(n int, start, step float64) []model.Candle {
	candles := make([]model.Candle, n)
	price := start
	r := rand.New(rand.NewSource(7))
	for i := 0; i < n; i++ {
		open := price
		price += step + (r.Float64()-0.5)*step*0.1
		high := price + 1
		low := price - 1
		if open > high {
			high = open + 0.5
		}
		if open < low {
			low = open - 0.5
		}
		candles[i] = model.Candle{
			Symbol:    "BTCUSDT",
			Timeframe: "15",
			OpenTime:  int64(i) * 60000,
			CloseTime: int64(i+1) * 60000,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
		}
	}
	return candles
}

func testConfig() model.SymbolConfig {
	cfg := model.DefaultSymbolConfig("BTCUSDT", "15")
	cfg.EMA1000Period = 30
	cfg.SMA200Period = 20
	cfg.SwingLookback = 2
	cfg.SupertrendPeriod = 5
	return cfg
}

func TestOnCandleCloseSkipsWhenNotEnoughCandlesBuffered(t *testing.T) {
	series := trendingSeries(10, 100, 2)
	provider := &fakeSeriesProvider{series: series}
	repo := &fakeRepository{}
	bus := events.NewBus()
	engine := New(provider, repo, bus, zerolog.Nop())
	engine.Configure(testConfig())

	engine.OnCandleClose(events.Event{Data: map[string]interface{}{
		"symbol": "BTCUSDT", "timeframe": "15", "candle": series[len(series)-1],
	}})

	if repo.count() != 0 {
		t.Errorf("expected no persisted state with insufficient candles, got %d", repo.count())
	}
}

func TestOnCandleCloseExactEMA1000PeriodCandlesProducesNoState(t *testing.T) {
	cfg := testConfig()
	series := trendingSeries(cfg.EMA1000Period, 100, 2)
	provider := &fakeSeriesProvider{series: series}
	repo := &fakeRepository{}
	bus := events.NewBus()
	engine := New(provider, repo, bus, zerolog.Nop())
	engine.Configure(cfg)

	engine.OnCandleClose(events.Event{Data: map[string]interface{}{
		"symbol": "BTCUSDT", "timeframe": "15", "candle": series[len(series)-1],
	}})

	if repo.count() != 0 {
		t.Errorf("expected no state with exactly EMA1000Period candles, got %d", repo.count())
	}
}

func TestOnCandleCloseEMA1000PeriodPlusOneCandlesProducesState(t *testing.T) {
	cfg := testConfig()
	series := trendingSeries(cfg.EMA1000Period+1, 100, 2)
	provider := &fakeSeriesProvider{series: series}
	repo := &fakeRepository{}
	bus := events.NewBus()
	engine := New(provider, repo, bus, zerolog.Nop())
	engine.Configure(cfg)

	engine.OnCandleClose(events.Event{Data: map[string]interface{}{
		"symbol": "BTCUSDT", "timeframe": "15", "candle": series[len(series)-1],
	}})

	if repo.count() != 1 {
		t.Errorf("expected one persisted state with EMA1000Period+1 candles, got %d", repo.count())
	}
}

func TestOnCandleCloseIgnoresUnconfiguredSymbol(t *testing.T) {
	series := trendingSeries(40, 100, 2)
	provider := &fakeSeriesProvider{series: series}
	repo := &fakeRepository{}
	bus := events.NewBus()
	engine := New(provider, repo, bus, zerolog.Nop())
	// no Configure call for ETHUSDT

	engine.OnCandleClose(events.Event{Data: map[string]interface{}{
		"symbol": "ETHUSDT", "timeframe": "15", "candle": series[len(series)-1],
	}})

	if repo.count() != 0 {
		t.Errorf("expected no persisted state for an unconfigured symbol, got %d", repo.count())
	}
}

func TestOnCandleCloseIgnoresMismatchedTimeframe(t *testing.T) {
	series := trendingSeries(40, 100, 2)
	provider := &fakeSeriesProvider{series: series}
	repo := &fakeRepository{}
	bus := events.NewBus()
	engine := New(provider, repo, bus, zerolog.Nop())
	engine.Configure(testConfig())

	engine.OnCandleClose(events.Event{Data: map[string]interface{}{
		"symbol": "BTCUSDT", "timeframe": "60", "candle": series[len(series)-1],
	}})

	if repo.count() != 0 {
		t.Errorf("expected no persisted state for a non-matching timeframe, got %d", repo.count())
	}
}

func TestOnCandleCloseEmitsStateUpdateAndPersists(t *testing.T) {
	series := trendingSeries(40, 100, 2)
	provider := &fakeSeriesProvider{series: series}
	repo := &fakeRepository{}
	bus := events.NewBus()

	received := make(chan events.Event, 1)
	bus.Subscribe(events.EventStateUpdate, func(e events.Event) { received <- e })

	engine := New(provider, repo, bus, zerolog.Nop())
	engine.Configure(testConfig())

	engine.OnCandleClose(events.Event{Data: map[string]interface{}{
		"symbol": "BTCUSDT", "timeframe": "15", "candle": series[len(series)-1],
	}})

	select {
	case e := <-received:
		state, ok := e.Data["state"].(model.StrategyState)
		if !ok {
			t.Fatal("expected state payload of type model.StrategyState")
		}
		if state.Symbol != "BTCUSDT" {
			t.Errorf("state.Symbol = %q, want BTCUSDT", state.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stateUpdate event")
	}

	if repo.count() != 1 {
		t.Errorf("expected exactly one persisted state, got %d", repo.count())
	}
}

func TestSelectStrategyPriority(t *testing.T) {
	long := model.SupertrendSnapshot{Direction: model.BiasLong}

	aboveSMA := model.MASnapshot{PriceAbove: true}
	aboveEMA := model.MASnapshot{PriceAbove: true}
	neither := model.MASnapshot{}

	if id := selectStrategy(long, aboveSMA, neither); id == nil || *id != model.StrategyS101 {
		t.Errorf("expected S101 when supertrend+SMA200 aligned, got %v", id)
	}
	if id := selectStrategy(long, neither, aboveEMA); id == nil || *id != model.StrategyS102 {
		t.Errorf("expected S102 when supertrend+EMA1000 aligned (no SMA200), got %v", id)
	}
	if id := selectStrategy(long, neither, neither); id == nil || *id != model.StrategyS103 {
		t.Errorf("expected S103 when supertrend aligns with neither MA, got %v", id)
	}
	if id := selectStrategy(model.SupertrendSnapshot{}, neither, neither); id != nil {
		t.Errorf("expected nil strategyId when supertrend has no direction, got %v", id)
	}
}
