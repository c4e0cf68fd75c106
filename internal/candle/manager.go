// Package candle maintains, per (symbol, timeframe), an ordered ring of
// candles backfilled from REST and kept current by the exchange's kline
// stream.
package candle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"strategybot/internal/events"
	"strategybot/internal/exchange"
	"strategybot/internal/model"
)

const (
	// DefaultBackfillCandles is the default ring depth maintained per series.
	DefaultBackfillCandles = 1200
	// MaxBatchSize is the largest single REST page pulled per backfill request.
	MaxBatchSize = 200
	// GapToleranceIntervals is how many missed closes trigger a reconnect backfill.
	GapToleranceIntervals = 5
	// FlushInterval is how often pending closed candles are batch-persisted.
	FlushInterval = 5 * time.Second
)

// Repository persists candles. Implemented by internal/persistence.
type Repository interface {
	SaveCandles(ctx context.Context, candles []model.Candle) error
}

// Manager owns the in-memory candle rings for every subscribed
// (symbol, timeframe) pair.
type Manager struct {
	mu            sync.RWMutex
	series        map[model.SeriesKey][]model.Candle
	lastConfirmed map[model.SeriesKey]int64

	client exchange.Client
	stream exchange.KlineStream
	repo   Repository
	bus    *events.Bus
	log    zerolog.Logger

	backfillDepth int

	pendingMu sync.Mutex
	pending   []model.Candle
}

// New constructs a candle Manager. repo may be nil, in which case
// persistence is a no-op (useful for tests and dry-run mode).
func New(client exchange.Client, stream exchange.KlineStream, repo Repository, bus *events.Bus, log zerolog.Logger) *Manager {
	return &Manager{
		series:        make(map[model.SeriesKey][]model.Candle),
		lastConfirmed: make(map[model.SeriesKey]int64),
		client:        client,
		stream:        stream,
		repo:          repo,
		bus:           bus,
		log:           log.With().Str("component", "candle_manager").Logger(),
		backfillDepth: DefaultBackfillCandles,
	}
}

// Subscribe backfills up to backfillDepth candles for (symbol,
// timeframe) via repeated bounded-batch REST pulls, persists them, then
// joins the live kline stream.
func (m *Manager) Subscribe(ctx context.Context, symbol, timeframe string) error {
	candles, err := m.backfill(ctx, symbol, timeframe, m.backfillDepth)
	if err != nil {
		return fmt.Errorf("candle: backfill %s@%s: %w", symbol, timeframe, err)
	}

	key := model.SeriesKey{Symbol: symbol, Timeframe: timeframe}
	m.mu.Lock()
	m.series[key] = candles
	if len(candles) > 0 {
		m.lastConfirmed[key] = candles[len(candles)-1].OpenTime
	}
	m.mu.Unlock()

	if len(candles) > 0 {
		m.enqueuePersist(candles)
	}

	if m.stream == nil {
		return nil
	}
	if err := m.stream.Subscribe(symbol, timeframe); err != nil {
		return fmt.Errorf("candle: subscribe stream %s@%s: %w", symbol, timeframe, err)
	}
	return nil
}

// backfill pages backward from "now" in batches of at most
// MaxBatchSize, stitching pages together by the oldest-candle openTime
// minus one, until limit candles have been gathered or the exchange
// returns an empty page.
func (m *Manager) backfill(ctx context.Context, symbol, timeframe string, limit int) ([]model.Candle, error) {
	var all []model.Candle
	end := int64(0) // 0 = exchange default (now)

	for len(all) < limit {
		batch := limit - len(all)
		if batch > MaxBatchSize {
			batch = MaxBatchSize
		}
		page, err := m.client.GetKlines(ctx, symbol, timeframe, batch, 0, end)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		all = append(page, all...)
		oldest := page[0]
		end = oldest.OpenTime - 1
	}

	sort.Slice(all, func(i, j int) bool { return all[i].OpenTime < all[j].OpenTime })
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

// Run consumes the kline stream until ctx is cancelled, updating rings
// and emitting candleUpdate/candleClose events. It also runs the
// periodic flush-to-persistence ticker.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()

	var streamEvents <-chan exchange.KlineEvent
	if m.stream != nil {
		streamEvents = m.stream.Events()
	}

	for {
		select {
		case <-ctx.Done():
			m.flush(context.Background())
			return
		case <-ticker.C:
			m.flush(ctx)
		case ev, ok := <-streamEvents:
			if !ok {
				streamEvents = nil
				continue
			}
			m.handleKlineEvent(ev)
		}
	}
}

func (m *Manager) handleKlineEvent(ev exchange.KlineEvent) {
	key := model.SeriesKey{Symbol: ev.Symbol, Timeframe: ev.Timeframe}

	m.mu.Lock()
	series := m.series[key]
	n := len(series)

	lastConfirmedOpen, haveConfirmed := m.lastConfirmed[key]
	if !haveConfirmed {
		lastConfirmedOpen = -1
	}

	if n > 0 && series[n-1].OpenTime == ev.Candle.OpenTime {
		series[n-1] = ev.Candle
	} else {
		series = append(series, ev.Candle)
	}

	closed := ev.Closed && ev.Candle.CloseTime < time.Now().UnixMilli() && ev.Candle.OpenTime > lastConfirmedOpen
	if closed {
		m.lastConfirmed[key] = ev.Candle.OpenTime
	}
	if len(series) > m.backfillDepth {
		series = series[len(series)-m.backfillDepth:]
	}
	m.series[key] = series
	m.mu.Unlock()

	if closed {
		m.enqueuePersist([]model.Candle{ev.Candle})
		m.bus.Publish(events.Event{
			Type: events.EventCandleClose,
			Data: map[string]interface{}{
				"symbol":    ev.Symbol,
				"timeframe": ev.Timeframe,
				"candle":    ev.Candle,
			},
		})
	} else {
		m.bus.Publish(events.Event{
			Type: events.EventCandleUpdate,
			Data: map[string]interface{}{
				"symbol":    ev.Symbol,
				"timeframe": ev.Timeframe,
				"candle":    ev.Candle,
			},
		})
	}
}

// CheckGap computes the expected last-closed open time for an interval
// and, if the local series has fallen more than GapToleranceIntervals
// behind, triggers a bounded backfill to close the gap. Intended to be
// called on stream (re)connect.
func (m *Manager) CheckGap(ctx context.Context, symbol, timeframe string, intervalMs int64) error {
	key := model.SeriesKey{Symbol: symbol, Timeframe: timeframe}

	m.mu.RLock()
	lastConfirmedOpen := m.lastConfirmed[key]
	m.mu.RUnlock()

	expected := (time.Now().UnixMilli() / intervalMs) * intervalMs
	if lastConfirmedOpen < expected-GapToleranceIntervals*intervalMs {
		candles, err := m.backfill(ctx, symbol, timeframe, m.backfillDepth)
		if err != nil {
			return fmt.Errorf("candle: gap backfill %s@%s: %w", symbol, timeframe, err)
		}
		m.mu.Lock()
		m.series[key] = candles
		if len(candles) > 0 {
			m.lastConfirmed[key] = candles[len(candles)-1].OpenTime
		}
		m.mu.Unlock()
		m.enqueuePersist(candles)
	}
	return nil
}

// Series returns a copy of the current candle ring for (symbol, timeframe).
func (m *Manager) Series(symbol, timeframe string) []model.Candle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	series := m.series[model.SeriesKey{Symbol: symbol, Timeframe: timeframe}]
	out := make([]model.Candle, len(series))
	copy(out, series)
	return out
}

func (m *Manager) enqueuePersist(candles []model.Candle) {
	if m.repo == nil {
		return
	}
	m.pendingMu.Lock()
	m.pending = append(m.pending, candles...)
	m.pendingMu.Unlock()
}

func (m *Manager) flush(ctx context.Context) {
	if m.repo == nil {
		return
	}
	m.pendingMu.Lock()
	if len(m.pending) == 0 {
		m.pendingMu.Unlock()
		return
	}
	batch := m.pending
	m.pending = nil
	m.pendingMu.Unlock()

	if err := m.repo.SaveCandles(ctx, batch); err != nil {
		m.log.Error().Err(err).Int("count", len(batch)).Msg("failed to flush candles")
	}
}
