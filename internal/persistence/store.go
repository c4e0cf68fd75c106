// Package persistence is the pgx-backed storage layer behind the five
// narrow Repository interfaces declared by internal/watch,
// internal/strategyengine, internal/candle, internal/execution/order and
// internal/execution/position. It is grounded on the teacher's
// internal/database package: a *pgxpool.Pool held behind a thin wrapper,
// upsert-by-primary-key writes, and JSON-marshaled columns for nested
// structs, matching internal/database/repository_futures.go and
// internal/database/repository.go's conditionsJSON/configJSON pattern.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"strategybot/internal/candle"
	"strategybot/internal/execution/order"
	"strategybot/internal/execution/position"
	"strategybot/internal/model"
	"strategybot/internal/strategyengine"
	"strategybot/internal/watch"
)

var (
	_ watch.Repository          = (*Store)(nil)
	_ strategyengine.Repository = (*Store)(nil)
	_ candle.Repository         = (*Store)(nil)
	_ order.Repository          = (*Store)(nil)
	_ position.Repository       = (*Store)(nil)
)

// Store satisfies watch.Repository, strategyengine.Repository,
// candle.Repository, order.Repository and position.Repository against a
// single Postgres schema. One pool, one store: the five interfaces are
// narrow enough that splitting them across separate types would only
// scatter the SQL for what is, operationally, a single trading database.
type Store struct {
	pool *pgxpool.Pool
}

// Config mirrors the teacher's database.Config shape.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// New opens a connection pool and verifies it with a ping, matching
// internal/database.NewDB's construction sequence.
func New(ctx context.Context, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("persistence: parse config: %w", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("persistence: create pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persistence: ping: %w", err)
	}

	return &Store{pool: pool}, nil
}

// NewWithPool wraps an already-open pool, used by tests and by callers
// that manage pool lifecycle themselves.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveWatch implements watch.Repository with an upsert keyed on id,
// grounded on repository_futures.go's ON CONFLICT usage elsewhere in the
// teacher package for idempotent periodic-flush writers.
func (s *Store) SaveWatch(ctx context.Context, rule model.WatchRule) error {
	query := `
		INSERT INTO watch_rules (
			id, symbol, intended_side, trigger_type, threshold_pct, target_price,
			mode, expiry_time, preset, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			threshold_pct = EXCLUDED.threshold_pct,
			target_price  = EXCLUDED.target_price,
			status        = EXCLUDED.status,
			updated_at    = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		rule.ID, rule.Symbol, rule.IntendedSide, rule.TriggerType, rule.ThresholdPct,
		rule.TargetPrice, rule.Mode, rule.ExpiryTime, rule.Preset, rule.Status,
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("persistence: save watch %s: %w", rule.ID, err)
	}
	return nil
}

// SaveStrategyState implements strategyengine.Repository. Strategy state
// is recomputed on every closed candle, so this is an insert-only append
// to an audit trail rather than an upsert: KeyLevels and Snapshot are
// marshaled to JSON the way repository.go marshals ConditionsMet.
func (s *Store) SaveStrategyState(state model.StrategyState) error {
	keyLevels, err := json.Marshal(state.KeyLevels)
	if err != nil {
		return fmt.Errorf("persistence: marshal key levels for %s: %w", state.Symbol, err)
	}
	snapshot, err := json.Marshal(state.Snapshot)
	if err != nil {
		return fmt.Errorf("persistence: marshal snapshot for %s: %w", state.Symbol, err)
	}

	query := `
		INSERT INTO strategy_states (
			symbol, timeframe, timestamp, candle_close_time, bias,
			allow_long_entry, allow_short_entry, strategy_id, key_levels, snapshot
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	var strategyID interface{}
	if state.StrategyID != nil {
		strategyID = string(*state.StrategyID)
	}

	_, err = s.pool.Exec(context.Background(), query,
		state.Symbol, state.Timeframe, state.Timestamp, state.CandleCloseTime, state.Bias,
		state.AllowLongEntry, state.AllowShortEntry, strategyID, keyLevels, snapshot,
	)
	if err != nil {
		return fmt.Errorf("persistence: save strategy state %s/%s: %w", state.Symbol, state.Timeframe, err)
	}
	return nil
}

// SaveCandles implements candle.Repository as a batched upsert keyed on
// (symbol, timeframe, open_time), matching how the candle manager
// flushes its in-memory ring on a periodic ticker rather than per-tick.
func (s *Store) SaveCandles(ctx context.Context, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO candles (symbol, timeframe, open_time, close_time, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, timeframe, open_time) DO UPDATE SET
			close_time = EXCLUDED.close_time,
			open       = EXCLUDED.open,
			high       = EXCLUDED.high,
			low        = EXCLUDED.low,
			close      = EXCLUDED.close,
			volume     = EXCLUDED.volume`

	for _, c := range candles {
		batch.Queue(query, c.Symbol, c.Timeframe, c.OpenTime, c.CloseTime, c.Open, c.High, c.Low, c.Close, c.Volume)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < len(candles); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("persistence: save candle batch entry %d: %w", i, err)
		}
	}
	return nil
}

// SaveOrder implements execution/order.Repository with an upsert keyed on
// the local order id, following the same columns-plus-updated_at pattern
// as UpdateFuturesTrade.
func (s *Store) SaveOrder(ctx context.Context, order model.ManagedOrder) error {
	query := `
		INSERT INTO managed_orders (
			id, exchange_order_id, symbol, side, order_type, price, size,
			filled_size, avg_fill_price, status, trade_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			exchange_order_id = EXCLUDED.exchange_order_id,
			filled_size       = EXCLUDED.filled_size,
			avg_fill_price    = EXCLUDED.avg_fill_price,
			status            = EXCLUDED.status,
			updated_at        = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		order.ID, order.ExchangeOrderID, order.Symbol, order.Side, order.OrderType,
		order.Price, order.Size, order.FilledSize, order.AvgFillPrice, order.Status,
		order.TradeID, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("persistence: save order %s: %w", order.ID, err)
	}
	return nil
}

// SaveFill implements execution/order.Repository as an insert-only append,
// one row per execution report, keyed on the exchange's exec id.
func (s *Store) SaveFill(ctx context.Context, fill model.Fill) error {
	query := `
		INSERT INTO order_fills (exec_id, order_id, price, size, fee, filled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (exec_id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query, fill.ExecID, fill.OrderID, fill.Price, fill.Size, fill.Fee, fill.FilledAt)
	if err != nil {
		return fmt.Errorf("persistence: save fill %s: %w", fill.ExecID, err)
	}
	return nil
}

// SavePosition implements execution/position.Repository with an upsert
// keyed on symbol: a TrackedPosition is the exchange's current view, not
// a historical record, so each reconcile overwrites the prior row.
func (s *Store) SavePosition(ctx context.Context, position model.TrackedPosition) error {
	query := `
		INSERT INTO tracked_positions (
			symbol, side, size, avg_price, leverage, unrealized_pnl,
			mark_price, liq_price, stop_loss, take_profit, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (symbol) DO UPDATE SET
			side           = EXCLUDED.side,
			size           = EXCLUDED.size,
			avg_price      = EXCLUDED.avg_price,
			leverage       = EXCLUDED.leverage,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			mark_price     = EXCLUDED.mark_price,
			liq_price      = EXCLUDED.liq_price,
			stop_loss      = EXCLUDED.stop_loss,
			take_profit    = EXCLUDED.take_profit,
			updated_at     = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		position.Symbol, position.Side, position.Size, position.AvgPrice, position.Leverage,
		position.UnrealizedPnl, position.MarkPrice, position.LiqPrice, position.StopLoss,
		position.TakeProfit, position.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("persistence: save position %s: %w", position.Symbol, err)
	}
	return nil
}
