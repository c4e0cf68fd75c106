package persistence

import (
	"context"
	"fmt"
	"log"
)

// RunMigrations creates the tables backing the five Repository
// interfaces, following the teacher's migration style in
// internal/database/db_futures_migration.go: a flat slice of
// CREATE-TABLE-IF-NOT-EXISTS/CREATE-INDEX-IF-NOT-EXISTS statements run in
// order, each logged and wrapped on failure.
func (s *Store) RunMigrations(ctx context.Context) error {
	log.Println("Running strategy engine database migrations...")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS watch_rules (
			id VARCHAR(64) PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			intended_side VARCHAR(10) NOT NULL,
			trigger_type VARCHAR(20) NOT NULL,
			threshold_pct DECIMAL(10, 4) NOT NULL,
			target_price DECIMAL(20, 8),
			mode VARCHAR(20) NOT NULL,
			expiry_time TIMESTAMP NOT NULL,
			preset VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_watch_rules_symbol ON watch_rules(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_watch_rules_status ON watch_rules(status)`,

		`CREATE TABLE IF NOT EXISTS strategy_states (
			id BIGSERIAL PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			timeframe VARCHAR(10) NOT NULL,
			timestamp BIGINT NOT NULL,
			candle_close_time BIGINT NOT NULL,
			bias VARCHAR(20) NOT NULL,
			allow_long_entry BOOLEAN NOT NULL,
			allow_short_entry BOOLEAN NOT NULL,
			strategy_id VARCHAR(40),
			key_levels JSONB,
			snapshot JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_strategy_states_symbol_tf ON strategy_states(symbol, timeframe, candle_close_time DESC)`,

		`CREATE TABLE IF NOT EXISTS candles (
			symbol VARCHAR(20) NOT NULL,
			timeframe VARCHAR(10) NOT NULL,
			open_time BIGINT NOT NULL,
			close_time BIGINT NOT NULL,
			open DECIMAL(20, 8) NOT NULL,
			high DECIMAL(20, 8) NOT NULL,
			low DECIMAL(20, 8) NOT NULL,
			close DECIMAL(20, 8) NOT NULL,
			volume DECIMAL(24, 8) NOT NULL,
			PRIMARY KEY (symbol, timeframe, open_time)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candles_symbol_tf_close ON candles(symbol, timeframe, close_time DESC)`,

		`CREATE TABLE IF NOT EXISTS managed_orders (
			id VARCHAR(64) PRIMARY KEY,
			exchange_order_id VARCHAR(64) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			order_type VARCHAR(20) NOT NULL,
			price DECIMAL(20, 8),
			size DECIMAL(20, 8) NOT NULL,
			filled_size DECIMAL(20, 8) NOT NULL DEFAULT 0,
			avg_fill_price DECIMAL(20, 8),
			status VARCHAR(20) NOT NULL,
			trade_id VARCHAR(64),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_managed_orders_symbol ON managed_orders(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_managed_orders_trade_id ON managed_orders(trade_id)`,

		`CREATE TABLE IF NOT EXISTS order_fills (
			exec_id VARCHAR(64) PRIMARY KEY,
			order_id VARCHAR(64) NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			size DECIMAL(20, 8) NOT NULL,
			fee DECIMAL(20, 8) NOT NULL DEFAULT 0,
			filled_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_order_fills_order_id ON order_fills(order_id)`,

		`CREATE TABLE IF NOT EXISTS tracked_positions (
			symbol VARCHAR(20) PRIMARY KEY,
			side VARCHAR(10) NOT NULL,
			size DECIMAL(20, 8) NOT NULL,
			avg_price DECIMAL(20, 8) NOT NULL,
			leverage INTEGER NOT NULL,
			unrealized_pnl DECIMAL(20, 8) NOT NULL DEFAULT 0,
			mark_price DECIMAL(20, 8) NOT NULL,
			liq_price DECIMAL(20, 8),
			stop_loss DECIMAL(20, 8),
			take_profit DECIMAL(20, 8),
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for i, migration := range migrations {
		if _, err := s.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	log.Println("Strategy engine database migrations completed successfully")
	return nil
}
