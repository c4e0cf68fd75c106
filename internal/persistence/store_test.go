package persistence

import (
	"strategybot/internal/candle"
	"strategybot/internal/execution/order"
	"strategybot/internal/execution/position"
	"strategybot/internal/strategyengine"
	"strategybot/internal/watch"
)

// These are compile-time checks, not runnable assertions: Store has no
// pure logic of its own (every method is a single parameterized SQL
// statement), so the only correctness the package can verify without a
// live Postgres is that it actually satisfies the five narrow Repository
// interfaces it exists to serve. Query correctness needs a live Postgres
// and is not covered by tests in this package.
var (
	_ watch.Repository          = (*Store)(nil)
	_ strategyengine.Repository = (*Store)(nil)
	_ candle.Repository         = (*Store)(nil)
	_ order.Repository          = (*Store)(nil)
	_ position.Repository       = (*Store)(nil)
)
