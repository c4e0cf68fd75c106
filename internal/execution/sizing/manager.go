// Package sizing turns a risk percent into an order quantity. It
// implements orchestrator.PositionSizer, grounded on the teacher's
// percent-of-equity risk sizing (internal/risk.RiskManager.calculatePercentSize).
package sizing

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"strategybot/internal/execution/stoploss"
	"strategybot/internal/model"
)

// EquitySource reports current account equity in quote currency.
// Satisfied by a thin adapter over the exchange wallet stream/REST call.
type EquitySource interface {
	AccountEquity(ctx context.Context) (float64, error)
}

// PriceSource reports the most recent traded/mark price for a symbol.
// Satisfied by strategyengine.Engine (via its last StrategyState snapshot).
type PriceSource interface {
	LastPrice(symbol string) (float64, bool)
}

// Config holds sizing parameters not carried on the trade contract.
type Config struct {
	// EmergencySLPercent is the stop distance used as the sizing basis
	// when the contract itself does not resolve a strategic SL until
	// after entry (SUPERTREND/STRUCTURE modes). It mirrors the entry's
	// emergency SL distance, so position risk at fill time matches what
	// the exchange-resident stop would realize if hit immediately.
	EmergencySLPercent float64
}

// DefaultConfig mirrors the contract validator's own emergency SL default.
func DefaultConfig() Config {
	return Config{EmergencySLPercent: 4}
}

// Manager sizes entries as a percent of account equity risked against
// the emergency stop distance, the same risk-amount/risk-per-unit
// arithmetic as the teacher's RiskManager, adapted to the narrow
// PositionSizer contract (no explicit stop price parameter).
type Manager struct {
	equity EquitySource
	prices PriceSource
	config Config
	log    zerolog.Logger
}

// New constructs a Manager.
func New(equity EquitySource, prices PriceSource, config Config, log zerolog.Logger) *Manager {
	return &Manager{
		equity: equity,
		prices: prices,
		config: config,
		log:    log.With().Str("component", "sizing_manager").Logger(),
	}
}

// Size resolves riskPercent of current account equity against the
// emergency-SL distance from the symbol's last known price into a
// quantity in base units. leverage affects margin required to hold the
// position, not the risk-based quantity itself, so it is not used in
// the arithmetic here — consistent with the teacher's percent method.
func (m *Manager) Size(ctx context.Context, symbol string, side model.Side, riskPercent float64, leverage int) (float64, error) {
	balance, err := m.equity.AccountEquity(ctx)
	if err != nil {
		return 0, fmt.Errorf("sizing: account equity: %w", err)
	}
	if balance <= 0 {
		return 0, fmt.Errorf("sizing: non-positive account equity %.2f", balance)
	}

	price, ok := m.prices.LastPrice(symbol)
	if !ok || price <= 0 {
		return 0, fmt.Errorf("sizing: no reference price for %s", symbol)
	}

	stopPrice := stoploss.ComputeEmergencySL(price, side, m.config.EmergencySLPercent)
	riskPerUnit := math.Abs(price - stopPrice)
	if riskPerUnit == 0 {
		return 0, fmt.Errorf("sizing: zero risk-per-unit for %s", symbol)
	}

	riskAmount := balance * (riskPercent / 100)
	size := riskAmount / riskPerUnit

	m.log.Debug().
		Str("symbol", symbol).
		Float64("balance", balance).
		Float64("riskPercent", riskPercent).
		Float64("riskAmount", riskAmount).
		Float64("price", price).
		Float64("stopPrice", stopPrice).
		Int("leverage", leverage).
		Float64("size", size).
		Msg("sized entry")

	return size, nil
}
