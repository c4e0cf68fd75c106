package model

// SymbolConfig is the per-symbol strategy configuration the strategy
// engine recomputes indicators against.
type SymbolConfig struct {
	Symbol               string
	Timeframe            string
	SupertrendPeriod     int
	SupertrendMultiplier float64
	SMA200Period         int
	EMA1000Period        int
	SwingLookback        int
	Enabled              bool
}

// DefaultSymbolConfig returns the spec's documented per-symbol defaults
// for a given symbol/timeframe.
func DefaultSymbolConfig(symbol, timeframe string) SymbolConfig {
	return SymbolConfig{
		Symbol:               symbol,
		Timeframe:            timeframe,
		SupertrendPeriod:     5,
		SupertrendMultiplier: 8.0,
		SMA200Period:         200,
		EMA1000Period:        1000,
		SwingLookback:        5,
		Enabled:              true,
	}
}

// GlobalConfig holds the cross-symbol trading defaults.
type GlobalConfig struct {
	MaxLeverage        int
	DefaultLeverage    int
	DefaultRiskPercent float64
	AntiRageLockTTLSec int
}

// DefaultGlobalConfig returns the spec's documented global defaults.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		MaxLeverage:        10,
		DefaultLeverage:    5,
		DefaultRiskPercent: 0.5,
		AntiRageLockTTLSec: 900,
	}
}
