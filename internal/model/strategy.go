package model

// Bias is a directional orientation.
type Bias string

const (
	BiasLong    Bias = "LONG"
	BiasShort   Bias = "SHORT"
	BiasNeutral Bias = "NEUTRAL"
)

// Trend is the coarse market regime derived from structure analysis.
type Trend string

const (
	TrendUp     Trend = "UPTREND"
	TrendDown   Trend = "DOWNTREND"
	TrendRanging Trend = "RANGING"
)

// StrategyID identifies a fixed quality tier produced by the strategy
// engine's strategy-selection priority.
type StrategyID string

const (
	StrategyS101 StrategyID = "S101" // best: supertrend + SMA200 aligned
	StrategyS102 StrategyID = "S102" // good: supertrend + EMA1000 aligned
	StrategyS103 StrategyID = "S103" // aggressive: supertrend only
)

// StructureEvent marks a break-of-structure or change-of-character at a
// given price/time, relative to the swing it broke.
type StructureEventKind string

const (
	StructureBOS   StructureEventKind = "BOS"
	StructureCHoCH StructureEventKind = "CHoCH"
)

type StructureEvent struct {
	Kind      StructureEventKind
	Price     float64
	AtTime    int64
	BrokeSwing float64
}

// MASnapshot reports a single moving-average reference level plus its
// relation to the last close.
type MASnapshot struct {
	Value        float64
	PriceAbove   bool
	PriceBelow   bool
	DistancePct  float64 // signed: (price-value)/value*100
}

// SupertrendSnapshot reports the supertrend line and active direction.
type SupertrendSnapshot struct {
	Value      float64
	Direction  Bias
	UpperBand  float64
	LowerBand  float64
	DistancePct float64
}

// KeyLevels are the swing levels a strategy engine derives per close.
// ProtectedSwingHigh/Low is the level against which an in-force position
// on the corresponding side is judged invalid.
type KeyLevels struct {
	ProtectedSwingHigh *float64
	ProtectedSwingLow  *float64
	LastSwingHigh      *float64
	LastSwingLow       *float64
}

// StrategySnapshot is the full indicator read-out at a single candle
// close, embedded in StrategyState.
type StrategySnapshot struct {
	Supertrend     SupertrendSnapshot
	SMA200         MASnapshot
	EMA1000        MASnapshot
	StructureBias  Bias
	Trend          Trend
	LastBOS        *StructureEvent
	LastCHoCH      *StructureEvent
	LastPrice      float64
}

// StrategyState is emitted atomically on every candle close for a
// symbol whose configured timeframe matches the closed candle.
type StrategyState struct {
	Symbol          string
	Timeframe       string
	Timestamp       int64
	CandleCloseTime int64
	Bias            Bias
	AllowLongEntry  bool
	AllowShortEntry bool
	StrategyID      *StrategyID
	KeyLevels       KeyLevels
	Snapshot        StrategySnapshot
}
