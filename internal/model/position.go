package model

import "time"

// TrackedPosition is the authoritative, stream-reconciled view of an
// open position. It exists only while Size > 0.
type TrackedPosition struct {
	Symbol         string
	Side           Side
	Size           float64
	AvgPrice       float64
	Leverage       int
	UnrealizedPnl  float64
	MarkPrice      float64
	LiqPrice       float64
	StopLoss       *float64
	TakeProfit     *float64
	UpdatedAt      time.Time
}

// PositionValue is AvgPrice * Size, the notional used for PnL percent.
func (p TrackedPosition) PositionValue() float64 {
	return p.AvgPrice * p.Size
}

// WatchTriggerType enumerates the conditions a watch rule can fire on.
type WatchTriggerType string

const (
	TriggerCloserToSMA200    WatchTriggerType = "CLOSER_TO_SMA200"
	TriggerCloserToEMA1000   WatchTriggerType = "CLOSER_TO_EMA1000"
	TriggerCloserToSupertrend WatchTriggerType = "CLOSER_TO_SUPERTREND"
	TriggerPriceAbove        WatchTriggerType = "PRICE_ABOVE"
	TriggerPriceBelow        WatchTriggerType = "PRICE_BELOW"
)

// WatchMode selects whether a triggered watch merely notifies or
// auto-submits an entry intent.
type WatchMode string

const (
	WatchNotifyOnly WatchMode = "NOTIFY_ONLY"
	WatchAutoEnter  WatchMode = "AUTO_ENTER"
)

// WatchStatus is the lifecycle status of a watch rule.
type WatchStatus string

const (
	WatchActive    WatchStatus = "ACTIVE"
	WatchTriggered WatchStatus = "TRIGGERED"
	WatchExpired   WatchStatus = "EXPIRED"
	WatchCancelled WatchStatus = "CANCELLED"
)

// WatchPreset carries the entry parameters applied when an AUTO_ENTER
// watch fires.
type WatchPreset struct {
	RiskPercent float64
	SLRule      SLRule
	TrailMode   TrailMode
}

// WatchRule is a price/indicator-proximity trigger, optionally wired to
// auto-enter a position when it fires.
type WatchRule struct {
	ID            string
	Symbol        string
	IntendedSide  Side
	TriggerType   WatchTriggerType
	ThresholdPct  float64
	TargetPrice   *float64
	Mode          WatchMode
	ExpiryTime    time.Time
	Preset        WatchPreset
	Status        WatchStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
