package model

import "time"

// SLRule selects how the strategic (local) stop-loss price is derived.
type SLRule string

const (
	SLRuleSwing      SLRule = "SWING"
	SLRuleSupertrend SLRule = "SUPERTREND"
	SLRulePrice      SLRule = "PRICE"
	SLRuleNone       SLRule = "NONE"
)

// TPRule selects how take-profit is derived.
type TPRule string

const (
	TPRuleNone  TPRule = "NONE"
	TPRuleRR    TPRule = "RR"
	TPRulePrice TPRule = "PRICE"
)

// TrailMode selects the trailing strategy applied to the strategic SL.
type TrailMode string

const (
	TrailModeSupertrend TrailMode = "SUPERTREND"
	TrailModeStructure  TrailMode = "STRUCTURE"
	TrailModeNone       TrailMode = "NONE"
)

// ContractStatus is the lifecycle status of a trade contract.
type ContractStatus string

const (
	ContractPending   ContractStatus = "PENDING"
	ContractExecuted  ContractStatus = "EXECUTED"
	ContractRejected  ContractStatus = "REJECTED"
	ContractCancelled ContractStatus = "CANCELLED"
)

// RejectReason enumerates the machine-readable reasons a contract, or an
// entry gate, can be denied.
type RejectReason string

const (
	RejectInvalidRisk       RejectReason = "INVALID_RISK_PERCENT"
	RejectMissingSLPrice    RejectReason = "MISSING_SL_PRICE"
	RejectMissingTPPrice    RejectReason = "MISSING_TP_PRICE"
	RejectMissingTPRR       RejectReason = "MISSING_TP_RR"
	RejectAntiRage          RejectReason = "ANTI_RAGE"
	RejectPaused            RejectReason = "PAUSED"
	RejectAlreadyInPosition RejectReason = "ALREADY_IN_POSITION"
	RejectExchangeRefused   RejectReason = "EXCHANGE_REFUSED"
	RejectNotImplemented    RejectReason = "NOT_IMPLEMENTED"
)

// TradeContract is the validated, defaulted specification for an entry,
// plus the execution detail filled in once it is carried out.
type TradeContract struct {
	ID        string
	CreatedAt time.Time
	Symbol    string
	Side      Side

	RiskPercent float64
	Leverage    int

	SLRule             SLRule
	SLPrice            *float64
	EmergencySLPercent float64

	TPRule  TPRule
	TPPrice *float64
	TPRR    *float64

	TrailMode TrailMode

	Status       ContractStatus
	RejectReason RejectReason

	// Execution detail, populated once EXECUTED.
	OrderID        string
	EntryPrice     float64
	PositionSize   float64
	ActualSLPrice  float64
	ActualTPPrice  float64
	LeverageClamped bool
}

// Intent is the structured action the external parser produces from a
// raw user command.
type IntentAction string

const (
	ActionEnterLong    IntentAction = "ENTER_LONG"
	ActionEnterShort   IntentAction = "ENTER_SHORT"
	ActionClose        IntentAction = "CLOSE"
	ActionClosePartial IntentAction = "CLOSE_PARTIAL"
	ActionMoveSL       IntentAction = "MOVE_SL"
	ActionPause        IntentAction = "PAUSE"
	ActionResume       IntentAction = "RESUME"
	ActionWatchCreate  IntentAction = "WATCH_CREATE"
	ActionWatchCancel  IntentAction = "WATCH_CANCEL"
	ActionInfo         IntentAction = "INFO"
	ActionOpinion      IntentAction = "OPINION"
	ActionUnknown      IntentAction = "UNKNOWN"
)

type Intent struct {
	Action        IntentAction
	Symbol        string
	RiskPercent   *float64
	Leverage      *int
	SLRule        *SLRule
	SLPrice       *float64
	TPRule        *TPRule
	TPPrice       *float64
	TPRR          *float64
	TrailMode     *TrailMode
	ClosePercent  *float64
	NewSLPrice    *float64
	Confidence    *float64
	Clarification *string
	WatchID       string
	Watch         *WatchRule
}
