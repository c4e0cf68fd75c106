// Package contract validates a user/strategy intent into a defaulted,
// rejection-terminal TradeContract.
package contract

import (
	"time"

	"github.com/google/uuid"

	"strategybot/internal/model"
)

// Validator fills defaults and validates an intent into a TradeContract.
// Rejection is terminal: a rejected contract's Status is REJECTED with
// RejectReason set, and the caller must not retry it.
type Validator struct {
	global model.GlobalConfig
}

// New constructs a Validator against the given global trading defaults.
func New(global model.GlobalConfig) *Validator {
	return &Validator{global: global}
}

// Create fills defaults (risk 0.5%, leverage 5, slRule=SWING,
// tpRule=NONE, trailMode=SUPERTREND, emergencySlPercent=4), clamps
// leverage to the hard cap, and validates the intent's fields.
func (v *Validator) Create(intent model.Intent) model.TradeContract {
	side := model.SideLong
	if intent.Action == model.ActionEnterShort {
		side = model.SideShort
	}

	contract := model.TradeContract{
		ID:                 uuid.NewString(),
		CreatedAt:          time.Now(),
		Symbol:             intent.Symbol,
		Side:               side,
		RiskPercent:        v.global.DefaultRiskPercent,
		Leverage:           v.global.DefaultLeverage,
		SLRule:             model.SLRuleSwing,
		EmergencySLPercent: 4,
		TPRule:             model.TPRuleNone,
		TrailMode:          model.TrailModeSupertrend,
		Status:             model.ContractPending,
	}

	if intent.RiskPercent != nil {
		contract.RiskPercent = *intent.RiskPercent
	}
	if intent.Leverage != nil {
		contract.Leverage = *intent.Leverage
	}
	if intent.SLRule != nil {
		contract.SLRule = *intent.SLRule
	}
	if intent.SLPrice != nil {
		contract.SLPrice = intent.SLPrice
	}
	if intent.TPRule != nil {
		contract.TPRule = *intent.TPRule
	}
	if intent.TPPrice != nil {
		contract.TPPrice = intent.TPPrice
	}
	if intent.TPRR != nil {
		contract.TPRR = intent.TPRR
	}
	if intent.TrailMode != nil {
		contract.TrailMode = *intent.TrailMode
	}

	if contract.Leverage > v.global.MaxLeverage {
		contract.Leverage = v.global.MaxLeverage
		contract.LeverageClamped = true
	}

	if reason, ok := v.invalid(contract); ok {
		contract.Status = model.ContractRejected
		contract.RejectReason = reason
	}

	return contract
}

// invalid reports the first validation failure, if any. No upper cap on
// riskPercent: the user has sovereignty over position sizing.
func (v *Validator) invalid(c model.TradeContract) (model.RejectReason, bool) {
	if c.RiskPercent <= 0 {
		return model.RejectInvalidRisk, true
	}
	if c.SLRule == model.SLRulePrice && c.SLPrice == nil {
		return model.RejectMissingSLPrice, true
	}
	if c.TPRule == model.TPRulePrice && c.TPPrice == nil {
		return model.RejectMissingTPPrice, true
	}
	if c.TPRule == model.TPRuleRR && c.TPRR == nil {
		return model.RejectMissingTPRR, true
	}
	return "", false
}
