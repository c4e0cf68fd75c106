package contract

import (
	"testing"

	"strategybot/internal/model"
)

func testGlobalConfig() model.GlobalConfig {
	return model.GlobalConfig{
		MaxLeverage:        10,
		DefaultLeverage:    5,
		DefaultRiskPercent: 0.5,
		AntiRageLockTTLSec: 900,
	}
}

func TestCreateFillsDefaults(t *testing.T) {
	v := New(testGlobalConfig())
	c := v.Create(model.Intent{Action: model.ActionEnterLong, Symbol: "BTCUSDT"})

	if c.Status != model.ContractPending {
		t.Fatalf("expected PENDING status with no invalid fields, got %v (%v)", c.Status, c.RejectReason)
	}
	if c.RiskPercent != 0.5 {
		t.Errorf("RiskPercent default = %v, want 0.5", c.RiskPercent)
	}
	if c.Leverage != 5 {
		t.Errorf("Leverage default = %v, want 5", c.Leverage)
	}
	if c.SLRule != model.SLRuleSwing {
		t.Errorf("SLRule default = %v, want SWING", c.SLRule)
	}
	if c.TPRule != model.TPRuleNone {
		t.Errorf("TPRule default = %v, want NONE", c.TPRule)
	}
	if c.TrailMode != model.TrailModeSupertrend {
		t.Errorf("TrailMode default = %v, want SUPERTREND", c.TrailMode)
	}
	if c.EmergencySLPercent != 4 {
		t.Errorf("EmergencySLPercent default = %v, want 4", c.EmergencySLPercent)
	}
}

func TestCreateClampsLeverageToHardCap(t *testing.T) {
	v := New(testGlobalConfig())
	leverage := 25
	c := v.Create(model.Intent{Action: model.ActionEnterLong, Symbol: "BTCUSDT", Leverage: &leverage})

	if c.Leverage != 10 {
		t.Errorf("expected leverage clamped to 10, got %d", c.Leverage)
	}
	if !c.LeverageClamped {
		t.Error("expected LeverageClamped to be true")
	}
}

func TestCreateAllowsAnyPositiveRiskPercentNoUpperCap(t *testing.T) {
	v := New(testGlobalConfig())
	risk := 50.0
	c := v.Create(model.Intent{Action: model.ActionEnterLong, Symbol: "BTCUSDT", RiskPercent: &risk})

	if c.Status == model.ContractRejected {
		t.Errorf("expected a large but positive riskPercent to be accepted, got rejected with %v", c.RejectReason)
	}
}

func TestCreateRejectsNonPositiveRiskPercent(t *testing.T) {
	v := New(testGlobalConfig())
	risk := 0.0
	c := v.Create(model.Intent{Action: model.ActionEnterLong, Symbol: "BTCUSDT", RiskPercent: &risk})

	if c.Status != model.ContractRejected || c.RejectReason != model.RejectInvalidRisk {
		t.Errorf("expected INVALID_RISK_PERCENT rejection, got status=%v reason=%v", c.Status, c.RejectReason)
	}
}

func TestCreateRejectsPriceSLRuleWithoutSLPrice(t *testing.T) {
	v := New(testGlobalConfig())
	slRule := model.SLRulePrice
	c := v.Create(model.Intent{Action: model.ActionEnterLong, Symbol: "BTCUSDT", SLRule: &slRule})

	if c.Status != model.ContractRejected || c.RejectReason != model.RejectMissingSLPrice {
		t.Errorf("expected MISSING_SL_PRICE rejection, got status=%v reason=%v", c.Status, c.RejectReason)
	}
}

func TestCreateAcceptsPriceSLRuleWithSLPrice(t *testing.T) {
	v := New(testGlobalConfig())
	slRule := model.SLRulePrice
	slPrice := 95000.0
	c := v.Create(model.Intent{Action: model.ActionEnterLong, Symbol: "BTCUSDT", SLRule: &slRule, SLPrice: &slPrice})

	if c.Status == model.ContractRejected {
		t.Errorf("expected PRICE SLRule with slPrice set to be accepted, got rejected with %v", c.RejectReason)
	}
}

func TestCreateRejectsRRTPRuleWithoutTPRR(t *testing.T) {
	v := New(testGlobalConfig())
	tpRule := model.TPRuleRR
	c := v.Create(model.Intent{Action: model.ActionEnterLong, Symbol: "BTCUSDT", TPRule: &tpRule})

	if c.Status != model.ContractRejected || c.RejectReason != model.RejectMissingTPRR {
		t.Errorf("expected MISSING_TP_RR rejection, got status=%v reason=%v", c.Status, c.RejectReason)
	}
}

func TestCreateRejectsPriceTPRuleWithoutTPPrice(t *testing.T) {
	v := New(testGlobalConfig())
	tpRule := model.TPRulePrice
	c := v.Create(model.Intent{Action: model.ActionEnterLong, Symbol: "BTCUSDT", TPRule: &tpRule})

	if c.Status != model.ContractRejected || c.RejectReason != model.RejectMissingTPPrice {
		t.Errorf("expected MISSING_TP_PRICE rejection, got status=%v reason=%v", c.Status, c.RejectReason)
	}
}

func TestCreateEnterShortSetsSide(t *testing.T) {
	v := New(testGlobalConfig())
	c := v.Create(model.Intent{Action: model.ActionEnterShort, Symbol: "BTCUSDT"})

	if c.Side != model.SideShort {
		t.Errorf("expected SHORT side for ENTER_SHORT intent, got %v", c.Side)
	}
}
