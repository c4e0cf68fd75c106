package indicator

import (
	"testing"

	"strategybot/internal/model"
)

// stairStepCandles builds a series of higher-high/higher-low swing
// points (an uptrend staircase) usable by AnalyzeStructure.
func stairStepCandles() []model.Candle {
	highs := []float64{10, 12, 9, 20, 14, 30, 22, 40}
	lows := []float64{8, 9, 7, 15, 11, 24, 18, 35}
	candles := make([]model.Candle, len(highs))
	for i := range highs {
		candles[i] = model.Candle{
			OpenTime:  int64(i) * 60000,
			CloseTime: int64(i+1) * 60000,
			High:      highs[i],
			Low:       lows[i],
			Close:     (highs[i] + lows[i]) / 2,
		}
	}
	return candles
}

func TestAnalyzeStructureBullishBias(t *testing.T) {
	structure := AnalyzeStructure(stairStepCandles(), 1)
	if structure.Bias != model.BiasLong {
		t.Errorf("expected BULLISH bias on a higher-high/higher-low staircase, got %v", structure.Bias)
	}
	if structure.Trend != model.TrendUp {
		t.Errorf("expected UPTREND, got %v", structure.Trend)
	}
}

func TestAnalyzeStructureProtectedLevelIsLastSwingLowInUptrend(t *testing.T) {
	structure := AnalyzeStructure(stairStepCandles(), 1)
	if structure.Protected.ProtectedSwingLow == nil {
		t.Fatal("expected a protected swing low in an uptrend")
	}
	if structure.Protected.ProtectedSwingHigh != nil {
		t.Error("expected no protected swing high in an uptrend")
	}
}

func TestAnalyzeStructureNeutralWithoutEnoughSwings(t *testing.T) {
	candles := make([]model.Candle, 3)
	for i := range candles {
		candles[i] = model.Candle{High: 10, Low: 9, Close: 9.5, OpenTime: int64(i) * 60000, CloseTime: int64(i+1) * 60000}
	}
	structure := AnalyzeStructure(candles, 5)
	if structure.Bias != model.BiasNeutral {
		t.Errorf("expected NEUTRAL bias without enough confirmed swings, got %v", structure.Bias)
	}
	if structure.Trend != model.TrendRanging {
		t.Errorf("expected RANGING trend without enough confirmed swings, got %v", structure.Trend)
	}
	if structure.Protected.ProtectedSwingHigh != nil || structure.Protected.ProtectedSwingLow != nil {
		t.Error("expected no protected level in RANGING trend")
	}
}
