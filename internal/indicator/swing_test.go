package indicator

import (
	"testing"

	"strategybot/internal/model"
)

func hlCandles(highs, lows []float64) []model.Candle {
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

func TestSwingHighsDetectsStrictLocalMax(t *testing.T) {
	highs := []float64{1, 2, 3, 10, 3, 2, 1, 1, 1}
	lows := []float64{0, 1, 2, 9, 2, 1, 0, 0, 0}
	candles := hlCandles(highs, lows)

	swings := SwingHighs(candles, 2)
	confirmed := Confirmed(swings)
	if len(confirmed) != 1 || confirmed[0].Index != 3 {
		t.Fatalf("expected a single confirmed swing high at index 3, got %+v", confirmed)
	}
}

func TestSwingHighTiesAreNotSwings(t *testing.T) {
	highs := []float64{1, 2, 5, 5, 2, 1, 1}
	lows := []float64{0, 1, 4, 4, 1, 0, 0}
	candles := hlCandles(highs, lows)

	confirmed := Confirmed(SwingHighs(candles, 2))
	for _, s := range confirmed {
		if s.Index == 2 || s.Index == 3 {
			t.Errorf("tied highs must not both register as swings, got swing at %d", s.Index)
		}
	}
}

func TestSwingLowsSymmetric(t *testing.T) {
	highs := []float64{5, 4, 3, 2, 3, 4, 5}
	lows := []float64{4, 3, 2, 0, 2, 3, 4}
	candles := hlCandles(highs, lows)

	confirmed := Confirmed(SwingLows(candles, 2))
	if len(confirmed) != 1 || confirmed[0].Index != 3 {
		t.Fatalf("expected a single confirmed swing low at index 3, got %+v", confirmed)
	}
}

func TestOnlyMostRecentTailCandidateIsUnconfirmed(t *testing.T) {
	// Index 2 (8) is a confirmed swing high; index 5 (9) lies within
	// lookback of the series end and is the one reported unconfirmed.
	highs := []float64{1, 2, 8, 2, 1, 9, 1}
	lows := []float64{0, 1, 7, 1, 0, 8, 0}
	candles := hlCandles(highs, lows)

	all := SwingHighs(candles, 2)
	var unconfirmed []Swing
	for _, s := range all {
		if s.Unconfirmed {
			unconfirmed = append(unconfirmed, s)
		}
	}
	if len(unconfirmed) != 1 {
		t.Fatalf("expected exactly one unconfirmed tail swing, got %d: %+v", len(unconfirmed), unconfirmed)
	}
	if unconfirmed[0].Index != 5 {
		t.Errorf("expected the unconfirmed swing to be the most recent candidate (index 5), got %d", unconfirmed[0].Index)
	}
}

func TestSwingDetectionRequiresEnoughCandles(t *testing.T) {
	candles := hlCandles([]float64{1, 2, 3}, []float64{0, 1, 2})
	if got := SwingHighs(candles, 5); got != nil {
		t.Errorf("expected nil when series is shorter than 2*lookback+1, got %+v", got)
	}
}
