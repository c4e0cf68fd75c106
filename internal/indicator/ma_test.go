package indicator

import (
	"testing"

	"strategybot/internal/model"
)

func closesToCandles(closes []float64) []model.Candle {
	candles := make([]model.Candle, len(closes))
	for i, c := range closes {
		candles[i] = model.Candle{
			OpenTime:  int64(i) * 60000,
			CloseTime: int64(i+1) * 60000,
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
		}
	}
	return candles
}

func TestSMA(t *testing.T) {
	candles := closesToCandles([]float64{1, 2, 3, 4, 5})
	if got := SMA(candles, 5); got != 3 {
		t.Errorf("SMA(5) = %v, want 3", got)
	}
	if got := SMA(candles, 3); got != 4 {
		t.Errorf("SMA(3) = %v, want 4", got)
	}
}

func TestSMAInsufficientCandles(t *testing.T) {
	candles := closesToCandles([]float64{1, 2})
	if got := SMA(candles, 5); got != 0 {
		t.Errorf("SMA with insufficient candles = %v, want 0", got)
	}
}

func TestEMASeededBySMA(t *testing.T) {
	candles := closesToCandles([]float64{1, 1, 1, 1, 1})
	if got := EMA(candles, 5); got != 1 {
		t.Errorf("EMA of flat series = %v, want 1", got)
	}
}

func TestMASnapshotDistance(t *testing.T) {
	candles := closesToCandles([]float64{100, 110})
	snap := MASnapshot(candles, 100)
	if !snap.PriceAbove || snap.PriceBelow {
		t.Errorf("expected priceAbove for close 110 vs ma 100, got %+v", snap)
	}
	if snap.DistancePct <= 0 {
		t.Errorf("expected positive distance, got %v", snap.DistancePct)
	}
}
