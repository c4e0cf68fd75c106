package indicator

import (
	"math"
	"testing"

	"strategybot/internal/model"
)

func makeCandles(hlc [][3]float64) []model.Candle {
	candles := make([]model.Candle, len(hlc))
	for i, v := range hlc {
		candles[i] = model.Candle{
			OpenTime:  int64(i) * 60000,
			CloseTime: int64(i+1) * 60000,
			High:      v[0],
			Low:       v[1],
			Close:     v[2],
		}
	}
	return candles
}

func TestATRFirstValueIsSimpleMeanOfTrueRanges(t *testing.T) {
	candles := makeCandles([][3]float64{
		{10, 8, 9},
		{11, 9, 10},
		{12, 10, 11},
		{13, 11, 12},
	})
	series := ATRSeries(candles, 3)
	if len(series) == 0 {
		t.Fatal("expected at least one ATR value")
	}
	// true ranges for candles[1..3] vs prior close: (2,2),(2,2),(2,2) -> mean 2
	want := 2.0
	if math.Abs(series[0]-want) > 1e-9 {
		t.Errorf("first ATR = %v, want %v", series[0], want)
	}
}

func TestATRInsufficientCandles(t *testing.T) {
	candles := makeCandles([][3]float64{{10, 8, 9}})
	if got := ATR(candles, 14); got != 0 {
		t.Errorf("ATR with insufficient candles = %v, want 0", got)
	}
}

func TestATRRollsForwardWilder(t *testing.T) {
	candles := makeCandles([][3]float64{
		{10, 8, 9},
		{11, 9, 10},
		{12, 10, 11},
		{13, 11, 12},
		{20, 11, 15}, // large true range widens ATR
	})
	series := ATRSeries(candles, 3)
	if len(series) != 2 {
		t.Fatalf("expected 2 ATR values, got %d", len(series))
	}
	if series[1] <= series[0] {
		t.Errorf("expected ATR to widen after a large true range, got %v -> %v", series[0], series[1])
	}
}
