package indicator

import (
	"math/rand"
	"testing"

	"strategybot/internal/model"
)

func trendingCandles(n int, start float64, step float64) []model.Candle {
	candles := make([]model.Candle, n)
	price := start
	r := rand.New(rand.NewSource(1))
	for i := 0; i < n; i++ {
		open := price
		price += step + (r.Float64()-0.5)*step*0.1
		high := price + 1
		low := price - 1
		if open > high {
			high = open + 0.5
		}
		if open < low {
			low = open - 0.5
		}
		candles[i] = model.Candle{
			OpenTime:  int64(i) * 60000,
			CloseTime: int64(i+1) * 60000,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
		}
	}
	return candles
}

func TestSupertrendInsufficientCandlesReturnsZeroValue(t *testing.T) {
	candles := trendingCandles(3, 100, 1)
	snap := Supertrend(candles, 10, 3)
	if snap.Direction != "" {
		t.Errorf("expected zero-value snapshot for insufficient candles, got %+v", snap)
	}
}

func TestSupertrendDirectionFollowsUptrend(t *testing.T) {
	candles := trendingCandles(60, 100, 2)
	snap := Supertrend(candles, 10, 3)
	if snap.Direction != model.BiasLong {
		t.Errorf("expected LONG direction in a steady uptrend, got %v", snap.Direction)
	}
	if snap.Value >= candles[len(candles)-1].Close {
		t.Errorf("expected supertrend value below close in an uptrend, value=%v close=%v", snap.Value, candles[len(candles)-1].Close)
	}
}

func TestSupertrendDirectionFollowsDowntrend(t *testing.T) {
	candles := trendingCandles(60, 500, -2)
	snap := Supertrend(candles, 10, 3)
	if snap.Direction != model.BiasShort {
		t.Errorf("expected SHORT direction in a steady downtrend, got %v", snap.Direction)
	}
}

func TestSupertrendFlipped(t *testing.T) {
	long := model.SupertrendSnapshot{Direction: model.BiasLong}
	short := model.SupertrendSnapshot{Direction: model.BiasShort}
	empty := model.SupertrendSnapshot{}

	if !SupertrendFlipped(long, short) {
		t.Error("expected flip from LONG to SHORT to be detected")
	}
	if SupertrendFlipped(long, long) {
		t.Error("expected no flip when direction is unchanged")
	}
	if SupertrendFlipped(empty, long) {
		t.Error("expected no flip reported when the prior snapshot has no direction yet")
	}
}
