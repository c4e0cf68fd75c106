package indicator

import (
	"math"

	"strategybot/internal/model"
)

func trueRange(curr, prev model.Candle) float64 {
	return math.Max(curr.High-curr.Low,
		math.Max(math.Abs(curr.High-prev.Close), math.Abs(curr.Low-prev.Close)))
}

// ATRSeries computes Wilder's Average True Range for every candle from
// index period onward, returning a slice aligned to candles[period:].
// The first value is the simple mean of the first `period` true ranges;
// every subsequent value rolls forward as (prev*(period-1)+TR)/period.
func ATRSeries(candles []model.Candle, period int) []float64 {
	if len(candles) < period+1 || period <= 0 {
		return nil
	}
	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		trs = append(trs, trueRange(candles[i], candles[i-1]))
	}

	out := make([]float64, 0, len(candles)-period)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += trs[i]
	}
	atr := sum / float64(period)
	out = append(out, atr)

	for i := period; i < len(trs); i++ {
		atr = (atr*float64(period-1) + trs[i]) / float64(period)
		out = append(out, atr)
	}
	return out
}

// ATR returns the most recent Wilder ATR value, or 0 if there are not
// enough candles to seed it.
func ATR(candles []model.Candle, period int) float64 {
	series := ATRSeries(candles, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
