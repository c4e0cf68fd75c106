package indicator

import "strategybot/internal/model"

// Supertrend computes the ATR-band trend-following line and its active
// direction. The final upper band only ratchets down unless the
// previous close breached it; the lower band is symmetric. Direction
// flips when close crosses the active band; the initial direction is
// derived from the first usable close vs. the basic bands.
//
// Requires at least period+2 candles (period to seed ATR, one more to
// establish the first basic band pair, one more to walk the bands
// forward); returns the zero value otherwise.
func Supertrend(candles []model.Candle, period int, multiplier float64) model.SupertrendSnapshot {
	atrSeries := ATRSeries(candles, period)
	if len(atrSeries) < 2 {
		return model.SupertrendSnapshot{}
	}

	// atrSeries[i] corresponds to candles[period+i]
	offset := period
	n := len(atrSeries)

	finalUpper := make([]float64, n)
	finalLower := make([]float64, n)
	dir := make([]model.Bias, n)
	value := make([]float64, n)

	for i := 0; i < n; i++ {
		c := candles[offset+i]
		hl2 := (c.High + c.Low) / 2
		basicUpper := hl2 + multiplier*atrSeries[i]
		basicLower := hl2 - multiplier*atrSeries[i]

		if i == 0 {
			finalUpper[i] = basicUpper
			finalLower[i] = basicLower
			if c.Close <= finalUpper[i] {
				dir[i] = model.BiasShort
				value[i] = finalUpper[i]
			} else {
				dir[i] = model.BiasLong
				value[i] = finalLower[i]
			}
			continue
		}

		prevClose := candles[offset+i-1].Close

		if basicUpper < finalUpper[i-1] || prevClose > finalUpper[i-1] {
			finalUpper[i] = basicUpper
		} else {
			finalUpper[i] = finalUpper[i-1]
		}

		if basicLower > finalLower[i-1] || prevClose < finalLower[i-1] {
			finalLower[i] = basicLower
		} else {
			finalLower[i] = finalLower[i-1]
		}

		switch dir[i-1] {
		case model.BiasShort:
			if c.Close > finalUpper[i] {
				dir[i] = model.BiasLong
			} else {
				dir[i] = model.BiasShort
			}
		default:
			if c.Close < finalLower[i] {
				dir[i] = model.BiasShort
			} else {
				dir[i] = model.BiasLong
			}
		}

		if dir[i] == model.BiasLong {
			value[i] = finalLower[i]
		} else {
			value[i] = finalUpper[i]
		}
	}

	last := n - 1
	price := candles[len(candles)-1].Close
	distance := 0.0
	if value[last] != 0 {
		distance = (price - value[last]) / value[last] * 100
	}

	return model.SupertrendSnapshot{
		Value:       value[last],
		Direction:   dir[last],
		UpperBand:   finalUpper[last],
		LowerBand:   finalLower[last],
		DistancePct: distance,
	}
}

// SupertrendFlipped reports whether direction changed between two
// consecutive Supertrend reads (used by the strategy engine to emit
// supertrendFlip exactly once per flip).
func SupertrendFlipped(prev, curr model.SupertrendSnapshot) bool {
	return prev.Direction != "" && curr.Direction != "" && prev.Direction != curr.Direction
}
