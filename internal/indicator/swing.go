package indicator

import "strategybot/internal/model"

// Swing is a confirmed or unconfirmed swing point.
type Swing struct {
	Index        int
	Time         int64
	Price        float64
	Unconfirmed  bool
}

// SwingHighs returns every index that is a swing high: its High strictly
// exceeds the High of every candle within lookback candles on each side.
// The most recent would-be swing within lookback of the series end is
// reported as Unconfirmed (there are not yet enough candles on its right
// to rule it out or confirm it).
func SwingHighs(candles []model.Candle, lookback int) []Swing {
	return swings(candles, lookback, true)
}

// SwingLows is the symmetric counterpart of SwingHighs.
func SwingLows(candles []model.Candle, lookback int) []Swing {
	return swings(candles, lookback, false)
}

func swings(candles []model.Candle, lookback int, high bool) []Swing {
	n := len(candles)
	if lookback <= 0 || n < 2*lookback+1 {
		return nil
	}

	val := func(i int) float64 {
		if high {
			return candles[i].High
		}
		return candles[i].Low
	}

	var out []Swing
	for i := lookback; i < n-lookback; i++ {
		isSwing := true
		for j := i - lookback; j <= i+lookback; j++ {
			if j == i {
				continue
			}
			if high {
				if candles[j].High >= val(i) {
					isSwing = false
					break
				}
			} else {
				if candles[j].Low <= val(i) {
					isSwing = false
					break
				}
			}
		}
		if isSwing {
			out = append(out, Swing{Index: i, Time: candles[i].OpenTime, Price: val(i)})
		}
	}

	// The most recent would-be swing within lookback of the series end:
	// there aren't yet lookback candles to its right to confirm or rule
	// it out, so it is reported separately as unconfirmed.
	for i := n - 1; i >= n-lookback && i >= lookback; i-- {
		isCandidate := true
		for j := i - lookback; j < n; j++ {
			if j == i {
				continue
			}
			if high {
				if candles[j].High >= val(i) {
					isCandidate = false
					break
				}
			} else {
				if candles[j].Low <= val(i) {
					isCandidate = false
					break
				}
			}
		}
		if isCandidate {
			out = append(out, Swing{Index: i, Time: candles[i].OpenTime, Price: val(i), Unconfirmed: true})
			break
		}
	}
	return out
}

// Confirmed filters a swing slice down to confirmed swings only.
func Confirmed(swings []Swing) []Swing {
	out := make([]Swing, 0, len(swings))
	for _, s := range swings {
		if !s.Unconfirmed {
			out = append(out, s)
		}
	}
	return out
}
