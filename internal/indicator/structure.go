package indicator

import "strategybot/internal/model"

// Structure is the market-structure read-out: bias, trend, the most
// recent BOS/CHoCH events, and the current protected level.
type Structure struct {
	Bias      model.Bias
	Trend     model.Trend
	LastBOS   *model.StructureEvent
	LastCHoCH *model.StructureEvent
	Protected model.KeyLevels
}

// AnalyzeStructure derives bias, trend, BOS/CHoCH and protected levels
// from the candle series' confirmed swing highs/lows.
//
// Bias is BULLISH iff the last two confirmed swing highs make a higher
// high AND the last two confirmed swing lows make a higher low;
// BEARISH symmetrically; otherwise NEUTRAL.
//
// BOS is a close breaking a prior same-direction higher swing
// (continuation); CHoCH is a close breaking a same-direction
// against-trend swing (reversal signal). The protected level is, in an
// uptrend, the last confirmed swing low; in a downtrend, the last
// confirmed swing high; otherwise null.
func AnalyzeStructure(candles []model.Candle, lookback int) Structure {
	highs := Confirmed(SwingHighs(candles, lookback))
	lows := Confirmed(SwingLows(candles, lookback))

	bias := model.BiasNeutral
	if len(highs) >= 2 && len(lows) >= 2 {
		higherHigh := highs[len(highs)-1].Price > highs[len(highs)-2].Price
		higherLow := lows[len(lows)-1].Price > lows[len(lows)-2].Price
		lowerHigh := highs[len(highs)-1].Price < highs[len(highs)-2].Price
		lowerLow := lows[len(lows)-1].Price < lows[len(lows)-2].Price
		if higherHigh && higherLow {
			bias = model.BiasLong
		} else if lowerHigh && lowerLow {
			bias = model.BiasShort
		}
	}

	trend := model.TrendRanging
	switch bias {
	case model.BiasLong:
		trend = model.TrendUp
	case model.BiasShort:
		trend = model.TrendDown
	}

	var lastBOS, lastCHoCH *model.StructureEvent
	if len(candles) > 0 {
		last := candles[len(candles)-1]
		if len(highs) >= 2 {
			prior, latest := highs[len(highs)-2], highs[len(highs)-1]
			if last.Close > latest.Price && latest.Price > prior.Price {
				lastBOS = &model.StructureEvent{Kind: model.StructureBOS, Price: last.Close, AtTime: last.CloseTime, BrokeSwing: latest.Price}
			} else if trend == model.TrendDown && last.Close > latest.Price {
				lastCHoCH = &model.StructureEvent{Kind: model.StructureCHoCH, Price: last.Close, AtTime: last.CloseTime, BrokeSwing: latest.Price}
			}
		}
		if len(lows) >= 2 {
			prior, latest := lows[len(lows)-2], lows[len(lows)-1]
			if last.Close < latest.Price && latest.Price < prior.Price {
				lastBOS = &model.StructureEvent{Kind: model.StructureBOS, Price: last.Close, AtTime: last.CloseTime, BrokeSwing: latest.Price}
			} else if trend == model.TrendUp && last.Close < latest.Price {
				lastCHoCH = &model.StructureEvent{Kind: model.StructureCHoCH, Price: last.Close, AtTime: last.CloseTime, BrokeSwing: latest.Price}
			}
		}
	}

	var keyLevels model.KeyLevels
	if len(highs) > 0 {
		v := highs[len(highs)-1].Price
		keyLevels.LastSwingHigh = &v
	}
	if len(lows) > 0 {
		v := lows[len(lows)-1].Price
		keyLevels.LastSwingLow = &v
	}
	switch trend {
	case model.TrendUp:
		keyLevels.ProtectedSwingLow = keyLevels.LastSwingLow
	case model.TrendDown:
		keyLevels.ProtectedSwingHigh = keyLevels.LastSwingHigh
	}

	return Structure{
		Bias:      bias,
		Trend:     trend,
		LastBOS:   lastBOS,
		LastCHoCH: lastCHoCH,
		Protected: keyLevels,
	}
}
