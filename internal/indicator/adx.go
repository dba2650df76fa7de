package indicator

import "math"

// ADX calculates a simplified Average Directional Index by summing true
// range and directional movement over the last period bars (no Wilder
// smoothing of the sums):
//
//	DI+ = 100*sum(+DM)/sum(TR)   DI- = 100*sum(-DM)/sum(TR)
//	ADX = 100*|DI+ - DI-|/(DI+ + DI-)
//
// Returns NeutralADX when fewer than period+1 bars are available or either
// denominator is zero.
func ADX(highs, lows, closes []float64, period int) float64 {
	n := minLen(highs, lows, closes)
	if period <= 0 || n < period+1 {
		return NeutralADX
	}

	// Align all three series on their most recent n bars.
	highs = highs[len(highs)-n:]
	lows = lows[len(lows)-n:]
	closes = closes[len(closes)-n:]

	var sumTR, sumPlus, sumMinus float64
	for i := n - period; i < n; i++ {
		tr := math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))
		up := highs[i] - highs[i-1]
		down := lows[i-1] - lows[i]

		if up > down && up > 0 {
			sumPlus += up
		}
		if down > up && down > 0 {
			sumMinus += down
		}
		sumTR += tr
	}

	if sumTR == 0 {
		return NeutralADX
	}
	diPlus := 100 * sumPlus / sumTR
	diMinus := 100 * sumMinus / sumTR
	if diPlus+diMinus == 0 {
		return NeutralADX
	}
	return 100 * math.Abs(diPlus-diMinus) / (diPlus + diMinus)
}
