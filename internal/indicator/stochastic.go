package indicator

import "signal-systemv1/internal/model"

// Stochastic calculates %K over the last kPeriod bars:
//
//	%K = (close - lowest low) / (highest high - lowest low) * 100
//
// %D is approximated as %K*0.95. With fewer than kPeriod bars, or a zero
// high-low range, both lines are NeutralStochastic.
func Stochastic(highs, lows, closes []float64, kPeriod int) model.Stochastic {
	neutral := model.Stochastic{K: NeutralStochastic, D: NeutralStochastic}
	n := minLen(highs, lows, closes)
	if kPeriod <= 0 || n < kPeriod {
		return neutral
	}

	hh := highs[len(highs)-kPeriod:]
	ll := lows[len(lows)-kPeriod:]
	highest, lowest := hh[0], ll[0]
	for i := 1; i < kPeriod; i++ {
		if hh[i] > highest {
			highest = hh[i]
		}
		if ll[i] < lowest {
			lowest = ll[i]
		}
	}

	rng := highest - lowest
	if rng == 0 {
		return neutral
	}
	k := (closes[len(closes)-1] - lowest) / rng * 100
	return model.Stochastic{K: k, D: k * 0.95}
}

func minLen(series ...[]float64) int {
	n := -1
	for _, s := range series {
		if n < 0 || len(s) < n {
			n = len(s)
		}
	}
	if n < 0 {
		return 0
	}
	return n
}
