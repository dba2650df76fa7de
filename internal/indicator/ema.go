package indicator

import "signal-systemv1/internal/model"

// EMA calculates the Exponential Moving Average of prices.
// Seeded with the first sample, then ema = (p-ema)*(2/(period+1)) + ema.
// Returns 0 for an empty window.
func EMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	multiplier := 2.0 / float64(period+1)
	ema := prices[0]
	for _, p := range prices[1:] {
		ema = (p-ema)*multiplier + ema
	}
	return ema
}

// MACD calculates the MACD line as EMA(fast) - EMA(slow).
// The signal line is approximated as macd*0.9; no EMA of the MACD series is
// tracked. Fewer than slow prices yields the zero triple.
func MACD(prices []float64, fast, slow int) model.MACD {
	if len(prices) < slow {
		return model.MACD{}
	}
	macd := EMA(prices, fast) - EMA(prices, slow)
	signal := macd * 0.9
	return model.MACD{
		MACD:      macd,
		Signal:    signal,
		Histogram: macd - signal,
	}
}
