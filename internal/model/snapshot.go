package model

// MACD holds the MACD line, its signal line and the histogram.
type MACD struct {
	MACD      float64 `json:"macd"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// Stochastic holds the %K and %D oscillator values.
type Stochastic struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

// EMAPair holds the fast and slow exponential moving averages.
type EMAPair struct {
	Fast float64 `json:"fast"`
	Slow float64 `json:"slow"`
}

// IndicatorSnapshot is the full indicator state computed for one tick.
type IndicatorSnapshot struct {
	RSI        float64    `json:"rsi"`
	MACD       MACD       `json:"macd"`
	Stochastic Stochastic `json:"stochastic"`
	EMA        EMAPair    `json:"ema"`
	ADX        float64    `json:"adx"`
}
