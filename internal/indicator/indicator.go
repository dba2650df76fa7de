// Package indicator computes technical indicators over price windows.
//
// Every function is a pure function of its input slices: no state survives a
// call, and insufficient history yields a documented neutral default instead
// of an error. Callers own the windows and are responsible for ordering.
package indicator

// Neutral defaults returned when a window is too short to compute a value.
const (
	NeutralRSI        = 50.0
	NeutralStochastic = 50.0
	NeutralADX        = 25.0
)

// Params holds the indicator periods.
type Params struct {
	RSIPeriod  int `yaml:"rsi_period" json:"rsi_period"`
	MACDFast   int `yaml:"macd_fast" json:"macd_fast"`
	MACDSlow   int `yaml:"macd_slow" json:"macd_slow"`
	MACDSignal int `yaml:"macd_signal" json:"macd_signal"` // unused: signal line is macd*0.9
	StochK     int `yaml:"stoch_k" json:"stoch_k"`
	StochD     int `yaml:"stoch_d" json:"stoch_d"` // unused: %D is %K*0.95
	EMAFast    int `yaml:"ema_fast" json:"ema_fast"`
	EMASlow    int `yaml:"ema_slow" json:"ema_slow"`
	ADXPeriod  int `yaml:"adx_period" json:"adx_period"`
}

// DefaultParams returns RSI 14, MACD 12/26/9, Stochastic 14/3, EMA 9/21, ADX 14.
func DefaultParams() Params {
	return Params{
		RSIPeriod:  14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		StochK:     14,
		StochD:     3,
		EMAFast:    9,
		EMASlow:    21,
		ADXPeriod:  14,
	}
}

// Input is the window an Engine computes a snapshot from.
// Highs, Lows and Closes are optional; a nil series degrades to Prices.
type Input struct {
	Prices []float64
	Highs  []float64
	Lows   []float64
	Closes []float64
}

func (in Input) highs() []float64 {
	if in.Highs == nil {
		return in.Prices
	}
	return in.Highs
}

func (in Input) lows() []float64 {
	if in.Lows == nil {
		return in.Prices
	}
	return in.Lows
}

func (in Input) closes() []float64 {
	if in.Closes == nil {
		return in.Prices
	}
	return in.Closes
}
