package indicator

import "signal-systemv1/internal/model"

// Engine computes a full IndicatorSnapshot from a price window.
// It holds only configuration and is safe for concurrent use.
type Engine struct {
	params Params
}

// NewEngine creates an indicator engine with the given periods.
func NewEngine(p Params) *Engine {
	return &Engine{params: p}
}

// Params returns the periods the engine was built with.
func (e *Engine) Params() Params { return e.params }

// Compute produces one snapshot from the input window. Series missing from
// in degrade to in.Prices. The result is never rounded.
func (e *Engine) Compute(in Input) model.IndicatorSnapshot {
	p := e.params
	highs, lows, closes := in.highs(), in.lows(), in.closes()

	return model.IndicatorSnapshot{
		RSI:        RSI(in.Prices, p.RSIPeriod),
		MACD:       MACD(in.Prices, p.MACDFast, p.MACDSlow),
		Stochastic: Stochastic(highs, lows, closes, p.StochK),
		EMA: model.EMAPair{
			Fast: EMA(in.Prices, p.EMAFast),
			Slow: EMA(in.Prices, p.EMASlow),
		},
		ADX: ADX(highs, lows, closes, p.ADXPeriod),
	}
}
