package model

import (
	"encoding/json"
	"time"
)

// SignalKind classifies a trading signal.
type SignalKind string

const (
	SignalBuy  SignalKind = "BUY"
	SignalSell SignalKind = "SELL"
	SignalHold SignalKind = "HOLD"
)

// Actionable reports whether the signal asks for a trade entry.
func (k SignalKind) Actionable() bool {
	return k == SignalBuy || k == SignalSell
}

// DivergenceKind is the direction of a price/indicator divergence.
type DivergenceKind string

const (
	Bullish DivergenceKind = "bullish"
	Bearish DivergenceKind = "bearish"
)

// Title returns the capitalised kind ("Bullish", "Bearish") used in reasons.
func (k DivergenceKind) Title() string {
	switch k {
	case Bullish:
		return "Bullish"
	case Bearish:
		return "Bearish"
	default:
		return string(k)
	}
}

// IndicatorKind names the indicator proxy a divergence was found on.
type IndicatorKind string

const (
	IndicatorRSI        IndicatorKind = "RSI"
	IndicatorMACD       IndicatorKind = "MACD"
	IndicatorStochastic IndicatorKind = "Stochastic"
)

// TradingSignal is the terminal output of one signal engine invocation.
// HOLD signals never carry StopLoss or TakeProfit.
type TradingSignal struct {
	Instrument      string            `json:"instrument"`
	Timeframe       string            `json:"timeframe"`
	Kind            SignalKind        `json:"kind"`
	Confidence      float64           `json:"confidence"`
	Reason          string            `json:"reason"`
	EntryPrice      float64           `json:"entry_price"`
	StopLoss        *float64          `json:"stop_loss,omitempty"`
	TakeProfit      *float64          `json:"take_profit,omitempty"`
	HorizonMinutes  int               `json:"horizon_minutes"`
	ExpectedMovePct float64           `json:"expected_move_pct"`
	Indicators      IndicatorSnapshot `json:"indicators"`
	TS              time.Time         `json:"ts"`
}

// PubSubChannel returns the Redis/WS channel: "pub:signal:{instrument}".
func (s *TradingSignal) PubSubChannel() string {
	return "pub:signal:" + s.Instrument
}

// StreamKey returns the Redis stream key: "signal:{instrument}".
func (s *TradingSignal) StreamKey() string {
	return "signal:" + s.Instrument
}

// JSON returns the JSON-encoded signal.
func (s *TradingSignal) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
