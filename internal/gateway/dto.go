package gateway

import (
	"time"

	"signal-systemv1/internal/model"

	"github.com/shopspring/decimal"
)

// Presentation precision for REST and snapshot payloads.
const (
	priceDecimals      = 5
	confidenceDecimals = 4
	percentDecimals    = 4
)

// SignalDTO is the REST/snapshot representation of a trading signal.
// Prices are fixed-precision decimals (JSON strings).
type SignalDTO struct {
	ID              string                  `json:"id,omitempty"`
	Instrument      string                  `json:"instrument"`
	Timeframe       string                  `json:"timeframe"`
	Kind            model.SignalKind        `json:"kind"`
	Confidence      decimal.Decimal         `json:"confidence"`
	Reason          string                  `json:"reason"`
	EntryPrice      decimal.Decimal         `json:"entry_price"`
	StopLoss        *decimal.Decimal        `json:"stop_loss,omitempty"`
	TakeProfit      *decimal.Decimal        `json:"take_profit,omitempty"`
	HorizonMinutes  int                     `json:"horizon_minutes"`
	ExpectedMovePct decimal.Decimal         `json:"expected_move_pct"`
	Indicators      model.IndicatorSnapshot `json:"indicators"`
	TS              time.Time               `json:"ts"`
}

// NewSignalDTO converts a signal; id is the persisted row id, if any.
func NewSignalDTO(id string, sig model.TradingSignal) SignalDTO {
	return SignalDTO{
		ID:              id,
		Instrument:      sig.Instrument,
		Timeframe:       sig.Timeframe,
		Kind:            sig.Kind,
		Confidence:      decimal.NewFromFloat(sig.Confidence).Round(confidenceDecimals),
		Reason:          sig.Reason,
		EntryPrice:      decimal.NewFromFloat(sig.EntryPrice).Round(priceDecimals),
		StopLoss:        roundPtr(sig.StopLoss, priceDecimals),
		TakeProfit:      roundPtr(sig.TakeProfit, priceDecimals),
		HorizonMinutes:  sig.HorizonMinutes,
		ExpectedMovePct: decimal.NewFromFloat(sig.ExpectedMovePct).Round(percentDecimals),
		Indicators:      sig.Indicators,
		TS:              sig.TS,
	}
}

func roundPtr(v *float64, places int32) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v).Round(places)
	return &d
}

// InstrumentsResponse is the REST response for /api/instruments.
type InstrumentsResponse struct {
	Instruments []string `json:"instruments"`
}

// ResetResponse is the REST response for /api/instruments/reset.
type ResetResponse struct {
	Status     string `json:"status"`
	Instrument string `json:"instrument,omitempty"`
}
