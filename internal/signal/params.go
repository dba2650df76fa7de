package signal

import (
	"errors"
	"fmt"

	"signal-systemv1/internal/divergence"
	"signal-systemv1/internal/indicator"
)

// ErrInvalidParams is returned by Params.Validate.
var ErrInvalidParams = errors.New("invalid signal params")

// Params is the full configuration surface of the signal engine.
type Params struct {
	Timeframe string `yaml:"timeframe" json:"timeframe"`

	Indicator  indicator.Params  `yaml:"indicator" json:"indicator"`
	Divergence divergence.Params `yaml:"divergence" json:"divergence"`

	// SnapshotHistory caps the indicator snapshot history.
	SnapshotHistory int `yaml:"snapshot_history" json:"snapshot_history"`

	// StrongStrength is the exclusive lower bound for a candidate to be
	// considered for a trade.
	StrongStrength float64 `yaml:"strong_strength" json:"strong_strength"`

	MinConfirmations int     `yaml:"min_confirmations" json:"min_confirmations"`
	MinConfidence    float64 `yaml:"min_confidence" json:"min_confidence"`
	MaxConfidence    float64 `yaml:"max_confidence" json:"max_confidence"`
	HoldConfidence   float64 `yaml:"hold_confidence" json:"hold_confidence"`

	// confidence = BaseConfidence + score*ScoreWeight + strength*StrengthWeight
	BaseConfidence float64 `yaml:"base_confidence" json:"base_confidence"`
	ScoreWeight    float64 `yaml:"score_weight" json:"score_weight"`
	StrengthWeight float64 `yaml:"strength_weight" json:"strength_weight"`

	// Risk bracket, in percent of the entry price.
	StopLossPct     float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`
	TakeProfitPct   float64 `yaml:"take_profit_pct" json:"take_profit_pct"`
	ExpectedMovePct float64 `yaml:"expected_move_pct" json:"expected_move_pct"`
	HorizonMinutes  int     `yaml:"horizon_minutes" json:"horizon_minutes"`
}

// DefaultParams returns the stock configuration.
func DefaultParams() Params {
	return Params{
		Timeframe:        "1m",
		Indicator:        indicator.DefaultParams(),
		Divergence:       divergence.DefaultParams(),
		SnapshotHistory:  50,
		StrongStrength:   0.5,
		MinConfirmations: 2,
		MinConfidence:    0.6,
		MaxConfidence:    0.95,
		HoldConfidence:   0.45,
		BaseConfidence:   0.6,
		ScoreWeight:      0.35,
		StrengthWeight:   0.2,
		StopLossPct:      0.2,
		TakeProfitPct:    0.4,
		ExpectedMovePct:  0.3,
		HorizonMinutes:   5,
	}
}

// Validate reports the first configuration error, wrapped in ErrInvalidParams.
func (p Params) Validate() error {
	ip := p.Indicator
	periods := []struct {
		name string
		v    int
	}{
		{"indicator.rsi_period", ip.RSIPeriod},
		{"indicator.macd_fast", ip.MACDFast},
		{"indicator.macd_slow", ip.MACDSlow},
		{"indicator.macd_signal", ip.MACDSignal},
		{"indicator.stoch_k", ip.StochK},
		{"indicator.stoch_d", ip.StochD},
		{"indicator.ema_fast", ip.EMAFast},
		{"indicator.ema_slow", ip.EMASlow},
		{"indicator.adx_period", ip.ADXPeriod},
		{"divergence.min_bars", p.Divergence.MinBars},
		{"divergence.max_history", p.Divergence.MaxHistory},
		{"snapshot_history", p.SnapshotHistory},
		{"min_confirmations", p.MinConfirmations},
		{"horizon_minutes", p.HorizonMinutes},
	}
	for _, pr := range periods {
		if pr.v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidParams, pr.name, pr.v)
		}
	}

	switch {
	case ip.MACDFast >= ip.MACDSlow:
		return fmt.Errorf("%w: macd_fast (%d) must be below macd_slow (%d)", ErrInvalidParams, ip.MACDFast, ip.MACDSlow)
	case ip.EMAFast >= ip.EMASlow:
		return fmt.Errorf("%w: ema_fast (%d) must be below ema_slow (%d)", ErrInvalidParams, ip.EMAFast, ip.EMASlow)
	case p.Divergence.MinBars < 3:
		return fmt.Errorf("%w: divergence.min_bars must be at least 3, got %d", ErrInvalidParams, p.Divergence.MinBars)
	case p.Divergence.MaxHistory < p.Divergence.MinBars:
		return fmt.Errorf("%w: divergence.max_history (%d) below min_bars (%d)", ErrInvalidParams, p.Divergence.MaxHistory, p.Divergence.MinBars)
	case p.SnapshotHistory < 3:
		return fmt.Errorf("%w: snapshot_history must hold at least 3 snapshots, got %d", ErrInvalidParams, p.SnapshotHistory)
	case p.MaxConfidence < 0 || p.MaxConfidence > 0.95:
		return fmt.Errorf("%w: max_confidence %.2f outside [0, 0.95]", ErrInvalidParams, p.MaxConfidence)
	case p.MinConfidence < 0 || p.MinConfidence > p.MaxConfidence:
		return fmt.Errorf("%w: min_confidence %.2f outside [0, max_confidence]", ErrInvalidParams, p.MinConfidence)
	case p.HoldConfidence < 0 || p.HoldConfidence > p.MaxConfidence:
		return fmt.Errorf("%w: hold_confidence %.2f outside [0, max_confidence]", ErrInvalidParams, p.HoldConfidence)
	case p.StopLossPct <= 0 || p.TakeProfitPct <= 0:
		return fmt.Errorf("%w: risk bracket percentages must be positive", ErrInvalidParams)
	}
	return nil
}
