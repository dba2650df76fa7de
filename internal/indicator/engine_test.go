package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-systemv1/internal/model"
)

func TestEngine_Compute_EmptyWindow(t *testing.T) {
	snap := NewEngine(DefaultParams()).Compute(Input{})

	assert.Equal(t, NeutralRSI, snap.RSI)
	assert.Equal(t, model.MACD{}, snap.MACD)
	assert.Equal(t, model.Stochastic{K: NeutralStochastic, D: NeutralStochastic}, snap.Stochastic)
	assert.Equal(t, model.EMAPair{}, snap.EMA)
	assert.Equal(t, NeutralADX, snap.ADX)
}

func TestEngine_Compute_MatchesFunctions(t *testing.T) {
	p := DefaultParams()
	prices := make([]float64, 40)
	for i := range prices {
		prices[i] = 1.2 + 0.001*float64(i%5) - 0.0004*float64(i)
	}

	snap := NewEngine(p).Compute(Input{Prices: prices})

	assert.Equal(t, RSI(prices, p.RSIPeriod), snap.RSI)
	assert.Equal(t, MACD(prices, p.MACDFast, p.MACDSlow), snap.MACD)
	assert.Equal(t, Stochastic(prices, prices, prices, p.StochK), snap.Stochastic)
	assert.Equal(t, EMA(prices, p.EMAFast), snap.EMA.Fast)
	assert.Equal(t, EMA(prices, p.EMASlow), snap.EMA.Slow)
	assert.Equal(t, ADX(prices, prices, prices, p.ADXPeriod), snap.ADX)
}

func TestEngine_Compute_UsesSuppliedOHLC(t *testing.T) {
	p := DefaultParams()
	prices := ramp(100, 0.5, 20)
	highs := ramp(101, 1, 20)
	lows := ramp(90, 0, 20)

	snap := NewEngine(p).Compute(Input{Prices: prices, Highs: highs, Lows: lows})

	// Closes degrade to prices; highs and lows come from the caller.
	require.Equal(t, Stochastic(highs, lows, prices, p.StochK), snap.Stochastic)
	assert.InDelta(t, 100.0, snap.ADX, 1e-9)
	// RSI and EMAs always run on prices.
	assert.InDelta(t, 100.0, snap.RSI, 1e-9)
	assert.Greater(t, snap.EMA.Fast, snap.EMA.Slow)
}

func TestEngine_TrendingUp_Ordering(t *testing.T) {
	snap := NewEngine(DefaultParams()).Compute(Input{Prices: ramp(100, 1, 60)})

	assert.Greater(t, snap.EMA.Fast, snap.EMA.Slow, "fast EMA leads in an uptrend")
	assert.Greater(t, snap.MACD.MACD, 0.0)
	assert.Greater(t, snap.MACD.Histogram, 0.0)
	assert.InDelta(t, 100.0, snap.RSI, 1e-9)
}

func TestEngine_TrendingDown_Ordering(t *testing.T) {
	snap := NewEngine(DefaultParams()).Compute(Input{Prices: ramp(200, -1, 60)})

	assert.Less(t, snap.EMA.Fast, snap.EMA.Slow)
	assert.Less(t, snap.MACD.MACD, 0.0)
	assert.InDelta(t, 0.0, snap.RSI, 1e-9)
}

func TestEngine_Deterministic(t *testing.T) {
	prices := ramp(1.19, 0.0007, 33)
	e := NewEngine(DefaultParams())
	assert.Equal(t, e.Compute(Input{Prices: prices}), e.Compute(Input{Prices: prices}))
}
