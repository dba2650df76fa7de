package divergence

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-systemv1/internal/model"
)

func rsiSnap(v float64) model.IndicatorSnapshot {
	return model.IndicatorSnapshot{RSI: v, Stochastic: model.Stochastic{K: 50, D: 47.5}}
}

func feed(d *Detector, prices []float64, snaps []model.IndicatorSnapshot) {
	for i := range prices {
		d.AddSample(prices[i], snaps[i])
	}
}

func TestDetect_EmptyBelowMinBars(t *testing.T) {
	d := NewDetector(DefaultParams())

	// Even a textbook divergence is ignored until five samples are held.
	prices := []float64{1.20, 1.19, 1.21, 1.18}
	snaps := []model.IndicatorSnapshot{rsiSnap(50), rsiSnap(10), rsiSnap(45), rsiSnap(30)}
	for i := range prices {
		d.AddSample(prices[i], snaps[i])
		assert.Empty(t, d.Detect(), "sample %d", i+1)
	}
}

func TestDetect_BullishRSI(t *testing.T) {
	d := NewDetector(DefaultParams())

	// Price: lows at index 1 (1.19) and 3 (1.18), a lower low.
	// RSI:   lows at index 1 (10) and 3 (30), a higher low.
	prices := []float64{1.20, 1.19, 1.21, 1.18, 1.22}
	snaps := []model.IndicatorSnapshot{rsiSnap(50), rsiSnap(10), rsiSnap(45), rsiSnap(30), rsiSnap(55)}
	feed(d, prices, snaps)

	got := d.Detect()
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, model.Bullish, c.Kind)
	assert.Equal(t, model.IndicatorRSI, c.Indicator)
	assert.Equal(t, [2]ExtremePoint{{1, 1.19}, {3, 1.18}}, c.PricePoints)
	assert.Equal(t, [2]ExtremePoint{{1, 10}, {3, 30}}, c.IndicatorPoints)
	// (0.01/1.19 + 20/10) * (2/5)
	assert.InDelta(t, (0.01/1.19+2)*0.4, c.Strength, 1e-9)
	assert.Contains(t, c.Description, "Bullish RSI divergence")
}

func TestDetect_BullishRSI_WideGap(t *testing.T) {
	d := NewDetector(Params{MinBars: 7, MaxHistory: 100, MinStrength: 0.3})

	// Minima three bars apart.
	prices := []float64{1.20, 1.19, 1.20, 1.205, 1.18, 1.21, 1.22}
	snaps := []model.IndicatorSnapshot{
		rsiSnap(40), rsiSnap(10), rsiSnap(30), rsiSnap(35), rsiSnap(25), rsiSnap(45), rsiSnap(50),
	}
	feed(d, prices, snaps)

	got := d.Detect()
	require.NotEmpty(t, got)
	assert.Equal(t, model.Bullish, got[0].Kind)
	assert.Equal(t, model.IndicatorRSI, got[0].Indicator)
	assert.Equal(t, 3, got[0].PricePoints[1].Index-got[0].PricePoints[0].Index)
	assert.Greater(t, got[0].Strength, 0.3)
}

func TestDetect_BearishMACD(t *testing.T) {
	d := NewDetector(DefaultParams())

	// Price highs 1.21 then 1.22 (higher high); histogram highs 10 then 1.
	prices := []float64{1.20, 1.21, 1.20, 1.22, 1.19}
	hist := []float64{0, 10, 0, 1, 0}
	for i := range prices {
		d.AddSample(prices[i], model.IndicatorSnapshot{
			RSI:        50,
			MACD:       model.MACD{Histogram: hist[i]},
			Stochastic: model.Stochastic{K: 50},
		})
	}

	got := d.Detect()
	require.Len(t, got, 1)
	assert.Equal(t, model.Bearish, got[0].Kind)
	assert.Equal(t, model.IndicatorMACD, got[0].Indicator)
	// |i2-i1| / max(|10|, 1) = 0.9
	assert.InDelta(t, (0.01/1.21+0.9)*0.4, got[0].Strength, 1e-9)
	assert.Equal(t, 1, got[0].IndicatorPoints[0].Index)
	assert.Equal(t, 3, got[0].IndicatorPoints[1].Index)
}

func TestDetect_BelowMinStrengthDropped(t *testing.T) {
	d := NewDetector(DefaultParams())

	// Histogram highs 4 then 2: (0.0083 + 0.5) * 0.4 ≈ 0.203, not above 0.3.
	prices := []float64{1.20, 1.21, 1.20, 1.22, 1.19}
	hist := []float64{0, 4, 1, 2, 0}
	for i := range prices {
		d.AddSample(prices[i], model.IndicatorSnapshot{
			RSI:        50,
			MACD:       model.MACD{Histogram: hist[i]},
			Stochastic: model.Stochastic{K: 50},
		})
	}

	assert.Empty(t, d.Detect())
}

func TestDetect_WeakDivergenceFiltered(t *testing.T) {
	d := NewDetector(DefaultParams())

	// RSI rises 40 → 44: (0.0084 + 0.1) * 0.4 ≈ 0.043, below 0.3.
	prices := []float64{1.20, 1.19, 1.21, 1.18, 1.22}
	snaps := []model.IndicatorSnapshot{rsiSnap(50), rsiSnap(40), rsiSnap(48), rsiSnap(44), rsiSnap(55)}
	feed(d, prices, snaps)

	assert.Empty(t, d.Detect())
}

func TestDetect_OutputOrder(t *testing.T) {
	d := NewDetector(DefaultParams())

	// Price makes a lower low. Every proxy makes a strong higher low.
	prices := []float64{1.20, 1.19, 1.21, 1.18, 1.22}
	proxy := []float64{50, 2, 45, 8, 55}
	for i := range prices {
		d.AddSample(prices[i], model.IndicatorSnapshot{
			RSI:        proxy[i],
			MACD:       model.MACD{Histogram: proxy[i]},
			Stochastic: model.Stochastic{K: proxy[i]},
		})
	}

	got := d.Detect()
	require.Len(t, got, 3)
	assert.Equal(t, model.IndicatorRSI, got[0].Indicator)
	assert.Equal(t, model.IndicatorMACD, got[1].Indicator)
	assert.Equal(t, model.IndicatorStochastic, got[2].Indicator)
	for _, c := range got {
		assert.Equal(t, model.Bullish, c.Kind)
	}
}

func TestDetect_HistoryBounded(t *testing.T) {
	d := NewDetector(DefaultParams())
	for i := 0; i < 250; i++ {
		d.AddSample(float64(i), rsiSnap(50))
	}
	assert.Equal(t, 100, d.Len())
	for _, r := range d.proxy {
		assert.Equal(t, d.price.Len(), r.Len())
	}

	d.Reset()
	assert.Equal(t, 0, d.Len())
	assert.Empty(t, d.Detect())
}

func TestStrength_AlwaysInUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10000; i++ {
		p1 := ExtremePoint{Index: rng.Intn(5), Value: rng.NormFloat64() * 100}
		p2 := ExtremePoint{Index: rng.Intn(5), Value: rng.NormFloat64() * 100}
		i1 := ExtremePoint{Index: rng.Intn(5), Value: rng.NormFloat64() * 50}
		i2 := ExtremePoint{Index: rng.Intn(5), Value: rng.NormFloat64() * 50}

		s := strength(p1, p2, i1, i2)
		if s < 0 || s > 1 {
			t.Fatalf("strength out of range: %v (p1=%v p2=%v i1=%v i2=%v)", s, p1, p2, i1, i2)
		}
	}
}

func TestStrength_ZeroPriceReference(t *testing.T) {
	s := strength(
		ExtremePoint{Index: 1, Value: 0}, ExtremePoint{Index: 3, Value: -1},
		ExtremePoint{Index: 1, Value: 0.5}, ExtremePoint{Index: 3, Value: 1.5},
	)
	// price term dropped; indicator term 1/max(0.5,1) = 1
	assert.InDelta(t, 0.4, s, 1e-12)
}

func TestLocalExtrema(t *testing.T) {
	v := []float64{3, 1, 4, 1, 5}

	assert.Equal(t, []ExtremePoint{{1, 1}, {3, 1}}, localMinima(nil, v))
	assert.Equal(t, []ExtremePoint{{2, 4}}, localMaxima(nil, v))
	// plateaus are not strict extrema
	assert.Empty(t, localMaxima(nil, []float64{1, 2, 2, 1, 0}))
}
