package confirm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"signal-systemv1/internal/model"
)

func snap(rsi, hist, fast, slow, adx, k, d float64) model.IndicatorSnapshot {
	return model.IndicatorSnapshot{
		RSI:        rsi,
		MACD:       model.MACD{Histogram: hist},
		EMA:        model.EMAPair{Fast: fast, Slow: slow},
		ADX:        adx,
		Stochastic: model.Stochastic{K: k, D: d},
	}
}

func TestTables_WeightsSumToOne(t *testing.T) {
	for name, table := range map[string][]Rule{"bullish": ForKind(model.Bullish), "bearish": ForKind(model.Bearish)} {
		assert.Len(t, table, 5, name)
		assert.InDelta(t, 1.0, TotalWeight(table), 1e-9, name)
	}
}

func TestForKind(t *testing.T) {
	assert.Equal(t, "MACD histogram rising", ForKind(model.Bullish)[0].Name)
	assert.Equal(t, "MACD histogram falling", ForKind(model.Bearish)[0].Name)
}

func TestForKind_ReturnsCopy(t *testing.T) {
	table := ForKind(model.Bullish)
	table[0].Weight = 5
	table[1].Name = "changed"

	again := ForKind(model.Bullish)
	assert.Equal(t, 0.30, again[0].Weight)
	assert.Equal(t, "Fast EMA above slow EMA", again[1].Name)
	assert.InDelta(t, 1.0, TotalWeight(again), 1e-9)
}

func TestEvaluate_AllBullishRulesPass(t *testing.T) {
	h := []model.IndicatorSnapshot{
		snap(25, 0.1, 1.0, 1.1, 30, 40, 38),
		snap(28, 0.2, 1.0, 1.1, 30, 40, 38),
		snap(35, 0.3, 1.2, 1.1, 30, 40, 38),
	}
	cur := h[len(h)-1]

	out := Evaluate(cur, h, ForKind(model.Bullish))

	assert.Equal(t, 5, out.Count)
	assert.InDelta(t, 1.0, out.Score, 1e-9)
	assert.Equal(t, []string{
		"MACD histogram rising",
		"Fast EMA above slow EMA",
		"RSI crossed above 30",
		"ADX above 25",
		"Stochastic %K above %D",
	}, out.Reasons)
}

func TestEvaluate_AllBearishRulesPass(t *testing.T) {
	h := []model.IndicatorSnapshot{
		snap(75, 0.3, 1.2, 1.1, 30, 60, 62),
		snap(72, 0.2, 1.2, 1.1, 30, 60, 62),
		snap(65, 0.1, 1.0, 1.1, 30, 60, 62),
	}
	cur := h[len(h)-1]

	out := Evaluate(cur, h, ForKind(model.Bearish))

	assert.Equal(t, 5, out.Count)
	assert.InDelta(t, 1.0, out.Score, 1e-9)
}

func TestEvaluate_PartialScore(t *testing.T) {
	// Only EMA ordering (0.25) and ADX (0.15) hold.
	h := []model.IndicatorSnapshot{
		snap(50, 0.3, 1.0, 1.0, 20, 50, 50),
		snap(50, 0.2, 1.2, 1.1, 40, 85, 80.75),
	}
	out := Evaluate(h[1], h, ForKind(model.Bullish))

	assert.Equal(t, 2, out.Count)
	assert.InDelta(t, 0.40, out.Score, 1e-9)
	assert.Equal(t, []string{"Fast EMA above slow EMA", "ADX above 25"}, out.Reasons)
}

func TestRules_ShortHistoryIsFalse(t *testing.T) {
	cur := snap(35, 0.3, 1, 1, 25, 50, 50)

	tests := []struct {
		name    string
		check   func(model.IndicatorSnapshot, []model.IndicatorSnapshot) bool
		history []model.IndicatorSnapshot
	}{
		{"histogram rising, 2 entries", histogramRising, []model.IndicatorSnapshot{snap(0, 0.1, 0, 0, 0, 0, 0), cur}},
		{"histogram falling, empty", histogramFalling, nil},
		{"rsi cross up, 1 entry", rsiCrossedUp, []model.IndicatorSnapshot{cur}},
		{"rsi cross down, empty", rsiCrossedDown, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.check(cur, tt.history))
		})
	}
}

func TestRules_Boundaries(t *testing.T) {
	tests := []struct {
		name  string
		check func(model.IndicatorSnapshot, []model.IndicatorSnapshot) bool
		cur   model.IndicatorSnapshot
		want  bool
	}{
		{"ADX exactly 25", adxTrending, snap(0, 0, 0, 0, 25, 0, 0), false},
		{"ADX 25.01", adxTrending, snap(0, 0, 0, 0, 25.01, 0, 0), true},
		{"EMA equal is not bullish", emaBullish, snap(0, 0, 1, 1, 0, 0, 0), false},
		{"EMA equal is not bearish", emaBearish, snap(0, 0, 1, 1, 0, 0, 0), false},
		{"stoch K at 80", stochBullish, snap(0, 0, 0, 0, 0, 80, 76), false},
		{"stoch K 79.9", stochBullish, snap(0, 0, 0, 0, 0, 79.9, 75.9), true},
		{"stoch K at 20", stochBearish, snap(0, 0, 0, 0, 0, 20, 21), false},
		{"neutral stochastic 50/50", stochBullish, snap(0, 0, 0, 0, 0, 50, 50), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.cur, nil))
		})
	}
}

func TestRules_HistogramStrictlyMonotone(t *testing.T) {
	flat := []model.IndicatorSnapshot{
		snap(0, 0.1, 0, 0, 0, 0, 0),
		snap(0, 0.2, 0, 0, 0, 0, 0),
		snap(0, 0.2, 0, 0, 0, 0, 0),
	}
	assert.False(t, histogramRising(flat[2], flat))

	// Only the last three entries count.
	h := []model.IndicatorSnapshot{
		snap(0, 9, 0, 0, 0, 0, 0),
		snap(0, 0.1, 0, 0, 0, 0, 0),
		snap(0, 0.2, 0, 0, 0, 0, 0),
		snap(0, 0.3, 0, 0, 0, 0, 0),
	}
	assert.True(t, histogramRising(h[3], h))
	assert.False(t, histogramFalling(h[3], h))
}
