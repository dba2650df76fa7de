// Package confirm holds the weighted confirmation rules that gate a
// divergence before it becomes an actionable signal.
//
// Each table has five rules whose weights sum to 1.0. Rules are pure
// functions of the current snapshot and the snapshot history; the history
// always ends with the current snapshot, so the previous snapshot is
// history[len(history)-2].
package confirm

import "signal-systemv1/internal/model"

// Thresholds used by the rules.
const (
	RSIOversold     = 30.0
	RSIOverbought   = 70.0
	ADXTrending     = 25.0
	StochOverbought = 80.0
	StochOversold   = 20.0
	histogramTrendN = 3
)

// Rule is one weighted boolean predicate.
type Rule struct {
	Name   string
	Weight float64
	Check  func(cur model.IndicatorSnapshot, history []model.IndicatorSnapshot) bool
}

// Outcome is the result of evaluating a table.
type Outcome struct {
	Count   int      `json:"count"`
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

// bullishRules confirms a bullish divergence.
var bullishRules = [...]Rule{
	{Name: "MACD histogram rising", Weight: 0.30, Check: histogramRising},
	{Name: "Fast EMA above slow EMA", Weight: 0.25, Check: emaBullish},
	{Name: "RSI crossed above 30", Weight: 0.20, Check: rsiCrossedUp},
	{Name: "ADX above 25", Weight: 0.15, Check: adxTrending},
	{Name: "Stochastic %K above %D", Weight: 0.10, Check: stochBullish},
}

// bearishRules confirms a bearish divergence.
var bearishRules = [...]Rule{
	{Name: "MACD histogram falling", Weight: 0.30, Check: histogramFalling},
	{Name: "Fast EMA below slow EMA", Weight: 0.25, Check: emaBearish},
	{Name: "RSI crossed below 70", Weight: 0.20, Check: rsiCrossedDown},
	{Name: "ADX above 25", Weight: 0.15, Check: adxTrending},
	{Name: "Stochastic %K below %D", Weight: 0.10, Check: stochBearish},
}

// ForKind returns a copy of the table matching a divergence direction.
// Callers may modify the copy without affecting later lookups.
func ForKind(kind model.DivergenceKind) []Rule {
	t := bullishRules
	if kind == model.Bearish {
		t = bearishRules
	}
	return t[:]
}

// Evaluate runs every rule of table. Reasons list passing rule names in
// table order.
func Evaluate(cur model.IndicatorSnapshot, history []model.IndicatorSnapshot, table []Rule) Outcome {
	var out Outcome
	for _, r := range table {
		if r.Check(cur, history) {
			out.Count++
			out.Score += r.Weight
			out.Reasons = append(out.Reasons, r.Name)
		}
	}
	return out
}

// TotalWeight sums the weights of table.
func TotalWeight(table []Rule) float64 {
	var sum float64
	for _, r := range table {
		sum += r.Weight
	}
	return sum
}

// ── MACD histogram ──

func histogramRising(_ model.IndicatorSnapshot, h []model.IndicatorSnapshot) bool {
	return histogramMonotone(h, func(a, b float64) bool { return b > a })
}

func histogramFalling(_ model.IndicatorSnapshot, h []model.IndicatorSnapshot) bool {
	return histogramMonotone(h, func(a, b float64) bool { return b < a })
}

// histogramMonotone reports whether the last three histogram values satisfy
// step pairwise.
func histogramMonotone(h []model.IndicatorSnapshot, step func(a, b float64) bool) bool {
	if len(h) < histogramTrendN {
		return false
	}
	last := h[len(h)-histogramTrendN:]
	for i := 1; i < len(last); i++ {
		if !step(last[i-1].MACD.Histogram, last[i].MACD.Histogram) {
			return false
		}
	}
	return true
}

// ── EMA ordering ──

func emaBullish(cur model.IndicatorSnapshot, _ []model.IndicatorSnapshot) bool {
	return cur.EMA.Fast > cur.EMA.Slow
}

func emaBearish(cur model.IndicatorSnapshot, _ []model.IndicatorSnapshot) bool {
	return cur.EMA.Fast < cur.EMA.Slow
}

// ── RSI threshold cross ──

func rsiCrossedUp(cur model.IndicatorSnapshot, h []model.IndicatorSnapshot) bool {
	prev, ok := previous(h)
	return ok && prev.RSI < RSIOversold && cur.RSI > RSIOversold
}

func rsiCrossedDown(cur model.IndicatorSnapshot, h []model.IndicatorSnapshot) bool {
	prev, ok := previous(h)
	return ok && prev.RSI > RSIOverbought && cur.RSI < RSIOverbought
}

func previous(h []model.IndicatorSnapshot) (model.IndicatorSnapshot, bool) {
	if len(h) < 2 {
		return model.IndicatorSnapshot{}, false
	}
	return h[len(h)-2], true
}

// ── ADX / Stochastic ──

func adxTrending(cur model.IndicatorSnapshot, _ []model.IndicatorSnapshot) bool {
	return cur.ADX > ADXTrending
}

func stochBullish(cur model.IndicatorSnapshot, _ []model.IndicatorSnapshot) bool {
	return cur.Stochastic.K > cur.Stochastic.D && cur.Stochastic.K < StochOverbought
}

func stochBearish(cur model.IndicatorSnapshot, _ []model.IndicatorSnapshot) bool {
	return cur.Stochastic.K < cur.Stochastic.D && cur.Stochastic.K > StochOversold
}
