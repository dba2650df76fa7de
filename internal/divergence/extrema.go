package divergence

import "math"

// ExtremePoint is a local maximum or minimum of a scalar series.
// Index is relative to the detection window.
type ExtremePoint struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

// localMaxima returns the interior indices i where v[i] is strictly greater
// than both neighbours, in index order. Endpoints are never extrema.
func localMaxima(dst []ExtremePoint, v []float64) []ExtremePoint {
	for i := 1; i < len(v)-1; i++ {
		if v[i] > v[i-1] && v[i] > v[i+1] {
			dst = append(dst, ExtremePoint{Index: i, Value: v[i]})
		}
	}
	return dst
}

// localMinima is the mirror of localMaxima.
func localMinima(dst []ExtremePoint, v []float64) []ExtremePoint {
	for i := 1; i < len(v)-1; i++ {
		if v[i] < v[i-1] && v[i] < v[i+1] {
			dst = append(dst, ExtremePoint{Index: i, Value: v[i]})
		}
	}
	return dst
}

// lastTwo returns the two most recent points of pts.
func lastTwo(pts []ExtremePoint) (first, second ExtremePoint, ok bool) {
	if len(pts) < 2 {
		return ExtremePoint{}, ExtremePoint{}, false
	}
	return pts[len(pts)-2], pts[len(pts)-1], true
}

// gapScale is the index distance at which the time factor saturates at 1.
const gapScale = 5.0

// strength scores a divergence between two price extrema and two indicator
// extrema:
//
//	min(1, (|p2-p1|/|p1| + |i2-i1|/max(|i1|, 1)) * min(gap/5, 1))
//
// A zero price reference contributes no relative change.
func strength(p1, p2, i1, i2 ExtremePoint) float64 {
	var relPrice float64
	if ref := math.Abs(p1.Value); ref != 0 {
		relPrice = math.Abs(p2.Value-p1.Value) / ref
	}
	relInd := math.Abs(i2.Value-i1.Value) / math.Max(math.Abs(i1.Value), 1)

	gap := float64(p2.Index - p1.Index)
	if gap < 0 {
		gap = -gap
	}
	timeFactor := math.Min(gap/gapScale, 1)

	return math.Min(1, (relPrice+relInd)*timeFactor)
}
