package rebin

import (
	"fmt"
	"math"
)

// NearestEdges snaps selection pairs to bin boundaries. vals holds pairs
// (a0, b0, a1, b1, ...); each pair is ordered, then its low end is moved to
// the nearest left edge and its high end to the nearest right edge.
func NearestEdges(vals, left, right []float64) ([]float64, error) {
	if len(vals)%2 != 0 {
		return nil, fmt.Errorf("nearest edges: odd number of values (%d)", len(vals))
	}
	if len(left) == 0 || len(right) == 0 {
		return nil, fmt.Errorf("nearest edges: no bin edges")
	}
	out := make([]float64, 0, len(vals))
	for i := 0; i < len(vals); i += 2 {
		lo, hi := vals[i], vals[i+1]
		if lo > hi {
			lo, hi = hi, lo
		}
		out = append(out, nearest(left, lo), nearest(right, hi))
	}
	return out, nil
}

func nearest(edges []float64, v float64) float64 {
	best := edges[0]
	for _, e := range edges[1:] {
		if math.Abs(e-v) < math.Abs(best-v) {
			best = e
		}
	}
	return best
}
