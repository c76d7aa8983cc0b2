package geometry

import (
	"github.com/star/orbsub/internal/detector"
	"github.com/star/orbsub/internal/region"
)

// Interval is a [Start, End) span of MET seconds.
type Interval = region.TimeRange

// MakeGTI turns a sampled flag series into intervals covering each run of
// true samples. A run ends at the first false sample; a run still open at
// the last sample ends one second after it.
func MakeGTI(time []float64, good []bool) []Interval {
	var out []Interval
	open := false
	var start float64
	for i, g := range good {
		switch {
		case g && !open:
			open = true
			start = time[i]
		case !g && open:
			open = false
			out = append(out, Interval{Start: start, End: time[i]})
		}
	}
	if open {
		out = append(out, Interval{Start: start, End: time[len(time)-1] + 1})
	}
	return out
}

// GTIs returns the good time intervals of every detector that sees the
// source at least once. Detectors that never see it are absent.
func GTIs(a Angles) map[detector.ID][]Interval {
	out := make(map[detector.ID][]Interval)
	for _, id := range detector.All {
		if _, ok := a.Detector[id]; !ok {
			continue
		}
		if gti := MakeGTI(a.Time, a.Visible(id)); len(gti) > 0 {
			out[id] = gti
		}
	}
	return out
}
