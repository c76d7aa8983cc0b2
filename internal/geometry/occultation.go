package geometry

import (
	"fmt"
	"math"

	"github.com/soniakeys/coord"

	"github.com/star/orbsub/internal/transform"
)

// Earth model for the occultation test.
const (
	EarthRadius     = 6378136.0 // m
	EarthFlattening = 1 / 298.257
	// HorizonAltitude is the height of the absorbing atmosphere above the
	// surface; a line of sight passing below it is occulted.
	HorizonAltitude = 70000.0 // m
)

// Steps are the times the source sets behind and rises above the horizon.
type Steps struct {
	Rises []float64 `json:"rises"`
	Sets  []float64 `json:"sets"`
}

// InconsistentGeometryError reports rise and set counts that no pairing
// rule can reconcile.
type InconsistentGeometryError struct {
	Rises, Sets int
	Reason      string
}

func (e *InconsistentGeometryError) Error() string {
	return fmt.Sprintf("geometry: %d rises and %d sets cannot be paired: %s", e.Rises, e.Sets, e.Reason)
}

// lineOfSight returns the minimum altitude above the oblate Earth of the
// ray from p toward s, and the ray parameter at which it occurs. Negative
// parameters mean the closest approach lies behind the spacecraft.
func lineOfSight(p, s *coord.Cart) (hmin, smin float64) {
	k := 1 / (1 - EarthFlattening)
	// Stretch z so the ellipsoid becomes a sphere of the equatorial radius.
	ps := coord.Cart{X: p.X, Y: p.Y, Z: p.Z * k}
	ss := coord.Cart{X: s.X, Y: s.Y, Z: s.Z * k}
	ds := ps.Dot(&ss)
	s2 := ss.Square()
	smin = -ds / s2
	d2 := ps.Square() - ds*ds/s2
	if d2 < 0 {
		d2 = 0
	}
	return math.Sqrt(d2) - EarthRadius, smin
}

// OccultationSteps finds the horizon crossings of the source over the
// sampled positions (metres) by linear interpolation between samples.
func OccultationSteps(src Source, time []float64, pos []coord.Cart) Steps {
	s := transform.SourceVector(src.RA, src.Dec)
	n := len(time)
	h := make([]float64, n)
	front := make([]bool, n)
	for i := 0; i < n; i++ {
		hm, sm := lineOfSight(&pos[i], &s)
		h[i] = hm
		front[i] = sm >= 0
	}

	var st Steps
	for i := 0; i+1 < n; i++ {
		if !front[i] || !front[i+1] {
			continue
		}
		below0 := h[i] <= HorizonAltitude
		below1 := h[i+1] <= HorizonAltitude
		if below0 == below1 {
			continue
		}
		t := (HorizonAltitude-h[i])/(h[i+1]-h[i])*(time[i+1]-time[i]) + time[i]
		if below0 {
			st.Rises = append(st.Rises, t)
		} else {
			st.Sets = append(st.Sets, t)
		}
	}
	return st
}

// OccultationIntervals pairs sets with rises into intervals during which the
// source is behind the Earth, for observations spanning [start, end].
func OccultationIntervals(st Steps, start, end float64) ([]Interval, error) {
	rises, sets := st.Rises, st.Sets
	nr, ns := len(rises), len(sets)

	pair := func(sets, rises []float64) []Interval {
		out := make([]Interval, len(sets))
		for i := range sets {
			out[i] = Interval{Start: sets[i], End: rises[i]}
		}
		return out
	}

	switch {
	case nr == ns:
		if nr == 0 {
			return nil, nil
		}
		if sets[0] < rises[0] {
			return pair(sets, rises), nil
		}
		// Occulted at the start and again at the end.
		s := append([]float64{start}, sets...)
		r := append(append([]float64(nil), rises...), end)
		return pair(s, r), nil

	case ns > nr:
		if ns != nr+1 {
			return nil, &InconsistentGeometryError{Rises: nr, Sets: ns, Reason: "more than one extra set"}
		}
		if nr > 0 && sets[0] > rises[0] {
			return nil, &InconsistentGeometryError{Rises: nr, Sets: ns, Reason: "extra set but first rise precedes first set"}
		}
		return pair(sets[:ns-1], rises), nil

	default:
		if nr != ns+1 {
			return nil, &InconsistentGeometryError{Rises: nr, Sets: ns, Reason: "more than one extra rise"}
		}
		if ns > 0 && rises[0] > sets[0] {
			return nil, &InconsistentGeometryError{Rises: nr, Sets: ns, Reason: "extra rise but first set precedes first rise"}
		}
		return pair(sets, rises[1:]), nil
	}
}
