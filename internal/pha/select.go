package pha

import (
	"fmt"

	"github.com/star/orbsub/internal/rebin"
)

// Selection restricts light curves to time and energy ranges. Times are MET
// seconds and energies keV, both as (low, high) pairs. An empty list selects
// everything on that axis.
type Selection struct {
	Times    [][2]float64
	Energies [][2]float64
}

// Empty reports whether s selects everything.
func (s Selection) Empty() bool { return len(s.Times) == 0 && len(s.Energies) == 0 }

// Masks snaps sel to the bin and channel boundaries of the on-source series
// and returns the matching masks. A bin or channel is kept when it lies
// wholly inside any snapped pair.
func (s *Subtracted) Masks(sel Selection) (Masks, error) {
	var m Masks
	if len(sel.Times) > 0 {
		n := s.Background.Source.Len()
		left := make([]float64, n)
		right := make([]float64, n)
		for i := range left {
			e := s.edge(i)
			left[i], right[i] = e[0], e[1]
		}
		bins, err := mask(sel.Times, left, right)
		if err != nil {
			return Masks{}, fmt.Errorf("time selection: %w", err)
		}
		m.Bins = bins
	}
	if len(sel.Energies) > 0 {
		ch, err := mask(sel.Energies, s.Binned.EMin, s.Binned.EMax)
		if err != nil {
			return Masks{}, fmt.Errorf("energy selection: %w", err)
		}
		m.Channels = ch
	}
	return m, nil
}

func mask(pairs [][2]float64, left, right []float64) ([]bool, error) {
	vals := make([]float64, 0, 2*len(pairs))
	for _, p := range pairs {
		vals = append(vals, p[0], p[1])
	}
	snapped, err := rebin.NearestEdges(vals, left, right)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(left))
	for i := range out {
		for j := 0; j < len(snapped); j += 2 {
			if left[i] >= snapped[j] && right[i] <= snapped[j+1] {
				out[i] = true
				break
			}
		}
	}
	return out, nil
}
