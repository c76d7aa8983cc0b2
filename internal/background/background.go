// Package background averages the counts of the offset orbits into a
// background estimate aligned with the on-source grid, and flags bins where
// the estimate cannot be trusted.
package background

import (
	"errors"
	"fmt"
	"math"

	"github.com/star/orbsub/internal/rebin"
	"github.com/star/orbsub/internal/region"
)

// Quality values follow the spectral file convention.
const (
	QualityGood    = 0
	QualityBad     = 1
	QualityDubious = 2
)

// DubiousBins is how many bins before a bad stretch are also flagged.
const DubiousBins = 10

var (
	// ErrNoSource is returned when the on-source region has no data.
	ErrNoSource = errors.New("background: no on-source data")
	// ErrNoBackground is returned when no offset region has data.
	ErrNoBackground = errors.New("background: no offset region has data")
)

// Params tunes the averaging.
type Params struct {
	// MarkDubious flags the bins before a bad stretch with QualityDubious
	// instead of QualityBad.
	MarkDubious bool
}

// Result is the background estimate for one detector. Every array is aligned
// with Source.
type Result struct {
	// Source is the on-source series with masked bins zeroed.
	Source rebin.Series

	Pre, Pos, All          [][]float64
	PreErr, PosErr, AllErr [][]float64

	// Exposure is the mean over every contributing offset region;
	// PreExposure and PosExposure cover one side each.
	Exposure, PreExposure, PosExposure []float64

	Mask    []bool
	Quality []int

	// Contributors counts the offset regions averaged on each side.
	PreCount, PosCount int
}

// MaskedBins returns the number of masked bins.
func (r *Result) MaskedBins() int {
	n := 0
	for _, m := range r.Mask {
		if m {
			n++
		}
	}
	return n
}

type side struct {
	sum, err2 [][]float64
	exp       []float64
	n         int
}

// Average combines the offset regions present in data. Regions missing from
// data had no samples and are left out of their side's mean.
func Average(data map[region.Kind]rebin.Series, offsets []region.Offset, p Params) (*Result, error) {
	src, ok := data[region.SrcKind]
	if !ok || src.Len() == 0 {
		return nil, ErrNoSource
	}
	nbin, nch := src.Len(), src.Channels()

	mask := make([]bool, nbin)
	markEmpty(mask, src.Counts)

	sides := map[region.Side]*side{region.Pre: {}, region.Pos: {}}
	for _, sd := range []region.Side{region.Pre, region.Pos} {
		acc := sides[sd]
		for _, o := range offsets {
			if o.IsSource() {
				continue
			}
			k := region.Kind{Side: sd, Offset: o}
			s, ok := data[k]
			if !ok {
				continue
			}
			if s.Len() != nbin || s.Channels() != nch {
				return nil, fmt.Errorf("background: region %s is %dx%d, source is %dx%d", k, s.Len(), s.Channels(), nbin, nch)
			}
			if acc.n == 0 {
				acc.sum = grid(nbin, nch)
				acc.err2 = grid(nbin, nch)
				acc.exp = make([]float64, nbin)
			}
			markEmpty(mask, s.Counts)
			for i := 0; i < nbin; i++ {
				for c := 0; c < nch; c++ {
					acc.sum[i][c] += s.Counts[i][c]
					acc.err2[i][c] += s.Error[i][c] * s.Error[i][c]
				}
				acc.exp[i] += s.Exposure[i]
			}
			acc.n++
		}
	}

	pre, pos := sides[region.Pre], sides[region.Pos]
	if pre.n == 0 && pos.n == 0 {
		return nil, ErrNoBackground
	}

	res := &Result{
		Source:   cloneSeries(src),
		PreCount: pre.n,
		PosCount: pos.n,
	}
	res.Pre, res.PreErr = pre.mean(nbin, nch)
	res.Pos, res.PosErr = pos.mean(nbin, nch)
	res.All, res.AllErr = combine(pre, pos, res)

	extendBack(mask)
	res.Mask = mask
	for i, m := range mask {
		if !m {
			continue
		}
		for _, arr := range [][][]float64{res.All, res.Pre, res.Pos, res.AllErr, res.PreErr, res.PosErr} {
			zero(arr[i])
		}
		zero(res.Source.Counts[i])
		if res.Source.Error != nil {
			zero(res.Source.Error[i])
		}
	}
	res.Quality = quality(mask, p.MarkDubious)

	res.Exposure = make([]float64, nbin)
	res.PreExposure = make([]float64, nbin)
	res.PosExposure = make([]float64, nbin)
	total := float64(pre.n + pos.n)
	for i := 0; i < nbin; i++ {
		var sum float64
		if pre.n > 0 {
			sum += pre.exp[i]
			res.PreExposure[i] = pre.exp[i] / float64(pre.n)
		}
		if pos.n > 0 {
			sum += pos.exp[i]
			res.PosExposure[i] = pos.exp[i] / float64(pos.n)
		}
		res.Exposure[i] = sum / total
	}
	return res, nil
}

// mean returns the side average and its error (1/n)*sqrt(sum err^2).
// An empty side yields zero arrays.
func (s *side) mean(nbin, nch int) ([][]float64, [][]float64) {
	avg, errs := grid(nbin, nch), grid(nbin, nch)
	if s.n == 0 {
		return avg, errs
	}
	k := 1 / float64(s.n)
	for i := 0; i < nbin; i++ {
		for c := 0; c < nch; c++ {
			avg[i][c] = s.sum[i][c] * k
			errs[i][c] = k * math.Sqrt(s.err2[i][c])
		}
	}
	return avg, errs
}

// combine takes the unweighted mean of the two sides with error
// 0.5*sqrt(preErr^2 + posErr^2). With one side empty the other is used alone.
func combine(pre, pos *side, r *Result) ([][]float64, [][]float64) {
	switch {
	case pos.n == 0:
		return cloneGrid(r.Pre), cloneGrid(r.PreErr)
	case pre.n == 0:
		return cloneGrid(r.Pos), cloneGrid(r.PosErr)
	}
	all, errs := grid(len(r.Pre), len(r.Pre[0])), grid(len(r.Pre), len(r.Pre[0]))
	for i := range all {
		for c := range all[i] {
			all[i][c] = (r.Pre[i][c] + r.Pos[i][c]) / 2
			errs[i][c] = 0.5 * math.Hypot(r.PreErr[i][c], r.PosErr[i][c])
		}
	}
	return all, errs
}

// markEmpty sets mask where the channel mean of counts is zero.
func markEmpty(mask []bool, counts [][]float64) {
	for i, row := range counts {
		var sum float64
		for _, v := range row {
			sum += v
		}
		if len(row) == 0 || sum/float64(len(row)) == 0 {
			mask[i] = true
		}
	}
}

// extendBack flags the bin before every transition into a masked stretch.
func extendBack(mask []bool) {
	for i := 1; i < len(mask); i++ {
		if mask[i] && !mask[i-1] {
			mask[i-1] = true
		}
	}
}

func quality(mask []bool, markDubious bool) []int {
	q := make([]int, len(mask))
	for i, m := range mask {
		if m {
			q[i] = QualityBad
		}
	}
	for i := 1; i < len(q); i++ {
		if q[i] != QualityBad || q[i-1] == QualityBad {
			continue
		}
		for j := max(0, i-DubiousBins); j < i; j++ {
			switch {
			case !markDubious:
				q[j] = QualityBad
			case q[j] == QualityGood:
				q[j] = QualityDubious
			}
		}
	}
	return q
}
