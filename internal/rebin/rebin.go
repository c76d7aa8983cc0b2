// Package rebin resamples time-binned counts onto a uniform grid by linear
// interpolation of the count rate.
package rebin

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"

	"github.com/star/orbsub/internal/region"
)

// ErrEmptyInput is returned when there are no native bins to interpolate.
var ErrEmptyInput = errors.New("rebin: no input bins")

// Series is a time-binned count series. Either Centres or Edges locates the
// bins; Edges wins when both are set. Counts and Error are bins x channels.
type Series struct {
	Centres  []float64
	Edges    [][2]float64
	Counts   [][]float64
	Exposure []float64
	Error    [][]float64
}

// Len returns the number of bins.
func (s Series) Len() int { return len(s.Counts) }

// Channels returns the channel count, 0 for an empty series.
func (s Series) Channels() int {
	if len(s.Counts) == 0 {
		return 0
	}
	return len(s.Counts[0])
}

// Options controls the output grid.
type Options struct {
	// Resolution is the output bin width in seconds. Zero selects the
	// coarsest native exposure rounded to the millisecond.
	Resolution float64
	// Range fixes the output extent; nil uses the first native centre to
	// the last.
	Range *region.TimeRange
}

// Rebin resamples in onto a grid of fixed resolution.
//
// Counts are recovered from the linearly interpolated rate. Exposure is
// interpolated as a density when edges are given; without edges full live
// time is assumed for every output bin, which overstates exposure when there
// is dead time.
func Rebin(in Series, opts Options) (Series, error) {
	n := in.Len()
	if n == 0 {
		return Series{}, ErrEmptyInput
	}
	if err := validate(in); err != nil {
		return Series{}, err
	}

	withEdges := in.Edges != nil
	x := in.Centres
	var width []float64
	if withEdges {
		x = make([]float64, n)
		width = make([]float64, n)
		for i, e := range in.Edges {
			width[i] = e[1] - e[0]
			x[i] = e[0] + width[i]/2
		}
	}

	res := opts.Resolution
	if res <= 0 {
		res = math.Round(floats.Max(in.Exposure)*1000) / 1000
		if res <= 0 {
			return Series{}, fmt.Errorf("rebin: cannot infer resolution from exposure")
		}
	}

	start, end := x[0], x[n-1]
	if opts.Range != nil {
		start, end = opts.Range.Start, opts.Range.End
	}
	x1 := arange(start, end, res)

	exp1 := make([]float64, len(x1))
	if withEdges {
		density := make([]float64, n)
		for i := range density {
			if width[i] > 0 {
				density[i] = in.Exposure[i] / width[i]
			}
		}
		f, err := fit(x, density)
		if err != nil {
			return Series{}, err
		}
		for i, c := range x1 {
			exp1[i] = f.Predict(c) * res
		}
	} else {
		for i := range exp1 {
			exp1[i] = res
		}
	}

	nch := in.Channels()
	out := Series{
		Centres:  x1,
		Counts:   grid(len(x1), nch),
		Exposure: exp1,
		Error:    grid(len(x1), nch),
	}
	rate := make([]float64, n)
	for c := 0; c < nch; c++ {
		for i := 0; i < n; i++ {
			rate[i] = perExposure(in.Counts[i][c], in.Exposure[i])
		}
		f, err := fit(x, rate)
		if err != nil {
			return Series{}, err
		}
		for i, t := range x1 {
			out.Counts[i][c] = f.Predict(t) * exp1[i]
		}
		if in.Error == nil {
			for i := range x1 {
				out.Error[i][c] = math.Sqrt(out.Counts[i][c])
			}
			continue
		}
		for i := 0; i < n; i++ {
			rate[i] = perExposure(in.Error[i][c], in.Exposure[i])
		}
		if f, err = fit(x, rate); err != nil {
			return Series{}, err
		}
		for i, t := range x1 {
			out.Error[i][c] = f.Predict(t) * exp1[i]
		}
	}

	if withEdges {
		out.Edges = make([][2]float64, len(x1))
		for i, c := range x1 {
			out.Edges[i] = [2]float64{c - res/2, c + res/2}
		}
	}
	return out, nil
}

func validate(in Series) error {
	n := in.Len()
	if in.Edges != nil && len(in.Edges) != n {
		return fmt.Errorf("rebin: %d edges for %d bins", len(in.Edges), n)
	}
	if in.Edges == nil && len(in.Centres) != n {
		return fmt.Errorf("rebin: %d centres for %d bins", len(in.Centres), n)
	}
	if len(in.Exposure) != n {
		return fmt.Errorf("rebin: %d exposures for %d bins", len(in.Exposure), n)
	}
	if in.Error != nil && len(in.Error) != n {
		return fmt.Errorf("rebin: %d error rows for %d bins", len(in.Error), n)
	}
	nch := in.Channels()
	for i, row := range in.Counts {
		if len(row) != nch {
			return fmt.Errorf("rebin: bin %d has %d channels, want %d", i, len(row), nch)
		}
	}
	return nil
}

func perExposure(v, exp float64) float64 {
	if exp <= 0 {
		return 0
	}
	return v / exp
}

// arange returns start, start+step, ... strictly below stop.
func arange(start, stop, step float64) []float64 {
	n := int(math.Ceil((stop-start)/step - 1e-9))
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{start}
	}
	return floats.Span(make([]float64, n), start, start+float64(n-1)*step)
}

// constant predicts the value of a single native sample everywhere.
type constant float64

func (c constant) Predict(float64) float64 { return float64(c) }

// fit returns the piecewise linear function through (xs, ys). It holds
// the end values outside the sampled range, and a single sample fills
// the whole grid.
func fit(xs, ys []float64) (interp.Predictor, error) {
	if len(xs) == 1 {
		return constant(ys[0]), nil
	}
	for i := 1; i < len(xs); i++ {
		if !(xs[i] > xs[i-1]) {
			return nil, fmt.Errorf("rebin: bin centres not increasing at %d", i)
		}
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, fmt.Errorf("rebin: %w", err)
	}
	return &pl, nil
}

func grid(rows, cols int) [][]float64 {
	buf := make([]float64, rows*cols)
	out := make([][]float64, rows)
	for i := range out {
		out[i] = buf[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return out
}
