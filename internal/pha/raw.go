// Package pha carries one detector's spectral data through a run: the
// concatenated raw reads, the per-region rebinned series and the background
// subtracted result. Each stage returns a new value.
package pha

import (
	"fmt"

	"github.com/star/orbsub/internal/detector"
	"github.com/star/orbsub/internal/rebin"
	"github.com/star/orbsub/internal/region"
)

// Spectrum is one file's worth of binned spectral data, with bad-quality
// bins already removed by the reader.
type Spectrum struct {
	Start, End, Exposure []float64
	Counts               [][]float64
	EMin, EMax           []float64
}

// Len returns the number of time bins.
func (s Spectrum) Len() int { return len(s.Start) }

func (s Spectrum) validate() error {
	n := s.Len()
	if len(s.End) != n || len(s.Exposure) != n || len(s.Counts) != n {
		return fmt.Errorf("%d starts, %d ends, %d exposures, %d count rows", n, len(s.End), len(s.Exposure), len(s.Counts))
	}
	if len(s.EMin) != len(s.EMax) {
		return fmt.Errorf("%d lower and %d upper energy edges", len(s.EMin), len(s.EMax))
	}
	for i, row := range s.Counts {
		if len(row) != len(s.EMin) {
			return fmt.Errorf("bin %d has %d channels, want %d", i, len(row), len(s.EMin))
		}
	}
	return nil
}

// RawSeries is the concatenation of a detector's reads across the days of
// a run.
type RawSeries struct {
	Detector detector.ID
	Spectrum
}

// Concat joins per-day reads in order. Energy edges come from the first
// part and every part must have the same channel count.
func Concat(id detector.ID, parts ...Spectrum) (*RawSeries, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("detector %s: no spectral data", id)
	}
	raw := &RawSeries{Detector: id}
	raw.EMin = append([]float64(nil), parts[0].EMin...)
	raw.EMax = append([]float64(nil), parts[0].EMax...)
	for i, p := range parts {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("detector %s part %d: %w", id, i, err)
		}
		if len(p.EMin) != len(raw.EMin) {
			return nil, fmt.Errorf("detector %s part %d: %d channels, want %d", id, i, len(p.EMin), len(raw.EMin))
		}
		raw.Start = append(raw.Start, p.Start...)
		raw.End = append(raw.End, p.End...)
		raw.Exposure = append(raw.Exposure, p.Exposure...)
		raw.Counts = append(raw.Counts, p.Counts...)
	}
	return raw, nil
}

// Mode infers CTIME or CSPEC from the channel count.
func (r *RawSeries) Mode() (detector.Mode, error) {
	return detector.ModeForChannels(len(r.EMin))
}

// Extract returns the bins lying entirely within tr, in edge form.
func (r *RawSeries) Extract(tr region.TimeRange) rebin.Series {
	var s rebin.Series
	for i := range r.Start {
		if !tr.Covers(r.Start[i], r.End[i]) {
			continue
		}
		s.Edges = append(s.Edges, [2]float64{r.Start[i], r.End[i]})
		s.Counts = append(s.Counts, r.Counts[i])
		s.Exposure = append(s.Exposure, r.Exposure[i])
	}
	return s
}
