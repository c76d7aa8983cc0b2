package pha

import (
	"fmt"

	"github.com/star/orbsub/internal/detector"
	"github.com/star/orbsub/internal/rebin"
	"github.com/star/orbsub/internal/region"
)

// RegionGapError records a region in which a detector has no samples, for
// example during a passage through high particle flux when the detectors
// are off.
type RegionGapError struct {
	Detector detector.ID
	Region   region.Kind
	Range    region.TimeRange
}

func (e *RegionGapError) Error() string {
	return fmt.Sprintf("*** Detector: %s, No data found: times: %.3f-%.3f, index: %s",
		e.Detector, e.Range.Start, e.Range.End, e.Region)
}

// Binned holds a detector's data rebinned onto each region's grid at the
// native resolution. Regions listed in Gaps are absent from Regions.
type Binned struct {
	Detector   detector.ID
	Resolution float64
	Regions    map[region.Kind]rebin.Series
	Gaps       []*RegionGapError
	EMin, EMax []float64
}

// OK reports whether every region has data.
func (b *Binned) OK() bool { return len(b.Gaps) == 0 }

// Bin extracts and rebins every region of regions. A region without samples
// is recorded in Gaps; the returned error is reserved for malformed input.
func Bin(raw *RawSeries, regions *region.Set) (*Binned, error) {
	mode, err := raw.Mode()
	if err != nil {
		return nil, fmt.Errorf("detector %s: %w", raw.Detector, err)
	}
	b := &Binned{
		Detector:   raw.Detector,
		Resolution: mode.Resolution(),
		Regions:    make(map[region.Kind]rebin.Series),
		EMin:       raw.EMin,
		EMax:       raw.EMax,
	}
	for _, k := range regions.Kinds() {
		tr, _ := regions.Range(k)
		in := raw.Extract(tr)
		if in.Len() == 0 {
			b.Gaps = append(b.Gaps, &RegionGapError{Detector: raw.Detector, Region: k, Range: tr})
			continue
		}
		out, err := rebin.Rebin(in, rebin.Options{Resolution: b.Resolution, Range: &tr})
		if err != nil {
			return nil, fmt.Errorf("detector %s region %s: %w", raw.Detector, k, err)
		}
		b.Regions[k] = out
	}
	return b, nil
}
