package pha

import (
	"fmt"
	"math"

	"github.com/star/orbsub/internal/background"
	"github.com/star/orbsub/internal/detector"
	"github.com/star/orbsub/internal/region"
)

// Subtracted is a detector's final product: the masked on-source series and
// its background estimate on the same grid.
type Subtracted struct {
	Detector   detector.ID
	Binned     *Binned
	Background *background.Result
}

// Subtract averages the offset regions of b into a background.
func Subtract(b *Binned, offsets []region.Offset, p background.Params) (*Subtracted, error) {
	res, err := background.Average(b.Regions, offsets, p)
	if err != nil {
		return nil, fmt.Errorf("detector %s: %w", b.Detector, err)
	}
	return &Subtracted{Detector: b.Detector, Binned: b, Background: res}, nil
}

// Class selects which light curve to build.
type Class string

const (
	Total      Class = "TOTAL"
	Net        Class = "NET"
	Background Class = "BKG"
)

// LightCurve is a channel-summed rate series.
type LightCurve struct {
	Edges [][2]float64
	Rate  []float64
	Err   []float64
}

// Masks restrict a light curve to selected bins and channels. A nil mask
// selects everything.
type Masks struct {
	Bins     []bool
	Channels []bool
}

// LightCurve sums counts over the selected channels and divides by exposure.
// Total and Net use the on-source exposure, Background the mean offset
// exposure. The rate error is sqrt(summed counts)/exposure for Total and
// Background; Net carries the on-source error, as the net counts are not
// Poisson distributed.
func (s *Subtracted) LightCurve(class Class, m Masks) (LightCurve, error) {
	src := s.Background.Source
	bkg := s.Background
	var lc LightCurve
	for i := range src.Counts {
		if m.Bins != nil && !m.Bins[i] {
			continue
		}
		var sum, srcSum float64
		for c := range src.Counts[i] {
			if m.Channels != nil && !m.Channels[c] {
				continue
			}
			srcSum += src.Counts[i][c]
			switch class {
			case Total:
				sum += src.Counts[i][c]
			case Net:
				sum += src.Counts[i][c] - bkg.All[i][c]
			case Background:
				sum += bkg.All[i][c]
			default:
				return LightCurve{}, fmt.Errorf("unknown light curve class %q", class)
			}
		}
		exp := src.Exposure[i]
		errCounts := sum
		switch class {
		case Background:
			exp = bkg.Exposure[i]
		case Net:
			errCounts = srcSum
		}
		var rate, rerr float64
		if exp > 0 {
			rate = sum / exp
			rerr = math.Sqrt(math.Max(errCounts, 0)) / exp
		}
		lc.Edges = append(lc.Edges, s.edge(i))
		lc.Rate = append(lc.Rate, rate)
		lc.Err = append(lc.Err, rerr)
	}
	return lc, nil
}

func (s *Subtracted) edge(i int) [2]float64 {
	src := s.Background.Source
	if src.Edges != nil {
		return src.Edges[i]
	}
	h := s.Binned.Resolution / 2
	return [2]float64{src.Centres[i] - h, src.Centres[i] + h}
}
