package orbsub

import (
	"errors"
	"fmt"
	"time"

	"github.com/star/orbsub/internal/export"
	"github.com/star/orbsub/internal/met"
	"github.com/star/orbsub/internal/region"
)

// WriteOutputs writes the light curves of every subtracted detector into
// dir and returns the paths written.
func (r *Run) WriteOutputs(dir string, net bool) ([]string, error) {
	var paths []string
	var errs []error
	for _, id := range r.opts.Detectors {
		res := r.results[id]
		if res == nil || res.Product == nil {
			continue
		}
		m, err := res.Product.Masks(r.opts.Selection)
		if err != nil {
			errs = append(errs, fmt.Errorf("detector %s: %w", id, err))
			continue
		}
		p, err := export.WriteDetector(dir, r.opts.Name, res.Product, m, net)
		paths = append(paths, p...)
		if err != nil {
			errs = append(errs, fmt.Errorf("detector %s: %w", id, err))
		}
	}
	return paths, errors.Join(errs...)
}

// Summary reports the run in its current state.
func (r *Run) Summary(ok bool, outputs []string) *export.Summary {
	s := &export.Summary{
		ID:        r.id,
		Name:      r.opts.Name,
		State:     r.state.String(),
		OK:        ok,
		Tzero:     r.opts.Tzero,
		UTC:       met.ToTime(r.opts.Tzero),
		Mode:      string(r.opts.Mode),
		Offsets:   r.opts.OffsetTokens(),
		Window:    [2]float64{r.opts.TMin, r.opts.TMax},
		Period:    r.period,
		Outputs:   outputs,
		StartedAt: r.started,
		Duration:  time.Since(r.started).Seconds(),
		Messages:  make(map[string][]string),
	}
	if r.regions != nil {
		s.Regions = make(map[region.Kind]export.Range, len(r.regions.Kinds()))
		for _, k := range r.regions.Kinds() {
			tr, _ := r.regions.Range(k)
			s.Regions[k] = tr
		}
	}
	if r.files != nil {
		for _, d := range r.files.Days {
			s.Days = append(s.Days, string(d))
		}
		s.Missing = len(r.files.Missing.Attitude)
		for _, days := range r.files.Missing.Spectra {
			for _, ids := range days {
				s.Missing += len(ids)
			}
		}
	}
	for _, id := range r.opts.Detectors {
		d := export.DetectorSummary{Detector: string(id), Label: id.Label(), GTI: r.gti[id]}
		if res := r.results[id]; res != nil {
			d.OK = res.OK()
			for _, g := range res.Gaps {
				d.Gaps = append(d.Gaps, g.Region.String())
			}
			if res.Err != nil {
				d.Error = res.Err.Error()
			}
			if res.Product != nil {
				d.Bins = res.Product.Background.Source.Len()
				d.MaskedBins = res.Product.Background.MaskedBins()
			}
		}
		s.Detectors = append(s.Detectors, d)
	}
	s.Occultation = r.occult
	if r.pos != nil {
		if g, err := r.pos.SubPointAt(r.opts.Tzero); err == nil {
			s.SubPoint = &g
		}
	}
	for _, stage := range []string{StageOptions, StageFiles, StagePeriod, StageGTI, StageOccultation, StageOrbsub} {
		if m := r.Messages(stage); len(m) > 0 {
			s.Messages[stage] = m
		}
	}
	return s
}
