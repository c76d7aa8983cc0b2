package orbsub

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/star/orbsub/internal/background"
	"github.com/star/orbsub/internal/detector"
	"github.com/star/orbsub/internal/geometry"
	"github.com/star/orbsub/internal/met"
	"github.com/star/orbsub/internal/pha"
	"github.com/star/orbsub/internal/region"
)

// Request is the caller-supplied description of a run, as decoded from
// flags or a JSON body.
type Request struct {
	Tzero        float64    `json:"tzero"`
	TRange       [2]float64 `json:"trange"`
	Offsets      []string   `json:"offsets"`
	Detectors    []string   `json:"detectors"`
	Mode         string     `json:"mode"`
	RA           *float64   `json:"ra,omitempty"`
	Dec          *float64   `json:"dec,omitempty"`
	Geometry     bool       `json:"geometry"`
	KeepPeriod   bool       `json:"keep_period"`
	AllowPartial bool       `json:"allow_partial"`
	MarkDubious  bool       `json:"mark_dubious"`
	Name         string     `json:"name"`
	// SelectTimes are (low, high) pairs relative to Tzero; SelectEnergies
	// are keV pairs. Both restrict the written light curves.
	SelectTimes    [][2]float64 `json:"select_times,omitempty"`
	SelectEnergies [][2]float64 `json:"select_energies,omitempty"`
}

// Options is the normalised, read-only configuration of a run.
type Options struct {
	Tzero     float64
	TMin      float64
	TMax      float64
	Offsets   []region.Offset
	Detectors []detector.ID
	Mode      detector.Mode
	// Source is nil when no coordinates were given.
	Source *geometry.Source
	// Geometry requests GTI and occultation products.
	Geometry bool
	// RecalcPeriod measures the period from position history and
	// re-locates files when it disagrees with the assumed one.
	RecalcPeriod bool
	// AllowPartial continues past missing files.
	AllowPartial bool
	Background   background.Params
	// Selection holds absolute MET times and keV energies.
	Selection pha.Selection
	Name      string
}

// Notes collects the warnings and errors raised while normalising.
type Notes struct {
	Warnings []string
	Errors   []string
}

// NewOptions validates req and fills defaults. Problems that have a
// sensible default are reported in Notes; the error is reserved for
// requests that cannot be run.
func NewOptions(req Request, now time.Time) (Options, Notes, error) {
	var n Notes
	o := Options{
		Tzero:        req.Tzero,
		RecalcPeriod: !req.KeepPeriod,
		AllowPartial: req.AllowPartial,
		Background:   background.Params{MarkDubious: req.MarkDubious},
		Name:         req.Name,
	}
	if !met.InMission(req.Tzero, now) {
		return Options{}, n, fmt.Errorf("tzero %.3f: %w", req.Tzero, met.ErrOutsideMission)
	}

	if req.TRange[0] >= req.TRange[1] {
		return Options{}, n, fmt.Errorf("time range [%g, %g] is empty", req.TRange[0], req.TRange[1])
	}

	mode, err := detector.ParseMode(req.Mode)
	if err != nil {
		n.Errors = append(n.Errors, fmt.Sprintf("spectral type %q is not CTIME or CSPEC, defaulting to CSPEC", req.Mode))
		mode = detector.CSPEC
	}
	o.Mode = mode

	if len(req.Detectors) == 0 {
		n.Warnings = append(n.Warnings, "no detectors specified, defaulting to all")
	}
	o.Detectors, err = detector.ParseList(req.Detectors)
	if err != nil {
		return Options{}, n, err
	}

	offsets, err := region.ParseOffsets(append(append([]string(nil), req.Offsets...), region.Source.String()))
	if err != nil {
		return Options{}, n, err
	}
	o.Offsets = offsets

	// Snap the window so a bin edge falls on tzero.
	res := mode.Resolution()
	o.TMin = math.Trunc(req.TRange[0]/res)*res + res/2
	o.TMax = math.Trunc(req.TRange[1]/res) * res
	if o.TMin >= o.TMax {
		return Options{}, n, fmt.Errorf("time range [%g, %g] is shorter than one %s bin", req.TRange[0], req.TRange[1], mode)
	}

	switch {
	case req.RA != nil && req.Dec != nil:
		src := geometry.SourceFromDeg(*req.RA, *req.Dec)
		o.Source = &src
		o.Geometry = true
	case req.RA != nil || req.Dec != nil:
		n.Warnings = append(n.Warnings, "only one of RA/Dec given, geometry disabled")
	case req.Geometry:
		n.Warnings = append(n.Warnings, "GTI/occultation requested but no RA/Dec entered")
		o.Geometry = true
	}

	for _, p := range req.SelectTimes {
		if !finite(p) {
			return Options{}, n, fmt.Errorf("time selection %v is not finite", p)
		}
		o.Selection.Times = append(o.Selection.Times, [2]float64{req.Tzero + p[0], req.Tzero + p[1]})
	}
	for _, p := range req.SelectEnergies {
		if !finite(p) {
			return Options{}, n, fmt.Errorf("energy selection %v is not finite", p)
		}
		o.Selection.Energies = append(o.Selection.Energies, p)
	}

	if o.Name == "" {
		o.Name = met.RunName(req.Tzero)
	}
	return o, n, nil
}

func finite(p [2]float64) bool {
	return !math.IsNaN(p[0]) && !math.IsNaN(p[1]) && !math.IsInf(p[0], 0) && !math.IsInf(p[1], 0)
}

// OffsetTokens returns the offsets as strings.
func (o Options) OffsetTokens() []string {
	out := make([]string, len(o.Offsets))
	for i, off := range o.Offsets {
		out[i] = off.String()
	}
	return out
}

func (o Options) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "name %s tzero %.3f window [%.3f, %.3f] offsets %s mode %s dets %d",
		o.Name, o.Tzero, o.TMin, o.TMax, strings.Join(o.OffsetTokens(), ","), o.Mode, len(o.Detectors))
	if o.Source != nil {
		fmt.Fprintf(&b, " ra %.4f dec %.4f", o.Source.RA.Deg(), o.Source.Dec.Deg())
	}
	return b.String()
}
