// Package orbsub sequences an orbital background subtraction: locate the
// data files, reconcile the orbital period, derive the source geometry and
// subtract the averaged offset-orbit background from every detector.
//
// Every stage reports a success flag and appends human-readable messages
// instead of returning errors, so the caller decides after each stage
// whether to download, retry or stop.
package orbsub

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/star/orbsub/internal/detector"
	"github.com/star/orbsub/internal/fetch"
	"github.com/star/orbsub/internal/geometry"
	"github.com/star/orbsub/internal/locate"
	"github.com/star/orbsub/internal/met"
	"github.com/star/orbsub/internal/metrics"
	"github.com/star/orbsub/internal/pha"
	"github.com/star/orbsub/internal/region"
)

// PeriodTolerance is the largest accepted difference, seconds, between the
// measured and the assumed orbital period.
const PeriodTolerance = 0.1

// State is a run's position in the stage sequence.
type State int

const (
	Init State = iota
	FilesLocated
	PeriodReconciled
	GeometryComputed
	Subtracted
	Done
	Error
)

var stateNames = [...]string{"Init", "FilesLocated", "PeriodReconciled", "GeometryComputed", "Subtracted", "Done", "Error"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Message stages.
const (
	StageOptions     = "options"
	StageFiles       = "files"
	StagePeriod      = "period"
	StageGTI         = "gti"
	StageOccultation = "occultation"
	StageOrbsub      = "orbsub"
)

// SpectrumReader reads one daily spectral file.
type SpectrumReader interface {
	ReadSpectrum(path string) (pha.Spectrum, error)
}

// AttitudeReader reads one daily position-history file.
type AttitudeReader interface {
	ReadAttitude(path string) (geometry.Samples, error)
}

// Downloader retrieves missing files into the data root.
type Downloader interface {
	Download(ctx context.Context, items []fetch.Item, dataDir string) (*fetch.Report, error)
}

// PeriodEstimator supplies a period when no position history is found.
type PeriodEstimator interface {
	Period(t time.Time) (float64, error)
}

// Config holds the collaborators of a run.
type Config struct {
	Locator  *locate.Locator
	Spectra  SpectrumReader
	Attitude AttitudeReader
	// Downloader and Ephemeris are optional.
	Downloader Downloader
	Ephemeris  PeriodEstimator
	Workers    int
	Logger     *slog.Logger
}

// DetectorResult is the outcome for one detector. Product is nil when the
// detector could not be subtracted.
type DetectorResult struct {
	Detector detector.ID
	Files    []string
	Product  *pha.Subtracted
	Gaps     []*pha.RegionGapError
	Err      error
}

// OK reports whether every region had data and the background was formed.
func (d *DetectorResult) OK() bool {
	return d.Err == nil && d.Product != nil && len(d.Gaps) == 0
}

// Run is one subtraction. A Run is driven from a single goroutine; the
// per-detector work it fans out shares no state.
type Run struct {
	id      string
	opts    Options
	cfg     Config
	logger  *slog.Logger
	started time.Time

	state      State
	period     float64
	retried    bool
	regions    *region.Set
	files      *locate.FileSet
	pos        *geometry.PositionAttitude
	gti        map[detector.ID][]geometry.Interval
	steps      *geometry.Steps
	occult     []geometry.Interval
	results    map[detector.ID]*DetectorResult
	downloaded []string

	mu       sync.Mutex
	messages map[string][]string
}

// New creates a run in the Init state.
func New(opts Options, cfg Config) *Run {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	id := uuid.NewString()
	return &Run{
		id:       id,
		opts:     opts,
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "orbsub", "run_id", id, "name", opts.Name),
		started:  time.Now(),
		period:   region.DefaultPeriod,
		messages: make(map[string][]string),
	}
}

// ID returns the run identifier.
func (r *Run) ID() string { return r.id }

// Options returns the run options.
func (r *Run) Options() Options { return r.opts }

// State returns the current state.
func (r *Run) State() State { return r.state }

// Period returns the orbital period in use.
func (r *Run) Period() float64 { return r.period }

// Regions returns the current regions, nil before FindFiles.
func (r *Run) Regions() *region.Set { return r.regions }

// Files returns the latest discovery result.
func (r *Run) Files() *locate.FileSet { return r.files }

// GTI returns the per-detector good time intervals, nil until GetGTI succeeds.
func (r *Run) GTI() map[detector.ID][]geometry.Interval { return r.gti }

// Occultations returns the occultation intervals, nil until GetSteps succeeds.
func (r *Run) Occultations() []geometry.Interval { return r.occult }

// Results returns the per-detector outcomes of DoOrbsub.
func (r *Run) Results() map[detector.ID]*DetectorResult { return r.results }

// Messages returns a copy of the messages of a stage.
func (r *Run) Messages(stage string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages[stage]...)
}

func (r *Run) note(stage string, level slog.Level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.mu.Lock()
	r.messages[stage] = append(r.messages[stage], msg)
	r.mu.Unlock()
	r.logger.Log(context.Background(), level, msg, "stage", stage)
}

func (r *Run) fail(stage string, format string, args ...any) {
	r.note(stage, slog.LevelError, format, args...)
	r.state = Error
}

// RecordNotes adds the notes raised while normalising the options.
func (r *Run) RecordNotes(n Notes) {
	for _, w := range n.Warnings {
		r.note(StageOptions, slog.LevelWarn, "%s", w)
	}
	for _, e := range n.Errors {
		r.note(StageOptions, slog.LevelError, "%s", e)
	}
}

// FindFiles computes the regions with the current period and locates
// their files. It returns true when required files are missing, in which
// case the run enters Error unless partial data is allowed.
func (r *Run) FindFiles(ctx context.Context) (missing bool) {
	start := time.Now()
	defer func() { metrics.RecordStage(StageFiles, !missing, time.Since(start)) }()

	if r.state == Done {
		r.note(StageFiles, slog.LevelWarn, "run already finished")
		return false
	}
	r.regions = region.Compute(r.opts.Tzero, r.opts.TMin, r.opts.TMax, r.opts.Offsets, r.period)
	fs, err := r.cfg.Locator.Locate(ctx, r.regions, r.opts.Detectors, r.opts.Mode)
	if err != nil {
		r.fail(StageFiles, "file discovery failed: %v", err)
		return true
	}
	r.files = fs
	r.pos = nil
	r.gti, r.steps, r.occult = nil, nil, nil
	r.results = nil

	metrics.RecordMissing("pos", len(fs.Missing.Attitude))
	for mode, days := range fs.Missing.Spectra {
		n := 0
		for _, ids := range days {
			n += len(ids)
		}
		metrics.RecordMissing(mode.FileTag(), n)
	}

	if !fs.Incomplete {
		r.note(StageFiles, slog.LevelInfo, "located files for %d day(s)", len(fs.Days))
		r.state = FilesLocated
		return false
	}
	for _, p := range fs.Problems {
		r.note(StageFiles, slog.LevelWarn, "%s", p)
	}
	if r.opts.AllowPartial {
		r.note(StageFiles, slog.LevelWarn, "continuing with partial data")
		r.state = FilesLocated
	} else {
		r.state = Error
	}
	return true
}

// Download fetches the files the last discovery reported missing and
// locates files again. It returns false when no downloader is configured
// or files are still missing.
func (r *Run) Download(ctx context.Context) bool {
	if r.cfg.Downloader == nil || r.files == nil {
		r.note(StageFiles, slog.LevelWarn, "no downloader configured")
		return false
	}
	items := fetch.Plan(r.files.Missing)
	if len(items) == 0 {
		return !r.FindFiles(ctx)
	}
	r.note(StageFiles, slog.LevelInfo, "downloading %d missing file(s)", len(items))
	rep, err := r.cfg.Downloader.Download(ctx, items, r.cfg.Locator.Root())
	if err != nil {
		r.fail(StageFiles, "download interrupted: %v", err)
		return false
	}
	metrics.RecordDownloads(len(rep.Downloaded), len(rep.Failed))
	r.downloaded = append(r.downloaded, rep.Downloaded...)
	for item, ferr := range rep.Failed {
		r.note(StageFiles, slog.LevelWarn, "could not download %s: %v", item, ferr)
	}
	return !r.FindFiles(ctx)
}

// loadAttitude reads and concatenates the located position history.
func (r *Run) loadAttitude() (*geometry.PositionAttitude, error) {
	if r.pos != nil {
		return r.pos, nil
	}
	if r.files == nil || len(r.files.Attitude) == 0 {
		return nil, geometry.ErrNoAttitude
	}
	parts := make([]geometry.Samples, 0, len(r.files.Attitude))
	for _, path := range r.files.Attitude {
		s, err := r.cfg.Attitude.ReadAttitude(path)
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	pa, err := geometry.NewPositionAttitude(parts...)
	if err != nil {
		return nil, err
	}
	r.pos = pa
	return pa, nil
}

// CalcPeriod measures the orbital period and, when it differs from the
// assumed one by more than PeriodTolerance, recomputes the regions and
// locates files once more. It returns false when no period could be
// measured; the assumed period is then kept.
func (r *Run) CalcPeriod(ctx context.Context) (ok bool) {
	start := time.Now()
	defer func() { metrics.RecordStage(StagePeriod, ok, time.Since(start)) }()

	if r.state != FilesLocated {
		r.note(StagePeriod, slog.LevelWarn, "cannot reconcile period in state %s", r.state)
		return false
	}
	if !r.opts.RecalcPeriod {
		r.note(StagePeriod, slog.LevelInfo, "keeping assumed period %.6f s", r.period)
		r.state = PeriodReconciled
		return true
	}

	measured, source, err := r.measurePeriod()
	if err != nil {
		r.note(StagePeriod, slog.LevelError, "unable to recalculate period: %v; defaulting to %.6f s", err, r.period)
		r.state = PeriodReconciled
		return false
	}

	diff := measured - r.period
	metrics.RecordPeriodDivergence(diff)
	if math.Abs(diff) <= PeriodTolerance {
		r.note(StagePeriod, slog.LevelInfo, "measured period %.6f s (%s) consistent within %.1f s", measured, source, PeriodTolerance)
		r.state = PeriodReconciled
		return true
	}

	r.note(StagePeriod, slog.LevelInfo, "old period %.6f s, new period %.6f s (%s); recalculating regions and files", r.period, measured, source)
	if r.retried {
		r.note(StagePeriod, slog.LevelWarn, "period already refined once, not iterating further")
		r.state = PeriodReconciled
		return true
	}
	r.retried = true
	r.period = measured
	if missing := r.FindFiles(ctx); missing && !r.opts.AllowPartial {
		r.note(StagePeriod, slog.LevelError, "files missing after period update")
		return false
	}
	r.state = PeriodReconciled
	return true
}

func (r *Run) measurePeriod() (float64, string, error) {
	pa, err := r.loadAttitude()
	if err == nil {
		return pa.Period(), "position history", nil
	}
	if r.cfg.Ephemeris == nil {
		return 0, "", err
	}
	p, eerr := r.cfg.Ephemeris.Period(met.ToTime(r.opts.Tzero))
	if eerr != nil {
		return 0, "", fmt.Errorf("%v; ephemeris: %w", err, eerr)
	}
	return p, "ephemeris", nil
}

func (r *Run) geometryReady(stage string) (*geometry.PositionAttitude, bool) {
	switch r.state {
	case FilesLocated, PeriodReconciled, GeometryComputed:
	default:
		r.note(stage, slog.LevelWarn, "cannot compute geometry in state %s", r.state)
		return nil, false
	}
	if r.opts.Source == nil {
		r.note(stage, slog.LevelWarn, "no coordinates set: %v", geometry.ErrNoCoordinates)
		return nil, false
	}
	pa, err := r.loadAttitude()
	if err != nil {
		r.note(stage, slog.LevelWarn, "no position history: %v", err)
		return nil, false
	}
	return pa, true
}

// GetGTI computes each detector's good time intervals over the source
// region.
func (r *Run) GetGTI(ctx context.Context) (ok bool) {
	start := time.Now()
	defer func() { metrics.RecordStage(StageGTI, ok, time.Since(start)) }()

	pa, ok := r.geometryReady(StageGTI)
	if !ok {
		return false
	}
	r.gti = pa.GTI(r.regions, *r.opts.Source)
	r.note(StageGTI, slog.LevelInfo, "GTIs found for %d of %d detectors", len(r.gti), len(detector.All))
	r.state = GeometryComputed
	return true
}

// GetSteps finds the occultation steps over all position history and pairs
// them into occultation intervals. Unpairable steps fail the stage.
func (r *Run) GetSteps(ctx context.Context) (ok bool) {
	start := time.Now()
	defer func() { metrics.RecordStage(StageOccultation, ok, time.Since(start)) }()

	pa, ok := r.geometryReady(StageOccultation)
	if !ok {
		return false
	}
	st := pa.Steps(*r.opts.Source)
	r.steps = &st
	occ, err := pa.Occultations(*r.opts.Source)
	if err != nil {
		r.note(StageOccultation, slog.LevelError, "occultation steps: %v", err)
		return false
	}
	r.occult = occ
	r.note(StageOccultation, slog.LevelInfo, "%d rises, %d sets, %d occultation intervals", len(st.Rises), len(st.Sets), len(occ))
	r.state = GeometryComputed
	return true
}

// DoOrbsub bins and background-subtracts every detector on the worker
// pool. A detector that fails is recorded without stopping the others;
// the result is true only if all detectors succeed.
func (r *Run) DoOrbsub(ctx context.Context) (ok bool) {
	start := time.Now()
	defer func() { metrics.RecordStage(StageOrbsub, ok, time.Since(start)) }()

	switch r.state {
	case FilesLocated, PeriodReconciled, GeometryComputed:
	default:
		r.note(StageOrbsub, slog.LevelWarn, "cannot subtract in state %s", r.state)
		return false
	}

	results := newPool(r.cfg.Workers, r.logger).process(ctx, r.opts.Detectors, r.jobFor)
	r.results = make(map[detector.ID]*DetectorResult, len(results))
	ok = true
	for _, res := range results {
		r.results[res.Detector] = res
		masked := 0
		if res.Product != nil {
			masked = res.Product.Background.MaskedBins()
		}
		metrics.RecordDetector(res.OK(), masked)
		r.note(StageOrbsub, slog.LevelInfo, "processing %s", res.Detector)
		for _, g := range res.Gaps {
			r.note(StageOrbsub, slog.LevelWarn, "%s", g)
		}
		if res.Err != nil {
			r.note(StageOrbsub, slog.LevelError, "%s: %v", res.Detector, res.Err)
		}
		ok = ok && res.OK()
	}
	if err := ctx.Err(); err != nil {
		r.note(StageOrbsub, slog.LevelWarn, "cancelled after %d of %d detectors", len(results), len(r.opts.Detectors))
		return false
	}
	if len(results) < len(r.opts.Detectors) {
		ok = false
	}
	r.state = Subtracted
	return ok
}

func (r *Run) jobFor(id detector.ID) *DetectorResult {
	res := &DetectorResult{Detector: id}
	if r.files != nil {
		res.Files = r.files.Spectra[id]
	}
	if len(res.Files) == 0 {
		res.Err = fmt.Errorf("no %s files", r.opts.Mode)
		return res
	}
	parts := make([]pha.Spectrum, 0, len(res.Files))
	for _, path := range res.Files {
		s, err := r.cfg.Spectra.ReadSpectrum(path)
		if err != nil {
			res.Err = err
			return res
		}
		parts = append(parts, s)
	}
	raw, err := pha.Concat(id, parts...)
	if err != nil {
		res.Err = err
		return res
	}
	binned, err := pha.Bin(raw, r.regions)
	if err != nil {
		res.Err = err
		return res
	}
	res.Gaps = binned.Gaps
	res.Product, res.Err = pha.Subtract(binned, r.regions.BackgroundOffsets(), r.opts.Background)
	return res
}

// Execute runs every stage in order: locate (and download when configured
// and requested), reconcile the period, compute geometry when coordinates
// were given, subtract. It returns true when every stage it ran succeeded.
func (r *Run) Execute(ctx context.Context, download bool) (ok bool) {
	defer func() { metrics.RecordRun(ok) }()

	r.logger.Info("run started", "options", r.opts.String())
	ok = true
	if missing := r.FindFiles(ctx); missing {
		if download && r.cfg.Downloader != nil {
			ok = r.Download(ctx)
		} else {
			ok = false
		}
		if r.state == Error {
			r.note(StageFiles, slog.LevelError, "required files missing, stopping")
			return false
		}
	}

	if !r.CalcPeriod(ctx) {
		ok = false
	}
	if r.state == Error {
		return false
	}
	if r.opts.Geometry {
		gtiOK := r.GetGTI(ctx)
		stepsOK := r.GetSteps(ctx)
		ok = ok && gtiOK && stepsOK
	}
	if !r.DoOrbsub(ctx) {
		ok = false
	}
	if r.state == Subtracted {
		r.state = Done
	}
	r.logger.Info("run finished", "ok", ok, "state", r.state.String(), "duration_ms", time.Since(r.started).Milliseconds())
	return ok
}
