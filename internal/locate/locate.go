// Package locate finds the daily spectral and position-history files a run
// needs under a data root laid out as <root>/<YYMMDD>/<file>.
package locate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/star/orbsub/internal/detector"
	"github.com/star/orbsub/internal/met"
	"github.com/star/orbsub/internal/region"
)

// ErrMissingData marks a FileSet that lacks required files.
var ErrMissingData = errors.New("required data files missing")

// Missing records which required files were not found.
type Missing struct {
	// Attitude lists days without a position-history file.
	Attitude []met.DayToken `json:"pos"`
	// Spectra maps mode -> day -> detectors without a file.
	Spectra map[detector.Mode]map[met.DayToken][]detector.ID `json:"spectra"`
}

// Empty reports whether nothing is missing.
func (m Missing) Empty() bool {
	if len(m.Attitude) > 0 {
		return false
	}
	for _, days := range m.Spectra {
		for _, dets := range days {
			if len(dets) > 0 {
				return false
			}
		}
	}
	return true
}

// FileSet is the outcome of one discovery pass. It is returned even when
// files are missing so the caller can decide whether to download, abort or
// continue with partial data. Each (day, detector) slot, and each day's
// position history, holds one path: the lexically latest version matching
// the glob. Older versions in the same directory are ignored rather than
// read alongside it.
type FileSet struct {
	Days     []met.DayToken
	Mode     detector.Mode
	Spectra  map[detector.ID][]string
	Attitude []string
	Missing  Missing
	// Incomplete is set when no attitude file was found, when attitude files
	// do not cover every day, or when any detector lacks a day.
	Incomplete bool
	Problems   []string
}

// Err returns an error wrapping ErrMissingData when the set is incomplete.
func (fs *FileSet) Err() error {
	if !fs.Incomplete {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMissingData, strings.Join(fs.Problems, "; "))
}

// String lists days and files.
func (fs *FileSet) String() string {
	var b strings.Builder
	b.WriteString("Days:\n")
	for _, d := range fs.Days {
		fmt.Fprintf(&b, "  %s\n", d)
	}
	b.WriteString("Position history files:\n")
	for _, f := range fs.Attitude {
		fmt.Fprintf(&b, "  %s\n", f)
	}
	b.WriteString("Spectral files:\n")
	ids := make([]detector.ID, 0, len(fs.Spectra))
	for id := range fs.Spectra {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Index() < ids[j].Index() })
	for _, id := range ids {
		fmt.Fprintf(&b, "  %s:\n", id)
		for _, f := range fs.Spectra[id] {
			fmt.Fprintf(&b, "       %s\n", f)
		}
	}
	return b.String()
}

// Days returns the sorted, distinct days touched by either end of any region.
func Days(regions *region.Set) []met.DayToken {
	seen := make(map[met.DayToken]bool)
	var out []met.DayToken
	for _, k := range regions.Kinds() {
		r, _ := regions.Range(k)
		for _, t := range []float64{r.Start, r.End} {
			d := met.Day(t)
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SpectrumName is the glob for a day's spectral file of one detector.
func SpectrumName(day met.DayToken, id detector.ID, mode detector.Mode) string {
	return "glg_" + mode.FileTag() + "_" + string(id) + "_" + string(day) + "*pha"
}

// AttitudeName is the glob for a day's position-history file.
func AttitudeName(day met.DayToken) string {
	return "glg_poshist_all_" + string(day) + "*fit"
}

// Locator searches a data root. Searches for different files run on a
// bounded set of goroutines.
type Locator struct {
	root    string
	workers int
	logger  *slog.Logger
}

// New creates a Locator rooted at root.
func New(root string, workers int, logger *slog.Logger) *Locator {
	if workers < 1 {
		workers = 1
	}
	return &Locator{root: root, workers: workers, logger: logger}
}

// Root returns the data root.
func (l *Locator) Root() string { return l.root }

// lookup is one glob: a detector's spectral file, or (id == "") the
// position-history file, for one day.
type lookup struct {
	slot int
	day  met.DayToken
	id   detector.ID
}

type found struct {
	slot int
	path string
	err  error
}

// Locate resolves the days of regions and finds their files. The returned
// error is non-nil only for cancellation or a malformed pattern; missing
// files are recorded in the FileSet.
func (l *Locator) Locate(ctx context.Context, regions *region.Set, dets []detector.ID, mode detector.Mode) (*FileSet, error) {
	days := Days(regions)

	var jobs []lookup
	for _, d := range days {
		jobs = append(jobs, lookup{slot: len(jobs), day: d})
		for _, id := range dets {
			jobs = append(jobs, lookup{slot: len(jobs), day: d, id: id})
		}
	}

	paths := make([]string, len(jobs))
	if err := l.run(ctx, jobs, mode, paths); err != nil {
		return nil, err
	}

	fs := &FileSet{
		Days:    days,
		Mode:    mode,
		Spectra: make(map[detector.ID][]string, len(dets)),
		Missing: Missing{Spectra: map[detector.Mode]map[met.DayToken][]detector.ID{mode: {}}},
	}
	for _, id := range dets {
		fs.Spectra[id] = []string{}
	}
	for _, j := range jobs {
		p := paths[j.slot]
		switch {
		case j.id == "" && p == "":
			fs.Missing.Attitude = append(fs.Missing.Attitude, j.day)
		case j.id == "":
			fs.Attitude = append(fs.Attitude, p)
		case p == "":
			byDay := fs.Missing.Spectra[mode]
			byDay[j.day] = append(byDay[j.day], j.id)
		default:
			fs.Spectra[j.id] = append(fs.Spectra[j.id], p)
		}
	}

	switch {
	case len(fs.Attitude) == 0:
		fs.problem("no position history files found")
	case len(fs.Attitude) != len(days):
		fs.problem(fmt.Sprintf("%d position history files for %d days", len(fs.Attitude), len(days)))
	}
	for _, id := range dets {
		if n := len(fs.Spectra[id]); n != len(days) {
			fs.problem(fmt.Sprintf("%s files missing for %s (%d of %d days)", mode, id, len(days)-n, len(days)))
		}
	}

	l.logger.Debug("files located",
		"component", "locate",
		"days", len(days),
		"attitude_files", len(fs.Attitude),
		"incomplete", fs.Incomplete,
	)
	return fs, nil
}

func (fs *FileSet) problem(msg string) {
	fs.Incomplete = true
	fs.Problems = append(fs.Problems, msg)
}

// run globs every lookup on the worker pool and stores each match in its
// own slot of paths.
func (l *Locator) run(ctx context.Context, jobs []lookup, mode detector.Mode, paths []string) error {
	in := make(chan lookup)
	out := make(chan found, l.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < l.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range in {
				name := AttitudeName(j.day)
				if j.id != "" {
					name = SpectrumName(j.day, j.id, mode)
				}
				p, err := latest(filepath.Join(l.root, string(j.day), name))
				select {
				case out <- found{slot: j.slot, path: p, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(in)
		for _, j := range jobs {
			select {
			case in <- j:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	var firstErr error
	for f := range out {
		if f.err != nil && firstErr == nil {
			firstErr = f.err
		}
		paths[f.slot] = f.path
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return firstErr
}

// latest returns the lexically last match of pattern, which is the highest
// file version, or "" when nothing matches.
func latest(pattern string) (string, error) {
	m, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(m) == 0 {
		return "", nil
	}
	sort.Strings(m)
	return m[len(m)-1], nil
}
