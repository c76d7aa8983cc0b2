package ephemeris

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultSourceURL serves the current element set of the spacecraft.
	DefaultSourceURL = "https://celestrak.org/NORAD/elements/gp.php?CATNR=33053&FORMAT=tle"

	maxBodyBytes = 1 << 20
)

// SourceConfig configures where element sets come from.
type SourceConfig struct {
	// Line1 and Line2 take precedence over any download.
	Line1, Line2 string
	URL          string
	CacheDir     string
	MaxFiles     int
	Catalog      int
}

// Source obtains an element set: from configured lines, from the network,
// or from the newest cached download.
type Source struct {
	cfg        SourceConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSource creates a Source.
func NewSource(cfg SourceConfig, logger *slog.Logger) *Source {
	if cfg.URL == "" {
		cfg.URL = DefaultSourceURL
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 5
	}
	if cfg.Catalog == 0 {
		cfg.Catalog = FermiCatalog
	}
	return &Source{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Propagator returns a propagator for the element set nearest to at.
func (s *Source) Propagator(ctx context.Context, at time.Time) (*Propagator, error) {
	if s.cfg.Line1 != "" || s.cfg.Line2 != "" {
		return New(s.cfg.Line1, s.cfg.Line2)
	}

	data, err := s.fetch(ctx)
	if err != nil {
		s.logger.Warn("element set download failed, trying cache", "component", "ephemeris", "error", err)
		var ts time.Time
		data, ts, err = s.loadLatest()
		if err != nil {
			return nil, fmt.Errorf("no element set available: %w", err)
		}
		s.logger.Info("using cached element set", "component", "ephemeris", "cached_at", ts.Format(time.RFC3339))
	} else if werr := s.write(data, time.Now()); werr != nil {
		s.logger.Warn("caching element set failed", "component", "ephemeris", "error", werr)
	}

	sets, err := ParseElements(bytes.NewReader(data), s.logger)
	if err != nil {
		return nil, err
	}
	es, ok := Nearest(sets, s.cfg.Catalog, at)
	if !ok {
		return nil, fmt.Errorf("no element set for catalog %d", s.cfg.Catalog)
	}
	return New(es.Line1, es.Line2)
}

func (s *Source) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching element set: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, s.cfg.URL)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response exceeds %d byte limit", maxBodyBytes)
	}
	return body, nil
}

// PeriodEstimator adapts a Source to the orchestrator's period fallback.
type PeriodEstimator struct {
	Source *Source
	Ctx    context.Context
}

// Period propagates the element set nearest to t over one orbit.
func (e PeriodEstimator) Period(t time.Time) (float64, error) {
	ctx := e.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := e.Source.Propagator(ctx, t)
	if err != nil {
		return 0, err
	}
	return p.Period(t)
}

// Cached downloads are named elements_<unix>.tle; the newest wins.

type cacheFile struct {
	name string
	ts   time.Time
}

func (s *Source) write(data []byte, ts time.Time) error {
	if s.cfg.CacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.cfg.CacheDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(s.cfg.CacheDir, fmt.Sprintf("elements_%d.tle", ts.Unix()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	return s.prune()
}

func (s *Source) loadLatest() ([]byte, time.Time, error) {
	files, err := s.listFiles()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(files) == 0 {
		return nil, time.Time{}, fmt.Errorf("no cache files found")
	}
	latest := files[len(files)-1]
	data, err := os.ReadFile(filepath.Join(s.cfg.CacheDir, latest.name))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading cache file: %w", err)
	}
	return data, latest.ts, nil
}

func (s *Source) listFiles() ([]cacheFile, error) {
	if s.cfg.CacheDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(s.cfg.CacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}
	var files []cacheFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "elements_") || !strings.HasSuffix(name, ".tle") {
			continue
		}
		unix, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, "elements_"), ".tle"), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, cacheFile{name: name, ts: time.Unix(unix, 0)})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ts.Before(files[j].ts) })
	return files, nil
}

func (s *Source) prune() error {
	files, err := s.listFiles()
	if err != nil || len(files) <= s.cfg.MaxFiles {
		return err
	}
	for _, f := range files[:len(files)-s.cfg.MaxFiles] {
		if err := os.Remove(filepath.Join(s.cfg.CacheDir, f.name)); err != nil {
			return fmt.Errorf("pruning cache file %s: %w", f.name, err)
		}
	}
	return nil
}
