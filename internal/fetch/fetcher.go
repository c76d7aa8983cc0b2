package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/star/orbsub/internal/met"
)

const (
	// DefaultArchiveURL is the public daily archive.
	DefaultArchiveURL = "https://heasarc.gsfc.nasa.gov/FTP/fermi/data/gbm/daily"

	maxListingBytes = 8 << 20
	maxFileBytes    = 1 << 30
)

// Fetcher retrieves files from the daily archive.
type Fetcher struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher for the given archive URL.
func NewFetcher(baseURL string, logger *slog.Logger) *Fetcher {
	if baseURL == "" {
		baseURL = DefaultArchiveURL
	}
	return &Fetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
		logger: logger,
	}
}

// BaseURL returns the configured archive URL.
func (f *Fetcher) BaseURL() string {
	return f.baseURL
}

// Report lists what a Download call wrote and what it could not find.
type Report struct {
	Downloaded []string
	Failed     map[string]error
}

// Download retrieves every item into <dataDir>/<day>/. A failed item does
// not stop the others; the returned error is set only on cancellation.
func (f *Fetcher) Download(ctx context.Context, items []Item, dataDir string) (*Report, error) {
	rep := &Report{Failed: make(map[string]error)}
	listings := make(map[met.DayToken][]string)

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		names, ok := listings[it.Day]
		if !ok {
			var err error
			names, err = f.list(ctx, it.Day)
			if err != nil {
				f.logger.Warn("listing archive day failed", "component", "fetch", "day", it.Day, "error", err)
				rep.Failed[it.String()] = err
				continue
			}
			listings[it.Day] = names
		}

		name := pick(names, it)
		if name == "" {
			rep.Failed[it.String()] = fmt.Errorf("not in archive listing for %s", it.Day)
			continue
		}
		dst := filepath.Join(dataDir, string(it.Day), name)
		if err := f.get(ctx, f.dayURL(it.Day)+name, dst); err != nil {
			f.logger.Warn("download failed", "component", "fetch", "file", name, "error", err)
			rep.Failed[it.String()] = err
			continue
		}
		f.logger.Info("downloaded", "component", "fetch", "file", name, "day", it.Day)
		rep.Downloaded = append(rep.Downloaded, dst)
	}
	return rep, nil
}

func (f *Fetcher) dayURL(d met.DayToken) string {
	return f.baseURL + "/" + d.ArchivePath() + "/current/"
}

var hrefPattern = regexp.MustCompile(`href="([^"/?]+)"`)

// list returns the file names linked from a day's directory index.
func (f *Fetcher) list(ctx context.Context, d met.DayToken) ([]string, error) {
	body, err := f.fetch(ctx, f.dayURL(d), maxListingBytes)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	data, err := readLimited(body, maxListingBytes)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, m := range hrefPattern.FindAllSubmatch(data, -1) {
		names = append(names, string(m[1]))
	}
	return names, nil
}

// pick returns the highest version of it among names.
func pick(names []string, it Item) string {
	re := regexp.MustCompile("^" + regexp.QuoteMeta(it.Prefix) + `\d{2}\.` + regexp.QuoteMeta(it.Ext) + "$")
	var hits []string
	for _, n := range names {
		if re.MatchString(n) {
			hits = append(hits, n)
		}
	}
	if len(hits) == 0 {
		return ""
	}
	sort.Strings(hits)
	return hits[len(hits)-1]
}

// get streams url into dst through a temporary file so a partial download
// never looks like a located file.
func (f *Fetcher) get(ctx context.Context, url, dst string) error {
	body, err := f.fetch(ctx, url, maxFileBytes)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".part-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(body, maxFileBytes+1))
	if err == nil && n > maxFileBytes {
		err = fmt.Errorf("response exceeds %d byte limit", maxFileBytes)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return os.Rename(tmp.Name(), dst)
}

func (f *Fetcher) fetch(ctx context.Context, url string, limit int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}
	if resp.ContentLength > limit {
		resp.Body.Close()
		return nil, fmt.Errorf("response exceeds %d byte limit", limit)
	}
	return resp.Body, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("response exceeds %d byte limit", limit)
	}
	return data, nil
}
