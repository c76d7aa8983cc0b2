// Command orbsub estimates the background of a transient by averaging the
// same orbital phase on neighbouring orbits and writes the subtracted light
// curves. With -serve it accepts runs over HTTP instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/star/orbsub/internal/api"
	"github.com/star/orbsub/internal/ephemeris"
	"github.com/star/orbsub/internal/fetch"
	"github.com/star/orbsub/internal/fitsread"
	"github.com/star/orbsub/internal/health"
	"github.com/star/orbsub/internal/locate"
	"github.com/star/orbsub/internal/met"
	"github.com/star/orbsub/internal/orbsub"
	"github.com/star/orbsub/internal/runstore"
)

type batchFlags struct {
	tzero, mjd       float64
	utc              string
	offsets, trange  string
	dets, name, out  string
	selTimes, selE   string
	cspec, ctime     bool
	ra, dec          *float64
	download, net    bool
	keepPeriod       bool
	partial, dubious bool
	json             bool
}

func main() {
	var f batchFlags
	serve := flag.Bool("serve", false, "Serve runs over HTTP (configured from the environment)")
	flag.Float64Var(&f.tzero, "tzero", 0, "Zero time (MET seconds)")
	flag.StringVar(&f.utc, "utc", "", "Zero time as UTC, e.g. 2011-04-07 12:00:00")
	flag.Float64Var(&f.mjd, "mjd", 0, "Zero time as MJD")
	flag.StringVar(&f.offsets, "offsets", "", "Background offsets in orbits, comma separated (default $ORBSUB_OFFSETS or 30)")
	flag.StringVar(&f.trange, "trange", "", "Window around tzero in seconds, e.g. -100,500")
	flag.StringVar(&f.dets, "dets", "", "Detectors, comma separated (default all)")
	flag.BoolVar(&f.cspec, "cspec", false, "Use CSPEC data")
	flag.BoolVar(&f.ctime, "ctime", false, "Use CTIME data")
	flag.Func("ra", "Source right ascension (deg)", floatPtr(&f.ra))
	flag.Func("dec", "Source declination (deg)", floatPtr(&f.dec))
	flag.StringVar(&f.name, "name", "", "Run name (default YYMMDDfff from tzero)")
	flag.StringVar(&f.selTimes, "select", "", "Time ranges to write, as pairs relative to tzero, e.g. -5,20,40,60")
	flag.StringVar(&f.selE, "energies", "", "Energy ranges to sum in keV, as pairs, e.g. 50,300")
	flag.StringVar(&f.out, "out", ".", "Output directory for light curves")
	flag.BoolVar(&f.download, "download", false, "Download missing daily files from the archive")
	flag.BoolVar(&f.net, "net", false, "Also write net light curves")
	flag.BoolVar(&f.keepPeriod, "keep-period", false, "Do not measure the orbital period")
	flag.BoolVar(&f.partial, "partial", false, "Continue when files are missing")
	flag.BoolVar(&f.dubious, "dubious", false, "Flag bins near data gaps with the dubious quality value")
	flag.BoolVar(&f.json, "json", false, "Print the summary as JSON even on a terminal")
	logLevel := flag.String("log-level", os.Getenv("ORBSUB_LOG_LEVEL"), "Log level (debug, info, warn, error)")
	flag.Parse()

	out := os.Stderr
	if *serve {
		out = os.Stdout
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: parseLogLevel(*logLevel)}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	defaults := loadRunDefaults(logger)
	runCfg := orbsubConfig(ctx, defaults, logger)

	if *serve {
		if err := runServer(ctx, defaults, runCfg, logger); err != nil {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	ok, err := runBatch(ctx, f, defaults, runCfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "orbsub:", err)
		os.Exit(2)
	}
	if !ok {
		os.Exit(1)
	}
}

func orbsubConfig(ctx context.Context, d runDefaults, logger *slog.Logger) orbsub.Config {
	cfg := orbsub.Config{
		Locator:    locate.New(d.DataDir, d.Workers, logger),
		Spectra:    fitsread.Reader{},
		Attitude:   fitsread.Reader{},
		Downloader: fetch.NewFetcher(loadArchiveURL(), logger),
		Workers:    d.Workers,
		Logger:     logger,
	}
	if ephCfg, ok := loadEphemerisConfig(logger); ok {
		cfg.Ephemeris = ephemeris.PeriodEstimator{Source: ephemeris.NewSource(ephCfg, logger), Ctx: ctx}
	}
	return cfg
}

func runBatch(ctx context.Context, f batchFlags, d runDefaults, cfg orbsub.Config, logger *slog.Logger) (bool, error) {
	req, err := f.request(d)
	if err != nil {
		return false, err
	}
	opts, notes, err := orbsub.NewOptions(req, time.Now())
	if err != nil {
		return false, err
	}

	run := orbsub.New(opts, cfg)
	run.RecordNotes(notes)
	ok := run.Execute(ctx, f.download)

	if err := os.MkdirAll(f.out, 0o755); err != nil {
		return false, err
	}
	outputs, err := run.WriteOutputs(f.out, f.net)
	if err != nil {
		logger.Error("writing outputs failed", "error", err)
		ok = false
	}

	sum := run.Summary(ok, outputs)
	if !f.json && term.IsTerminal(int(os.Stdout.Fd())) {
		sum.WriteTable(os.Stdout)
		return ok, nil
	}
	return ok, sum.WriteJSON(os.Stdout)
}

// request turns the flags into a run request; exactly one zero time is required.
func (f batchFlags) request(d runDefaults) (orbsub.Request, error) {
	req := orbsub.Request{
		Offsets:      d.Offsets,
		TRange:       d.TRange,
		Mode:         d.Mode,
		RA:           f.ra,
		Dec:          f.dec,
		KeepPeriod:   f.keepPeriod,
		AllowPartial: f.partial,
		MarkDubious:  f.dubious,
		Name:         f.name,
	}

	given := 0
	if f.tzero != 0 {
		req.Tzero = f.tzero
		given++
	}
	if f.mjd != 0 {
		req.Tzero = met.FromMJD(f.mjd)
		given++
	}
	if f.utc != "" {
		t, err := met.DateToMET(f.utc)
		if err != nil {
			return req, err
		}
		req.Tzero = t
		given++
	}
	if given != 1 {
		return req, errors.New("exactly one of -tzero, -utc or -mjd is required")
	}

	if f.offsets != "" {
		req.Offsets = splitList(f.offsets)
	}
	if f.trange != "" {
		r, err := parseRange(f.trange)
		if err != nil {
			return req, fmt.Errorf("-trange: %w", err)
		}
		req.TRange = r
	}
	if f.dets != "" {
		req.Detectors = splitList(f.dets)
	}
	if f.selTimes != "" {
		p, err := parsePairs(f.selTimes)
		if err != nil {
			return req, fmt.Errorf("-select: %w", err)
		}
		req.SelectTimes = p
	}
	if f.selE != "" {
		p, err := parsePairs(f.selE)
		if err != nil {
			return req, fmt.Errorf("-energies: %w", err)
		}
		req.SelectEnergies = p
	}
	switch {
	case f.cspec && f.ctime:
		return req, errors.New("-cspec and -ctime are exclusive")
	case f.cspec:
		req.Mode = "CSPEC"
	case f.ctime:
		req.Mode = "CTIME"
	}
	return req, nil
}

func runServer(ctx context.Context, d runDefaults, runCfg orbsub.Config, logger *slog.Logger) error {
	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		return err
	}
	cfg := loadServeConfig(logger, authCfg)

	store := runstore.New(cfg.RunTTL, logger)
	go store.Run(ctx, time.Minute)

	runner := api.NewRunner(api.RunnerConfig{
		Orbsub:     runCfg,
		OutDir:     cfg.OutDir,
		Download:   true,
		MaxRunning: cfg.MaxRunning,
	}, store, logger)
	srv := api.NewServer(cfg.API, runner, health.Checker{DataDir: d.DataDir}, logger)

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.API.Addr, "auth_enabled", authCfg.Enabled, "data_dir", d.DataDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func floatPtr(dst **float64) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*dst = &v
		return nil
	}
}
