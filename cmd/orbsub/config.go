package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/star/orbsub/internal/api"
	"github.com/star/orbsub/internal/auth"
	"github.com/star/orbsub/internal/ephemeris"
	"github.com/star/orbsub/internal/fetch"
)

// runDefaults are the run parameters used when flags or requests omit them.
type runDefaults struct {
	DataDir string
	Mode    string
	Offsets []string
	TRange  [2]float64
	Workers int
}

func loadRunDefaults(logger *slog.Logger) runDefaults {
	cfg := runDefaults{
		DataDir: "./",
		Mode:    "CSPEC",
		Offsets: []string{"30"},
		TRange:  [2]float64{-100, 500},
		Workers: runtime.NumCPU(),
	}

	if v := os.Getenv("ORBSUB_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ORBSUB_SPEC_TYPE"); v != "" {
		switch m := strings.ToUpper(v); m {
		case "CTIME", "CSPEC":
			cfg.Mode = m
		default:
			logger.Warn("invalid ORBSUB_SPEC_TYPE value, using default", "value", v, "default", cfg.Mode)
		}
	}
	if v := os.Getenv("ORBSUB_OFFSETS"); v != "" {
		if list := splitList(v); len(list) > 0 {
			cfg.Offsets = list
		}
	}
	if v := os.Getenv("ORBSUB_TRANGE"); v != "" {
		r, err := parseRange(v)
		if err != nil {
			logger.Warn("invalid ORBSUB_TRANGE value, using default", "value", v, "error", err)
		} else {
			cfg.TRange = r
		}
	}
	if v := os.Getenv("ORBSUB_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ORBSUB_WORKERS value, using default", "value", v, "default", cfg.Workers)
		} else {
			cfg.Workers = n
		}
	}
	return cfg
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	if v := os.Getenv("ORBSUB_AUTH_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, errors.New("ORBSUB_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}
	if cfg.Enabled {
		cfg.Token = os.Getenv("ORBSUB_AUTH_TOKEN")
		if err := cfg.Validate(); err != nil {
			return cfg, errors.New("ORBSUB_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}
	return cfg, nil
}

// serveConfig configures the HTTP mode.
type serveConfig struct {
	API        api.Config
	OutDir     string
	RunTTL     time.Duration
	MaxRunning int
}

func loadServeConfig(logger *slog.Logger, authCfg auth.Config) serveConfig {
	cfg := serveConfig{
		API:        api.Config{Addr: ":8080", Auth: authCfg},
		OutDir:     "./orbsub-out",
		RunTTL:     time.Hour,
		MaxRunning: 2,
	}

	if v := os.Getenv("ORBSUB_HTTP_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("ORBSUB_TRUST_PROXY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid ORBSUB_TRUST_PROXY value, using default", "value", v)
		} else {
			cfg.API.TrustProxy = b
		}
	}
	if v := os.Getenv("ORBSUB_OUT_DIR"); v != "" {
		cfg.OutDir = v
	}
	if v := os.Getenv("ORBSUB_RUN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			logger.Warn("invalid ORBSUB_RUN_TTL value, using default", "value", v, "default", cfg.RunTTL.String())
		} else {
			cfg.RunTTL = d
		}
	}
	if v := os.Getenv("ORBSUB_MAX_RUNNING"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ORBSUB_MAX_RUNNING value, using default", "value", v, "default", cfg.MaxRunning)
		} else {
			cfg.MaxRunning = n
		}
	}
	return cfg
}

func loadArchiveURL() string {
	if v := os.Getenv("ORBSUB_ARCHIVE_URL"); v != "" {
		return v
	}
	return fetch.DefaultArchiveURL
}

// loadEphemerisConfig returns ok=false when the period fallback is disabled.
func loadEphemerisConfig(logger *slog.Logger) (ephemeris.SourceConfig, bool) {
	cfg := ephemeris.SourceConfig{
		Line1:    os.Getenv("ORBSUB_TLE_LINE1"),
		Line2:    os.Getenv("ORBSUB_TLE_LINE2"),
		URL:      ephemeris.DefaultSourceURL,
		CacheDir: filepath.Join(os.TempDir(), "orbsub", "tle"),
		MaxFiles: 5,
	}
	if v := os.Getenv("ORBSUB_TLE_URL"); v != "" {
		cfg.URL = v
	}
	if v := os.Getenv("ORBSUB_TLE_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("ORBSUB_TLE_CACHE_MAX_FILES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			logger.Warn("invalid ORBSUB_TLE_CACHE_MAX_FILES value, using default", "value", v, "default", cfg.MaxFiles)
		} else {
			cfg.MaxFiles = n
		}
	}
	enabled := true
	if v := os.Getenv("ORBSUB_TLE_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid ORBSUB_TLE_ENABLED value, using default", "value", v)
		} else {
			enabled = b
		}
	}
	return cfg, enabled
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func parseRange(s string) ([2]float64, error) {
	parts := splitList(s)
	if len(parts) != 2 {
		return [2]float64{}, errors.New("want two comma-separated values")
	}
	var r [2]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return [2]float64{}, err
		}
		r[i] = v
	}
	if r[0] >= r[1] {
		return [2]float64{}, errors.New("start must be before end")
	}
	return r, nil
}

// parsePairs reads a comma-separated list of an even number of values as
// (low, high) pairs.
func parsePairs(s string) ([][2]float64, error) {
	parts := splitList(s)
	if len(parts) == 0 || len(parts)%2 != 0 {
		return nil, fmt.Errorf("want an even number of values, got %d", len(parts))
	}
	out := make([][2]float64, 0, len(parts)/2)
	for i := 0; i < len(parts); i += 2 {
		lo, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return nil, err
		}
		hi, err := strconv.ParseFloat(parts[i+1], 64)
		if err != nil {
			return nil, err
		}
		out = append(out, [2]float64{lo, hi})
	}
	return out, nil
}
