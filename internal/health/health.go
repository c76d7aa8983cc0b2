// Package health serves the liveness and readiness checks.
package health

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
)

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Checker decides readiness from the data directory runs read from.
type Checker struct {
	DataDir string
}

// Check returns nil when the data directory can be listed.
func (c Checker) Check() error {
	info, err := os.Stat(c.DataDir)
	if err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data dir %s is not a directory", c.DataDir)
	}
	f, err := os.Open(c.DataDir)
	if err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("data dir: %w", err)
	}
	return nil
}

// Readyz returns 200 "ready\n", or 503 with the reason.
func (c Checker) Readyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if err := c.Check(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "not ready: %v\n", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready\n"))
}
