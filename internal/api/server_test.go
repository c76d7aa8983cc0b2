package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/star/orbsub/internal/auth"
	"github.com/star/orbsub/internal/health"
	"github.com/star/orbsub/internal/locate"
	"github.com/star/orbsub/internal/orbsub"
	"github.com/star/orbsub/internal/runstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// newTestServer serves runs against an empty archive, so every run stops
// at the file stage.
func newTestServer(t *testing.T, authCfg auth.Config, maxRunning int) (*Server, *Runner) {
	t.Helper()
	logger := testLogger()
	data := t.TempDir()
	runner := NewRunner(RunnerConfig{
		Orbsub:     orbsub.Config{Locator: locate.New(data, 2, logger), Workers: 2, Logger: logger},
		OutDir:     t.TempDir(),
		MaxRunning: maxRunning,
	}, runstore.New(time.Hour, logger), logger)
	srv := NewServer(Config{Addr: ":0", Auth: authCfg}, runner, health.Checker{DataDir: data}, logger)
	t.Cleanup(runner.Close)
	return srv, runner
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const validRun = `{"tzero": 323894400, "trange": [-100, 500], "offsets": ["30"], "detectors": ["n0"], "mode": "CTIME"}`

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, auth.Config{Enabled: true, Token: "tok"}, 1)
	h := srv.Handler()

	tests := []struct {
		path string
		want int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/v1/runs", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if rec := do(t, h, http.MethodGet, tt.path, "", ""); rec.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
			}
		})
	}
}

func TestCreateRejects(t *testing.T) {
	srv, _ := newTestServer(t, auth.Config{}, 1)
	h := srv.Handler()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"not json", "{", http.StatusBadRequest},
		{"unknown field", `{"tzero": 323894400, "bogus": 1}`, http.StatusBadRequest},
		{"before mission", `{"tzero": 1000, "trange": [-100, 500]}`, http.StatusUnprocessableEntity},
		{"empty range", `{"tzero": 323894400, "trange": [10, 10]}`, http.StatusUnprocessableEntity},
		{"bad detector", `{"tzero": 323894400, "trange": [-100, 500], "detectors": ["n9x"]}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodPost, "/api/v1/runs", tt.body, ""); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestCreateAndPoll(t *testing.T) {
	srv, _ := newTestServer(t, auth.Config{Enabled: true, Token: "tok"}, 2)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/api/v1/runs", validRun, "tok")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (%s)", rec.Code, rec.Body.String())
	}
	var created createResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.Status != "running" {
		t.Fatalf("unexpected response %+v", created)
	}
	if loc := rec.Header().Get("Location"); loc != "/api/v1/runs/"+created.ID {
		t.Errorf("Location = %q", loc)
	}

	var entry runstore.Entry
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = do(t, h, http.MethodGet, "/api/v1/runs/"+created.ID, "", "tok")
		if rec.Code != http.StatusOK {
			t.Fatalf("GET status = %d", rec.Code)
		}
		entry = runstore.Entry{}
		if err := json.NewDecoder(rec.Body).Decode(&entry); err != nil {
			t.Fatal(err)
		}
		if entry.Status == runstore.Finished || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if entry.Status != runstore.Finished {
		t.Fatal("run did not finish")
	}
	sum := entry.Summary
	if sum == nil {
		t.Fatal("finished entry has no summary")
	}
	if sum.OK || sum.State != "Error" {
		t.Errorf("summary ok=%v state=%s, want failed run in Error", sum.OK, sum.State)
	}
	if sum.Missing == 0 {
		t.Error("expected missing files to be reported")
	}
	if sum.Mode != "CTIME" || len(sum.Detectors) != 1 {
		t.Errorf("summary mode=%s detectors=%d", sum.Mode, len(sum.Detectors))
	}

	rec = do(t, h, http.MethodGet, "/api/v1/runs", "", "tok")
	var stats runstore.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 1 {
		t.Errorf("stats entries = %d, want 1", stats.Entries)
	}
}

func TestCreateBusy(t *testing.T) {
	srv, runner := newTestServer(t, auth.Config{}, 1)
	runner.slots <- struct{}{}
	defer func() { <-runner.slots }()

	rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/runs", validRun, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}

func TestGetUnknownRun(t *testing.T) {
	srv, _ := newTestServer(t, auth.Config{}, 1)
	if rec := do(t, srv.Handler(), http.MethodGet, "/api/v1/runs/nope", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trust      bool
		xff, xri   string
		remoteAddr string
		want       string
	}{
		{"remote v4", false, "", "", "192.168.1.1:12345", "192.168.1.1"},
		{"remote v6", false, "", "", "[::1]:12345", "::1"},
		{"remote without port", false, "", "", "192.168.1.1", "192.168.1.1"},
		{"untrusted xff ignored", false, "1.2.3.4", "", "10.0.0.1:1", "10.0.0.1"},
		{"xff first entry", true, "1.2.3.4, 10.0.0.1", "", "10.0.0.3:1", "1.2.3.4"},
		{"real ip fallback", true, "", "5.6.7.8", "10.0.0.1:1", "5.6.7.8"},
		{"garbage xff", true, "not-an-ip", "5.6.7.8", "10.0.0.1:1", "5.6.7.8"},
		{"garbage everywhere", true, "x", "y", "10.0.0.1:1", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remoteAddr, Header: http.Header{}}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := clientIP(r, tt.trust); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
