package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/star/orbsub/internal/orbsub"
	"github.com/star/orbsub/internal/runstore"
)

const maxRequestBytes = 64 << 10

// RunnerConfig configures background run execution.
type RunnerConfig struct {
	// Orbsub is shared by every run; its collaborators must be safe for
	// concurrent use.
	Orbsub orbsub.Config
	// OutDir receives one directory of light curves per run. Empty
	// disables writing.
	OutDir   string
	Download bool
	Net      bool
	// MaxRunning bounds concurrent runs; further submissions get 429.
	MaxRunning int
}

// Runner executes submitted runs in the background and records their
// summaries in a store.
type Runner struct {
	cfg    RunnerConfig
	store  *runstore.Store
	logger *slog.Logger
	now    func() time.Time

	slots  chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

var errBusy = errors.New("too many runs in progress")

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig, store *runstore.Store, logger *slog.Logger) *Runner {
	if cfg.MaxRunning < 1 {
		cfg.MaxRunning = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cfg:    cfg,
		store:  store,
		logger: logger.With("component", "runner"),
		now:    time.Now,
		slots:  make(chan struct{}, cfg.MaxRunning),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit validates req and starts the run. Runs that cannot be normalised
// return an error and are not stored.
func (rn *Runner) Submit(req orbsub.Request) (*orbsub.Run, error) {
	opts, notes, err := orbsub.NewOptions(req, rn.now())
	if err != nil {
		return nil, err
	}
	select {
	case rn.slots <- struct{}{}:
	default:
		return nil, errBusy
	}

	run := orbsub.New(opts, rn.cfg.Orbsub)
	run.RecordNotes(notes)
	rn.store.Begin(run.ID())

	rn.wg.Add(1)
	go func() {
		defer rn.wg.Done()
		defer func() { <-rn.slots }()
		rn.execute(run)
	}()
	return run, nil
}

func (rn *Runner) execute(run *orbsub.Run) {
	ok := run.Execute(rn.ctx, rn.cfg.Download)

	var outputs []string
	if rn.cfg.OutDir != "" && rn.ctx.Err() == nil {
		dir := filepath.Join(rn.cfg.OutDir, run.ID())
		err := os.MkdirAll(dir, 0o755)
		if err == nil {
			outputs, err = run.WriteOutputs(dir, rn.cfg.Net)
		}
		if err != nil {
			ok = false
			rn.logger.Error("writing outputs failed", "run_id", run.ID(), "error", err)
		}
	}
	rn.store.Finish(run.ID(), run.Summary(ok, outputs))
}

// Close cancels running jobs and waits for them to record their summaries.
func (rn *Runner) Close() {
	rn.cancel()
	rn.wg.Wait()
}

type createResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (rn *Runner) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req orbsub.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	run, err := rn.Submit(req)
	switch {
	case errors.Is(err, errBusy):
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Location", "/api/v1/runs/"+run.ID())
	writeJSON(w, http.StatusAccepted, createResponse{
		ID:     run.ID(),
		Name:   run.Options().Name,
		Status: string(runstore.Running),
	})
}

func (rn *Runner) handleGet(w http.ResponseWriter, r *http.Request) {
	e, ok := rn.store.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (rn *Runner) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rn.store.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
