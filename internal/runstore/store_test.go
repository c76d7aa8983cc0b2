package runstore

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/star/orbsub/internal/export"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestStoreLifecycle(t *testing.T) {
	s := New(time.Minute, testLogger())
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.Begin("a")
	e, ok := s.Get("a")
	if !ok || e.Status != Running {
		t.Fatalf("Get(a) = %+v, %v", e, ok)
	}
	if _, ok := s.Get("missing"); ok {
		t.Error("expected miss")
	}

	s.Finish("a", &export.Summary{ID: "a", OK: true})
	e, _ = s.Get("a")
	if e.Status != Finished || e.Summary == nil || !e.Summary.OK {
		t.Errorf("finished entry = %+v", e)
	}

	st := s.Stats()
	if st.Entries != 1 || st.Running != 0 || st.Hits != 2 || st.Misses != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestStoreEviction(t *testing.T) {
	s := New(time.Minute, testLogger())
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.Begin("running")
	s.Begin("done")
	s.Finish("done", &export.Summary{ID: "done"})

	clock = clock.Add(30 * time.Second)
	if n := s.Evict(); n != 0 {
		t.Errorf("evicted %d before ttl", n)
	}

	clock = clock.Add(time.Minute)
	if n := s.Evict(); n != 1 {
		t.Errorf("evicted %d, want 1", n)
	}
	if _, ok := s.Get("running"); !ok {
		t.Error("running entries must not expire")
	}
	if st := s.Stats(); st.Evictions != 1 {
		t.Errorf("evictions = %d, want 1", st.Evictions)
	}
}

func TestStoreRunStops(t *testing.T) {
	s := New(time.Millisecond, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
