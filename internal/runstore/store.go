// Package runstore keeps the summaries of recent runs in memory for the
// HTTP surface. Entries expire after a fixed time to live.
package runstore

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/orbsub/internal/export"
)

// Status of a stored run.
type Status string

const (
	Running  Status = "running"
	Finished Status = "finished"
)

// Entry is one stored run.
type Entry struct {
	ID        string          `json:"id"`
	Status    Status          `json:"status"`
	Summary   *export.Summary `json:"summary,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Stats reports store counters.
type Stats struct {
	Entries   int   `json:"entries"`
	Running   int   `json:"running"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// New creates a store whose finished entries live for ttl.
func New(ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{
		entries: make(map[string]*Entry),
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

// Begin records a run as running.
func (s *Store) Begin(id string) {
	now := s.now()
	s.mu.Lock()
	s.entries[id] = &Entry{ID: id, Status: Running, CreatedAt: now, UpdatedAt: now}
	s.mu.Unlock()
}

// Finish stores the final summary of a run.
func (s *Store) Finish(id string, sum *export.Summary) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		e = &Entry{ID: id, CreatedAt: now}
		s.entries[id] = e
	}
	e.Status = Finished
	e.Summary = sum
	e.UpdatedAt = now
}

// Get returns a copy of the entry for id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	var out Entry
	if ok {
		out = *e
	}
	s.mu.RUnlock()

	if ok {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	return out, ok
}

// Evict removes finished entries older than the time to live.
func (s *Store) Evict() int {
	cutoff := s.now().Add(-s.ttl)
	var removed int

	s.mu.Lock()
	for id, e := range s.entries {
		if e.Status == Finished && e.UpdatedAt.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.evictions.Add(int64(removed))
		s.logger.Debug("run store eviction", "entries_removed", removed)
	}
	return removed
}

// Run evicts expired entries every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Evict()
		}
	}
}

// Stats returns current counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	st := Stats{Entries: len(s.entries)}
	for _, e := range s.entries {
		if e.Status == Running {
			st.Running++
		}
	}
	s.mu.RUnlock()

	st.Hits = s.hits.Load()
	st.Misses = s.misses.Load()
	st.Evictions = s.evictions.Load()
	return st
}
