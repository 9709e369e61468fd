package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/mirror/pkg/types"
)

// fileLayout is the persisted shape of stats.json: the run counters at
// top level plus the watermark map and the auth watermark.
type fileLayout struct {
	types.RunCounters
	Watermarks    map[string]types.CollectionWatermarks `json:"watermarks"`
	AuthWatermark time.Time                             `json:"authWatermark"`
}

// Store owns the run counters and replication watermarks. It is mutated
// only during a serialized run; reads may happen concurrently from the
// stats endpoint.
type Store struct {
	mu            sync.RWMutex
	path          string
	counters      types.RunCounters
	watermarks    map[string]types.CollectionWatermarks
	authWatermark time.Time
}

// New creates a store persisting to the given file path.
func New(path string) *Store {
	return &Store{
		path:       path,
		watermarks: make(map[string]types.CollectionWatermarks),
	}
}

// Load restores persisted state. A missing file is a fresh start, not an
// error.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read stats file: %w", err)
	}

	var layout fileLayout
	if err := json.Unmarshal(data, &layout); err != nil {
		return fmt.Errorf("failed to parse stats file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = layout.RunCounters
	s.authWatermark = layout.AuthWatermark
	s.watermarks = layout.Watermarks
	if s.watermarks == nil {
		s.watermarks = make(map[string]types.CollectionWatermarks)
	}
	return nil
}

// Save writes the state to a temporary file in the same directory and
// renames it over the target, so readers never observe a torn file.
func (s *Store) Save() error {
	s.mu.RLock()
	layout := fileLayout{
		RunCounters:   s.counters,
		Watermarks:    s.watermarks,
		AuthWatermark: s.authWatermark,
	}
	data, err := json.MarshalIndent(layout, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create stats dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "stats-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp stats file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write stats: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close stats file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace stats file: %w", err)
	}
	return nil
}

// Counters returns a copy of the current counters.
func (s *Store) Counters() types.RunCounters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters
}

// Watermarks returns a copy of the watermark map.
func (s *Store) Watermarks() map[string]types.CollectionWatermarks {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]types.CollectionWatermarks, len(s.watermarks))
	for k, v := range s.watermarks {
		out[k] = v
	}
	return out
}

// Watermark returns one collection's watermark for a direction, "" when
// the collection has never been replicated that way.
func (s *Store) Watermark(collection string, dir types.Direction) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wm := s.watermarks[collection]
	if dir == types.DirectionRecover {
		return wm.Recover
	}
	return wm.Forward
}

// AdvanceWatermark moves a watermark forward. Attempts to move it
// backward are ignored; only ClearForwardWatermarks resets.
func (s *Store) AdvanceWatermark(collection string, dir types.Direction, ts string) {
	if ts == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	wm := s.watermarks[collection]
	if dir == types.DirectionRecover {
		if ts > wm.Recover {
			wm.Recover = ts
		}
	} else {
		if ts > wm.Forward {
			wm.Forward = ts
		}
	}
	s.watermarks[collection] = wm
}

// ClearForwardWatermarks resets every forward watermark so the next run
// replicates from the beginning. Recover watermarks are untouched.
func (s *Store) ClearForwardWatermarks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for col, wm := range s.watermarks {
		wm.Forward = ""
		s.watermarks[col] = wm
	}
}

// AuthWatermark returns the time of the last completed auth pass.
func (s *Store) AuthWatermark() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authWatermark
}

// SetAuthWatermark records the time of a completed auth pass.
func (s *Store) SetAuthWatermark(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.After(s.authWatermark) {
		s.authWatermark = t
	}
}

// AddWritten adds successfully committed document writes.
func (s *Store) AddWritten(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.TotalDocumentsWritten += n
}

// AddSkipped adds duplicate-suppressed documents.
func (s *Store) AddSkipped(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.DuplicatesSkipped += n
}

// AddErrors adds failed operations.
func (s *Store) AddErrors(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Errors += n
}

// MarkRun records a completed forward run.
func (s *Store) MarkRun(at time.Time, full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.IncrementalRunCount++
	s.counters.LastRunAt = at
	if full {
		s.counters.LastFullRunAt = at
	}
}

// RunCount returns the number of forward runs so far.
func (s *Store) RunCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters.IncrementalRunCount
}

// AddAuth folds one auth pass into the auth counters.
func (s *Store) AddAuth(total, synced, claims, errs int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Auth.TotalUsers = total
	s.counters.Auth.SyncedUsers += synced
	s.counters.Auth.CustomClaimsPropagated += claims
	s.counters.Auth.AuthErrors += errs
	s.counters.Auth.LastAuthRunAt = at
}

// Reset zeroes the counters. Watermarks are left alone; ForceFull is the
// operation that clears those.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = types.RunCounters{}
}
