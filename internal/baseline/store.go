package baseline

import (
	"context"
	"fmt"
	"sync"

	"github.com/spcwatch/spcwatch/pkg/types"
)

// Store is the persistence boundary for committed baselines. Save is a
// compare-and-swap keyed on the version: it persists b only if the currently
// stored version for b.ScopeKey equals expect (0 meaning no baseline yet),
// returning ErrStaleBaseline otherwise. Implementations must make
// Save atomic with respect to concurrent Save calls for the same scope.
type Store interface {
	Load(scope string) (types.Baseline, bool)
	Save(b types.Baseline, expect int) error
}

// MemStore is a thread-safe in-memory baseline store, keyed by scope.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]types.Baseline
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]types.Baseline)}
}

// Load returns the committed baseline for the given scope and a boolean
// indicating whether one exists.
func (s *MemStore) Load(scope string) (types.Baseline, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[scope]
	return b, ok
}

// Save stores b if the current version for its scope equals expect.
// The check and the write hold one lock, so concurrent Saves for the same
// scope serialize and exactly one writer per version can win.
func (s *MemStore) Save(b types.Baseline, expect int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := 0
	if existing, ok := s.data[b.ScopeKey]; ok {
		cur = existing.Version
	}
	if cur != expect {
		return fmt.Errorf("%w: scope %q is at version %d, candidate based on %d",
			ErrStaleBaseline, b.ScopeKey, cur, expect)
	}
	s.data[b.ScopeKey] = b
	return nil
}

// List returns a copy of all committed baselines.
func (s *MemStore) List() []types.Baseline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Baseline, 0, len(s.data))
	for _, b := range s.data {
		out = append(out, b)
	}
	return out
}

// Count returns the number of scopes with a committed baseline.
func (s *MemStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// SampleSource supplies the ordered measurement sample for a recalculation
// window. It is the data-access collaborator: implementations must return
// measurements ordered by timestamp ascending; the engine does not sort.
type SampleSource interface {
	Fetch(ctx context.Context, scope string, window types.Window) ([]types.Measurement, error)
}

// SliceSource is a SampleSource over an in-memory measurement set, grouped
// by scope. Fetch filters by window and preserves input order, so callers
// must hand it timestamp-ascending slices.
type SliceSource map[string][]types.Measurement

// Fetch returns the measurements for scope whose timestamps fall inside the
// window.
func (s SliceSource) Fetch(_ context.Context, scope string, window types.Window) ([]types.Measurement, error) {
	var out []types.Measurement
	for _, m := range s[scope] {
		if window.Contains(m.Timestamp) {
			out = append(out, m)
		}
	}
	return out, nil
}
