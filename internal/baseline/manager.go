package baseline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spcwatch/spcwatch/internal/stats"
	"github.com/spcwatch/spcwatch/pkg/types"
)

// Errors returned by the Manager.
var (
	// ErrNotFound means no baseline has been committed for the scope yet.
	// Distinct from a legitimate zero-variance baseline.
	ErrNotFound = errors.New("baseline: not found")

	// ErrStaleBaseline means another recalculation committed first; the
	// caller must re-request against the fresh baseline.
	ErrStaleBaseline = errors.New("baseline: stale candidate")

	// ErrRecalculationInFlight means a recalculation request for the scope
	// is already outstanding and has not been committed or discarded.
	ErrRecalculationInFlight = errors.New("baseline: recalculation already in flight")
)

// Scope lifecycle states reported by State.
const (
	StateNoBaseline    = "no_baseline"
	StateStable        = "stable"
	StateRecalculating = "recalculating"
)

// Manager owns the versioned baseline record per scope. Recalculation
// operates on a private candidate, so the previously committed baseline
// stays authoritative and readable throughout; commit is guarded by the
// store's compare-and-swap on the version, and a losing commit fails with
// ErrStaleBaseline rather than blocking.
//
// Manager is safe for concurrent use, for the same scope and across scopes.
type Manager struct {
	store  Store
	source SampleSource

	// inflight records, per scope, the BasedOnVersion of the outstanding
	// candidate. Release is keyed on that version so a Commit or Discard of
	// a stale or never-requested candidate cannot clear another caller's
	// reservation.
	mu       sync.Mutex
	inflight map[string]int

	now func() time.Time // injectable for deterministic tests
}

// NewManager creates a Manager over the given baseline store and sample source.
func NewManager(store Store, source SampleSource) *Manager {
	return &Manager{
		store:    store,
		source:   source,
		inflight: make(map[string]int),
		now:      time.Now,
	}
}

// Current returns the committed baseline for scope, or ErrNotFound before
// the first successful commit. Reads are never blocked by an in-flight
// recalculation.
func (m *Manager) Current(scope string) (types.Baseline, error) {
	b, ok := m.store.Load(scope)
	if !ok {
		return types.Baseline{}, fmt.Errorf("%w: scope %q", ErrNotFound, scope)
	}
	return b, nil
}

// State reports the lifecycle state for scope.
func (m *Manager) State(scope string) string {
	m.mu.Lock()
	_, busy := m.inflight[scope]
	m.mu.Unlock()
	if busy {
		return StateRecalculating
	}
	if _, ok := m.store.Load(scope); ok {
		return StateStable
	}
	return StateNoBaseline
}

// RequestRecalculation fetches the measurement sample for the window and
// computes a candidate baseline for scope. The candidate records the
// committed version observed at request time (0 when no baseline exists);
// Commit later rejects it if that version has moved on.
//
// At most one recalculation per scope may be outstanding: a second request
// before Commit or Discard fails with ErrRecalculationInFlight. An empty
// window fails with stats.ErrInsufficientData and releases the slot; the
// committed baseline, if any, is untouched either way.
func (m *Manager) RequestRecalculation(ctx context.Context, scope string, window types.Window) (types.Candidate, error) {
	basedOn := 0
	if b, ok := m.store.Load(scope); ok {
		basedOn = b.Version
	}

	m.mu.Lock()
	if _, busy := m.inflight[scope]; busy {
		m.mu.Unlock()
		return types.Candidate{}, fmt.Errorf("%w: scope %q", ErrRecalculationInFlight, scope)
	}
	m.inflight[scope] = basedOn
	m.mu.Unlock()

	sample, err := m.source.Fetch(ctx, scope, window)
	if err != nil {
		m.release(scope, basedOn)
		return types.Candidate{}, fmt.Errorf("baseline: fetch sample for scope %q: %w", scope, err)
	}

	sum, err := stats.Compute(sample)
	if err != nil {
		m.release(scope, basedOn)
		return types.Candidate{}, fmt.Errorf("baseline: recalculate scope %q: %w", scope, err)
	}

	slog.Debug("baseline: candidate computed",
		"scope", scope,
		"mean", sum.Mean,
		"sigma", sum.Sigma,
		"count", sum.Count,
		"based_on_version", basedOn,
	)

	return types.Candidate{
		ScopeKey:       scope,
		Mean:           sum.Mean,
		Sigma:          sum.Sigma,
		SampleCount:    sum.Count,
		BasedOnVersion: basedOn,
	}, nil
}

// Commit persists a candidate as the new committed baseline for scope,
// incrementing the version. It fails with ErrStaleBaseline when another
// commit has advanced the version past the candidate's BasedOnVersion;
// the caller decides whether to re-request or abandon. The candidate's own
// in-flight reservation is released on both success and staleness; a
// reservation held for a different candidate stays put.
func (m *Manager) Commit(scope string, c types.Candidate) (types.Baseline, error) {
	b := types.Baseline{
		ScopeKey:    scope,
		Mean:        c.Mean,
		Sigma:       c.Sigma,
		SampleCount: c.SampleCount,
		Version:     c.BasedOnVersion + 1,
		CommittedAt: m.now(),
	}

	if err := m.store.Save(b, c.BasedOnVersion); err != nil {
		m.release(scope, c.BasedOnVersion)
		return types.Baseline{}, err
	}
	m.release(scope, c.BasedOnVersion)

	slog.Info("baseline: committed",
		"scope", scope,
		"version", b.Version,
		"mean", b.Mean,
		"sigma", b.Sigma,
		"sample_count", b.SampleCount,
	)
	return b, nil
}

// Discard abandons a candidate. It only releases the candidate's in-flight
// reservation; the committed baseline, whichever it currently is, remains
// authoritative. Discard always succeeds: for unknown or already-released
// candidates it is a no-op, and a reservation held for a different candidate
// is left alone.
func (m *Manager) Discard(scope string, c types.Candidate) {
	m.release(scope, c.BasedOnVersion)
	slog.Debug("baseline: candidate discarded", "scope", scope)
}

// release frees the scope's in-flight slot, but only if it is still held by
// the candidate with the given BasedOnVersion.
func (m *Manager) release(scope string, basedOn int) {
	m.mu.Lock()
	if v, ok := m.inflight[scope]; ok && v == basedOn {
		delete(m.inflight, scope)
	}
	m.mu.Unlock()
}
