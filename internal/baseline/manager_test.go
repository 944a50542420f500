package baseline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spcwatch/spcwatch/internal/stats"
	"github.com/spcwatch/spcwatch/pkg/types"
)

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func measurements(scope string, values ...float64) []types.Measurement {
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	out := make([]types.Measurement, len(values))
	for i, v := range values {
		out[i] = types.Measurement{
			ScopeKey:  scope,
			Value:     v,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func newTestManager(src SampleSource) *Manager {
	m := NewManager(NewMemStore(), src)
	m.now = fixedClock(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	return m
}

func TestLifecycle_FirstBaseline(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(SliceSource{"scale-1": measurements("scale-1", 99, 100, 101)})

	if got := m.State("scale-1"); got != StateNoBaseline {
		t.Fatalf("initial State: got %q, want %q", got, StateNoBaseline)
	}
	if _, err := m.Current("scale-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Current before commit: got err %v, want ErrNotFound", err)
	}

	cand, err := m.RequestRecalculation(ctx, "scale-1", types.Window{})
	if err != nil {
		t.Fatalf("RequestRecalculation: %v", err)
	}
	if cand.BasedOnVersion != 0 {
		t.Errorf("BasedOnVersion: got %d, want 0", cand.BasedOnVersion)
	}
	if cand.Mean != 100 || cand.SampleCount != 3 {
		t.Errorf("candidate: got mean=%v count=%d, want 100/3", cand.Mean, cand.SampleCount)
	}
	if got := m.State("scale-1"); got != StateRecalculating {
		t.Errorf("State during recalculation: got %q, want %q", got, StateRecalculating)
	}

	b, err := m.Commit("scale-1", cand)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if b.Version != 1 {
		t.Errorf("Version: got %d, want 1", b.Version)
	}
	if !b.CommittedAt.Equal(m.now()) {
		t.Errorf("CommittedAt: got %v, want %v", b.CommittedAt, m.now())
	}
	if got := m.State("scale-1"); got != StateStable {
		t.Errorf("State after commit: got %q, want %q", got, StateStable)
	}

	cur, err := m.Current("scale-1")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur != b {
		t.Errorf("Current: got %+v, want %+v", cur, b)
	}
}

func TestRequestRecalculation_EmptyWindow(t *testing.T) {
	ctx := context.Background()
	src := SliceSource{"scale-1": measurements("scale-1", 99, 100, 101)}
	m := newTestManager(src)

	// Seed a committed baseline first.
	cand, err := m.RequestRecalculation(ctx, "scale-1", types.Window{})
	if err != nil {
		t.Fatalf("RequestRecalculation: %v", err)
	}
	committed, err := m.Commit("scale-1", cand)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// A window before all data yields no measurements.
	empty := types.Window{
		From: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	_, err = m.RequestRecalculation(ctx, "scale-1", empty)
	if !errors.Is(err, stats.ErrInsufficientData) {
		t.Fatalf("empty window: got err %v, want ErrInsufficientData", err)
	}

	// The committed baseline is untouched and the slot is released.
	cur, err := m.Current("scale-1")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur != committed {
		t.Errorf("baseline changed after failed recalculation: %+v != %+v", cur, committed)
	}
	if got := m.State("scale-1"); got != StateStable {
		t.Errorf("State after failed recalculation: got %q, want %q", got, StateStable)
	}
}

func TestRequestRecalculation_InFlightExclusion(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(SliceSource{"scale-1": measurements("scale-1", 10, 11)})

	cand, err := m.RequestRecalculation(ctx, "scale-1", types.Window{})
	if err != nil {
		t.Fatalf("first request: %v", err)
	}

	_, err = m.RequestRecalculation(ctx, "scale-1", types.Window{})
	if !errors.Is(err, ErrRecalculationInFlight) {
		t.Fatalf("second request: got err %v, want ErrRecalculationInFlight", err)
	}

	// A different scope is unaffected.
	m2src := m.source.(SliceSource)
	m2src["scale-2"] = measurements("scale-2", 5)
	if _, err := m.RequestRecalculation(ctx, "scale-2", types.Window{}); err != nil {
		t.Fatalf("request for other scope: %v", err)
	}

	// Discard frees the slot.
	m.Discard("scale-1", cand)
	if _, err := m.RequestRecalculation(ctx, "scale-1", types.Window{}); err != nil {
		t.Fatalf("request after discard: %v", err)
	}
}

func TestDiscard_KeepsCommittedBaseline(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(SliceSource{"scale-1": measurements("scale-1", 99, 101)})

	cand, err := m.RequestRecalculation(ctx, "scale-1", types.Window{})
	if err != nil {
		t.Fatalf("RequestRecalculation: %v", err)
	}
	committed, err := m.Commit("scale-1", cand)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	next, err := m.RequestRecalculation(ctx, "scale-1", types.Window{})
	if err != nil {
		t.Fatalf("second RequestRecalculation: %v", err)
	}
	m.Discard("scale-1", next)

	cur, err := m.Current("scale-1")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur != committed {
		t.Errorf("Current after discard: got %+v, want %+v", cur, committed)
	}
	// Discard of an unknown candidate is still a no-op success.
	m.Discard("never-seen", types.Candidate{})
}

// Two candidates derived from the same version: the first commit wins and
// advances the version, the second fails with ErrStaleBaseline.
func TestCommit_Race(t *testing.T) {
	m := newTestManager(SliceSource{"scale-1": measurements("scale-1", 100)})

	// Walk the scope up to version 5.
	for v := 0; v < 5; v++ {
		if err := m.store.Save(types.Baseline{ScopeKey: "scale-1", Mean: 100, Version: v + 1}, v); err != nil {
			t.Fatalf("seed Save v%d: %v", v+1, err)
		}
	}

	first := types.Candidate{ScopeKey: "scale-1", Mean: 101, Sigma: 1, SampleCount: 10, BasedOnVersion: 5}
	second := types.Candidate{ScopeKey: "scale-1", Mean: 99, Sigma: 2, SampleCount: 12, BasedOnVersion: 5}

	b, err := m.Commit("scale-1", first)
	if err != nil {
		t.Fatalf("first Commit: %v", err)
	}
	if b.Version != 6 {
		t.Errorf("first Commit version: got %d, want 6", b.Version)
	}

	_, err = m.Commit("scale-1", second)
	if !errors.Is(err, ErrStaleBaseline) {
		t.Fatalf("second Commit: got err %v, want ErrStaleBaseline", err)
	}

	// The winner's baseline is authoritative.
	cur, err := m.Current("scale-1")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.Mean != 101 || cur.Version != 6 {
		t.Errorf("Current: got mean=%v version=%d, want 101/6", cur.Mean, cur.Version)
	}
}

func TestCommit_ConcurrentSameVersion(t *testing.T) {
	m := newTestManager(SliceSource{})
	if err := m.store.Save(types.Baseline{ScopeKey: "s", Mean: 1, Version: 1}, 0); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	won, stale := 0, 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := m.Commit("s", types.Candidate{
				ScopeKey: "s", Mean: float64(n), BasedOnVersion: 1,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, ErrStaleBaseline):
				stale++
			default:
				t.Errorf("Commit: unexpected err %v", err)
			}
		}(i)
	}
	wg.Wait()

	if won != 1 || stale != 49 {
		t.Errorf("outcomes: %d wins / %d stale, want 1/49", won, stale)
	}
	cur, err := m.Current("s")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.Version != 2 {
		t.Errorf("final version: got %d, want 2", cur.Version)
	}
}

// A Commit or Discard of a candidate other than the outstanding one must not
// clear the outstanding reservation.
func TestInFlightSlot_TiedToCandidate(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(SliceSource{"scale-1": measurements("scale-1", 99, 100, 101)})

	// Walk the scope up to version 2 so stale candidates exist.
	for v := 0; v < 2; v++ {
		if err := m.store.Save(types.Baseline{ScopeKey: "scale-1", Mean: 100, Version: v + 1}, v); err != nil {
			t.Fatalf("seed Save v%d: %v", v+1, err)
		}
	}

	cand, err := m.RequestRecalculation(ctx, "scale-1", types.Window{})
	if err != nil {
		t.Fatalf("RequestRecalculation: %v", err)
	}
	if cand.BasedOnVersion != 2 {
		t.Fatalf("BasedOnVersion: got %d, want 2", cand.BasedOnVersion)
	}

	// Discarding a stale candidate from an earlier version leaves the
	// reservation in place.
	m.Discard("scale-1", types.Candidate{ScopeKey: "scale-1", BasedOnVersion: 1})
	if _, err := m.RequestRecalculation(ctx, "scale-1", types.Window{}); !errors.Is(err, ErrRecalculationInFlight) {
		t.Fatalf("after foreign discard: got err %v, want ErrRecalculationInFlight", err)
	}

	// A failing commit of that stale candidate leaves it in place too.
	if _, err := m.Commit("scale-1", types.Candidate{ScopeKey: "scale-1", BasedOnVersion: 1}); !errors.Is(err, ErrStaleBaseline) {
		t.Fatalf("stale commit: got err %v, want ErrStaleBaseline", err)
	}
	if _, err := m.RequestRecalculation(ctx, "scale-1", types.Window{}); !errors.Is(err, ErrRecalculationInFlight) {
		t.Fatalf("after foreign stale commit: got err %v, want ErrRecalculationInFlight", err)
	}

	// The outstanding candidate itself still commits and frees the slot.
	if _, err := m.Commit("scale-1", cand); err != nil {
		t.Fatalf("Commit of outstanding candidate: %v", err)
	}
	if _, err := m.RequestRecalculation(ctx, "scale-1", types.Window{}); err != nil {
		t.Fatalf("request after commit: %v", err)
	}
}

// Readers must see the committed baseline while a recalculation is open.
func TestReadersNotBlockedDuringRecalculation(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(SliceSource{"scale-1": measurements("scale-1", 99, 100, 101)})

	cand, err := m.RequestRecalculation(ctx, "scale-1", types.Window{})
	if err != nil {
		t.Fatalf("RequestRecalculation: %v", err)
	}
	committed, err := m.Commit("scale-1", cand)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := m.RequestRecalculation(ctx, "scale-1", types.Window{}); err != nil {
		t.Fatalf("second RequestRecalculation: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cur, err := m.Current("scale-1")
			if err != nil {
				t.Errorf("Current during recalculation: %v", err)
				return
			}
			if cur != committed {
				t.Errorf("Current during recalculation: got %+v, want %+v", cur, committed)
			}
		}()
	}
	wg.Wait()
}

func TestManager_IndependentScopes(t *testing.T) {
	ctx := context.Background()
	src := SliceSource{}
	scopes := []string{"a", "b", "c", "d", "e"}
	for i, scope := range scopes {
		src[scope] = measurements(scope, float64(10*i), float64(10*i)+1)
	}
	m := newTestManager(src)

	var wg sync.WaitGroup
	for _, scope := range scopes {
		wg.Add(1)
		go func(scope string) {
			defer wg.Done()
			cand, err := m.RequestRecalculation(ctx, scope, types.Window{})
			if err != nil {
				t.Errorf("scope %q request: %v", scope, err)
				return
			}
			if _, err := m.Commit(scope, cand); err != nil {
				t.Errorf("scope %q commit: %v", scope, err)
			}
		}(scope)
	}
	wg.Wait()

	for i, scope := range scopes {
		cur, err := m.Current(scope)
		if err != nil {
			t.Fatalf("Current(%q): %v", scope, err)
		}
		want := float64(10*i) + 0.5
		if cur.Mean != want {
			t.Errorf("scope %q mean: got %v, want %v", scope, cur.Mean, want)
		}
		if cur.Version != 1 {
			t.Errorf("scope %q version: got %d, want 1", scope, cur.Version)
		}
	}
}

func TestRequestRecalculation_SourceError(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(failingSource{})

	_, err := m.RequestRecalculation(ctx, "scale-1", types.Window{})
	if err == nil {
		t.Fatal("RequestRecalculation with failing source: expected error")
	}
	// Slot released so the caller can retry.
	if got := m.State("scale-1"); got != StateNoBaseline {
		t.Errorf("State after source failure: got %q, want %q", got, StateNoBaseline)
	}
}

type failingSource struct{}

func (failingSource) Fetch(context.Context, string, types.Window) ([]types.Measurement, error) {
	return nil, errors.New("collaborator unavailable")
}
