package verification

import (
	"context"
	"sync"
	"testing"
	"time"

	"vigil/internal/modules/audit"
	"vigil/internal/storage"

	"go.uber.org/zap"
)

type fakeHooks struct {
	mu        sync.Mutex
	restricts []string
	prompts   []string
	promotes  []string
	kicks     []string
}

func (h *fakeHooks) Restrict(ctx context.Context, guildID, userID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restricts = append(h.restricts, userID)
	return nil
}

func (h *fakeHooks) Prompt(ctx context.Context, guildID, userID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prompts = append(h.prompts, userID)
	return nil
}

func (h *fakeHooks) Promote(ctx context.Context, guildID, userID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.promotes = append(h.promotes, userID)
	return nil
}

func (h *fakeHooks) Kick(ctx context.Context, guildID, userID, reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.kicks = append(h.kicks, userID)
	return nil
}

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	pending := append([]*fakeTimer{}, f.timers...)
	f.timers = nil
	f.mu.Unlock()
	for _, timer := range pending {
		if !timer.stopped {
			timer.fn()
		}
	}
}

// FireAll invokes every timer callback regardless of Stop, simulating a
// timeout already in flight when the confirm lands.
func (f *fakeClock) FireAll() {
	f.mu.Lock()
	pending := append([]*fakeTimer{}, f.timers...)
	f.timers = nil
	f.mu.Unlock()
	for _, timer := range pending {
		timer.fn()
	}
}

func newTestGate(t *testing.T) (*Gate, *fakeHooks, *fakeClock) {
	t.Helper()
	store, _ := storage.New(":memory:")
	t.Cleanup(store.Close)
	_ = store.Migrate()
	hooks := &fakeHooks{}
	gate := New(hooks, audit.NewLogger(store, zap.NewNop()), zap.NewNop())
	clock := &fakeClock{now: time.Unix(0, 0)}
	gate.WithClock(clock)
	return gate, hooks, clock
}

func TestBeginRestrictsAndPrompts(t *testing.T) {
	gate, hooks, _ := newTestGate(t)
	gate.Begin(context.Background(), "g1", "u1", time.Minute)
	if !gate.Pending("g1", "u1") {
		t.Fatalf("expected pending record")
	}
	if len(hooks.restricts) != 1 || len(hooks.prompts) != 1 {
		t.Fatalf("expected restrict and prompt, got %+v", hooks)
	}

	// A second Begin for the same member is a no-op.
	gate.Begin(context.Background(), "g1", "u1", time.Minute)
	if len(hooks.restricts) != 1 {
		t.Fatalf("duplicate begin must not restrict again")
	}
}

func TestConfirmBeforeTimeout(t *testing.T) {
	gate, hooks, clock := newTestGate(t)
	ctx := context.Background()
	gate.Begin(ctx, "g1", "u1", time.Minute)

	if result := gate.Confirm(ctx, "g1", "u1"); result != ResultVerified {
		t.Fatalf("expected verified, got %s", result)
	}
	if len(hooks.promotes) != 1 {
		t.Fatalf("expected promote")
	}

	clock.Advance(2 * time.Minute)
	if len(hooks.kicks) != 0 {
		t.Fatalf("stopped timeout must not kick")
	}
	if outcome, ok := gate.OutcomeOf("g1", "u1"); !ok || outcome != OutcomeVerified {
		t.Fatalf("expected verified outcome, got %s %t", outcome, ok)
	}
}

func TestTimeoutBeforeConfirm(t *testing.T) {
	gate, hooks, clock := newTestGate(t)
	ctx := context.Background()
	gate.Begin(ctx, "g1", "u1", time.Minute)

	clock.Advance(2 * time.Minute)
	if len(hooks.kicks) != 1 {
		t.Fatalf("expected kick on timeout")
	}
	if gate.Pending("g1", "u1") {
		t.Fatalf("expected pending record removed")
	}

	if result := gate.Confirm(ctx, "g1", "u1"); result != ResultAlreadyProcessed {
		t.Fatalf("expected already-processed, got %s", result)
	}
	if len(hooks.promotes) != 0 {
		t.Fatalf("late confirm must not promote")
	}
}

func TestConfirmRaceWithInFlightTimeout(t *testing.T) {
	gate, hooks, clock := newTestGate(t)
	ctx := context.Background()
	gate.Begin(ctx, "g1", "u1", time.Minute)

	if result := gate.Confirm(ctx, "g1", "u1"); result != ResultVerified {
		t.Fatalf("expected verified, got %s", result)
	}
	// The timeout callback fires anyway; it must observe the missing record
	// and do nothing.
	clock.FireAll()
	if len(hooks.kicks) != 0 {
		t.Fatalf("losing timeout must be a no-op, got %d kicks", len(hooks.kicks))
	}
	if len(hooks.promotes) != 1 {
		t.Fatalf("exactly one terminal transition expected")
	}
}

func TestConfirmWithoutBegin(t *testing.T) {
	gate, _, _ := newTestGate(t)
	if result := gate.Confirm(context.Background(), "g1", "stranger"); result != ResultNotPending {
		t.Fatalf("expected not-pending, got %s", result)
	}
}

func TestSweepPrunesOutcomes(t *testing.T) {
	gate, _, clock := newTestGate(t)
	ctx := context.Background()
	gate.Begin(ctx, "g1", "u1", time.Minute)
	gate.Confirm(ctx, "g1", "u1")

	gate.Sweep(clock.Now().Add(25 * time.Hour))
	if _, ok := gate.OutcomeOf("g1", "u1"); ok {
		t.Fatalf("expected outcome pruned")
	}
	if result := gate.Confirm(ctx, "g1", "u1"); result != ResultNotPending {
		t.Fatalf("expected not-pending after prune, got %s", result)
	}
}
