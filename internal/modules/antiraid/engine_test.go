package antiraid

import (
	"context"
	"sync"
	"testing"
	"time"

	"vigil/internal/modules/audit"
	"vigil/internal/policy"
	"vigil/internal/storage"

	"go.uber.org/zap"
)

type fakeHooks struct {
	mu        sync.Mutex
	kicks     []string
	lockdowns []bool
}

func (h *fakeHooks) Kick(ctx context.Context, guildID, userID, reason string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.kicks = append(h.kicks, userID)
	return nil
}

func (h *fakeHooks) SetLockdown(ctx context.Context, guildID string, enabled bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lockdowns = append(h.lockdowns, enabled)
	return nil
}

type fakeTimer struct{ fn func() }

func (t *fakeTimer) Stop() bool { return true }

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
		timer.fn()
	}
}

func newTestEngine(t *testing.T) (*Engine, *fakeHooks, *fakeClock) {
	t.Helper()
	store, _ := storage.New(":memory:")
	t.Cleanup(store.Close)
	_ = store.Migrate()
	hooks := &fakeHooks{}
	engine := New(hooks, audit.NewLogger(store, zap.NewNop()), zap.NewNop())
	clock := &fakeClock{now: time.Unix(0, 0)}
	engine.WithClock(clock)
	return engine, hooks, clock
}

func raidConfig() policy.RaidConfig {
	return policy.RaidConfig{
		Enabled:       true,
		JoinThreshold: 5,
		Window:        10 * time.Second,
		AutoKick:      false,
		Lockdown:      false,
		RaidDuration:  10 * time.Minute,
	}
}

func TestBurstInsideWindowActivates(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	ctx := context.Background()
	cfg := raidConfig()

	base := clock.Now()
	var decision *Decision
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * 2250 * time.Millisecond) // 5 joins over 9s
		decision = engine.HandleJoin(ctx, "g1", userID(i), at, cfg)
	}
	if decision == nil || !decision.Activated {
		t.Fatalf("expected activation, got %+v", decision)
	}
	if !engine.Active("g1") {
		t.Fatalf("expected raid mode active")
	}
}

func TestJoinsSpreadOutsideWindowDoNotActivate(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	ctx := context.Background()
	cfg := raidConfig()

	base := clock.Now()
	offsets := []time.Duration{0, 3 * time.Second, 6 * time.Second, 9 * time.Second, 11 * time.Second}
	for i, offset := range offsets {
		if decision := engine.HandleJoin(ctx, "g1", userID(i), base.Add(offset), cfg); decision != nil && decision.Activated {
			t.Fatalf("unexpected activation at join %d", i)
		}
	}
	if engine.Active("g1") {
		t.Fatalf("expected no raid mode")
	}
}

func TestActivationKickListIsInclusive(t *testing.T) {
	engine, hooks, clock := newTestEngine(t)
	ctx := context.Background()
	cfg := raidConfig()
	cfg.AutoKick = true
	cfg.Lockdown = true

	base := clock.Now()
	var decision *Decision
	for i := 0; i < 6; i++ {
		at := base.Add(time.Duration(i) * 500 * time.Millisecond) // 6 joins within 3s
		d := engine.HandleJoin(ctx, "g1", userID(i), at, cfg)
		if d != nil && d.Activated {
			decision = d
		}
	}
	if decision == nil {
		t.Fatalf("expected activation")
	}
	if !decision.Lockdown {
		t.Fatalf("expected lockdown flag")
	}
	// Activation fires on the 5th join; the kick list holds the 5 actors in
	// the window at that instant, the trigger included.
	if len(decision.KickList) != 5 {
		t.Fatalf("expected 5 in kick list, got %d", len(decision.KickList))
	}
	if len(hooks.kicks) != 5 {
		t.Fatalf("expected 5 kicks, got %d", len(hooks.kicks))
	}
	if len(hooks.lockdowns) != 1 || !hooks.lockdowns[0] {
		t.Fatalf("expected lockdown applied, got %v", hooks.lockdowns)
	}
}

func TestRaidModeAutoDeactivates(t *testing.T) {
	engine, hooks, clock := newTestEngine(t)
	ctx := context.Background()
	cfg := raidConfig()
	cfg.Lockdown = true

	base := clock.Now()
	for i := 0; i < 5; i++ {
		engine.HandleJoin(ctx, "g1", userID(i), base.Add(time.Duration(i)*time.Second), cfg)
	}
	if !engine.Active("g1") {
		t.Fatalf("expected raid mode")
	}

	clock.Advance(cfg.RaidDuration + time.Second)
	if engine.Active("g1") {
		t.Fatalf("expected raid mode to expire")
	}
	if len(hooks.lockdowns) != 2 || hooks.lockdowns[1] {
		t.Fatalf("expected unlock on expiry, got %v", hooks.lockdowns)
	}
}

func TestManualDeactivate(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	ctx := context.Background()
	cfg := raidConfig()

	base := clock.Now()
	for i := 0; i < 5; i++ {
		engine.HandleJoin(ctx, "g1", userID(i), base.Add(time.Duration(i)*time.Second), cfg)
	}
	engine.Deactivate(ctx, "g1")
	if engine.Active("g1") {
		t.Fatalf("expected deactivation")
	}
	// Idempotent: a second deactivate is a no-op.
	engine.Deactivate(ctx, "g1")
}

func TestVerifyRoutingWhileNormal(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	ctx := context.Background()
	cfg := raidConfig()
	cfg.VerifyEnabled = true

	decision := engine.HandleJoin(ctx, "g1", "u1", clock.Now(), cfg)
	if decision == nil || !decision.Verify {
		t.Fatalf("expected verification routing, got %+v", decision)
	}

	base := clock.Now()
	var activated *Decision
	for i := 0; i < 5; i++ {
		d := engine.HandleJoin(ctx, "g1", userID(10+i), base.Add(time.Duration(i)*time.Second), cfg)
		if d != nil && d.Activated {
			activated = d
		}
	}
	if activated == nil {
		t.Fatalf("expected activation regardless of verification")
	}
	if activated.Verify {
		t.Fatalf("activation decision must not also route to verification")
	}
}

func TestOversizedWindowClampedToRetention(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	ctx := context.Background()
	cfg := raidConfig()
	cfg.Window = 2 * time.Hour
	cfg.JoinThreshold = 2

	base := clock.Now()
	engine.HandleJoin(ctx, "g1", "a", base, cfg)
	// The second join lands past the retention bound: even with a two-hour
	// configured window the first join must no longer count.
	decision := engine.HandleJoin(ctx, "g1", "b", base.Add(joinRetention+time.Minute), cfg)
	if decision != nil && decision.Activated {
		t.Fatalf("joins outside the retention bound must not count")
	}
	if engine.Active("g1") {
		t.Fatalf("expected no raid mode")
	}

	// Two joins inside the bound still trip the threshold.
	at := base.Add(joinRetention + 2*time.Minute)
	decision = engine.HandleJoin(ctx, "g1", "c", at, cfg)
	if decision == nil || !decision.Activated {
		t.Fatalf("expected activation inside the retention bound, got %+v", decision)
	}
}

func TestDisabledConfigIgnoresJoins(t *testing.T) {
	engine, _, clock := newTestEngine(t)
	cfg := raidConfig()
	cfg.Enabled = false
	for i := 0; i < 10; i++ {
		if decision := engine.HandleJoin(context.Background(), "g1", userID(i), clock.Now(), cfg); decision != nil {
			t.Fatalf("expected nil decision when disabled")
		}
	}
}

func userID(i int) string {
	return string(rune('a' + i))
}
