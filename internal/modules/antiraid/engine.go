package antiraid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vigil/internal/modules/audit"
	"vigil/internal/policy"
	"vigil/internal/utils"

	"go.uber.org/zap"
)

// joinRetention bounds how long join entries are kept. A detection window
// configured longer than this is clamped to it.
const joinRetention = 15 * time.Minute

// Decision reports what a join event triggered.
type Decision struct {
	Activated bool
	Lockdown  bool
	KickList  []string
	Verify    bool
}

// Hooks are the host-supplied raid mitigations.
type Hooks interface {
	Kick(ctx context.Context, guildID, userID, reason string) error
	SetLockdown(ctx context.Context, guildID string, enabled bool) error
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool { return t.t.Stop() }

type guildState struct {
	active      bool
	activatedAt time.Time
	lockdown    bool
	timer       Timer
}

type Engine struct {
	mu     sync.Mutex
	clock  Clock
	hooks  Hooks
	audit  *audit.Logger
	logger *zap.Logger
	joins  *utils.WindowStore
	states map[string]*guildState
}

func New(hooks Hooks, auditLogger *audit.Logger, logger *zap.Logger) *Engine {
	return &Engine{
		clock:  realClock{},
		hooks:  hooks,
		audit:  auditLogger,
		logger: logger,
		joins:  utils.NewWindowStore(joinRetention),
		states: make(map[string]*guildState),
	}
}

func (e *Engine) WithClock(clock Clock) {
	e.clock = clock
}

// HandleJoin records the join and evaluates the burst threshold. On
// activation the kick list is every actor still inside the detection window,
// the triggering join included. While the guild is in normal state and
// verification is enabled, the decision routes the joiner to the gate
// instead; raid counting happens either way.
func (e *Engine) HandleJoin(ctx context.Context, guildID, actorID string, at time.Time, cfg policy.RaidConfig) *Decision {
	if !cfg.Enabled {
		return nil
	}
	if at.IsZero() {
		at = e.clock.Now()
	}
	window := cfg.Window
	if window > joinRetention {
		window = joinRetention
	}

	e.mu.Lock()
	state := e.states[guildID]
	if state == nil {
		state = &guildState{}
		e.states[guildID] = state
	}

	e.joins.Record(guildID, actorID, at)
	count := e.joins.CountSince(guildID, at, window)

	if state.active || count < cfg.JoinThreshold {
		verify := !state.active && cfg.VerifyEnabled
		e.mu.Unlock()
		if !verify {
			return nil
		}
		return &Decision{Verify: verify}
	}

	state.active = true
	state.activatedAt = at
	state.lockdown = cfg.Lockdown
	kickList := e.joins.Payloads(guildID, at, window)
	duration := cfg.RaidDuration
	if duration <= 0 {
		duration = 10 * time.Minute
	}
	state.timer = e.clock.AfterFunc(duration, func() {
		e.deactivate(context.Background(), guildID)
	})
	e.mu.Unlock()

	decision := &Decision{Activated: true, Lockdown: cfg.Lockdown, KickList: kickList}

	detail := fmt.Sprintf("type=RAID joins=%d threshold=%d window=%s", count, cfg.JoinThreshold, cfg.Window)
	e.audit.Log(ctx, audit.LevelCrit, guildID, actorID, "anti_raid", detail)

	if cfg.Lockdown {
		if err := e.hooks.SetLockdown(ctx, guildID, true); err != nil {
			e.logger.Warn("lockdown failed", zap.String("guild_id", guildID), zap.Error(err))
		}
	}
	if cfg.AutoKick {
		for _, userID := range kickList {
			if err := e.hooks.Kick(ctx, guildID, userID, "raid protection: join burst"); err != nil {
				e.logger.Warn("raid kick failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
			}
		}
	}

	return decision
}

// Active reports whether the guild is currently in raid mode.
func (e *Engine) Active(guildID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := e.states[guildID]
	return state != nil && state.active
}

// Deactivate ends raid mode early (moderator override). No-op when the guild
// is not in raid mode.
func (e *Engine) Deactivate(ctx context.Context, guildID string) {
	e.mu.Lock()
	state := e.states[guildID]
	if state != nil && state.timer != nil {
		state.timer.Stop()
	}
	e.mu.Unlock()
	e.deactivate(ctx, guildID)
}

func (e *Engine) deactivate(ctx context.Context, guildID string) {
	e.mu.Lock()
	state := e.states[guildID]
	if state == nil || !state.active {
		e.mu.Unlock()
		return
	}
	state.active = false
	wasLockdown := state.lockdown
	state.lockdown = false
	state.timer = nil
	e.joins.Clear(guildID)
	e.mu.Unlock()

	if wasLockdown {
		if err := e.hooks.SetLockdown(ctx, guildID, false); err != nil {
			e.logger.Warn("lockdown release failed", zap.String("guild_id", guildID), zap.Error(err))
		}
	}
	e.audit.Log(ctx, audit.LevelInfo, guildID, "", "anti_raid", "raid mode deactivated")
}

// Sweep prunes stale join windows. Driven by the host's ticker.
func (e *Engine) Sweep(now time.Time) {
	e.joins.Sweep(now)
}
