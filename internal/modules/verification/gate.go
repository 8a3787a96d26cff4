package verification

import (
	"context"
	"sync"
	"time"

	"vigil/internal/modules/audit"

	"go.uber.org/zap"
)

// Result of a confirmation attempt.
type Result string

const (
	ResultVerified         Result = "verified"
	ResultAlreadyProcessed Result = "already_processed"
	ResultNotPending       Result = "not_pending"
)

// Outcome is the terminal state of a gated member.
type Outcome string

const (
	OutcomeVerified Outcome = "verified"
	OutcomeTimedOut Outcome = "timed_out"
)

// outcomeRetention is how long terminal outcomes are remembered so a late
// duplicate confirm can be told apart from a member who was never gated.
const outcomeRetention = 24 * time.Hour

// Hooks are the host-supplied gate side effects.
type Hooks interface {
	Restrict(ctx context.Context, guildID, userID string) error
	Prompt(ctx context.Context, guildID, userID string) error
	Promote(ctx context.Context, guildID, userID string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
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

type pendingRecord struct {
	joinedAt time.Time
	timer    Timer
}

type outcomeRecord struct {
	outcome Outcome
	at      time.Time
}

// Gate holds at most one pending verification per (guild, actor). Confirm
// and timeout race; whichever deletes the pending record first wins and the
// loser observes its absence and does nothing.
type Gate struct {
	mu       sync.Mutex
	clock    Clock
	hooks    Hooks
	audit    *audit.Logger
	logger   *zap.Logger
	pending  map[string]*pendingRecord
	outcomes map[string]outcomeRecord
}

func New(hooks Hooks, auditLogger *audit.Logger, logger *zap.Logger) *Gate {
	return &Gate{
		clock:    realClock{},
		hooks:    hooks,
		audit:    auditLogger,
		logger:   logger,
		pending:  make(map[string]*pendingRecord),
		outcomes: make(map[string]outcomeRecord),
	}
}

func (g *Gate) WithClock(clock Clock) {
	g.clock = clock
}

// Begin places a new member under the gate: restrict, prompt, and start the
// timeout. A member already pending is left untouched.
func (g *Gate) Begin(ctx context.Context, guildID, userID string, timeout time.Duration) {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	key := guildID + ":" + userID

	g.mu.Lock()
	if g.pending[key] != nil {
		g.mu.Unlock()
		return
	}
	record := &pendingRecord{joinedAt: g.clock.Now()}
	record.timer = g.clock.AfterFunc(timeout, func() {
		g.expire(guildID, userID)
	})
	g.pending[key] = record
	delete(g.outcomes, key)
	g.mu.Unlock()

	if err := g.hooks.Restrict(ctx, guildID, userID); err != nil {
		g.logger.Warn("verification restrict failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
	}
	if err := g.hooks.Prompt(ctx, guildID, userID); err != nil {
		g.logger.Warn("verification prompt failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
	}
	g.audit.Log(ctx, audit.LevelInfo, guildID, userID, "verification", "member gated")
}

// Confirm resolves the gate in the member's favor. Exactly one of Confirm
// and the timeout may take effect.
func (g *Gate) Confirm(ctx context.Context, guildID, userID string) Result {
	key := guildID + ":" + userID

	g.mu.Lock()
	record := g.pending[key]
	if record == nil {
		_, terminal := g.outcomes[key]
		g.mu.Unlock()
		if terminal {
			return ResultAlreadyProcessed
		}
		return ResultNotPending
	}
	record.timer.Stop()
	delete(g.pending, key)
	g.outcomes[key] = outcomeRecord{outcome: OutcomeVerified, at: g.clock.Now()}
	g.mu.Unlock()

	if err := g.hooks.Promote(ctx, guildID, userID); err != nil {
		g.logger.Warn("verification promote failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
	}
	g.audit.Log(ctx, audit.LevelInfo, guildID, userID, "verification", "member verified")
	return ResultVerified
}

func (g *Gate) expire(guildID, userID string) {
	key := guildID + ":" + userID

	g.mu.Lock()
	if g.pending[key] == nil {
		// Confirm won the race.
		g.mu.Unlock()
		return
	}
	delete(g.pending, key)
	g.outcomes[key] = outcomeRecord{outcome: OutcomeTimedOut, at: g.clock.Now()}
	g.mu.Unlock()

	ctx := context.Background()
	if err := g.hooks.Kick(ctx, guildID, userID, "verification timeout"); err != nil {
		g.logger.Warn("verification kick failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
	}
	g.audit.Log(ctx, audit.LevelWarn, guildID, userID, "verification", "member timed out")
}

// Pending reports whether the member is currently gated.
func (g *Gate) Pending(guildID, userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending[guildID+":"+userID] != nil
}

// OutcomeOf returns the terminal state, if one is remembered.
func (g *Gate) OutcomeOf(guildID, userID string) (Outcome, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	record, ok := g.outcomes[guildID+":"+userID]
	return record.outcome, ok
}

// Sweep drops terminal outcomes past the retention. Driven by the host's
// ticker.
func (g *Gate) Sweep(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for key, record := range g.outcomes {
		if now.Sub(record.at) > outcomeRetention {
			delete(g.outcomes, key)
		}
	}
}
