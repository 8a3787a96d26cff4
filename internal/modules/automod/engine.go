package automod

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

// Action is the moderation step selected for a violation.
type Action string

const (
	ActionWarn Action = "warn"
	ActionMute Action = "mute"
	ActionKick Action = "kick"
	ActionBan  Action = "ban"
)

// Decision reports what the engine did for one message.
type Decision struct {
	Kind   policy.Kind
	Action Action
	Count  int
}

// Hooks are the host-supplied side effects. Failures are logged and
// swallowed; the violation count is already committed when they run.
type Hooks interface {
	DeleteMessage(ctx context.Context, guildID, channelID, messageID string) error
	Mute(ctx context.Context, guildID, userID string) error
	Unmute(ctx context.Context, guildID, userID string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	Ban(ctx context.Context, guildID, userID, reason string) error
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

// ViolationRecord accumulates per (guild, actor). The count is monotonic:
// nothing decays it, only an explicit admin reset clears it.
type ViolationRecord struct {
	Count           int
	LastViolationAt time.Time
}

type Engine struct {
	mu         sync.Mutex
	clock      Clock
	hooks      Hooks
	audit      *audit.Logger
	logger     *zap.Logger
	messages   *utils.WindowStore
	records    map[string]*ViolationRecord
	muteTimers map[string]Timer
	persist    func(ctx context.Context, guildID, userID string, kind policy.Kind, action Action, count int, at time.Time)
}

func New(hooks Hooks, auditLogger *audit.Logger, logger *zap.Logger) *Engine {
	return &Engine{
		clock:      realClock{},
		hooks:      hooks,
		audit:      auditLogger,
		logger:     logger,
		messages:   utils.NewWindowStore(time.Duration(policy.DuplicateWindow) * time.Millisecond),
		records:    make(map[string]*ViolationRecord),
		muteTimers: make(map[string]Timer),
	}
}

func (e *Engine) WithClock(clock Clock) {
	e.clock = clock
}

// SetPersister installs the durable-storage side effect for new counts.
func (e *Engine) SetPersister(persist func(ctx context.Context, guildID, userID string, kind policy.Kind, action Action, count int, at time.Time)) {
	e.persist = persist
}

// HandleMessage records the message, evaluates the policies in order, and on
// a breach escalates the actor's counter and dispatches the selected action.
// Returns nil when the message is clean. The in-memory transition is complete
// before any hook is invoked, so a concurrent event for the same actor
// observes the updated count even while hooks are in flight.
func (e *Engine) HandleMessage(ctx context.Context, msg policy.Message, cfg policy.Config) *Decision {
	now := msg.At
	if now.IsZero() {
		now = e.clock.Now()
	}
	msg.At = now
	key := msg.GuildID + ":" + msg.ActorID

	e.mu.Lock()
	e.messages.Record(key, msg.Content, now)
	state := policy.WindowState{
		RecentCount:    e.messages.CountSince(key, now, time.Duration(policy.RapidFireWindow)*time.Millisecond),
		DuplicateCount: e.messages.CountMatching(key, msg.Content, now, time.Duration(policy.DuplicateWindow)*time.Millisecond),
	}

	kind, breached := policy.Evaluate(msg, state, cfg)
	if !breached {
		e.mu.Unlock()
		return nil
	}

	record := e.records[key]
	if record == nil {
		record = &ViolationRecord{}
		e.records[key] = record
	}
	record.Count++
	record.LastViolationAt = now
	count := record.Count

	action := selectAction(count, cfg.Escalation)
	if action == ActionMute {
		e.scheduleMuteLocked(key, msg.GuildID, msg.ActorID, cfg.Escalation.MuteDuration)
	}
	e.mu.Unlock()

	decision := &Decision{Kind: kind, Action: action, Count: count}
	e.dispatch(ctx, msg, decision)
	return decision
}

// selectAction compares the new count against the thresholds in descending
// severity, so a count past several thresholds at once takes only the most
// severe action.
func selectAction(count int, cfg policy.EscalationConfig) Action {
	if cfg.BanAt > 0 && count >= cfg.BanAt {
		return ActionBan
	}
	if cfg.KickAt > 0 && count >= cfg.KickAt {
		return ActionKick
	}
	if cfg.MuteAt > 0 && count >= cfg.MuteAt {
		return ActionMute
	}
	return ActionWarn
}

func (e *Engine) dispatch(ctx context.Context, msg policy.Message, decision *Decision) {
	if err := e.hooks.DeleteMessage(ctx, msg.GuildID, msg.ChannelID, msg.MessageID); err != nil {
		e.logger.Warn("message delete failed", zap.String("guild_id", msg.GuildID), zap.Error(err))
	}

	reason := fmt.Sprintf("auto-moderation: %s violation #%d", decision.Kind, decision.Count)
	var err error
	switch decision.Action {
	case ActionMute:
		err = e.hooks.Mute(ctx, msg.GuildID, msg.ActorID)
	case ActionKick:
		err = e.hooks.Kick(ctx, msg.GuildID, msg.ActorID, reason)
	case ActionBan:
		err = e.hooks.Ban(ctx, msg.GuildID, msg.ActorID, reason)
	}
	if err != nil {
		e.logger.Warn("moderation action failed",
			zap.String("guild_id", msg.GuildID),
			zap.String("user_id", msg.ActorID),
			zap.String("action", string(decision.Action)),
			zap.Error(err),
		)
	}

	if e.persist != nil {
		e.persist(ctx, msg.GuildID, msg.ActorID, decision.Kind, decision.Action, decision.Count, msg.At)
	}

	detail := fmt.Sprintf("type=%s action=%s count=%d", decision.Kind, decision.Action, decision.Count)
	e.audit.Log(ctx, audit.LevelWarn, msg.GuildID, msg.ActorID, "auto_mod", detail)
}

func (e *Engine) scheduleMuteLocked(key, guildID, userID string, duration time.Duration) {
	if duration <= 0 {
		duration = 10 * time.Minute
	}
	if timer := e.muteTimers[key]; timer != nil {
		timer.Stop()
	}
	e.muteTimers[key] = e.clock.AfterFunc(duration, func() {
		e.mu.Lock()
		delete(e.muteTimers, key)
		e.mu.Unlock()
		if err := e.hooks.Unmute(context.Background(), guildID, userID); err != nil {
			e.logger.Warn("auto-unmute failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
		}
	})
}

// Unmute cancels a pending auto-unmute timer and removes the mute early.
// Idempotent: a fired or absent timer is a no-op to cancel.
func (e *Engine) Unmute(ctx context.Context, guildID, userID string) error {
	key := guildID + ":" + userID
	e.mu.Lock()
	if timer := e.muteTimers[key]; timer != nil {
		timer.Stop()
		delete(e.muteTimers, key)
	}
	e.mu.Unlock()
	return e.hooks.Unmute(ctx, guildID, userID)
}

// Count reports the actor's current violation count.
func (e *Engine) Count(guildID, userID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	record := e.records[guildID+":"+userID]
	if record == nil {
		return 0
	}
	return record.Count
}

// Reset clears the actor's violation record. The only path that ever lowers
// a count.
func (e *Engine) Reset(guildID, userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.records, guildID+":"+userID)
}

// Sweep prunes stale message windows. Driven by the host's ticker.
func (e *Engine) Sweep(now time.Time) {
	e.messages.Sweep(now)
}
