package audit

import (
	"context"
	"time"

	"vigil/internal/storage"

	"go.uber.org/zap"
)

// Level classifies an audit event's severity.
type Level string

const (
	LevelInfo Level = "INFO"
	LevelWarn Level = "WARN"
	LevelCrit Level = "CRIT"
)

// Logger fans an audit event out to the durable store, the process log, and
// an optional notifier (the bot wires this to the guild's security channel).
// A failed store write is reported but never blocks moderation.
type Logger struct {
	store  *storage.Store
	logger *zap.Logger
	notify func(context.Context, storage.AuditLog)
}

func NewLogger(store *storage.Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger}
}

func (l *Logger) SetNotifier(notify func(context.Context, storage.AuditLog)) {
	l.notify = notify
}

func (l *Logger) Log(ctx context.Context, level Level, guildID, userID, event, details string) {
	entry := storage.AuditLog{
		GuildID:   guildID,
		UserID:    userID,
		Level:     string(level),
		Event:     event,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if l.store != nil {
		if err := l.store.AddAuditLog(ctx, entry); err != nil {
			l.logger.Warn("audit store write failed",
				zap.String("guild_id", guildID),
				zap.String("event", event),
				zap.Error(err),
			)
		}
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}

	write := l.logger.Info
	if level != LevelInfo {
		write = l.logger.Warn
	}
	write("audit",
		zap.String("level", string(level)),
		zap.String("guild_id", guildID),
		zap.String("user_id", userID),
		zap.String("event", event),
		zap.String("details", details),
	)
}
