package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sql.DB
}

// GuildSettings holds the per-guild policy overrides merged over the process
// defaults on every evaluation.
type GuildSettings struct {
	GuildID              string
	SecurityLogChannel   string
	AntiSpamEnabled      bool
	LinkFilterEnabled    bool
	WordFilterEnabled    bool
	MentionSpamEnabled   bool
	MentionMax           int
	MuteAt               int
	KickAt               int
	BanAt                int
	MuteMinutes          int
	RaidEnabled          bool
	RaidJoins            int
	RaidWindowSeconds    int
	VerifyEnabled        bool
	VerifyTimeoutSeconds int
	RaidAutoKick         bool
	RaidLockdown         bool
	RaidDurationSeconds  int
}

type AuditLog struct {
	ID        int64
	GuildID   string
	UserID    string
	Level     string
	Event     string
	Details   string
	CreatedAt time.Time
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *Store) Migrate() error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return err
	}

	var files []string
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := migrations.ReadFile(path.Join("migrations", file))
		if err != nil {
			return err
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			if isIgnorableMigrationError(err) {
				continue
			}
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
	}
	return nil
}

func (s *Store) GetGuildSettings(ctx context.Context, guildID string, defaults GuildSettings) (GuildSettings, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT security_log_channel, anti_spam_enabled, link_filter_enabled,
		word_filter_enabled, mention_spam_enabled, mention_max,
		mute_at, kick_at, ban_at, mute_minutes,
		raid_enabled, raid_joins, raid_window_seconds,
		verify_enabled, verify_timeout_seconds,
		raid_auto_kick, raid_lockdown, raid_duration_seconds
		FROM guild_settings WHERE guild_id = ?`, guildID)

	result := defaults
	result.GuildID = guildID

	var antiSpam, linkFilter, wordFilter, mentionSpam int
	var raidEnabled, verifyEnabled, autoKick, lockdown int
	err := row.Scan(
		&result.SecurityLogChannel,
		&antiSpam,
		&linkFilter,
		&wordFilter,
		&mentionSpam,
		&result.MentionMax,
		&result.MuteAt,
		&result.KickAt,
		&result.BanAt,
		&result.MuteMinutes,
		&raidEnabled,
		&result.RaidJoins,
		&result.RaidWindowSeconds,
		&verifyEnabled,
		&result.VerifyTimeoutSeconds,
		&autoKick,
		&lockdown,
		&result.RaidDurationSeconds,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return result, nil
		}
		return GuildSettings{}, err
	}
	result.AntiSpamEnabled = antiSpam == 1
	result.LinkFilterEnabled = linkFilter == 1
	result.WordFilterEnabled = wordFilter == 1
	result.MentionSpamEnabled = mentionSpam == 1
	result.RaidEnabled = raidEnabled == 1
	result.VerifyEnabled = verifyEnabled == 1
	result.RaidAutoKick = autoKick == 1
	result.RaidLockdown = lockdown == 1
	if result.SecurityLogChannel == "" {
		result.SecurityLogChannel = defaults.SecurityLogChannel
	}
	return result, nil
}

func (s *Store) UpsertGuildSettings(ctx context.Context, settings GuildSettings) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guild_settings (
			guild_id, security_log_channel,
			anti_spam_enabled, link_filter_enabled, word_filter_enabled,
			mention_spam_enabled, mention_max,
			mute_at, kick_at, ban_at, mute_minutes,
			raid_enabled, raid_joins, raid_window_seconds,
			verify_enabled, verify_timeout_seconds,
			raid_auto_kick, raid_lockdown, raid_duration_seconds
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id) DO UPDATE SET
			security_log_channel = excluded.security_log_channel,
			anti_spam_enabled = excluded.anti_spam_enabled,
			link_filter_enabled = excluded.link_filter_enabled,
			word_filter_enabled = excluded.word_filter_enabled,
			mention_spam_enabled = excluded.mention_spam_enabled,
			mention_max = excluded.mention_max,
			mute_at = excluded.mute_at,
			kick_at = excluded.kick_at,
			ban_at = excluded.ban_at,
			mute_minutes = excluded.mute_minutes,
			raid_enabled = excluded.raid_enabled,
			raid_joins = excluded.raid_joins,
			raid_window_seconds = excluded.raid_window_seconds,
			verify_enabled = excluded.verify_enabled,
			verify_timeout_seconds = excluded.verify_timeout_seconds,
			raid_auto_kick = excluded.raid_auto_kick,
			raid_lockdown = excluded.raid_lockdown,
			raid_duration_seconds = excluded.raid_duration_seconds
	`,
		settings.GuildID,
		settings.SecurityLogChannel,
		boolToInt(settings.AntiSpamEnabled),
		boolToInt(settings.LinkFilterEnabled),
		boolToInt(settings.WordFilterEnabled),
		boolToInt(settings.MentionSpamEnabled),
		settings.MentionMax,
		settings.MuteAt,
		settings.KickAt,
		settings.BanAt,
		settings.MuteMinutes,
		boolToInt(settings.RaidEnabled),
		settings.RaidJoins,
		settings.RaidWindowSeconds,
		boolToInt(settings.VerifyEnabled),
		settings.VerifyTimeoutSeconds,
		boolToInt(settings.RaidAutoKick),
		boolToInt(settings.RaidLockdown),
		settings.RaidDurationSeconds,
	)
	return err
}

func (s *Store) AddAuditLog(ctx context.Context, log AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (guild_id, user_id, level, event, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, log.GuildID, log.UserID, log.Level, log.Event, log.Details, log.CreatedAt.Unix())
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, guild_id, user_id, level, event, details, created_at
		FROM audit_logs
		WHERE guild_id = ? AND created_at >= ?
		ORDER BY created_at DESC
	`, guildID, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []AuditLog
	for rows.Next() {
		var log AuditLog
		var created int64
		if err := rows.Scan(&log.ID, &log.GuildID, &log.UserID, &log.Level, &log.Event, &log.Details, &created); err != nil {
			return nil, err
		}
		log.CreatedAt = time.Unix(created, 0)
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

func (s *Store) CleanupAuditLogs(ctx context.Context, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	_, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < ?`, cutoff.Unix())
	return err
}

func (s *Store) AddDomainAllow(ctx context.Context, guildID, domain string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO domain_allowlist (guild_id, domain) VALUES (?, ?)`, guildID, strings.ToLower(domain))
	return err
}

func (s *Store) RemoveDomainAllow(ctx context.Context, guildID, domain string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM domain_allowlist WHERE guild_id = ? AND domain = ?`, guildID, strings.ToLower(domain))
	return err
}

func (s *Store) ListDomainAllow(ctx context.Context, guildID string) ([]string, error) {
	return s.listStrings(ctx, `SELECT domain FROM domain_allowlist WHERE guild_id = ? ORDER BY domain`, guildID)
}

func (s *Store) AddDomainBlock(ctx context.Context, guildID, domain string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO domain_blocklist (guild_id, domain) VALUES (?, ?)`, guildID, strings.ToLower(domain))
	return err
}

func (s *Store) RemoveDomainBlock(ctx context.Context, guildID, domain string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM domain_blocklist WHERE guild_id = ? AND domain = ?`, guildID, strings.ToLower(domain))
	return err
}

func (s *Store) ListDomainBlock(ctx context.Context, guildID string) ([]string, error) {
	return s.listStrings(ctx, `SELECT domain FROM domain_blocklist WHERE guild_id = ? ORDER BY domain`, guildID)
}

func (s *Store) AddBlockedWord(ctx context.Context, guildID, word string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO blocked_words (guild_id, word) VALUES (?, ?)`, guildID, strings.ToLower(word))
	return err
}

func (s *Store) RemoveBlockedWord(ctx context.Context, guildID, word string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blocked_words WHERE guild_id = ? AND word = ?`, guildID, strings.ToLower(word))
	return err
}

func (s *Store) ListBlockedWords(ctx context.Context, guildID string) ([]string, error) {
	return s.listStrings(ctx, `SELECT word FROM blocked_words WHERE guild_id = ? ORDER BY word`, guildID)
}

func (s *Store) listStrings(ctx context.Context, query, guildID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, rows.Err()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isIgnorableMigrationError(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "duplicate column name") || strings.Contains(message, "already exists")
}
