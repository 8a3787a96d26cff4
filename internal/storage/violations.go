package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// UserViolation is the durable copy of a per-user violation count. The
// detectors own the authoritative in-memory counter; this row is written as a
// best-effort side effect so history survives restarts.
type UserViolation struct {
	GuildID    string
	UserID     string
	CountTotal int
	LastKind   string
	LastAction string
	LastAt     time.Time
}

func (s *Store) SaveViolation(ctx context.Context, violation UserViolation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_violations (guild_id, user_id, count_total, last_kind, last_action, last_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			count_total = excluded.count_total,
			last_kind = excluded.last_kind,
			last_action = excluded.last_action,
			last_at = excluded.last_at
	`, violation.GuildID, violation.UserID, violation.CountTotal, violation.LastKind, violation.LastAction, violation.LastAt.Unix())
	return err
}

func (s *Store) GetViolation(ctx context.Context, guildID, userID string) (UserViolation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT guild_id, user_id, count_total, last_kind, last_action, last_at
		FROM user_violations
		WHERE guild_id = ? AND user_id = ?
	`, guildID, userID)

	var violation UserViolation
	var lastAt int64
	err := row.Scan(&violation.GuildID, &violation.UserID, &violation.CountTotal, &violation.LastKind, &violation.LastAction, &lastAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserViolation{GuildID: guildID, UserID: userID}, nil
		}
		return UserViolation{}, err
	}
	violation.LastAt = time.Unix(lastAt, 0)
	return violation, nil
}

func (s *Store) ResetViolation(ctx context.Context, guildID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_violations WHERE guild_id = ? AND user_id = ?`, guildID, userID)
	return err
}
