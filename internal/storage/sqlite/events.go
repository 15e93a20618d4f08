package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/obligolabs/obligo/internal/types"
)

// GetEvents returns the audit trail for one obligation, newest first.
// limit <= 0 means no limit.
func (s *Store) GetEvents(ctx context.Context, obligationID string, limit int) ([]*types.Event, error) {
	query := `
		SELECT id, obligation_id, event_type, actor, old_value, new_value, comment, created_at
		FROM events WHERE obligation_id = ? ORDER BY id DESC`
	args := []interface{}{obligationID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("get events", err)
	}
	defer rows.Close()

	var out []*types.Event
	for rows.Next() {
		var e types.Event
		if err := rows.Scan(&e.ID, &e.ObligationID, &e.EventType, &e.Actor,
			&e.OldValue, &e.NewValue, &e.Comment, &e.CreatedAt); err != nil {
			return nil, wrapDBError("scan event", err)
		}
		out = append(out, &e)
	}
	return out, wrapDBError("get events", rows.Err())
}

// GetStatistics computes aggregate counts for one user's obligations.
func (s *Store) GetStatistics(ctx context.Context, userID string) (*types.Statistics, error) {
	stats := &types.Statistics{
		SeverityCounts: make(map[types.Severity]int),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, severity, stuck, COUNT(*)
		FROM obligations WHERE user_id = ?
		GROUP BY status, severity, stuck`, userID)
	if err != nil {
		return nil, wrapDBError("get statistics", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status types.Status
		var severity types.Severity
		var stuck bool
		var count int
		if err := rows.Scan(&status, &severity, &stuck, &count); err != nil {
			return nil, wrapDBError("scan statistics", err)
		}
		stats.Total += count
		switch status {
		case types.StatusPending:
			stats.Pending += count
		case types.StatusSubmitted:
			stats.Submitted += count
		case types.StatusVerified:
			stats.Verified += count
		case types.StatusBlocked:
			stats.Blocked += count
		case types.StatusFailed:
			stats.Failed += count
		}
		if stuck {
			stats.Stuck += count
		}
		stats.SeverityCounts[severity] += count
	}
	return stats, wrapDBError("get statistics", rows.Err())
}

// SetConfig stores an engine setting.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return wrapDBError("set config", err)
}

// GetConfig fetches an engine setting. Returns "" (no error) when unset.
func (s *Store) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", wrapDBError("get config", err)
	}
	return value, nil
}
