package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/obligolabs/obligo/internal/types"
)

// AppendOverride records one human decision to ignore a specific blocker.
// Append-only: a blocker overridden twice produces two records, and both
// are kept. Schema triggers reject UPDATE and DELETE.
func (s *Store) AppendOverride(ctx context.Context, o *types.Override, actor string) error {
	if o.Reason == "" {
		return fmt.Errorf("override reason is required")
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("begin append override", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO overrides (obligation_id, overridden_dependency_id, user_reason, created_at)
		VALUES (?, ?, ?, ?)`,
		o.ObligationID, o.DependencyID, o.Reason, o.CreatedAt)
	if err != nil {
		return wrapDBError(fmt.Sprintf("append override for %s", o.ObligationID), err)
	}
	o.ID, err = res.LastInsertId()
	if err != nil {
		return wrapDBError("override insert id", err)
	}

	if err := appendEvent(ctx, tx, o.ObligationID, types.EventOverrideRecorded, actor,
		strPtr(o.DependencyID), nil, strPtr(o.Reason)); err != nil {
		return err
	}

	return wrapDBError("commit append override", tx.Commit())
}

// GetOverrides returns every override recorded for one obligation, oldest
// first.
func (s *Store) GetOverrides(ctx context.Context, obligationID string) ([]*types.Override, error) {
	return s.queryOverrides(ctx, `
		SELECT id, obligation_id, overridden_dependency_id, user_reason, created_at
		FROM overrides WHERE obligation_id = ? ORDER BY id ASC`, obligationID)
}

// GetOverridesForUser returns every override across a user's obligations.
func (s *Store) GetOverridesForUser(ctx context.Context, userID string) ([]*types.Override, error) {
	return s.queryOverrides(ctx, `
		SELECT ov.id, ov.obligation_id, ov.overridden_dependency_id, ov.user_reason, ov.created_at
		FROM overrides ov
		JOIN obligations o ON o.id = ov.obligation_id
		WHERE o.user_id = ? ORDER BY ov.id ASC`, userID)
}

// IsOverridden reports whether an override exists for the exact
// (obligation, dependency) pair.
func (s *Store) IsOverridden(ctx context.Context, obligationID, dependencyID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM overrides
		WHERE obligation_id = ? AND overridden_dependency_id = ?`,
		obligationID, dependencyID).Scan(&n)
	if err != nil {
		return false, wrapDBError("is overridden", err)
	}
	return n > 0, nil
}

func (s *Store) queryOverrides(ctx context.Context, query string, args ...interface{}) ([]*types.Override, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("get overrides", err)
	}
	defer rows.Close()

	var out []*types.Override
	for rows.Next() {
		var o types.Override
		if err := rows.Scan(&o.ID, &o.ObligationID, &o.DependencyID, &o.Reason, &o.CreatedAt); err != nil {
			return nil, wrapDBError("scan override", err)
		}
		out = append(out, &o)
	}
	return out, wrapDBError("get overrides", rows.Err())
}
