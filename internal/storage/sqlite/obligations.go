package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/obligolabs/obligo/internal/storage"
	"github.com/obligolabs/obligo/internal/types"
)

const obligationColumns = `
	id, user_id, type, title, notes, institution, deadline, status,
	proof_required, source, source_ref,
	created_at, updated_at, status_changed_at, submitted_at, verified_at, failed_at,
	stuck, stuck_reason, stuck_since, severity, severity_reason, severity_since`

// CreateObligation inserts a new obligation and records the creation event.
func (s *Store) CreateObligation(ctx context.Context, o *types.Obligation, actor string) error {
	o.SetDefaults()
	if err := o.Validate(); err != nil {
		return fmt.Errorf("invalid obligation: %w", err)
	}

	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	if o.StatusChangedAt.IsZero() {
		o.StatusChangedAt = now
	}
	if o.Severity == "" {
		o.Severity = types.SeverityNormal
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("begin create obligation", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO obligations (
			id, user_id, type, title, notes, institution, deadline, status,
			proof_required, source, source_ref,
			created_at, updated_at, status_changed_at, submitted_at, verified_at, failed_at,
			stuck, stuck_reason, severity, severity_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, string(o.Type), o.Title, o.Notes, o.Institution,
		nullTime(o.Deadline), string(o.Status), o.ProofRequired, o.Source, o.SourceRef,
		o.CreatedAt, o.UpdatedAt, o.StatusChangedAt,
		nullTime(o.SubmittedAt), nullTime(o.VerifiedAt), nullTime(o.FailedAt),
		o.Stuck, string(o.StuckReason), string(o.Severity), o.SeverityReason)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("create obligation %s: %w", o.ID, storage.ErrConflict)
		}
		return wrapDBError(fmt.Sprintf("create obligation %s", o.ID), err)
	}

	if err := appendEvent(ctx, tx, o.ID, types.EventCreated, actor, nil, strPtr(string(o.Status)), nil); err != nil {
		return err
	}

	return wrapDBError("commit create obligation", tx.Commit())
}

// GetObligation fetches one obligation by ID.
func (s *Store) GetObligation(ctx context.Context, id string) (*types.Obligation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+obligationColumns+` FROM obligations WHERE id = ?`, id)
	o, err := scanObligation(row)
	if err != nil {
		return nil, wrapDBError(fmt.Sprintf("get obligation %s", id), err)
	}
	return o, nil
}

// ListObligations returns obligations matching the filter, ordered by
// deadline (nulls last) then creation time.
func (s *Store) ListObligations(ctx context.Context, filter types.ObligationFilter) ([]*types.Obligation, error) {
	var conds []string
	var args []interface{}

	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Type != nil {
		conds = append(conds, "type = ?")
		args = append(args, string(*filter.Type))
	}
	if filter.Institution != nil {
		conds = append(conds, "institution = ?")
		args = append(args, *filter.Institution)
	}

	query := `SELECT ` + obligationColumns + ` FROM obligations`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY deadline IS NULL, deadline ASC, created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("list obligations", err)
	}
	defer rows.Close()

	var out []*types.Obligation
	for rows.Next() {
		o, err := scanObligation(rows)
		if err != nil {
			return nil, wrapDBError("scan obligation", err)
		}
		out = append(out, o)
	}
	return out, wrapDBError("list obligations", rows.Err())
}

// UpdateObligationStatus commits a transition as a conditional write: the
// UPDATE is keyed on the status the caller read, so a concurrent transition
// between read and write yields storage.ErrConflict instead of a lost
// update. Timestamp side effects (submitted_at, verified_at, failed_at,
// status_changed_at) are applied in the same statement.
func (s *Store) UpdateObligationStatus(ctx context.Context, id string, from, to types.Status, actor string) error {
	if !to.IsValid() {
		return fmt.Errorf("invalid target status: %s", to)
	}

	now := time.Now().UTC()
	sets := []string{
		"status = ?",
		"updated_at = ?",
		"status_changed_at = ?",
	}
	args := []interface{}{string(to), now, now}

	switch to {
	case types.StatusSubmitted:
		sets = append(sets, "submitted_at = ?")
		args = append(args, now)
	case types.StatusVerified:
		sets = append(sets, "verified_at = ?")
		args = append(args, now)
	case types.StatusFailed:
		sets = append(sets, "failed_at = ?")
		args = append(args, now)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("begin status update", err)
	}
	defer tx.Rollback()

	query := "UPDATE obligations SET " + strings.Join(sets, ", ") + " WHERE id = ? AND status = ?"
	args = append(args, id, string(from))

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapDBError(fmt.Sprintf("update status %s", id), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapDBError("rows affected", err)
	}
	if affected == 0 {
		// Distinguish a concurrent transition from a missing row.
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT 1 FROM obligations WHERE id = ?", id).Scan(&exists); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("update status %s: %w", id, storage.ErrNotFound)
			}
			return wrapDBError("check obligation exists", err)
		}
		return fmt.Errorf("update status %s: expected %s: %w", id, from, storage.ErrConflict)
	}

	if err := appendEvent(ctx, tx, id, types.EventStatusChanged, actor,
		strPtr(string(from)), strPtr(string(to)), nil); err != nil {
		return err
	}

	return wrapDBError("commit status update", tx.Commit())
}

// UnblockObligation moves a blocked obligation back to pending when the
// prerequisite that held it has verified. Propagation lifts blocks only;
// it never advances anything toward submitted or verified.
func (s *Store) UnblockObligation(ctx context.Context, id, triggeredBy, actor string) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("begin unblock", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE obligations SET status = 'pending', status_changed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'blocked'`, now, now, id)
	if err != nil {
		return wrapDBError(fmt.Sprintf("unblock %s", id), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unblock %s: not blocked: %w", id, storage.ErrConflict)
	}

	if err := appendEvent(ctx, tx, id, types.EventPropagationUnblocked, actor,
		strPtr(string(types.StatusBlocked)), strPtr(string(types.StatusPending)),
		strPtr("unblocked by verification of "+triggeredBy)); err != nil {
		return err
	}

	return wrapDBError("commit unblock", tx.Commit())
}

// UpdateStuckCache persists the detector's advisory output onto the row.
// When update.MarkFailed is set the row also transitions to failed, subject
// to the same terminality constraint as any transition.
func (s *Store) UpdateStuckCache(ctx context.Context, id string, update storage.StuckUpdate, actor string) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("begin stuck cache update", err)
	}
	defer tx.Rollback()

	var prevStatus string
	err = tx.QueryRowContext(ctx, "SELECT status FROM obligations WHERE id = ?", id).Scan(&prevStatus)
	if err != nil {
		return wrapDBError(fmt.Sprintf("stuck cache update %s", id), err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE obligations SET
			stuck = ?, stuck_reason = ?, stuck_since = ?,
			severity = ?, severity_reason = ?, severity_since = ?,
			updated_at = ?
		WHERE id = ?`,
		update.Stuck, string(update.StuckReason), nullTime(update.StuckSince),
		string(update.Severity), update.SeverityReason, nullTime(update.SeveritySince),
		now, id)
	if err != nil {
		return wrapDBError(fmt.Sprintf("stuck cache update %s", id), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("stuck cache update %s: %w", id, storage.ErrNotFound)
	}

	if update.Stuck {
		reason := string(update.StuckReason)
		if err := appendEvent(ctx, tx, id, types.EventStuckDetected, actor, nil, &reason, nil); err != nil {
			return err
		}
	}

	if update.MarkFailed && types.Status(prevStatus) != types.StatusFailed {
		res, err := tx.ExecContext(ctx, `
			UPDATE obligations SET
				status = 'failed', failed_at = ?, status_changed_at = ?, updated_at = ?
			WHERE id = ? AND status = ?`,
			now, now, now, id, prevStatus)
		if err != nil {
			return wrapDBError(fmt.Sprintf("auto-fail %s", id), err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("auto-fail %s: %w", id, storage.ErrConflict)
		}
		if err := appendEvent(ctx, tx, id, types.EventAutoFailed, actor,
			strPtr(prevStatus), strPtr(string(types.StatusFailed)),
			strPtr("deadline passed without resolution")); err != nil {
			return err
		}
	}

	return wrapDBError("commit stuck cache update", tx.Commit())
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanObligation(row rowScanner) (*types.Obligation, error) {
	var o types.Obligation
	var deadline, submittedAt, verifiedAt, failedAt, stuckSince, severitySince sql.NullTime

	err := row.Scan(
		&o.ID, &o.UserID, &o.Type, &o.Title, &o.Notes, &o.Institution,
		&deadline, &o.Status, &o.ProofRequired, &o.Source, &o.SourceRef,
		&o.CreatedAt, &o.UpdatedAt, &o.StatusChangedAt,
		&submittedAt, &verifiedAt, &failedAt,
		&o.Stuck, &o.StuckReason, &stuckSince,
		&o.Severity, &o.SeverityReason, &severitySince)
	if err != nil {
		return nil, err
	}

	o.Deadline = timePtr(deadline)
	o.SubmittedAt = timePtr(submittedAt)
	o.VerifiedAt = timePtr(verifiedAt)
	o.FailedAt = timePtr(failedAt)
	o.StuckSince = timePtr(stuckSince)
	o.SeveritySince = timePtr(severitySince)
	return &o, nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
