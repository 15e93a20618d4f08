package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/obligolabs/obligo/internal/types"
)

// AppendProof records one piece of verification evidence. The proofs table
// is append-only; schema triggers reject UPDATE and DELETE outright.
func (s *Store) AppendProof(ctx context.Context, p *types.Proof, actor string) error {
	if !p.Type.IsValid() {
		return fmt.Errorf("invalid proof type: %s", p.Type)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("begin append proof", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO proofs (obligation_id, type, source_ref, created_at)
		VALUES (?, ?, ?, ?)`,
		p.ObligationID, string(p.Type), p.SourceRef, p.CreatedAt)
	if err != nil {
		return wrapDBError(fmt.Sprintf("append proof for %s", p.ObligationID), err)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return wrapDBError("proof insert id", err)
	}

	if err := appendEvent(ctx, tx, p.ObligationID, types.EventProofAttached, actor,
		nil, strPtr(string(p.Type)), strPtr(p.SourceRef)); err != nil {
		return err
	}

	return wrapDBError("commit append proof", tx.Commit())
}

// GetProofs returns every proof for one obligation, oldest first.
func (s *Store) GetProofs(ctx context.Context, obligationID string) ([]*types.Proof, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, obligation_id, type, source_ref, created_at
		FROM proofs WHERE obligation_id = ? ORDER BY id ASC`, obligationID)
	if err != nil {
		return nil, wrapDBError("get proofs", err)
	}
	defer rows.Close()

	var out []*types.Proof
	for rows.Next() {
		var p types.Proof
		if err := rows.Scan(&p.ID, &p.ObligationID, &p.Type, &p.SourceRef, &p.CreatedAt); err != nil {
			return nil, wrapDBError("scan proof", err)
		}
		out = append(out, &p)
	}
	return out, wrapDBError("get proofs", rows.Err())
}

// HasProof reports whether at least one proof exists for the obligation.
func (s *Store) HasProof(ctx context.Context, obligationID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM proofs WHERE obligation_id = ?", obligationID).Scan(&n)
	if err != nil {
		return false, wrapDBError("has proof", err)
	}
	return n > 0, nil
}

// GetProvenObligationIDs returns the set of a user's obligation IDs that
// have at least one proof attached. One query instead of N for the
// detector's per-user sweep.
func (s *Store) GetProvenObligationIDs(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT p.obligation_id
		FROM proofs p
		JOIN obligations o ON o.id = p.obligation_id
		WHERE o.user_id = ?`, userID)
	if err != nil {
		return nil, wrapDBError("get proven obligation ids", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("scan proven id", err)
		}
		out[id] = true
	}
	return out, wrapDBError("get proven obligation ids", rows.Err())
}
