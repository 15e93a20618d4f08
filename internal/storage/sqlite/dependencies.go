package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/obligolabs/obligo/internal/storage"
	"github.com/obligolabs/obligo/internal/types"
)

// AddDependency records one edge between two obligations.
func (s *Store) AddDependency(ctx context.Context, dep *types.Dependency, actor string) error {
	if !dep.Type.IsValid() {
		return fmt.Errorf("invalid dependency type: %s", dep.Type)
	}
	if dep.ObligationID == dep.DependsOnID {
		return fmt.Errorf("obligation cannot depend on itself")
	}
	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dependencies (obligation_id, depends_on_id, type, created_at, created_by)
		VALUES (?, ?, ?, ?, ?)`,
		dep.ObligationID, dep.DependsOnID, string(dep.Type), dep.CreatedAt, actor)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") ||
			strings.Contains(err.Error(), "PRIMARY KEY") {
			return fmt.Errorf("add dependency %s -> %s: %w",
				dep.ObligationID, dep.DependsOnID, storage.ErrConflict)
		}
		return wrapDBError("add dependency", err)
	}
	return nil
}

// EnsureDependencies inserts the given edges, skipping any that already
// exist, and returns the number actually created. Used by the resolver to
// materialize edges implied by the type-level prerequisite map.
func (s *Store) EnsureDependencies(ctx context.Context, deps []*types.Dependency) (int, error) {
	if len(deps) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapDBError("begin ensure dependencies", err)
	}
	defer tx.Rollback()

	created := 0
	for _, dep := range deps {
		if dep.ObligationID == dep.DependsOnID {
			continue
		}
		at := dep.CreatedAt
		if at.IsZero() {
			at = time.Now().UTC()
		}
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO dependencies (obligation_id, depends_on_id, type, created_at, created_by)
			VALUES (?, ?, ?, ?, ?)`,
			dep.ObligationID, dep.DependsOnID, string(dep.Type), at, dep.CreatedBy)
		if err != nil {
			return 0, wrapDBError("ensure dependency", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, wrapDBError("commit ensure dependencies", err)
	}
	return created, nil
}

// GetDependenciesForUser returns every edge whose endpoints both belong to
// the user. One query feeds the resolver's in-memory graph.
func (s *Store) GetDependenciesForUser(ctx context.Context, userID string) ([]*types.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.obligation_id, d.depends_on_id, d.type, d.created_at, d.created_by
		FROM dependencies d
		JOIN obligations o ON o.id = d.obligation_id
		WHERE o.user_id = ?
		ORDER BY d.created_at ASC`, userID)
	if err != nil {
		return nil, wrapDBError("get dependencies", err)
	}
	defer rows.Close()

	var out []*types.Dependency
	for rows.Next() {
		var d types.Dependency
		if err := rows.Scan(&d.ObligationID, &d.DependsOnID, &d.Type, &d.CreatedAt, &d.CreatedBy); err != nil {
			return nil, wrapDBError("scan dependency", err)
		}
		out = append(out, &d)
	}
	return out, wrapDBError("get dependencies", rows.Err())
}
