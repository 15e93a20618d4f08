// Package storage provides shared types for obligation storage.
//
// The concrete implementation lives in the sqlite sub-package. This
// package holds the interface and value types referenced by both the
// implementation and its consumers (internal/engine, cmd/obl).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/obligolabs/obligo/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional status update finds the row
// in a different status than the caller read. The caller must re-read and
// re-evaluate; committing anyway would be a lost update.
var ErrConflict = errors.New("status conflict")

// ErrIllegalTransition is returned when the storage-level constraint
// rejects a transition the guard allowed. The storage check is
// authoritative; this error indicates the two layers have drifted out of
// sync and must surface as a hard failure, never be swallowed.
var ErrIllegalTransition = errors.New("illegal transition rejected by storage constraint")

// ErrNotInitialized is returned when the database has not been initialized.
var ErrNotInitialized = errors.New("database not initialized")

// StuckUpdate carries the detector's advisory cache write for one
// obligation row.
type StuckUpdate struct {
	Stuck          bool
	StuckReason    types.StuckReason
	StuckSince     *time.Time
	Severity       types.Severity
	SeverityReason string
	SeveritySince  *time.Time
	// MarkFailed transitions a non-terminal row to failed when its
	// deadline has passed unresolved. Applied with the same terminality
	// checks as any transition.
	MarkFailed bool
}

// Storage is the interface satisfied by *sqlite.Store.
// Consumers depend on this interface rather than on the concrete type so
// that alternative implementations (mocks, proxies) can be substituted.
type Storage interface {
	// Obligations
	CreateObligation(ctx context.Context, o *types.Obligation, actor string) error
	GetObligation(ctx context.Context, id string) (*types.Obligation, error)
	ListObligations(ctx context.Context, filter types.ObligationFilter) ([]*types.Obligation, error)

	// UpdateObligationStatus performs the atomic conditional status write:
	// the UPDATE is keyed on the status the guard read, and zero affected
	// rows yields ErrConflict so check-then-write is never lost.
	UpdateObligationStatus(ctx context.Context, id string, from, to types.Status, actor string) error

	// UpdateStuckCache persists the detector's advisory output.
	UpdateStuckCache(ctx context.Context, id string, update StuckUpdate, actor string) error

	// UnblockObligation moves a blocked obligation back to pending as a
	// propagation side effect, recording a propagation event rather than a
	// plain status change. ErrConflict if the row is not blocked.
	UnblockObligation(ctx context.Context, id, triggeredBy, actor string) error

	// Proof ledger (append-only)
	AppendProof(ctx context.Context, p *types.Proof, actor string) error
	GetProofs(ctx context.Context, obligationID string) ([]*types.Proof, error)
	HasProof(ctx context.Context, obligationID string) (bool, error)
	GetProvenObligationIDs(ctx context.Context, userID string) (map[string]bool, error)

	// Override ledger (append-only)
	AppendOverride(ctx context.Context, o *types.Override, actor string) error
	GetOverrides(ctx context.Context, obligationID string) ([]*types.Override, error)
	GetOverridesForUser(ctx context.Context, userID string) ([]*types.Override, error)
	IsOverridden(ctx context.Context, obligationID, dependencyID string) (bool, error)

	// Dependency edges
	AddDependency(ctx context.Context, dep *types.Dependency, actor string) error
	EnsureDependencies(ctx context.Context, deps []*types.Dependency) (int, error)
	GetDependenciesForUser(ctx context.Context, userID string) ([]*types.Dependency, error)

	// Audit trail
	GetEvents(ctx context.Context, obligationID string, limit int) ([]*types.Event, error)

	// Statistics
	GetStatistics(ctx context.Context, userID string) (*types.Statistics, error)

	// Configuration
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)

	// Lifecycle
	Close() error
}
