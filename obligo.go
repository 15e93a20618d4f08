// Package obligo provides a minimal public API for embedding the
// obligation engine in other Go programs.
//
// The obl CLI is the primary interface; this package exports only the
// essential types and the entry point needed to drive the engine
// programmatically.
package obligo

import (
	"context"

	"github.com/obligolabs/obligo/internal/engine"
	"github.com/obligolabs/obligo/internal/storage"
	"github.com/obligolabs/obligo/internal/storage/sqlite"
	"github.com/obligolabs/obligo/internal/types"
)

// Core types for working with obligations
type (
	Obligation      = types.Obligation
	ObligationType  = types.ObligationType
	Status          = types.Status
	Proof           = types.Proof
	Override        = types.Override
	DependencyState = types.DependencyState
	StuckInfo       = types.StuckInfo
	Severity        = types.Severity
	Escalation      = types.Escalation
)

// Status constants
const (
	StatusPending   = types.StatusPending
	StatusSubmitted = types.StatusSubmitted
	StatusVerified  = types.StatusVerified
	StatusBlocked   = types.StatusBlocked
	StatusFailed    = types.StatusFailed
)

// Engine is the facade over all obligation operations.
type Engine = engine.Engine

// DeclareRequest carries the inputs for Engine.Declare.
type DeclareRequest = engine.DeclareRequest

// Storage is the persistence interface the engine runs on.
type Storage = storage.Storage

// Open opens (creating if needed) an obligo SQLite database and returns
// an engine over it. Close the storage when done.
func Open(ctx context.Context, dbPath string) (*Engine, Storage, error) {
	store, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.New(store)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return eng, store, nil
}
