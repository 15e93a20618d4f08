// Package engine is the facade over the obligation lifecycle: declaring
// obligations, requesting transitions, attaching proof, recording
// overrides, and running the stuck sweep.
//
// Serving layers (the CLI today) talk to this package only. The engine
// owns the composition of guard, resolver, and detector over one store and
// guarantees their shared invariants: gating state is derived fresh per
// request, ledgers are append-only, and every state change lands in the
// audit trail.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/obligolabs/obligo/internal/debug"
	"github.com/obligolabs/obligo/internal/guard"
	"github.com/obligolabs/obligo/internal/idgen"
	"github.com/obligolabs/obligo/internal/resolver"
	"github.com/obligolabs/obligo/internal/rules"
	"github.com/obligolabs/obligo/internal/storage"
	"github.com/obligolabs/obligo/internal/stuck"
	"github.com/obligolabs/obligo/internal/telemetry"
	"github.com/obligolabs/obligo/internal/types"
)

// Engine coordinates all obligation operations over one store.
type Engine struct {
	store    storage.Storage
	guard    *guard.Guard
	resolver *resolver.Resolver
	detector *stuck.Detector
	now      func() time.Time

	transitions metric.Int64Counter
	rejections  metric.Int64Counter
}

// New creates an engine. The static rule tables are validated here so a
// bad prerequisite map fails startup instead of the first evaluation.
func New(store storage.Storage) (*Engine, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("rule table validation: %w", err)
	}
	meter := telemetry.Meter("")
	transitions, _ := meter.Int64Counter("obligo.transitions")
	rejections, _ := meter.Int64Counter("obligo.transition_rejections")
	return &Engine{
		store:       store,
		guard:       guard.New(store),
		resolver:    resolver.New(store),
		detector:    stuck.New(store),
		now:         time.Now,
		transitions: transitions,
		rejections:  rejections,
	}, nil
}

// Store exposes the underlying storage for read-only display queries.
func (e *Engine) Store() storage.Storage {
	return e.store
}

// Detector exposes the stuck detector for configuration (staleness window).
func (e *Engine) Detector() *stuck.Detector {
	return e.detector
}

// DeclareRequest carries the inputs for declaring a new obligation.
type DeclareRequest struct {
	UserID      string
	Type        types.ObligationType
	Title       string
	Notes       string
	Institution string
	Deadline    *time.Time
	Source      string
	SourceRef   string
	// ProofRequired overrides the per-type default when set.
	ProofRequired *bool
	// Supersedes links the new obligation to a failed one it replaces.
	Supersedes string
	Actor      string
}

// Declare creates an obligation, materializes its implied dependency
// edges, and settles its initial status: pending, or blocked when
// unverified prerequisites already exist.
func (e *Engine) Declare(ctx context.Context, req DeclareRequest) (*types.Obligation, error) {
	if !req.Type.IsValid() {
		return nil, fmt.Errorf("unknown obligation type: %s", req.Type)
	}

	proofRequired := req.Type.ProofRequiredByDefault()
	if req.ProofRequired != nil {
		proofRequired = *req.ProofRequired
	}

	o := &types.Obligation{
		UserID:        req.UserID,
		Type:          req.Type,
		Title:         req.Title,
		Notes:         req.Notes,
		Institution:   req.Institution,
		Deadline:      req.Deadline,
		ProofRequired: proofRequired,
		Source:        req.Source,
		SourceRef:     req.SourceRef,
	}
	o.SetDefaults()

	if req.Supersedes != "" {
		prev, err := e.store.GetObligation(ctx, req.Supersedes)
		if err != nil {
			return nil, fmt.Errorf("supersedes target: %w", err)
		}
		if prev.Status != types.StatusFailed {
			return nil, fmt.Errorf("supersedes target %s is %s, only failed obligations can be superseded",
				prev.ID, prev.Status)
		}
		if prev.UserID != req.UserID {
			return nil, fmt.Errorf("supersedes target %s belongs to a different user", prev.ID)
		}
	}

	// Hash ID with collision retry.
	created := false
	for nonce := 0; nonce < 5; nonce++ {
		o.ID = idgen.GenerateID(req.UserID, string(req.Type), req.Title, e.now(), nonce)
		err := e.store.CreateObligation(ctx, o, req.Actor)
		if err == nil {
			created = true
			break
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, err
		}
		debug.Logf("id collision on %s, retrying\n", o.ID)
	}
	if !created {
		return nil, fmt.Errorf("could not generate a unique obligation id")
	}

	if req.Supersedes != "" {
		dep := &types.Dependency{
			ObligationID: o.ID,
			DependsOnID:  req.Supersedes,
			Type:         types.DepSupersedes,
		}
		if err := e.store.AddDependency(ctx, dep, req.Actor); err != nil {
			return nil, fmt.Errorf("record supersedes edge: %w", err)
		}
	}

	snap, err := e.resolver.Load(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if _, err := e.resolver.MaterializeEdges(ctx, snap, req.Actor); err != nil {
		return nil, fmt.Errorf("materialize dependency edges: %w", err)
	}

	// Reload so the fresh edges feed the initial evaluation.
	state, _, err := e.resolver.Evaluate(ctx, req.UserID, o.ID)
	if err != nil {
		return nil, err
	}
	if state.IsBlocked {
		if err := e.store.UpdateObligationStatus(ctx, o.ID, types.StatusPending, types.StatusBlocked, req.Actor); err != nil {
			return nil, fmt.Errorf("settle initial blocked status: %w", err)
		}
	}

	return e.store.GetObligation(ctx, o.ID)
}

// RequestTransition validates and commits a status change through the
// guard. A successful transition to verified triggers propagation:
// dependents blocked solely on this obligation move back to pending.
func (e *Engine) RequestTransition(ctx context.Context, userID, obligationID string, target types.Status, actor string) (*types.Obligation, error) {
	res, err := e.guard.RequestTransition(ctx, userID, obligationID, target, actor)
	if err != nil {
		e.rejections.Add(ctx, 1, metric.WithAttributes(
			attribute.String("target", string(target))))
		return nil, err
	}
	e.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target", string(target))))

	if target == types.StatusVerified {
		if err := e.propagate(ctx, userID, res.Obligation, actor); err != nil {
			// The transition itself committed; propagation failure must not
			// mask that. Surface it wrapped so callers can tell the phases apart.
			return res.Obligation, fmt.Errorf("verified, but propagation failed: %w", err)
		}
	}
	return res.Obligation, nil
}

// propagate lifts blocks on dependents of a newly verified obligation.
// Only obligations whose type is a propagation target of the verified type
// are considered, and only when re-evaluation shows no remaining blockers.
func (e *Engine) propagate(ctx context.Context, userID string, verified *types.Obligation, actor string) error {
	targets := rules.PropagationTargets(verified.Type)
	targetSet := make(map[types.ObligationType]bool, len(targets))
	for _, t := range targets {
		targetSet[t] = true
	}

	snap, err := e.resolver.Load(ctx, userID)
	if err != nil {
		return err
	}

	candidates := make(map[string]bool)
	for _, depID := range snap.Dependents(verified.ID) {
		candidates[depID] = true
	}
	// Type-level propagation also reaches dependents that gate through the
	// prerequisite map without an explicit stored edge.
	for _, o := range snap.Obligations {
		if targetSet[o.Type] {
			candidates[o.ID] = true
		}
	}

	for id := range candidates {
		o, ok := snap.Get(id)
		if !ok || o.Status != types.StatusBlocked {
			continue
		}
		state := snap.Evaluate(o)
		if state.IsBlocked {
			continue
		}
		if err := e.store.UnblockObligation(ctx, o.ID, verified.ID, actor); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				continue // moved concurrently; nothing to lift
			}
			return err
		}
		debug.Logf("propagation: %s unblocked by %s\n", o.ID, verified.ID)
	}
	return nil
}

// AppendProof attaches verification evidence to an obligation. Proof can
// be attached at any point before the obligation reaches a terminal state.
func (e *Engine) AppendProof(ctx context.Context, userID, obligationID string, proofType types.ProofType, sourceRef, actor string) (*types.Proof, error) {
	o, err := e.store.GetObligation(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, fmt.Errorf("obligation %s: %w", obligationID, storage.ErrNotFound)
	}
	if o.Status == types.StatusFailed {
		return nil, fmt.Errorf("obligation %s is failed; proof would be unverifiable", obligationID)
	}

	p := &types.Proof{
		ObligationID: obligationID,
		Type:         proofType,
		SourceRef:    sourceRef,
	}
	if err := e.store.AppendProof(ctx, p, actor); err != nil {
		return nil, err
	}
	return p, nil
}

// RecordOverride appends an override for one (obligation, dependency)
// pair. The dependency must be a current gating dep of the obligation;
// overriding an edge that does not block anything is a caller mistake
// worth rejecting loudly.
func (e *Engine) RecordOverride(ctx context.Context, userID, obligationID, dependencyID, reason, actor string) (*types.Override, error) {
	if reason == "" {
		return nil, fmt.Errorf("an override requires a reason")
	}

	state, snap, err := e.resolver.Evaluate(ctx, userID, obligationID)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.Get(dependencyID); !ok {
		return nil, fmt.Errorf("dependency %s: %w", dependencyID, storage.ErrNotFound)
	}

	isBlocker := false
	for _, b := range state.Blockers {
		if b.ObligationID == dependencyID {
			isBlocker = true
			break
		}
	}
	if !isBlocker {
		for _, od := range state.OverriddenDeps {
			if od.ObligationID == dependencyID {
				// Already overridden. Append-only means a second record is
				// legal; the caller may be re-affirming after a new blocker
				// appearance.
				isBlocker = true
				break
			}
		}
	}
	if !isBlocker {
		return nil, fmt.Errorf("%s does not currently block %s", dependencyID, obligationID)
	}

	ov := &types.Override{
		ObligationID: obligationID,
		DependencyID: dependencyID,
		Reason:       reason,
	}
	if err := e.store.AppendOverride(ctx, ov, actor); err != nil {
		return nil, err
	}

	// An override may have just removed the last blocker; settle the
	// stored blocked status if so.
	o, _ := snap.Get(obligationID)
	if o.Status == types.StatusBlocked {
		fresh, _, err := e.resolver.Evaluate(ctx, userID, obligationID)
		if err == nil && !fresh.IsBlocked {
			if err := e.store.UnblockObligation(ctx, obligationID, dependencyID, actor); err != nil &&
				!errors.Is(err, storage.ErrConflict) {
				return nil, err
			}
		}
	}

	return ov, nil
}

// EvaluateDependencies returns dependency state for every obligation of
// the user, derived fresh from the ledgers.
func (e *Engine) EvaluateDependencies(ctx context.Context, userID string) ([]types.DependencyState, error) {
	snap, err := e.resolver.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return snap.EvaluateAll(), nil
}

// EvaluateObligation returns dependency state for one obligation.
func (e *Engine) EvaluateObligation(ctx context.Context, userID, obligationID string) (types.DependencyState, error) {
	state, _, err := e.resolver.Evaluate(ctx, userID, obligationID)
	return state, err
}

// DetectStuck runs the stuck sweep for one user and returns the report.
func (e *Engine) DetectStuck(ctx context.Context, userID, actor string) ([]types.StuckInfo, error) {
	return e.detector.Detect(ctx, userID, actor)
}

// SweepAll runs the stuck sweep for many users concurrently, bounded to
// avoid saturating the store's write path.
func (e *Engine) SweepAll(ctx context.Context, userIDs []string, actor string) (map[string][]types.StuckInfo, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	results := make([]struct {
		userID string
		infos  []types.StuckInfo
	}, len(userIDs))

	for i, userID := range userIDs {
		g.Go(func() error {
			infos, err := e.detector.Detect(ctx, userID, actor)
			if err != nil {
				return fmt.Errorf("sweep %s: %w", userID, err)
			}
			results[i].userID = userID
			results[i].infos = infos
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]types.StuckInfo, len(userIDs))
	for _, r := range results {
		out[r.userID] = r.infos
	}
	return out, nil
}

// Get fetches one obligation scoped to the user.
func (e *Engine) Get(ctx context.Context, userID, obligationID string) (*types.Obligation, error) {
	o, err := e.store.GetObligation(ctx, obligationID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, fmt.Errorf("obligation %s: %w", obligationID, storage.ErrNotFound)
	}
	return o, nil
}

// List returns the user's obligations through the filter.
func (e *Engine) List(ctx context.Context, filter types.ObligationFilter) ([]*types.Obligation, error) {
	return e.store.ListObligations(ctx, filter)
}

// Statistics returns aggregate counts for the user.
func (e *Engine) Statistics(ctx context.Context, userID string) (*types.Statistics, error) {
	return e.store.GetStatistics(ctx, userID)
}
