// Package resolver computes dependency state for obligations.
//
// The resolver answers one question per obligation: which direct
// prerequisites are unverified right now, and which of those has a human
// chosen to override. Its output is derived fresh on every evaluation and
// never cached across requests; the override ledger and obligation rows
// are the only persistent inputs.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/obligolabs/obligo/internal/rules"
	"github.com/obligolabs/obligo/internal/storage"
	"github.com/obligolabs/obligo/internal/types"
)

// Resolver evaluates prerequisite satisfaction over one user's obligations.
type Resolver struct {
	store storage.Storage
}

// New creates a resolver backed by the given store.
func New(store storage.Storage) *Resolver {
	return &Resolver{store: store}
}

// Snapshot is the loaded working set for one user: every obligation, edge,
// and override, fetched in three queries so evaluation runs in memory.
type Snapshot struct {
	UserID      string
	Obligations []*types.Obligation
	byID        map[string]*types.Obligation
	byType      map[types.ObligationType][]*types.Obligation
	edges       map[string][]string          // obligation -> gating depends_on IDs
	reverse     map[string][]string          // depends_on -> dependent IDs
	overridden  map[string]map[string]bool      // obligation -> dependency -> overridden
	overrideAt  map[string]map[string]time.Time // obligation -> dependency -> latest record
}

// Load fetches one user's obligations, dependency edges, and overrides.
func (r *Resolver) Load(ctx context.Context, userID string) (*Snapshot, error) {
	obligations, err := r.store.ListObligations(ctx, types.ObligationFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("load obligations: %w", err)
	}
	deps, err := r.store.GetDependenciesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load dependencies: %w", err)
	}
	overrides, err := r.store.GetOverridesForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}

	snap := &Snapshot{
		UserID:      userID,
		Obligations: obligations,
		byID:        make(map[string]*types.Obligation, len(obligations)),
		byType:      make(map[types.ObligationType][]*types.Obligation),
		edges:       make(map[string][]string),
		reverse:     make(map[string][]string),
		overridden:  make(map[string]map[string]bool),
		overrideAt:  make(map[string]map[string]time.Time),
	}
	for _, o := range obligations {
		snap.byID[o.ID] = o
		snap.byType[o.Type] = append(snap.byType[o.Type], o)
	}
	for _, d := range deps {
		if !d.Type.AffectsGating() {
			continue
		}
		snap.edges[d.ObligationID] = append(snap.edges[d.ObligationID], d.DependsOnID)
		snap.reverse[d.DependsOnID] = append(snap.reverse[d.DependsOnID], d.ObligationID)
	}
	for _, ov := range overrides {
		if snap.overridden[ov.ObligationID] == nil {
			snap.overridden[ov.ObligationID] = make(map[string]bool)
			snap.overrideAt[ov.ObligationID] = make(map[string]time.Time)
		}
		snap.overridden[ov.ObligationID][ov.DependencyID] = true
		// Overrides arrive oldest first; the last write wins, which is the
		// latest record for the pair.
		snap.overrideAt[ov.ObligationID][ov.DependencyID] = ov.CreatedAt
	}
	return snap, nil
}

// Get returns the obligation with the given ID from the snapshot.
func (s *Snapshot) Get(id string) (*types.Obligation, bool) {
	o, ok := s.byID[id]
	return o, ok
}

// Dependents returns the IDs of obligations that gate on the given one.
func (s *Snapshot) Dependents(id string) []string {
	return s.reverse[id]
}

// GatingDeps returns the IDs the given obligation gates on: explicit
// edges from the dependencies table plus edges implied by the type-level
// prerequisite map, resolved through institution scoping.
func (s *Snapshot) GatingDeps(o *types.Obligation) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if id != o.ID && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range s.edges[o.ID] {
		add(id)
	}
	for _, prereq := range s.prerequisitesFor(o) {
		add(prereq.ID)
	}
	return out
}

// prerequisitesFor resolves the type-level prerequisite map against the
// snapshot. Matching is institution-scoped with a global fallback: a
// prerequisite in the same institution wins; when none exists there,
// unscoped obligations of the required type stand in. A required type with
// no obligation at all does not block (the engine gates on declared
// obligations, not on a checklist).
func (s *Snapshot) prerequisitesFor(o *types.Obligation) []*types.Obligation {
	scopeHasEnrollmentDeposit := false
	for _, cand := range s.byType[types.TypeEnrollmentDeposit] {
		if cand.Institution == o.Institution {
			scopeHasEnrollmentDeposit = true
			break
		}
	}

	var out []*types.Obligation
	for _, reqType := range rules.RequiredTypes(o.Type, scopeHasEnrollmentDeposit) {
		candidates := s.byType[reqType]
		var scoped, global []*types.Obligation
		for _, cand := range candidates {
			if cand.ID == o.ID {
				continue
			}
			switch cand.Institution {
			case o.Institution:
				scoped = append(scoped, cand)
			case "":
				global = append(global, cand)
			}
		}
		if len(scoped) > 0 {
			out = append(out, scoped...)
		} else {
			out = append(out, global...)
		}
	}
	return out
}

// Evaluate computes the dependency state for one obligation within the
// snapshot. Blockers are direct prerequisites not yet verified; those with
// a recorded override move to OverriddenDeps instead and do not set
// IsBlocked.
func (s *Snapshot) Evaluate(o *types.Obligation) types.DependencyState {
	state := types.DependencyState{
		ObligationID:   o.ID,
		Type:           o.Type,
		Title:          o.Title,
		Status:         o.Status,
		Blockers:       []types.Blocker{},
		OverriddenDeps: []types.OverriddenDep{},
	}

	for _, depID := range s.GatingDeps(o) {
		dep, ok := s.byID[depID]
		if !ok {
			continue
		}
		if dep.Status == types.StatusVerified {
			continue
		}
		blocker := types.Blocker{
			ObligationID: dep.ID,
			Type:         dep.Type,
			Title:        dep.Title,
			Status:       dep.Status,
			Institution:  dep.Institution,
			Deadline:     dep.Deadline,
		}
		if s.overridden[o.ID][dep.ID] {
			state.OverriddenDeps = append(state.OverriddenDeps, types.OverriddenDep{
				Blocker:      blocker,
				OverriddenAt: s.overrideAt[o.ID][dep.ID],
			})
			continue
		}
		state.Blockers = append(state.Blockers, blocker)
	}

	state.IsBlocked = len(state.Blockers) > 0
	return state
}

// EvaluateAll computes dependency state for every obligation in the
// snapshot, ordered by deadline then ID for stable output.
func (s *Snapshot) EvaluateAll() []types.DependencyState {
	out := make([]types.DependencyState, 0, len(s.Obligations))
	for _, o := range s.Obligations {
		out = append(out, s.Evaluate(o))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ObligationID < out[j].ObligationID
	})
	return out
}

// Evaluate loads a fresh snapshot and computes dependency state for one
// obligation. Returns storage.ErrNotFound if the obligation does not
// belong to the user.
func (r *Resolver) Evaluate(ctx context.Context, userID, obligationID string) (types.DependencyState, *Snapshot, error) {
	snap, err := r.Load(ctx, userID)
	if err != nil {
		return types.DependencyState{}, nil, err
	}
	o, ok := snap.Get(obligationID)
	if !ok {
		return types.DependencyState{}, nil, fmt.Errorf("evaluate %s: %w", obligationID, storage.ErrNotFound)
	}
	return snap.Evaluate(o), snap, nil
}

// MaterializeEdges writes the edges implied by the type-level prerequisite
// map into the dependencies table, skipping ones already present. Explicit
// rows make chains traceable by plain SQL and survive rule map evolution.
func (r *Resolver) MaterializeEdges(ctx context.Context, snap *Snapshot, actor string) (int, error) {
	var deps []*types.Dependency
	for _, o := range snap.Obligations {
		for _, prereq := range snap.prerequisitesFor(o) {
			deps = append(deps, &types.Dependency{
				ObligationID: o.ID,
				DependsOnID:  prereq.ID,
				Type:         types.DepBlocks,
				CreatedBy:    actor,
			})
		}
	}
	return r.store.EnsureDependencies(ctx, deps)
}
