// Package stuck detects obligations that are structurally unable to
// progress and classifies why.
//
// The detector is advisory: its output is cached onto obligation rows for
// display stability, but the guard never consults the cache. Gating always
// re-derives dependency state from the ledgers. The one state change the
// detector makes is auto-failing obligations whose deadline has passed
// unresolved, and that goes through the same terminality constraints as
// any transition.
package stuck

import (
	"context"
	"fmt"
	"time"

	"github.com/obligolabs/obligo/internal/resolver"
	"github.com/obligolabs/obligo/internal/severity"
	"github.com/obligolabs/obligo/internal/storage"
	"github.com/obligolabs/obligo/internal/types"
)

// DefaultStaleDays is how long an obligation must sit in the same status
// before slow-moving reasons (unmet dependency, missing proof, pending
// external verification) count as stuck. A passed hard deadline is stuck
// immediately, staleness notwithstanding.
const DefaultStaleDays = 5

// maxChainDepth bounds the traced dependency chain. Ten hops covers any
// realistic prerequisite path; past that the trace marks a cycle or stops.
const maxChainDepth = 10

// Detector sweeps one user's obligations for stuck state.
type Detector struct {
	store     storage.Storage
	resolver  *resolver.Resolver
	staleDays int
	now       func() time.Time
}

// New creates a detector with the default staleness window.
func New(store storage.Storage) *Detector {
	return &Detector{
		store:     store,
		resolver:  resolver.New(store),
		staleDays: DefaultStaleDays,
		now:       time.Now,
	}
}

// SetStaleDays overrides the staleness window. Zero means every structural
// reason counts immediately.
func (d *Detector) SetStaleDays(days int) {
	d.staleDays = days
}

// SetClock replaces the detector's clock. Tests only.
func (d *Detector) SetClock(now func() time.Time) {
	d.now = now
}

// Detect sweeps every non-terminal obligation for the user, persists the
// advisory cache, auto-fails past-deadline rows, and returns the stuck
// report sorted worst first by the caller's convention (severity rank is
// included per entry; ordering is left to presentation).
func (d *Detector) Detect(ctx context.Context, userID, actor string) ([]types.StuckInfo, error) {
	snap, err := d.resolver.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := d.now().UTC()
	deadlocked := d.findDeadlocked(snap)
	proven, err := d.store.GetProvenObligationIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	var out []types.StuckInfo
	for _, o := range snap.Obligations {
		if o.Status.IsTerminal() {
			continue
		}

		info := d.classify(snap, o, deadlocked[o.ID], proven[o.ID], now)

		sev, sevReason := severity.Severity(o.Status, o.Deadline, info.Stuck, now)
		info.Severity = sev
		info.SeverityReason = sevReason
		out = append(out, info)

		update := storage.StuckUpdate{
			Stuck:          info.Stuck,
			StuckReason:    info.Reason,
			Severity:       sev,
			SeverityReason: sevReason,
			MarkFailed:     info.Reason == types.StuckDeadlinePassed,
		}
		if info.Stuck {
			// Preserve the original onset across sweeps; reset it when the
			// reason changes.
			if o.Stuck && o.StuckReason == info.Reason && o.StuckSince != nil {
				update.StuckSince = o.StuckSince
			} else {
				t := now
				update.StuckSince = &t
			}
		}
		if sev != o.Severity || o.SeveritySince == nil {
			t := now
			update.SeveritySince = &t
		} else {
			update.SeveritySince = o.SeveritySince
		}

		if err := d.store.UpdateStuckCache(ctx, o.ID, update, actor); err != nil {
			return nil, fmt.Errorf("persist stuck cache for %s: %w", o.ID, err)
		}
	}
	return out, nil
}

// classify determines the stuck reason for one obligation. Reasons are
// checked in priority order; the first match wins.
func (d *Detector) classify(snap *resolver.Snapshot, o *types.Obligation, isDeadlocked, hasProof bool, now time.Time) types.StuckInfo {
	info := types.StuckInfo{
		ObligationID: o.ID,
		Type:         o.Type,
		Title:        o.Title,
		Status:       o.Status,
		IsDeadlocked: isDeadlocked,
		Chain:        d.traceChain(snap, o),
	}

	daysStale := int(now.Sub(o.StatusChangedAt).Hours() / 24)
	if daysStale < 0 {
		daysStale = 0
	}
	info.DaysStale = daysStale

	state := snap.Evaluate(o)
	stale := daysStale >= d.staleDays

	switch {
	// A passed deadline is stuck immediately, no staleness required.
	case o.Deadline != nil && o.Deadline.Before(now):
		info.Stuck = true
		info.Reason = types.StuckDeadlinePassed

	// A deadlocked obligation can never progress; staleness is irrelevant
	// to the structure, but the window still suppresses noise on fresh rows.
	case isDeadlocked && stale:
		info.Stuck = true
		info.Reason = types.StuckUnmetDependency

	case o.Status == types.StatusSubmitted && stale:
		info.Stuck = true
		info.Reason = types.StuckExternalVerification

	case state.IsBlocked && stale:
		info.Stuck = true
		info.Reason = types.StuckUnmetDependency

	case o.ProofRequired && !hasProof && stale &&
		(o.Status == types.StatusPending || o.Status == types.StatusBlocked):
		info.Stuck = true
		info.Reason = types.StuckMissingProof

	// Overridden blockers no longer gate, but the underlying prerequisite
	// is still unverified. Surface that as elevated risk once stale.
	case len(state.OverriddenDeps) > 0 && stale:
		info.Stuck = true
		info.Reason = types.StuckOverriddenDependency
	}

	return info
}

// traceChain walks the gating dependency chain from o, following the first
// unverified prerequisite at each hop, bounded by maxChainDepth. A node
// already on the path is emitted once more with IsCycleBack set, then the
// walk stops.
func (d *Detector) traceChain(snap *resolver.Snapshot, o *types.Obligation) []types.ChainLink {
	var chain []types.ChainLink
	onPath := map[string]bool{o.ID: true}

	current := o
	for depth := 0; depth < maxChainDepth; depth++ {
		next := firstUnverifiedDep(snap, current)
		if next == nil {
			break
		}
		link := types.ChainLink{
			ObligationID: next.ID,
			Type:         next.Type,
			Title:        next.Title,
			Status:       next.Status,
		}
		if onPath[next.ID] {
			link.IsCycleBack = true
			chain = append(chain, link)
			break
		}
		onPath[next.ID] = true
		chain = append(chain, link)
		current = next
	}
	return chain
}

func firstUnverifiedDep(snap *resolver.Snapshot, o *types.Obligation) *types.Obligation {
	for _, depID := range snap.GatingDeps(o) {
		dep, ok := snap.Get(depID)
		if !ok {
			continue
		}
		if dep.Status != types.StatusVerified {
			return dep
		}
	}
	return nil
}

// findDeadlocked returns the set of obligation IDs that sit on a gating
// cycle or gate (transitively) on one. Nothing in that set can ever reach
// verified without an override.
func (d *Detector) findDeadlocked(snap *resolver.Snapshot) map[string]bool {
	const (
		unvisited = iota
		inStack
		done
	)
	state := make(map[string]int)
	onCycle := make(map[string]bool)

	var path []string
	var dfs func(id string)
	dfs = func(id string) {
		state[id] = inStack
		path = append(path, id)
		o, ok := snap.Get(id)
		if ok {
			for _, depID := range snap.GatingDeps(o) {
				dep, ok := snap.Get(depID)
				if !ok || dep.Status == types.StatusVerified {
					continue
				}
				switch state[depID] {
				case inStack:
					// Mark the cycle segment of the current path.
					for i := len(path) - 1; i >= 0; i-- {
						onCycle[path[i]] = true
						if path[i] == depID {
							break
						}
					}
				case unvisited:
					dfs(depID)
				}
			}
		}
		path = path[:len(path)-1]
		state[id] = done
	}

	for _, o := range snap.Obligations {
		if state[o.ID] == unvisited {
			dfs(o.ID)
		}
	}

	if len(onCycle) == 0 {
		return onCycle
	}

	// Downstream propagation: anything gating on a deadlocked node through
	// unverified edges is deadlocked too. Iterate to a fixed point.
	deadlocked := make(map[string]bool, len(onCycle))
	for id := range onCycle {
		deadlocked[id] = true
	}
	for changed := true; changed; {
		changed = false
		for _, o := range snap.Obligations {
			if deadlocked[o.ID] || o.Status == types.StatusVerified {
				continue
			}
			for _, depID := range snap.GatingDeps(o) {
				if deadlocked[depID] {
					deadlocked[o.ID] = true
					changed = true
					break
				}
			}
		}
	}
	return deadlocked
}
