// Package guard enforces the transition rules for obligation status
// changes.
//
// Every status change flows through RequestTransition. The checks run in a
// fixed order so the caller always gets the most fundamental rejection
// first: existence, terminality, transition legality, dependency gate,
// escalation gate, proof gate. Only when every check passes does the guard
// commit, and the commit itself is conditional on the status it read.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/obligolabs/obligo/internal/resolver"
	"github.com/obligolabs/obligo/internal/severity"
	"github.com/obligolabs/obligo/internal/storage"
	"github.com/obligolabs/obligo/internal/types"
)

// allowedTransitions enumerates every legal edge in the lifecycle graph.
// Terminal statuses have no outgoing edges; failed is reachable from any
// non-terminal status but only with a passed deadline.
var allowedTransitions = map[types.Status][]types.Status{
	types.StatusPending:   {types.StatusSubmitted, types.StatusBlocked, types.StatusFailed},
	types.StatusSubmitted: {types.StatusVerified, types.StatusPending, types.StatusFailed},
	types.StatusBlocked:   {types.StatusPending, types.StatusFailed},
}

// TerminalError rejects a transition out of verified or failed.
type TerminalError struct {
	ObligationID string
	Status       types.Status
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("obligation %s is %s and cannot change status", e.ObligationID, e.Status)
}

// InvalidTransitionError rejects an edge absent from the lifecycle graph.
type InvalidTransitionError struct {
	ObligationID string
	From, To     types.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("obligation %s: transition %s -> %s is not allowed", e.ObligationID, e.From, e.To)
}

// DeadlineNotPassedError rejects a manual failed transition while the
// deadline is still in the future or absent.
type DeadlineNotPassedError struct {
	ObligationID string
	Deadline     *time.Time
}

func (e *DeadlineNotPassedError) Error() string {
	if e.Deadline == nil {
		return fmt.Sprintf("obligation %s has no deadline and cannot be failed", e.ObligationID)
	}
	return fmt.Sprintf("obligation %s cannot be failed before its deadline (%s)",
		e.ObligationID, e.Deadline.Format("2006-01-02"))
}

// BlockedError rejects a forward transition while unverified,
// non-overridden prerequisites remain. The blockers are carried so the
// caller can render them.
type BlockedError struct {
	ObligationID string
	Target       types.Status
	Blockers     []types.Blocker
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("obligation %s cannot move to %s: %d unverified prerequisite(s)",
		e.ObligationID, e.Target, len(e.Blockers))
}

// EscalationError rejects verification outright: the deadline pressure is
// too high to accept an unproven claim.
type EscalationError struct {
	ObligationID string
	Escalation   types.Escalation
}

func (e *EscalationError) Error() string {
	return fmt.Sprintf("obligation %s cannot be verified without proof at %s escalation",
		e.ObligationID, e.Escalation)
}

// ProofRequiredError rejects verification of a proof-required obligation
// that has no proof attached.
type ProofRequiredError struct {
	ObligationID string
}

func (e *ProofRequiredError) Error() string {
	return fmt.Sprintf("obligation %s requires proof before it can be verified", e.ObligationID)
}

// Guard validates and commits status transitions.
type Guard struct {
	store    storage.Storage
	resolver *resolver.Resolver
	now      func() time.Time
}

// New creates a guard over the given store.
func New(store storage.Storage) *Guard {
	return &Guard{
		store:    store,
		resolver: resolver.New(store),
		now:      time.Now,
	}
}

// SetClock replaces the guard's clock. Tests only.
func (g *Guard) SetClock(now func() time.Time) {
	g.now = now
}

// Result reports a committed transition along with the dependency state
// that was current when the guard evaluated it.
type Result struct {
	Obligation *types.Obligation
	DepState   types.DependencyState
	Snapshot   *resolver.Snapshot
}

// RequestTransition validates target against the full rule chain and
// commits it. On a concurrent conflict the guard re-reads and re-validates
// from scratch with exponential backoff, so a transition never commits
// against rules it was not checked under.
func (g *Guard) RequestTransition(ctx context.Context, userID, obligationID string, target types.Status, actor string) (*Result, error) {
	if !target.IsValid() {
		return nil, fmt.Errorf("invalid target status: %s", target)
	}

	var result *Result
	op := func() error {
		res, err := g.attempt(ctx, userID, obligationID, target, actor)
		if err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return err // retryable
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxElapsedTime = 2 * time.Second

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}

// attempt runs the rule chain once against a fresh snapshot.
func (g *Guard) attempt(ctx context.Context, userID, obligationID string, target types.Status, actor string) (*Result, error) {
	state, snap, err := g.resolver.Evaluate(ctx, userID, obligationID)
	if err != nil {
		return nil, err
	}
	o, _ := snap.Get(obligationID)
	now := g.now().UTC()

	// 1. Terminality. verified and failed admit no further transitions.
	if o.Status.IsTerminal() {
		return nil, &TerminalError{ObligationID: o.ID, Status: o.Status}
	}

	// 2. Lifecycle graph.
	if !transitionAllowed(o.Status, target) {
		return nil, &InvalidTransitionError{ObligationID: o.ID, From: o.Status, To: target}
	}

	// 3. failed requires a passed deadline. Failure records that the world
	// moved on, not that someone gave up early.
	if target == types.StatusFailed {
		if o.Deadline == nil || !o.Deadline.Before(now) {
			return nil, &DeadlineNotPassedError{ObligationID: o.ID, Deadline: o.Deadline}
		}
	}

	// 4. Dependency gate. Forward motion (submitted, verified) is blocked
	// while unverified prerequisites remain; overridden ones do not count.
	if target == types.StatusSubmitted || target == types.StatusVerified {
		if state.IsBlocked {
			return nil, &BlockedError{ObligationID: o.ID, Target: target, Blockers: state.Blockers}
		}
	}

	if target == types.StatusVerified && o.ProofRequired {
		hasProof, err := g.store.HasProof(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		if !hasProof {
			// 5. Escalation gate first: at critical or failure escalation a
			// missing proof is an outright rejection, not a plain
			// proof-required message.
			esc := severity.Escalation(o.Status, o.Deadline, now)
			if esc.BlocksVerification() {
				return nil, &EscalationError{ObligationID: o.ID, Escalation: esc}
			}
			// 6. Proof gate.
			return nil, &ProofRequiredError{ObligationID: o.ID}
		}
	}

	// 7. Conditional commit keyed on the status this attempt read.
	if err := g.store.UpdateObligationStatus(ctx, o.ID, o.Status, target, actor); err != nil {
		return nil, err
	}

	updated, err := g.store.GetObligation(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return &Result{Obligation: updated, DepState: state, Snapshot: snap}, nil
}

func transitionAllowed(from, to types.Status) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
