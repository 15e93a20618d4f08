package guard_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obligolabs/obligo/internal/guard"
	"github.com/obligolabs/obligo/internal/storage/sqlite"
	"github.com/obligolabs/obligo/internal/types"
)

const testUser = "casey"

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func create(t *testing.T, store *sqlite.Store, id string, typ types.ObligationType, mutate func(*types.Obligation)) *types.Obligation {
	t.Helper()
	o := &types.Obligation{
		ID:     id,
		UserID: testUser,
		Type:   typ,
		Title:  "Test " + string(typ),
		Status: types.StatusPending,
	}
	if mutate != nil {
		mutate(o)
	}
	require.NoError(t, store.CreateObligation(context.Background(), o, testUser))
	return o
}

func TestTransitionHappyPath(t *testing.T) {
	store := newTestStore(t)
	g := guard.New(store)
	ctx := context.Background()

	o := create(t, store, "obl-hap111", types.TypeAcceptance, nil)
	// Acceptance gates on application submission; none exists, so no block.
	res, err := g.RequestTransition(ctx, testUser, o.ID, types.StatusSubmitted, testUser)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSubmitted, res.Obligation.Status)

	res, err = g.RequestTransition(ctx, testUser, o.ID, types.StatusVerified, testUser)
	require.NoError(t, err)
	assert.Equal(t, types.StatusVerified, res.Obligation.Status)
	assert.NotNil(t, res.Obligation.VerifiedAt)
}

func TestTransitionRejectsBlockedForward(t *testing.T) {
	store := newTestStore(t)
	g := guard.New(store)
	ctx := context.Background()

	fafsa := create(t, store, "obl-blkf11", types.TypeFAFSA, nil)
	scholarship := create(t, store, "obl-blks11", types.TypeScholarship, nil)

	for _, target := range []types.Status{types.StatusSubmitted, types.StatusVerified} {
		_, err := g.RequestTransition(ctx, testUser, scholarship.ID, target, testUser)
		var blocked *guard.BlockedError
		require.ErrorAs(t, err, &blocked, "target %s", target)
		require.Len(t, blocked.Blockers, 1)
		assert.Equal(t, fafsa.ID, blocked.Blockers[0].ObligationID)
	}

	// Blocked never prevents moving backward.
	_, err := g.RequestTransition(ctx, testUser, scholarship.ID, types.StatusBlocked, testUser)
	require.NoError(t, err)
	_, err = g.RequestTransition(ctx, testUser, scholarship.ID, types.StatusPending, testUser)
	require.NoError(t, err)
}

func TestTransitionRejectsIllegalEdges(t *testing.T) {
	store := newTestStore(t)
	g := guard.New(store)
	ctx := context.Background()

	o := create(t, store, "obl-ill111", types.TypeAcceptance, nil)

	// pending -> verified skips submitted.
	_, err := g.RequestTransition(ctx, testUser, o.ID, types.StatusVerified, testUser)
	var invalid *guard.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, types.StatusPending, invalid.From)
	assert.Equal(t, types.StatusVerified, invalid.To)
}

func TestTransitionRejectsTerminal(t *testing.T) {
	store := newTestStore(t)
	g := guard.New(store)
	ctx := context.Background()

	o := create(t, store, "obl-trm111", types.TypeAcceptance, nil)
	_, err := g.RequestTransition(ctx, testUser, o.ID, types.StatusSubmitted, testUser)
	require.NoError(t, err)
	_, err = g.RequestTransition(ctx, testUser, o.ID, types.StatusVerified, testUser)
	require.NoError(t, err)

	_, err = g.RequestTransition(ctx, testUser, o.ID, types.StatusPending, testUser)
	var terminal *guard.TerminalError
	require.ErrorAs(t, err, &terminal)
	assert.Equal(t, types.StatusVerified, terminal.Status)
}

func TestTransitionFailedRequiresPassedDeadline(t *testing.T) {
	store := newTestStore(t)
	g := guard.New(store)
	ctx := context.Background()

	future := time.Now().Add(48 * time.Hour)
	o := create(t, store, "obl-fut111", types.TypeAcceptance, func(o *types.Obligation) {
		o.Deadline = &future
	})

	_, err := g.RequestTransition(ctx, testUser, o.ID, types.StatusFailed, testUser)
	var notPassed *guard.DeadlineNotPassedError
	require.ErrorAs(t, err, &notPassed)

	noDeadline := create(t, store, "obl-nod111", types.TypeAcceptance, nil)
	_, err = g.RequestTransition(ctx, testUser, noDeadline.ID, types.StatusFailed, testUser)
	require.ErrorAs(t, err, &notPassed)

	past := time.Now().Add(-48 * time.Hour)
	gone := create(t, store, "obl-pst111", types.TypeAcceptance, func(o *types.Obligation) {
		o.Deadline = &past
	})
	res, err := g.RequestTransition(ctx, testUser, gone.ID, types.StatusFailed, testUser)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, res.Obligation.Status)
	assert.NotNil(t, res.Obligation.FailedAt)
}

func TestProofGate(t *testing.T) {
	store := newTestStore(t)
	g := guard.New(store)
	ctx := context.Background()

	deadline := time.Now().Add(30 * 24 * time.Hour)
	o := create(t, store, "obl-prg111", types.TypeFAFSA, func(o *types.Obligation) {
		o.ProofRequired = true
		o.Deadline = &deadline
	})
	_, err := g.RequestTransition(ctx, testUser, o.ID, types.StatusSubmitted, testUser)
	require.NoError(t, err)

	_, err = g.RequestTransition(ctx, testUser, o.ID, types.StatusVerified, testUser)
	var proofErr *guard.ProofRequiredError
	require.ErrorAs(t, err, &proofErr)

	p := &types.Proof{ObligationID: o.ID, Type: types.ProofConfirmationArtifact, SourceRef: "fafsa-conf-123"}
	require.NoError(t, store.AppendProof(ctx, p, testUser))

	res, err := g.RequestTransition(ctx, testUser, o.ID, types.StatusVerified, testUser)
	require.NoError(t, err)
	assert.Equal(t, types.StatusVerified, res.Obligation.Status)
}

func TestEscalationGateOutranksProofGate(t *testing.T) {
	store := newTestStore(t)
	g := guard.New(store)
	ctx := context.Background()

	// Two days out: critical escalation. Missing proof is an outright
	// escalation rejection, not a plain proof-required message.
	deadline := time.Now().Add(48 * time.Hour)
	o := create(t, store, "obl-esc111", types.TypeFAFSA, func(o *types.Obligation) {
		o.ProofRequired = true
		o.Deadline = &deadline
	})
	_, err := g.RequestTransition(ctx, testUser, o.ID, types.StatusSubmitted, testUser)
	require.NoError(t, err)

	_, err = g.RequestTransition(ctx, testUser, o.ID, types.StatusVerified, testUser)
	var escErr *guard.EscalationError
	require.ErrorAs(t, err, &escErr)
	assert.Equal(t, types.EscalationCritical, escErr.Escalation)

	// With proof attached the escalation gate does not apply.
	p := &types.Proof{ObligationID: o.ID, Type: types.ProofReceipt, SourceRef: "receipt-1"}
	require.NoError(t, store.AppendProof(ctx, p, testUser))
	res, err := g.RequestTransition(ctx, testUser, o.ID, types.StatusVerified, testUser)
	require.NoError(t, err)
	assert.Equal(t, types.StatusVerified, res.Obligation.Status)
}

func TestOverrideUnblocksTransition(t *testing.T) {
	store := newTestStore(t)
	g := guard.New(store)
	ctx := context.Background()

	fafsa := create(t, store, "obl-ovf111", types.TypeFAFSA, nil)
	scholarship := create(t, store, "obl-ovs111", types.TypeScholarship, nil)

	_, err := g.RequestTransition(ctx, testUser, scholarship.ID, types.StatusSubmitted, testUser)
	var blocked *guard.BlockedError
	require.ErrorAs(t, err, &blocked)

	ov := &types.Override{ObligationID: scholarship.ID, DependencyID: fafsa.ID, Reason: "aid office waived"}
	require.NoError(t, store.AppendOverride(ctx, ov, testUser))

	res, err := g.RequestTransition(ctx, testUser, scholarship.ID, types.StatusSubmitted, testUser)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSubmitted, res.Obligation.Status)
}
