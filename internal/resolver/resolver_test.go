package resolver_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obligolabs/obligo/internal/resolver"
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

func mustCreate(t *testing.T, store *sqlite.Store, id string, typ types.ObligationType, status types.Status, institution string) *types.Obligation {
	t.Helper()
	o := &types.Obligation{
		ID:          id,
		UserID:      testUser,
		Type:        typ,
		Title:       "Test " + string(typ),
		Status:      types.StatusPending,
		Institution: institution,
	}
	require.NoError(t, store.CreateObligation(context.Background(), o, testUser))
	if status != types.StatusPending {
		advance(t, store, id, status)
	}
	o.Status = status
	return o
}

// advance walks the row through legal edges to the requested status.
func advance(t *testing.T, store *sqlite.Store, id string, target types.Status) {
	t.Helper()
	ctx := context.Background()
	switch target {
	case types.StatusSubmitted:
		require.NoError(t, store.UpdateObligationStatus(ctx, id, types.StatusPending, types.StatusSubmitted, testUser))
	case types.StatusVerified:
		require.NoError(t, store.UpdateObligationStatus(ctx, id, types.StatusPending, types.StatusSubmitted, testUser))
		require.NoError(t, store.UpdateObligationStatus(ctx, id, types.StatusSubmitted, types.StatusVerified, testUser))
	case types.StatusBlocked:
		require.NoError(t, store.UpdateObligationStatus(ctx, id, types.StatusPending, types.StatusBlocked, testUser))
	}
}

func TestEvaluateTypePrerequisite(t *testing.T) {
	store := newTestStore(t)
	r := resolver.New(store)
	ctx := context.Background()

	fafsa := mustCreate(t, store, "obl-fafsa1", types.TypeFAFSA, types.StatusPending, "")
	scholarship := mustCreate(t, store, "obl-schol1", types.TypeScholarship, types.StatusPending, "")

	state, _, err := r.Evaluate(ctx, testUser, scholarship.ID)
	require.NoError(t, err)
	assert.True(t, state.IsBlocked)
	require.Len(t, state.Blockers, 1)
	assert.Equal(t, fafsa.ID, state.Blockers[0].ObligationID)

	// Verifying the prerequisite clears the block.
	advance(t, store, fafsa.ID, types.StatusVerified)
	state, _, err = r.Evaluate(ctx, testUser, scholarship.ID)
	require.NoError(t, err)
	assert.False(t, state.IsBlocked)
	assert.Empty(t, state.Blockers)
}

func TestEvaluateInstitutionScoping(t *testing.T) {
	store := newTestStore(t)
	r := resolver.New(store)
	ctx := context.Background()

	// Acceptance at State U is verified; the one at Tech is not.
	mustCreate(t, store, "obl-accst1", types.TypeAcceptance, types.StatusVerified, "State U")
	techAcc := mustCreate(t, store, "obl-acctc1", types.TypeAcceptance, types.StatusPending, "Tech")
	stateHousing := mustCreate(t, store, "obl-houst1", types.TypeHousingDeposit, types.StatusPending, "State U")
	techHousing := mustCreate(t, store, "obl-houtc1", types.TypeHousingDeposit, types.StatusPending, "Tech")

	state, _, err := r.Evaluate(ctx, testUser, stateHousing.ID)
	require.NoError(t, err)
	assert.False(t, state.IsBlocked, "State U housing must only consider the State U acceptance")

	state, _, err = r.Evaluate(ctx, testUser, techHousing.ID)
	require.NoError(t, err)
	assert.True(t, state.IsBlocked)
	require.Len(t, state.Blockers, 1)
	assert.Equal(t, techAcc.ID, state.Blockers[0].ObligationID)
}

func TestEvaluateGlobalFallback(t *testing.T) {
	store := newTestStore(t)
	r := resolver.New(store)
	ctx := context.Background()

	// FAFSA is unscoped; the scholarship is institution-scoped. With no
	// scoped FAFSA, the global one stands in.
	fafsa := mustCreate(t, store, "obl-fafsa2", types.TypeFAFSA, types.StatusPending, "")
	scholarship := mustCreate(t, store, "obl-schol2", types.TypeScholarship, types.StatusPending, "State U")

	state, _, err := r.Evaluate(ctx, testUser, scholarship.ID)
	require.NoError(t, err)
	assert.True(t, state.IsBlocked)
	require.Len(t, state.Blockers, 1)
	assert.Equal(t, fafsa.ID, state.Blockers[0].ObligationID)
}

func TestEvaluateHousingDepositConditional(t *testing.T) {
	store := newTestStore(t)
	r := resolver.New(store)
	ctx := context.Background()

	mustCreate(t, store, "obl-accep3", types.TypeAcceptance, types.StatusVerified, "State U")
	enrollDep := mustCreate(t, store, "obl-enrdp3", types.TypeEnrollmentDeposit, types.StatusPending, "State U")
	housing := mustCreate(t, store, "obl-houdp3", types.TypeHousingDeposit, types.StatusPending, "State U")

	// With an enrollment deposit in scope, housing gates on it instead of
	// the (verified) acceptance.
	state, _, err := r.Evaluate(ctx, testUser, housing.ID)
	require.NoError(t, err)
	assert.True(t, state.IsBlocked)
	require.Len(t, state.Blockers, 1)
	assert.Equal(t, enrollDep.ID, state.Blockers[0].ObligationID)
}

func TestEvaluateOverridePartition(t *testing.T) {
	store := newTestStore(t)
	r := resolver.New(store)
	ctx := context.Background()

	fafsa := mustCreate(t, store, "obl-fafsa4", types.TypeFAFSA, types.StatusPending, "")
	scholarship := mustCreate(t, store, "obl-schol4", types.TypeScholarship, types.StatusPending, "")

	ov := &types.Override{
		ObligationID: scholarship.ID,
		DependencyID: fafsa.ID,
		Reason:       "aid office confirmed eligibility by phone",
	}
	require.NoError(t, store.AppendOverride(ctx, ov, testUser))

	state, _, err := r.Evaluate(ctx, testUser, scholarship.ID)
	require.NoError(t, err)
	assert.False(t, state.IsBlocked, "an overridden dep must not hard-block")
	assert.Empty(t, state.Blockers)
	require.Len(t, state.OverriddenDeps, 1)
	assert.Equal(t, fafsa.ID, state.OverriddenDeps[0].ObligationID)
	assert.False(t, state.OverriddenDeps[0].OverriddenAt.IsZero())
}

func TestEvaluateExplicitEdge(t *testing.T) {
	store := newTestStore(t)
	r := resolver.New(store)
	ctx := context.Background()

	a := mustCreate(t, store, "obl-edgea5", types.TypeScholarship, types.StatusPending, "")
	b := mustCreate(t, store, "obl-edgeb5", types.TypeFAFSA, types.StatusPending, "")
	// Supersedes edges never gate.
	c := mustCreate(t, store, "obl-edgec5", types.TypeAcceptance, types.StatusPending, "")
	require.NoError(t, store.AddDependency(ctx, &types.Dependency{
		ObligationID: a.ID, DependsOnID: c.ID, Type: types.DepSupersedes,
	}, testUser))

	state, _, err := r.Evaluate(ctx, testUser, a.ID)
	require.NoError(t, err)
	require.Len(t, state.Blockers, 1, "only the FAFSA type prerequisite should gate")
	assert.Equal(t, b.ID, state.Blockers[0].ObligationID)
}

func TestMaterializeEdges(t *testing.T) {
	store := newTestStore(t)
	r := resolver.New(store)
	ctx := context.Background()

	mustCreate(t, store, "obl-fafsa6", types.TypeFAFSA, types.StatusPending, "")
	mustCreate(t, store, "obl-schol6", types.TypeScholarship, types.StatusPending, "")

	snap, err := r.Load(ctx, testUser)
	require.NoError(t, err)
	created, err := r.MaterializeEdges(ctx, snap, testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	// Idempotent on re-run.
	snap, err = r.Load(ctx, testUser)
	require.NoError(t, err)
	created, err = r.MaterializeEdges(ctx, snap, testUser)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	deps, err := store.GetDependenciesForUser(ctx, testUser)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "obl-schol6", deps[0].ObligationID)
	assert.Equal(t, "obl-fafsa6", deps[0].DependsOnID)
}
