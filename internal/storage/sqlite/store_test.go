package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/obligolabs/obligo/internal/storage"
	"github.com/obligolabs/obligo/internal/types"
)

const testUser = "casey"

func setupTestDB(t *testing.T) (*Store, func()) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return store, func() { _ = store.Close() }
}

func testObligation(id string, typ types.ObligationType) *types.Obligation {
	return &types.Obligation{
		ID:     id,
		UserID: testUser,
		Type:   typ,
		Title:  "Test " + string(typ),
		Status: types.StatusPending,
	}
}

func TestCreateAndGetObligation(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	deadline := time.Now().UTC().Add(30 * 24 * time.Hour).Truncate(time.Second)
	o := testObligation("obl-aaa111", types.TypeFAFSA)
	o.Deadline = &deadline
	o.ProofRequired = true
	o.Institution = "State U"

	if err := store.CreateObligation(ctx, o, testUser); err != nil {
		t.Fatalf("CreateObligation failed: %v", err)
	}

	got, err := store.GetObligation(ctx, "obl-aaa111")
	if err != nil {
		t.Fatalf("GetObligation failed: %v", err)
	}
	if got.Type != types.TypeFAFSA {
		t.Errorf("Type = %s, want FAFSA", got.Type)
	}
	if got.Status != types.StatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}
	if got.Deadline == nil || !got.Deadline.Equal(deadline) {
		t.Errorf("Deadline = %v, want %v", got.Deadline, deadline)
	}
	if !got.ProofRequired {
		t.Error("ProofRequired not persisted")
	}

	// Creation must land in the audit trail.
	events, err := store.GetEvents(ctx, o.ID, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].EventType != types.EventCreated {
		t.Fatalf("expected one created event, got %+v", events)
	}
}

func TestGetObligationNotFound(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := store.GetObligation(context.Background(), "obl-nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateDuplicateID(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	o := testObligation("obl-dup111", types.TypeFAFSA)
	if err := store.CreateObligation(ctx, o, testUser); err != nil {
		t.Fatalf("CreateObligation failed: %v", err)
	}
	dup := testObligation("obl-dup111", types.TypeScholarship)
	if err := store.CreateObligation(ctx, dup, testUser); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateObligationStatusConditional(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	o := testObligation("obl-cond11", types.TypeFAFSA)
	if err := store.CreateObligation(ctx, o, testUser); err != nil {
		t.Fatalf("CreateObligation failed: %v", err)
	}

	if err := store.UpdateObligationStatus(ctx, o.ID, types.StatusPending, types.StatusSubmitted, testUser); err != nil {
		t.Fatalf("pending -> submitted failed: %v", err)
	}

	got, _ := store.GetObligation(ctx, o.ID)
	if got.Status != types.StatusSubmitted {
		t.Fatalf("Status = %s, want submitted", got.Status)
	}
	if got.SubmittedAt == nil {
		t.Error("SubmittedAt not stamped")
	}

	// The row is no longer pending; a stale writer must get a conflict.
	err := store.UpdateObligationStatus(ctx, o.ID, types.StatusPending, types.StatusBlocked, testUser)
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict for stale from-status, got %v", err)
	}
}

func TestUpdateStatusStampsVerifiedAt(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	o := testObligation("obl-ver111", types.TypeScholarship)
	if err := store.CreateObligation(ctx, o, testUser); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateObligationStatus(ctx, o.ID, types.StatusPending, types.StatusSubmitted, testUser); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateObligationStatus(ctx, o.ID, types.StatusSubmitted, types.StatusVerified, testUser); err != nil {
		t.Fatal(err)
	}

	got, _ := store.GetObligation(ctx, o.ID)
	if got.VerifiedAt == nil {
		t.Error("VerifiedAt not stamped on verification")
	}
}

func TestTerminalStatusImmutable(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	o := testObligation("obl-term11", types.TypeScholarship)
	if err := store.CreateObligation(ctx, o, testUser); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateObligationStatus(ctx, o.ID, types.StatusPending, types.StatusSubmitted, testUser); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateObligationStatus(ctx, o.ID, types.StatusSubmitted, types.StatusVerified, testUser); err != nil {
		t.Fatal(err)
	}

	// The schema trigger is the last line of defense: even a caller that
	// bypasses the guard gets rejected here.
	err := store.UpdateObligationStatus(ctx, o.ID, types.StatusVerified, types.StatusPending, testUser)
	if !errors.Is(err, storage.ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition, got %v", err)
	}
}

func TestVerifiedRequiresProofTrigger(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	o := testObligation("obl-vrp111", types.TypeFAFSA)
	o.ProofRequired = true
	if err := store.CreateObligation(ctx, o, testUser); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateObligationStatus(ctx, o.ID, types.StatusPending, types.StatusSubmitted, testUser); err != nil {
		t.Fatal(err)
	}

	// With an empty proofs ledger the schema rejects verification even when
	// the guard is bypassed.
	err := store.UpdateObligationStatus(ctx, o.ID, types.StatusSubmitted, types.StatusVerified, testUser)
	if !errors.Is(err, storage.ErrIllegalTransition) {
		t.Errorf("expected ErrIllegalTransition, got %v", err)
	}

	p := &types.Proof{ObligationID: o.ID, Type: types.ProofFileUpload, SourceRef: "upload-1"}
	if err := store.AppendProof(ctx, p, testUser); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateObligationStatus(ctx, o.ID, types.StatusSubmitted, types.StatusVerified, testUser); err != nil {
		t.Errorf("verification with proof attached should succeed, got %v", err)
	}
}

func TestProofLedgerAppendOnly(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	o := testObligation("obl-prf111", types.TypeApplicationFee)
	if err := store.CreateObligation(ctx, o, testUser); err != nil {
		t.Fatal(err)
	}

	p := &types.Proof{ObligationID: o.ID, Type: types.ProofReceipt, SourceRef: "stripe_ch_1"}
	if err := store.AppendProof(ctx, p, testUser); err != nil {
		t.Fatalf("AppendProof failed: %v", err)
	}
	if p.ID == 0 {
		t.Error("proof ID not assigned")
	}

	hasProof, err := store.HasProof(ctx, o.ID)
	if err != nil || !hasProof {
		t.Fatalf("HasProof = %v, %v; want true", hasProof, err)
	}

	// Ledger triggers reject mutation outright.
	if _, err := store.UnderlyingDB().ExecContext(ctx,
		"UPDATE proofs SET source_ref = 'tampered' WHERE id = ?", p.ID); err == nil {
		t.Error("expected proof UPDATE to be rejected")
	}
	if _, err := store.UnderlyingDB().ExecContext(ctx,
		"DELETE FROM proofs WHERE id = ?", p.ID); err == nil {
		t.Error("expected proof DELETE to be rejected")
	}
}

func TestOverrideLedgerKeepsAllRecords(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	a := testObligation("obl-ova111", types.TypeScholarship)
	b := testObligation("obl-ovb111", types.TypeFAFSA)
	for _, o := range []*types.Obligation{a, b} {
		if err := store.CreateObligation(ctx, o, testUser); err != nil {
			t.Fatal(err)
		}
	}

	for i := 0; i < 2; i++ {
		ov := &types.Override{ObligationID: a.ID, DependencyID: b.ID, Reason: "fee waived"}
		if err := store.AppendOverride(ctx, ov, testUser); err != nil {
			t.Fatalf("AppendOverride failed: %v", err)
		}
	}

	overrides, err := store.GetOverrides(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(overrides) != 2 {
		t.Errorf("expected both override records kept, got %d", len(overrides))
	}

	overridden, err := store.IsOverridden(ctx, a.ID, b.ID)
	if err != nil || !overridden {
		t.Errorf("IsOverridden = %v, %v; want true", overridden, err)
	}

	// Empty reasons are rejected at the storage layer too.
	bad := &types.Override{ObligationID: a.ID, DependencyID: b.ID}
	if err := store.AppendOverride(ctx, bad, testUser); err == nil {
		t.Error("expected empty reason to be rejected")
	}
}

func TestEnsureDependenciesIdempotent(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	a := testObligation("obl-epa111", types.TypeEnrollment)
	b := testObligation("obl-epb111", types.TypeAcceptance)
	for _, o := range []*types.Obligation{a, b} {
		if err := store.CreateObligation(ctx, o, testUser); err != nil {
			t.Fatal(err)
		}
	}

	deps := []*types.Dependency{
		{ObligationID: a.ID, DependsOnID: b.ID, Type: types.DepBlocks, CreatedBy: testUser},
	}
	created, err := store.EnsureDependencies(ctx, deps)
	if err != nil || created != 1 {
		t.Fatalf("EnsureDependencies = %d, %v; want 1", created, err)
	}
	created, err = store.EnsureDependencies(ctx, deps)
	if err != nil || created != 0 {
		t.Fatalf("second EnsureDependencies = %d, %v; want 0", created, err)
	}
}

func TestUnblockObligation(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	o := testObligation("obl-unb111", types.TypeScholarship)
	if err := store.CreateObligation(ctx, o, testUser); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateObligationStatus(ctx, o.ID, types.StatusPending, types.StatusBlocked, testUser); err != nil {
		t.Fatal(err)
	}

	if err := store.UnblockObligation(ctx, o.ID, "obl-src111", testUser); err != nil {
		t.Fatalf("UnblockObligation failed: %v", err)
	}
	got, _ := store.GetObligation(ctx, o.ID)
	if got.Status != types.StatusPending {
		t.Errorf("Status = %s, want pending", got.Status)
	}

	// Not blocked anymore: second unblock is a conflict, not a silent no-op.
	if err := store.UnblockObligation(ctx, o.ID, "obl-src111", testUser); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	events, _ := store.GetEvents(ctx, o.ID, 0)
	found := false
	for _, e := range events {
		if e.EventType == types.EventPropagationUnblocked {
			found = true
		}
	}
	if !found {
		t.Error("propagation event not recorded")
	}
}

func TestUpdateStuckCacheAndAutoFail(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	o := testObligation("obl-stk111", types.TypeHousingDeposit)
	past := time.Now().UTC().Add(-48 * time.Hour)
	o.Deadline = &past
	if err := store.CreateObligation(ctx, o, testUser); err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC()
	update := storage.StuckUpdate{
		Stuck:          true,
		StuckReason:    types.StuckDeadlinePassed,
		StuckSince:     &now,
		Severity:       types.SeverityFailed,
		SeverityReason: "deadline_passed",
		SeveritySince:  &now,
		MarkFailed:     true,
	}
	if err := store.UpdateStuckCache(ctx, o.ID, update, "detector"); err != nil {
		t.Fatalf("UpdateStuckCache failed: %v", err)
	}

	got, _ := store.GetObligation(ctx, o.ID)
	if got.Status != types.StatusFailed {
		t.Errorf("Status = %s, want failed after auto-fail", got.Status)
	}
	if got.FailedAt == nil {
		t.Error("FailedAt not stamped")
	}
	if !got.Stuck || got.StuckReason != types.StuckDeadlinePassed {
		t.Errorf("stuck cache not persisted: stuck=%v reason=%s", got.Stuck, got.StuckReason)
	}

	events, _ := store.GetEvents(ctx, o.ID, 0)
	var autoFailed bool
	for _, e := range events {
		if e.EventType == types.EventAutoFailed {
			autoFailed = true
		}
	}
	if !autoFailed {
		t.Error("auto_failed event not recorded")
	}
}

func TestListObligationsFilters(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	fafsa := testObligation("obl-lsa111", types.TypeFAFSA)
	fee := testObligation("obl-lsb111", types.TypeApplicationFee)
	fee.Institution = "State U"
	other := testObligation("obl-lsc111", types.TypeFAFSA)
	other.UserID = "taylor"
	for _, o := range []*types.Obligation{fafsa, fee, other} {
		if err := store.CreateObligation(ctx, o, o.UserID); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.ListObligations(ctx, types.ObligationFilter{UserID: testUser})
	if err != nil || len(all) != 2 {
		t.Fatalf("user filter: got %d, %v; want 2", len(all), err)
	}

	typ := types.TypeFAFSA
	byType, err := store.ListObligations(ctx, types.ObligationFilter{UserID: testUser, Type: &typ})
	if err != nil || len(byType) != 1 {
		t.Fatalf("type filter: got %d, %v; want 1", len(byType), err)
	}

	inst := "State U"
	byInst, err := store.ListObligations(ctx, types.ObligationFilter{UserID: testUser, Institution: &inst})
	if err != nil || len(byInst) != 1 || byInst[0].ID != fee.ID {
		t.Fatalf("institution filter: got %v, %v", byInst, err)
	}
}

func TestGetStatistics(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	a := testObligation("obl-sta111", types.TypeFAFSA)
	b := testObligation("obl-stb111", types.TypeScholarship)
	for _, o := range []*types.Obligation{a, b} {
		if err := store.CreateObligation(ctx, o, testUser); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.UpdateObligationStatus(ctx, a.ID, types.StatusPending, types.StatusSubmitted, testUser); err != nil {
		t.Fatal(err)
	}

	stats, err := store.GetStatistics(ctx, testUser)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 || stats.Pending != 1 || stats.Submitted != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.SetConfig(ctx, "stale_days", "7"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetConfig(ctx, "stale_days", "9"); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetConfig(ctx, "stale_days")
	if err != nil || got != "9" {
		t.Errorf("GetConfig = %q, %v; want 9", got, err)
	}
	missing, err := store.GetConfig(ctx, "absent")
	if err != nil || missing != "" {
		t.Errorf("GetConfig absent = %q, %v; want empty", missing, err)
	}
}
