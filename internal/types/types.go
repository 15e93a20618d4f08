// Package types defines core data structures for the obligo engine.
package types

import (
	"fmt"
	"time"
)

// Obligation represents one unit of required administrative action.
type Obligation struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	Type          ObligationType `json:"type"`
	Title         string         `json:"title"`
	Notes         string         `json:"notes,omitempty"`
	Institution   string         `json:"institution,omitempty"` // scoping key; empty = unscoped
	Deadline      *time.Time     `json:"deadline,omitempty"`
	Status        Status         `json:"status,omitempty"`
	ProofRequired bool           `json:"proof_required"`
	Source        string         `json:"source,omitempty"`     // manual | email_scan | portal_paste | document
	SourceRef     string         `json:"source_ref,omitempty"` // provenance pointer (message id, file URL, note)

	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	StatusChangedAt time.Time  `json:"status_changed_at"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty"`
	FailedAt        *time.Time `json:"failed_at,omitempty"`

	// Advisory stuck/severity cache, persisted for display stability.
	// Recomputed by the detector; never authoritative for gating.
	Stuck          bool        `json:"stuck,omitempty"`
	StuckReason    StuckReason `json:"stuck_reason,omitempty"`
	StuckSince     *time.Time  `json:"stuck_since,omitempty"`
	Severity       Severity    `json:"severity,omitempty"`
	SeverityReason string      `json:"severity_reason,omitempty"`
	SeveritySince  *time.Time  `json:"severity_since,omitempty"`

	// Populated only for export / detail views
	Proofs    []*Proof    `json:"proofs,omitempty"`
	Overrides []*Override `json:"overrides,omitempty"`
}

// Validate checks field values and timestamp invariants.
func (o *Obligation) Validate() error {
	if len(o.Title) == 0 {
		return fmt.Errorf("title is required")
	}
	if len(o.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(o.Title))
	}
	if o.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if !o.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", o.Status)
	}
	if !o.Type.IsValid() {
		return fmt.Errorf("invalid obligation type: %s", o.Type)
	}
	// verified_at invariant: set if and only if status is verified
	if o.Status == StatusVerified && o.VerifiedAt == nil {
		return fmt.Errorf("verified obligations must have verified_at timestamp")
	}
	if o.Status != StatusVerified && o.VerifiedAt != nil {
		return fmt.Errorf("non-verified obligations cannot have verified_at timestamp")
	}
	if o.Status == StatusFailed && o.FailedAt == nil {
		return fmt.Errorf("failed obligations must have failed_at timestamp")
	}
	if o.Status != StatusFailed && o.FailedAt != nil {
		return fmt.Errorf("non-failed obligations cannot have failed_at timestamp")
	}
	return nil
}

// SetDefaults applies default values for fields omitted by callers.
func (o *Obligation) SetDefaults() {
	if o.Status == "" {
		o.Status = StatusPending
	}
	if o.Source == "" {
		o.Source = SourceManual
	}
}

// IsTerminal returns true if the obligation can no longer change status.
func (o *Obligation) IsTerminal() bool {
	return o.Status.IsTerminal()
}

// Obligation source constants
const (
	SourceManual      = "manual"
	SourceEmailScan   = "email_scan"
	SourcePortalPaste = "portal_paste"
	SourceDocument    = "document"
)

// Status represents the lifecycle state of an obligation
type Status string

// Obligation status constants
const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusVerified  Status = "verified"
	StatusBlocked   Status = "blocked"
	StatusFailed    Status = "failed"
)

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSubmitted, StatusVerified, StatusBlocked, StatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true for statuses that permit no further transitions.
// failed is irreversible: recovery requires declaring a new obligation.
func (s Status) IsTerminal() bool {
	return s == StatusVerified || s == StatusFailed
}

// ObligationType categorizes the kind of administrative action.
// The set is closed; the prerequisite map in internal/rules is keyed on it.
type ObligationType string

// Obligation type constants
const (
	TypeFAFSA                   ObligationType = "FAFSA"
	TypeApplicationFee          ObligationType = "APPLICATION_FEE"
	TypeApplicationSubmission   ObligationType = "APPLICATION_SUBMISSION"
	TypeHousingDeposit          ObligationType = "HOUSING_DEPOSIT"
	TypeScholarship             ObligationType = "SCHOLARSHIP"
	TypeAcceptance              ObligationType = "ACCEPTANCE"
	TypeScholarshipDisbursement ObligationType = "SCHOLARSHIP_DISBURSEMENT"
	TypeEnrollment              ObligationType = "ENROLLMENT"
	TypeEnrollmentDeposit       ObligationType = "ENROLLMENT_DEPOSIT"
	TypeScholarshipAcceptance   ObligationType = "SCHOLARSHIP_ACCEPTANCE"
)

// AllObligationTypes lists every valid obligation type.
var AllObligationTypes = []ObligationType{
	TypeFAFSA, TypeApplicationFee, TypeApplicationSubmission,
	TypeHousingDeposit, TypeScholarship, TypeAcceptance,
	TypeScholarshipDisbursement, TypeEnrollment,
	TypeEnrollmentDeposit, TypeScholarshipAcceptance,
}

// IsValid checks if the obligation type value is valid
func (t ObligationType) IsValid() bool {
	for _, known := range AllObligationTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ProofRequiredByDefault reports whether obligations of this type require
// proof before they can be marked verified. Fixed per type.
func (t ObligationType) ProofRequiredByDefault() bool {
	switch t {
	case TypeApplicationFee, TypeHousingDeposit, TypeEnrollmentDeposit,
		TypeApplicationSubmission, TypeFAFSA:
		return true
	}
	return false
}

// Proof is evidence attached to one obligation. Append-only: the engine
// never edits or deletes a proof once recorded.
type Proof struct {
	ID           int64     `json:"id"`
	ObligationID string    `json:"obligation_id"`
	Type         ProofType `json:"type"`
	SourceRef    string    `json:"source_ref"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProofType categorizes verification evidence
type ProofType string

// Proof type constants
const (
	ProofReceipt              ProofType = "receipt"
	ProofPortalScreenshot     ProofType = "portal_screenshot"
	ProofFileUpload           ProofType = "file_upload"
	ProofConfirmationArtifact ProofType = "confirmation_artifact"
)

// IsValid checks if the proof type value is valid
func (p ProofType) IsValid() bool {
	switch p {
	case ProofReceipt, ProofPortalScreenshot, ProofFileUpload, ProofConfirmationArtifact:
		return true
	}
	return false
}

// Override is an audited human decision to ignore one specific blocker for
// one specific obligation. Append-only; a blocker that reappears and is
// overridden again produces a second record, and both are kept.
type Override struct {
	ID           int64     `json:"id"`
	ObligationID string    `json:"obligation_id"`
	DependencyID string    `json:"overridden_dependency_id"`
	Reason       string    `json:"user_reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// Dependency represents an edge between two obligations
type Dependency struct {
	ObligationID string         `json:"obligation_id"`
	DependsOnID  string         `json:"depends_on_id"`
	Type         DependencyType `json:"type"`
	CreatedAt    time.Time      `json:"created_at"`
	CreatedBy    string         `json:"created_by"`
}

// DependencyType categorizes the relationship
type DependencyType string

// Dependency type constants
const (
	// DepBlocks gates transitions: the dependent cannot move to submitted
	// or verified while the prerequisite is unverified and not overridden.
	DepBlocks DependencyType = "blocks"
	// DepSupersedes links a recovery obligation to the failed one it
	// replaces. Audit only; never gates.
	DepSupersedes DependencyType = "supersedes"
)

// IsValid checks if the dependency type value is valid
func (d DependencyType) IsValid() bool {
	return d == DepBlocks || d == DepSupersedes
}

// AffectsGating returns true if edges of this type participate in the
// blocker computation.
func (d DependencyType) AffectsGating() bool {
	return d == DepBlocks
}

// Blocker describes one unverified prerequisite obligation. Derived at
// evaluation time, never stored.
type Blocker struct {
	ObligationID string         `json:"obligation_id"`
	Type         ObligationType `json:"type"`
	Title        string         `json:"title"`
	Status       Status         `json:"status"`
	Institution  string         `json:"institution,omitempty"`
	Deadline     *time.Time     `json:"deadline,omitempty"`
}

// OverriddenDep is a blocker suppressed by an active override. The risk
// signal survives; only the hard block is removed.
type OverriddenDep struct {
	Blocker
	OverriddenAt time.Time `json:"overridden_at"`
}

// DependencyState is the resolver's output for one obligation.
type DependencyState struct {
	ObligationID   string          `json:"obligation_id"`
	Type           ObligationType  `json:"type"`
	Title          string          `json:"title"`
	Status         Status          `json:"status"`
	IsBlocked      bool            `json:"is_blocked"`
	Blockers       []Blocker       `json:"blockers"`
	OverriddenDeps []OverriddenDep `json:"overridden_deps"`
}

// StuckReason classifies why an obligation is structurally unable to
// progress. Exact taxonomy; no other values exist.
type StuckReason string

// Stuck reason constants
const (
	StuckUnmetDependency      StuckReason = "unmet_dependency"
	StuckOverriddenDependency StuckReason = "overridden_dependency"
	StuckMissingProof         StuckReason = "missing_proof"
	StuckExternalVerification StuckReason = "external_verification_pending"
	StuckDeadlinePassed       StuckReason = "hard_deadline_passed"
)

// IsValid checks if the stuck reason value is valid
func (r StuckReason) IsValid() bool {
	switch r {
	case StuckUnmetDependency, StuckOverriddenDependency, StuckMissingProof,
		StuckExternalVerification, StuckDeadlinePassed:
		return true
	}
	return false
}

// ChainLink is one hop in a traced dependency chain.
type ChainLink struct {
	ObligationID string         `json:"obligation_id"`
	Type         ObligationType `json:"type"`
	Title        string         `json:"title"`
	Status       Status         `json:"status"`
	IsCycleBack  bool           `json:"is_cycle_back"`
}

// StuckInfo is the detector's output for one obligation. Advisory: it is
// cached onto the row for display stability but never gates a transition.
type StuckInfo struct {
	ObligationID   string         `json:"obligation_id"`
	Type           ObligationType `json:"type"`
	Title          string         `json:"title"`
	Status         Status         `json:"status"`
	Stuck          bool           `json:"stuck"`
	Reason         StuckReason    `json:"stuck_reason,omitempty"`
	StuckSince     *time.Time     `json:"stuck_since,omitempty"`
	DaysStale      int            `json:"days_stale"`
	IsDeadlocked   bool           `json:"is_deadlocked"`
	Chain          []ChainLink    `json:"chain"`
	Severity       Severity       `json:"severity"`
	SeverityReason string         `json:"severity_reason"`
}

// Severity is a presentation-facing risk label combining deadline
// proximity and stuck state. Five levels; no others.
type Severity string

// Severity level constants
const (
	SeverityNormal   Severity = "normal"
	SeverityElevated Severity = "elevated"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
	SeverityFailed   Severity = "failed"
)

// Rank orders severities for sorting (higher is worse).
func (s Severity) Rank() int {
	switch s {
	case SeverityFailed:
		return 4
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	case SeverityElevated:
		return 1
	default:
		return 0
	}
}

// Escalation is a behavior-facing risk label combining deadline proximity
// and proof state, used to gate verification.
type Escalation string

// Escalation level constants
const (
	EscalationNormal   Escalation = "normal"
	EscalationUrgent   Escalation = "urgent"
	EscalationCritical Escalation = "critical"
	EscalationFailure  Escalation = "failure"
)

// BlocksVerification returns true when missing proof at this escalation
// level must reject a verified transition outright.
func (e Escalation) BlocksVerification() bool {
	return e == EscalationCritical || e == EscalationFailure
}

// Event represents an audit trail entry
type Event struct {
	ID           int64     `json:"id"`
	ObligationID string    `json:"obligation_id"`
	EventType    EventType `json:"event_type"`
	Actor        string    `json:"actor"`
	OldValue     *string   `json:"old_value,omitempty"`
	NewValue     *string   `json:"new_value,omitempty"`
	Comment      *string   `json:"comment,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// EventType categorizes audit trail events
type EventType string

// Event type constants for the audit trail
const (
	EventCreated              EventType = "created"
	EventStatusChanged        EventType = "status_changed"
	EventProofAttached        EventType = "proof_attached"
	EventOverrideRecorded     EventType = "override_recorded"
	EventPropagationUnblocked EventType = "propagation_unblocked"
	EventStuckDetected        EventType = "stuck_detected"
	EventAutoFailed           EventType = "auto_failed"
)

// ObligationFilter is used to filter obligation queries
type ObligationFilter struct {
	UserID      string
	Status      *Status
	Type        *ObligationType
	Institution *string
	Limit       int
}

// Statistics provides aggregate metrics for one user's obligation set
type Statistics struct {
	Total          int              `json:"total"`
	Pending        int              `json:"pending"`
	Submitted      int              `json:"submitted"`
	Verified       int              `json:"verified"`
	Blocked        int              `json:"blocked"`
	Failed         int              `json:"failed"`
	Stuck          int              `json:"stuck"`
	SeverityCounts map[Severity]int `json:"severity_counts"`
}
