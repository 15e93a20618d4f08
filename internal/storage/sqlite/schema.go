package sqlite

const schema = `
-- Obligations table
CREATE TABLE IF NOT EXISTS obligations (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    type TEXT NOT NULL,
    title TEXT NOT NULL CHECK(length(title) <= 500),
    notes TEXT NOT NULL DEFAULT '',
    institution TEXT NOT NULL DEFAULT '',
    deadline DATETIME,
    status TEXT NOT NULL DEFAULT 'pending',
    proof_required INTEGER NOT NULL DEFAULT 0,
    source TEXT NOT NULL DEFAULT 'manual',
    source_ref TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    status_changed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    submitted_at DATETIME,
    verified_at DATETIME,
    failed_at DATETIME,
    -- Advisory stuck/severity cache maintained by the detector
    stuck INTEGER NOT NULL DEFAULT 0,
    stuck_reason TEXT NOT NULL DEFAULT '',
    stuck_since DATETIME,
    severity TEXT NOT NULL DEFAULT 'normal',
    severity_reason TEXT NOT NULL DEFAULT '',
    severity_since DATETIME,
    CHECK (status IN ('pending', 'submitted', 'verified', 'blocked', 'failed')),
    -- verified_at iff verified, failed_at iff failed
    CHECK (
        (status = 'verified' AND verified_at IS NOT NULL) OR
        (status != 'verified' AND verified_at IS NULL)
    ),
    CHECK (
        (status = 'failed' AND failed_at IS NOT NULL) OR
        (status != 'failed' AND failed_at IS NULL)
    )
);

CREATE INDEX IF NOT EXISTS idx_obligations_user ON obligations(user_id);
CREATE INDEX IF NOT EXISTS idx_obligations_user_status ON obligations(user_id, status);
CREATE INDEX IF NOT EXISTS idx_obligations_user_type ON obligations(user_id, type);
CREATE INDEX IF NOT EXISTS idx_obligations_deadline ON obligations(deadline);

-- Terminal statuses admit no further status change. The application guard
-- enforces this too; the trigger is the authoritative last line, so a bug
-- upstream surfaces as a hard error instead of a corrupted ledger.
CREATE TRIGGER IF NOT EXISTS trg_obligations_terminal
BEFORE UPDATE OF status ON obligations
WHEN OLD.status IN ('verified', 'failed') AND NEW.status != OLD.status
BEGIN
    SELECT RAISE(ABORT, 'illegal transition: terminal status is immutable');
END;

-- A proof-required obligation cannot reach verified with an empty proofs
-- ledger, even if the guard was bypassed or raced.
CREATE TRIGGER IF NOT EXISTS trg_obligations_verified_proof
BEFORE UPDATE OF status ON obligations
WHEN NEW.status = 'verified' AND OLD.status != 'verified'
    AND NEW.proof_required = 1
    AND NOT EXISTS (SELECT 1 FROM proofs WHERE obligation_id = NEW.id)
BEGIN
    SELECT RAISE(ABORT, 'illegal transition: verification requires proof');
END;

-- Proofs ledger (append-only)
CREATE TABLE IF NOT EXISTS proofs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    obligation_id TEXT NOT NULL,
    type TEXT NOT NULL,
    source_ref TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (obligation_id) REFERENCES obligations(id) ON DELETE CASCADE,
    CHECK (type IN ('receipt', 'portal_screenshot', 'file_upload', 'confirmation_artifact'))
);

CREATE INDEX IF NOT EXISTS idx_proofs_obligation ON proofs(obligation_id);

CREATE TRIGGER IF NOT EXISTS trg_proofs_no_update
BEFORE UPDATE ON proofs
BEGIN
    SELECT RAISE(ABORT, 'proofs ledger is append-only');
END;

CREATE TRIGGER IF NOT EXISTS trg_proofs_no_delete
BEFORE DELETE ON proofs
BEGIN
    SELECT RAISE(ABORT, 'proofs ledger is append-only');
END;

-- Overrides ledger (append-only)
CREATE TABLE IF NOT EXISTS overrides (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    obligation_id TEXT NOT NULL,
    overridden_dependency_id TEXT NOT NULL,
    user_reason TEXT NOT NULL CHECK(length(user_reason) > 0),
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (obligation_id) REFERENCES obligations(id) ON DELETE CASCADE,
    FOREIGN KEY (overridden_dependency_id) REFERENCES obligations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_overrides_obligation ON overrides(obligation_id);
CREATE INDEX IF NOT EXISTS idx_overrides_pair ON overrides(obligation_id, overridden_dependency_id);

CREATE TRIGGER IF NOT EXISTS trg_overrides_no_update
BEFORE UPDATE ON overrides
BEGIN
    SELECT RAISE(ABORT, 'overrides ledger is append-only');
END;

CREATE TRIGGER IF NOT EXISTS trg_overrides_no_delete
BEFORE DELETE ON overrides
BEGIN
    SELECT RAISE(ABORT, 'overrides ledger is append-only');
END;

-- Dependencies table (edge schema)
CREATE TABLE IF NOT EXISTS dependencies (
    obligation_id TEXT NOT NULL,
    depends_on_id TEXT NOT NULL,
    type TEXT NOT NULL DEFAULT 'blocks',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_by TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (obligation_id, depends_on_id),
    FOREIGN KEY (obligation_id) REFERENCES obligations(id) ON DELETE CASCADE,
    FOREIGN KEY (depends_on_id) REFERENCES obligations(id) ON DELETE CASCADE,
    CHECK (type IN ('blocks', 'supersedes')),
    CHECK (obligation_id != depends_on_id)
);

CREATE INDEX IF NOT EXISTS idx_dependencies_obligation ON dependencies(obligation_id);
CREATE INDEX IF NOT EXISTS idx_dependencies_depends_on ON dependencies(depends_on_id);

-- Events table (audit trail)
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    obligation_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    actor TEXT NOT NULL DEFAULT '',
    old_value TEXT,
    new_value TEXT,
    comment TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (obligation_id) REFERENCES obligations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_events_obligation ON events(obligation_id);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);

-- Config table for engine settings
CREATE TABLE IF NOT EXISTS config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
