package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/obligolabs/obligo/internal/storage"
)

// wrapDBError wraps a database error with operation context.
// It converts sql.ErrNoRows to storage.ErrNotFound and trigger aborts from
// the transition constraint to storage.ErrIllegalTransition so callers can
// match with errors.Is.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if isTriggerAbort(err) {
		return fmt.Errorf("%s: %w: %v", op, storage.ErrIllegalTransition, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isTriggerAbort reports whether err came from one of the schema-level
// RAISE(ABORT, ...) constraints. The driver surfaces the abort message
// verbatim, so matching on the message text is the only handle we have.
func isTriggerAbort(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "illegal transition") ||
		strings.Contains(msg, "append-only")
}
