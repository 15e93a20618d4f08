// Package severity computes deterministic risk labels from deadline
// proximity and obligation state.
//
// Two independent pure functions serve different purposes: Escalation
// drives behavior (the guard uses it to gate verification), Severity
// drives presentation (ordering, badges). Both are total, side-effect
// free, and referentially transparent: the same inputs always produce the
// same output regardless of call order or call count.
package severity

import (
	"time"

	"github.com/obligolabs/obligo/internal/types"
)

// Escalation day thresholds
const (
	CriticalDays = 3
	UrgentDays   = 7
)

// Severity day thresholds
const (
	HighDays      = 3
	StuckHighDays = 7
	ElevatedDays  = 14
)

// Severity reason labels. Exact set; the UI keys off these.
const (
	ReasonVerified                 = "verified"
	ReasonDeadlinePassed           = "deadline_passed"
	ReasonStuckDeadlineImminent    = "stuck_deadline_imminent"
	ReasonDeadlineImminent         = "deadline_imminent"
	ReasonStuckDeadlineApproaching = "stuck_deadline_approaching"
	ReasonDeadlineApproaching      = "deadline_approaching"
	ReasonStuckNoDeadlinePressure  = "stuck_no_deadline_pressure"
	ReasonNoPressure               = "no_pressure"
)

// daysRemaining returns the fractional number of days between now and the
// deadline. Negative when the deadline has passed.
func daysRemaining(deadline time.Time, now time.Time) float64 {
	return deadline.Sub(now).Hours() / 24
}

// Escalation maps status and deadline proximity to a behavior-facing risk
// level. Verified obligations and obligations without a deadline are
// always normal, including past deadlines on verified rows.
func Escalation(status types.Status, deadline *time.Time, now time.Time) types.Escalation {
	if status == types.StatusVerified {
		return types.EscalationNormal
	}
	if deadline == nil {
		return types.EscalationNormal
	}
	remaining := daysRemaining(*deadline, now)
	switch {
	case remaining < 0:
		return types.EscalationFailure
	case remaining <= CriticalDays:
		return types.EscalationCritical
	case remaining <= UrgentDays:
		return types.EscalationUrgent
	default:
		return types.EscalationNormal
	}
}

// Severity maps status, deadline proximity, and the stuck flag to a
// presentation-facing risk level plus a reason label. First matching rule
// wins; the ordering is part of the contract (a stuck obligation two days
// from deadline is critical, not high).
func Severity(status types.Status, deadline *time.Time, stuck bool, now time.Time) (types.Severity, string) {
	// Rule 1: verified is done, whatever the deadline says.
	if status == types.StatusVerified {
		return types.SeverityNormal, ReasonVerified
	}
	// failed is terminal and rendered as such.
	if status == types.StatusFailed {
		return types.SeverityFailed, ReasonDeadlinePassed
	}

	if deadline != nil {
		remaining := daysRemaining(*deadline, now)

		// Rule 2: deadline passed.
		if remaining < 0 {
			return types.SeverityFailed, ReasonDeadlinePassed
		}
		// Rule 3: imminent deadline while stuck.
		if remaining <= HighDays && stuck {
			return types.SeverityCritical, ReasonStuckDeadlineImminent
		}
		// Rule 4: imminent deadline.
		if remaining <= HighDays {
			return types.SeverityHigh, ReasonDeadlineImminent
		}
		// Rule 5: stuck with the deadline approaching.
		if stuck && remaining <= StuckHighDays {
			return types.SeverityHigh, ReasonStuckDeadlineApproaching
		}
		// Rule 6: deadline approaching.
		if remaining <= ElevatedDays {
			return types.SeverityElevated, ReasonDeadlineApproaching
		}
	}

	// Rule 7: stuck with no deadline pressure.
	if stuck {
		return types.SeverityElevated, ReasonStuckNoDeadlinePressure
	}
	// Rule 8: everything else.
	return types.SeverityNormal, ReasonNoPressure
}
