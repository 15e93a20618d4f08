// Package rules defines the static prerequisite map between obligation
// types and the controlled propagation rules that follow from it.
//
// The map is code-defined and closed: it is not user-editable, and it is
// validated eagerly at startup so that cycles or unknown types are a
// configuration failure, never a runtime discovery.
package rules

import (
	"fmt"

	"github.com/obligolabs/obligo/internal/types"
)

// prerequisites maps an obligation type to the prerequisite types it
// requires. Direct prerequisites only; transitive chains emerge from
// walking the map.
var prerequisites = map[types.ObligationType][]types.ObligationType{
	types.TypeApplicationSubmission:   {types.TypeApplicationFee},
	types.TypeAcceptance:              {types.TypeApplicationSubmission},
	types.TypeEnrollment:              {types.TypeAcceptance, types.TypeFAFSA},
	types.TypeEnrollmentDeposit:       {types.TypeAcceptance},
	types.TypeHousingDeposit:          {types.TypeAcceptance},
	types.TypeScholarshipDisbursement: {types.TypeScholarship},
	types.TypeScholarshipAcceptance:   {types.TypeAcceptance},
}

// propagation maps a source type to the dependent types whose blocked
// status may be lifted when the source is verified. Lifting means blocked
// back to pending only; propagation never submits or verifies anything.
var propagation = map[types.ObligationType][]types.ObligationType{
	types.TypeApplicationSubmission: {types.TypeHousingDeposit},
	types.TypeFAFSA:                 {types.TypeScholarship},
}

// Prerequisites returns the static prerequisite types for t, ignoring the
// housing-deposit conditional. Returns nil for root types.
func Prerequisites(t types.ObligationType) []types.ObligationType {
	return prerequisites[t]
}

// RequiredTypes returns the prerequisite types for t with the one
// conditional rule applied: a housing deposit is gated on the enrollment
// deposit when one exists in the same institution scope, otherwise on
// acceptance.
func RequiredTypes(t types.ObligationType, scopeHasEnrollmentDeposit bool) []types.ObligationType {
	if t == types.TypeHousingDeposit && scopeHasEnrollmentDeposit {
		return []types.ObligationType{types.TypeEnrollmentDeposit}
	}
	return prerequisites[t]
}

// PropagationTargets returns the dependent types eligible for unblocking
// when an obligation of type t is verified.
func PropagationTargets(t types.ObligationType) []types.ObligationType {
	return propagation[t]
}

// Validate checks the prerequisite and propagation tables: every key and
// value must be a known obligation type, no type may require itself, and
// the type graph must be acyclic. Called once at engine startup.
func Validate() error {
	for t, reqs := range prerequisites {
		if !t.IsValid() {
			return fmt.Errorf("prerequisite map: unknown obligation type %q", t)
		}
		for _, req := range reqs {
			if !req.IsValid() {
				return fmt.Errorf("prerequisite map: %s requires unknown type %q", t, req)
			}
			if req == t {
				return fmt.Errorf("prerequisite map: %s requires itself", t)
			}
		}
	}
	for t, targets := range propagation {
		if !t.IsValid() {
			return fmt.Errorf("propagation map: unknown obligation type %q", t)
		}
		for _, target := range targets {
			if !target.IsValid() {
				return fmt.Errorf("propagation map: %s unblocks unknown type %q", t, target)
			}
		}
	}
	if cycle := findTypeCycle(); cycle != nil {
		return fmt.Errorf("prerequisite map: cycle detected: %v", cycle)
	}
	return nil
}

// findTypeCycle runs DFS with a recursion stack over the type graph,
// including the conditional housing-deposit edge, and returns the first
// cycle found as a type list, or nil.
func findTypeCycle() []types.ObligationType {
	// The conditional rule adds HOUSING_DEPOSIT -> ENROLLMENT_DEPOSIT as a
	// possible edge; include it so a misconfiguration through that path is
	// caught too.
	edges := make(map[types.ObligationType][]types.ObligationType, len(prerequisites)+1)
	for t, reqs := range prerequisites {
		edges[t] = append(edges[t], reqs...)
	}
	edges[types.TypeHousingDeposit] = append(edges[types.TypeHousingDeposit], types.TypeEnrollmentDeposit)

	const (
		unvisited = iota
		inStack
		done
	)
	state := make(map[types.ObligationType]int)

	var path []types.ObligationType
	var dfs func(t types.ObligationType) []types.ObligationType
	dfs = func(t types.ObligationType) []types.ObligationType {
		state[t] = inStack
		path = append(path, t)
		for _, req := range edges[t] {
			switch state[req] {
			case inStack:
				// Trim the path to the cycle segment.
				for i, p := range path {
					if p == req {
						return append(append([]types.ObligationType{}, path[i:]...), req)
					}
				}
				return append(append([]types.ObligationType{}, path...), req)
			case unvisited:
				if cycle := dfs(req); cycle != nil {
					return cycle
				}
			}
		}
		path = path[:len(path)-1]
		state[t] = done
		return nil
	}

	for _, t := range types.AllObligationTypes {
		if state[t] == unvisited {
			path = path[:0]
			if cycle := dfs(t); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
