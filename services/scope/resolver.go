// Package scope selects rules by tenant/plan scope, priority and specificity.
package scope

import (
	"sort"

	"github.com/google/uuid"
	"github.com/upb/ai-governance/models"
)

// Rule is anything that can be ranked by the resolver
type Rule interface {
	RuleID() uuid.UUID
	RulePriority() int
	RuleScope() models.Scope
	RuleEnabled() bool
}

// Applies reports whether an enabled rule matches the tenant/plan pair
func Applies(r Rule, tenantID, planID *uuid.UUID) bool {
	return r.RuleEnabled() && r.RuleScope().Matches(tenantID, planID)
}

// Less orders rules: lowest priority first, then most specific scope,
// then lowest id so the order is stable.
func Less(a, b Rule) bool {
	if a.RulePriority() != b.RulePriority() {
		return a.RulePriority() < b.RulePriority()
	}
	sa, sb := a.RuleScope().Specificity(), b.RuleScope().Specificity()
	if sa != sb {
		return sa > sb
	}
	return a.RuleID().String() < b.RuleID().String()
}

// Filter returns every enabled rule matching the pair, ordered by Less
func Filter[T Rule](rules []T, tenantID, planID *uuid.UUID) []T {
	out := make([]T, 0, len(rules))
	for _, r := range rules {
		if Applies(r, tenantID, planID) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return Less(out[i], out[j])
	})
	return out
}

// Resolve returns the single best rule for the pair, or false when none applies
func Resolve[T Rule](rules []T, tenantID, planID *uuid.UUID) (T, bool) {
	var best T
	found := false
	for _, r := range rules {
		if !Applies(r, tenantID, planID) {
			continue
		}
		if !found || Less(r, best) {
			best = r
			found = true
		}
	}
	return best, found
}

// ResolveWhere is Resolve restricted to rules accepted by keep
func ResolveWhere[T Rule](rules []T, tenantID, planID *uuid.UUID, keep func(T) bool) (T, bool) {
	var best T
	found := false
	for _, r := range rules {
		if !keep(r) || !Applies(r, tenantID, planID) {
			continue
		}
		if !found || Less(r, best) {
			best = r
			found = true
		}
	}
	return best, found
}
