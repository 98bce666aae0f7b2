package models

import "github.com/google/uuid"

// Scope narrows a rule to a plan, a tenant, both, or neither (global).
// A nil field matches any value.
type Scope struct {
	TenantID *uuid.UUID `json:"tenant_id,omitempty" db:"tenant_id"`
	PlanID   *uuid.UUID `json:"plan_id,omitempty" db:"plan_id"`
}

// Specificity levels, higher wins a priority tie
const (
	SpecificityGlobal     = 0
	SpecificityPlan       = 1
	SpecificityTenant     = 2
	SpecificityTenantPlan = 3
)

// Matches reports whether the scope applies to the tenant/plan pair.
// The tenant and plan checks are independent.
func (s Scope) Matches(tenantID, planID *uuid.UUID) bool {
	if s.TenantID != nil && (tenantID == nil || *s.TenantID != *tenantID) {
		return false
	}
	if s.PlanID != nil && (planID == nil || *s.PlanID != *planID) {
		return false
	}
	return true
}

// Specificity ranks how narrowly the scope is bound
func (s Scope) Specificity() int {
	switch {
	case s.TenantID != nil && s.PlanID != nil:
		return SpecificityTenantPlan
	case s.TenantID != nil:
		return SpecificityTenant
	case s.PlanID != nil:
		return SpecificityPlan
	default:
		return SpecificityGlobal
	}
}

// IsGlobal reports whether the scope applies to everyone
func (s Scope) IsGlobal() bool {
	return s.TenantID == nil && s.PlanID == nil
}

// Label renders a short description used in logs
func (s Scope) Label() string {
	switch s.Specificity() {
	case SpecificityTenantPlan:
		return "tenant:" + s.TenantID.String() + "/plan:" + s.PlanID.String()
	case SpecificityTenant:
		return "tenant:" + s.TenantID.String()
	case SpecificityPlan:
		return "plan:" + s.PlanID.String()
	default:
		return "global"
	}
}
