// Package fallback decides whether a failed model invocation is retried on the
// primary model, reissued against a fallback model, or propagated.
package fallback

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/services"
	"github.com/upb/ai-governance/services/scope"
)

// State is the router's position for one failed invocation
type State string

const (
	StatePrimary         State = "primary"
	StateRetryingPrimary State = "retrying_primary"
	StateFailover        State = "failover"
	StateExhausted       State = "exhausted"
)

// Action is the instruction handed back to the caller
type Action string

const (
	ActionRetryPrimary Action = "retry_primary"
	ActionUseFallback  Action = "use_fallback"
	ActionPropagate    Action = "propagate"
)

// FailureEvent describes one failed dispatch
type FailureEvent struct {
	Kind      models.FailureKind
	LatencyMs int64
	ErrorRate *float64 // Observed error rate in percent, nil when unknown
	Err       error    // The original failure, propagated verbatim when no rule applies
}

// RouteRequest asks for the next routing step.
// Attempt counts primary retries already made for this failure.
type RouteRequest struct {
	TenantID       *uuid.UUID
	PlanID         *uuid.UUID
	PrimaryModelID uuid.UUID
	Failure        FailureEvent
	Attempt        int
}

// Decision is one routing step
type Decision struct {
	Action          Action
	State           State
	Attempt         int           // Retry number the caller is about to make
	Delay           time.Duration // Wait before retrying the primary
	FallbackModelID uuid.UUID
	PreserveContext bool
	Rule            *models.FallbackRule
	Err             error // Set when Action is ActionPropagate
}

// RuleSource loads the fallback rules visible to a tenant/plan pair
type RuleSource interface {
	ApplicableRules(ctx context.Context, tenantID, planID *uuid.UUID) ([]*models.FallbackRule, error)
}

// Router runs the retry-then-failover state machine
type Router struct {
	rules RuleSource
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRouter creates a router over the given rule source
func NewRouter(rules RuleSource) *Router {
	return &Router{rules: rules, sleep: sleepContext}
}

// Decide returns the next step for a failed invocation.
// The returned error is only set when rules cannot be loaded.
func (r *Router) Decide(ctx context.Context, req RouteRequest) (Decision, error) {
	rules, err := r.rules.ApplicableRules(ctx, req.TenantID, req.PlanID)
	if err != nil {
		return Decision{}, err
	}
	return Decide(rules, req), nil
}

// Decide is the pure form of Router.Decide over an already loaded rule set
func Decide(rules []*models.FallbackRule, req RouteRequest) Decision {
	rule, ok := Select(rules, req.TenantID, req.PlanID, req.PrimaryModelID)
	if !ok {
		return Decision{
			Action: ActionPropagate,
			State:  StateExhausted,
			Err:    services.NoApplicableFallbackRule(req.Failure.Err),
		}
	}
	return step(rule, req)
}

// Select returns the best enabled rule for the primary model
func Select(rules []*models.FallbackRule, tenantID, planID *uuid.UUID, primaryModelID uuid.UUID) (*models.FallbackRule, bool) {
	return scope.ResolveWhere(rules, tenantID, planID, func(r *models.FallbackRule) bool {
		return r.PrimaryModelID == primaryModelID
	})
}

// Fires reports whether the rule's trigger gate admits the event
func Fires(rule *models.FallbackRule, ev FailureEvent) bool {
	if !rule.TriggersOn(ev.Kind) {
		return false
	}

	switch ev.Kind {
	case models.FailureTimeout:
		if rule.TimeoutThresholdMs == nil {
			return false
		}
		return ev.LatencyMs >= *rule.TimeoutThresholdMs
	case models.FailureError5xx:
		if rule.ErrorRateThreshold == nil {
			return true
		}
		return ev.ErrorRate != nil && *ev.ErrorRate >= *rule.ErrorRateThreshold
	}
	return true
}

// step applies the state machine to a resolved rule.
// The trigger gate is evaluated on the first failure only; failed retries
// consume the retry budget regardless of their kind.
func step(rule *models.FallbackRule, req RouteRequest) Decision {
	if req.Attempt == 0 && !Fires(rule, req.Failure) {
		return Decision{
			Action: ActionPropagate,
			State:  StatePrimary,
			Rule:   rule,
			Err:    req.Failure.Err,
		}
	}

	if req.Attempt < rule.RetryCount {
		return Decision{
			Action:  ActionRetryPrimary,
			State:   StateRetryingPrimary,
			Attempt: req.Attempt + 1,
			Delay:   time.Duration(rule.RetryDelayMs) * time.Millisecond,
			Rule:    rule,
		}
	}

	return Decision{
		Action:          ActionUseFallback,
		State:           StateFailover,
		FallbackModelID: rule.FallbackModelID,
		PreserveContext: rule.PreserveContext,
		Rule:            rule,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
