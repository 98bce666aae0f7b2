package fallback

import (
	"context"

	"github.com/google/uuid"

	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/services"
)

// Call is one model invocation requested by Execute
type Call struct {
	ModelID         uuid.UUID
	Attempt         int // 1-based retry number on the primary, 0 for the fallback call
	Fallback        bool
	PreserveContext bool
}

// Invoker performs the actual model call on behalf of the router
type Invoker func(ctx context.Context, call Call) error

// Execution summarises a completed Execute run
type Execution struct {
	State           State
	ModelID         uuid.UUID // Model that served the request, zero when nothing succeeded
	Retries         int
	UsedFallback    bool
	PreserveContext bool
	TimedOut        bool // Cancelled while waiting or before a call
	Rule            *models.FallbackRule
}

// Execute drives the state machine to completion for an initial failure.
// Rules are loaded once; retries and the fallback call go through invoke.
func (r *Router) Execute(ctx context.Context, req RouteRequest, invoke Invoker) (*Execution, error) {
	rules, err := r.rules.ApplicableRules(ctx, req.TenantID, req.PlanID)
	if err != nil {
		return nil, err
	}

	exec := &Execution{State: StatePrimary}
	d := Decide(rules, req)

	for {
		exec.Rule = d.Rule

		switch d.Action {
		case ActionPropagate:
			exec.State = d.State
			return exec, d.Err

		case ActionRetryPrimary:
			exec.State = StateRetryingPrimary
			if err := r.sleep(ctx, d.Delay); err != nil {
				return cancelled(exec, err)
			}
			exec.Retries = d.Attempt

			callErr := invoke(ctx, Call{ModelID: req.PrimaryModelID, Attempt: d.Attempt})
			if callErr == nil {
				exec.State = StatePrimary
				exec.ModelID = req.PrimaryModelID
				return exec, nil
			}
			if ctx.Err() != nil {
				return cancelled(exec, ctx.Err())
			}

			req.Attempt = d.Attempt
			req.Failure.Err = callErr
			d = step(d.Rule, req)

		case ActionUseFallback:
			exec.State = StateFailover
			exec.UsedFallback = true
			exec.PreserveContext = d.PreserveContext
			if err := ctx.Err(); err != nil {
				return cancelled(exec, err)
			}

			callErr := invoke(ctx, Call{
				ModelID:         d.FallbackModelID,
				Fallback:        true,
				PreserveContext: d.PreserveContext,
			})
			if callErr != nil {
				exec.State = StateExhausted
				return exec, services.FallbackExhausted(callErr)
			}
			exec.ModelID = d.FallbackModelID
			return exec, nil
		}
	}
}

func cancelled(exec *Execution, cause error) (*Execution, error) {
	exec.State = StateExhausted
	exec.TimedOut = true
	return exec, services.NewDomainError(services.ErrorTypeExternal, "fallback routing cancelled", cause)
}
