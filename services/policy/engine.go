package policy

import (
	"github.com/google/uuid"
	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/services"
	"github.com/upb/ai-governance/services/scope"
)

// EvaluationContext carries what the evaluators may inspect about a request.
// Observed counters exclude the request being evaluated.
type EvaluationContext struct {
	Model    *models.AIModel
	ModelKey string
	Region   string

	EstimatedTokensIn  int64
	EstimatedTokensOut int64
	ToolKeys           []string

	RequestsLastMinute int64
	RequestsLastHour   int64
	TokensLastMinute   int64
}

func (ec EvaluationContext) modelKey() string {
	if ec.Model != nil {
		return ec.Model.Key
	}
	return ec.ModelKey
}

// Result is the outcome of one policy
type Result struct {
	Policy    *models.GuardrailPolicy `json:"-"`
	PolicyID  uuid.UUID               `json:"policy_id"`
	PolicyKey string                  `json:"policy_key"`
	Action    models.PolicyAction     `json:"action"`
	Triggered bool                    `json:"triggered"`
	Reason    string                  `json:"reason,omitempty"`
}

// Evaluation is the ordered outcome of every applicable policy
type Evaluation struct {
	Results      []Result `json:"results"`
	ShouldBlock  bool     `json:"should_block"`
	BlockMessage string   `json:"block_message,omitempty"`
	BlockedBy    string   `json:"blocked_by,omitempty"`
}

// Triggered returns only the results whose policy fired
func (e *Evaluation) Triggered() []Result {
	out := make([]Result, 0, len(e.Results))
	for _, r := range e.Results {
		if r.Triggered {
			out = append(out, r)
		}
	}
	return out
}

// Err returns a PolicyViolation when a blocking policy fired
func (e *Evaluation) Err() error {
	if !e.ShouldBlock {
		return nil
	}
	return services.PolicyViolation(e.BlockedBy, e.BlockMessage)
}

// Evaluate runs every enabled policy that applies to the tenant/plan pair in
// priority order. All applicable policies run; the first triggered block
// policy supplies the block message.
func Evaluate(policies []*models.GuardrailPolicy, tenantID, planID *uuid.UUID, ec EvaluationContext) *Evaluation {
	applicable := scope.Filter(policies, tenantID, planID)
	eval := &Evaluation{Results: make([]Result, 0, len(applicable))}

	for _, p := range applicable {
		triggered, reason := evaluateOne(p, ec)
		eval.Results = append(eval.Results, Result{
			Policy:    p,
			PolicyID:  p.ID,
			PolicyKey: p.Key,
			Action:    p.Action,
			Triggered: triggered,
			Reason:    reason,
		})
		if triggered && p.Action == models.PolicyActionBlock && !eval.ShouldBlock {
			eval.ShouldBlock = true
			eval.BlockedBy = p.Key
			eval.BlockMessage = p.ErrorMessage
			if eval.BlockMessage == "" {
				eval.BlockMessage = reason
			}
		}
	}
	return eval
}

func evaluateOne(p *models.GuardrailPolicy, ec EvaluationContext) (bool, string) {
	if isEmptyConfig(p.Config) {
		return true, "policy applies unconditionally"
	}
	eval, ok := evaluators[p.Type]
	if !ok {
		return true, "unknown policy type " + string(p.Type)
	}
	triggered, reason, err := eval(p.Config, ec)
	if err != nil {
		return true, "invalid configuration: " + err.Error()
	}
	return triggered, reason
}
