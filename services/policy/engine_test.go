package policy

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/services"
)

func newPolicy(key string, typ models.PolicyType, config string, action models.PolicyAction, priority int) *models.GuardrailPolicy {
	var raw json.RawMessage
	if config != "" {
		raw = json.RawMessage(config)
	}
	return models.NewGuardrailPolicy(key, key, typ, raw, action, priority)
}

func TestEvaluate_FirstBlockSuppliesMessage(t *testing.T) {
	first := newPolicy("blocked-models", models.PolicyTypeAccessControl, `{"blocked_models":["gpt-4"]}`, models.PolicyActionBlock, 10)
	first.ErrorMessage = "gpt-4 is not permitted"
	second := newPolicy("big-requests", models.PolicyTypeResourceLimit, `{"max_tokens_per_request":100}`, models.PolicyActionBlock, 20)

	eval := Evaluate([]*models.GuardrailPolicy{second, first}, nil, nil, EvaluationContext{
		ModelKey:          "gpt-4",
		EstimatedTokensIn: 500,
	})

	require.Len(t, eval.Results, 2)
	assert.Equal(t, "blocked-models", eval.Results[0].PolicyKey)
	assert.True(t, eval.Results[0].Triggered)
	assert.True(t, eval.Results[1].Triggered)
	assert.True(t, eval.ShouldBlock)
	assert.Equal(t, "blocked-models", eval.BlockedBy)
	assert.Equal(t, "gpt-4 is not permitted", eval.BlockMessage)

	err := eval.Err()
	require.Error(t, err)
	assert.True(t, services.IsPolicyViolationError(err))
	assert.Contains(t, err.Error(), "gpt-4 is not permitted")
}

func TestEvaluate_WarnDoesNotBlock(t *testing.T) {
	p := newPolicy("warn-only", models.PolicyTypeResourceLimit, `{"max_input_tokens":10}`, models.PolicyActionWarn, 1)

	eval := Evaluate([]*models.GuardrailPolicy{p}, nil, nil, EvaluationContext{EstimatedTokensIn: 50})

	assert.False(t, eval.ShouldBlock)
	assert.NoError(t, eval.Err())
	assert.Len(t, eval.Triggered(), 1)
}

func TestEvaluate_EmptyConfigAlwaysTriggers(t *testing.T) {
	p := newPolicy("kill-switch", models.PolicyTypeSecurity, "", models.PolicyActionBlock, 1)

	eval := Evaluate([]*models.GuardrailPolicy{p}, nil, nil, EvaluationContext{})
	assert.True(t, eval.ShouldBlock)
	assert.Equal(t, "policy applies unconditionally", eval.BlockMessage)
}

func TestEvaluate_MalformedConfigFailsClosed(t *testing.T) {
	p := newPolicy("broken", models.PolicyTypeRateLimit, `{"max_requests_per_minute":"ten"}`, models.PolicyActionBlock, 1)

	eval := Evaluate([]*models.GuardrailPolicy{p}, nil, nil, EvaluationContext{})
	assert.True(t, eval.ShouldBlock)
	assert.Contains(t, eval.BlockMessage, "invalid configuration")
}

func TestEvaluate_ScopeFiltering(t *testing.T) {
	tenantA, tenantB := uuid.New(), uuid.New()

	forA := newPolicy("a-only", models.PolicyTypeSecurity, "", models.PolicyActionBlock, 1)
	forA.TenantID = &tenantA
	disabled := newPolicy("disabled", models.PolicyTypeSecurity, "", models.PolicyActionBlock, 1)
	disabled.IsEnabled = false

	eval := Evaluate([]*models.GuardrailPolicy{forA, disabled}, &tenantB, nil, EvaluationContext{})
	assert.Empty(t, eval.Results)
	assert.False(t, eval.ShouldBlock)

	eval = Evaluate([]*models.GuardrailPolicy{forA, disabled}, &tenantA, nil, EvaluationContext{})
	assert.True(t, eval.ShouldBlock)
}

func TestEvaluators(t *testing.T) {
	active := models.NewAIModel("claude", "Claude", "anthropic", models.ModelTypeChat, 0, 0)
	active.Regions = []string{"eu"}
	deprecated := models.NewAIModel("old", "Old", "openai", models.ModelTypeCode, 0, 0)
	deprecated.Status = models.ModelStatusDeprecated

	tests := []struct {
		name      string
		typ       models.PolicyType
		config    string
		ec        EvaluationContext
		triggered bool
	}{
		{"rate limit under", models.PolicyTypeRateLimit, `{"max_requests_per_minute":5}`, EvaluationContext{RequestsLastMinute: 4}, false},
		{"rate limit reached", models.PolicyTypeRateLimit, `{"max_requests_per_minute":5}`, EvaluationContext{RequestsLastMinute: 5}, true},
		{"tokens per minute", models.PolicyTypeRateLimit, `{"max_tokens_per_minute":100}`, EvaluationContext{TokensLastMinute: 150}, true},
		{"allowed list excludes", models.PolicyTypeAccessControl, `{"allowed_models":["claude"]}`, EvaluationContext{ModelKey: "gpt-4"}, true},
		{"allowed list includes", models.PolicyTypeAccessControl, `{"allowed_models":["CLAUDE"]}`, EvaluationContext{Model: active}, false},
		{"provider not allowed", models.PolicyTypeAccessControl, `{"allowed_providers":["openai"]}`, EvaluationContext{Model: active}, true},
		{"model type not allowed", models.PolicyTypeAccessControl, `{"allowed_model_types":["code"]}`, EvaluationContext{Model: active}, true},
		{"tool calls over", models.PolicyTypeResourceLimit, `{"max_tool_calls":1}`, EvaluationContext{ToolKeys: []string{"a", "b"}}, true},
		{"output tokens over", models.PolicyTypeResourceLimit, `{"max_output_tokens":10}`, EvaluationContext{EstimatedTokensOut: 11}, true},
		{"blocked tool", models.PolicyTypeSecurity, `{"blocked_tools":["shell"]}`, EvaluationContext{ToolKeys: []string{"search", "shell"}}, true},
		{"tool outside allow list", models.PolicyTypeSecurity, `{"allowed_tools":["search"]}`, EvaluationContext{ToolKeys: []string{"browse"}}, true},
		{"inactive model", models.PolicyTypeSecurity, `{"require_active_model":true}`, EvaluationContext{Model: deprecated}, true},
		{"region not allowed", models.PolicyTypeCompliance, `{"allowed_regions":["eu"]}`, EvaluationContext{Region: "us"}, true},
		{"model unavailable in region", models.PolicyTypeCompliance, `{"block_deprecated_models":false}`, EvaluationContext{Model: active, Region: "us"}, true},
		{"model available in region", models.PolicyTypeCompliance, `{"allowed_regions":["eu"]}`, EvaluationContext{Model: active, Region: "eu"}, false},
		{"deprecated blocked", models.PolicyTypeCompliance, `{"block_deprecated_models":true}`, EvaluationContext{Model: deprecated}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPolicy("p", tt.typ, tt.config, models.PolicyActionBlock, 1)
			eval := Evaluate([]*models.GuardrailPolicy{p}, nil, nil, tt.ec)
			require.Len(t, eval.Results, 1)
			assert.Equal(t, tt.triggered, eval.Results[0].Triggered, eval.Results[0].Reason)
		})
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		policy  *models.GuardrailPolicy
		wantErr bool
	}{
		{"valid rate limit", newPolicy("p", models.PolicyTypeRateLimit, `{"max_requests_per_hour":100}`, models.PolicyActionBlock, 1), false},
		{"empty config", newPolicy("p", models.PolicyTypeSecurity, "", models.PolicyActionBlock, 1), false},
		{"unknown type", newPolicy("p", models.PolicyType("budget"), `{}`, models.PolicyActionBlock, 1), true},
		{"not json", newPolicy("p", models.PolicyTypeCompliance, `{allowed_regions`, models.PolicyActionBlock, 1), true},
		{"unknown field", newPolicy("p", models.PolicyTypeAccessControl, `{"allow_models":["x"]}`, models.PolicyActionBlock, 1), true},
		{"wrong field type", newPolicy("p", models.PolicyTypeResourceLimit, `{"max_tool_calls":"many"}`, models.PolicyActionBlock, 1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfig(tt.policy)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, services.IsInvalidRuleConfigurationError(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}
