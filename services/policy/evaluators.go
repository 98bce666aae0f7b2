package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/services"
)

type evaluatorFunc func(raw json.RawMessage, ec EvaluationContext) (bool, string, error)

var evaluators = map[models.PolicyType]evaluatorFunc{
	models.PolicyTypeRateLimit:     evaluateRateLimit,
	models.PolicyTypeAccessControl: evaluateAccessControl,
	models.PolicyTypeResourceLimit: evaluateResourceLimit,
	models.PolicyTypeSecurity:      evaluateSecurity,
	models.PolicyTypeCompliance:    evaluateCompliance,
}

func isEmptyConfig(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}"))
}

// decodeConfig rejects unknown keys so typos surface at write time
func decodeConfig(raw json.RawMessage, out interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func evaluateRateLimit(raw json.RawMessage, ec EvaluationContext) (bool, string, error) {
	var cfg models.RateLimitConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return false, "", err
	}
	switch {
	case cfg.MaxRequestsPerMinute > 0 && ec.RequestsLastMinute >= cfg.MaxRequestsPerMinute:
		return true, fmt.Sprintf("requests per minute limit %d reached", cfg.MaxRequestsPerMinute), nil
	case cfg.MaxRequestsPerHour > 0 && ec.RequestsLastHour >= cfg.MaxRequestsPerHour:
		return true, fmt.Sprintf("requests per hour limit %d reached", cfg.MaxRequestsPerHour), nil
	case cfg.MaxTokensPerMinute > 0 && ec.TokensLastMinute >= cfg.MaxTokensPerMinute:
		return true, fmt.Sprintf("tokens per minute limit %d reached", cfg.MaxTokensPerMinute), nil
	}
	return false, "", nil
}

func evaluateAccessControl(raw json.RawMessage, ec EvaluationContext) (bool, string, error) {
	var cfg models.AccessControlConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return false, "", err
	}
	key := ec.modelKey()
	if contains(cfg.BlockedModels, key) {
		return true, "model " + key + " is blocked", nil
	}
	if len(cfg.AllowedModels) > 0 && !contains(cfg.AllowedModels, key) {
		return true, "model " + key + " is not in the allowed list", nil
	}
	if ec.Model != nil {
		if len(cfg.AllowedProviders) > 0 && !contains(cfg.AllowedProviders, ec.Model.Provider) {
			return true, "provider " + ec.Model.Provider + " is not allowed", nil
		}
		if len(cfg.AllowedModelTypes) > 0 && !contains(cfg.AllowedModelTypes, string(ec.Model.Type)) {
			return true, "model type " + string(ec.Model.Type) + " is not allowed", nil
		}
	}
	return false, "", nil
}

func evaluateResourceLimit(raw json.RawMessage, ec EvaluationContext) (bool, string, error) {
	var cfg models.ResourceLimitConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return false, "", err
	}
	total := ec.EstimatedTokensIn + ec.EstimatedTokensOut
	switch {
	case cfg.MaxTokensPerRequest > 0 && total > cfg.MaxTokensPerRequest:
		return true, fmt.Sprintf("request tokens %d exceed %d", total, cfg.MaxTokensPerRequest), nil
	case cfg.MaxInputTokens > 0 && ec.EstimatedTokensIn > cfg.MaxInputTokens:
		return true, fmt.Sprintf("input tokens %d exceed %d", ec.EstimatedTokensIn, cfg.MaxInputTokens), nil
	case cfg.MaxOutputTokens > 0 && ec.EstimatedTokensOut > cfg.MaxOutputTokens:
		return true, fmt.Sprintf("output tokens %d exceed %d", ec.EstimatedTokensOut, cfg.MaxOutputTokens), nil
	case cfg.MaxToolCalls > 0 && int64(len(ec.ToolKeys)) > cfg.MaxToolCalls:
		return true, fmt.Sprintf("tool calls %d exceed %d", len(ec.ToolKeys), cfg.MaxToolCalls), nil
	}
	return false, "", nil
}

func evaluateSecurity(raw json.RawMessage, ec EvaluationContext) (bool, string, error) {
	var cfg models.SecurityConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return false, "", err
	}
	for _, tool := range ec.ToolKeys {
		if contains(cfg.BlockedTools, tool) {
			return true, "tool " + tool + " is blocked", nil
		}
		if len(cfg.AllowedTools) > 0 && !contains(cfg.AllowedTools, tool) {
			return true, "tool " + tool + " is not in the allowed list", nil
		}
	}
	if cfg.RequireActiveModel && ec.Model != nil && !ec.Model.IsActive() {
		return true, "model " + ec.Model.Key + " is " + string(ec.Model.Status), nil
	}
	return false, "", nil
}

func evaluateCompliance(raw json.RawMessage, ec EvaluationContext) (bool, string, error) {
	var cfg models.ComplianceConfig
	if err := decodeConfig(raw, &cfg); err != nil {
		return false, "", err
	}
	if len(cfg.AllowedRegions) > 0 && ec.Region != "" && !contains(cfg.AllowedRegions, ec.Region) {
		return true, "region " + ec.Region + " is not allowed", nil
	}
	if ec.Model != nil {
		if !ec.Model.AvailableIn(ec.Region) {
			return true, "model " + ec.Model.Key + " is not available in " + ec.Region, nil
		}
		if cfg.BlockDeprecatedModels && ec.Model.Status == models.ModelStatusDeprecated {
			return true, "model " + ec.Model.Key + " is deprecated", nil
		}
	}
	return false, "", nil
}

// ValidateConfig checks at write time that a policy's config decodes for its type
func ValidateConfig(p *models.GuardrailPolicy) error {
	eval, ok := evaluators[p.Type]
	if !ok {
		return services.InvalidRuleConfiguration("unknown policy type "+string(p.Type), nil)
	}
	if isEmptyConfig(p.Config) {
		return nil
	}
	if !json.Valid(p.Config) {
		return services.InvalidRuleConfiguration("policy config is not valid JSON", nil)
	}
	if _, _, err := eval(p.Config, EvaluationContext{}); err != nil {
		return services.InvalidRuleConfiguration("policy config does not match type "+string(p.Type), err)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
