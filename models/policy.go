package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PolicyType represents different types of guardrail policies
type PolicyType string

const (
	PolicyTypeRateLimit     PolicyType = "rate_limit"
	PolicyTypeAccessControl PolicyType = "access_control"
	PolicyTypeResourceLimit PolicyType = "resource_limit"
	PolicyTypeSecurity      PolicyType = "security"
	PolicyTypeCompliance    PolicyType = "compliance"
)

// PolicyAction is what happens when a policy triggers
type PolicyAction string

const (
	PolicyActionBlock    PolicyAction = "block"
	PolicyActionWarn     PolicyAction = "warn"
	PolicyActionLog      PolicyAction = "log"
	PolicyActionThrottle PolicyAction = "throttle"
)

// GuardrailPolicy is a scoped rule evaluated before an AI request is dispatched
type GuardrailPolicy struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Key          string          `json:"key" db:"key" validate:"required,max=100"`
	Name         string          `json:"name" db:"name" validate:"required,max=200"`
	Type         PolicyType      `json:"type" db:"type" validate:"required,oneof=rate_limit access_control resource_limit security compliance"`
	Config       json.RawMessage `json:"config" db:"config"` // JSONB, interpreted per type
	Action       PolicyAction    `json:"action" db:"action" validate:"required,oneof=block warn log throttle"`
	ErrorMessage string          `json:"error_message,omitempty" db:"error_message"`
	Priority     int             `json:"priority" db:"priority"`
	Scope
	IsEnabled bool      `json:"is_enabled" db:"is_enabled"`
	IsSystem  bool      `json:"is_system" db:"is_system"` // System policies cannot be deleted
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the GuardrailPolicy model
func (GuardrailPolicy) TableName() string {
	return "ai_policies"
}

// NewGuardrailPolicy creates a new enabled, global policy
func NewGuardrailPolicy(key, name string, policyType PolicyType, config json.RawMessage, action PolicyAction, priority int) *GuardrailPolicy {
	now := time.Now()
	return &GuardrailPolicy{
		ID:        uuid.New(),
		Key:       key,
		Name:      name,
		Type:      policyType,
		Config:    config,
		Action:    action,
		Priority:  priority,
		IsEnabled: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RuleID, RulePriority, RuleScope and RuleEnabled let the scope resolver rank policies
func (p *GuardrailPolicy) RuleID() uuid.UUID { return p.ID }
func (p *GuardrailPolicy) RulePriority() int { return p.Priority }
func (p *GuardrailPolicy) RuleScope() Scope  { return p.Scope }
func (p *GuardrailPolicy) RuleEnabled() bool { return p.IsEnabled }

// RateLimitConfig represents rate limiting policy configuration
type RateLimitConfig struct {
	MaxRequestsPerMinute int64 `json:"max_requests_per_minute,omitempty"`
	MaxRequestsPerHour   int64 `json:"max_requests_per_hour,omitempty"`
	MaxTokensPerMinute   int64 `json:"max_tokens_per_minute,omitempty"`
}

// AccessControlConfig restricts which models a scope may use
type AccessControlConfig struct {
	AllowedModels     []string `json:"allowed_models,omitempty"`
	BlockedModels     []string `json:"blocked_models,omitempty"`
	AllowedProviders  []string `json:"allowed_providers,omitempty"`
	AllowedModelTypes []string `json:"allowed_model_types,omitempty"`
}

// ResourceLimitConfig caps the size of a single request
type ResourceLimitConfig struct {
	MaxTokensPerRequest int64 `json:"max_tokens_per_request,omitempty"`
	MaxInputTokens      int64 `json:"max_input_tokens,omitempty"`
	MaxOutputTokens     int64 `json:"max_output_tokens,omitempty"`
	MaxToolCalls        int64 `json:"max_tool_calls,omitempty"`
}

// SecurityConfig restricts tool usage
type SecurityConfig struct {
	BlockedTools       []string `json:"blocked_tools,omitempty"`
	AllowedTools       []string `json:"allowed_tools,omitempty"`
	RequireActiveModel bool     `json:"require_active_model,omitempty"`
}

// ComplianceConfig restricts data residency and model lifecycle
type ComplianceConfig struct {
	AllowedRegions        []string `json:"allowed_regions,omitempty"`
	BlockDeprecatedModels bool     `json:"block_deprecated_models,omitempty"`
}
