package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// FailureKind is the category of a failed AI dispatch
type FailureKind string

const (
	FailureTimeout          FailureKind = "timeout"
	FailureRateLimit        FailureKind = "rate_limit"
	FailureError5xx         FailureKind = "error_5xx"
	FailureModelUnavailable FailureKind = "model_unavailable"
	FailureQuotaExceeded    FailureKind = "quota_exceeded"
)

// ValidFailureKinds lists every trigger a fallback rule may name
var ValidFailureKinds = []FailureKind{
	FailureTimeout,
	FailureRateLimit,
	FailureError5xx,
	FailureModelUnavailable,
	FailureQuotaExceeded,
}

// IsValid reports whether the kind is a known trigger
func (k FailureKind) IsValid() bool {
	for _, v := range ValidFailureKinds {
		if k == v {
			return true
		}
	}
	return false
}

// FallbackRule maps a failing primary model onto a fallback model
type FallbackRule struct {
	ID                 uuid.UUID      `json:"id" db:"id"`
	PrimaryModelID     uuid.UUID      `json:"primary_model_id" db:"primary_model_id" validate:"required"`
	FallbackModelID    uuid.UUID      `json:"fallback_model_id" db:"fallback_model_id" validate:"required,nefield=PrimaryModelID"`
	TriggerOn          pq.StringArray `json:"trigger_on" db:"trigger_on" validate:"dive,oneof=timeout rate_limit error_5xx model_unavailable quota_exceeded"` // Empty matches any failure
	TimeoutThresholdMs *int64         `json:"timeout_threshold_ms,omitempty" db:"timeout_threshold_ms" validate:"omitempty,gt=0"`
	ErrorRateThreshold *float64       `json:"error_rate_threshold,omitempty" db:"error_rate_threshold" validate:"omitempty,gte=0,lte=100"` // Percent
	RetryCount         int            `json:"retry_count" db:"retry_count" validate:"gte=0,lte=10"`
	RetryDelayMs       int64          `json:"retry_delay_ms" db:"retry_delay_ms" validate:"gte=0"`
	PreserveContext    bool           `json:"preserve_context" db:"preserve_context"`
	Priority           int            `json:"priority" db:"priority"`
	Scope
	IsEnabled bool      `json:"is_enabled" db:"is_enabled"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the FallbackRule model
func (FallbackRule) TableName() string {
	return "ai_fallback_rules"
}

// NewFallbackRule creates an enabled, global rule that fires on any failure
func NewFallbackRule(primaryModelID, fallbackModelID uuid.UUID, priority int) *FallbackRule {
	now := time.Now()
	return &FallbackRule{
		ID:              uuid.New(),
		PrimaryModelID:  primaryModelID,
		FallbackModelID: fallbackModelID,
		TriggerOn:       pq.StringArray{},
		Priority:        priority,
		IsEnabled:       true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (r *FallbackRule) RuleID() uuid.UUID { return r.ID }
func (r *FallbackRule) RulePriority() int { return r.Priority }
func (r *FallbackRule) RuleScope() Scope  { return r.Scope }
func (r *FallbackRule) RuleEnabled() bool { return r.IsEnabled }

// TriggersOn reports whether the rule names the failure kind.
// An empty trigger set matches every kind.
func (r *FallbackRule) TriggersOn(kind FailureKind) bool {
	if len(r.TriggerOn) == 0 {
		return true
	}
	for _, t := range r.TriggerOn {
		if FailureKind(t) == kind {
			return true
		}
	}
	return false
}

// HasTrigger reports whether the kind is named explicitly
func (r *FallbackRule) HasTrigger(kind FailureKind) bool {
	for _, t := range r.TriggerOn {
		if FailureKind(t) == kind {
			return true
		}
	}
	return false
}
