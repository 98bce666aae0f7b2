package models

import (
	"time"

	"github.com/google/uuid"
)

// Unlimited is the sentinel value meaning a quota dimension has no limit
const Unlimited int64 = -1

// PlanQuota holds the AI usage limits attached to a subscription plan
type PlanQuota struct {
	ID     uuid.UUID `json:"id" db:"id"`
	PlanID uuid.UUID `json:"plan_id" db:"plan_id" validate:"required"`

	// Window limits
	MaxRequestsPerHour  int64 `json:"max_requests_per_hour" db:"max_requests_per_hour" validate:"gte=-1"`
	MaxRequestsPerDay   int64 `json:"max_requests_per_day" db:"max_requests_per_day" validate:"gte=-1"`
	MaxRequestsPerMonth int64 `json:"max_requests_per_month" db:"max_requests_per_month" validate:"gte=-1"`
	MaxTokensPerMonth   int64 `json:"max_tokens_per_month" db:"max_tokens_per_month" validate:"gte=-1"`

	// Per-request limits
	MaxTokensPerRequest       int64 `json:"max_tokens_per_request" db:"max_tokens_per_request" validate:"gte=-1"`
	MaxInputTokensPerRequest  int64 `json:"max_input_tokens_per_request" db:"max_input_tokens_per_request" validate:"gte=-1"`
	MaxOutputTokensPerRequest int64 `json:"max_output_tokens_per_request" db:"max_output_tokens_per_request" validate:"gte=-1"`
	MaxToolCallsPerRequest    int64 `json:"max_tool_calls_per_request" db:"max_tool_calls_per_request" validate:"gte=-1"`

	QueuePriority int `json:"queue_priority" db:"queue_priority"`

	// Overage
	AllowOverage           bool    `json:"allow_overage" db:"allow_overage"`
	OverageCostPer1KTokens float64 `json:"overage_cost_per_1k_tokens" db:"overage_cost_per_1k_tokens" validate:"gte=0"`
	OverageCostPerRequest  float64 `json:"overage_cost_per_request" db:"overage_cost_per_request" validate:"gte=0"`

	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the PlanQuota model
func (PlanQuota) TableName() string {
	return "ai_plan_limits"
}

// NewPlanQuota creates an active quota for the plan with every dimension unlimited
func NewPlanQuota(planID uuid.UUID) *PlanQuota {
	now := time.Now()
	return &PlanQuota{
		ID:                        uuid.New(),
		PlanID:                    planID,
		MaxRequestsPerHour:        Unlimited,
		MaxRequestsPerDay:         Unlimited,
		MaxRequestsPerMonth:       Unlimited,
		MaxTokensPerMonth:         Unlimited,
		MaxTokensPerRequest:       Unlimited,
		MaxInputTokensPerRequest:  Unlimited,
		MaxOutputTokensPerRequest: Unlimited,
		MaxToolCallsPerRequest:    Unlimited,
		IsActive:                  true,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
}

// IsUnlimited reports whether a limit value carries the unlimited sentinel
func IsUnlimited(limit int64) bool {
	return limit == Unlimited
}
