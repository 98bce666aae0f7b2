// Package quota decides whether a request fits a plan's AI usage limits.
package quota

import (
	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/services"
	"github.com/upb/ai-governance/services/cost"
)

// Quota dimensions named in QuotaExceeded errors
const (
	DimensionRequestsPerMonth       = "requests_per_month"
	DimensionTokensPerMonth         = "tokens_per_month"
	DimensionRequestsPerHour        = "requests_per_hour"
	DimensionRequestsPerDay         = "requests_per_day"
	DimensionTokensPerRequest       = "tokens_per_request"
	DimensionInputTokensPerRequest  = "input_tokens_per_request"
	DimensionOutputTokensPerRequest = "output_tokens_per_request"
	DimensionToolCallsPerRequest    = "tool_calls_per_request"
)

// Verdict is the outcome of an admission check
type Verdict string

const (
	Allowed            Verdict = "allowed"
	AllowedWithOverage Verdict = "allowed_with_overage"
	Rejected           Verdict = "rejected"
)

// Decision is the result of Admit
type Decision struct {
	Verdict       Verdict `json:"verdict"`
	OverageCost   float64 `json:"overage_cost"`
	ExtraRequests int64   `json:"extra_requests"`
	ExtraTokens   int64   `json:"extra_tokens"`
	// Dimension names the first exhausted limit when rejected
	Dimension string `json:"dimension,omitempty"`
	Limit     int64  `json:"limit,omitempty"`
	Observed  int64  `json:"observed,omitempty"`
}

// Admitted reports whether the request may proceed
func (d Decision) Admitted() bool {
	return d.Verdict != Rejected
}

// Err returns a QuotaExceeded error for a rejection, nil otherwise
func (d Decision) Err() error {
	if d.Verdict != Rejected {
		return nil
	}
	return services.QuotaExceeded(d.Dimension, d.Limit, d.Observed)
}

// Admit decides a request against the plan's monthly limits given month-to-date
// usage. A nil quota admits everything.
func Admit(q *models.PlanQuota, currentRequests, currentTokens, estimatedTokens int64) Decision {
	if q == nil {
		return Decision{Verdict: Allowed}
	}

	var extraRequests, extraTokens int64
	over := false

	if !models.IsUnlimited(q.MaxRequestsPerMonth) && currentRequests >= q.MaxRequestsPerMonth {
		if !q.AllowOverage {
			return rejected(DimensionRequestsPerMonth, q.MaxRequestsPerMonth, currentRequests)
		}
		over = true
		extraRequests = clamp(currentRequests + 1 - q.MaxRequestsPerMonth)
	}

	projected := currentTokens + estimatedTokens
	if !models.IsUnlimited(q.MaxTokensPerMonth) && projected >= q.MaxTokensPerMonth {
		if !q.AllowOverage {
			return rejected(DimensionTokensPerMonth, q.MaxTokensPerMonth, projected)
		}
		over = true
		extraTokens = clamp(projected - q.MaxTokensPerMonth)
	}

	if !over {
		return Decision{Verdict: Allowed}
	}
	return Decision{
		Verdict:       AllowedWithOverage,
		OverageCost:   cost.OverageCost(q, extraRequests, extraTokens),
		ExtraRequests: extraRequests,
		ExtraTokens:   extraTokens,
	}
}

// CheckRequestShape validates the per-request limits of the plan
func CheckRequestShape(q *models.PlanQuota, tokensIn, tokensOut, toolCalls int64) error {
	if q == nil {
		return nil
	}
	checks := []struct {
		dimension string
		limit     int64
		observed  int64
	}{
		{DimensionTokensPerRequest, q.MaxTokensPerRequest, tokensIn + tokensOut},
		{DimensionInputTokensPerRequest, q.MaxInputTokensPerRequest, tokensIn},
		{DimensionOutputTokensPerRequest, q.MaxOutputTokensPerRequest, tokensOut},
		{DimensionToolCallsPerRequest, q.MaxToolCallsPerRequest, toolCalls},
	}
	for _, c := range checks {
		if !models.IsUnlimited(c.limit) && c.observed > c.limit {
			return services.QuotaExceeded(c.dimension, c.limit, c.observed)
		}
	}
	return nil
}

// CheckWindows validates hourly and daily request counts, which already
// include the current request, against the plan's window limits.
func CheckWindows(q *models.PlanQuota, hourly, daily int64) error {
	if q == nil {
		return nil
	}
	if !models.IsUnlimited(q.MaxRequestsPerHour) && hourly > q.MaxRequestsPerHour {
		return services.QuotaExceeded(DimensionRequestsPerHour, q.MaxRequestsPerHour, hourly)
	}
	if !models.IsUnlimited(q.MaxRequestsPerDay) && daily > q.MaxRequestsPerDay {
		return services.QuotaExceeded(DimensionRequestsPerDay, q.MaxRequestsPerDay, daily)
	}
	return nil
}

func rejected(dimension string, limit, observed int64) Decision {
	return Decision{Verdict: Rejected, Dimension: dimension, Limit: limit, Observed: observed}
}

func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
