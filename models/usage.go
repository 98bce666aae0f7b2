package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UsageDateLayout is the calendar-day key format for usage rows
const UsageDateLayout = "2006-01-02"

// ToolCounts maps a tool key to the number of times it was invoked
type ToolCounts map[string]int64

// Value implements driver.Valuer for JSONB storage
func (t ToolCounts) Value() (driver.Value, error) {
	if t == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner for JSONB storage
func (t *ToolCounts) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*t = ToolCounts{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for tools_invoked: %T", src)
	}
	out := ToolCounts{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to decode tools_invoked: %w", err)
	}
	*t = out
	return nil
}

// UsageKey identifies one daily usage counter
type UsageKey struct {
	TenantID uuid.UUID  `json:"tenant_id"`
	ModelID  *uuid.UUID `json:"model_id,omitempty"` // Nil aggregates usage not attributed to a model
	Date     time.Time  `json:"date"`
}

// NewUsageKey builds a key truncated to the UTC calendar day
func NewUsageKey(tenantID uuid.UUID, modelID *uuid.UUID, at time.Time) UsageKey {
	return UsageKey{TenantID: tenantID, ModelID: modelID, Date: TruncateDay(at)}
}

// String renders the key for use as a map key or log field
func (k UsageKey) String() string {
	model := "none"
	if k.ModelID != nil {
		model = k.ModelID.String()
	}
	return k.TenantID.String() + "/" + model + "/" + k.Date.Format(UsageDateLayout)
}

// TruncateDay returns midnight UTC of the given instant's day
func TruncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart returns the first day of the instant's UTC month
func MonthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// UsageCounter accumulates one tenant's usage of one model on one day.
// Every accumulator only ever grows.
type UsageCounter struct {
	ID                 uuid.UUID  `json:"id" db:"id"`
	TenantID           uuid.UUID  `json:"tenant_id" db:"tenant_id"`
	ModelID            *uuid.UUID `json:"model_id,omitempty" db:"model_id"`
	Date               time.Time  `json:"date" db:"date"`
	RequestsCount      int64      `json:"requests_count" db:"requests_count"`
	SuccessfulRequests int64      `json:"successful_requests" db:"successful_requests"`
	FailedRequests     int64      `json:"failed_requests" db:"failed_requests"`
	TokensIn           int64      `json:"tokens_in" db:"tokens_in"`
	TokensOut          int64      `json:"tokens_out" db:"tokens_out"`
	TotalTokens        int64      `json:"total_tokens" db:"total_tokens"`
	ToolCallsCount     int64      `json:"tool_calls_count" db:"tool_calls_count"`
	ToolsInvoked       ToolCounts `json:"tools_invoked" db:"tools_invoked"`
	TotalLatencyMs     int64      `json:"total_latency_ms" db:"total_latency_ms"` // Successful requests only
	TimeoutCount       int64      `json:"timeout_count" db:"timeout_count"`
	RateLimitHits      int64      `json:"rate_limit_hits" db:"rate_limit_hits"`
	CostEstimated      float64    `json:"cost_estimated" db:"cost_estimated"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the UsageCounter model
func (UsageCounter) TableName() string {
	return "ai_usage_daily"
}

// NewUsageCounter creates a zeroed counter for the key
func NewUsageCounter(key UsageKey) *UsageCounter {
	now := time.Now()
	return &UsageCounter{
		ID:           uuid.New(),
		TenantID:     key.TenantID,
		ModelID:      key.ModelID,
		Date:         TruncateDay(key.Date),
		ToolsInvoked: ToolCounts{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Key returns the counter's identity
func (c *UsageCounter) Key() UsageKey {
	return UsageKey{TenantID: c.TenantID, ModelID: c.ModelID, Date: c.Date}
}

// AverageLatencyMs is total latency over successful requests, zero when none succeeded
func (c *UsageCounter) AverageLatencyMs() float64 {
	if c.SuccessfulRequests == 0 {
		return 0
	}
	return float64(c.TotalLatencyMs) / float64(c.SuccessfulRequests)
}

// Outcome is one reported dispatch result to be folded into a counter
type Outcome struct {
	Requests    int64   `json:"requests"`
	TokensIn    int64   `json:"tokens_in"`
	TokensOut   int64   `json:"tokens_out"`
	Success     bool    `json:"success"`
	LatencyMs   int64   `json:"latency_ms"`
	ToolKey     string  `json:"tool_key,omitempty"`
	ToolCalls   int64   `json:"tool_calls"`
	Timeout     bool    `json:"timeout"`
	RateLimited bool    `json:"rate_limited"`
	Cost        float64 `json:"cost"`
}

// Apply folds the outcome into the counter. Negative deltas are ignored.
func (c *UsageCounter) Apply(o Outcome) {
	c.RequestsCount += nonNegative(o.Requests)
	if o.Success {
		c.SuccessfulRequests += nonNegative(o.Requests)
		c.TotalLatencyMs += nonNegative(o.LatencyMs)
	} else {
		c.FailedRequests += nonNegative(o.Requests)
	}
	c.TokensIn += nonNegative(o.TokensIn)
	c.TokensOut += nonNegative(o.TokensOut)
	c.TotalTokens += nonNegative(o.TokensIn) + nonNegative(o.TokensOut)
	c.ToolCallsCount += nonNegative(o.ToolCalls)
	if o.ToolKey != "" {
		if c.ToolsInvoked == nil {
			c.ToolsInvoked = ToolCounts{}
		}
		c.ToolsInvoked[o.ToolKey]++
	}
	if o.Timeout {
		c.TimeoutCount++
	}
	if o.RateLimited {
		c.RateLimitHits++
	}
	if o.Cost > 0 {
		c.CostEstimated += o.Cost
	}
	c.UpdatedAt = time.Now()
}

// Clone returns a deep copy
func (c *UsageCounter) Clone() *UsageCounter {
	cp := *c
	cp.ToolsInvoked = make(ToolCounts, len(c.ToolsInvoked))
	for k, v := range c.ToolsInvoked {
		cp.ToolsInvoked[k] = v
	}
	return &cp
}

// UsageTotals sums counters over a period
type UsageTotals struct {
	TenantID           uuid.UUID  `json:"tenant_id"`
	From               time.Time  `json:"from"`
	To                 time.Time  `json:"to"`
	Requests           int64      `json:"requests"`
	SuccessfulRequests int64      `json:"successful_requests"`
	FailedRequests     int64      `json:"failed_requests"`
	TokensIn           int64      `json:"tokens_in"`
	TokensOut          int64      `json:"tokens_out"`
	TotalTokens        int64      `json:"total_tokens"`
	ToolCalls          int64      `json:"tool_calls"`
	ToolsInvoked       ToolCounts `json:"tools_invoked"`
	TotalLatencyMs     int64      `json:"total_latency_ms"`
	TimeoutCount       int64      `json:"timeout_count"`
	RateLimitHits      int64      `json:"rate_limit_hits"`
	Cost               float64    `json:"cost"`
}

// Add folds a counter into the totals
func (t *UsageTotals) Add(c *UsageCounter) {
	t.Requests += c.RequestsCount
	t.SuccessfulRequests += c.SuccessfulRequests
	t.FailedRequests += c.FailedRequests
	t.TokensIn += c.TokensIn
	t.TokensOut += c.TokensOut
	t.TotalTokens += c.TotalTokens
	t.ToolCalls += c.ToolCallsCount
	t.TotalLatencyMs += c.TotalLatencyMs
	t.TimeoutCount += c.TimeoutCount
	t.RateLimitHits += c.RateLimitHits
	t.Cost += c.CostEstimated
	if len(c.ToolsInvoked) > 0 && t.ToolsInvoked == nil {
		t.ToolsInvoked = ToolCounts{}
	}
	for k, v := range c.ToolsInvoked {
		t.ToolsInvoked[k] += v
	}
}

// AverageLatencyMs is total latency over successful requests
func (t *UsageTotals) AverageLatencyMs() float64 {
	if t.SuccessfulRequests == 0 {
		return 0
	}
	return float64(t.TotalLatencyMs) / float64(t.SuccessfulRequests)
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
