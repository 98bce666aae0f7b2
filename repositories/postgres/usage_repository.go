package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/repositories"
)

const usageColumns = `id, tenant_id, model_id, date, requests_count, successful_requests, failed_requests,
	tokens_in, tokens_out, total_tokens, tool_calls_count, tools_invoked, total_latency_ms,
	timeout_count, rate_limit_hits, cost_estimated, created_at, updated_at`

// usageConflictTarget matches the unique expression index on ai_usage_daily
const usageConflictTarget = `(tenant_id, (COALESCE(model_id, '00000000-0000-0000-0000-000000000000'::uuid)), date)`

// UsageRepository implements the repositories.UsageRepository interface.
// Every write is a single upsert statement so concurrent increments never lose updates.
type UsageRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUsageRepository creates a new usage repository
func NewUsageRepository(db *DB, logger *zap.Logger) repositories.UsageRepository {
	return &UsageRepository{
		db:     db,
		logger: logger,
	}
}

// GetOrCreate returns the counter for the key, inserting a zeroed row on first use
func (r *UsageRepository) GetOrCreate(ctx context.Context, key models.UsageKey) (*models.UsageCounter, error) {
	row := models.NewUsageCounter(key)

	query := `
		INSERT INTO ai_usage_daily (id, tenant_id, model_id, date, tools_invoked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '{}'::jsonb, $5, $5)
		ON CONFLICT ` + usageConflictTarget + `
		DO UPDATE SET updated_at = ai_usage_daily.updated_at
		RETURNING ` + usageColumns

	counter, err := scanUsage(GetExecutor(ctx, r.db).QueryRowContext(ctx, query,
		row.ID,
		row.TenantID,
		row.ModelID,
		row.Date,
		row.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to get or create usage counter %s: %w", key, err)
	}
	return counter, nil
}

// Increment adds the outcome's deltas to the key's row and returns the new totals
func (r *UsageRepository) Increment(ctx context.Context, key models.UsageKey, outcome models.Outcome) (*models.UsageCounter, error) {
	delta := models.NewUsageCounter(key)
	delta.Apply(outcome)

	query := `
		INSERT INTO ai_usage_daily (` + usageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
		ON CONFLICT ` + usageConflictTarget + `
		DO UPDATE SET
			requests_count = ai_usage_daily.requests_count + EXCLUDED.requests_count,
			successful_requests = ai_usage_daily.successful_requests + EXCLUDED.successful_requests,
			failed_requests = ai_usage_daily.failed_requests + EXCLUDED.failed_requests,
			tokens_in = ai_usage_daily.tokens_in + EXCLUDED.tokens_in,
			tokens_out = ai_usage_daily.tokens_out + EXCLUDED.tokens_out,
			total_tokens = ai_usage_daily.total_tokens + EXCLUDED.total_tokens,
			tool_calls_count = ai_usage_daily.tool_calls_count + EXCLUDED.tool_calls_count,
			tools_invoked = (
				SELECT COALESCE(jsonb_object_agg(t.key, t.total), '{}'::jsonb)
				FROM (
					SELECT e.key, SUM(e.value::bigint) AS total
					FROM (
						SELECT * FROM jsonb_each_text(ai_usage_daily.tools_invoked)
						UNION ALL
						SELECT * FROM jsonb_each_text(EXCLUDED.tools_invoked)
					) e
					GROUP BY e.key
				) t
			),
			total_latency_ms = ai_usage_daily.total_latency_ms + EXCLUDED.total_latency_ms,
			timeout_count = ai_usage_daily.timeout_count + EXCLUDED.timeout_count,
			rate_limit_hits = ai_usage_daily.rate_limit_hits + EXCLUDED.rate_limit_hits,
			cost_estimated = ai_usage_daily.cost_estimated + EXCLUDED.cost_estimated,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + usageColumns

	counter, err := scanUsage(GetExecutor(ctx, r.db).QueryRowContext(ctx, query,
		delta.ID,
		delta.TenantID,
		delta.ModelID,
		delta.Date,
		delta.RequestsCount,
		delta.SuccessfulRequests,
		delta.FailedRequests,
		delta.TokensIn,
		delta.TokensOut,
		delta.TotalTokens,
		delta.ToolCallsCount,
		delta.ToolsInvoked,
		delta.TotalLatencyMs,
		delta.TimeoutCount,
		delta.RateLimitHits,
		delta.CostEstimated,
		delta.UpdatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to increment usage counter %s: %w", key, err)
	}

	r.logger.Debug("usage counter incremented",
		zap.String("key", key.String()),
		zap.Int64("requests_count", counter.RequestsCount))
	return counter, nil
}

// ListByTenant returns the tenant's counters with from <= date < to
func (r *UsageRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*models.UsageCounter, error) {
	query := `
		SELECT ` + usageColumns + `
		FROM ai_usage_daily
		WHERE tenant_id = $1 AND date >= $2 AND date < $3
		ORDER BY date ASC, model_id ASC NULLS FIRST
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage counters: %w", err)
	}
	defer rows.Close()

	var out []*models.UsageCounter
	for rows.Next() {
		counter, err := scanUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage counter: %w", err)
		}
		out = append(out, counter)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage rows: %w", err)
	}
	return out, nil
}

// DeleteOlderThan removes counters dated before the cutoff
func (r *UsageRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM ai_usage_daily WHERE date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old usage data: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

func scanUsage(row rowScanner) (*models.UsageCounter, error) {
	c := &models.UsageCounter{}
	err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.ModelID,
		&c.Date,
		&c.RequestsCount,
		&c.SuccessfulRequests,
		&c.FailedRequests,
		&c.TokensIn,
		&c.TokensOut,
		&c.TotalTokens,
		&c.ToolCallsCount,
		&c.ToolsInvoked,
		&c.TotalLatencyMs,
		&c.TimeoutCount,
		&c.RateLimitHits,
		&c.CostEstimated,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}
