package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/repositories"
)

const planQuotaColumns = `id, plan_id, max_requests_per_hour, max_requests_per_day, max_requests_per_month,
	max_tokens_per_month, max_tokens_per_request, max_input_tokens_per_request, max_output_tokens_per_request,
	max_tool_calls_per_request, queue_priority, allow_overage, overage_cost_per_1k_tokens,
	overage_cost_per_request, is_active, created_at, updated_at`

// PlanQuotaRepository implements the repositories.PlanQuotaRepository interface
type PlanQuotaRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPlanQuotaRepository creates a new plan quota repository
func NewPlanQuotaRepository(db *DB, logger *zap.Logger) repositories.PlanQuotaRepository {
	return &PlanQuotaRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a quota; the unique plan index rejects a second row for the plan
func (r *PlanQuotaRepository) Create(ctx context.Context, quota *models.PlanQuota) error {
	query := `
		INSERT INTO ai_plan_limits (` + planQuotaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		quota.ID,
		quota.PlanID,
		quota.MaxRequestsPerHour,
		quota.MaxRequestsPerDay,
		quota.MaxRequestsPerMonth,
		quota.MaxTokensPerMonth,
		quota.MaxTokensPerRequest,
		quota.MaxInputTokensPerRequest,
		quota.MaxOutputTokensPerRequest,
		quota.MaxToolCallsPerRequest,
		quota.QueuePriority,
		quota.AllowOverage,
		quota.OverageCostPer1KTokens,
		quota.OverageCostPerRequest,
		quota.IsActive,
		quota.CreatedAt,
		quota.UpdatedAt,
	)
	if err != nil {
		return writeError(err, "create plan quota")
	}

	r.logger.Debug("plan quota created",
		zap.String("id", quota.ID.String()),
		zap.String("plan_id", quota.PlanID.String()))
	return nil
}

// GetByID retrieves a quota by ID
func (r *PlanQuotaRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PlanQuota, error) {
	query := `SELECT ` + planQuotaColumns + ` FROM ai_plan_limits WHERE id = $1`

	quota, err := scanPlanQuota(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, readError(err, "plan quota", id)
	}
	return quota, nil
}

// GetByPlanID retrieves the active quota for a plan
func (r *PlanQuotaRepository) GetByPlanID(ctx context.Context, planID uuid.UUID) (*models.PlanQuota, error) {
	query := `SELECT ` + planQuotaColumns + ` FROM ai_plan_limits WHERE plan_id = $1 AND is_active = true`

	quota, err := scanPlanQuota(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, planID))
	if err != nil {
		return nil, readError(err, "plan quota for plan", planID)
	}
	return quota, nil
}

// List returns every quota
func (r *PlanQuotaRepository) List(ctx context.Context) ([]*models.PlanQuota, error) {
	query := `SELECT ` + planQuotaColumns + ` FROM ai_plan_limits ORDER BY created_at`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query plan quotas: %w", err)
	}
	defer rows.Close()

	var out []*models.PlanQuota
	for rows.Next() {
		quota, err := scanPlanQuota(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan quota: %w", err)
		}
		out = append(out, quota)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plan quota rows: %w", err)
	}
	return out, nil
}

// Update rewrites a quota
func (r *PlanQuotaRepository) Update(ctx context.Context, quota *models.PlanQuota) error {
	query := `
		UPDATE ai_plan_limits
		SET plan_id = $2,
		    max_requests_per_hour = $3,
		    max_requests_per_day = $4,
		    max_requests_per_month = $5,
		    max_tokens_per_month = $6,
		    max_tokens_per_request = $7,
		    max_input_tokens_per_request = $8,
		    max_output_tokens_per_request = $9,
		    max_tool_calls_per_request = $10,
		    queue_priority = $11,
		    allow_overage = $12,
		    overage_cost_per_1k_tokens = $13,
		    overage_cost_per_request = $14,
		    is_active = $15,
		    updated_at = $16
		WHERE id = $1
	`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		quota.ID,
		quota.PlanID,
		quota.MaxRequestsPerHour,
		quota.MaxRequestsPerDay,
		quota.MaxRequestsPerMonth,
		quota.MaxTokensPerMonth,
		quota.MaxTokensPerRequest,
		quota.MaxInputTokensPerRequest,
		quota.MaxOutputTokensPerRequest,
		quota.MaxToolCallsPerRequest,
		quota.QueuePriority,
		quota.AllowOverage,
		quota.OverageCostPer1KTokens,
		quota.OverageCostPerRequest,
		quota.IsActive,
		quota.UpdatedAt,
	)
	if err != nil {
		return writeError(err, "update plan quota")
	}
	if err := requireAffected(result, "plan quota", quota.ID); err != nil {
		return err
	}

	r.logger.Debug("plan quota updated", zap.String("id", quota.ID.String()))
	return nil
}

// Delete removes a quota
func (r *PlanQuotaRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM ai_plan_limits WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete plan quota: %w", err)
	}
	if err := requireAffected(result, "plan quota", id); err != nil {
		return err
	}

	r.logger.Debug("plan quota deleted", zap.String("id", id.String()))
	return nil
}

func scanPlanQuota(row rowScanner) (*models.PlanQuota, error) {
	quota := &models.PlanQuota{}
	err := row.Scan(
		&quota.ID,
		&quota.PlanID,
		&quota.MaxRequestsPerHour,
		&quota.MaxRequestsPerDay,
		&quota.MaxRequestsPerMonth,
		&quota.MaxTokensPerMonth,
		&quota.MaxTokensPerRequest,
		&quota.MaxInputTokensPerRequest,
		&quota.MaxOutputTokensPerRequest,
		&quota.MaxToolCallsPerRequest,
		&quota.QueuePriority,
		&quota.AllowOverage,
		&quota.OverageCostPer1KTokens,
		&quota.OverageCostPerRequest,
		&quota.IsActive,
		&quota.CreatedAt,
		&quota.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return quota, nil
}
