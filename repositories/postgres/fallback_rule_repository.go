package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/repositories"
)

const fallbackRuleColumns = `id, primary_model_id, fallback_model_id, trigger_on, timeout_threshold_ms,
	error_rate_threshold, retry_count, retry_delay_ms, preserve_context, priority,
	tenant_id, plan_id, is_enabled, created_at, updated_at`

// FallbackRuleRepository implements the repositories.FallbackRuleRepository interface
type FallbackRuleRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewFallbackRuleRepository creates a new fallback rule repository
func NewFallbackRuleRepository(db *DB, logger *zap.Logger) repositories.FallbackRuleRepository {
	return &FallbackRuleRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a fallback rule
func (r *FallbackRuleRepository) Create(ctx context.Context, rule *models.FallbackRule) error {
	query := `
		INSERT INTO ai_fallback_rules (` + fallbackRuleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		rule.ID,
		rule.PrimaryModelID,
		rule.FallbackModelID,
		rule.TriggerOn,
		rule.TimeoutThresholdMs,
		rule.ErrorRateThreshold,
		rule.RetryCount,
		rule.RetryDelayMs,
		rule.PreserveContext,
		rule.Priority,
		rule.TenantID,
		rule.PlanID,
		rule.IsEnabled,
		rule.CreatedAt,
		rule.UpdatedAt,
	)
	if err != nil {
		return writeError(err, "create fallback rule")
	}

	r.logger.Debug("fallback rule created",
		zap.String("id", rule.ID.String()),
		zap.String("primary_model_id", rule.PrimaryModelID.String()))
	return nil
}

// GetByID retrieves a fallback rule by ID
func (r *FallbackRuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.FallbackRule, error) {
	query := `SELECT ` + fallbackRuleColumns + ` FROM ai_fallback_rules WHERE id = $1`

	rule, err := scanFallbackRule(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, readError(err, "fallback rule", id)
	}
	return rule, nil
}

// List returns every fallback rule
func (r *FallbackRuleRepository) List(ctx context.Context) ([]*models.FallbackRule, error) {
	query := `SELECT ` + fallbackRuleColumns + ` FROM ai_fallback_rules ORDER BY priority ASC, id ASC`
	return r.queryRules(ctx, query)
}

// ListApplicable retrieves enabled rules whose scope admits the tenant/plan pair
func (r *FallbackRuleRepository) ListApplicable(ctx context.Context, tenantID, planID *uuid.UUID) ([]*models.FallbackRule, error) {
	query := `
		SELECT ` + fallbackRuleColumns + `
		FROM ai_fallback_rules
		WHERE is_enabled = true
			AND (tenant_id IS NULL OR tenant_id = $1)
			AND (plan_id IS NULL OR plan_id = $2)
		ORDER BY priority ASC, id ASC
	`
	return r.queryRules(ctx, query, tenantID, planID)
}

// Update rewrites a fallback rule
func (r *FallbackRuleRepository) Update(ctx context.Context, rule *models.FallbackRule) error {
	query := `
		UPDATE ai_fallback_rules
		SET primary_model_id = $2,
		    fallback_model_id = $3,
		    trigger_on = $4,
		    timeout_threshold_ms = $5,
		    error_rate_threshold = $6,
		    retry_count = $7,
		    retry_delay_ms = $8,
		    preserve_context = $9,
		    priority = $10,
		    tenant_id = $11,
		    plan_id = $12,
		    is_enabled = $13,
		    updated_at = $14
		WHERE id = $1
	`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		rule.ID,
		rule.PrimaryModelID,
		rule.FallbackModelID,
		rule.TriggerOn,
		rule.TimeoutThresholdMs,
		rule.ErrorRateThreshold,
		rule.RetryCount,
		rule.RetryDelayMs,
		rule.PreserveContext,
		rule.Priority,
		rule.TenantID,
		rule.PlanID,
		rule.IsEnabled,
		rule.UpdatedAt,
	)
	if err != nil {
		return writeError(err, "update fallback rule")
	}
	if err := requireAffected(result, "fallback rule", rule.ID); err != nil {
		return err
	}

	r.logger.Debug("fallback rule updated", zap.String("id", rule.ID.String()))
	return nil
}

// Delete removes a fallback rule
func (r *FallbackRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM ai_fallback_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete fallback rule: %w", err)
	}
	if err := requireAffected(result, "fallback rule", id); err != nil {
		return err
	}

	r.logger.Debug("fallback rule deleted", zap.String("id", id.String()))
	return nil
}

func (r *FallbackRuleRepository) queryRules(ctx context.Context, query string, args ...interface{}) ([]*models.FallbackRule, error) {
	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fallback rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.FallbackRule
	for rows.Next() {
		rule, err := scanFallbackRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fallback rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fallback rule rows: %w", err)
	}
	return rules, nil
}

func scanFallbackRule(row rowScanner) (*models.FallbackRule, error) {
	rule := &models.FallbackRule{}
	err := row.Scan(
		&rule.ID,
		&rule.PrimaryModelID,
		&rule.FallbackModelID,
		&rule.TriggerOn,
		&rule.TimeoutThresholdMs,
		&rule.ErrorRateThreshold,
		&rule.RetryCount,
		&rule.RetryDelayMs,
		&rule.PreserveContext,
		&rule.Priority,
		&rule.TenantID,
		&rule.PlanID,
		&rule.IsEnabled,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rule, nil
}
