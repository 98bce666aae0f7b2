package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/repositories"
)

const policyColumns = `id, key, name, type, config, action, error_message, priority,
	tenant_id, plan_id, is_enabled, is_system, created_at, updated_at`

// PolicyRepository implements the repositories.PolicyRepository interface
type PolicyRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewPolicyRepository creates a new policy repository
func NewPolicyRepository(db *DB, logger *zap.Logger) repositories.PolicyRepository {
	return &PolicyRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new policy
func (r *PolicyRepository) Create(ctx context.Context, policy *models.GuardrailPolicy) error {
	query := `
		INSERT INTO ai_policies (` + policyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		policy.ID,
		policy.Key,
		policy.Name,
		policy.Type,
		configValue(policy.Config),
		policy.Action,
		policy.ErrorMessage,
		policy.Priority,
		policy.TenantID,
		policy.PlanID,
		policy.IsEnabled,
		policy.IsSystem,
		policy.CreatedAt,
		policy.UpdatedAt,
	)
	if err != nil {
		return writeError(err, "create policy")
	}

	r.logger.Debug("policy created", zap.String("id", policy.ID.String()), zap.String("key", policy.Key))
	return nil
}

// GetByID retrieves a policy by ID
func (r *PolicyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.GuardrailPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM ai_policies WHERE id = $1`

	policy, err := scanPolicy(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, readError(err, "policy", id)
	}
	return policy, nil
}

// List returns every policy in evaluation order
func (r *PolicyRepository) List(ctx context.Context) ([]*models.GuardrailPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM ai_policies ORDER BY priority ASC, id ASC`
	return r.queryPolicies(ctx, query)
}

// ListApplicable retrieves enabled policies whose scope admits the tenant/plan pair.
// A nil id only matches rows that leave that scope field empty.
func (r *PolicyRepository) ListApplicable(ctx context.Context, tenantID, planID *uuid.UUID) ([]*models.GuardrailPolicy, error) {
	query := `
		SELECT ` + policyColumns + `
		FROM ai_policies
		WHERE is_enabled = true
			AND (tenant_id IS NULL OR tenant_id = $1)
			AND (plan_id IS NULL OR plan_id = $2)
		ORDER BY priority ASC, id ASC
	`
	return r.queryPolicies(ctx, query, tenantID, planID)
}

// Update updates a policy
func (r *PolicyRepository) Update(ctx context.Context, policy *models.GuardrailPolicy) error {
	query := `
		UPDATE ai_policies
		SET key = $2,
		    name = $3,
		    type = $4,
		    config = $5,
		    action = $6,
		    error_message = $7,
		    priority = $8,
		    tenant_id = $9,
		    plan_id = $10,
		    is_enabled = $11,
		    updated_at = $12
		WHERE id = $1
	`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		policy.ID,
		policy.Key,
		policy.Name,
		policy.Type,
		configValue(policy.Config),
		policy.Action,
		policy.ErrorMessage,
		policy.Priority,
		policy.TenantID,
		policy.PlanID,
		policy.IsEnabled,
		policy.UpdatedAt,
	)
	if err != nil {
		return writeError(err, "update policy")
	}
	if err := requireAffected(result, "policy", policy.ID); err != nil {
		return err
	}

	r.logger.Debug("policy updated", zap.String("id", policy.ID.String()))
	return nil
}

// Delete deletes a non-system policy
func (r *PolicyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM ai_policies WHERE id = $1 AND is_system = false`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete policy: %w", err)
	}
	if err := requireAffected(result, "policy", id); err != nil {
		return err
	}

	r.logger.Debug("policy deleted", zap.String("id", id.String()))
	return nil
}

// queryPolicies is a helper method to query multiple policies
func (r *PolicyRepository) queryPolicies(ctx context.Context, query string, args ...interface{}) ([]*models.GuardrailPolicy, error) {
	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var policies []*models.GuardrailPolicy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		policies = append(policies, policy)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating policy rows: %w", err)
	}

	return policies, nil
}

func scanPolicy(row rowScanner) (*models.GuardrailPolicy, error) {
	policy := &models.GuardrailPolicy{}
	var config []byte
	err := row.Scan(
		&policy.ID,
		&policy.Key,
		&policy.Name,
		&policy.Type,
		&config,
		&policy.Action,
		&policy.ErrorMessage,
		&policy.Priority,
		&policy.TenantID,
		&policy.PlanID,
		&policy.IsEnabled,
		&policy.IsSystem,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	policy.Config = json.RawMessage(config)
	return policy, nil
}

// configValue stores an absent config as an empty object
func configValue(config json.RawMessage) []byte {
	if len(config) == 0 {
		return []byte("{}")
	}
	return config
}
