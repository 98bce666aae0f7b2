package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/repositories"
)

const modelColumns = `id, key, name, provider, type, status, input_cost_per_1k, output_cost_per_1k,
	context_window, capabilities, regions, is_default, is_priority, created_at, updated_at`

// ModelRepository implements the repositories.ModelRepository interface
type ModelRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewModelRepository creates a new model repository
func NewModelRepository(db *DB, logger *zap.Logger) repositories.ModelRepository {
	return &ModelRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a catalog entry
func (r *ModelRepository) Create(ctx context.Context, model *models.AIModel) error {
	query := `
		INSERT INTO ai_models (` + modelColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		model.ID,
		model.Key,
		model.Name,
		model.Provider,
		model.Type,
		model.Status,
		model.InputCostPer1K,
		model.OutputCostPer1K,
		model.ContextWindow,
		model.Capabilities,
		model.Regions,
		model.IsDefault,
		model.IsPriority,
		model.CreatedAt,
		model.UpdatedAt,
	)
	if err != nil {
		return writeError(err, "create model")
	}

	r.logger.Debug("model created", zap.String("id", model.ID.String()), zap.String("key", model.Key))
	return nil
}

// GetByID retrieves a model by ID
func (r *ModelRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AIModel, error) {
	query := `SELECT ` + modelColumns + ` FROM ai_models WHERE id = $1`

	model, err := scanModel(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, readError(err, "model", id)
	}
	return model, nil
}

// GetByKey retrieves a model by its identity key
func (r *ModelRepository) GetByKey(ctx context.Context, key string) (*models.AIModel, error) {
	query := `SELECT ` + modelColumns + ` FROM ai_models WHERE key = $1`

	model, err := scanModel(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, key))
	if err != nil {
		return nil, readError(err, "model", key)
	}
	return model, nil
}

// List returns catalog entries ordered by key
func (r *ModelRepository) List(ctx context.Context, includeDisabled bool) ([]*models.AIModel, error) {
	query := `SELECT ` + modelColumns + ` FROM ai_models`
	if !includeDisabled {
		query += ` WHERE status <> 'disabled'`
	}
	query += ` ORDER BY key`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}
	defer rows.Close()

	var out []*models.AIModel
	for rows.Next() {
		model, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		out = append(out, model)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating model rows: %w", err)
	}
	return out, nil
}

// Update rewrites a catalog entry
func (r *ModelRepository) Update(ctx context.Context, model *models.AIModel) error {
	query := `
		UPDATE ai_models
		SET key = $2,
		    name = $3,
		    provider = $4,
		    type = $5,
		    status = $6,
		    input_cost_per_1k = $7,
		    output_cost_per_1k = $8,
		    context_window = $9,
		    capabilities = $10,
		    regions = $11,
		    is_default = $12,
		    is_priority = $13,
		    updated_at = $14
		WHERE id = $1
	`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		model.ID,
		model.Key,
		model.Name,
		model.Provider,
		model.Type,
		model.Status,
		model.InputCostPer1K,
		model.OutputCostPer1K,
		model.ContextWindow,
		model.Capabilities,
		model.Regions,
		model.IsDefault,
		model.IsPriority,
		model.UpdatedAt,
	)
	if err != nil {
		return writeError(err, "update model")
	}
	if err := requireAffected(result, "model", model.ID); err != nil {
		return err
	}

	r.logger.Debug("model updated", zap.String("id", model.ID.String()))
	return nil
}

// Disable marks the model disabled; rows are never deleted
func (r *ModelRepository) Disable(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE ai_models SET status = 'disabled', updated_at = NOW() WHERE id = $1`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to disable model: %w", err)
	}
	if err := requireAffected(result, "model", id); err != nil {
		return err
	}

	r.logger.Debug("model disabled", zap.String("id", id.String()))
	return nil
}

func scanModel(row rowScanner) (*models.AIModel, error) {
	model := &models.AIModel{}
	err := row.Scan(
		&model.ID,
		&model.Key,
		&model.Name,
		&model.Provider,
		&model.Type,
		&model.Status,
		&model.InputCostPer1K,
		&model.OutputCostPer1K,
		&model.ContextWindow,
		&model.Capabilities,
		&model.Regions,
		&model.IsDefault,
		&model.IsPriority,
		&model.CreatedAt,
		&model.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return model, nil
}
