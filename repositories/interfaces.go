package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/ai-governance/models"
)

// ErrNotFound is wrapped by repositories when a row does not exist
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is wrapped by repositories when a unique constraint rejects a write
var ErrDuplicate = errors.New("duplicate record")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction.
	// Automatically commits if function succeeds, rolls back on error.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
	Context() context.Context
}

// ModelRepository handles AI model catalog data
type ModelRepository interface {
	Create(ctx context.Context, model *models.AIModel) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AIModel, error)
	GetByKey(ctx context.Context, key string) (*models.AIModel, error)

	// List returns catalog entries; disabled models only when includeDisabled is set
	List(ctx context.Context, includeDisabled bool) ([]*models.AIModel, error)

	Update(ctx context.Context, model *models.AIModel) error

	// Disable soft-deletes a model so usage history keeps its reference
	Disable(ctx context.Context, id uuid.UUID) error
}

// PlanQuotaRepository handles per-plan AI limits
type PlanQuotaRepository interface {
	Create(ctx context.Context, quota *models.PlanQuota) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PlanQuota, error)

	// GetByPlanID returns the active quota bound to the plan
	GetByPlanID(ctx context.Context, planID uuid.UUID) (*models.PlanQuota, error)

	List(ctx context.Context) ([]*models.PlanQuota, error)
	Update(ctx context.Context, quota *models.PlanQuota) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PolicyRepository handles guardrail policy data
type PolicyRepository interface {
	Create(ctx context.Context, policy *models.GuardrailPolicy) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.GuardrailPolicy, error)
	List(ctx context.Context) ([]*models.GuardrailPolicy, error)

	// ListApplicable returns enabled policies whose scope admits the tenant/plan pair
	ListApplicable(ctx context.Context, tenantID, planID *uuid.UUID) ([]*models.GuardrailPolicy, error)

	Update(ctx context.Context, policy *models.GuardrailPolicy) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// FallbackRuleRepository handles fallback rule data
type FallbackRuleRepository interface {
	Create(ctx context.Context, rule *models.FallbackRule) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.FallbackRule, error)
	List(ctx context.Context) ([]*models.FallbackRule, error)

	// ListApplicable returns enabled rules whose scope admits the tenant/plan pair
	ListApplicable(ctx context.Context, tenantID, planID *uuid.UUID) ([]*models.FallbackRule, error)

	Update(ctx context.Context, rule *models.FallbackRule) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// UsageRepository handles daily usage counters.
// Increment must be atomic per key: concurrent calls never lose an update.
type UsageRepository interface {
	// GetOrCreate returns the counter for the key, creating a zeroed row on first use
	GetOrCreate(ctx context.Context, key models.UsageKey) (*models.UsageCounter, error)

	// Increment folds an outcome into the key's counter and returns the new totals
	Increment(ctx context.Context, key models.UsageKey, outcome models.Outcome) (*models.UsageCounter, error)

	// ListByTenant returns counters for the tenant with from <= date < to
	ListByTenant(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*models.UsageCounter, error)

	// DeleteOlderThan removes counters dated before the cutoff
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Models        ModelRepository
	PlanQuotas    PlanQuotaRepository
	Policies      PolicyRepository
	FallbackRules FallbackRuleRepository
	Usage         UsageRepository
}
