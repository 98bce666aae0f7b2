// Package admin implements the platform-operator write path for governance
// rules: validation, persistence, and cache invalidation.
package admin

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/repositories"
	"github.com/upb/ai-governance/services"
	"github.com/upb/ai-governance/utils"
)

// Catalog receives model writes so lookups see them before the next reload
type Catalog interface {
	Put(m *models.AIModel)
	Get(id uuid.UUID) (*models.AIModel, bool)
}

// ScopeInvalidator drops cached rule snapshots a write may affect
type ScopeInvalidator interface {
	InvalidateScope(scope models.Scope)
}

// Service manages models, plan quotas, policies, and fallback rules
type Service struct {
	repos         *repositories.Repositories
	tx            repositories.TransactionManager
	catalog       Catalog
	policyCache   ScopeInvalidator
	fallbackCache ScopeInvalidator
	logger        *zap.Logger
	now           func() time.Time
}

// NewService creates an admin service. tx may be nil to run updates without a transaction.
func NewService(
	repos *repositories.Repositories,
	tx repositories.TransactionManager,
	catalog Catalog,
	policyCache ScopeInvalidator,
	fallbackCache ScopeInvalidator,
	logger *zap.Logger,
) *Service {
	return &Service{
		repos:         repos,
		tx:            tx,
		catalog:       catalog,
		policyCache:   policyCache,
		fallbackCache: fallbackCache,
		logger:        logger,
		now:           time.Now,
	}
}

// inTransaction runs fn inside a transaction when a manager is configured
func (s *Service) inTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx == nil {
		return fn(ctx)
	}
	return s.tx.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		return fn(ctx)
	})
}

// CreateModel adds a catalog entry
func (s *Service) CreateModel(ctx context.Context, m *models.AIModel) error {
	now := s.now()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Status == "" {
		m.Status = models.ModelStatusActive
	}
	m.CreatedAt, m.UpdatedAt = now, now
	if err := validate(m); err != nil {
		return err
	}

	if err := s.repos.Models.Create(ctx, m); err != nil {
		return mapWriteError(err, services.ErrModelNotFound, services.ErrDuplicateKey, "failed to create model")
	}
	s.catalog.Put(m)

	s.logger.Info("model created", zap.String("model_id", m.ID.String()), zap.String("key", m.Key))
	return nil
}

// GetModel returns a catalog entry by id
func (s *Service) GetModel(ctx context.Context, id uuid.UUID) (*models.AIModel, error) {
	m, err := s.repos.Models.GetByID(ctx, id)
	if err != nil {
		return nil, mapReadError(err, services.ErrModelNotFound, "failed to get model")
	}
	return m, nil
}

// ListModels returns catalog entries from the database
func (s *Service) ListModels(ctx context.Context, includeDisabled bool) ([]*models.AIModel, error) {
	list, err := s.repos.Models.List(ctx, includeDisabled)
	if err != nil {
		return nil, services.WrapInternal("failed to list models", err)
	}
	return list, nil
}

// UpdateModel replaces a catalog entry
func (s *Service) UpdateModel(ctx context.Context, m *models.AIModel) error {
	existing, err := s.GetModel(ctx, m.ID)
	if err != nil {
		return err
	}
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = s.now()
	if err := validate(m); err != nil {
		return err
	}

	if err := s.repos.Models.Update(ctx, m); err != nil {
		return mapWriteError(err, services.ErrModelNotFound, services.ErrDuplicateKey, "failed to update model")
	}
	s.catalog.Put(m)

	s.logger.Info("model updated", zap.String("model_id", m.ID.String()), zap.String("status", string(m.Status)))
	return nil
}

// DisableModel soft-deletes a model; usage history keeps referencing it
func (s *Service) DisableModel(ctx context.Context, id uuid.UUID) error {
	if err := s.repos.Models.Disable(ctx, id); err != nil {
		return mapWriteError(err, services.ErrModelNotFound, services.ErrDuplicateKey, "failed to disable model")
	}

	m, err := s.repos.Models.GetByID(ctx, id)
	if err != nil {
		return mapReadError(err, services.ErrModelNotFound, "failed to reload model")
	}
	s.catalog.Put(m)

	s.logger.Info("model disabled", zap.String("model_id", id.String()))
	return nil
}

// CreatePlanQuota attaches limits to a plan. A plan has at most one quota.
func (s *Service) CreatePlanQuota(ctx context.Context, q *models.PlanQuota) error {
	now := s.now()
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}
	q.CreatedAt, q.UpdatedAt = now, now
	if err := validate(q); err != nil {
		return err
	}

	if err := s.repos.PlanQuotas.Create(ctx, q); err != nil {
		return mapWriteError(err, services.ErrPlanQuotaNotFound, services.ErrDuplicatePlanQuota, "failed to create plan quota")
	}

	s.logger.Info("plan quota created", zap.String("plan_id", q.PlanID.String()))
	return nil
}

// GetPlanQuota returns a quota by id
func (s *Service) GetPlanQuota(ctx context.Context, id uuid.UUID) (*models.PlanQuota, error) {
	q, err := s.repos.PlanQuotas.GetByID(ctx, id)
	if err != nil {
		return nil, mapReadError(err, services.ErrPlanQuotaNotFound, "failed to get plan quota")
	}
	return q, nil
}

// ListPlanQuotas returns every plan quota
func (s *Service) ListPlanQuotas(ctx context.Context) ([]*models.PlanQuota, error) {
	list, err := s.repos.PlanQuotas.List(ctx)
	if err != nil {
		return nil, services.WrapInternal("failed to list plan quotas", err)
	}
	return list, nil
}

// UpdatePlanQuota replaces a plan's limits
func (s *Service) UpdatePlanQuota(ctx context.Context, q *models.PlanQuota) error {
	existing, err := s.GetPlanQuota(ctx, q.ID)
	if err != nil {
		return err
	}
	q.CreatedAt = existing.CreatedAt
	q.UpdatedAt = s.now()
	if err := validate(q); err != nil {
		return err
	}

	if err := s.repos.PlanQuotas.Update(ctx, q); err != nil {
		return mapWriteError(err, services.ErrPlanQuotaNotFound, services.ErrDuplicatePlanQuota, "failed to update plan quota")
	}

	s.logger.Info("plan quota updated", zap.String("plan_id", q.PlanID.String()))
	return nil
}

// DeletePlanQuota removes a quota; the plan becomes unlimited
func (s *Service) DeletePlanQuota(ctx context.Context, id uuid.UUID) error {
	if err := s.repos.PlanQuotas.Delete(ctx, id); err != nil {
		return mapWriteError(err, services.ErrPlanQuotaNotFound, services.ErrDuplicatePlanQuota, "failed to delete plan quota")
	}
	s.logger.Info("plan quota deleted", zap.String("quota_id", id.String()))
	return nil
}

func validate(v interface{}) error {
	if err := utils.ValidateStruct(v); err != nil {
		de := services.NewDomainError(services.ErrorTypeValidation, "validation failed", err)
		for field, msg := range utils.GetValidationFields(err) {
			de.WithDetail(field, msg)
		}
		return de
	}
	return nil
}

func mapReadError(err error, notFound *services.DomainError, message string) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return notFound
	}
	return services.WrapInternal(message, err)
}

func mapWriteError(err error, notFound, duplicate *services.DomainError, message string) error {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return notFound
	case errors.Is(err, repositories.ErrDuplicate):
		return duplicate
	}
	return services.WrapInternal(message, err)
}
