package admin

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/upb/ai-governance/models"
)

type MockModelRepository struct{ mock.Mock }

func (m *MockModelRepository) Create(ctx context.Context, model *models.AIModel) error {
	return m.Called(ctx, model).Error(0)
}

func (m *MockModelRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AIModel, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.AIModel), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockModelRepository) GetByKey(ctx context.Context, key string) (*models.AIModel, error) {
	args := m.Called(ctx, key)
	if v := args.Get(0); v != nil {
		return v.(*models.AIModel), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockModelRepository) List(ctx context.Context, includeDisabled bool) ([]*models.AIModel, error) {
	args := m.Called(ctx, includeDisabled)
	if v := args.Get(0); v != nil {
		return v.([]*models.AIModel), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockModelRepository) Update(ctx context.Context, model *models.AIModel) error {
	return m.Called(ctx, model).Error(0)
}

func (m *MockModelRepository) Disable(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type MockPlanQuotaRepository struct{ mock.Mock }

func (m *MockPlanQuotaRepository) Create(ctx context.Context, q *models.PlanQuota) error {
	return m.Called(ctx, q).Error(0)
}

func (m *MockPlanQuotaRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PlanQuota, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.PlanQuota), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPlanQuotaRepository) GetByPlanID(ctx context.Context, planID uuid.UUID) (*models.PlanQuota, error) {
	args := m.Called(ctx, planID)
	if v := args.Get(0); v != nil {
		return v.(*models.PlanQuota), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPlanQuotaRepository) List(ctx context.Context) ([]*models.PlanQuota, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]*models.PlanQuota), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPlanQuotaRepository) Update(ctx context.Context, q *models.PlanQuota) error {
	return m.Called(ctx, q).Error(0)
}

func (m *MockPlanQuotaRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type MockPolicyRepository struct{ mock.Mock }

func (m *MockPolicyRepository) Create(ctx context.Context, p *models.GuardrailPolicy) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockPolicyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.GuardrailPolicy, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.GuardrailPolicy), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPolicyRepository) List(ctx context.Context) ([]*models.GuardrailPolicy, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]*models.GuardrailPolicy), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPolicyRepository) ListApplicable(ctx context.Context, tenantID, planID *uuid.UUID) ([]*models.GuardrailPolicy, error) {
	args := m.Called(ctx, tenantID, planID)
	if v := args.Get(0); v != nil {
		return v.([]*models.GuardrailPolicy), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPolicyRepository) Update(ctx context.Context, p *models.GuardrailPolicy) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockPolicyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

type MockFallbackRuleRepository struct{ mock.Mock }

func (m *MockFallbackRuleRepository) Create(ctx context.Context, r *models.FallbackRule) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockFallbackRuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.FallbackRule, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*models.FallbackRule), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFallbackRuleRepository) List(ctx context.Context) ([]*models.FallbackRule, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]*models.FallbackRule), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFallbackRuleRepository) ListApplicable(ctx context.Context, tenantID, planID *uuid.UUID) ([]*models.FallbackRule, error) {
	args := m.Called(ctx, tenantID, planID)
	if v := args.Get(0); v != nil {
		return v.([]*models.FallbackRule), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockFallbackRuleRepository) Update(ctx context.Context, r *models.FallbackRule) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockFallbackRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}
