package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/services/fallback"
	"github.com/upb/ai-governance/services/governance"
)

// MockAdminService is a mock implementation of AdminService
type MockAdminService struct {
	mock.Mock
}

func (m *MockAdminService) CreateModel(ctx context.Context, model *models.AIModel) error {
	return m.Called(ctx, model).Error(0)
}

func (m *MockAdminService) GetModel(ctx context.Context, id uuid.UUID) (*models.AIModel, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AIModel), args.Error(1)
}

func (m *MockAdminService) ListModels(ctx context.Context, includeDisabled bool) ([]*models.AIModel, error) {
	args := m.Called(ctx, includeDisabled)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AIModel), args.Error(1)
}

func (m *MockAdminService) UpdateModel(ctx context.Context, model *models.AIModel) error {
	return m.Called(ctx, model).Error(0)
}

func (m *MockAdminService) DisableModel(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockAdminService) CreatePlanQuota(ctx context.Context, q *models.PlanQuota) error {
	return m.Called(ctx, q).Error(0)
}

func (m *MockAdminService) GetPlanQuota(ctx context.Context, id uuid.UUID) (*models.PlanQuota, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PlanQuota), args.Error(1)
}

func (m *MockAdminService) ListPlanQuotas(ctx context.Context) ([]*models.PlanQuota, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PlanQuota), args.Error(1)
}

func (m *MockAdminService) UpdatePlanQuota(ctx context.Context, q *models.PlanQuota) error {
	return m.Called(ctx, q).Error(0)
}

func (m *MockAdminService) DeletePlanQuota(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockAdminService) CreatePolicy(ctx context.Context, p *models.GuardrailPolicy) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockAdminService) GetPolicy(ctx context.Context, id uuid.UUID) (*models.GuardrailPolicy, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.GuardrailPolicy), args.Error(1)
}

func (m *MockAdminService) ListPolicies(ctx context.Context) ([]*models.GuardrailPolicy, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.GuardrailPolicy), args.Error(1)
}

func (m *MockAdminService) UpdatePolicy(ctx context.Context, p *models.GuardrailPolicy) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockAdminService) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockAdminService) CreateFallbackRule(ctx context.Context, r *models.FallbackRule) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockAdminService) GetFallbackRule(ctx context.Context, id uuid.UUID) (*models.FallbackRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.FallbackRule), args.Error(1)
}

func (m *MockAdminService) ListFallbackRules(ctx context.Context) ([]*models.FallbackRule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.FallbackRule), args.Error(1)
}

func (m *MockAdminService) UpdateFallbackRule(ctx context.Context, r *models.FallbackRule) error {
	return m.Called(ctx, r).Error(0)
}

func (m *MockAdminService) DeleteFallbackRule(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

// MockGovernanceService is a mock implementation of GovernanceService
type MockGovernanceService struct {
	mock.Mock
}

func (m *MockGovernanceService) Preflight(ctx context.Context, req governance.Request) (*governance.Preflight, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*governance.Preflight), args.Error(1)
}

func (m *MockGovernanceService) RecordSuccess(ctx context.Context, c governance.Completion) (*models.UsageCounter, error) {
	args := m.Called(ctx, c)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UsageCounter), args.Error(1)
}

func (m *MockGovernanceService) RecordFailure(ctx context.Context, f governance.Failure) (*models.UsageCounter, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UsageCounter), args.Error(1)
}

func (m *MockGovernanceService) RouteFailure(ctx context.Context, req fallback.RouteRequest) (fallback.Decision, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(fallback.Decision), args.Error(1)
}

func (m *MockGovernanceService) Usage(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*governance.UsageReport, error) {
	args := m.Called(ctx, tenantID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*governance.UsageReport), args.Error(1)
}
