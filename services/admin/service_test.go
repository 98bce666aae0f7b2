package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/repositories"
	"github.com/upb/ai-governance/services"
	"github.com/upb/ai-governance/services/registry"
)

// scopeRecorder records invalidated scopes
type scopeRecorder struct {
	scopes []models.Scope
}

func (r *scopeRecorder) InvalidateScope(scope models.Scope) {
	r.scopes = append(r.scopes, scope)
}

type fixture struct {
	svc           *Service
	models        *MockModelRepository
	quotas        *MockPlanQuotaRepository
	policies      *MockPolicyRepository
	rules         *MockFallbackRuleRepository
	catalog       *registry.Registry
	policyCache   *scopeRecorder
	fallbackCache *scopeRecorder
}

func newFixture() *fixture {
	f := &fixture{
		models:        new(MockModelRepository),
		quotas:        new(MockPlanQuotaRepository),
		policies:      new(MockPolicyRepository),
		rules:         new(MockFallbackRuleRepository),
		catalog:       registry.New(nil, "", nil, zap.NewNop()),
		policyCache:   &scopeRecorder{},
		fallbackCache: &scopeRecorder{},
	}
	repos := &repositories.Repositories{
		Models:        f.models,
		PlanQuotas:    f.quotas,
		Policies:      f.policies,
		FallbackRules: f.rules,
	}
	f.svc = NewService(repos, nil, f.catalog, f.policyCache, f.fallbackCache, zap.NewNop())
	return f
}

func TestCreateModel(t *testing.T) {
	t.Run("success updates catalog", func(t *testing.T) {
		f := newFixture()
		m := &models.AIModel{Key: "gpt-4o", Name: "GPT-4o", Provider: "openai", Type: models.ModelTypeChat}
		f.models.On("Create", mock.Anything, m).Return(nil)

		require.NoError(t, f.svc.CreateModel(context.Background(), m))
		assert.NotEqual(t, uuid.Nil, m.ID)
		assert.Equal(t, models.ModelStatusActive, m.Status)

		got, ok := f.catalog.GetByKey("gpt-4o")
		require.True(t, ok)
		assert.Equal(t, m.ID, got.ID)
	})

	t.Run("validation", func(t *testing.T) {
		f := newFixture()
		err := f.svc.CreateModel(context.Background(), &models.AIModel{Key: "x", Name: "X", Provider: "p", Type: "audio"})
		assert.True(t, services.IsValidationError(err))
		f.models.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("duplicate key", func(t *testing.T) {
		f := newFixture()
		m := &models.AIModel{Key: "gpt-4o", Name: "GPT-4o", Provider: "openai", Type: models.ModelTypeChat}
		f.models.On("Create", mock.Anything, m).Return(fmt.Errorf("create: %w", repositories.ErrDuplicate))

		err := f.svc.CreateModel(context.Background(), m)
		assert.True(t, services.IsConflictError(err))
		assert.Equal(t, 0, f.catalog.Len())
	})
}

func TestDisableModel(t *testing.T) {
	f := newFixture()
	m := models.NewAIModel("old", "Old", "p", models.ModelTypeChat, 0, 0)
	f.catalog.Put(m)

	disabled := *m
	disabled.Status = models.ModelStatusDisabled
	f.models.On("Disable", mock.Anything, m.ID).Return(nil)
	f.models.On("GetByID", mock.Anything, m.ID).Return(&disabled, nil)

	require.NoError(t, f.svc.DisableModel(context.Background(), m.ID))
	got, ok := f.catalog.Get(m.ID)
	require.True(t, ok)
	assert.Equal(t, models.ModelStatusDisabled, got.Status)

	missing := uuid.New()
	f.models.On("Disable", mock.Anything, missing).Return(fmt.Errorf("disable: %w", repositories.ErrNotFound))
	assert.True(t, services.IsNotFoundError(f.svc.DisableModel(context.Background(), missing)))
}

func TestUpdateModel_NotFound(t *testing.T) {
	f := newFixture()
	m := models.NewAIModel("a", "A", "p", models.ModelTypeChat, 0, 0)
	f.models.On("GetByID", mock.Anything, m.ID).Return(nil, repositories.ErrNotFound)

	err := f.svc.UpdateModel(context.Background(), m)
	assert.ErrorIs(t, err, services.ErrModelNotFound)
}

func TestPlanQuotas(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	plan := uuid.New()

	q := models.NewPlanQuota(plan)
	q.MaxRequestsPerMonth = 1000
	f.quotas.On("Create", mock.Anything, q).Return(nil).Once()
	require.NoError(t, f.svc.CreatePlanQuota(ctx, q))

	dup := models.NewPlanQuota(plan)
	f.quotas.On("Create", mock.Anything, dup).Return(repositories.ErrDuplicate).Once()
	assert.ErrorIs(t, f.svc.CreatePlanQuota(ctx, dup), services.ErrDuplicatePlanQuota)

	bad := models.NewPlanQuota(plan)
	bad.MaxTokensPerMonth = -5
	assert.True(t, services.IsValidationError(f.svc.CreatePlanQuota(ctx, bad)))

	f.quotas.On("Delete", mock.Anything, q.ID).Return(nil)
	assert.NoError(t, f.svc.DeletePlanQuota(ctx, q.ID))

	f.quotas.On("List", mock.Anything).Return(nil, errors.New("boom"))
	_, err := f.svc.ListPlanQuotas(ctx)
	assert.True(t, services.IsInternalError(err))
}

func TestCreatePolicy(t *testing.T) {
	tenant := uuid.New()

	t.Run("invalidates its scope", func(t *testing.T) {
		f := newFixture()
		p := models.NewGuardrailPolicy("no-gpt4", "No GPT-4", models.PolicyTypeAccessControl,
			json.RawMessage(`{"blocked_models":["gpt-4"]}`), models.PolicyActionBlock, 10)
		p.TenantID = &tenant
		f.policies.On("Create", mock.Anything, p).Return(nil)

		require.NoError(t, f.svc.CreatePolicy(context.Background(), p))
		require.Len(t, f.policyCache.scopes, 1)
		assert.Equal(t, &tenant, f.policyCache.scopes[0].TenantID)
		assert.Empty(t, f.fallbackCache.scopes)
	})

	t.Run("malformed config is rejected", func(t *testing.T) {
		f := newFixture()
		p := models.NewGuardrailPolicy("broken", "Broken", models.PolicyTypeRateLimit,
			json.RawMessage(`{"max_requests_per_minute":"many"}`), models.PolicyActionBlock, 10)

		err := f.svc.CreatePolicy(context.Background(), p)
		assert.True(t, services.IsInvalidRuleConfigurationError(err))
		assert.Empty(t, f.policyCache.scopes)
	})

	t.Run("unknown action", func(t *testing.T) {
		f := newFixture()
		p := models.NewGuardrailPolicy("odd", "Odd", models.PolicyTypeSecurity, nil, "explode", 10)
		assert.True(t, services.IsValidationError(f.svc.CreatePolicy(context.Background(), p)))
	})
}

func TestUpdatePolicy_InvalidatesOldAndNewScope(t *testing.T) {
	f := newFixture()
	oldTenant, newTenant := uuid.New(), uuid.New()

	existing := models.NewGuardrailPolicy("p", "P", models.PolicyTypeSecurity, nil, models.PolicyActionLog, 1)
	existing.TenantID = &oldTenant
	existing.IsSystem = true

	updated := *existing
	updated.TenantID = &newTenant
	updated.IsSystem = false
	updated.Action = models.PolicyActionWarn

	f.policies.On("GetByID", mock.Anything, existing.ID).Return(existing, nil)
	f.policies.On("Update", mock.Anything, &updated).Return(nil)

	require.NoError(t, f.svc.UpdatePolicy(context.Background(), &updated))
	assert.True(t, updated.IsSystem, "system flag is not writable through updates")
	require.Len(t, f.policyCache.scopes, 2)
	assert.Equal(t, &oldTenant, f.policyCache.scopes[0].TenantID)
	assert.Equal(t, &newTenant, f.policyCache.scopes[1].TenantID)
}

func TestDeletePolicy(t *testing.T) {
	t.Run("system policy is immutable", func(t *testing.T) {
		f := newFixture()
		p := models.NewGuardrailPolicy("baseline", "Baseline", models.PolicyTypeSecurity, nil, models.PolicyActionBlock, 0)
		p.IsSystem = true
		f.policies.On("GetByID", mock.Anything, p.ID).Return(p, nil)

		err := f.svc.DeletePolicy(context.Background(), p.ID)
		assert.ErrorIs(t, err, services.ErrSystemPolicyImmutable)
		assert.True(t, services.IsForbiddenError(err))
		f.policies.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("regular policy", func(t *testing.T) {
		f := newFixture()
		p := models.NewGuardrailPolicy("temp", "Temp", models.PolicyTypeSecurity, nil, models.PolicyActionLog, 0)
		f.policies.On("GetByID", mock.Anything, p.ID).Return(p, nil)
		f.policies.On("Delete", mock.Anything, p.ID).Return(nil)

		require.NoError(t, f.svc.DeletePolicy(context.Background(), p.ID))
		require.Len(t, f.policyCache.scopes, 1)
		assert.True(t, f.policyCache.scopes[0].IsGlobal())
	})

	t.Run("missing", func(t *testing.T) {
		f := newFixture()
		id := uuid.New()
		f.policies.On("GetByID", mock.Anything, id).Return(nil, repositories.ErrNotFound)
		assert.ErrorIs(t, f.svc.DeletePolicy(context.Background(), id), services.ErrPolicyNotFound)
	})
}

func TestCreateFallbackRule(t *testing.T) {
	primary := models.NewAIModel("primary", "Primary", "p", models.ModelTypeChat, 0, 0)
	backup := models.NewAIModel("backup", "Backup", "p", models.ModelTypeChat, 0, 0)

	t.Run("success", func(t *testing.T) {
		f := newFixture()
		f.catalog.Put(primary)
		f.catalog.Put(backup)
		r := models.NewFallbackRule(primary.ID, backup.ID, 10)
		f.rules.On("Create", mock.Anything, r).Return(nil)

		require.NoError(t, f.svc.CreateFallbackRule(context.Background(), r))
		require.Len(t, f.fallbackCache.scopes, 1)
		assert.Empty(t, f.policyCache.scopes)
	})

	t.Run("same primary and fallback", func(t *testing.T) {
		f := newFixture()
		f.catalog.Put(primary)
		r := models.NewFallbackRule(primary.ID, primary.ID, 10)
		assert.True(t, services.IsInvalidRuleConfigurationError(f.svc.CreateFallbackRule(context.Background(), r)))
	})

	t.Run("timeout trigger without threshold", func(t *testing.T) {
		f := newFixture()
		f.catalog.Put(primary)
		f.catalog.Put(backup)
		r := models.NewFallbackRule(primary.ID, backup.ID, 10)
		r.TriggerOn = []string{string(models.FailureTimeout)}
		assert.True(t, services.IsInvalidRuleConfigurationError(f.svc.CreateFallbackRule(context.Background(), r)))
	})

	t.Run("unknown model", func(t *testing.T) {
		f := newFixture()
		f.catalog.Put(primary)
		r := models.NewFallbackRule(primary.ID, uuid.New(), 10)
		err := f.svc.CreateFallbackRule(context.Background(), r)
		assert.True(t, services.IsInvalidRuleConfigurationError(err))
		f.rules.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestDeleteFallbackRule(t *testing.T) {
	f := newFixture()
	plan := uuid.New()
	r := models.NewFallbackRule(uuid.New(), uuid.New(), 1)
	r.PlanID = &plan
	f.rules.On("GetByID", mock.Anything, r.ID).Return(r, nil)
	f.rules.On("Delete", mock.Anything, r.ID).Return(nil)

	require.NoError(t, f.svc.DeleteFallbackRule(context.Background(), r.ID))
	require.Len(t, f.fallbackCache.scopes, 1)
	assert.Equal(t, &plan, f.fallbackCache.scopes[0].PlanID)
}
