package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/internal/observability"
	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/services/rulecache"
)

// MockPolicyRepository is a mock implementation of PolicyRepository
type MockPolicyRepository struct {
	mock.Mock
}

func (m *MockPolicyRepository) Create(ctx context.Context, policy *models.GuardrailPolicy) error {
	args := m.Called(ctx, policy)
	return args.Error(0)
}

func (m *MockPolicyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.GuardrailPolicy, error) {
	args := m.Called(ctx, id)
	if policy := args.Get(0); policy != nil {
		return policy.(*models.GuardrailPolicy), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPolicyRepository) List(ctx context.Context) ([]*models.GuardrailPolicy, error) {
	args := m.Called(ctx)
	if policies := args.Get(0); policies != nil {
		return policies.([]*models.GuardrailPolicy), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPolicyRepository) ListApplicable(ctx context.Context, tenantID, planID *uuid.UUID) ([]*models.GuardrailPolicy, error) {
	args := m.Called(ctx, tenantID, planID)
	if policies := args.Get(0); policies != nil {
		return policies.([]*models.GuardrailPolicy), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPolicyRepository) Update(ctx context.Context, policy *models.GuardrailPolicy) error {
	args := m.Called(ctx, policy)
	return args.Error(0)
}

func (m *MockPolicyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func newTestService(repo *MockPolicyRepository, metrics *observability.Metrics) *PolicyService {
	cache := rulecache.New[*models.GuardrailPolicy](100, 5*time.Minute)
	return NewPolicyService(repo, cache, metrics, zap.NewNop())
}

func TestPolicyService_Evaluate_UsesCache(t *testing.T) {
	repo := new(MockPolicyRepository)
	metrics := observability.NewMetrics()
	svc := newTestService(repo, metrics)
	tenant := uuid.New()

	block := newPolicy("no-shell", models.PolicyTypeSecurity, `{"blocked_tools":["shell"]}`, models.PolicyActionBlock, 1)
	repo.On("ListApplicable", mock.Anything, &tenant, (*uuid.UUID)(nil)).
		Return([]*models.GuardrailPolicy{block}, nil).Once()

	ec := EvaluationContext{ModelKey: "claude", ToolKeys: []string{"shell"}}

	eval, err := svc.Evaluate(context.Background(), &tenant, nil, ec)
	require.NoError(t, err)
	assert.True(t, eval.ShouldBlock)

	eval, err = svc.Evaluate(context.Background(), &tenant, nil, EvaluationContext{ModelKey: "claude"})
	require.NoError(t, err)
	assert.False(t, eval.ShouldBlock)

	repo.AssertExpectations(t)

	stats := svc.GetCacheStats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	blocks, err := testutil.GatherAndCount(metrics.Registry(), "aigov_policy_blocks_total")
	require.NoError(t, err)
	assert.Equal(t, 1, blocks)
}

func TestPolicyService_EmptySnapshotIsCached(t *testing.T) {
	repo := new(MockPolicyRepository)
	svc := newTestService(repo, nil)

	repo.On("ListApplicable", mock.Anything, (*uuid.UUID)(nil), (*uuid.UUID)(nil)).
		Return(nil, nil).Once()

	for i := 0; i < 3; i++ {
		policies, err := svc.ApplicablePolicies(context.Background(), nil, nil)
		require.NoError(t, err)
		assert.Empty(t, policies)
	}
	repo.AssertExpectations(t)
}

func TestPolicyService_RepositoryError(t *testing.T) {
	repo := new(MockPolicyRepository)
	svc := newTestService(repo, nil)

	repo.On("ListApplicable", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := svc.Evaluate(context.Background(), nil, nil, EvaluationContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch policies")
	assert.Equal(t, 0, svc.GetCacheStats().Size)
}

func TestPolicyService_InvalidateScope(t *testing.T) {
	repo := new(MockPolicyRepository)
	svc := newTestService(repo, nil)
	tenant := uuid.New()

	repo.On("ListApplicable", mock.Anything, &tenant, (*uuid.UUID)(nil)).
		Return([]*models.GuardrailPolicy{}, nil).Twice()

	_, err := svc.ApplicablePolicies(context.Background(), &tenant, nil)
	require.NoError(t, err)

	svc.InvalidateScope(models.Scope{TenantID: &tenant})

	_, err = svc.ApplicablePolicies(context.Background(), &tenant, nil)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}
