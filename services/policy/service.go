package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/internal/observability"
	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/repositories"
	"github.com/upb/ai-governance/services/rulecache"
)

const cacheName = "policies"

// PolicyService loads guardrail policies through the rule cache and evaluates them
type PolicyService struct {
	policyRepo repositories.PolicyRepository
	cache      *rulecache.RuleCache[*models.GuardrailPolicy]
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewPolicyService creates a new PolicyService instance. metrics may be nil.
func NewPolicyService(
	policyRepo repositories.PolicyRepository,
	cache *rulecache.RuleCache[*models.GuardrailPolicy],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *PolicyService {
	return &PolicyService{
		policyRepo: policyRepo,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
	}
}

// Evaluate runs every applicable policy for the tenant/plan pair
func (s *PolicyService) Evaluate(ctx context.Context, tenantID, planID *uuid.UUID, ec EvaluationContext) (*Evaluation, error) {
	policies, err := s.ApplicablePolicies(ctx, tenantID, planID)
	if err != nil {
		return nil, err
	}

	eval := Evaluate(policies, tenantID, planID, ec)

	for _, r := range eval.Results {
		if s.metrics != nil {
			s.metrics.RecordPolicyEvaluation(string(r.Policy.Type), string(r.Action), r.Triggered)
		}
		if !r.Triggered {
			continue
		}
		fields := []zap.Field{
			zap.String("policy", r.PolicyKey),
			zap.String("action", string(r.Action)),
			zap.String("reason", r.Reason),
			zap.String("model", ec.modelKey()),
		}
		switch r.Action {
		case models.PolicyActionWarn, models.PolicyActionThrottle:
			s.logger.Warn("policy triggered", fields...)
		case models.PolicyActionLog:
			s.logger.Info("policy triggered", fields...)
		}
	}

	if eval.ShouldBlock {
		if s.metrics != nil {
			s.metrics.RecordPolicyBlock(eval.BlockedBy)
		}
		s.logger.Info("request blocked by policy",
			zap.String("policy", eval.BlockedBy),
			zap.String("model", ec.modelKey()))
	}

	return eval, nil
}

// ApplicablePolicies returns the enabled policies visible to the tenant/plan pair
func (s *PolicyService) ApplicablePolicies(ctx context.Context, tenantID, planID *uuid.UUID) ([]*models.GuardrailPolicy, error) {
	key := rulecache.NewCacheKey(tenantID, planID)

	if cached, ok := s.cache.Get(key); ok {
		s.recordCache("hit")
		s.logger.Debug("cache hit for policies", zap.String("scope", key.String()))
		return cached, nil
	}
	s.recordCache("miss")

	policies, err := s.policyRepo.ListApplicable(ctx, tenantID, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch policies: %w", err)
	}
	if policies == nil {
		policies = []*models.GuardrailPolicy{}
	}

	s.cache.Set(key, policies)

	s.logger.Debug("cache miss for policies, fetched from database",
		zap.String("scope", key.String()),
		zap.Int("count", len(policies)))

	return policies, nil
}

// InvalidateScope drops cached snapshots a write to a policy with this scope can affect
func (s *PolicyService) InvalidateScope(scope models.Scope) {
	s.cache.InvalidateScope(scope.TenantID, scope.PlanID)
	s.recordCache("invalidate")
	s.logger.Debug("invalidated policy cache", zap.String("scope", scope.Label()))
}

// GetCacheStats returns cache statistics
func (s *PolicyService) GetCacheStats() rulecache.CacheStats {
	return s.cache.Stats()
}

// StartCacheCleanup runs the cache cleanup worker until stopCh closes
func (s *PolicyService) StartCacheCleanup(interval time.Duration, stopCh <-chan struct{}) {
	s.logger.Info("started policy cache cleanup worker", zap.Duration("interval", interval))
	s.cache.StartCleanupWorker(interval, stopCh)
}

func (s *PolicyService) recordCache(event string) {
	if s.metrics != nil {
		s.metrics.RecordCacheEvent(cacheName, event)
	}
}
