package fallback

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

// RuleService is the cached RuleSource backed by the fallback rule repository
type RuleService struct {
	repo    repositories.FallbackRuleRepository
	cache   *rulecache.RuleCache[*models.FallbackRule]
	metrics *observability.Metrics
	logger  *zap.Logger
}

var _ RuleSource = (*RuleService)(nil)

// NewRuleService creates a rule service. metrics may be nil.
func NewRuleService(
	repo repositories.FallbackRuleRepository,
	cache *rulecache.RuleCache[*models.FallbackRule],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *RuleService {
	return &RuleService{repo: repo, cache: cache, metrics: metrics, logger: logger}
}

// ApplicableRules returns enabled rules visible to the tenant/plan pair
func (s *RuleService) ApplicableRules(ctx context.Context, tenantID, planID *uuid.UUID) ([]*models.FallbackRule, error) {
	key := rulecache.NewCacheKey(tenantID, planID)

	if cached, ok := s.cache.Get(key); ok {
		s.record("hit")
		return cached, nil
	}
	s.record("miss")

	rules, err := s.repo.ListApplicable(ctx, tenantID, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch fallback rules: %w", err)
	}
	if rules == nil {
		rules = []*models.FallbackRule{}
	}
	s.cache.Set(key, rules)

	s.logger.Debug("loaded fallback rules",
		zap.String("scope", key.String()),
		zap.Int("count", len(rules)))
	return rules, nil
}

// InvalidateScope drops cached snapshots a write to a rule with this scope can affect
func (s *RuleService) InvalidateScope(scope models.Scope) {
	s.cache.InvalidateScope(scope.TenantID, scope.PlanID)
	s.record("invalidate")
}

// GetCacheStats returns cache statistics
func (s *RuleService) GetCacheStats() rulecache.CacheStats {
	return s.cache.Stats()
}

// StartCacheCleanup runs the cache cleanup worker until stopCh closes
func (s *RuleService) StartCacheCleanup(interval time.Duration, stopCh <-chan struct{}) {
	s.cache.StartCleanupWorker(interval, stopCh)
}

func (s *RuleService) record(event string) {
	if s.metrics != nil {
		s.metrics.RecordCacheEvent("fallback_rules", event)
	}
}
