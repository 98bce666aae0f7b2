package admin

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/services"
	"github.com/upb/ai-governance/services/fallback"
	"github.com/upb/ai-governance/services/policy"
)

// CreatePolicy stores a guardrail policy after checking its config against its type
func (s *Service) CreatePolicy(ctx context.Context, p *models.GuardrailPolicy) error {
	now := s.now()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt, p.UpdatedAt = now, now
	if err := validatePolicy(p); err != nil {
		return err
	}

	if err := s.repos.Policies.Create(ctx, p); err != nil {
		return mapWriteError(err, services.ErrPolicyNotFound, services.ErrDuplicateKey, "failed to create policy")
	}
	s.policyCache.InvalidateScope(p.Scope)

	s.logger.Info("policy created",
		zap.String("policy_id", p.ID.String()),
		zap.String("key", p.Key),
		zap.String("scope", p.Scope.Label()))
	return nil
}

// GetPolicy returns a policy by id
func (s *Service) GetPolicy(ctx context.Context, id uuid.UUID) (*models.GuardrailPolicy, error) {
	p, err := s.repos.Policies.GetByID(ctx, id)
	if err != nil {
		return nil, mapReadError(err, services.ErrPolicyNotFound, "failed to get policy")
	}
	return p, nil
}

// ListPolicies returns every policy
func (s *Service) ListPolicies(ctx context.Context) ([]*models.GuardrailPolicy, error) {
	list, err := s.repos.Policies.List(ctx)
	if err != nil {
		return nil, services.WrapInternal("failed to list policies", err)
	}
	return list, nil
}

// UpdatePolicy replaces a policy. Snapshots for both the old and new scope are dropped.
func (s *Service) UpdatePolicy(ctx context.Context, p *models.GuardrailPolicy) error {
	if err := validatePolicy(p); err != nil {
		return err
	}

	var previous models.Scope
	err := s.inTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.GetPolicy(ctx, p.ID)
		if err != nil {
			return err
		}
		previous = existing.Scope
		p.IsSystem = existing.IsSystem
		p.CreatedAt = existing.CreatedAt
		p.UpdatedAt = s.now()

		if err := s.repos.Policies.Update(ctx, p); err != nil {
			return mapWriteError(err, services.ErrPolicyNotFound, services.ErrDuplicateKey, "failed to update policy")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.policyCache.InvalidateScope(previous)
	s.policyCache.InvalidateScope(p.Scope)

	s.logger.Info("policy updated", zap.String("policy_id", p.ID.String()), zap.Bool("enabled", p.IsEnabled))
	return nil
}

// DeletePolicy removes a policy. System policies can only be disabled.
func (s *Service) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	var scope models.Scope
	err := s.inTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.GetPolicy(ctx, id)
		if err != nil {
			return err
		}
		if existing.IsSystem {
			return services.ErrSystemPolicyImmutable
		}
		scope = existing.Scope

		if err := s.repos.Policies.Delete(ctx, id); err != nil {
			return mapWriteError(err, services.ErrPolicyNotFound, services.ErrDuplicateKey, "failed to delete policy")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.policyCache.InvalidateScope(scope)
	s.logger.Info("policy deleted", zap.String("policy_id", id.String()))
	return nil
}

// CreateFallbackRule stores a fallback rule between two known models
func (s *Service) CreateFallbackRule(ctx context.Context, r *models.FallbackRule) error {
	now := s.now()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt, r.UpdatedAt = now, now
	if err := s.validateFallbackRule(r); err != nil {
		return err
	}

	if err := s.repos.FallbackRules.Create(ctx, r); err != nil {
		return mapWriteError(err, services.ErrFallbackRuleNotFound, services.ErrDuplicateKey, "failed to create fallback rule")
	}
	s.fallbackCache.InvalidateScope(r.Scope)

	s.logger.Info("fallback rule created",
		zap.String("rule_id", r.ID.String()),
		zap.String("primary_model_id", r.PrimaryModelID.String()),
		zap.String("fallback_model_id", r.FallbackModelID.String()),
		zap.String("scope", r.Scope.Label()))
	return nil
}

// GetFallbackRule returns a rule by id
func (s *Service) GetFallbackRule(ctx context.Context, id uuid.UUID) (*models.FallbackRule, error) {
	r, err := s.repos.FallbackRules.GetByID(ctx, id)
	if err != nil {
		return nil, mapReadError(err, services.ErrFallbackRuleNotFound, "failed to get fallback rule")
	}
	return r, nil
}

// ListFallbackRules returns every fallback rule
func (s *Service) ListFallbackRules(ctx context.Context) ([]*models.FallbackRule, error) {
	list, err := s.repos.FallbackRules.List(ctx)
	if err != nil {
		return nil, services.WrapInternal("failed to list fallback rules", err)
	}
	return list, nil
}

// UpdateFallbackRule replaces a rule
func (s *Service) UpdateFallbackRule(ctx context.Context, r *models.FallbackRule) error {
	if err := s.validateFallbackRule(r); err != nil {
		return err
	}

	var previous models.Scope
	err := s.inTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.GetFallbackRule(ctx, r.ID)
		if err != nil {
			return err
		}
		previous = existing.Scope
		r.CreatedAt = existing.CreatedAt
		r.UpdatedAt = s.now()

		if err := s.repos.FallbackRules.Update(ctx, r); err != nil {
			return mapWriteError(err, services.ErrFallbackRuleNotFound, services.ErrDuplicateKey, "failed to update fallback rule")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.fallbackCache.InvalidateScope(previous)
	s.fallbackCache.InvalidateScope(r.Scope)

	s.logger.Info("fallback rule updated", zap.String("rule_id", r.ID.String()), zap.Bool("enabled", r.IsEnabled))
	return nil
}

// DeleteFallbackRule removes a rule
func (s *Service) DeleteFallbackRule(ctx context.Context, id uuid.UUID) error {
	existing, err := s.GetFallbackRule(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repos.FallbackRules.Delete(ctx, id); err != nil {
		return mapWriteError(err, services.ErrFallbackRuleNotFound, services.ErrDuplicateKey, "failed to delete fallback rule")
	}
	s.fallbackCache.InvalidateScope(existing.Scope)

	s.logger.Info("fallback rule deleted", zap.String("rule_id", id.String()))
	return nil
}

func validatePolicy(p *models.GuardrailPolicy) error {
	if err := validate(p); err != nil {
		return err
	}
	return policy.ValidateConfig(p)
}

func (s *Service) validateFallbackRule(r *models.FallbackRule) error {
	if err := fallback.ValidateRule(r); err != nil {
		return err
	}
	for _, id := range []uuid.UUID{r.PrimaryModelID, r.FallbackModelID} {
		if _, ok := s.catalog.Get(id); !ok {
			return services.InvalidRuleConfiguration("unknown model", nil).WithDetail("model_id", id.String())
		}
	}
	return nil
}
