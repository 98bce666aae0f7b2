package fallback

import (
	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/services"
	"github.com/upb/ai-governance/utils"
)

// ValidateRule rejects rule configurations the router could never honour
func ValidateRule(rule *models.FallbackRule) error {
	if rule == nil {
		return services.InvalidRuleConfiguration("fallback rule is required", nil)
	}

	if rule.PrimaryModelID == rule.FallbackModelID {
		return services.InvalidRuleConfiguration("primary and fallback model must differ", nil).
			WithDetail("model_id", rule.PrimaryModelID.String())
	}

	for _, t := range rule.TriggerOn {
		if !models.FailureKind(t).IsValid() {
			return services.InvalidRuleConfiguration("unknown trigger kind "+t, nil).
				WithDetail("trigger", t)
		}
	}

	if rule.HasTrigger(models.FailureTimeout) && rule.TimeoutThresholdMs == nil {
		return services.InvalidRuleConfiguration("timeout trigger requires timeout_threshold_ms", nil)
	}

	if err := utils.ValidateStruct(rule); err != nil {
		de := services.InvalidRuleConfiguration("invalid fallback rule", err)
		for field, msg := range utils.GetValidationFields(err) {
			de.WithDetail(field, msg)
		}
		return de
	}

	return nil
}
