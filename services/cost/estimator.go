// Package cost converts token counts into monetary cost.
package cost

import (
	"github.com/google/uuid"
	"github.com/upb/ai-governance/models"
)

// Cost is the price of a request against the model's per-1K token rates
func Cost(model *models.AIModel, tokensIn, tokensOut int64) float64 {
	if model == nil {
		return 0
	}
	return float64(tokensIn)/1000*model.InputCostPer1K + float64(tokensOut)/1000*model.OutputCostPer1K
}

// OverageCost prices usage beyond a plan's monthly limits
func OverageCost(quota *models.PlanQuota, extraRequests, extraTokens int64) float64 {
	if quota == nil {
		return 0
	}
	if extraRequests < 0 {
		extraRequests = 0
	}
	if extraTokens < 0 {
		extraTokens = 0
	}
	return float64(extraRequests)*quota.OverageCostPerRequest +
		float64(extraTokens)/1000*quota.OverageCostPer1KTokens
}

// ModelLookup resolves a model by id
type ModelLookup func(id uuid.UUID) (*models.AIModel, bool)

// Breakdown is per-model cost over a set of usage counters
type Breakdown struct {
	Total   float64               `json:"total"`
	ByModel map[uuid.UUID]float64 `json:"by_model"`
	// Unpriced accumulates recorded cost for rows with no resolvable model
	Unpriced float64 `json:"unpriced"`
}

// PlanCost reprices counters with current model rates. Rows without a model,
// or whose model is no longer known, contribute their recorded estimate.
func PlanCost(counters []*models.UsageCounter, lookup ModelLookup) Breakdown {
	b := Breakdown{ByModel: make(map[uuid.UUID]float64)}
	for _, c := range counters {
		if c.ModelID == nil {
			b.Unpriced += c.CostEstimated
			b.Total += c.CostEstimated
			continue
		}
		m, ok := lookup(*c.ModelID)
		if !ok {
			b.Unpriced += c.CostEstimated
			b.Total += c.CostEstimated
			continue
		}
		v := Cost(m, c.TokensIn, c.TokensOut)
		b.ByModel[m.ID] += v
		b.Total += v
	}
	return b
}
