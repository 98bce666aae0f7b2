package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ModelType classifies what kind of workload a model serves
type ModelType string

const (
	ModelTypeChat       ModelType = "chat"
	ModelTypeEmbeddings ModelType = "embeddings"
	ModelTypeVision     ModelType = "vision"
	ModelTypeCode       ModelType = "code"
	ModelTypeMultimodal ModelType = "multimodal"
)

// ModelStatus is the lifecycle status of a catalog entry
type ModelStatus string

const (
	ModelStatusActive     ModelStatus = "active"
	ModelStatusDeprecated ModelStatus = "deprecated"
	ModelStatusDisabled   ModelStatus = "disabled"
)

// AIModel is a catalog entry describing an AI model that tenants may use
type AIModel struct {
	ID              uuid.UUID      `json:"id" db:"id" yaml:"id"`
	Key             string         `json:"key" db:"key" yaml:"key" validate:"required,max=100"`
	Name            string         `json:"name" db:"name" yaml:"name" validate:"required,max=200"`
	Provider        string         `json:"provider" db:"provider" yaml:"provider" validate:"required"`
	Type            ModelType      `json:"type" db:"type" yaml:"type" validate:"required,oneof=chat embeddings vision code multimodal"`
	Status          ModelStatus    `json:"status" db:"status" yaml:"status" validate:"required,oneof=active deprecated disabled"`
	InputCostPer1K  float64        `json:"input_cost_per_1k" db:"input_cost_per_1k" yaml:"input_cost_per_1k" validate:"gte=0"`
	OutputCostPer1K float64        `json:"output_cost_per_1k" db:"output_cost_per_1k" yaml:"output_cost_per_1k" validate:"gte=0"`
	ContextWindow   int            `json:"context_window" db:"context_window" yaml:"context_window" validate:"gte=0"`
	Capabilities    pq.StringArray `json:"capabilities" db:"capabilities" yaml:"capabilities"`
	Regions         pq.StringArray `json:"regions" db:"regions" yaml:"regions"` // Empty means every region
	IsDefault       bool           `json:"is_default" db:"is_default" yaml:"is_default"`
	IsPriority      bool           `json:"is_priority" db:"is_priority" yaml:"is_priority"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at" yaml:"-"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at" yaml:"-"`
}

// TableName returns the table name for the AIModel model
func (AIModel) TableName() string {
	return "ai_models"
}

// NewAIModel creates a new active AIModel
func NewAIModel(key, name, provider string, modelType ModelType, inputCostPer1K, outputCostPer1K float64) *AIModel {
	now := time.Now()
	return &AIModel{
		ID:              uuid.New(),
		Key:             key,
		Name:            name,
		Provider:        provider,
		Type:            modelType,
		Status:          ModelStatusActive,
		InputCostPer1K:  inputCostPer1K,
		OutputCostPer1K: outputCostPer1K,
		Capabilities:    pq.StringArray{},
		Regions:         pq.StringArray{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// IsActive reports whether the model can serve new requests
func (m *AIModel) IsActive() bool {
	return m.Status == ModelStatusActive
}

// AvailableIn reports whether the model may be used from the given region.
// An empty region list means the model is available everywhere.
func (m *AIModel) AvailableIn(region string) bool {
	if len(m.Regions) == 0 || region == "" {
		return true
	}
	for _, r := range m.Regions {
		if r == region {
			return true
		}
	}
	return false
}

// HasCapability reports whether the model advertises the capability
func (m *AIModel) HasCapability(capability string) bool {
	for _, c := range m.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}
