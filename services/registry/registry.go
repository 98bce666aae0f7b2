// Package registry holds the in-memory model catalog used by the governance engine.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/internal/observability"
	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/repositories"
	"github.com/upb/ai-governance/services"
)

// Registry is a concurrent model catalog loaded from the database and an
// optional YAML file. File entries override database entries with the same key.
type Registry struct {
	repo        repositories.ModelRepository
	catalogPath string
	metrics     *observability.Metrics
	logger      *zap.Logger

	mu    sync.RWMutex
	byID  map[uuid.UUID]*models.AIModel
	byKey map[string]*models.AIModel
}

// New creates an empty registry. repo and metrics may be nil; an empty catalogPath skips the file.
func New(repo repositories.ModelRepository, catalogPath string, metrics *observability.Metrics, logger *zap.Logger) *Registry {
	return &Registry{
		repo:        repo,
		catalogPath: catalogPath,
		metrics:     metrics,
		logger:      logger,
		byID:        make(map[uuid.UUID]*models.AIModel),
		byKey:       make(map[string]*models.AIModel),
	}
}

// CatalogPath returns the watched YAML file, empty when none
func (r *Registry) CatalogPath() string {
	return r.catalogPath
}

// Load rebuilds the catalog from its sources and swaps it in atomically.
// On error the previous catalog stays in place.
func (r *Registry) Load(ctx context.Context) error {
	byID := make(map[uuid.UUID]*models.AIModel)
	byKey := make(map[string]*models.AIModel)

	if r.repo != nil {
		dbModels, err := r.repo.List(ctx, true)
		if err != nil {
			r.recordReload("error", 0)
			return fmt.Errorf("failed to load models from database: %w", err)
		}
		for _, m := range dbModels {
			byID[m.ID] = m
			byKey[m.Key] = m
		}
	}

	if r.catalogPath != "" {
		fileModels, err := LoadCatalogFile(r.catalogPath)
		if err != nil {
			r.recordReload("error", 0)
			return err
		}
		for _, m := range fileModels {
			if prev, ok := byKey[m.Key]; ok {
				delete(byID, prev.ID)
			}
			byID[m.ID] = m
			byKey[m.Key] = m
		}
	}

	r.mu.Lock()
	r.byID = byID
	r.byKey = byKey
	r.mu.Unlock()

	r.recordReload("success", len(byKey))
	r.logger.Info("model catalog loaded",
		zap.Int("models", len(byKey)),
		zap.String("catalog_path", r.catalogPath))
	return nil
}

// Get returns a model by id
func (r *Registry) Get(id uuid.UUID) (*models.AIModel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[id]
	return m, ok
}

// GetByKey returns a model by key
func (r *Registry) GetByKey(key string) (*models.AIModel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byKey[key]
	return m, ok
}

// Default returns the active model flagged as default, preferring the lowest key on conflict
func (r *Registry) Default() (*models.AIModel, bool) {
	for _, m := range r.List() {
		if m.IsDefault && m.IsActive() {
			return m, true
		}
	}
	return nil, false
}

// List returns every model ordered by key
func (r *Registry) List() []*models.AIModel {
	r.mu.RLock()
	out := make([]*models.AIModel, 0, len(r.byKey))
	for _, m := range r.byKey {
		out = append(out, m)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of catalog entries
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}

// Resolve finds a model by key, falling back to the default model when key is empty,
// and checks that it can serve requests from the region
func (r *Registry) Resolve(key, region string) (*models.AIModel, error) {
	var (
		m  *models.AIModel
		ok bool
	)
	if key == "" {
		m, ok = r.Default()
	} else {
		m, ok = r.GetByKey(key)
	}
	if !ok {
		return nil, services.NewDomainError(services.ErrorTypeNotFound, "model not found", nil).
			WithDetail("model", key)
	}
	if m.Status == models.ModelStatusDisabled {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "model is disabled", nil).
			WithDetail("model", m.Key)
	}
	if !m.AvailableIn(region) {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "model is not available in region", nil).
			WithDetail("model", m.Key).
			WithDetail("region", region)
	}
	return m, nil
}

// Put inserts or replaces a single entry, used after admin writes
func (r *Registry) Put(m *models.AIModel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byKey[m.Key]; ok && prev.ID != m.ID {
		delete(r.byID, prev.ID)
	}
	if prev, ok := r.byID[m.ID]; ok && prev.Key != m.Key {
		delete(r.byKey, prev.Key)
	}
	r.byID[m.ID] = m
	r.byKey[m.Key] = m
}

// Lookup adapts Get to cost.ModelLookup
func (r *Registry) Lookup(id uuid.UUID) (*models.AIModel, bool) {
	return r.Get(id)
}

func (r *Registry) recordReload(status string, n int) {
	if r.metrics != nil {
		r.metrics.RecordCatalogReload(status, n)
	}
}
