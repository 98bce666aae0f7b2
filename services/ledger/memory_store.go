package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/repositories"
)

// MemoryStore keeps usage counters in process memory.
// Each key has its own mutex so increments on different keys never contend.
type MemoryStore struct {
	mu   sync.Mutex // guards rows, not the counters inside
	rows map[string]*memoryRow
}

type memoryRow struct {
	mu      sync.Mutex
	counter *models.UsageCounter
	dropped bool // removed by retention; holders must fetch the key again
}

var _ repositories.UsageRepository = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*memoryRow)}
}

func (s *MemoryStore) row(key models.UsageKey) *memoryRow {
	k := key.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[k]
	if !ok {
		r = &memoryRow{counter: models.NewUsageCounter(key)}
		s.rows[k] = r
	}
	return r
}

// GetOrCreate returns a copy of the key's counter
func (s *MemoryStore) GetOrCreate(_ context.Context, key models.UsageKey) (*models.UsageCounter, error) {
	r := s.row(key)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counter.Clone(), nil
}

// Increment applies the outcome under the key's lock and returns the new totals
func (s *MemoryStore) Increment(_ context.Context, key models.UsageKey, outcome models.Outcome) (*models.UsageCounter, error) {
	for {
		r := s.row(key)
		r.mu.Lock()
		if r.dropped {
			r.mu.Unlock()
			continue
		}
		r.counter.Apply(outcome)
		c := r.counter.Clone()
		r.mu.Unlock()
		return c, nil
	}
}

// ListByTenant returns copies of the tenant's counters with from <= date < to
func (s *MemoryStore) ListByTenant(_ context.Context, tenantID uuid.UUID, from, to time.Time) ([]*models.UsageCounter, error) {
	s.mu.Lock()
	rows := make([]*memoryRow, 0, len(s.rows))
	for _, r := range s.rows {
		rows = append(rows, r)
	}
	s.mu.Unlock()

	var out []*models.UsageCounter
	for _, r := range rows {
		r.mu.Lock()
		c := r.counter
		if c.TenantID == tenantID && !c.Date.Before(from) && c.Date.Before(to) {
			out = append(out, c.Clone())
		}
		r.mu.Unlock()
	}
	return out, nil
}

// DeleteOlderThan drops counters dated before the cutoff
func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for k, r := range s.rows {
		r.mu.Lock()
		if r.counter.Date.Before(cutoff) {
			r.dropped = true
			delete(s.rows, k)
			deleted++
		}
		r.mu.Unlock()
	}
	return deleted, nil
}
