package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCounter keeps window counters in process memory.
// Each tenant holds only its current buckets, so memory stays bounded by tenant count.
type MemoryCounter struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]*tenantWindows
}

type tenantWindows struct {
	buckets map[Window]string
	counts  map[Window]int64
	tokens  int64 // current minute
}

var _ Counter = (*MemoryCounter)(nil)

// NewMemoryCounter creates an in-memory counter
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{tenants: make(map[uuid.UUID]*tenantWindows)}
}

// Peek returns the current counts without recording anything
func (c *MemoryCounter) Peek(_ context.Context, tenantID uuid.UUID, at time.Time) (Counts, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tw, ok := c.tenants[tenantID]
	if !ok {
		return emptyCounts(at), nil
	}
	tw.roll(at)
	return tw.snapshot(at), nil
}

// Hit records one request and returns counts that include it
func (c *MemoryCounter) Hit(_ context.Context, tenantID uuid.UUID, tokens int64, at time.Time) (Counts, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tw, ok := c.tenants[tenantID]
	if !ok {
		tw = &tenantWindows{
			buckets: make(map[Window]string, len(Windows)),
			counts:  make(map[Window]int64, len(Windows)),
		}
		c.tenants[tenantID] = tw
	}
	tw.roll(at)
	for _, w := range Windows {
		tw.counts[w]++
	}
	if tokens > 0 {
		tw.tokens += tokens
	}
	return tw.snapshot(at), nil
}

// Reset drops the tenant's counters
func (c *MemoryCounter) Reset(_ context.Context, tenantID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tenants, tenantID)
	return nil
}

// roll zeroes every window whose bucket has passed
func (tw *tenantWindows) roll(at time.Time) {
	for _, w := range Windows {
		b := w.bucket(at)
		if tw.buckets[w] != b {
			tw.buckets[w] = b
			tw.counts[w] = 0
			if w == WindowMinute {
				tw.tokens = 0
			}
		}
	}
}

func (tw *tenantWindows) snapshot(at time.Time) Counts {
	hour, day := resets(at)
	return Counts{
		RequestsLastMinute: tw.counts[WindowMinute],
		RequestsLastHour:   tw.counts[WindowHour],
		RequestsLastDay:    tw.counts[WindowDay],
		TokensLastMinute:   tw.tokens,
		HourResetAt:        hour,
		DayResetAt:         day,
	}
}

func emptyCounts(at time.Time) Counts {
	hour, day := resets(at)
	return Counts{HourResetAt: hour, DayResetAt: day}
}
