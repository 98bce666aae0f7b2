// Package ratelimit keeps fixed-window request counters per tenant.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Window is a fixed counting period aligned to UTC
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Windows lists every window a counter maintains
var Windows = []Window{WindowMinute, WindowHour, WindowDay}

// Duration is the length of the window
func (w Window) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// Start returns the beginning of the window containing t
func (w Window) Start(t time.Time) time.Time {
	return t.UTC().Truncate(w.Duration())
}

// bucket names the window instance containing t
func (w Window) bucket(t time.Time) string {
	return fmt.Sprintf("%s:%d", w, w.Start(t).Unix())
}

// Counts are the request totals in the current windows
type Counts struct {
	RequestsLastMinute int64     `json:"requests_last_minute"`
	RequestsLastHour   int64     `json:"requests_last_hour"`
	RequestsLastDay    int64     `json:"requests_last_day"`
	TokensLastMinute   int64     `json:"tokens_last_minute"`
	HourResetAt        time.Time `json:"hour_reset_at"`
	DayResetAt         time.Time `json:"day_reset_at"`
}

func resets(at time.Time) (hour, day time.Time) {
	return WindowHour.Start(at).Add(time.Hour), WindowDay.Start(at).Add(24 * time.Hour)
}

// Counter tracks requests per tenant in fixed windows.
// Implementations must be safe for concurrent use.
type Counter interface {
	// Peek returns the current counts without recording anything
	Peek(ctx context.Context, tenantID uuid.UUID, at time.Time) (Counts, error)

	// Hit records one request carrying tokens and returns counts that include it
	Hit(ctx context.Context, tenantID uuid.UUID, tokens int64, at time.Time) (Counts, error)

	// Reset drops the tenant's counters
	Reset(ctx context.Context, tenantID uuid.UUID) error
}
