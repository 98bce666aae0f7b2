// Package ledger records per-tenant, per-model daily usage and answers period totals.
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/repositories"
	"github.com/upb/ai-governance/services"
)

// Ledger is the usage accounting surface consumed by the governance service
type Ledger interface {
	GetOrCreate(ctx context.Context, key models.UsageKey) (*models.UsageCounter, error)
	RecordOutcome(ctx context.Context, key models.UsageKey, outcome models.Outcome) (*models.UsageCounter, error)
	MonthToDate(ctx context.Context, tenantID uuid.UUID, month time.Time) (*models.UsageTotals, error)
	Summary(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*models.UsageTotals, error)
	Counters(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*models.UsageCounter, error)
}

// Service implements Ledger over a usage store (PostgreSQL or in-memory)
type Service struct {
	store  repositories.UsageRepository
	logger *zap.Logger
	now    func() time.Time
}

var _ Ledger = (*Service)(nil)

// NewService creates a ledger service
func NewService(store repositories.UsageRepository, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// GetOrCreate returns the counter for the key, creating it on first use
func (s *Service) GetOrCreate(ctx context.Context, key models.UsageKey) (*models.UsageCounter, error) {
	if key.TenantID == uuid.Nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "tenant id is required", nil)
	}
	key.Date = models.TruncateDay(key.Date)

	counter, err := s.store.GetOrCreate(ctx, key)
	if err != nil {
		s.logger.Error("failed to load usage counter", zap.String("key", key.String()), zap.Error(err))
		return nil, services.WrapInternal("failed to load usage counter", err)
	}
	return counter, nil
}

// RecordOutcome folds one dispatch result into the key's counter
func (s *Service) RecordOutcome(ctx context.Context, key models.UsageKey, outcome models.Outcome) (*models.UsageCounter, error) {
	if key.TenantID == uuid.Nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "tenant id is required", nil)
	}
	key.Date = models.TruncateDay(key.Date)
	// An outcome always stands for at least one attempt
	if outcome.Requests == 0 {
		outcome.Requests = 1
	}

	counter, err := s.store.Increment(ctx, key, outcome)
	if err != nil {
		s.logger.Error("failed to record usage outcome",
			zap.String("key", key.String()),
			zap.Bool("success", outcome.Success),
			zap.Error(err))
		return nil, services.WrapInternal("failed to record usage outcome", err)
	}

	s.logger.Debug("usage recorded",
		zap.String("key", key.String()),
		zap.Int64("requests", counter.RequestsCount),
		zap.Int64("total_tokens", counter.TotalTokens))

	return counter, nil
}

// MonthToDate sums the tenant's usage over the calendar month containing month
func (s *Service) MonthToDate(ctx context.Context, tenantID uuid.UUID, month time.Time) (*models.UsageTotals, error) {
	from := models.MonthStart(month)
	return s.Summary(ctx, tenantID, from, from.AddDate(0, 1, 0))
}

// Summary sums the tenant's usage with from <= date < to
func (s *Service) Summary(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*models.UsageTotals, error) {
	counters, err := s.Counters(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}

	totals := &models.UsageTotals{TenantID: tenantID, From: from, To: to}
	for _, c := range counters {
		totals.Add(c)
	}
	return totals, nil
}

// Counters returns the raw daily rows for the tenant with from <= date < to
func (s *Service) Counters(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]*models.UsageCounter, error) {
	if tenantID == uuid.Nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "tenant id is required", nil)
	}
	if !to.After(from) {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "usage range end must be after start", nil).
			WithDetail("from", from).
			WithDetail("to", to)
	}

	counters, err := s.store.ListByTenant(ctx, tenantID, models.TruncateDay(from), models.TruncateDay(to))
	if err != nil {
		s.logger.Error("failed to list usage counters", zap.String("tenant_id", tenantID.String()), zap.Error(err))
		return nil, services.WrapInternal("failed to list usage counters", err)
	}

	sort.SliceStable(counters, func(i, j int) bool {
		return counters[i].Date.Before(counters[j].Date)
	})
	return counters, nil
}

// CleanupOldData removes daily rows older than the retention window
func (s *Service) CleanupOldData(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := models.TruncateDay(s.now().Add(-retention))

	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, services.WrapInternal("failed to cleanup old usage data", err)
	}

	s.logger.Info("cleaned up old usage data",
		zap.Int64("rows_deleted", deleted),
		zap.Time("cutoff_date", cutoff))

	return deleted, nil
}

// StartCleanupWorker periodically enforces the retention window until ctx is done
func (s *Service) StartCleanupWorker(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("started usage retention worker",
		zap.Duration("interval", interval),
		zap.Duration("retention", retention))

	for {
		select {
		case <-ticker.C:
			if _, err := s.CleanupOldData(ctx, retention); err != nil {
				s.logger.Error("failed to cleanup old usage data", zap.Error(err))
			}
		case <-ctx.Done():
			s.logger.Info("stopping usage retention worker")
			return
		}
	}
}
