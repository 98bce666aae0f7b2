// Package governance is the entry point the AI request path calls before and
// after dispatching to a model.
package governance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/internal/observability"
	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/repositories"
	"github.com/upb/ai-governance/services"
	"github.com/upb/ai-governance/services/cost"
	"github.com/upb/ai-governance/services/fallback"
	"github.com/upb/ai-governance/services/ledger"
	"github.com/upb/ai-governance/services/policy"
	"github.com/upb/ai-governance/services/quota"
	"github.com/upb/ai-governance/services/ratelimit"
)

// ModelResolver finds catalog entries
type ModelResolver interface {
	Resolve(key, region string) (*models.AIModel, error)
	Lookup(id uuid.UUID) (*models.AIModel, bool)
}

// PolicyEvaluator runs the guardrail policies applicable to a tenant/plan pair
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, tenantID, planID *uuid.UUID, ec policy.EvaluationContext) (*policy.Evaluation, error)
}

// FallbackRouter decides and drives retries and failover
type FallbackRouter interface {
	Decide(ctx context.Context, req fallback.RouteRequest) (fallback.Decision, error)
	Execute(ctx context.Context, req fallback.RouteRequest, invoke fallback.Invoker) (*fallback.Execution, error)
}

// Options tunes the service
type Options struct {
	// StrictWindows rejects requests over the hourly or daily limit instead of reporting them
	StrictWindows bool
}

// Service composes the policy engine, quota enforcer, ledger, and fallback router
type Service struct {
	models     ModelResolver
	policies   PolicyEvaluator
	planQuotas repositories.PlanQuotaRepository
	ledger     ledger.Ledger
	counter    ratelimit.Counter
	router     FallbackRouter
	opts       Options
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a governance service. counter and metrics may be nil.
func NewService(
	modelResolver ModelResolver,
	policies PolicyEvaluator,
	planQuotas repositories.PlanQuotaRepository,
	usage ledger.Ledger,
	counter ratelimit.Counter,
	router FallbackRouter,
	opts Options,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		models:     modelResolver,
		policies:   policies,
		planQuotas: planQuotas,
		ledger:     usage,
		counter:    counter,
		router:     router,
		opts:       opts,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Request describes an AI request about to be dispatched
type Request struct {
	TenantID           uuid.UUID  `json:"tenant_id"`
	PlanID             *uuid.UUID `json:"plan_id,omitempty"`
	ModelKey           string     `json:"model_key,omitempty"` // Empty selects the default model
	Region             string     `json:"region,omitempty"`
	EstimatedTokensIn  int64      `json:"estimated_tokens_in"`
	EstimatedTokensOut int64      `json:"estimated_tokens_out"`
	ToolKeys           []string   `json:"tool_keys,omitempty"`
}

// WindowStatus reports the hourly and daily counters after this request
type WindowStatus struct {
	ratelimit.Counts
	// Exceeded names the window limit the request went over, empty when within limits
	Exceeded string `json:"exceeded,omitempty"`
	Limit    int64  `json:"limit,omitempty"`
	// Unavailable is set when the counters could not be reached
	Unavailable bool `json:"unavailable,omitempty"`
}

// Preflight is the outcome of checking a request before dispatch
type Preflight struct {
	Model         *models.AIModel    `json:"model"`
	Policy        *policy.Evaluation `json:"policy"`
	Decision      quota.Decision     `json:"decision"`
	Quota         *models.PlanQuota  `json:"quota,omitempty"`
	Windows       WindowStatus       `json:"windows"`
	EstimatedCost float64            `json:"estimated_cost"`
}

// ShouldBlock reports whether any check stopped the request
func (p *Preflight) ShouldBlock() bool {
	return (p.Policy != nil && p.Policy.ShouldBlock) || !p.Decision.Admitted()
}

// Preflight runs policy evaluation, per-request limits, monthly admission, and
// window counting for a request. When the request is blocked the partial
// Preflight is returned together with a PolicyViolation or QuotaExceeded error.
func (s *Service) Preflight(ctx context.Context, req Request) (*Preflight, error) {
	if req.TenantID == uuid.Nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "tenant id is required", nil)
	}
	if req.EstimatedTokensIn < 0 || req.EstimatedTokensOut < 0 {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "token estimates must not be negative", nil)
	}

	now := s.now()
	model, err := s.models.Resolve(req.ModelKey, req.Region)
	if err != nil {
		return nil, err
	}
	pf := &Preflight{
		Model:         model,
		Decision:      quota.Decision{Verdict: quota.Allowed},
		EstimatedCost: cost.Cost(model, req.EstimatedTokensIn, req.EstimatedTokensOut),
	}
	tenantID := req.TenantID

	counts := s.peekWindows(ctx, tenantID, now, &pf.Windows)

	eval, err := s.policies.Evaluate(ctx, &tenantID, req.PlanID, policy.EvaluationContext{
		Model:              model,
		ModelKey:           model.Key,
		Region:             req.Region,
		EstimatedTokensIn:  req.EstimatedTokensIn,
		EstimatedTokensOut: req.EstimatedTokensOut,
		ToolKeys:           req.ToolKeys,
		RequestsLastMinute: counts.RequestsLastMinute,
		RequestsLastHour:   counts.RequestsLastHour,
		TokensLastMinute:   counts.TokensLastMinute,
	})
	if err != nil {
		return nil, err
	}
	pf.Policy = eval
	if err := eval.Err(); err != nil {
		s.logger.Info("request blocked by policy",
			zap.String("tenant_id", tenantID.String()),
			zap.String("policy", eval.BlockedBy),
			zap.String("model", model.Key))
		return pf, err
	}

	q, err := s.loadQuota(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	pf.Quota = q

	if err := quota.CheckRequestShape(q, req.EstimatedTokensIn, req.EstimatedTokensOut, int64(len(req.ToolKeys))); err != nil {
		pf.Decision = rejectedBy(err)
		s.recordAdmission(pf.Decision)
		return pf, err
	}

	totals, err := s.ledger.MonthToDate(ctx, tenantID, now)
	if err != nil {
		s.recordLedgerError("month_to_date")
		return nil, err
	}
	estimated := req.EstimatedTokensIn + req.EstimatedTokensOut
	pf.Decision = quota.Admit(q, totals.Requests, totals.TotalTokens, estimated)
	s.recordAdmission(pf.Decision)
	if err := pf.Decision.Err(); err != nil {
		s.logger.Info("request rejected by quota",
			zap.String("tenant_id", tenantID.String()),
			zap.String("dimension", pf.Decision.Dimension),
			zap.Int64("limit", pf.Decision.Limit),
			zap.Int64("observed", pf.Decision.Observed))
		return pf, err
	}

	if err := s.hitWindows(ctx, tenantID, estimated, now, q, pf); err != nil {
		pf.Decision = rejectedBy(err)
		return pf, err
	}

	return pf, nil
}

func (s *Service) loadQuota(ctx context.Context, planID *uuid.UUID) (*models.PlanQuota, error) {
	if planID == nil {
		return nil, nil
	}
	q, err := s.planQuotas.GetByPlanID(ctx, *planID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil
		}
		s.logger.Error("failed to load plan quota", zap.String("plan_id", planID.String()), zap.Error(err))
		return nil, services.WrapInternal("failed to load plan quota", err)
	}
	if !q.IsActive {
		return nil, nil
	}
	return q, nil
}

// peekWindows reads the counters for policy evaluation. Counter outages do
// not block requests; the windows are reported as unavailable instead.
func (s *Service) peekWindows(ctx context.Context, tenantID uuid.UUID, now time.Time, status *WindowStatus) ratelimit.Counts {
	if s.counter == nil {
		return ratelimit.Counts{}
	}
	counts, err := s.counter.Peek(ctx, tenantID, now)
	if err != nil {
		s.logger.Warn("request window counters unavailable",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		status.Unavailable = true
		return ratelimit.Counts{}
	}
	return counts
}

func (s *Service) hitWindows(ctx context.Context, tenantID uuid.UUID, tokens int64, now time.Time, q *models.PlanQuota, pf *Preflight) error {
	if s.counter == nil {
		return nil
	}
	counts, err := s.counter.Hit(ctx, tenantID, tokens, now)
	if err != nil {
		s.logger.Warn("failed to count request",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		pf.Windows.Unavailable = true
		return nil
	}
	pf.Windows.Counts = counts

	err = quota.CheckWindows(q, counts.RequestsLastHour, counts.RequestsLastDay)
	if err == nil {
		return nil
	}

	var de *services.DomainError
	if errors.As(err, &de) {
		dim, _ := de.Details["dimension"].(string)
		limit, _ := de.Details["limit"].(int64)
		pf.Windows.Exceeded = dim
		pf.Windows.Limit = limit
		if s.metrics != nil {
			s.metrics.RecordWindowLimit(dim, s.opts.StrictWindows)
		}
	}

	s.logger.Info("request window limit reached",
		zap.String("tenant_id", tenantID.String()),
		zap.String("window", pf.Windows.Exceeded),
		zap.Bool("strict", s.opts.StrictWindows))

	if s.opts.StrictWindows {
		return err
	}
	return nil
}

// Completion reports a successful dispatch
type Completion struct {
	TenantID    uuid.UUID
	ModelID     uuid.UUID
	TokensIn    int64
	TokensOut   int64
	LatencyMs   int64
	ToolKey     string
	ToolCalls   int64
	OverageCost float64 // From the request's Preflight decision
}

// RecordSuccess writes a successful dispatch to the ledger with its estimated cost
func (s *Service) RecordSuccess(ctx context.Context, c Completion) (*models.UsageCounter, error) {
	requestCost := c.OverageCost
	if m, ok := s.models.Lookup(c.ModelID); ok {
		requestCost += cost.Cost(m, c.TokensIn, c.TokensOut)
	} else {
		s.logger.Warn("recording usage for unknown model", zap.String("model_id", c.ModelID.String()))
	}

	modelID := c.ModelID
	counter, err := s.ledger.RecordOutcome(ctx, models.NewUsageKey(c.TenantID, &modelID, s.now()), models.Outcome{
		Requests:  1,
		TokensIn:  c.TokensIn,
		TokensOut: c.TokensOut,
		Success:   true,
		LatencyMs: c.LatencyMs,
		ToolKey:   c.ToolKey,
		ToolCalls: c.ToolCalls,
		Cost:      requestCost,
	})
	if err != nil {
		s.recordLedgerError("record_success")
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordUsage(c.TokensIn, c.TokensOut, requestCost)
	}
	return counter, nil
}

// Failure reports a failed dispatch
type Failure struct {
	TenantID  uuid.UUID
	ModelID   uuid.UUID
	Kind      models.FailureKind
	TokensIn  int64 // Tokens billed by the provider despite the failure, usually zero
	TokensOut int64
	LatencyMs int64
	ToolKey   string
	ToolCalls int64
}

// RecordFailure writes a failed dispatch to the ledger
func (s *Service) RecordFailure(ctx context.Context, f Failure) (*models.UsageCounter, error) {
	var requestCost float64
	if m, ok := s.models.Lookup(f.ModelID); ok {
		requestCost = cost.Cost(m, f.TokensIn, f.TokensOut)
	}

	modelID := f.ModelID
	counter, err := s.ledger.RecordOutcome(ctx, models.NewUsageKey(f.TenantID, &modelID, s.now()), models.Outcome{
		Requests:    1,
		TokensIn:    f.TokensIn,
		TokensOut:   f.TokensOut,
		Success:     false,
		LatencyMs:   f.LatencyMs,
		ToolKey:     f.ToolKey,
		ToolCalls:   f.ToolCalls,
		Timeout:     f.Kind == models.FailureTimeout,
		RateLimited: f.Kind == models.FailureRateLimit,
		Cost:        requestCost,
	})
	if err != nil {
		s.recordLedgerError("record_failure")
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordUsage(f.TokensIn, f.TokensOut, requestCost)
	}
	return counter, nil
}

// RouteFailure returns the next step for a failed dispatch
func (s *Service) RouteFailure(ctx context.Context, req fallback.RouteRequest) (fallback.Decision, error) {
	d, err := s.router.Decide(ctx, req)
	if err != nil {
		s.logger.Error("failed to load fallback rules", zap.Error(err))
		return fallback.Decision{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordFallbackDecision(string(req.Failure.Kind), string(d.Action))
	}

	fields := []zap.Field{
		zap.String("failure", string(req.Failure.Kind)),
		zap.String("action", string(d.Action)),
		zap.String("primary_model_id", req.PrimaryModelID.String()),
		zap.Int("attempt", d.Attempt),
	}
	if d.Action == fallback.ActionUseFallback {
		fields = append(fields, zap.String("fallback_model_id", d.FallbackModelID.String()))
	}
	s.logger.Info("fallback decision", fields...)

	return d, nil
}

// ExecuteFallback drives retries and failover for a failed dispatch through invoke.
// Every retry and fallback call that fails is written to the ledger as a failure,
// and a deadline that cuts the sequence short counts as a timeout on the primary.
func (s *Service) ExecuteFallback(ctx context.Context, req fallback.RouteRequest, invoke fallback.Invoker) (*fallback.Execution, error) {
	tenantID := uuid.Nil
	if req.TenantID != nil {
		tenantID = *req.TenantID
	}

	wrapped := func(ctx context.Context, call fallback.Call) error {
		started := s.now()
		err := invoke(ctx, call)
		if err != nil && tenantID != uuid.Nil {
			if _, recErr := s.RecordFailure(ctx, Failure{
				TenantID:  tenantID,
				ModelID:   call.ModelID,
				Kind:      req.Failure.Kind,
				LatencyMs: s.now().Sub(started).Milliseconds(),
			}); recErr != nil {
				s.logger.Error("failed to record fallback attempt", zap.Error(recErr))
			}
		}
		return err
	}

	started := s.now()
	exec, err := s.router.Execute(ctx, req, wrapped)
	if exec != nil && exec.TimedOut && tenantID != uuid.Nil {
		if _, recErr := s.RecordFailure(context.WithoutCancel(ctx), Failure{
			TenantID:  tenantID,
			ModelID:   req.PrimaryModelID,
			Kind:      models.FailureTimeout,
			LatencyMs: s.now().Sub(started).Milliseconds(),
		}); recErr != nil {
			s.logger.Error("failed to record cancelled fallback", zap.Error(recErr))
		}
	}
	if exec != nil && s.metrics != nil {
		s.metrics.RecordFallbackDecision(string(req.Failure.Kind), string(exec.State))
	}
	return exec, err
}

// UsageReport is a tenant's usage over a period, repriced with current model rates
type UsageReport struct {
	Totals    *models.UsageTotals    `json:"totals"`
	Counters  []*models.UsageCounter `json:"counters"`
	Breakdown cost.Breakdown         `json:"breakdown"`
}

// Usage summarises the tenant's usage with from <= date < to
func (s *Service) Usage(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*UsageReport, error) {
	counters, err := s.ledger.Counters(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	totals := &models.UsageTotals{TenantID: tenantID, From: from, To: to}
	for _, c := range counters {
		totals.Add(c)
	}
	return &UsageReport{
		Totals:    totals,
		Counters:  counters,
		Breakdown: cost.PlanCost(counters, s.models.Lookup),
	}, nil
}

func rejectedBy(err error) quota.Decision {
	d := quota.Decision{Verdict: quota.Rejected}
	var de *services.DomainError
	if errors.As(err, &de) {
		d.Dimension, _ = de.Details["dimension"].(string)
		d.Limit, _ = de.Details["limit"].(int64)
		d.Observed, _ = de.Details["observed"].(int64)
	}
	return d
}

func (s *Service) recordAdmission(d quota.Decision) {
	if s.metrics != nil {
		s.metrics.RecordAdmission(string(d.Verdict), d.Dimension, d.OverageCost)
	}
}

func (s *Service) recordLedgerError(op string) {
	if s.metrics != nil {
		s.metrics.RecordLedgerError(op)
	}
}
