package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/middleware"
	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/services"
	"github.com/upb/ai-governance/services/fallback"
	"github.com/upb/ai-governance/services/governance"
	"github.com/upb/ai-governance/utils"
)

const dateLayout = "2006-01-02"

// GovernanceService is the request path used by AI gateways running out of process
type GovernanceService interface {
	Preflight(ctx context.Context, req governance.Request) (*governance.Preflight, error)
	RecordSuccess(ctx context.Context, c governance.Completion) (*models.UsageCounter, error)
	RecordFailure(ctx context.Context, f governance.Failure) (*models.UsageCounter, error)
	RouteFailure(ctx context.Context, req fallback.RouteRequest) (fallback.Decision, error)
	Usage(ctx context.Context, tenantID uuid.UUID, from, to time.Time) (*governance.UsageReport, error)
}

// GovernanceHandler serves preflight checks, outcome reporting, and fallback routing
type GovernanceHandler struct {
	service GovernanceService
	logger  *zap.Logger
	now     func() time.Time
}

// NewGovernanceHandler creates a new GovernanceHandler
func NewGovernanceHandler(service GovernanceService, logger *zap.Logger) *GovernanceHandler {
	return &GovernanceHandler{
		service: service,
		logger:  logger,
		now:     time.Now,
	}
}

// Routes mounts the request-path endpoints
func (h *GovernanceHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/preflight", h.HandlePreflight)
	r.Post("/outcomes", h.HandleOutcome)
	r.Post("/route", h.HandleRoute)
	return r
}

// PreflightResponse carries the checks run for a request and whether it may be dispatched
type PreflightResponse struct {
	Allowed   bool                  `json:"allowed"`
	Preflight *governance.Preflight `json:"preflight,omitempty"`
	Error     *utils.ErrorResponse  `json:"error,omitempty"`
}

// HandlePreflight handles POST /preflight.
// A blocked request answers with 403 or 429 and still carries the partial preflight.
func (h *GovernanceHandler) HandlePreflight(w http.ResponseWriter, r *http.Request) {
	var req governance.Request
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}

	pf, err := h.service.Preflight(r.Context(), req)
	if err != nil {
		if pf == nil || !(services.IsPolicyViolationError(err) || services.IsQuotaExceededError(err)) {
			HandleServiceError(w, err, h.logger)
			return
		}
		status, body := classifyError(err, h.logger)
		h.logger.Info("request blocked",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.String("tenant_id", req.TenantID.String()),
			zap.String("reason", body.Error))
		_ = utils.WriteJSON(w, status, PreflightResponse{Preflight: pf, Error: &body})
		return
	}

	_ = utils.WriteOK(w, PreflightResponse{Allowed: true, Preflight: pf})
}

// OutcomeRequest reports how a dispatched request ended.
// FailureKind is required when Success is false.
type OutcomeRequest struct {
	TenantID    uuid.UUID          `json:"tenant_id" validate:"required"`
	ModelID     uuid.UUID          `json:"model_id" validate:"required"`
	Success     bool               `json:"success"`
	FailureKind models.FailureKind `json:"failure_kind,omitempty" validate:"required_if=Success false,omitempty,oneof=timeout rate_limit error_5xx model_unavailable quota_exceeded"`
	TokensIn    int64              `json:"tokens_in" validate:"gte=0"`
	TokensOut   int64              `json:"tokens_out" validate:"gte=0"`
	LatencyMs   int64              `json:"latency_ms" validate:"gte=0"`
	ToolKey     string             `json:"tool_key,omitempty"`
	ToolCalls   int64              `json:"tool_calls" validate:"gte=0"`
	OverageCost float64            `json:"overage_cost" validate:"gte=0"`
}

// HandleOutcome handles POST /outcomes and returns the updated daily counter
func (h *GovernanceHandler) HandleOutcome(w http.ResponseWriter, r *http.Request) {
	var req OutcomeRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	var (
		counter *models.UsageCounter
		err     error
	)
	if req.Success {
		counter, err = h.service.RecordSuccess(r.Context(), governance.Completion{
			TenantID:    req.TenantID,
			ModelID:     req.ModelID,
			TokensIn:    req.TokensIn,
			TokensOut:   req.TokensOut,
			LatencyMs:   req.LatencyMs,
			ToolKey:     req.ToolKey,
			ToolCalls:   req.ToolCalls,
			OverageCost: req.OverageCost,
		})
	} else {
		counter, err = h.service.RecordFailure(r.Context(), governance.Failure{
			TenantID:  req.TenantID,
			ModelID:   req.ModelID,
			Kind:      req.FailureKind,
			TokensIn:  req.TokensIn,
			TokensOut: req.TokensOut,
			LatencyMs: req.LatencyMs,
			ToolKey:   req.ToolKey,
			ToolCalls: req.ToolCalls,
		})
	}
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, counter)
}

// RouteRequest asks what to do after a failed dispatch
type RouteRequest struct {
	TenantID       *uuid.UUID         `json:"tenant_id,omitempty"`
	PlanID         *uuid.UUID         `json:"plan_id,omitempty"`
	PrimaryModelID uuid.UUID          `json:"primary_model_id" validate:"required"`
	FailureKind    models.FailureKind `json:"failure_kind" validate:"required,oneof=timeout rate_limit error_5xx model_unavailable quota_exceeded"`
	LatencyMs      int64              `json:"latency_ms" validate:"gte=0"`
	ErrorRate      *float64           `json:"error_rate,omitempty" validate:"omitempty,gte=0,lte=100"`
	Attempt        int                `json:"attempt" validate:"gte=0"`
	Error          string             `json:"error,omitempty"` // Upstream failure message, echoed back on propagate
}

// RouteResponse is one routing step
type RouteResponse struct {
	Action          fallback.Action `json:"action"`
	State           fallback.State  `json:"state"`
	Attempt         int             `json:"attempt"`
	DelayMs         int64           `json:"delay_ms,omitempty"`
	FallbackModelID *uuid.UUID      `json:"fallback_model_id,omitempty"`
	PreserveContext bool            `json:"preserve_context,omitempty"`
	RuleID          *uuid.UUID      `json:"rule_id,omitempty"`
	Reason          string          `json:"reason,omitempty"`
}

// HandleRoute handles POST /route
func (h *GovernanceHandler) HandleRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if !decodeJSON(w, r, &req, h.logger) {
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	upstream := errors.New(string(req.FailureKind))
	if req.Error != "" {
		upstream = errors.New(req.Error)
	}

	d, err := h.service.RouteFailure(r.Context(), fallback.RouteRequest{
		TenantID:       req.TenantID,
		PlanID:         req.PlanID,
		PrimaryModelID: req.PrimaryModelID,
		Attempt:        req.Attempt,
		Failure: fallback.FailureEvent{
			Kind:      req.FailureKind,
			LatencyMs: req.LatencyMs,
			ErrorRate: req.ErrorRate,
			Err:       upstream,
		},
	})
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, toRouteResponse(d))
}

func toRouteResponse(d fallback.Decision) RouteResponse {
	resp := RouteResponse{
		Action:          d.Action,
		State:           d.State,
		Attempt:         d.Attempt,
		DelayMs:         d.Delay.Milliseconds(),
		PreserveContext: d.PreserveContext,
	}
	if d.Action == fallback.ActionUseFallback {
		id := d.FallbackModelID
		resp.FallbackModelID = &id
	}
	if d.Rule != nil {
		id := d.Rule.ID
		resp.RuleID = &id
	}
	if d.Err != nil {
		resp.Reason = d.Err.Error()
	}
	return resp
}

// HandleUsage handles GET /usage/{tenantID}?from=2026-01-01&to=2026-02-01.
// The range is half-open and defaults to the current month.
func (h *GovernanceHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid tenant ID format", nil)
		return
	}

	now := h.now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(dateLayout, v); err != nil {
			_ = utils.WriteBadRequest(w, "from must be a date (YYYY-MM-DD)", nil)
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(dateLayout, v); err != nil {
			_ = utils.WriteBadRequest(w, "to must be a date (YYYY-MM-DD)", nil)
			return
		}
	}
	if !from.Before(to) {
		_ = utils.WriteBadRequest(w, "from must be before to", nil)
		return
	}

	report, err := h.service.Usage(r.Context(), tenantID, from, to)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, report)
}
