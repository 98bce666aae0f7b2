package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/models"
	"github.com/upb/ai-governance/services"
	"github.com/upb/ai-governance/services/fallback"
	"github.com/upb/ai-governance/services/governance"
	"github.com/upb/ai-governance/services/quota"
)

func serveGovernance(svc *MockGovernanceService, method, path, body string) *httptest.ResponseRecorder {
	handler := NewGovernanceHandler(svc, zap.NewNop())
	handler.now = func() time.Time { return time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC) }

	r := chi.NewRouter()
	r.Mount("/governance", handler.Routes())
	r.Get("/usage/{tenantID}", handler.HandleUsage)

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGovernanceHandler_Preflight(t *testing.T) {
	tenant := uuid.New()
	model := models.NewAIModel("gpt-4o", "GPT-4o", "openai", models.ModelTypeChat, 0.01, 0.02)

	t.Run("allowed", func(t *testing.T) {
		svc := new(MockGovernanceService)
		svc.On("Preflight", mock.Anything, mock.MatchedBy(func(req governance.Request) bool {
			return req.TenantID == tenant && req.EstimatedTokensIn == 500
		})).Return(&governance.Preflight{
			Model:    model,
			Decision: quota.Decision{Verdict: quota.Allowed},
		}, nil)

		body := `{"tenant_id":"` + tenant.String() + `","estimated_tokens_in":500,"estimated_tokens_out":200}`
		w := serveGovernance(svc, http.MethodPost, "/governance/preflight", body)

		assert.Equal(t, http.StatusOK, w.Code)
		data := decodeData(t, w)
		assert.Equal(t, true, data["allowed"])
		svc.AssertExpectations(t)
	})

	t.Run("quota rejection keeps the preflight", func(t *testing.T) {
		svc := new(MockGovernanceService)
		pf := &governance.Preflight{
			Model:    model,
			Decision: quota.Decision{Verdict: quota.Rejected, Dimension: "monthly_requests", Limit: 100, Observed: 100},
		}
		svc.On("Preflight", mock.Anything, mock.Anything).Return(pf, services.QuotaExceeded("monthly_requests", 100, 100))

		w := serveGovernance(svc, http.MethodPost, "/governance/preflight", `{"tenant_id":"`+tenant.String()+`"}`)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		var response PreflightResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.False(t, response.Allowed)
		require.NotNil(t, response.Preflight)
		assert.Equal(t, "monthly_requests", response.Preflight.Decision.Dimension)
		require.NotNil(t, response.Error)
		assert.Equal(t, "quota_exceeded", response.Error.Error)
	})

	t.Run("policy block", func(t *testing.T) {
		svc := new(MockGovernanceService)
		svc.On("Preflight", mock.Anything, mock.Anything).
			Return(&governance.Preflight{Model: model}, services.PolicyViolation("no-gpt4", "gpt-4o is not allowed on this plan"))

		w := serveGovernance(svc, http.MethodPost, "/governance/preflight", `{"tenant_id":"`+tenant.String()+`"}`)

		assert.Equal(t, http.StatusForbidden, w.Code)
		var response PreflightResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "policy_violation", response.Error.Error)
		assert.Equal(t, "no-gpt4", response.Error.Details["policy"])
	})

	t.Run("unknown model", func(t *testing.T) {
		svc := new(MockGovernanceService)
		svc.On("Preflight", mock.Anything, mock.Anything).Return(nil, services.ErrModelNotFound)

		w := serveGovernance(svc, http.MethodPost, "/governance/preflight", `{"tenant_id":"`+tenant.String()+`","model_key":"nope"}`)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := serveGovernance(new(MockGovernanceService), http.MethodPost, "/governance/preflight", `{"tenant_id":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGovernanceHandler_Outcome(t *testing.T) {
	tenant, model := uuid.New(), uuid.New()

	t.Run("success", func(t *testing.T) {
		svc := new(MockGovernanceService)
		svc.On("RecordSuccess", mock.Anything, governance.Completion{
			TenantID:  tenant,
			ModelID:   model,
			TokensIn:  1000,
			TokensOut: 400,
			LatencyMs: 850,
		}).Return(&models.UsageCounter{TenantID: tenant, RequestsCount: 1}, nil)

		body := `{"tenant_id":"` + tenant.String() + `","model_id":"` + model.String() + `","success":true,"tokens_in":1000,"tokens_out":400,"latency_ms":850}`
		w := serveGovernance(svc, http.MethodPost, "/governance/outcomes", body)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("failure", func(t *testing.T) {
		svc := new(MockGovernanceService)
		svc.On("RecordFailure", mock.Anything, mock.MatchedBy(func(f governance.Failure) bool {
			return f.Kind == models.FailureTimeout && f.LatencyMs == 30000
		})).Return(&models.UsageCounter{TenantID: tenant}, nil)

		body := `{"tenant_id":"` + tenant.String() + `","model_id":"` + model.String() + `","success":false,"failure_kind":"timeout","latency_ms":30000}`
		w := serveGovernance(svc, http.MethodPost, "/governance/outcomes", body)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("failure keeps reported output and tools", func(t *testing.T) {
		svc := new(MockGovernanceService)
		svc.On("RecordFailure", mock.Anything, governance.Failure{
			TenantID:  tenant,
			ModelID:   model,
			Kind:      models.FailureError5xx,
			TokensIn:  1000,
			TokensOut: 250,
			LatencyMs: 900,
			ToolKey:   "web_search",
			ToolCalls: 3,
		}).Return(&models.UsageCounter{TenantID: tenant}, nil)

		body := `{"tenant_id":"` + tenant.String() + `","model_id":"` + model.String() + `","success":false,"failure_kind":"error_5xx",` +
			`"tokens_in":1000,"tokens_out":250,"latency_ms":900,"tool_key":"web_search","tool_calls":3}`
		w := serveGovernance(svc, http.MethodPost, "/governance/outcomes", body)

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("failure without kind", func(t *testing.T) {
		svc := new(MockGovernanceService)
		body := `{"tenant_id":"` + tenant.String() + `","model_id":"` + model.String() + `","success":false}`

		w := serveGovernance(svc, http.MethodPost, "/governance/outcomes", body)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "RecordFailure", mock.Anything, mock.Anything)
	})

	t.Run("negative tokens", func(t *testing.T) {
		body := `{"tenant_id":"` + tenant.String() + `","model_id":"` + model.String() + `","success":true,"tokens_in":-5}`
		w := serveGovernance(new(MockGovernanceService), http.MethodPost, "/governance/outcomes", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGovernanceHandler_Route(t *testing.T) {
	primary, backup := uuid.New(), uuid.New()
	rule := &models.FallbackRule{ID: uuid.New(), PrimaryModelID: primary, FallbackModelID: backup}

	t.Run("use fallback", func(t *testing.T) {
		svc := new(MockGovernanceService)
		svc.On("RouteFailure", mock.Anything, mock.MatchedBy(func(req fallback.RouteRequest) bool {
			return req.PrimaryModelID == primary && req.Failure.Kind == models.FailureRateLimit && req.Attempt == 1
		})).Return(fallback.Decision{
			Action:          fallback.ActionUseFallback,
			State:           fallback.StateFailover,
			FallbackModelID: backup,
			PreserveContext: true,
			Rule:            rule,
		}, nil)

		body := `{"primary_model_id":"` + primary.String() + `","failure_kind":"rate_limit","attempt":1}`
		w := serveGovernance(svc, http.MethodPost, "/governance/route", body)

		assert.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Data RouteResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, fallback.ActionUseFallback, response.Data.Action)
		require.NotNil(t, response.Data.FallbackModelID)
		assert.Equal(t, backup, *response.Data.FallbackModelID)
		assert.Equal(t, rule.ID, *response.Data.RuleID)
		assert.True(t, response.Data.PreserveContext)
	})

	t.Run("retry carries delay", func(t *testing.T) {
		svc := new(MockGovernanceService)
		svc.On("RouteFailure", mock.Anything, mock.Anything).Return(fallback.Decision{
			Action:  fallback.ActionRetryPrimary,
			State:   fallback.StateRetryingPrimary,
			Attempt: 1,
			Delay:   250 * time.Millisecond,
			Rule:    rule,
		}, nil)

		body := `{"primary_model_id":"` + primary.String() + `","failure_kind":"error_5xx","error_rate":12.5}`
		w := serveGovernance(svc, http.MethodPost, "/governance/route", body)

		var response struct {
			Data RouteResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, int64(250), response.Data.DelayMs)
		assert.Nil(t, response.Data.FallbackModelID)
	})

	t.Run("propagate echoes upstream error", func(t *testing.T) {
		svc := new(MockGovernanceService)
		svc.On("RouteFailure", mock.Anything, mock.MatchedBy(func(req fallback.RouteRequest) bool {
			return req.Failure.Err != nil && req.Failure.Err.Error() == "upstream returned 503"
		})).Return(fallback.Decision{
			Action: fallback.ActionPropagate,
			State:  fallback.StateExhausted,
			Err:    services.NoApplicableFallbackRule(nil),
		}, nil)

		body := `{"primary_model_id":"` + primary.String() + `","failure_kind":"error_5xx","error":"upstream returned 503"}`
		w := serveGovernance(svc, http.MethodPost, "/governance/route", body)

		assert.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Data RouteResponse `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, fallback.ActionPropagate, response.Data.Action)
		assert.Contains(t, response.Data.Reason, "no applicable fallback rule")
		svc.AssertExpectations(t)
	})

	t.Run("unknown failure kind", func(t *testing.T) {
		body := `{"primary_model_id":"` + primary.String() + `","failure_kind":"disk_full"}`
		w := serveGovernance(new(MockGovernanceService), http.MethodPost, "/governance/route", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGovernanceHandler_Usage(t *testing.T) {
	tenant := uuid.New()

	t.Run("defaults to current month", func(t *testing.T) {
		svc := new(MockGovernanceService)
		from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
		svc.On("Usage", mock.Anything, tenant, from, to).
			Return(&governance.UsageReport{Totals: &models.UsageTotals{TenantID: tenant}}, nil)

		w := serveGovernance(svc, http.MethodGet, "/usage/"+tenant.String(), "")

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("explicit range", func(t *testing.T) {
		svc := new(MockGovernanceService)
		from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
		svc.On("Usage", mock.Anything, tenant, from, to).
			Return(&governance.UsageReport{Totals: &models.UsageTotals{TenantID: tenant}}, nil)

		w := serveGovernance(svc, http.MethodGet, "/usage/"+tenant.String()+"?from=2026-01-01&to=2026-01-15", "")

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	tests := []struct {
		name string
		path string
	}{
		{"bad tenant", "/usage/abc"},
		{"bad from", "/usage/" + tenant.String() + "?from=yesterday"},
		{"empty range", "/usage/" + tenant.String() + "?from=2026-02-01&to=2026-02-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveGovernance(new(MockGovernanceService), http.MethodGet, tt.path, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}
