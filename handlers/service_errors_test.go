package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/ai-governance/services"
	"github.com/upb/ai-governance/utils"
)

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
		hideDetails    bool
	}{
		{"not found", services.ErrPolicyNotFound, http.StatusNotFound, "not_found", false},
		{"validation", services.ErrInvalidInput, http.StatusBadRequest, "bad_request", false},
		{"invalid rule", services.InvalidRuleConfiguration("fallback model must differ from primary", nil), http.StatusBadRequest, "invalid_rule_configuration", false},
		{"unauthorized", services.ErrUnauthorized, http.StatusUnauthorized, "unauthorized", false},
		{"system policy", services.ErrSystemPolicyImmutable, http.StatusForbidden, "forbidden", false},
		{"policy violation", services.PolicyViolation("no-gpt4", "model not allowed"), http.StatusForbidden, "policy_violation", false},
		{"quota exceeded", services.QuotaExceeded("monthly_requests", 100, 100), http.StatusTooManyRequests, "quota_exceeded", false},
		{"conflict", services.ErrDuplicateKey, http.StatusConflict, "conflict", false},
		{"no fallback rule", services.NoApplicableFallbackRule(errors.New("upstream 503")), http.StatusBadGateway, "no_applicable_fallback_rule", false},
		{"fallback exhausted", services.FallbackExhausted(errors.New("backup down")), http.StatusBadGateway, "fallback_exhausted", false},
		{"external", services.ErrProviderTimeout, http.StatusBadGateway, "external", false},
		{"internal", services.WrapInternal("failed to load quota", errors.New("connection reset")), http.StatusInternalServerError, "internal_error", true},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal_error", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleServiceError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response utils.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.expectedError, response.Error)
			assert.NotEmpty(t, response.Message)
			if tt.hideDetails {
				assert.Empty(t, response.Details)
				assert.NotContains(t, response.Message, "connection reset")
			}
		})
	}

	t.Run("nil error writes nothing", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleServiceError(w, nil, logger)
		assert.Equal(t, 0, w.Body.Len())
	})
}

func TestHandleServiceError_QuotaDetails(t *testing.T) {
	w := httptest.NewRecorder()
	HandleServiceError(w, services.QuotaExceeded("monthly_tokens", 1000, 1250), zap.NewNop())

	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "monthly_tokens", response.Details["dimension"])
	assert.EqualValues(t, 1000, response.Details["limit"])
	assert.EqualValues(t, 1250, response.Details["observed"])
}

func TestHandleValidationError(t *testing.T) {
	logger := zap.NewNop()

	t.Run("struct validation error", func(t *testing.T) {
		type body struct {
			Key string `validate:"required"`
		}
		err := utils.ValidateStruct(body{})
		require.True(t, utils.IsValidationError(err))

		w := httptest.NewRecorder()
		HandleValidationError(w, err, logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "Validation failed", response.Message)
		assert.Contains(t, response.Details, "Key")
	})

	t.Run("plain error", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleValidationError(w, errors.New("invalid window"), logger)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "invalid window", response.Message)
	})
}
