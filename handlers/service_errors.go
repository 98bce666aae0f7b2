package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/ai-governance/services"
	"github.com/upb/ai-governance/utils"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	status, resp := classifyError(err, logger)
	if err := utils.WriteJSON(w, status, resp); err != nil {
		logger.Error("failed to write error response", zap.Error(err))
	}
}

// classifyError picks the status and body for a domain error.
// Internal failures are logged and their details withheld.
func classifyError(err error, logger *zap.Logger) (int, utils.ErrorResponse) {
	details := services.GetErrorDetails(err)
	status, code, message := http.StatusInternalServerError, "internal_error", "An internal error occurred"

	switch {
	case services.IsNotFoundError(err):
		status, code, message = http.StatusNotFound, "not_found", err.Error()

	case services.IsValidationError(err):
		status, code, message = http.StatusBadRequest, "bad_request", err.Error()

	case services.IsInvalidRuleConfigurationError(err):
		status, code, message = http.StatusBadRequest, "invalid_rule_configuration", err.Error()

	case services.IsUnauthorizedError(err):
		status, code, message = http.StatusUnauthorized, "unauthorized", err.Error()

	case services.IsForbiddenError(err):
		status, code, message = http.StatusForbidden, "forbidden", err.Error()

	case services.IsPolicyViolationError(err):
		status, code, message = http.StatusForbidden, "policy_violation", err.Error()

	case services.IsQuotaExceededError(err):
		status, code, message = http.StatusTooManyRequests, "quota_exceeded", err.Error()

	case services.IsConflictError(err):
		status, code, message = http.StatusConflict, "conflict", err.Error()

	case services.IsNoApplicableFallbackRuleError(err), services.IsFallbackExhaustedError(err), services.IsExternalError(err):
		status, code, message = http.StatusBadGateway, string(services.GetErrorType(err)), err.Error()

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		details = nil

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		message = "An unexpected error occurred"
		details = nil
	}

	return status, utils.ErrorResponse{Error: code, Message: message, Details: details}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
