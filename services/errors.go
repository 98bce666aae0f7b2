package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound                 ErrorType = "not_found"
	ErrorTypeValidation               ErrorType = "validation"
	ErrorTypeUnauthorized             ErrorType = "unauthorized"
	ErrorTypeForbidden                ErrorType = "forbidden"
	ErrorTypeConflict                 ErrorType = "conflict"
	ErrorTypeInternal                 ErrorType = "internal"
	ErrorTypeExternal                 ErrorType = "external"
	ErrorTypeQuotaExceeded            ErrorType = "quota_exceeded"
	ErrorTypePolicyViolation          ErrorType = "policy_violation"
	ErrorTypeNoApplicableFallbackRule ErrorType = "no_applicable_fallback_rule"
	ErrorTypeFallbackExhausted        ErrorType = "fallback_exhausted"
	ErrorTypeInvalidRuleConfiguration ErrorType = "invalid_rule_configuration"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables. These are comparison targets for errors.Is;
// build a fresh error with NewDomainError before attaching details.

var (
	// Not Found Errors
	ErrModelNotFound        = NewDomainError(ErrorTypeNotFound, "model not found", nil)
	ErrPlanQuotaNotFound    = NewDomainError(ErrorTypeNotFound, "plan quota not found", nil)
	ErrPolicyNotFound       = NewDomainError(ErrorTypeNotFound, "policy not found", nil)
	ErrFallbackRuleNotFound = NewDomainError(ErrorTypeNotFound, "fallback rule not found", nil)
	ErrUsageNotFound        = NewDomainError(ErrorTypeNotFound, "usage record not found", nil)

	// Validation Errors
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidModel = NewDomainError(ErrorTypeValidation, "invalid model specified", nil)

	// Authorization Errors
	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidToken = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)
	ErrTokenExpired = NewDomainError(ErrorTypeUnauthorized, "authentication token expired", nil)

	// Permission Errors
	ErrForbidden               = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrInsufficientPermissions = NewDomainError(ErrorTypeForbidden, "insufficient permissions", nil)
	ErrSystemPolicyImmutable   = NewDomainError(ErrorTypeForbidden, "system policies cannot be deleted", nil)

	// Conflict Errors
	ErrDuplicateKey       = NewDomainError(ErrorTypeConflict, "key already exists", nil)
	ErrDuplicatePlanQuota = NewDomainError(ErrorTypeConflict, "plan already has a quota", nil)

	// Internal Errors
	ErrInternal          = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError     = NewDomainError(ErrorTypeInternal, "database error", nil)
	ErrTransactionFailed = NewDomainError(ErrorTypeInternal, "transaction failed", nil)
	ErrCacheFailed       = NewDomainError(ErrorTypeInternal, "cache operation failed", nil)

	// External Provider Errors
	ErrProviderUnavailable = NewDomainError(ErrorTypeExternal, "AI provider unavailable", nil)
	ErrProviderTimeout     = NewDomainError(ErrorTypeExternal, "AI provider timeout", nil)

	// Governance Errors
	ErrQuotaExceeded            = NewDomainError(ErrorTypeQuotaExceeded, "quota exceeded", nil)
	ErrPolicyViolation          = NewDomainError(ErrorTypePolicyViolation, "policy violation", nil)
	ErrNoApplicableFallbackRule = NewDomainError(ErrorTypeNoApplicableFallbackRule, "no applicable fallback rule", nil)
	ErrFallbackExhausted        = NewDomainError(ErrorTypeFallbackExhausted, "fallback model failed", nil)
	ErrInvalidRuleConfiguration = NewDomainError(ErrorTypeInvalidRuleConfiguration, "invalid rule configuration", nil)
)

// QuotaExceeded builds a quota error naming the exhausted dimension
func QuotaExceeded(dimension string, limit, observed int64) *DomainError {
	return NewDomainError(ErrorTypeQuotaExceeded, dimension+" limit exceeded", nil).
		WithDetail("dimension", dimension).
		WithDetail("limit", limit).
		WithDetail("observed", observed)
}

// PolicyViolation builds a violation error carrying the policy's message
func PolicyViolation(policyKey, message string) *DomainError {
	if message == "" {
		message = "request blocked by policy " + policyKey
	}
	return NewDomainError(ErrorTypePolicyViolation, message, nil).WithDetail("policy", policyKey)
}

// NoApplicableFallbackRule wraps the original dispatch failure unchanged
func NoApplicableFallbackRule(original error) *DomainError {
	return NewDomainError(ErrorTypeNoApplicableFallbackRule, "no applicable fallback rule", original)
}

// FallbackExhausted wraps the fallback model's failure
func FallbackExhausted(fallbackErr error) *DomainError {
	return NewDomainError(ErrorTypeFallbackExhausted, "fallback model failed", fallbackErr)
}

// InvalidRuleConfiguration builds a write-time rule validation error
func InvalidRuleConfiguration(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeInvalidRuleConfiguration, message, err)
}

// Error type checking helper functions

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return hasType(err, ErrorTypeUnauthorized)
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return hasType(err, ErrorTypeForbidden)
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return hasType(err, ErrorTypeConflict)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool {
	return hasType(err, ErrorTypeExternal)
}

// IsQuotaExceededError checks if an error is a quota error
func IsQuotaExceededError(err error) bool {
	return hasType(err, ErrorTypeQuotaExceeded)
}

// IsPolicyViolationError checks if an error is a policy violation error
func IsPolicyViolationError(err error) bool {
	return hasType(err, ErrorTypePolicyViolation)
}

// IsNoApplicableFallbackRuleError checks if routing found no rule
func IsNoApplicableFallbackRuleError(err error) bool {
	return hasType(err, ErrorTypeNoApplicableFallbackRule)
}

// IsFallbackExhaustedError checks if the fallback model also failed
func IsFallbackExhaustedError(err error) bool {
	return hasType(err, ErrorTypeFallbackExhausted)
}

// IsInvalidRuleConfigurationError checks if a rule was rejected at write time
func IsInvalidRuleConfigurationError(err error) bool {
	return hasType(err, ErrorTypeInvalidRuleConfiguration)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external provider error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}
