package middleware

import (
	"context"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/upb/ai-governance/auth"
)

// Context key type to avoid collisions
type contextKey string

const (
	// ClaimsKey is the context key for operator token claims
	ClaimsKey contextKey = "claims"
)

// GetRequestIDFromContext returns the id assigned by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimiddleware.GetReqID(ctx)
}

// GetClaimsFromContext retrieves token claims from context
func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// WithClaims adds token claims to the context
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetOperatorFromContext returns the authenticated operator's subject, empty when anonymous
func GetOperatorFromContext(ctx context.Context) string {
	if claims := GetClaimsFromContext(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}
