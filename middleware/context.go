package middleware

import (
	"context"
	"time"

	"github.com/upb/api-gateway/jwtauth"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// PrincipalKey is the context key for the authenticated principal
	PrincipalKey contextKey = "principal"
)

// Principal is the identity established by a verified bearer token. It lives
// only as long as the request context carrying it.
type Principal struct {
	Subject     string
	Authorities []string
	Scopes      []string
	ClientID    string
	TokenID     string
	ExpiresAt   time.Time
}

// NewPrincipal builds a Principal from verified claims
func NewPrincipal(claims *jwtauth.VerifiedClaims) *Principal {
	return &Principal{
		Subject:     claims.Subject,
		Authorities: append([]string{}, claims.Authorities...),
		Scopes:      append([]string{}, claims.Scopes...),
		ClientID:    claims.ClientID,
		TokenID:     claims.TokenID,
		ExpiresAt:   claims.ExpiresAt,
	}
}

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetPrincipalFromContext retrieves the authenticated principal, or nil on
// public routes.
func GetPrincipalFromContext(ctx context.Context) *Principal {
	if val := ctx.Value(PrincipalKey); val != nil {
		if principal, ok := val.(*Principal); ok {
			return principal
		}
	}
	return nil
}

// WithPrincipal adds the authenticated principal to the context
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}
