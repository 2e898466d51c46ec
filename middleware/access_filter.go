package middleware

import (
	"net/http"
	"strings"

	"github.com/upb/api-gateway/access"
	"github.com/upb/api-gateway/jwtauth"
	"github.com/upb/api-gateway/metrics"
	"github.com/upb/api-gateway/utils"
	"go.uber.org/zap"
)

// RouteClassifier decides whether a request needs a token
type RouteClassifier interface {
	Classify(method, path string) access.Class
}

// TokenVerifier checks a bearer token's structure and signature
type TokenVerifier interface {
	Verify(token string) (jwtauth.Payload, error)
}

// ClaimsExtractor validates a verified payload's claims
type ClaimsExtractor interface {
	Extract(payload jwtauth.Payload) (*jwtauth.VerifiedClaims, error)
}

const (
	challengeMissing = `Bearer realm="api-gateway"`
	challengeInvalid = `Bearer realm="api-gateway", error="invalid_token"`
)

// AccessFilter lets public routes through and requires a valid bearer token
// everywhere else.
type AccessFilter struct {
	classifier RouteClassifier
	verifier   TokenVerifier
	extractor  ClaimsExtractor
	logger     *zap.Logger
}

// NewAccessFilter creates a new AccessFilter
func NewAccessFilter(classifier RouteClassifier, verifier TokenVerifier, extractor ClaimsExtractor, logger *zap.Logger) *AccessFilter {
	return &AccessFilter{
		classifier: classifier,
		verifier:   verifier,
		extractor:  extractor,
		logger:     logger,
	}
}

// Handler wraps next with the access decision. Public requests pass through
// untouched; authenticated ones get a Principal in their context or a 401.
func (f *AccessFilter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		class := f.classifier.Classify(r.Method, r.URL.Path)
		if class == access.Public {
			metrics.RecordDecision(class.String(), metrics.ResultForwarded)
			f.logger.Debug("public route, forwarding",
				zap.String("request_id", requestID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path))
			next.ServeHTTP(w, r)
			return
		}

		token, ok := extractBearerToken(r)
		if !ok {
			f.reject(w, r, jwtauth.ErrMissingToken)
			return
		}

		payload, err := f.verifier.Verify(token)
		if err != nil {
			f.reject(w, r, err)
			return
		}

		claims, err := f.extractor.Extract(payload)
		if err != nil {
			f.reject(w, r, err)
			return
		}

		principal := NewPrincipal(claims)
		ctx = WithPrincipal(ctx, principal)

		metrics.RecordDecision(class.String(), metrics.ResultAuthenticated)
		f.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("sub", principal.Subject),
			zap.Strings("authorities", principal.Authorities))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// reject answers 401. The failure kind goes to logs and metrics only; clients
// see the same body for every invalid token.
func (f *AccessFilter) reject(w http.ResponseWriter, r *http.Request, err error) {
	kind := jwtauth.KindOf(err)
	if kind == "" {
		kind = jwtauth.KindInvalidSignature
	}

	metrics.RecordDecision(access.Authenticated.String(), metrics.ResultRejected)
	metrics.RecordAuthFailure(string(kind))

	f.logger.Warn("request rejected",
		zap.String("request_id", GetRequestIDFromContext(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("kind", string(kind)),
		zap.Error(err))

	challenge, message := challengeInvalid, "Invalid or expired token"
	if kind == jwtauth.KindMissingToken {
		challenge, message = challengeMissing, "Missing or invalid authorization"
	}
	if werr := utils.WriteUnauthorized(w, challenge, message); werr != nil {
		f.logger.Error("failed to write unauthorized response", zap.Error(werr))
	}
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
