package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/api-gateway/access"
	"github.com/upb/api-gateway/jwtauth"
	"github.com/upb/api-gateway/utils"
	"go.uber.org/zap"
)

// MockTokenVerifier is a mock implementation of TokenVerifier
type MockTokenVerifier struct {
	mock.Mock
}

func (m *MockTokenVerifier) Verify(token string) (jwtauth.Payload, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return jwtauth.Payload{}, args.Error(1)
	}
	return args.Get(0).(jwtauth.Payload), args.Error(1)
}

// MockClaimsExtractor is a mock implementation of ClaimsExtractor
type MockClaimsExtractor struct {
	mock.Mock
}

func (m *MockClaimsExtractor) Extract(payload jwtauth.Payload) (*jwtauth.VerifiedClaims, error) {
	args := m.Called(payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jwtauth.VerifiedClaims), args.Error(1)
}

func gatewayClassifier() *access.Classifier {
	return access.NewClassifier([]access.RoutePattern{
		{Method: access.AnyMethod, Pattern: "/api/security/oauth/token", Access: access.Public},
		{Method: http.MethodGet, Pattern: "/api/usuario/**", Access: access.Public},
		{Method: http.MethodPost, Pattern: "/api/usuario/crearUsuario", Access: access.Public},
	})
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var body utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestAccessFilter(t *testing.T) {
	logger := zap.NewNop()

	t.Run("public route without header is forwarded without verification", func(t *testing.T) {
		verifier := new(MockTokenVerifier)
		extractor := new(MockClaimsExtractor)
		filter := NewAccessFilter(gatewayClassifier(), verifier, extractor, logger)

		called := false
		handler := filter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			assert.Nil(t, GetPrincipalFromContext(r.Context()))
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/usuario/123", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.True(t, called)
		assert.Equal(t, http.StatusOK, w.Code)
		verifier.AssertNotCalled(t, "Verify", mock.Anything)
		extractor.AssertNotCalled(t, "Extract", mock.Anything)
	})

	t.Run("public route ignores a broken token", func(t *testing.T) {
		verifier := new(MockTokenVerifier)
		filter := NewAccessFilter(gatewayClassifier(), verifier, new(MockClaimsExtractor), logger)

		handler := filter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer garbage", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusNoContent)
		}))

		req := httptest.NewRequest(http.MethodPost, "/api/security/oauth/token", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		verifier.AssertNotCalled(t, "Verify", mock.Anything)
	})

	t.Run("authenticated route without header is rejected as missing token", func(t *testing.T) {
		verifier := new(MockTokenVerifier)
		filter := NewAccessFilter(gatewayClassifier(), verifier, new(MockClaimsExtractor), logger)

		handler := filter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodDelete, "/api/usuario/123", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, `Bearer realm="api-gateway"`, w.Header().Get("WWW-Authenticate"))
		body := decodeError(t, w)
		assert.Equal(t, "unauthorized", body.Error)
		assert.Equal(t, "Missing or invalid authorization", body.Message)
		verifier.AssertNotCalled(t, "Verify", mock.Anything)
	})

	t.Run("non-bearer scheme counts as missing token", func(t *testing.T) {
		verifier := new(MockTokenVerifier)
		filter := NewAccessFilter(gatewayClassifier(), verifier, new(MockClaimsExtractor), logger)

		handler := filter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		for _, header := range []string{"Basic dXNlcjpwYXNz", "Bearer", "Bearer    "} {
			req := httptest.NewRequest(http.MethodGet, "/api/other", nil)
			req.Header.Set("Authorization", header)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code, header)
		}
		verifier.AssertNotCalled(t, "Verify", mock.Anything)
	})

	t.Run("verification failures share one response body", func(t *testing.T) {
		failures := []error{
			jwtauth.ErrMalformedToken,
			jwtauth.ErrUnsupportedAlgorithm,
			jwtauth.ErrInvalidSignature,
			errors.New("unexpected"),
		}

		var bodies []string
		for _, failure := range failures {
			verifier := new(MockTokenVerifier)
			verifier.On("Verify", "bad-token").Return(nil, failure)
			filter := NewAccessFilter(gatewayClassifier(), verifier, new(MockClaimsExtractor), logger)

			handler := filter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/other", nil)
			req.Header.Set("Authorization", "Bearer bad-token")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, `Bearer realm="api-gateway", error="invalid_token"`, w.Header().Get("WWW-Authenticate"))
			assert.NotContains(t, w.Body.String(), "Signature")
			assert.NotContains(t, w.Body.String(), "Algorithm")
			bodies = append(bodies, w.Body.String())
			verifier.AssertExpectations(t)
		}
		for _, b := range bodies[1:] {
			assert.Equal(t, bodies[0], b)
		}
	})

	t.Run("claims failure rejects", func(t *testing.T) {
		payload := jwtauth.Payload{}
		verifier := new(MockTokenVerifier)
		extractor := new(MockClaimsExtractor)
		verifier.On("Verify", "expired-token").Return(payload, nil)
		extractor.On("Extract", payload).Return(nil, jwtauth.ErrExpiredToken)
		filter := NewAccessFilter(gatewayClassifier(), verifier, extractor, logger)

		handler := filter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/pedidos", nil)
		req.Header.Set("Authorization", "Bearer expired-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Invalid or expired token", decodeError(t, w).Message)
		verifier.AssertExpectations(t)
		extractor.AssertExpectations(t)
	})

	t.Run("valid token attaches principal", func(t *testing.T) {
		payload := jwtauth.Payload{}
		claims := &jwtauth.VerifiedClaims{
			Subject:     "ayuso",
			Authorities: []string{"ROLE_ADMIN"},
			ClientID:    "frontendapp",
			ExpiresAt:   time.Now().Add(time.Hour),
		}
		verifier := new(MockTokenVerifier)
		extractor := new(MockClaimsExtractor)
		verifier.On("Verify", "good-token").Return(payload, nil)
		extractor.On("Extract", payload).Return(claims, nil)
		filter := NewAccessFilter(gatewayClassifier(), verifier, extractor, logger)

		handler := filter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipalFromContext(r.Context())
			require.NotNil(t, principal)
			assert.Equal(t, "ayuso", principal.Subject)
			assert.Contains(t, principal.Authorities, "ROLE_ADMIN")
			assert.Equal(t, "frontendapp", principal.ClientID)
			assert.Equal(t, "Bearer good-token", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodDelete, "/api/usuario/123", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		verifier.AssertExpectations(t)
		extractor.AssertExpectations(t)
	})
}

func TestAccessFilterWithRealVerifier(t *testing.T) {
	const secret = "gateway-test-secret"
	key, err := jwtauth.ParseSigningKey("HS256", []byte(secret))
	require.NoError(t, err)
	store, err := jwtauth.NewKeyStore(key)
	require.NoError(t, err)

	filter := NewAccessFilter(
		gatewayClassifier(),
		jwtauth.NewVerifier(store),
		jwtauth.NewExtractor(jwtauth.ExtractorConfig{ClockSkew: jwtauth.DefaultClockSkew}),
		zap.NewNop(),
	)

	sign := func(claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return token
	}
	now := time.Now()
	token := sign(jwt.MapClaims{
		"user_name":   "ayuso",
		"sub":         "ayuso",
		"authorities": []string{"ROLE_USER"},
		"iat":         now.Unix(),
		"exp":         now.Add(time.Hour).Unix(),
	})

	var seen []string
	handler := filter.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, GetPrincipalFromContext(r.Context()).Subject)
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPut, "/api/usuario/7", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, []string{"ayuso", "ayuso", "ayuso"}, seen)

	expired := sign(jwt.MapClaims{
		"sub": "ayuso",
		"iat": now.Add(-2 * time.Hour).Unix(),
		"exp": now.Add(-time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodPut, "/api/usuario/7", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"", "", false},
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc", "abc", true},
		{"BEARER  abc ", "abc", true},
		{"Basic abc", "", false},
		{"Bearer", "", false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		got, ok := extractBearerToken(req)
		assert.Equal(t, tt.want, got, tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
	}
}
