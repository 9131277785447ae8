package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/caselink/voice-call-service/internal/security"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protectedEndpoint(secretKey string) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return APIKeyMiddleware(secretKey)(ok)
}

func issueToken(t *testing.T, secret string, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(expiresIn).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAPIKeyMiddlewareAcceptsValidToken(t *testing.T) {
	h := protectedEndpoint("top-secret")

	req := httptest.NewRequest(http.MethodGet, "/api/calls/active", nil)
	req.Header.Set("X-API-Key", issueToken(t, "top-secret", time.Hour))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyMiddlewareRejectsMissingToken(t *testing.T) {
	h := protectedEndpoint("top-secret")

	req := httptest.NewRequest(http.MethodGet, "/api/calls/active", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyMiddlewareRejectsWrongSecret(t *testing.T) {
	h := protectedEndpoint("top-secret")

	req := httptest.NewRequest(http.MethodGet, "/api/calls/active", nil)
	req.Header.Set("X-API-Key", issueToken(t, "other-secret", time.Hour))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyMiddlewareRejectsExpiredToken(t *testing.T) {
	h := protectedEndpoint("top-secret")

	req := httptest.NewRequest(http.MethodGet, "/api/calls/active", nil)
	req.Header.Set("X-API-Key", issueToken(t, "top-secret", -time.Hour))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyMiddlewareDisabledWithoutSecret(t *testing.T) {
	h := protectedEndpoint("")

	req := httptest.NewRequest(http.MethodGet, "/api/calls/active", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIPAllowlistMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := IPAllowlistMiddleware([]string{"10.0.0.5"})(ok)

	req := httptest.NewRequest(http.MethodPost, "/webhook/call", nil)
	req.RemoteAddr = "10.0.0.5:53211"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/webhook/call", nil)
	req.RemoteAddr = "192.0.2.1:40000"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSecurityGateMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("wrong key gets 401", func(t *testing.T) {
		gate := security.NewGate(security.GateConfig{APIKey: "k-1"}, nil, nil)
		handler := SecurityGateMiddleware(gate)(ok)

		req := httptest.NewRequest(http.MethodGet, "/api/calls/active", nil)
		req.Header.Set("X-API-Key", "wrong")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("non-allowlisted ip gets 403", func(t *testing.T) {
		gate := security.NewGate(security.GateConfig{AllowedIPs: []string{"10.0.0.1"}}, nil, nil)
		handler := SecurityGateMiddleware(gate)(ok)

		req := httptest.NewRequest(http.MethodGet, "/api/calls/active", nil)
		req.RemoteAddr = "203.0.113.9:44123"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("allowlisted ip passes", func(t *testing.T) {
		gate := security.NewGate(security.GateConfig{AllowedIPs: []string{"10.0.0.1"}}, nil, nil)
		handler := SecurityGateMiddleware(gate)(ok)

		req := httptest.NewRequest(http.MethodGet, "/api/calls/active", nil)
		req.RemoteAddr = "10.0.0.1:44123"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bot user agent recorded but allowed", func(t *testing.T) {
		gate := security.NewGate(security.GateConfig{}, nil, nil)
		handler := SecurityGateMiddleware(gate)(ok)

		req := httptest.NewRequest(http.MethodGet, "/api/calls/active", nil)
		req.Header.Set("User-Agent", "curl/8.5.0")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
