package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderflow/backbone/common/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signToken(t *testing.T, secret, issuer string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTValidate_NoAuthorizationHeader_PassesThroughAnonymous(t *testing.T) {
	cfg := config.JwtSettings{Issuer: "backbone", SecretKey: "s3cret"}
	var gotIdentity Identity
	handler := JWTValidate(cfg, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, gotIdentity.Subject)
}

func TestJWTValidate_ValidToken_SetsIdentity(t *testing.T) {
	cfg := config.JwtSettings{Issuer: "backbone", SecretKey: "s3cret"}
	token := signToken(t, cfg.SecretKey, cfg.Issuer, jwt.MapClaims{
		"sub":   "user-42",
		"email": "user@example.com",
		"iss":   cfg.Issuer,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	var gotIdentity Identity
	handler := JWTValidate(cfg, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "user-42", gotIdentity.Subject)
	assert.Equal(t, "user@example.com", gotIdentity.Email)
}

func TestJWTValidate_ExpiredToken_Returns401(t *testing.T) {
	cfg := config.JwtSettings{Issuer: "backbone", SecretKey: "s3cret"}
	token := signToken(t, cfg.SecretKey, cfg.Issuer, jwt.MapClaims{
		"sub": "user-42",
		"iss": cfg.Issuer,
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	handler := JWTValidate(cfg, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("downstream must not be reached for an expired token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestJWTValidate_WrongIssuer_Returns401(t *testing.T) {
	cfg := config.JwtSettings{Issuer: "backbone", SecretKey: "s3cret"}
	token := signToken(t, cfg.SecretKey, "someone-else", jwt.MapClaims{
		"sub": "user-42",
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	handler := JWTValidate(cfg, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("downstream must not be reached for a wrong issuer")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestJWTValidate_StripsClientSuppliedTrustedHeaders(t *testing.T) {
	cfg := config.JwtSettings{Issuer: "backbone", SecretKey: "s3cret"}
	var gotUserID string
	handler := JWTValidate(cfg, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = r.Header.Get("X-User-ID")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set("X-User-ID", "spoofed-admin")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, gotUserID)
}

func TestBearerRecheck_NonBearerScheme_Returns401(t *testing.T) {
	handler := BearerRecheck()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("downstream must not be reached for a non-bearer scheme")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestBearerRecheck_BearerScheme_PassesThrough(t *testing.T) {
	handler := BearerRecheck()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer sometoken")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimitKey_PrefersIdentitySubject(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(withIdentity(req.Context(), Identity{Subject: "user-1"}))
	assert.Equal(t, "user:user-1", RateLimitKey(req))
}

func TestRateLimitKey_FallsBackToForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "ip:203.0.113.5", RateLimitKey(req))
}

func TestRateLimitKey_FallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.7:54321"
	assert.Equal(t, "ip:192.168.1.7", RateLimitKey(req))
}
