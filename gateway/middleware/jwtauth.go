package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/orderflow/backbone/common/config"
)

// trustedHeaders are stripped from every incoming request before JWT
// validation runs, so a client cannot spoof identity by setting them
// directly; JWTValidate is the only place that sets them, from validated
// claims.
var trustedHeaders = []string{"X-User-ID", "X-User-Email", "X-User-Role"}

// JWTValidate decodes and validates a Bearer token when one is present,
// storing the resolved Identity in the request context for downstream
// stages (rate limiting, proxying). A missing Authorization header is not
// an error — callers without one proceed anonymous, e.g. ip-keyed for rate
// limiting. A present-but-invalid or expired token is rejected with 401
// before the request reaches the proxy, matching AuthFailed's "never
// reaches downstream" policy. Audience is intentionally not validated and
// ClockSkew is zero, per the issuer's JwtSettings contract.
func JWTValidate(cfg config.JwtSettings, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, h := range trustedHeaders {
				r.Header.Del(h)
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") {
				// Not a bearer scheme: leave for the bearer re-check stage to reject.
				next.ServeHTTP(w, r)
				return
			}

			claims, err := parseClaims(token, cfg)
			if err != nil {
				logger.Warn("jwt validation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
				writeJSONError(w, http.StatusUnauthorized, "auth_failed", "invalid or expired token")
				return
			}

			id := Identity{
				Subject: firstNonEmpty(claimString(claims, "nameIdentifier"), claimString(claims, "sub"), claimString(claims, "userId")),
				Email:   claimString(claims, "email"),
				Role:    claimString(claims, "role"),
			}
			if id.Subject != "" {
				r.Header.Set("X-User-ID", id.Subject)
			}
			if id.Email != "" {
				r.Header.Set("X-User-Email", id.Email)
			}
			if id.Role != "" {
				r.Header.Set("X-User-Role", id.Role)
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
		})
	}
}

func parseClaims(tokenString string, cfg config.JwtSettings) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(cfg.SecretKey), nil
	},
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(0),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// BearerRecheck rejects requests whose Authorization header is present but
// does not use the Bearer scheme, independent of token validity. This
// keeps scheme enforcement and claim decoding as two distinct pipeline
// stages.
func BearerRecheck() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}
			scheme, _, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") {
				writeJSONError(w, http.StatusUnauthorized, "auth_failed", "unsupported authorization scheme")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func claimString(claims jwt.MapClaims, key string) string {
	val, ok := claims[key]
	if !ok || val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%d", int64(v))
	default:
		return fmt.Sprintf("%v", v)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}
