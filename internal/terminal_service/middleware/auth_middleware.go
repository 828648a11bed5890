package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const AuthenticatedMerchantContextKey = ContextKey("authenticatedMerchant")

// MerchantClaims is the JWT claim set issued to merchant integrations.
type MerchantClaims struct {
	MerchantID string `json:"merchant_id"`
	jwt.RegisteredClaims
}

// MerchantFromContext returns the merchant id the auth middleware stored.
func MerchantFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(AuthenticatedMerchantContextKey).(string)
	return id, ok && id != ""
}

// MerchantAuth authenticates requests with a Bearer JWT signed with the
// shared merchant secret and puts the merchant id on the request context.
func MerchantAuth(secret string, logger *slog.Logger) func(next http.Handler) http.Handler {
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.WarnContext(r.Context(), "Authorization header missing")
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.WarnContext(r.Context(), "Invalid Authorization header format")
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			claims := &MerchantClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, keyFunc,
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
			if err != nil || !token.Valid {
				logger.WarnContext(r.Context(), "Token validation failed", "error", err)
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}
			if claims.MerchantID == "" {
				logger.WarnContext(r.Context(), "Token without merchant_id claim")
				http.Error(w, "Invalid token claims", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), AuthenticatedMerchantContextKey, claims.MerchantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
