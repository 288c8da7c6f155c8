package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// TokenValidator defines the interface for validating bearer tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*TokenClaims, error)
}

// TokenClaims represents the claims we expect from the token validator.
type TokenClaims struct {
	ProfileID string
	Did       string
}

type contextKeyProfileID struct{}
type contextKeyDid struct{}

// GetProfileID retrieves the authenticated profile ID from the context.
func GetProfileID(ctx context.Context) string {
	profileID, ok := ctx.Value(contextKeyProfileID{}).(string)
	if !ok {
		return ""
	}
	return profileID
}

// GetDid retrieves the authenticated caller's DID from the context.
func GetDid(ctx context.Context) string {
	did, ok := ctx.Value(contextKeyDid{}).(string)
	if !ok {
		return ""
	}
	return did
}

// RequireAuth validates the Authorization bearer token and stores the
// caller's profile identity in the request context. Requests without a valid
// token never reach the handler.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || token == "" {
				unauthorized(w)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(r.Context()),
				)
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyProfileID{}, claims.ProfileID)
			ctx = context.WithValue(ctx, contextKeyDid{}, claims.Did)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"Invalid or expired token"}`))
}
