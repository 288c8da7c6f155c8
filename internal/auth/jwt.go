package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"boostnet/internal/platform/middleware"
)

// JWTValidator validates HMAC-signed bearer tokens carrying the caller's
// profile identity. Token issuance lives with the identity provider; this
// service only verifies.
type JWTValidator struct {
	signingKey []byte
}

func NewJWTValidator(signingKey string) *JWTValidator {
	return &JWTValidator{signingKey: []byte(signingKey)}
}

type profileClaims struct {
	ProfileID string `json:"profile_id"`
	Did       string `json:"did"`
	jwt.RegisteredClaims
}

// ValidateToken parses and verifies a bearer token, returning the profile
// claims on success.
func (v *JWTValidator) ValidateToken(tokenString string) (*middleware.TokenClaims, error) {
	var claims profileClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.ProfileID == "" {
		return nil, fmt.Errorf("token missing profile_id claim")
	}
	return &middleware.TokenClaims{ProfileID: claims.ProfileID, Did: claims.Did}, nil
}

// IssueToken mints a token for a profile. Used by tests and local tooling;
// production deployments delegate to the identity provider.
func (v *JWTValidator) IssueToken(profileID, did string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := profileClaims{
		ProfileID: profileID,
		Did:       did,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.signingKey)
}
