// Package auth verifies operator bearer tokens for the control plane's
// mutating admin endpoints. Tokens are minted out of band; this package
// only validates them.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xnovu/notification-engine/pkg/config"
	"github.com/xnovu/notification-engine/pkg/errors"
)

// Claims represents the operator token's claims.
type Claims struct {
	jwt.RegisteredClaims
	OperatorID string   `json:"operator_id"`
	Roles      []string `json:"roles"`
}

// JWTManager validates operator tokens.
type JWTManager struct {
	config *config.OperatorAuthConfig
}

// NewJWTManager creates a new JWT manager bound to the operator auth config.
func NewJWTManager(cfg *config.OperatorAuthConfig) *JWTManager {
	return &JWTManager{config: cfg}
}

// ValidateAccessToken validates an operator bearer token and returns its claims.
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.Secret), nil
	}, jwt.WithAudience(m.config.Audience))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnauthorized, "invalid operator token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New(errors.ErrCodeUnauthorized, "invalid operator token claims")
	}
	if claims.Issuer != m.config.Issuer {
		return nil, errors.New(errors.ErrCodeUnauthorized, "invalid token issuer")
	}
	return claims, nil
}

type contextKey string

const claimsKey contextKey = "claims"

// ContextWithClaims returns a context with claims attached.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext extracts claims from context.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// HasRole checks if the operator has a specific role.
func HasRole(ctx context.Context, role string) bool {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return false
	}
	for _, r := range claims.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole checks if the operator has any of the specified roles.
func HasAnyRole(ctx context.Context, roles ...string) bool {
	for _, role := range roles {
		if HasRole(ctx, role) {
			return true
		}
	}
	return false
}

// HasAllRoles checks if the operator has all of the specified roles.
func HasAllRoles(ctx context.Context, roles ...string) bool {
	for _, role := range roles {
		if !HasRole(ctx, role) {
			return false
		}
	}
	return true
}
