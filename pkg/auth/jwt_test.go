package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xnovu/notification-engine/pkg/config"
)

func testConfig() *config.OperatorAuthConfig {
	return &config.OperatorAuthConfig{
		Secret:   "test-secret",
		Issuer:   "notification-engine",
		Audience: "notification-engine-admin",
		Expiry:   time.Hour,
	}
}

func signToken(t *testing.T, cfg *config.OperatorAuthConfig, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Secret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func TestValidateAccessTokenSuccess(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.Expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		OperatorID: "op-1",
		Roles:      []string{"admin"},
	}
	tokenString := signToken(t, cfg, claims)

	m := NewJWTManager(cfg)
	got, err := m.ValidateAccessToken(tokenString)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if got.OperatorID != "op-1" {
		t.Errorf("got operator ID %q, want %q", got.OperatorID, "op-1")
	}
}

func TestValidateAccessTokenRejectsWrongIssuer(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.Expiry)),
		},
		OperatorID: "op-1",
	}
	tokenString := signToken(t, cfg, claims)

	m := NewJWTManager(cfg)
	if _, err := m.ValidateAccessToken(tokenString); err == nil {
		t.Error("expected error for mismatched issuer, got nil")
	}
}

func TestValidateAccessTokenRejectsWrongAudience(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{"someone-else"},
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.Expiry)),
		},
		OperatorID: "op-1",
	}
	tokenString := signToken(t, cfg, claims)

	m := NewJWTManager(cfg)
	if _, err := m.ValidateAccessToken(tokenString); err == nil {
		t.Error("expected error for mismatched audience, got nil")
	}
}

func TestValidateAccessTokenRejectsExpired(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
		},
		OperatorID: "op-1",
	}
	tokenString := signToken(t, cfg, claims)

	m := NewJWTManager(cfg)
	if _, err := m.ValidateAccessToken(tokenString); err == nil {
		t.Error("expected error for expired token, got nil")
	}
}

func TestHasAnyRoleAndHasAllRoles(t *testing.T) {
	claims := &Claims{Roles: []string{"admin", "operator"}}
	ctx := ContextWithClaims(context.Background(), claims)

	if !HasAnyRole(ctx, "viewer", "admin") {
		t.Error("expected HasAnyRole to find admin")
	}
	if HasAnyRole(ctx, "viewer", "editor") {
		t.Error("expected HasAnyRole to find nothing")
	}
	if !HasAllRoles(ctx, "admin", "operator") {
		t.Error("expected HasAllRoles to hold for admin+operator")
	}
	if HasAllRoles(ctx, "admin", "superadmin") {
		t.Error("expected HasAllRoles to fail for missing role")
	}
}
