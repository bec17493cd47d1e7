package auth

import (
	"testing"
	"time"

	"stayspot/internal/platform/config"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{
		Secret:         "test-secret",
		AccessTokenTTL: time.Hour,
	})

	token, err := svc.GenerateAccessToken("usr_1", "comp_1", "admin", "a@example.com", "Ada Admin")
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.UserID != "usr_1" || claims.CompanyID != "comp_1" || claims.Role != "admin" {
		t.Errorf("Claims mismatch: %+v", claims)
	}

	// Wrong secret fails validation
	other := NewTokenService(config.JWTConfig{Secret: "different", AccessTokenTTL: time.Hour})
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("Expected validation to fail with wrong secret")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{
		Secret:         "test-secret",
		AccessTokenTTL: -time.Minute,
	})

	token, err := svc.GenerateAccessToken("usr_1", "comp_1", "admin", "a@example.com", "Ada Admin")
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}
	if _, err := svc.ValidateToken(token); err == nil {
		t.Error("Expected expired token to be rejected")
	}
}
