package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestTokenService() *TokenService {
	return NewTokenService(TokenConfig{
		JWTSecret: []byte("test-secret"),
		Issuer:    "credential-test",
	})
}

func TestTokenService_OpaqueTokens(t *testing.T) {
	svc := newTestTokenService()
	userID := uuid.New()

	verification, err := svc.MintVerificationToken(userID)
	if err != nil {
		t.Fatalf("MintVerificationToken() error = %v", err)
	}
	if verification.Value == "" {
		t.Error("expected a token value")
	}
	if got := time.Until(verification.ExpiresAt); got < 23*time.Hour {
		t.Errorf("verification token expires in %v, want about %v", got, DefaultVerificationTokenTTL)
	}

	reset, err := svc.MintResetToken(userID)
	if err != nil {
		t.Fatalf("MintResetToken() error = %v", err)
	}
	if reset.Value == verification.Value {
		t.Error("tokens must be unique")
	}
	if got := time.Until(reset.ExpiresAt); got > DefaultResetTokenTTL {
		t.Errorf("reset token expires in %v, want at most %v", got, DefaultResetTokenTTL)
	}
}

func TestTokenService_JWTRoundTrip(t *testing.T) {
	svc := newTestTokenService()
	userID := uuid.New()

	tests := []struct {
		name  string
		mint  func(uuid.UUID) (tokenValue string, err error)
		scope string
	}{
		{
			name: "mfa session",
			mint: func(id uuid.UUID) (string, error) {
				tok, err := svc.MintMFASessionToken(id)
				return tok.Value, err
			},
			scope: "mfa_session",
		},
		{
			name: "access",
			mint: func(id uuid.UUID) (string, error) {
				tok, err := svc.MintAccessToken(id)
				return tok.Value, err
			},
			scope: "access",
		},
		{
			name: "refresh",
			mint: func(id uuid.UUID) (string, error) {
				tok, err := svc.MintRefreshToken(id)
				return tok.Value, err
			},
			scope: "refresh",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, err := tt.mint(userID)
			if err != nil {
				t.Fatalf("mint error = %v", err)
			}
			claims, err := svc.ParseToken(value)
			if err != nil {
				t.Fatalf("ParseToken() error = %v", err)
			}
			if claims.Subject != userID.String() {
				t.Errorf("Subject = %q, want %q", claims.Subject, userID)
			}
			if claims.Scope != tt.scope {
				t.Errorf("Scope = %q, want %q", claims.Scope, tt.scope)
			}
			if claims.Issuer != "credential-test" {
				t.Errorf("Issuer = %q, want %q", claims.Issuer, "credential-test")
			}
		})
	}
}

func TestTokenService_ParseRejectsWrongSecret(t *testing.T) {
	svc := newTestTokenService()
	tok, err := svc.MintAccessToken(uuid.New())
	if err != nil {
		t.Fatalf("MintAccessToken() error = %v", err)
	}

	other := NewTokenService(TokenConfig{JWTSecret: []byte("different-secret"), Issuer: "credential-test"})
	if _, err := other.ParseToken(tok.Value); err == nil {
		t.Error("expected verification with the wrong secret to fail")
	}
}

func TestTokenService_ParseRejectsExpired(t *testing.T) {
	svc := NewTokenService(TokenConfig{
		JWTSecret:      []byte("test-secret"),
		Issuer:         "credential-test",
		AccessTokenTTL: -time.Minute,
	})
	tok, err := svc.MintAccessToken(uuid.New())
	if err != nil {
		t.Fatalf("MintAccessToken() error = %v", err)
	}
	if _, err := svc.ParseToken(tok.Value); err == nil {
		t.Error("expected an expired token to be rejected")
	}
}

func TestTokenService_ParseRejectsGarbage(t *testing.T) {
	svc := newTestTokenService()
	if _, err := svc.ParseToken("not.a.jwt"); err == nil {
		t.Error("expected an error")
	}
}
