package config

import (
	"strings"
	"testing"
	"time"
)

const testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ENCRYPTION_KEY", testEncryptionKey)
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DBHost != "localhost" || cfg.DBPort != 5432 {
		t.Errorf("DB defaults = %s:%d", cfg.DBHost, cfg.DBPort)
	}
	if cfg.VerificationTokenTTL != 24*time.Hour {
		t.Errorf("VerificationTokenTTL = %v, want 24h", cfg.VerificationTokenTTL)
	}
	if cfg.MaxFailedAttempts != 5 || cfg.LockoutCooldown != 15*time.Minute {
		t.Errorf("lockout defaults = %d/%v", cfg.MaxFailedAttempts, cfg.LockoutCooldown)
	}
	if cfg.PasswordPolicy.MinLength != 8 {
		t.Errorf("PasswordPolicy.MinLength = %d, want 8", cfg.PasswordPolicy.MinLength)
	}
	if cfg.HasSMTP() {
		t.Error("SMTP must not be configured by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("MFA_SESSION_TTL", "90s")
	t.Setenv("MAX_FAILED_ATTEMPTS", "3")
	t.Setenv("PASSWORD_REQUIRE_NUMBER", "true")
	t.Setenv("SMTP_HOST", "smtp.internal")
	t.Setenv("SMTP_FROM", "noreply@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DBHost != "db.internal" {
		t.Errorf("DBHost = %q", cfg.DBHost)
	}
	if cfg.MFASessionTTL != 90*time.Second {
		t.Errorf("MFASessionTTL = %v, want 90s", cfg.MFASessionTTL)
	}
	if cfg.MaxFailedAttempts != 3 {
		t.Errorf("MaxFailedAttempts = %d, want 3", cfg.MaxFailedAttempts)
	}
	if !cfg.PasswordPolicy.RequireNumber {
		t.Error("expected PASSWORD_REQUIRE_NUMBER to be honored")
	}
	if !cfg.HasSMTP() {
		t.Error("expected SMTP to be configured")
	}
}

func TestLoad_RequiredSettings(t *testing.T) {
	t.Run("missing JWT_SECRET", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		t.Setenv("ENCRYPTION_KEY", testEncryptionKey)
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
			t.Errorf("error = %v, want JWT_SECRET required", err)
		}
	})

	t.Run("missing ENCRYPTION_KEY", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "test-secret")
		t.Setenv("ENCRYPTION_KEY", "")
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "ENCRYPTION_KEY") {
			t.Errorf("error = %v, want ENCRYPTION_KEY required", err)
		}
	})
}

func TestDecodeEncryptionKey(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid 32 byte key", testEncryptionKey, false},
		{"not hex", "zzzz", true},
		{"wrong length", "00010203", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EncryptionKey: tt.value}
			key, err := cfg.DecodeEncryptionKey()
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeEncryptionKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(key) != 32 {
				t.Errorf("len(key) = %d, want 32", len(key))
			}
		})
	}
}
