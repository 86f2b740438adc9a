package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// In-memory port fakes shared by the package tests.

type fakeHasher struct{}

func (fakeHasher) Validate(plaintext string) error {
	if len(plaintext) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}
	return nil
}

func (fakeHasher) Hash(plaintext string) (string, error) {
	return "hashed:" + plaintext, nil
}

func (fakeHasher) Verify(plaintext, hash string) (bool, error) {
	return hash == "hashed:"+plaintext, nil
}

type fakeTokens struct {
	minted int
	ttl    time.Duration
}

func (f *fakeTokens) mint(prefix string) (Token, error) {
	f.minted++
	ttl := f.ttl
	if ttl == 0 {
		ttl = time.Hour
	}
	return Token{
		Value:     fmt.Sprintf("%s-%d", prefix, f.minted),
		ExpiresAt: time.Now().Add(ttl),
	}, nil
}

func (f *fakeTokens) MintVerificationToken(uuid.UUID) (Token, error) { return f.mint("verify") }
func (f *fakeTokens) MintResetToken(uuid.UUID) (Token, error)        { return f.mint("reset") }
func (f *fakeTokens) MintMFASessionToken(uuid.UUID) (Token, error)   { return f.mint("session") }

const (
	fakeTOTPSecret = "JBSWY3DPEHPK3PXP"
	fakeValidTOTP  = "123456"
	fakeOOBCode    = "111111"
)

type fakeCodes struct{}

func (fakeCodes) GenerateTOTPSecret(accountName string) (TOTPKey, error) {
	return TOTPKey{
		Secret: fakeTOTPSecret,
		URI:    "otpauth://totp/test:" + accountName + "?secret=" + fakeTOTPSecret,
	}, nil
}

func (fakeCodes) ValidateTOTP(secret, code string) (bool, error) {
	return secret == fakeTOTPSecret && code == fakeValidTOTP, nil
}

func (fakeCodes) GenerateOOBCode() (string, error) {
	return fakeOOBCode, nil
}

func (fakeCodes) GenerateRecoveryCodes() ([]string, error) {
	return []string{"AAAA-BBBB-2222", "CCCC-DDDD-3333"}, nil
}

type fakeCipher struct{}

func (fakeCipher) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func (fakeCipher) Decrypt(ciphertext string) (string, error) {
	return strings.TrimPrefix(ciphertext, "enc:"), nil
}

type fakeUniqueness struct {
	taken map[string]uuid.UUID
}

func (f *fakeUniqueness) Check(_ context.Context, email string, excluded uuid.UUID) (bool, error) {
	if f.taken == nil {
		return true, nil
	}
	owner, ok := f.taken[email]
	return !ok || owner == excluded, nil
}

// notifyRecorder captures notifications dispatched by the aggregate.
type notifyRecorder struct {
	sent []Notification
}

func (r *notifyRecorder) fn() NotifyFunc {
	return func(_ context.Context, n Notification) error {
		r.sent = append(r.sent, n)
		return nil
	}
}

func eventNames(events []Event) []string {
	names := make([]string, len(events))
	for i, ev := range events {
		names[i] = ev.Name()
	}
	return names
}
