package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PasswordHasher hashes and verifies passwords. Validate enforces the
// password policy; the aggregate treats a Validate failure as a
// Validation error without inspecting the cause.
type PasswordHasher interface {
	Validate(plaintext string) error
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) (bool, error)
}

// TOTPKey is a freshly generated TOTP secret plus its otpauth:// key URI.
type TOTPKey struct {
	Secret string
	URI    string
}

// MFACodeService generates and verifies second-factor codes.
type MFACodeService interface {
	// GenerateTOTPSecret mints a TOTP secret for the given account name.
	GenerateTOTPSecret(accountName string) (TOTPKey, error)
	// ValidateTOTP checks a code against a secret with a tolerance of
	// one time step in either direction.
	ValidateTOTP(secret, code string) (bool, error)
	// GenerateOOBCode mints a short code for out-of-band delivery.
	GenerateOOBCode() (string, error)
	// GenerateRecoveryCodes mints a fresh set of single-use recovery codes.
	GenerateRecoveryCodes() ([]string, error)
}

// Token is an opaque token with its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// TokenService mints the tokens the credential hands out: registration
// verification, password reset, and MFA authentication session tokens.
type TokenService interface {
	MintVerificationToken(userID uuid.UUID) (Token, error)
	MintResetToken(userID uuid.UUID) (Token, error)
	MintMFASessionToken(userID uuid.UUID) (Token, error)
}

// SecretCipher encrypts authenticator secrets at rest.
type SecretCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// EmailUniqueness answers whether an email address is free, ignoring
// the credential identified by excludedUserID.
type EmailUniqueness interface {
	Check(ctx context.Context, email string, excludedUserID uuid.UUID) (bool, error)
}

// NotificationKind identifies what a notification carries.
type NotificationKind string

const (
	NotifyOOBCode    NotificationKind = "oob_code"
	NotifyEnrollment NotificationKind = "enrollment"
)

// NotificationChannel is the delivery channel for a notification.
type NotificationChannel string

const (
	ChannelSMS   NotificationChannel = "sms"
	ChannelEmail NotificationChannel = "email"
)

// Notification describes an out-of-band delivery requested by the
// aggregate: an OOB code or an enrollment notice.
type Notification struct {
	Kind      NotificationKind
	Channel   NotificationChannel
	Recipient string
	Code      string
}

// NotifyFunc dispatches a notification. The aggregate invokes it after
// all validation has passed and before recording the triggering event.
type NotifyFunc func(ctx context.Context, n Notification) error
