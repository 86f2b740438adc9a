package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is a domain event recorded on the credential's append-only log.
// Events are an output channel for projectors and notifiers, not a
// storage format: the aggregate is never rebuilt by replaying them.
type Event interface {
	Name() string
	Meta() Envelope
}

// Envelope carries the fields common to every event. Embedding it gives
// an event struct its Meta method; the accessor is not called Envelope
// because the embedded field would shadow it.
type Envelope struct {
	UserID     uuid.UUID
	Seq        int
	OccurredAt time.Time
}

// Meta returns the envelope.
func (e Envelope) Meta() Envelope { return e }

type Created struct {
	Envelope
}

func (Created) Name() string { return "person_credential.created" }

type RegistrationChanged struct {
	Envelope
	EmailAddress string
	DisplayName  string
}

func (RegistrationChanged) Name() string { return "person_credential.registration_changed" }

type RegistrationVerificationCreated struct {
	Envelope
	Token     string
	ExpiresAt time.Time
}

func (RegistrationVerificationCreated) Name() string {
	return "person_credential.registration_verification_created"
}

type RegistrationVerificationVerified struct {
	Envelope
	EmailAddress string
}

func (RegistrationVerificationVerified) Name() string {
	return "person_credential.registration_verification_verified"
}

type CredentialsChanged struct {
	Envelope
}

func (CredentialsChanged) Name() string { return "person_credential.credentials_changed" }

type PasswordVerified struct {
	Envelope
}

func (PasswordVerified) Name() string { return "person_credential.password_verified" }

type AccountLocked struct {
	Envelope
	LockedUntil time.Time
}

func (AccountLocked) Name() string { return "person_credential.account_locked" }

type AccountUnlocked struct {
	Envelope
}

func (AccountUnlocked) Name() string { return "person_credential.account_unlocked" }

type PasswordResetInitiated struct {
	Envelope
	Token     string
	ExpiresAt time.Time
}

func (PasswordResetInitiated) Name() string { return "person_credential.password_reset_initiated" }

type PasswordResetCompleted struct {
	Envelope
}

func (PasswordResetCompleted) Name() string { return "person_credential.password_reset_completed" }

type MFAOptionsChanged struct {
	Envelope
	Enabled bool
}

func (MFAOptionsChanged) Name() string { return "person_credential.mfa_options_changed" }

type MFAAuthenticationInitiated struct {
	Envelope
	ExpiresAt time.Time
}

func (MFAAuthenticationInitiated) Name() string {
	return "person_credential.mfa_authentication_initiated"
}

type MFAAuthenticatorAssociated struct {
	Envelope
	AuthenticatorID uuid.UUID
	Type            AuthenticatorType
}

func (MFAAuthenticatorAssociated) Name() string {
	return "person_credential.mfa_authenticator_associated"
}

type MFAAuthenticatorConfirmed struct {
	Envelope
	AuthenticatorID uuid.UUID
	Type            AuthenticatorType
}

func (MFAAuthenticatorConfirmed) Name() string {
	return "person_credential.mfa_authenticator_confirmed"
}

type MFAAuthenticatorChallenged struct {
	Envelope
	AuthenticatorID uuid.UUID
	Type            AuthenticatorType
}

func (MFAAuthenticatorChallenged) Name() string {
	return "person_credential.mfa_authenticator_challenged"
}

type MFAAuthenticatorVerified struct {
	Envelope
	AuthenticatorID uuid.UUID
	Type            AuthenticatorType
}

func (MFAAuthenticatorVerified) Name() string {
	return "person_credential.mfa_authenticator_verified"
}

type MFAAuthenticatorRemoved struct {
	Envelope
	AuthenticatorID uuid.UUID
	Type            AuthenticatorType
}

func (MFAAuthenticatorRemoved) Name() string {
	return "person_credential.mfa_authenticator_removed"
}

type MFAStateReset struct {
	Envelope
}

func (MFAStateReset) Name() string { return "person_credential.mfa_state_reset" }
