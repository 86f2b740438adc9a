package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PersonCredential is the aggregate root owning the password lifecycle,
// registration verification, login lockout, and MFA enrollment and
// verification for one platform user. It is created once per user,
// mutated only through its operations, and never destroyed.
//
// The aggregate is single-writer: operations are synchronous in-process
// state transitions, and concurrent commands against the same instance
// must be serialized by the caller (one load/mutate/save cycle per
// request). Field mutations happen only after validation succeeds, so a
// failed operation leaves no partial state.
type PersonCredential struct {
	userID          uuid.UUID
	version         int
	registration    *Registration
	guestInvitation *GuestInvitation
	verification    RegistrationVerification
	password        *passwordKeep
	login           LoginMonitor
	mfa             MFAOptions
	authenticators  authenticatorList
	lockout         LockoutPolicy

	events []Event
	seq    int
}

// Option configures a PersonCredential at construction time.
type Option func(*PersonCredential)

// WithLockoutPolicy overrides the default lockout policy.
func WithLockoutPolicy(p LockoutPolicy) Option {
	return func(c *PersonCredential) { c.lockout = p }
}

// New creates the credential for a platform user and records Created.
func New(userID uuid.UUID, opts ...Option) *PersonCredential {
	c := &PersonCredential{
		userID:       userID,
		verification: RegistrationVerification{State: VerificationUnverified},
		mfa:          MFAOptions{CanBeDisabled: true},
		lockout:      DefaultLockoutPolicy,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.record(&Created{Envelope: c.envelope()})
	return c
}

// UserID returns the immutable owning user id.
func (c *PersonCredential) UserID() uuid.UUID { return c.userID }

// Version returns the persisted version used for optimistic concurrency.
func (c *PersonCredential) Version() int { return c.version }

// Registration returns the registration, if one exists.
func (c *PersonCredential) Registration() (Registration, bool) {
	if c.registration == nil {
		return Registration{}, false
	}
	return *c.registration, true
}

// Verification returns the registration verification state.
func (c *PersonCredential) Verification() RegistrationVerification { return c.verification }

// Login returns the login monitor state.
func (c *PersonCredential) Login() LoginMonitor { return c.login }

// MFA returns the MFA options.
func (c *PersonCredential) MFA() MFAOptions { return c.mfa }

// HasPassword reports whether a password hash is stored.
func (c *PersonCredential) HasPassword() bool { return c.password != nil }

// Events returns the events recorded since creation or the last drain.
func (c *PersonCredential) Events() []Event { return c.events }

// DrainEvents returns and clears the recorded events. The application
// layer drains after each command to persist the log and fan out to
// projectors.
func (c *PersonCredential) DrainEvents() []Event {
	evs := c.events
	c.events = nil
	return evs
}

func (c *PersonCredential) record(ev Event) {
	c.events = append(c.events, ev)
}

func (c *PersonCredential) envelope() Envelope {
	c.seq++
	return Envelope{UserID: c.userID, Seq: c.seq, OccurredAt: time.Now()}
}

// ChangeRegistration sets or updates the registered email address and
// display name. The email must be unique across the platform, checked
// through the injected collaborator with this credential excluded.
// Changing to a different email address drops any verified status.
func (c *PersonCredential) ChangeRegistration(ctx context.Context, uniq EmailUniqueness, email, displayName string) error {
	if email == "" {
		return ErrEmailMissing
	}
	free, err := uniq.Check(ctx, email, c.userID)
	if err != nil {
		return err
	}
	if !free {
		return ErrEmailTaken
	}

	emailChanged := c.registration == nil || c.registration.EmailAddress != email
	c.registration = &Registration{EmailAddress: email, DisplayName: displayName}
	if emailChanged {
		c.verification = RegistrationVerification{State: VerificationUnverified}
	}
	c.record(&RegistrationChanged{Envelope: c.envelope(), EmailAddress: email, DisplayName: displayName})
	return nil
}

// InviteGuest records an outstanding guest invitation. A person who is
// already registered cannot be invited again.
func (c *PersonCredential) InviteGuest(email string) error {
	if c.registration != nil {
		return ErrAlreadyRegisteredGuest
	}
	if email == "" {
		return ErrEmailMissing
	}
	c.guestInvitation = &GuestInvitation{EmailAddress: email, InvitedAt: time.Now()}
	return nil
}

// RedeemGuestInvitation completes a guest invitation by registering the
// invited person, clearing the outstanding invitation.
func (c *PersonCredential) RedeemGuestInvitation(ctx context.Context, uniq EmailUniqueness, displayName string) error {
	if c.guestInvitation == nil {
		return ErrNoGuestInvitation
	}
	email := c.guestInvitation.EmailAddress
	c.guestInvitation = nil
	return c.ChangeRegistration(ctx, uniq, email, displayName)
}

// InitiateRegistrationVerification mints a verification token and moves
// the registration into the verifying state.
func (c *PersonCredential) InitiateRegistrationVerification(tokens TokenService) (Token, error) {
	if c.registration == nil {
		return Token{}, ErrNotRegistered
	}
	if c.verification.State == VerificationVerified {
		return Token{}, ErrRegistrationVerified
	}
	tok, err := tokens.MintVerificationToken(c.userID)
	if err != nil {
		return Token{}, err
	}
	c.verification = RegistrationVerification{
		State:     VerificationVerifying,
		Token:     tok.Value,
		ExpiresAt: tok.ExpiresAt,
	}
	c.record(&RegistrationVerificationCreated{Envelope: c.envelope(), Token: tok.Value, ExpiresAt: tok.ExpiresAt})
	return tok, nil
}

// VerifyRegistration consumes a verification token and marks the
// registration verified.
func (c *PersonCredential) VerifyRegistration(token string) error {
	if c.verification.State != VerificationVerifying {
		return ErrVerificationNotInProgress
	}
	if c.guestInvitation != nil {
		return ErrGuestInvitationOutstanding
	}
	if token == "" || token != c.verification.Token {
		return ErrVerificationTokenMismatch
	}
	if c.verification.expired(time.Now()) {
		return ErrVerificationTokenExpired
	}
	c.verification = RegistrationVerification{State: VerificationVerified}
	c.record(&RegistrationVerificationVerified{Envelope: c.envelope(), EmailAddress: c.registration.EmailAddress})
	return nil
}

// RenewRegistrationVerification regenerates the verification token.
// Same precondition as InitiateRegistrationVerification.
func (c *PersonCredential) RenewRegistrationVerification(tokens TokenService) (Token, error) {
	return c.InitiateRegistrationVerification(tokens)
}

// requireOwner enforces that the caller owns this credential.
func (c *PersonCredential) requireOwner(caller Caller) error {
	if caller.UserID != c.userID {
		return ErrNotOwner
	}
	return nil
}

// requireVerifiedWithPassword enforces the common MFA precondition: a
// verified registration and a stored password.
func (c *PersonCredential) requireVerifiedWithPassword() error {
	if c.verification.State != VerificationVerified {
		return ErrRegistrationUnverified
	}
	if c.password == nil {
		return ErrPasswordRequired
	}
	return nil
}
