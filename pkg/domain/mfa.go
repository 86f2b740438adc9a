package domain

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/google/uuid"
)

// recoveryCodeSeparator joins recovery codes into the single encrypted
// secret stored on the recovery-codes authenticator.
const recoveryCodeSeparator = "\n"

// MFAOptions carries the enablement flag and the in-progress
// authentication session for the credential.
type MFAOptions struct {
	Enabled       bool
	CanBeDisabled bool

	// AuthenticationToken scopes authenticator operations to one login
	// attempt. Minted by InitiateMFAAuthentication, cleared when a
	// factor is fully verified.
	AuthenticationToken       string
	AuthenticationInitiatedAt *time.Time
}

func (o *MFAOptions) clearSession() {
	o.AuthenticationToken = ""
	o.AuthenticationInitiatedAt = nil
}

// AssociationRequest names the factor to enroll and its delivery
// channel, where one applies.
type AssociationRequest struct {
	Type         AuthenticatorType
	PhoneNumber  string
	EmailAddress string
}

// AssociationResult reports a successful association. TOTP carries the
// key material to present for app enrollment; RecoveryCodes is set only
// when the recovery-codes authenticator was created alongside this one
// and holds the plaintext codes, shown exactly once.
type AssociationResult struct {
	Authenticator MFAAuthenticator
	TOTP          *TOTPKey
	RecoveryCodes []string
}

// ChangeMFAEnabled turns multi-factor authentication on or off for the
// owner. Requesting the current state is a no-op. Disabling removes
// every enrolled authenticator before the options change is recorded.
func (c *PersonCredential) ChangeMFAEnabled(caller Caller, enabled bool) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if err := c.requireVerifiedWithPassword(); err != nil {
		return err
	}
	if c.mfa.Enabled == enabled {
		return nil
	}
	if !enabled && !c.mfa.CanBeDisabled {
		return ErrMFACannotBeDisabled
	}
	if !enabled {
		c.removeAllAuthenticators()
		c.mfa.clearSession()
	}
	c.mfa.Enabled = enabled
	c.record(&MFAOptionsChanged{Envelope: c.envelope(), Enabled: enabled})
	return nil
}

// ResetMFA wipes the credential's MFA state on behalf of an operator:
// all authenticators are removed and the enablement flag cleared. A
// credential without a password has nothing to reset and the call is a
// silent no-op.
func (c *PersonCredential) ResetMFA(caller Caller) error {
	if !caller.HasRole(RoleOperator) {
		return ErrOperatorRequired
	}
	if c.password == nil {
		return nil
	}
	c.removeAllAuthenticators()
	c.mfa.clearSession()
	c.mfa.Enabled = false
	c.record(&MFAStateReset{Envelope: c.envelope()})
	return nil
}

// InitiateMFAAuthentication mints the session token that gates all
// authenticator operations for one login attempt.
func (c *PersonCredential) InitiateMFAAuthentication(tokens TokenService) (Token, error) {
	if err := c.requireVerifiedWithPassword(); err != nil {
		return Token{}, err
	}
	tok, err := tokens.MintMFASessionToken(c.userID)
	if err != nil {
		return Token{}, err
	}
	now := time.Now()
	c.mfa.AuthenticationToken = tok.Value
	c.mfa.AuthenticationInitiatedAt = &now
	c.record(&MFAAuthenticationInitiated{Envelope: c.envelope(), ExpiresAt: tok.ExpiresAt})
	return tok, nil
}

// AssociateAuthenticator enrolls a new factor, or retries a pending
// enrollment of the same type in place. The first association also
// creates the recovery-codes authenticator ahead of it in the
// collection. The notify callback dispatches the OOB code or the
// enrollment notice before any state is mutated.
func (c *PersonCredential) AssociateAuthenticator(
	ctx context.Context,
	caller Caller,
	codes MFACodeService,
	cipher SecretCipher,
	req AssociationRequest,
	notify NotifyFunc,
) (*AssociationResult, error) {
	if err := c.requireOwner(caller); err != nil {
		return nil, err
	}
	if err := c.requireMFAEnabledPrecondition(); err != nil {
		return nil, err
	}
	if err := c.requireSession(caller); err != nil {
		return nil, err
	}
	if !req.Type.associable() {
		return nil, ErrAuthenticatorType
	}
	if req.Type == AuthenticatorOOBSMS && req.PhoneNumber == "" {
		return nil, ErrPhoneNumberRequired
	}
	if req.Type == AuthenticatorOOBEmail && req.EmailAddress == "" {
		return nil, ErrEmailAddressRequired
	}

	if existing := c.authenticators.byType(req.Type); existing != nil {
		return c.reassociate(ctx, existing, codes, cipher, req, notify)
	}

	if c.authenticators.hasUnconfirmed() && !caller.Authenticated {
		return nil, ErrPendingAssociation
	}

	auth := &MFAAuthenticator{
		ID:    uuid.New(),
		Type:  req.Type,
		State: AuthenticatorUnconfirmed,
	}
	result := &AssociationResult{}
	if err := c.provision(auth, codes, cipher, req, result); err != nil {
		return nil, err
	}

	var recovery *MFAAuthenticator
	if c.authenticators.recovery() == nil {
		var err error
		recovery, err = c.provisionRecoveryCodes(codes, cipher, result)
		if err != nil {
			return nil, err
		}
	}

	if err := c.notifyAssociation(ctx, auth, notify); err != nil {
		return nil, err
	}

	if recovery != nil {
		c.authenticators = c.authenticators.add(recovery)
		c.record(&MFAAuthenticatorAssociated{Envelope: c.envelope(), AuthenticatorID: recovery.ID, Type: recovery.Type})
	}
	c.authenticators = c.authenticators.add(auth)
	c.record(&MFAAuthenticatorAssociated{Envelope: c.envelope(), AuthenticatorID: auth.ID, Type: auth.Type})

	result.Authenticator = *auth
	return result, nil
}

// reassociate retries a pending enrollment of the same type: channel
// value and secret material are replaced in place and the collection
// size does not change. A confirmed authenticator re-associated this
// way drops back to unconfirmed since its secret is replaced.
func (c *PersonCredential) reassociate(
	ctx context.Context,
	auth *MFAAuthenticator,
	codes MFACodeService,
	cipher SecretCipher,
	req AssociationRequest,
	notify NotifyFunc,
) (*AssociationResult, error) {
	fresh := &MFAAuthenticator{ID: auth.ID, Type: auth.Type, State: AuthenticatorUnconfirmed}
	result := &AssociationResult{}
	if err := c.provision(fresh, codes, cipher, req, result); err != nil {
		return nil, err
	}
	if err := c.notifyAssociation(ctx, fresh, notify); err != nil {
		return nil, err
	}

	auth.State = AuthenticatorUnconfirmed
	auth.Challenged = false
	auth.Secret = fresh.Secret
	auth.ChannelValue = fresh.ChannelValue
	auth.oobCode = fresh.oobCode
	c.record(&MFAAuthenticatorAssociated{Envelope: c.envelope(), AuthenticatorID: auth.ID, Type: auth.Type})

	result.Authenticator = *auth
	return result, nil
}

// provision fills in the secret material for a factor being enrolled.
func (c *PersonCredential) provision(
	auth *MFAAuthenticator,
	codes MFACodeService,
	cipher SecretCipher,
	req AssociationRequest,
	result *AssociationResult,
) error {
	switch req.Type {
	case AuthenticatorTOTP:
		account := c.userID.String()
		if c.registration != nil {
			account = c.registration.EmailAddress
		}
		key, err := codes.GenerateTOTPSecret(account)
		if err != nil {
			return err
		}
		encrypted, err := cipher.Encrypt(key.Secret)
		if err != nil {
			return err
		}
		auth.Secret = encrypted
		result.TOTP = &key
	case AuthenticatorOOBSMS:
		auth.ChannelValue = req.PhoneNumber
	case AuthenticatorOOBEmail:
		auth.ChannelValue = req.EmailAddress
	}
	if auth.Type.IsOOB() {
		code, err := codes.GenerateOOBCode()
		if err != nil {
			return err
		}
		auth.oobCode = code
	}
	return nil
}

// provisionRecoveryCodes builds the implicit recovery-codes
// authenticator created alongside the first enrolled factor.
func (c *PersonCredential) provisionRecoveryCodes(codes MFACodeService, cipher SecretCipher, result *AssociationResult) (*MFAAuthenticator, error) {
	plain, err := codes.GenerateRecoveryCodes()
	if err != nil {
		return nil, err
	}
	encrypted, err := cipher.Encrypt(strings.Join(plain, recoveryCodeSeparator))
	if err != nil {
		return nil, err
	}
	result.RecoveryCodes = plain
	return &MFAAuthenticator{
		ID:     uuid.New(),
		Type:   AuthenticatorRecoveryCodes,
		State:  AuthenticatorUnconfirmed,
		Secret: encrypted,
	}, nil
}

func (c *PersonCredential) notifyAssociation(ctx context.Context, auth *MFAAuthenticator, notify NotifyFunc) error {
	if notify == nil {
		return nil
	}
	switch auth.Type {
	case AuthenticatorOOBSMS:
		return notify(ctx, Notification{Kind: NotifyOOBCode, Channel: ChannelSMS, Recipient: auth.ChannelValue, Code: auth.oobCode})
	case AuthenticatorOOBEmail:
		return notify(ctx, Notification{Kind: NotifyOOBCode, Channel: ChannelEmail, Recipient: auth.ChannelValue, Code: auth.oobCode})
	case AuthenticatorTOTP:
		recipient := ""
		if c.registration != nil {
			recipient = c.registration.EmailAddress
		}
		return notify(ctx, Notification{Kind: NotifyEnrollment, Channel: ChannelEmail, Recipient: recipient})
	}
	return nil
}

// ConfirmAuthenticatorAssociation verifies the enrollment code for a
// pending authenticator and confirms it. A recovery-codes authenticator
// created alongside it is confirmed at the same time.
func (c *PersonCredential) ConfirmAuthenticatorAssociation(
	caller Caller,
	codes MFACodeService,
	cipher SecretCipher,
	typ AuthenticatorType,
	oobCode, confirmationCode string,
) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if err := c.requireVerifiedWithPassword(); err != nil {
		return err
	}
	if !c.mfa.Enabled {
		return ErrMFADisabled
	}
	if err := c.requireSession(caller); err != nil {
		return err
	}
	if !typ.associable() {
		return ErrAuthenticatorType
	}
	auth := c.authenticators.byType(typ)
	if auth == nil || auth.State != AuthenticatorUnconfirmed {
		return ErrNoUnconfirmedMatch
	}

	if err := c.checkFactorCode(auth, codes, cipher, oobCode, confirmationCode); err != nil {
		return err
	}

	auth.State = AuthenticatorConfirmed
	auth.Challenged = false
	auth.oobCode = ""
	if recovery := c.authenticators.recovery(); recovery != nil && recovery.State == AuthenticatorUnconfirmed {
		recovery.State = AuthenticatorConfirmed
	}
	c.record(&MFAAuthenticatorConfirmed{Envelope: c.envelope(), AuthenticatorID: auth.ID, Type: auth.Type})
	return nil
}

// ChallengeAuthenticator readies an enrolled authenticator for a
// verification attempt. OOB factors get a fresh code dispatched through
// the notify callback; for TOTP and recovery codes the challenge is
// only a state toggle.
func (c *PersonCredential) ChallengeAuthenticator(
	ctx context.Context,
	caller Caller,
	codes MFACodeService,
	authenticatorID uuid.UUID,
	notify NotifyFunc,
) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if err := c.requireMFAEnabledPrecondition(); err != nil {
		return err
	}
	if err := c.requireSession(caller); err != nil {
		return err
	}
	auth := c.authenticators.byID(authenticatorID)
	if auth == nil {
		return ErrAuthenticatorNotFound
	}

	if auth.Type.IsOOB() {
		code, err := codes.GenerateOOBCode()
		if err != nil {
			return err
		}
		if err := c.notifyChallenge(ctx, auth, code, notify); err != nil {
			return err
		}
		auth.oobCode = code
	}
	auth.Challenged = true
	c.record(&MFAAuthenticatorChallenged{Envelope: c.envelope(), AuthenticatorID: auth.ID, Type: auth.Type})
	return nil
}

func (c *PersonCredential) notifyChallenge(ctx context.Context, auth *MFAAuthenticator, code string, notify NotifyFunc) error {
	if notify == nil {
		return nil
	}
	channel := ChannelEmail
	if auth.Type == AuthenticatorOOBSMS {
		channel = ChannelSMS
	}
	return notify(ctx, Notification{Kind: NotifyOOBCode, Channel: channel, Recipient: auth.ChannelValue, Code: code})
}

// VerifyAuthenticator completes a login attempt against a confirmed and
// challenged factor. On success the authentication session is consumed;
// the recorded event signals that full access tokens may be issued.
func (c *PersonCredential) VerifyAuthenticator(
	caller Caller,
	codes MFACodeService,
	cipher SecretCipher,
	typ AuthenticatorType,
	oobCode, confirmationCode string,
) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if err := c.requireMFAEnabledPrecondition(); err != nil {
		return err
	}
	if err := c.requireSession(caller); err != nil {
		return err
	}
	auth := c.authenticators.byType(typ)
	if auth == nil || auth.State != AuthenticatorConfirmed || !auth.Challenged {
		return ErrNoChallengedMatch
	}

	if typ == AuthenticatorRecoveryCodes {
		if err := c.consumeRecoveryCode(auth, cipher, confirmationCode); err != nil {
			return err
		}
	} else if err := c.checkFactorCode(auth, codes, cipher, oobCode, confirmationCode); err != nil {
		return err
	}

	auth.Challenged = false
	auth.oobCode = ""
	c.mfa.clearSession()
	c.record(&MFAAuthenticatorVerified{Envelope: c.envelope(), AuthenticatorID: auth.ID, Type: auth.Type})
	return nil
}

// checkFactorCode verifies a TOTP confirmation code or an OOB code for
// the given authenticator.
func (c *PersonCredential) checkFactorCode(auth *MFAAuthenticator, codes MFACodeService, cipher SecretCipher, oobCode, confirmationCode string) error {
	switch {
	case auth.Type == AuthenticatorTOTP:
		secret, err := cipher.Decrypt(auth.Secret)
		if err != nil {
			return err
		}
		valid, err := codes.ValidateTOTP(secret, confirmationCode)
		if err != nil {
			return err
		}
		if !valid {
			return ErrCodeInvalid
		}
	case auth.Type.IsOOB():
		if auth.oobCode == "" || subtle.ConstantTimeCompare([]byte(oobCode), []byte(auth.oobCode)) != 1 {
			return ErrCodeInvalid
		}
	default:
		return ErrAuthenticatorType
	}
	return nil
}

// consumeRecoveryCode checks a recovery code against the stored set and
// removes it on a match. Each code works exactly once.
func (c *PersonCredential) consumeRecoveryCode(auth *MFAAuthenticator, cipher SecretCipher, code string) error {
	plaintext, err := cipher.Decrypt(auth.Secret)
	if err != nil {
		return err
	}
	normalized := normalizeRecoveryCode(code)
	stored := strings.Split(plaintext, recoveryCodeSeparator)
	remaining := stored[:0]
	found := false
	for _, s := range stored {
		if !found && normalizeRecoveryCode(s) == normalized {
			found = true
			continue
		}
		remaining = append(remaining, s)
	}
	if !found {
		return ErrCodeInvalid
	}
	encrypted, err := cipher.Encrypt(strings.Join(remaining, recoveryCodeSeparator))
	if err != nil {
		return err
	}
	auth.Secret = encrypted
	return nil
}

func normalizeRecoveryCode(code string) string {
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	return strings.ToUpper(code)
}

// DisassociateAuthenticator removes an enrolled factor. The
// recovery-codes authenticator cannot be removed directly; it is
// cascade-removed together with the last remaining non-recovery factor.
func (c *PersonCredential) DisassociateAuthenticator(caller Caller, authenticatorID uuid.UUID) error {
	if err := c.requireOwner(caller); err != nil {
		return err
	}
	if err := c.requireVerifiedWithPassword(); err != nil {
		return err
	}
	if !c.mfa.Enabled {
		return ErrMFADisabled
	}
	if err := c.requireSession(caller); err != nil {
		return err
	}
	auth := c.authenticators.byID(authenticatorID)
	if auth == nil {
		return ErrAuthenticatorNotFound
	}
	if auth.Type == AuthenticatorRecoveryCodes {
		return ErrRecoveryCodesUndeletable
	}

	c.authenticators = c.authenticators.remove(auth.ID)
	c.record(&MFAAuthenticatorRemoved{Envelope: c.envelope(), AuthenticatorID: auth.ID, Type: auth.Type})

	if c.authenticators.countNonRecovery() == 0 {
		if recovery := c.authenticators.recovery(); recovery != nil {
			c.authenticators = c.authenticators.remove(recovery.ID)
			c.record(&MFAAuthenticatorRemoved{Envelope: c.envelope(), AuthenticatorID: recovery.ID, Type: recovery.Type})
		}
	}
	return nil
}

// Authenticators returns the ordered collection for the owner: the
// recovery-codes entry first when present, then insertion order.
func (c *PersonCredential) Authenticators(caller Caller) ([]MFAAuthenticator, error) {
	if err := c.requireOwner(caller); err != nil {
		return nil, err
	}
	if err := c.requireMFAEnabledPrecondition(); err != nil {
		return nil, err
	}
	if err := c.requireSession(caller); err != nil {
		return nil, err
	}
	out := make([]MFAAuthenticator, len(c.authenticators))
	for i, a := range c.authenticators {
		out[i] = *a
	}
	return out, nil
}

// removeAllAuthenticators clears the collection, recording a removal
// for each entry.
func (c *PersonCredential) removeAllAuthenticators() {
	for _, a := range c.authenticators {
		c.record(&MFAAuthenticatorRemoved{Envelope: c.envelope(), AuthenticatorID: a.ID, Type: a.Type})
	}
	c.authenticators = nil
}

// requireMFAEnabledPrecondition is the associate/challenge/verify guard:
// verified registration, stored password, and MFA enabled.
func (c *PersonCredential) requireMFAEnabledPrecondition() error {
	if err := c.requireVerifiedWithPassword(); err != nil {
		return err
	}
	if !c.mfa.Enabled {
		return ErrMFADisabledPrecondition
	}
	return nil
}

// requireSession enforces that an authentication session was initiated
// and that the caller presents its token.
func (c *PersonCredential) requireSession(caller Caller) error {
	if c.mfa.AuthenticationToken == "" {
		return ErrMFASessionNotInitiated
	}
	if subtle.ConstantTimeCompare([]byte(caller.SessionToken), []byte(c.mfa.AuthenticationToken)) != 1 {
		return ErrMFASessionMismatch
	}
	return nil
}
