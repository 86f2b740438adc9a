package domain

import (
	"crypto/subtle"
	"time"
)

// Plaintext passwords outside these bounds are rejected before the
// hasher is consulted.
const (
	minPlaintextLen = 1
	maxPlaintextLen = 1024
)

// passwordKeep holds the stored hash and the reset-token lifecycle.
// Absent (nil on the aggregate) until SetCredentials stores a hash.
type passwordKeep struct {
	hash           string
	resetToken     string
	resetExpiresAt time.Time
	resetInitiated bool
}

func (k *passwordKeep) clearReset() {
	k.resetToken = ""
	k.resetExpiresAt = time.Time{}
	k.resetInitiated = false
}

// SetCredentials validates the plaintext through the hasher and stores
// a freshly computed hash. A fresh hash is always computed, even when
// the plaintext matches the current password.
func (c *PersonCredential) SetCredentials(hasher PasswordHasher, plaintext string) error {
	if err := hasher.Validate(plaintext); err != nil {
		return validation(ErrPasswordInvalid.Code, err.Error())
	}
	hash, err := hasher.Hash(plaintext)
	if err != nil {
		return err
	}
	c.password = &passwordKeep{hash: hash}
	c.record(&CredentialsChanged{Envelope: c.envelope()})
	return nil
}

// VerifyPassword compares the plaintext against the stored hash and
// returns the match result. A mismatch increments the failure counter
// and locks the account when the policy maximum is reached; a match
// resets the counter and clears any active lock. Only a structurally
// invalid plaintext yields an error.
func (c *PersonCredential) VerifyPassword(hasher PasswordHasher, plaintext string) (bool, error) {
	if len(plaintext) < minPlaintextLen || len(plaintext) > maxPlaintextLen {
		return false, ErrPasswordInvalid
	}
	if c.password == nil {
		return false, ErrPasswordNotEstablished
	}
	now := time.Now()
	if c.login.IsLocked(now) {
		return false, ErrAccountLocked
	}

	match, err := hasher.Verify(plaintext, c.password.hash)
	if err != nil {
		return false, err
	}
	if !match {
		if until, locked := c.login.recordFailure(now, c.lockout); locked {
			c.record(&AccountLocked{Envelope: c.envelope(), LockedUntil: until})
		}
		return false, nil
	}

	if wasLocked := c.login.reset(now); wasLocked {
		c.record(&AccountUnlocked{Envelope: c.envelope()})
	}
	c.record(&PasswordVerified{Envelope: c.envelope()})
	return true, nil
}

// InitiatePasswordReset mints a reset token for a verified, registered
// credential that already has a password.
func (c *PersonCredential) InitiatePasswordReset(tokens TokenService) (Token, error) {
	if c.password == nil {
		return Token{}, ErrPasswordNotEstablished
	}
	if c.verification.State != VerificationVerified {
		return Token{}, ErrRegistrationUnverified
	}
	tok, err := tokens.MintResetToken(c.userID)
	if err != nil {
		return Token{}, err
	}
	c.password.resetToken = tok.Value
	c.password.resetExpiresAt = tok.ExpiresAt
	c.password.resetInitiated = true
	c.record(&PasswordResetInitiated{Envelope: c.envelope(), Token: tok.Value, ExpiresAt: tok.ExpiresAt})
	return tok, nil
}

// CompletePasswordReset consumes a reset token and stores the new
// password. The new password must differ from the current one. A
// completed reset clears any active lock.
func (c *PersonCredential) CompletePasswordReset(hasher PasswordHasher, token, newPlaintext string) error {
	if err := hasher.Validate(newPlaintext); err != nil {
		return validation(ErrPasswordInvalid.Code, err.Error())
	}
	if c.password == nil {
		return ErrPasswordRequired
	}
	if !c.password.resetInitiated || subtle.ConstantTimeCompare([]byte(token), []byte(c.password.resetToken)) != 1 {
		return ErrResetTokenMismatch
	}
	now := time.Now()
	if now.After(c.password.resetExpiresAt) {
		return ErrResetTokenExpired
	}
	same, err := hasher.Verify(newPlaintext, c.password.hash)
	if err != nil {
		return err
	}
	if same {
		return ErrPasswordUnchanged
	}
	hash, err := hasher.Hash(newPlaintext)
	if err != nil {
		return err
	}

	c.password.hash = hash
	c.password.clearReset()
	c.record(&PasswordResetCompleted{Envelope: c.envelope()})
	if wasLocked := c.login.reset(now); wasLocked {
		c.record(&AccountUnlocked{Envelope: c.envelope()})
	}
	return nil
}
