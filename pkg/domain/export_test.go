package domain

import "time"

// Test-only backdoors. Compiled only into the package test binary;
// production code mutates the aggregate exclusively through its
// operations.

// ForceLock puts an active lock on the login monitor.
func (c *PersonCredential) ForceLock(until time.Time) {
	c.login.LockedUntil = &until
}

// ForceExpireVerification ages the in-flight verification token past
// its expiry.
func (c *PersonCredential) ForceExpireVerification() {
	c.verification.ExpiresAt = time.Now().Add(-time.Minute)
}

// ForceExpireReset ages the in-flight password reset token past its
// expiry.
func (c *PersonCredential) ForceExpireReset() {
	if c.password != nil {
		c.password.resetExpiresAt = time.Now().Add(-time.Minute)
	}
}

// ForceUnregister drops the registration and verification state.
func (c *PersonCredential) ForceUnregister() {
	c.registration = nil
	c.verification = RegistrationVerification{State: VerificationUnverified}
}
