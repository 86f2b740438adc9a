package domain

import "github.com/google/uuid"

// AuthenticatorType identifies an enrolled second-factor method.
type AuthenticatorType string

const (
	AuthenticatorNone          AuthenticatorType = "none"
	AuthenticatorRecoveryCodes AuthenticatorType = "recovery_codes"
	AuthenticatorTOTP          AuthenticatorType = "totp"
	AuthenticatorOOBSMS        AuthenticatorType = "oob_sms"
	AuthenticatorOOBEmail      AuthenticatorType = "oob_email"
)

// IsOOB reports whether codes for this type are delivered out of band.
func (t AuthenticatorType) IsOOB() bool {
	return t == AuthenticatorOOBSMS || t == AuthenticatorOOBEmail
}

// associable reports whether callers may associate this type directly.
// Recovery codes are managed by the aggregate, never associated.
func (t AuthenticatorType) associable() bool {
	return t == AuthenticatorTOTP || t == AuthenticatorOOBSMS || t == AuthenticatorOOBEmail
}

// AuthenticatorState is the enrollment state of an authenticator.
type AuthenticatorState string

const (
	AuthenticatorUnconfirmed AuthenticatorState = "unconfirmed"
	AuthenticatorConfirmed   AuthenticatorState = "confirmed"
)

// MFAAuthenticator is one enrolled second factor. Secret is encrypted
// at rest; oobCode is only set while a confirmation or verification is
// pending.
type MFAAuthenticator struct {
	ID           uuid.UUID
	Type         AuthenticatorType
	State        AuthenticatorState
	Challenged   bool
	Secret       string
	ChannelValue string

	oobCode string
}

// IsConfirmed reports whether the authenticator has been confirmed.
func (a *MFAAuthenticator) IsConfirmed() bool {
	return a.State == AuthenticatorConfirmed
}

// authenticatorList keeps the enrolled authenticators ordered: the
// recovery-codes entry, when present, is always first; the rest keep
// insertion order.
type authenticatorList []*MFAAuthenticator

func (l authenticatorList) byID(id uuid.UUID) *MFAAuthenticator {
	for _, a := range l {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (l authenticatorList) byType(t AuthenticatorType) *MFAAuthenticator {
	for _, a := range l {
		if a.Type == t {
			return a
		}
	}
	return nil
}

func (l authenticatorList) recovery() *MFAAuthenticator {
	return l.byType(AuthenticatorRecoveryCodes)
}

func (l authenticatorList) hasUnconfirmed() bool {
	for _, a := range l {
		if a.Type != AuthenticatorRecoveryCodes && a.State == AuthenticatorUnconfirmed {
			return true
		}
	}
	return false
}

func (l authenticatorList) countNonRecovery() int {
	n := 0
	for _, a := range l {
		if a.Type != AuthenticatorRecoveryCodes {
			n++
		}
	}
	return n
}

// add appends an authenticator, keeping recovery codes at index 0.
func (l authenticatorList) add(a *MFAAuthenticator) authenticatorList {
	if a.Type == AuthenticatorRecoveryCodes {
		return append(authenticatorList{a}, l...)
	}
	return append(l, a)
}

func (l authenticatorList) remove(id uuid.UUID) authenticatorList {
	out := l[:0]
	for _, a := range l {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}
