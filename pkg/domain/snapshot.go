package domain

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is the persistence view of a PersonCredential. The
// repository materializes aggregates through Restore and writes them
// back from Snapshot; nothing else constructs aggregates from raw
// state.
type Snapshot struct {
	UserID          uuid.UUID
	Version         int
	Registration    *Registration
	GuestInvitation *GuestInvitation
	Verification    RegistrationVerification
	Password        *PasswordSnapshot
	Login           LoginMonitor
	MFA             MFAOptions
	Authenticators  []AuthenticatorSnapshot

	// EventSeq is the last event sequence number issued, carried so the
	// per-aggregate sequence stays monotonic across load/save cycles.
	EventSeq int
}

// PasswordSnapshot is the stored password state.
type PasswordSnapshot struct {
	Hash           string
	ResetToken     string
	ResetExpiresAt time.Time
	ResetInitiated bool
}

// AuthenticatorSnapshot is the stored state of one authenticator. The
// OOB code survives between the challenge and verify requests of one
// login attempt.
type AuthenticatorSnapshot struct {
	ID           uuid.UUID
	Type         AuthenticatorType
	State        AuthenticatorState
	Challenged   bool
	Secret       string
	ChannelValue string
	OOBCode      string
}

// Restore rebuilds an aggregate from its persisted snapshot without
// recording any events.
func Restore(s Snapshot, opts ...Option) *PersonCredential {
	c := &PersonCredential{
		userID:          s.UserID,
		version:         s.Version,
		registration:    s.Registration,
		guestInvitation: s.GuestInvitation,
		verification:    s.Verification,
		login:           s.Login,
		mfa:             s.MFA,
		lockout:         DefaultLockoutPolicy,
		seq:             s.EventSeq,
	}
	if s.Password != nil {
		c.password = &passwordKeep{
			hash:           s.Password.Hash,
			resetToken:     s.Password.ResetToken,
			resetExpiresAt: s.Password.ResetExpiresAt,
			resetInitiated: s.Password.ResetInitiated,
		}
	}
	for _, a := range s.Authenticators {
		c.authenticators = append(c.authenticators, &MFAAuthenticator{
			ID:           a.ID,
			Type:         a.Type,
			State:        a.State,
			Challenged:   a.Challenged,
			Secret:       a.Secret,
			ChannelValue: a.ChannelValue,
			oobCode:      a.OOBCode,
		})
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the persistence view of the aggregate.
func (c *PersonCredential) Snapshot() Snapshot {
	s := Snapshot{
		UserID:          c.userID,
		Version:         c.version,
		Registration:    c.registration,
		GuestInvitation: c.guestInvitation,
		Verification:    c.verification,
		Login:           c.login,
		MFA:             c.mfa,
		EventSeq:        c.seq,
	}
	if c.password != nil {
		s.Password = &PasswordSnapshot{
			Hash:           c.password.hash,
			ResetToken:     c.password.resetToken,
			ResetExpiresAt: c.password.resetExpiresAt,
			ResetInitiated: c.password.resetInitiated,
		}
	}
	for _, a := range c.authenticators {
		s.Authenticators = append(s.Authenticators, AuthenticatorSnapshot{
			ID:           a.ID,
			Type:         a.Type,
			State:        a.State,
			Challenged:   a.Challenged,
			Secret:       a.Secret,
			ChannelValue: a.ChannelValue,
			OOBCode:      a.oobCode,
		})
	}
	return s
}
