package domain

import "time"

// Registration holds the person's registered email address and display
// name. Absent until Register or a redeemed guest invitation sets it.
type Registration struct {
	EmailAddress string
	DisplayName  string
}

// GuestInvitation marks an outstanding invitation. While one exists the
// registration cannot be verified.
type GuestInvitation struct {
	EmailAddress string
	InvitedAt    time.Time
}

// VerificationState is the registration verification lifecycle state.
type VerificationState string

const (
	VerificationUnverified VerificationState = "unverified"
	VerificationVerifying  VerificationState = "verifying"
	VerificationVerified   VerificationState = "verified"
)

// RegistrationVerification tracks the email verification token
// lifecycle for a registration.
type RegistrationVerification struct {
	State     VerificationState
	Token     string
	ExpiresAt time.Time
}

func (v RegistrationVerification) expired(now time.Time) bool {
	return !v.ExpiresAt.IsZero() && now.After(v.ExpiresAt)
}

// IsVerified reports whether the registration has been verified.
func (v RegistrationVerification) IsVerified() bool {
	return v.State == VerificationVerified
}
