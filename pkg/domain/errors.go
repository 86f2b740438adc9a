package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain failure. Callers map kinds to transport
// responses; the aggregate never returns an untyped error.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindRule         ErrorKind = "rule_violation"
	KindPrecondition ErrorKind = "precondition_violation"
	KindRole         ErrorKind = "role_violation"
	KindNotFound     ErrorKind = "entity_not_found"
	KindExists       ErrorKind = "entity_exists"
)

// Error is the failure type returned by every aggregate operation.
// Code is stable across releases; Message is for humans.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}

func rule(code, msg string) *Error {
	return &Error{Kind: KindRule, Code: code, Message: msg}
}

func precondition(code, msg string) *Error {
	return &Error{Kind: KindPrecondition, Code: code, Message: msg}
}

func roleViolation(code, msg string) *Error {
	return &Error{Kind: KindRole, Code: code, Message: msg}
}

func notFound(code, msg string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg}
}

func exists(code, msg string) *Error {
	return &Error{Kind: KindExists, Code: code, Message: msg}
}

// KindOf returns the kind of a domain error, or the empty string for
// errors that did not originate in this package.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// Registration and verification errors
var (
	ErrNotRegistered              = precondition("not_registered", "no registration exists for this credential")
	ErrRegistrationVerified       = precondition("registration_verified", "registration is already verified")
	ErrRegistrationUnverified     = precondition("registration_unverified", "registration has not been verified")
	ErrVerificationNotInProgress  = precondition("verification_not_in_progress", "no verification is in progress")
	ErrVerificationTokenMismatch  = precondition("verification_token_mismatch", "verification token does not match")
	ErrVerificationTokenExpired   = precondition("verification_token_expired", "verification token has expired")
	ErrGuestInvitationOutstanding = precondition("guest_invitation_outstanding", "a guest invitation is outstanding")
	ErrNoGuestInvitation          = precondition("no_guest_invitation", "no guest invitation is outstanding")
	ErrAlreadyRegisteredGuest     = exists("already_registered", "cannot invite an already registered person as guest")
	ErrEmailTaken                 = validation("email_taken", "email address is already in use")
	ErrEmailMissing               = validation("email_missing", "an email address is required")
)

// Password and login errors
var (
	ErrPasswordInvalid        = validation("password_invalid", "password does not meet requirements")
	ErrPasswordUnchanged      = validation("password_unchanged", "new password must differ from the current password")
	ErrPasswordNotEstablished = rule("password_not_established", "no password has been set")
	ErrPasswordRequired       = precondition("password_required", "a password must be set first")
	ErrResetTokenMismatch     = precondition("reset_token_mismatch", "password reset token does not match")
	ErrResetTokenExpired      = precondition("reset_token_expired", "password reset token has expired")
	ErrAccountLocked          = rule("account_locked", "account is locked after too many failed attempts")
)

// Caller and role errors
var (
	ErrNotOwner         = roleViolation("not_owner", "caller does not own this credential")
	ErrOperatorRequired = roleViolation("operator_required", "caller lacks the operator role")
)

// MFA errors
var (
	ErrMFADisabled              = rule("mfa_disabled", "multi-factor authentication is not enabled")
	ErrMFADisabledPrecondition  = precondition("mfa_disabled", "multi-factor authentication is not enabled")
	ErrMFACannotBeDisabled      = rule("mfa_cannot_be_disabled", "multi-factor authentication cannot be disabled for this credential")
	ErrMFASessionNotInitiated   = rule("mfa_session_not_initiated", "no authentication session has been initiated")
	ErrMFASessionMismatch       = rule("mfa_session_mismatch", "authentication session token does not match")
	ErrAuthenticatorType        = rule("authenticator_type_invalid", "authenticator type cannot be associated directly")
	ErrPhoneNumberRequired      = rule("phone_number_required", "an SMS authenticator requires a phone number")
	ErrEmailAddressRequired     = rule("email_address_required", "an email authenticator requires an email address")
	ErrPendingAssociation       = precondition("pending_association", "an unconfirmed authenticator must be challenged before another can be associated")
	ErrAuthenticatorNotFound    = notFound("authenticator_not_found", "no authenticator with that id is enrolled")
	ErrNoUnconfirmedMatch       = precondition("no_unconfirmed_authenticator", "no unconfirmed authenticator of that type exists")
	ErrNoChallengedMatch        = precondition("no_challenged_authenticator", "no confirmed and challenged authenticator of that type exists")
	ErrRecoveryCodesUndeletable = rule("recovery_codes_undeletable", "recovery codes cannot be removed directly")
	ErrCodeInvalid              = validation("code_invalid", "the supplied code is not valid")
)
