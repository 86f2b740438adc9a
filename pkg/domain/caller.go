package domain

import "github.com/google/uuid"

// Role names a capability a caller may hold beyond ownership.
type Role string

const (
	// RoleOperator allows administrative actions such as resetting
	// another person's MFA state.
	RoleOperator Role = "operator"
)

// Caller describes who is invoking an operation. Ownership and roles
// are checked explicitly against the aggregate; there is no ambient
// identity.
type Caller struct {
	UserID uuid.UUID
	Roles  []Role

	// SessionToken is the MFA authentication session token minted by
	// InitiateMFAAuthentication, presented on subsequent calls.
	SessionToken string

	// Authenticated is true when the caller already holds a fully
	// authenticated session, as opposed to being mid-login.
	Authenticated bool
}

// HasRole reports whether the caller holds the given role.
func (c Caller) HasRole(role Role) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}
