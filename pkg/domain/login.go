package domain

import "time"

// LockoutPolicy configures when repeated password failures lock the
// account and for how long.
type LockoutPolicy struct {
	MaxFailedAttempts int
	Cooldown          time.Duration
}

// DefaultLockoutPolicy matches the service defaults: five failures,
// fifteen minute cooldown.
var DefaultLockoutPolicy = LockoutPolicy{
	MaxFailedAttempts: 5,
	Cooldown:          15 * time.Minute,
}

// LoginMonitor counts failed password verifications and carries the
// lockout window. Expiry is evaluated against the clock at call time;
// there are no timers.
type LoginMonitor struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// IsLocked reports whether a lock is active at the given time.
func (m LoginMonitor) IsLocked(now time.Time) bool {
	return m.LockedUntil != nil && now.Before(*m.LockedUntil)
}

// recordFailure increments the counter and returns the lock expiry when
// the policy maximum is reached.
func (m *LoginMonitor) recordFailure(now time.Time, policy LockoutPolicy) (time.Time, bool) {
	m.FailedAttempts++
	if m.FailedAttempts >= policy.MaxFailedAttempts {
		until := now.Add(policy.Cooldown)
		m.LockedUntil = &until
		return until, true
	}
	return time.Time{}, false
}

// reset clears the counter and any lock, reporting whether a lock
// record was present. An expired lock still counts: it is cleared here
// and the unlock is announced.
func (m *LoginMonitor) reset(now time.Time) bool {
	wasLocked := m.LockedUntil != nil
	m.FailedAttempts = 0
	m.LockedUntil = nil
	return wasLocked
}
