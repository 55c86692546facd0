package auth

import (
	"time"

	"github.com/meridian-his/meridian/internal/shared"
)

// LockoutPolicy suspends an account after repeated failed logins. State is
// per-account; there is no per-IP or global rate limiting here.
type LockoutPolicy struct {
	Threshold int
	Window    time.Duration
}

// DefaultLockoutPolicy returns the standard 5-attempt, 30-minute policy.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: 5, Window: 30 * time.Minute}
}

// Check rejects the attempt while the credential is inside an active lockout
// window, before any password verification work is spent. The returned error
// carries the lockout expiry so clients can present a retry time.
func (p LockoutPolicy) Check(cred *Credential, now time.Time) error {
	if cred.Locked(now) {
		return shared.NewLockedError(*cred.LockedUntil)
	}
	return nil
}

// OnFailure computes the credential's next failed-attempt counter and lockout
// expiry after an unsuccessful verification. The counter saturates at the
// threshold; crossing it starts the lockout window.
func (p LockoutPolicy) OnFailure(cred *Credential, now time.Time) (attempts int, lockedUntil *time.Time) {
	attempts = cred.FailedAttempts + 1
	if attempts >= p.Threshold {
		attempts = p.Threshold
		until := now.Add(p.Window)
		lockedUntil = &until
	}
	return attempts, lockedUntil
}
