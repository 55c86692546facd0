package shared

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness conflict.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrValidation indicates rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure. Unknown login names and
	// wrong passwords are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenInvalid covers bad signature, malformed, wrong kind and expired
	// tokens. All verification failures collapse to this one value.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrRefreshRevoked indicates a refresh token that verifies
	// cryptographically but no longer matches the stored slot.
	ErrRefreshRevoked = errors.New("refresh token revoked")
	// ErrForbidden indicates a missing permission grant.
	ErrForbidden = errors.New("forbidden")
)

// LockedError reports a temporarily locked account together with the instant
// the lockout expires. It is the one authentication failure that surfaces
// extra detail to callers.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account temporarily locked until %s", e.Until.Format(time.RFC3339))
}

// NewLockedError constructs a LockedError for the given expiry.
func NewLockedError(until time.Time) *LockedError {
	return &LockedError{Until: until}
}

// AsLockedError unwraps err into a LockedError if possible.
func AsLockedError(err error) (*LockedError, bool) {
	var locked *LockedError
	if errors.As(err, &locked) {
		return locked, true
	}
	return nil, false
}
