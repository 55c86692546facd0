package auth

import "time"

// Credential represents a login account for a staff member. Records are never
// deleted, only deactivated.
type Credential struct {
	ID             int64
	StaffID        int64
	Username       string
	PasswordHash   string
	IsActive       bool
	LastLoginAt    *time.Time
	FailedAttempts int
	LockedUntil    *time.Time
	RefreshToken   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Locked reports whether the credential is inside an active lockout window.
func (c *Credential) Locked(now time.Time) bool {
	return c.LockedUntil != nil && now.Before(*c.LockedUntil)
}

// Profile is the staff summary returned alongside a token pair.
type Profile struct {
	StaffID      int64
	FullName     string
	DepartmentID *int64
	Title        string
}

// TokenPair carries a freshly issued access/refresh token couple.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}
