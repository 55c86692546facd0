package auth

import (
	"context"
	"time"
)

// Repository defines persistence operations for the credential store.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*Credential, error)
	FindByID(ctx context.Context, id int64) (*Credential, error)
	FindProfile(ctx context.Context, staffID int64) (*Profile, error)

	// RecordFailure stores the post-failure attempt counter and, when the
	// threshold was crossed, the lockout expiry.
	RecordFailure(ctx context.Context, id int64, attempts int, lockedUntil *time.Time) error

	// RecordSuccess resets the attempt counter, clears any lockout, stamps
	// last_login_at and stores the freshly issued refresh token in the
	// single slot, invalidating its predecessor.
	RecordSuccess(ctx context.Context, id int64, at time.Time, refreshToken string) error

	StoreRefreshToken(ctx context.Context, id int64, refreshToken string) error
	ClearRefreshToken(ctx context.Context, id int64) error

	// UpdatePassword replaces the stored hash and clears the refresh token
	// slot, forcing re-login everywhere.
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
}
