package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-his/meridian/internal/shared"
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const credentialColumns = `id, staff_id, username, password_hash, is_active, last_login_at, failed_attempts, locked_until, refresh_token, created_at, updated_at`

// FindByUsername fetches a credential by its unique login name.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*Credential, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM user_credentials WHERE username = $1`, username)
	return scanCredential(row)
}

// FindByID fetches a credential by primary key.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*Credential, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+credentialColumns+` FROM user_credentials WHERE id = $1`, id)
	return scanCredential(row)
}

// FindProfile fetches the staff summary linked to a credential.
func (r *PGRepository) FindProfile(ctx context.Context, staffID int64) (*Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx,
		`SELECT id, full_name, department_id, title FROM staff WHERE id = $1`, staffID).
		Scan(&p.StaffID, &p.FullName, &p.DepartmentID, &p.Title)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// RecordFailure persists the attempt counter and optional lockout expiry.
func (r *PGRepository) RecordFailure(ctx context.Context, id int64, attempts int, lockedUntil *time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE user_credentials SET failed_attempts = $2, locked_until = $3, updated_at = NOW() WHERE id = $1`,
		id, attempts, lockedUntil)
	return err
}

// RecordSuccess resets lockout state and rotates the stored refresh token.
func (r *PGRepository) RecordSuccess(ctx context.Context, id int64, at time.Time, refreshToken string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE user_credentials
		 SET failed_attempts = 0, locked_until = NULL, last_login_at = $2, refresh_token = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, at, refreshToken)
	return err
}

// StoreRefreshToken overwrites the single refresh-token slot.
func (r *PGRepository) StoreRefreshToken(ctx context.Context, id int64, refreshToken string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE user_credentials SET refresh_token = $2, updated_at = NOW() WHERE id = $1`,
		id, refreshToken)
	return err
}

// ClearRefreshToken empties the refresh-token slot.
func (r *PGRepository) ClearRefreshToken(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE user_credentials SET refresh_token = NULL, updated_at = NOW() WHERE id = $1`, id)
	return err
}

// UpdatePassword replaces the stored hash and clears the refresh token.
func (r *PGRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE user_credentials SET password_hash = $2, refresh_token = NULL, updated_at = NOW() WHERE id = $1`,
		id, passwordHash)
	return err
}

func scanCredential(row pgx.Row) (*Credential, error) {
	var c Credential
	err := row.Scan(&c.ID, &c.StaffID, &c.Username, &c.PasswordHash, &c.IsActive,
		&c.LastLoginAt, &c.FailedAttempts, &c.LockedUntil, &c.RefreshToken,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

var _ Repository = (*PGRepository)(nil)
