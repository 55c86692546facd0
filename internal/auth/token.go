package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/meridian-his/meridian/internal/shared"
)

// TokenKind distinguishes access tokens from refresh tokens. Older tokens
// carry no kind at all; KindUnspecified maps to access at the verification
// boundary.
type TokenKind string

const (
	KindUnspecified TokenKind = ""
	KindAccess      TokenKind = "access"
	KindRefresh     TokenKind = "refresh"
)

// Claims is the signed payload embedded in both token kinds. Role codes are a
// snapshot taken at issuance and may be stale; refresh rotation re-reads them.
type Claims struct {
	UserID       int64     `json:"uid"`
	StaffID      int64     `json:"sid"`
	Username     string    `json:"username"`
	Roles        []string  `json:"roles"`
	DepartmentID *int64    `json:"dept,omitempty"`
	Kind         TokenKind `json:"kind,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256-signed token pairs.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService constructs a TokenService. An empty signing secret is a
// fatal configuration error, never worked around.
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("auth: token signing secret is required")
	}
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// WithClock overrides the service clock. Test hook.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// AccessTTL reports the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

// IssuePair signs a fresh access/refresh token couple for the identity. The
// refresh token's claims are limited to subject, staff id, login name and the
// role-code snapshot.
func (s *TokenService) IssuePair(userID, staffID int64, username string, roles []string, departmentID *int64) (TokenPair, error) {
	now := s.now()

	access, err := s.sign(Claims{
		UserID:       userID,
		StaffID:      staffID,
		Username:     username,
		Roles:        roles,
		DepartmentID: departmentID,
		Kind:         KindAccess,
	}, now, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, err := s.sign(Claims{
		UserID:   userID,
		StaffID:  staffID,
		Username: username,
		Roles:    roles,
		Kind:     KindRefresh,
	}, now, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *TokenService) sign(claims Claims, now time.Time, ttl time.Duration) (string, error) {
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.Username,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify checks the signature and expiry and returns the parsed claims. Every
// failure mode - bad signature, malformed segments, expiry, wrong kind -
// collapses to shared.ErrTokenInvalid so callers cannot tell which check
// failed. Tokens without a kind are accepted as access tokens.
func (s *TokenService) Verify(tokenString string, expected TokenKind) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired(), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, shared.ErrTokenInvalid
	}
	kind := claims.Kind
	if kind == KindUnspecified {
		kind = KindAccess
	}
	if expected == KindUnspecified {
		expected = KindAccess
	}
	if kind != expected {
		return nil, shared.ErrTokenInvalid
	}
	return claims, nil
}
