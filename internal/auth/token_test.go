package auth

import (
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-his/meridian/internal/shared"
)

const testSecret = "test-signing-secret"

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	svc, err := NewTokenService(testSecret, time.Hour, 7*24*time.Hour)
	require.NoError(t, err)
	return svc
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	_, err := NewTokenService("", time.Hour, time.Hour)
	require.Error(t, err)
}

func TestIssuePairAndVerify(t *testing.T) {
	svc := newTestTokenService(t)

	dept := int64(12)
	pair, err := svc.IssuePair(7, 42, "drchen", []string{"physician"}, &dept)
	require.NoError(t, err)
	assert.Equal(t, int64(3600), pair.ExpiresIn)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	claims, err := svc.Verify(pair.AccessToken, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, int64(42), claims.StaffID)
	assert.Equal(t, "drchen", claims.Username)
	assert.Equal(t, []string{"physician"}, claims.Roles)
	require.NotNil(t, claims.DepartmentID)
	assert.Equal(t, int64(12), *claims.DepartmentID)

	refreshClaims, err := svc.Verify(pair.RefreshToken, KindRefresh)
	require.NoError(t, err)
	assert.Equal(t, KindRefresh, refreshClaims.Kind)
	// Refresh claims are limited: no department.
	assert.Nil(t, refreshClaims.DepartmentID)
}

func TestVerifyRejectsWrongKind(t *testing.T) {
	svc := newTestTokenService(t)
	pair, err := svc.IssuePair(1, 1, "nurse1", nil, nil)
	require.NoError(t, err)

	_, err = svc.Verify(pair.AccessToken, KindRefresh)
	assert.ErrorIs(t, err, shared.ErrTokenInvalid)
	_, err = svc.Verify(pair.RefreshToken, KindAccess)
	assert.ErrorIs(t, err, shared.ErrTokenInvalid)
}

func TestVerifyRejectsTampering(t *testing.T) {
	svc := newTestTokenService(t)
	pair, err := svc.IssuePair(1, 1, "nurse1", nil, nil)
	require.NoError(t, err)

	token := pair.AccessToken
	for _, i := range []int{5, len(token) / 2, len(token) - 2} {
		mutated := []byte(token)
		if mutated[i] == 'a' {
			mutated[i] = 'b'
		} else {
			mutated[i] = 'a'
		}
		_, err := svc.Verify(string(mutated), KindAccess)
		assert.ErrorIs(t, err, shared.ErrTokenInvalid, "mutation at %d", i)
	}
}

func TestVerifyRejectsMalformed(t *testing.T) {
	svc := newTestTokenService(t)
	for _, token := range []string{"", "abc", "a.b", "a.b.c.d", strings.Repeat("x", 100)} {
		_, err := svc.Verify(token, KindAccess)
		assert.ErrorIs(t, err, shared.ErrTokenInvalid, "token %q", token)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	svc := newTestTokenService(t)
	pair, err := svc.IssuePair(1, 1, "nurse1", nil, nil)
	require.NoError(t, err)

	_, err = svc.Verify(pair.AccessToken, KindAccess)
	require.NoError(t, err)

	svc.WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
	_, err = svc.Verify(pair.AccessToken, KindAccess)
	assert.ErrorIs(t, err, shared.ErrTokenInvalid)

	// The refresh token outlives the access token.
	_, err = svc.Verify(pair.RefreshToken, KindRefresh)
	assert.NoError(t, err)
}

func TestVerifyAcceptsKindlessTokenAsAccess(t *testing.T) {
	svc := newTestTokenService(t)

	// Tokens minted before the kind field existed carry no kind claim.
	legacy := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:   9,
		Username: "legacy",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	signed, err := legacy.SignedString([]byte(testSecret))
	require.NoError(t, err)

	claims, err := svc.Verify(signed, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, int64(9), claims.UserID)

	_, err = svc.Verify(signed, KindRefresh)
	assert.ErrorIs(t, err, shared.ErrTokenInvalid)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	svc := newTestTokenService(t)
	other, err := NewTokenService("another-secret", time.Hour, time.Hour)
	require.NoError(t, err)

	pair, err := other.IssuePair(1, 1, "nurse1", nil, nil)
	require.NoError(t, err)
	_, err = svc.Verify(pair.AccessToken, KindAccess)
	assert.ErrorIs(t, err, shared.ErrTokenInvalid)
}
