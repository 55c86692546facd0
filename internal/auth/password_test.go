package auth

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/scrypt"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)

	assert.True(t, VerifyPassword("s3cret-pass", hash))
	assert.False(t, VerifyPassword("wrong-pass", hash))
}

func TestHashPasswordSelfDescribing(t *testing.T) {
	hash, err := HashPassword("anything")
	require.NoError(t, err)

	parts := strings.Split(hash, "$")
	require.Len(t, parts, 5)
	assert.Equal(t, "scrypt", parts[1])
	assert.Equal(t, "ln=15,r=8,p=1", parts[2])
}

func TestHashPasswordFreshSalt(t *testing.T) {
	first, err := HashPassword("same-secret")
	require.NoError(t, err)
	second, err := HashPassword("same-secret")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, VerifyPassword("same-secret", first))
	assert.True(t, VerifyPassword("same-secret", second))
}

func TestVerifyPasswordStoredParameters(t *testing.T) {
	// A hash created with different cost parameters still verifies because
	// verification uses the embedded parameters, not the current defaults.
	salt := []byte("0123456789abcdef")
	key, err := scrypt.Key([]byte("migrate-me"), salt, 1<<14, 8, 2, 32)
	require.NoError(t, err)
	legacy := "$scrypt$ln=14,r=8,p=2$" +
		base64.StdEncoding.EncodeToString(salt) + "$" +
		base64.StdEncoding.EncodeToString(key)

	assert.True(t, VerifyPassword("migrate-me", legacy))
	assert.False(t, VerifyPassword("not-it", legacy))
}

func TestVerifyPasswordMalformed(t *testing.T) {
	cases := []string{
		"",
		"plain-text",
		"$scrypt$ln=15,r=8,p=1$only-three-parts",
		"$bcrypt$ln=15,r=8,p=1$c2FsdA==$a2V5",
		"$scrypt$ln=15,r=8$c2FsdA==$a2V5",
		"$scrypt$ln=abc,r=8,p=1$c2FsdA==$a2V5",
		"$scrypt$ln=15,r=8,p=1$!!!$a2V5",
		"$scrypt$ln=15,r=8,p=1$c2FsdA==$!!!",
		"$scrypt$ln=0,r=8,p=1$c2FsdA==$a2V5",
		"$scrypt$ln=99,r=8,p=1$c2FsdA==$a2V5",
	}
	for _, encoded := range cases {
		assert.False(t, VerifyPassword("whatever", encoded), "input %q", encoded)
	}
}
