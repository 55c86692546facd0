package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters for newly created hashes. Verification always uses the
// parameters embedded in the stored hash, so these can change without
// invalidating existing credentials.
const (
	scryptLogN    = 15
	scryptR       = 8
	scryptP       = 1
	scryptSaltLen = 16
	scryptKeyLen  = 32
)

// HashPassword derives a key from the secret with scrypt and a fresh random
// salt, returning a self-describing encoded string:
//
//	$scrypt$ln=15,r=8,p=1$<base64 salt>$<base64 key>
func HashPassword(secret string) (string, error) {
	salt := make([]byte, scryptSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	key, err := scrypt.Key([]byte(secret), salt, 1<<scryptLogN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("auth: derive key: %w", err)
	}
	return fmt.Sprintf("$scrypt$ln=%d,r=%d,p=%d$%s$%s",
		scryptLogN, scryptR, scryptP,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key)), nil
}

// VerifyPassword re-derives a key with the parameters and salt stored in the
// encoded hash and compares it to the stored key in constant time. Malformed
// input of any shape yields false, never an error, so callers cannot be used
// as a parsing oracle.
func VerifyPassword(secret, encoded string) bool {
	logN, r, p, salt, key, ok := parseHash(encoded)
	if !ok {
		return false
	}
	derived, err := scrypt.Key([]byte(secret), salt, 1<<logN, r, p, len(key))
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(derived, key) == 1
}

func parseHash(encoded string) (logN, r, p int, salt, key []byte, ok bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "" || parts[1] != "scrypt" {
		return 0, 0, 0, nil, nil, false
	}
	params := strings.Split(parts[2], ",")
	if len(params) != 3 {
		return 0, 0, 0, nil, nil, false
	}
	var err error
	if logN, err = paramValue(params[0], "ln"); err != nil {
		return 0, 0, 0, nil, nil, false
	}
	if r, err = paramValue(params[1], "r"); err != nil {
		return 0, 0, 0, nil, nil, false
	}
	if p, err = paramValue(params[2], "p"); err != nil {
		return 0, 0, 0, nil, nil, false
	}
	if logN <= 0 || logN > 31 || r <= 0 || p <= 0 {
		return 0, 0, 0, nil, nil, false
	}
	if salt, err = base64.StdEncoding.DecodeString(parts[3]); err != nil || len(salt) == 0 {
		return 0, 0, 0, nil, nil, false
	}
	if key, err = base64.StdEncoding.DecodeString(parts[4]); err != nil || len(key) == 0 {
		return 0, 0, 0, nil, nil, false
	}
	return logN, r, p, salt, key, true
}

func paramValue(param, name string) (int, error) {
	value, found := strings.CutPrefix(param, name+"=")
	if !found {
		return 0, fmt.Errorf("auth: missing %s parameter", name)
	}
	return strconv.Atoi(value)
}
