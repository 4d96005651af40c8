package cryptox

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyPrefix marks keys minted by the registry. Anything without the
// prefix is treated as a legacy shared-secret candidate by the caller.
const APIKeyPrefix = "sk_"

// apiKeyHashCost is the bcrypt work factor for stored API-key digests.
// The digest is computed once per candidate on every admin request, so the
// cost stays at the library default rather than something interactive-login
// grade.
const apiKeyHashCost = bcrypt.DefaultCost

var ErrKeyMismatch = errors.New("cryptox: api key does not match digest")

// GenerateAPIKey mints a new prefixed API key with 256 bits of entropy.
// The plaintext is shown to the operator exactly once; only the bcrypt
// digest is stored.
func GenerateAPIKey() (string, error) {
	tok, err := GenerateToken(TokenSize256)
	if err != nil {
		return "", err
	}
	return APIKeyPrefix + tok, nil
}

// HasAPIKeyPrefix reports whether raw looks like a registry-minted key.
func HasAPIKeyPrefix(raw string) bool {
	return strings.HasPrefix(raw, APIKeyPrefix)
}

// HashAPIKey returns the bcrypt digest of a plaintext API key.
func HashAPIKey(key string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(key), apiKeyHashCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// VerifyAPIKey compares a plaintext key against a stored bcrypt digest.
// bcrypt is not constant-time in wall clock, but it is cryptographically
// sound for this purpose; the caller scans all candidates rather than
// indexing by key to avoid revealing which record matched.
func VerifyAPIKey(key, digest string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(key)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrKeyMismatch
		}
		return err
	}
	return nil
}
