package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTLs. Access tokens stay short so a revoked admin flag
// propagates quickly; refresh tokens carry the session.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// TokenUse values distinguish the two token classes at the claims level, on
// top of each class having its own signing secret.
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

// Claims are the registry's token claims. Subject carries the wallet
// address that authenticated.
type Claims struct {
	jwt.RegisteredClaims

	// TokenUse is "access" or "refresh".
	TokenUse string `json:"token_use,omitempty"`

	// IsAdmin marks tokens minted for registry operators.
	IsAdmin bool `json:"admin,omitempty"`

	// ProfileID is set once the address has a registered profile.
	ProfileID string `json:"pid,omitempty"`
}

// NewClaims builds minimally-correct claims for the given subject address.
func NewClaims(
	address, tokenUse string,
	isAdmin bool,
	profileID string,
	ttl time.Duration,
	issuer string,
	audience []string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   address,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		TokenUse:  tokenUse,
		IsAdmin:   isAdmin,
		ProfileID: profileID,
	}
}

// Address returns the wallet address the token was minted for.
func (c *Claims) Address() string { return c.Subject }

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
