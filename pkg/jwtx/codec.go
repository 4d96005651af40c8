package jwtx

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway is the clock-skew tolerance applied to exp/nbf/iat checks.
const DefaultLeeway = 30 * time.Second

// VerifyOptions captures the expectations a Codec enforces after signature
// verification.
type VerifyOptions struct {
	// Issuer the token must have (claims.iss). Empty means "don't care".
	Issuer string

	// Audience values of which the token must contain at least one.
	// Empty means "don't care".
	Audience []string

	// Leeway allows small clock skew when validating exp/nbf/iat.
	// Zero means DefaultLeeway.
	Leeway time.Duration
}

func (o VerifyOptions) leeway() time.Duration {
	if o.Leeway <= 0 {
		return DefaultLeeway
	}
	return o.Leeway
}

// Codec signs and verifies HS256 tokens against a single secret. Rotation
// across secrets is layered on top by Keyring; the codec itself is
// stateless.
type Codec struct {
	secret []byte
	opts   VerifyOptions
}

func NewCodec(secret []byte, opts VerifyOptions) *Codec {
	return &Codec{secret: secret, opts: opts}
}

// Sign produces a compact HS256 JWT for the given claims.
func (c *Codec) Sign(claims Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(c.secret)
}

// Verify parses and verifies a compact token. Only HS256 is accepted; any
// other algorithm (including "none") fails with ErrAlgMismatch before the
// signature is checked. Claims checks run after signature verification:
// exp/nbf with leeway, issuer, audience, non-empty subject, and an
// issued-at that is not in the future beyond leeway.
func (c *Codec) Verify(raw string) (Claims, error) {
	var claims Claims

	parser := jwt.NewParser(
		jwt.WithLeeway(c.opts.leeway()),
	)

	// The method check lives in the keyfunc rather than WithValidMethods:
	// the parser reports a disallowed method as a signature error, and
	// "wrong algorithm" and "wrong secret" must stay distinguishable.
	_, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrAlgMismatch
		}
		return c.secret, nil
	})
	if err != nil {
		// NewClaims pins nbf to iat, so the library reports a future-dated
		// token as not-yet-valid before the iat check below could run.
		if errors.Is(err, jwt.ErrTokenNotValidYet) && c.futureIssued(&claims) {
			return Claims{}, ErrFutureIssued
		}
		return Claims{}, mapParseError(err)
	}

	if err := c.validateClaims(&claims); err != nil {
		return Claims{}, err
	}

	return claims, nil
}

func (c *Codec) validateClaims(claims *Claims) error {
	if c.opts.Issuer != "" && claims.Issuer != c.opts.Issuer {
		return ErrIssuer
	}

	if len(c.opts.Audience) > 0 {
		ok := slices.ContainsFunc(c.opts.Audience, func(want string) bool {
			return slices.Contains(claims.Audience, want)
		})
		if !ok {
			return ErrAudience
		}
	}

	if claims.Subject == "" {
		return ErrMissingSubject
	}

	// Future-dated tokens are rejected regardless of signature validity.
	if c.futureIssued(claims) {
		return ErrFutureIssued
	}

	return nil
}

func (c *Codec) futureIssued(claims *Claims) bool {
	return claims.IssuedAt != nil &&
		claims.IssuedAt.After(time.Now().Add(c.opts.leeway()))
}

// mapParseError flattens golang-jwt's joined errors into the package
// sentinels so callers never depend on the library's error types.
func mapParseError(err error) error {
	switch {
	// The keyfunc's method rejection travels inside the library's
	// unverifiable-token wrapper; unwrap it first.
	case errors.Is(err, ErrAlgMismatch):
		return ErrAlgMismatch
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return ErrInvalidSig
	}
}
