package jwtx

import (
	"errors"
)

// TokenClass selects which signing secret pair a token belongs to.
type TokenClass string

const (
	ClassAccess  TokenClass = "access"
	ClassRefresh TokenClass = "refresh"
)

// ErrNoCurrentSecret reports a keyring constructed without a current secret
// for one of the classes. This is a deployment error and fatal at startup.
var ErrNoCurrentSecret = errors.New("jwtx: current signing secret is required")

// SecretPair holds the current signing secret and, during a rotation grace
// window, the previous one. Rotation is a redeploy with new values, never a
// runtime mutation.
type SecretPair struct {
	Current  []byte
	Previous []byte // nil outside a rotation window
}

// Keyring verifies tokens against the current secret for a class and falls
// back to the previous secret while one is configured. Signing always uses
// the current secret.
type Keyring struct {
	classes map[TokenClass]classCodecs
}

type classCodecs struct {
	current  *Codec
	previous *Codec // nil when no previous secret is configured
}

// NewKeyring builds a keyring from per-class secret pairs. Every class must
// have a current secret.
func NewKeyring(pairs map[TokenClass]SecretPair, opts VerifyOptions) (*Keyring, error) {
	classes := make(map[TokenClass]classCodecs, len(pairs))
	for class, pair := range pairs {
		if len(pair.Current) == 0 {
			return nil, ErrNoCurrentSecret
		}

		cc := classCodecs{current: NewCodec(pair.Current, opts)}
		if len(pair.Previous) > 0 {
			cc.previous = NewCodec(pair.Previous, opts)
		}
		classes[class] = cc
	}

	return &Keyring{classes: classes}, nil
}

// Sign produces a token for the class using the current secret, regardless
// of any configured previous secret.
func (k *Keyring) Sign(class TokenClass, claims Claims) (string, error) {
	cc, ok := k.classes[class]
	if !ok {
		return "", ErrNoCurrentSecret
	}
	return cc.current.Sign(claims)
}

// Verify checks the token against the current secret and, on any failure,
// against the previous secret if one is configured. The returned grace flag
// reports that the previous secret matched; it exists for observability
// only and never lowers the trust of the claims.
//
// When both attempts fail the error is always the current-secret error, so
// callers cannot learn which secret came closer to matching.
func (k *Keyring) Verify(class TokenClass, raw string) (Claims, bool, error) {
	cc, ok := k.classes[class]
	if !ok {
		return Claims{}, false, ErrNoCurrentSecret
	}

	claims, currentErr := cc.current.Verify(raw)
	if currentErr == nil {
		return claims, false, nil
	}

	if cc.previous != nil {
		if claims, err := cc.previous.Verify(raw); err == nil {
			return claims, true, nil
		}
	}

	return Claims{}, false, currentErr
}

// VerifyUse is Verify plus a token_use claim check, rejecting tokens of the
// wrong class that happen to share a secret.
func (k *Keyring) VerifyUse(class TokenClass, use string, raw string) (Claims, bool, error) {
	claims, grace, err := k.Verify(class, raw)
	if err != nil {
		return Claims{}, false, err
	}

	if claims.TokenUse != use {
		return Claims{}, false, ErrWrongTokenUse
	}

	return claims, grace, nil
}
