package jwtx

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrAudience    = errors.New("jwtx: audience mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")

	// ErrInvalidClaim covers structurally valid tokens whose claims fail the
	// registry's checks. The wrapped variants below keep the reasons distinct
	// for logs and metrics while errors.Is(err, ErrInvalidClaim) still holds.
	ErrInvalidClaim = errors.New("jwtx: invalid claims")

	ErrMissingSubject = fmt.Errorf("%w: missing subject", ErrInvalidClaim)
	ErrFutureIssued   = fmt.Errorf("%w: future-dated", ErrInvalidClaim)
	ErrWrongTokenUse  = fmt.Errorf("%w: wrong token use", ErrInvalidClaim)
)

// Reason maps a verification error to a short stable label for metrics
// dimensions. Unknown errors collapse to "invalid".
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrAlgMismatch):
		return "alg_mismatch"
	case errors.Is(err, ErrInvalidSig):
		return "bad_signature"
	case errors.Is(err, ErrIssuer):
		return "issuer"
	case errors.Is(err, ErrAudience):
		return "audience"
	case errors.Is(err, ErrNotYetValid):
		return "not_yet_valid"
	case errors.Is(err, ErrMissingSubject):
		return "missing_subject"
	case errors.Is(err, ErrFutureIssued):
		return "future_dated"
	case errors.Is(err, ErrWrongTokenUse):
		return "wrong_token_use"
	case errors.Is(err, ErrInvalidClaim):
		return "invalid_claims"
	default:
		return "invalid"
	}
}
