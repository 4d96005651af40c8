package httpx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/skillchain/registry/pkg/cryptox"
	"github.com/skillchain/registry/pkg/metricsx"
	"github.com/skillchain/registry/pkg/slogx"
)

// Double-submit CSRF: the secret lives in an HttpOnly cookie the browser
// sends automatically; the token is derived from the secret and exposed to
// client script, which must echo it back in a header or form field on every
// state-changing request. A token is salt.HMAC-SHA256(secret, salt), so any
// token ever derived from the stored secret stays valid until the secret
// rotates - concurrent tabs don't invalidate each other.

const (
	// CSRFCookieName holds the per-session secret, HttpOnly.
	CSRFCookieName = "_csrf"
	// CSRFHeaderName carries the derived token on state-changing requests.
	CSRFHeaderName = "X-CSRF-Token"
	// CSRFFieldName is the form-body alternative to the header.
	CSRFFieldName = "_csrf"

	// DefaultCSRFCookieTTL matches the session window.
	DefaultCSRFCookieTTL = 24 * time.Hour
)

var (
	ErrCSRFSecretMissing = errors.New("httpx: csrf secret cookie missing")
	ErrCSRFTokenMissing  = errors.New("httpx: csrf token missing")
	ErrCSRFMismatch      = errors.New("httpx: csrf token mismatch")
)

// CsrfGuard issues and validates double-submit secret/token pairs.
type CsrfGuard struct {
	// CookieTTL bounds the secret cookie lifetime. Zero selects
	// DefaultCSRFCookieTTL.
	CookieTTL time.Duration

	// SecureCookies should be true everywhere except local dev over http.
	SecureCookies bool
}

// Issue returns the secret/token pair for a session. An existing secret is
// reused so tokens held by other tabs stay valid; pass "" to mint a fresh
// secret.
func (g *CsrfGuard) Issue(existingSecret string) (secret, token string, err error) {
	secret = existingSecret
	if secret == "" {
		secret, err = cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return "", "", err
		}
	}

	salt, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", "", err
	}

	return secret, salt + "." + deriveToken(secret, salt), nil
}

// Validate recomputes whether token could have been derived from secret.
// Fails closed on any absent or malformed input.
func (g *CsrfGuard) Validate(secret, token string) error {
	if secret == "" {
		return ErrCSRFSecretMissing
	}
	if token == "" {
		return ErrCSRFTokenMissing
	}

	salt, mac, ok := strings.Cut(token, ".")
	if !ok || salt == "" || mac == "" {
		return ErrCSRFMismatch
	}

	if !cryptox.ConstantTimeEquals(mac, deriveToken(secret, salt)) {
		return ErrCSRFMismatch
	}

	return nil
}

// SetSecretCookie writes the HttpOnly secret cookie. SameSite=Strict keeps
// the cookie off cross-site requests entirely.
func (g *CsrfGuard) SetSecretCookie(w http.ResponseWriter, secret string) {
	ttl := g.CookieTTL
	if ttl <= 0 {
		ttl = DefaultCSRFCookieTTL
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    secret,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   g.SecureCookies,
		SameSite: http.SameSiteStrictMode,
	})
}

// SecretFromRequest reads the secret cookie; "" when absent. The secret is
// only ever read from the cookie, never from headers or the body.
func (g *CsrfGuard) SecretFromRequest(r *http.Request) string {
	c, err := r.Cookie(CSRFCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// TokenFromRequest reads the submitted token from the header or, failing
// that, the form field.
func (g *CsrfGuard) TokenFromRequest(r *http.Request) string {
	if tok := r.Header.Get(CSRFHeaderName); tok != "" {
		return tok
	}
	if err := r.ParseForm(); err == nil {
		return r.PostFormValue(CSRFFieldName)
	}
	return ""
}

// Middleware validates double-submit tokens on unsafe methods. Safe methods
// (GET/HEAD/OPTIONS) bypass validation entirely.
func (g *CsrfGuard) Middleware(sink *metricsx.Sink) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			err := g.Validate(g.SecretFromRequest(r), g.TokenFromRequest(r))
			if err != nil {
				reason := csrfReason(err)
				sink.CSRFFailure(reason)
				slogx.FromContext(r.Context()).Warn("csrf validation failed",
					"reason", reason,
					"method", r.Method,
					"path", r.URL.Path,
				)
				WriteError(w, http.StatusForbidden, "csrf_failed", "CSRF validation failed")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func csrfReason(err error) string {
	switch {
	case errors.Is(err, ErrCSRFSecretMissing):
		return "secret_missing"
	case errors.Is(err, ErrCSRFTokenMissing):
		return "token_missing"
	default:
		return "mismatch"
	}
}

func deriveToken(secret, salt string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(salt))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
