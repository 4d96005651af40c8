package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/skillchain/registry/pkg/jwtx"
	"github.com/skillchain/registry/pkg/metricsx"
	"github.com/skillchain/registry/pkg/slogx"
)

// Authn enforces a valid bearer access token. Missing or expired credentials
// get 401, structurally valid but untrusted ones get 403. Verified claims
// are attached to the request context.
func Authn(keys *jwtx.Keyring, sink *metricsx.Sink) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := bearerToken(r)
			if !ok {
				sink.AuthFailure("missing", r.URL.Path)
				writeBearerError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			claims, grace, err := keys.VerifyUse(jwtx.ClassAccess, jwtx.UseAccess, raw)
			if err != nil {
				reason := jwtx.Reason(err)
				sink.AuthFailure(reason, r.URL.Path)
				sink.JWTError(reason)
				log.Warn("jwt verify failed", "reason", reason, "path", r.URL.Path)

				code := http.StatusForbidden
				if errors.Is(err, jwtx.ErrExpired) {
					code = http.StatusUnauthorized
				}
				writeBearerError(w, code, "token verification failed")
				return
			}

			if grace {
				// Trust is unchanged; this only tells operators the old
				// secret is still in circulation.
				sink.RotationGrace()
				log.Info("token accepted via previous signing secret", "sub", claims.Subject)
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(ctx, claims)))
		})
	}
}

// OptionalAuthn attaches an identity when a valid bearer token is present
// and otherwise lets the request continue anonymously. Verification
// failures are swallowed here; any route that needs an identity must also
// sit behind Authn or an equivalent strict gate.
func OptionalAuthn(keys *jwtx.Keyring, sink *metricsx.Sink) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			claims, grace, err := keys.VerifyUse(jwtx.ClassAccess, jwtx.UseAccess, raw)
			if err != nil {
				// Count it so a flood of bad tokens is still visible.
				sink.JWTError(jwtx.Reason(err))
				slogx.FromContext(ctx).Debug("optional auth: ignoring invalid token",
					"reason", jwtx.Reason(err))
				next.ServeHTTP(w, r)
				return
			}

			if grace {
				sink.RotationGrace()
			}

			next.ServeHTTP(w, r.WithContext(ContextWithClaims(ctx, claims)))
		})
	}
}

// RequireAdminClaim gates a route on the admin flag of an already-verified
// token. Must sit inside Authn.
func RequireAdminClaim(sink *metricsx.Sink) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok || !claims.IsAdmin {
				sink.AuthFailure("not_admin", r.URL.Path)
				WriteError(w, http.StatusForbidden, "forbidden", "admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))
	return raw, raw != ""
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, code int, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, code, "invalid_token", desc)
}
