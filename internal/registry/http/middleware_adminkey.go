package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/skillchain/registry/internal/registry/domain"
	"github.com/skillchain/registry/internal/registry/service"
	"github.com/skillchain/registry/pkg/httpx"
)

// APIKeyHeader carries the admin credential.
const APIKeyHeader = "X-API-Key"

type adminCtxKey struct{}

func contextWithAdmin(ctx context.Context, id domain.AdminIdentity) context.Context {
	return context.WithValue(ctx, adminCtxKey{}, id)
}

// AdminFromContext returns the admin identity attached by AdminKeyAuthn.
func AdminFromContext(ctx context.Context) (domain.AdminIdentity, bool) {
	id, ok := ctx.Value(adminCtxKey{}).(domain.AdminIdentity)
	return id, ok
}

// AdminKeyAuthn gates a route on a valid X-API-Key header. Missing keys get
// 401; presented but unaccepted keys get 403. Store outages surface as 503
// rather than quietly denying every admin.
func AdminKeyAuthn(svc *service.AdminKeyService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := svc.Authenticate(r.Context(), r.Header.Get(APIKeyHeader))
			if err != nil {
				switch {
				case errors.Is(err, service.ErrKeyMissing):
					httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "api key required")
				case errors.Is(err, service.ErrKeyMalformed), errors.Is(err, service.ErrKeyInvalid):
					httpx.WriteError(w, http.StatusForbidden, "forbidden", "api key not accepted")
				default:
					httpx.WriteError(w, http.StatusServiceUnavailable, "unavailable", "credential check unavailable")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(contextWithAdmin(r.Context(), id)))
		})
	}
}

// RequirePermission gates a route on a named key permission. Must sit
// inside AdminKeyAuthn.
func RequirePermission(perm string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := AdminFromContext(r.Context())
			if !ok || !id.Can(perm) {
				httpx.WriteError(w, http.StatusForbidden, "forbidden", "insufficient key permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
