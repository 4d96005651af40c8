package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skillchain/registry/internal/registry/service"
	"github.com/skillchain/registry/internal/registry/store"
	"github.com/skillchain/registry/pkg/httpx"
	"github.com/skillchain/registry/pkg/jwtx"
	"github.com/skillchain/registry/pkg/metricsx"
	"github.com/skillchain/registry/pkg/slogx"

	_ "github.com/skillchain/registry/api/registry" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.Keyring
	sink         *metricsx.Sink
	csrf         *httpx.CsrfGuard
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store
	rdb   redis.Cmdable

	generalLimiter *httpx.RateLimiter
	authLimiter    *httpx.RateLimiter
	adminLimiter   *httpx.RateLimiter

	TokenService    *service.TokenService
	AdminKeyService *service.AdminKeyService
}

func NewRouter(
	keys *jwtx.Keyring,
	sink *metricsx.Sink,
	csrf *httpx.CsrfGuard,
	buildVersion string,
	st store.Store,
	rdb redis.Cmdable,
	corsOrigins []string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		sink:         sink,
		csrf:         csrf,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		rdb:          rdb,
		logger:       logger,

		generalLimiter: httpx.NewRateLimiter(rdb, "general", httpx.GeneralLimit, sink),
		authLimiter:    httpx.NewRateLimiter(rdb, "auth", httpx.AuthLimit, sink),
		adminLimiter:   httpx.NewRateLimiter(rdb, "admin", httpx.AdminLimit, sink),
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.CORS(corsOrigins),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerProfiles()
	r.registerAdminKeys()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			SkillChain Registry API
//	@version		0.1.0
//	@description	Profile and skill registry backend. Access tokens are HS256 JWTs
//	@description	with zero-downtime secret rotation; admin operations authenticate
//	@description	with prefixed API keys over the X-API-Key header.
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
//
//	@securityDefinitions.apikey	APIKeyAuth
//	@in							header
//	@name						X-API-Key
//	@description				Prefixed admin API key (sk_...).
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	// POST /login and /refresh share the strict auth class: both are
	// credential-guessing targets.
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(&LoginHandler{TokenService: r.TokenService},
			httpx.RateLimit(r.authLimiter, httpx.IPKeyExtractor),
		),
	)

	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(&RefreshHandler{TokenService: r.TokenService},
			httpx.RateLimit(r.authLimiter, httpx.IPKeyExtractor),
		),
	)

	r.Mux.Handle("GET /v1/auth/csrf",
		httpx.Chain(&CSRFHandler{Guard: r.csrf},
			httpx.RateLimit(r.generalLimiter, httpx.IPKeyExtractor),
		),
	)
}

func (r *Router) registerProfiles() {
	r.Mux.Handle("GET /v1/profiles/{address}",
		httpx.Chain(&ProfileHandler{},
			httpx.OptionalAuthn(r.keys, r.sink),
			httpx.RateLimit(r.generalLimiter,
				httpx.CompositeKeyExtractor(":", httpx.AddressKeyExtractor, httpx.IPKeyExtractor)),
		),
	)

	me := &MeHandler{}
	r.Mux.Handle("GET /v1/me",
		httpx.Chain(http.HandlerFunc(me.HandleGet),
			httpx.Authn(r.keys, r.sink),
			httpx.RateLimit(r.generalLimiter, httpx.AddressKeyExtractor),
		),
	)

	// Mutations under cookie-auth'd browsers need the CSRF pair.
	r.Mux.Handle("PUT /v1/me",
		httpx.Chain(http.HandlerFunc(me.HandlePut),
			httpx.Authn(r.keys, r.sink),
			r.csrf.Middleware(r.sink),
			httpx.RateLimit(r.generalLimiter, httpx.AddressKeyExtractor),
		),
	)
}

func (r *Router) registerAdminKeys() {
	h := &AdminKeysHandler{AdminKeys: r.AdminKeyService}

	// The limiter is outermost so unauthenticated key scans are metered
	// before any bcrypt work.
	gate := func(handler http.Handler, perm string, mutating bool) http.Handler {
		mws := []httpx.Middleware{
			httpx.RateLimit(r.adminLimiter, httpx.IPKeyExtractor),
			AdminKeyAuthn(r.AdminKeyService),
			RequirePermission(perm),
		}
		if mutating {
			mws = append(mws, r.csrf.Middleware(r.sink))
		}
		return httpx.Chain(handler, mws...)
	}

	r.Mux.Handle("GET /v1/admin/api-keys",
		gate(http.HandlerFunc(h.HandleList), "keys:read", false))
	r.Mux.Handle("POST /v1/admin/api-keys",
		gate(http.HandlerFunc(h.HandleMint), "keys:write", true))
	r.Mux.Handle("DELETE /v1/admin/api-keys/{id}",
		gate(http.HandlerFunc(h.HandleRevoke), "keys:write", true))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.rdb))
	r.Mux.Handle("GET /metrics", r.sink.Handler())
}
