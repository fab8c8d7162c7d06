package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/auth/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/service"
	"github.com/aussiebroadwan/gatekeeper/internal/auth/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"

	_ "github.com/aussiebroadwan/gatekeeper/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store              store.Store
	Auth               *service.AuthService
	Credentials        *service.CredentialService
	BootstrapService   *service.BootstrapService
	KeyRotationService *service.KeyRotationService
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerLogin()
	r.registerTwoFactor()
	r.registerToken()
	r.registerAccount()
	r.registerAdmin()
	r.registerKeyRotation()
	r.registerSystem()
	r.registerBootstrap()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Gatekeeper Authentication Service API
//	@version		0.1.0
//	@description	Multi-tenant authentication: password login, TOTP second factor, JWT access tokens and rotating refresh tokens.
//	@description
//	@description				Access tokens are signed with EdDSA or ES256 and can be verified using the JWKS endpoint.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/gatekeeper
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
//	@description				Access or pending token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// authenticated guards a route for fully authenticated access tokens.
func (r *Router) authenticated(h http.Handler, mws ...httpx.Middleware) http.Handler {
	chain := append([]httpx.Middleware{
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireTokenType(jwtx.TokenTypeAuthenticated),
	}, mws...)
	return httpx.Chain(h, chain...)
}

func (r *Router) registerLogin() {
	h := &LoginHandler{Auth: r.Auth}

	// Rate limited by IP + email to slow down credential stuffing against one account
	r.Mux.Handle("POST /v1/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "email"),
		),
	)
	r.Mux.Handle("POST /v1/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerTwoFactor() {
	h := &TwoFactorHandler{Auth: r.Auth}

	// Enrollment may run mid-login with a pending token
	enrollment := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireTokenType(jwtx.TokenTypeAuthenticated, jwtx.TokenTypePending),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}
	r.Mux.Handle("POST /v1/2fa/generate", enrollment(h.HandleGenerate))
	r.Mux.Handle("POST /v1/2fa/confirm", enrollment(h.HandleConfirm))

	// Verify validates the pending token itself so ticket errors keep their kinds
	r.Mux.Handle("POST /v1/2fa/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerify),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /v1/2fa/disable",
		r.authenticated(http.HandlerFunc(h.HandleDisable),
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerToken() {
	h := &TokenHandler{Auth: r.Auth}

	r.Mux.Handle("POST /v1/token/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("POST /v1/token/revoke",
		httpx.Chain(http.HandlerFunc(h.HandleRevoke),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerAccount() {
	r.Mux.Handle("GET /v1/userinfo",
		r.authenticated(&UserInfoHandler{Auth: r.Auth},
			httpx.RateLimitByUser(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("POST /v1/password",
		r.authenticated(&PasswordHandler{Credentials: r.Credentials},
			httpx.RateLimitByUser(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerAdmin() {
	h := &AdminUsersHandler{Credentials: r.Credentials}

	admin := func(fn http.HandlerFunc, perm domain.Permission) http.Handler {
		return r.authenticated(fn,
			httpx.RequirePermission(domain.HasPermission, string(perm)),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}
	r.Mux.Handle("GET /v1/admin/users", admin(h.HandleListUsers, domain.PermUsersRead))
	r.Mux.Handle("GET /v1/admin/users/{id}", admin(h.HandleGetUser, domain.PermUsersRead))
	r.Mux.Handle("PUT /v1/admin/users/{id}/roles", admin(h.HandleSetRoles, domain.PermUsersWrite))
	r.Mux.Handle("POST /v1/admin/users/{id}/deactivate", admin(h.HandleDeactivate, domain.PermUsersWrite))
	r.Mux.Handle("POST /v1/admin/users/{id}/activate", admin(h.HandleActivate, domain.PermUsersWrite))
}

func (r *Router) registerKeyRotation() {
	// Available in both ephemeral and persistent key modes
	h := &KeyRotationHandler{KeyRotationService: r.KeyRotationService}

	keys := func(fn http.HandlerFunc) http.Handler {
		return r.authenticated(fn,
			httpx.RequirePermission(domain.HasPermission, string(domain.PermKeysManage)),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}
	r.Mux.Handle("POST /v1/admin/keys/rotate", keys(h.HandleRotate))
	r.Mux.Handle("GET /v1/admin/keys", keys(h.HandleListKeys))
	r.Mux.Handle("POST /v1/admin/keys/{kid}/retire", keys(h.HandleRetireKey))
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerBootstrap() {
	// One-time setup endpoint
	r.Mux.Handle("POST /v1/bootstrap",
		httpx.Chain(&BootstrapHandler{BootstrapService: r.BootstrapService},
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}
