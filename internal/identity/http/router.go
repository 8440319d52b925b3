package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/harborcrm/identity/internal/identity/domain"
	"github.com/harborcrm/identity/internal/identity/obs"
	"github.com/harborcrm/identity/internal/identity/service"
	"github.com/harborcrm/identity/internal/identity/store"
	"github.com/harborcrm/identity/pkg/httpx"
	"github.com/harborcrm/identity/pkg/jwtx"
	"github.com/harborcrm/identity/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier jwtx.Verifier
	logger   *slog.Logger
	metrics  *obs.Metrics
	store    store.Store

	AuthService      *service.AuthService
	WhitelistService *service.WhitelistService
}

func NewRouter(
	verifier jwtx.Verifier,
	st store.Store,
	logger *slog.Logger,
	metrics *obs.Metrics,
) *Router {
	r := &Router{
		Mux:      http.NewServeMux(),
		verifier: verifier,
		store:    st,
		logger:   logger,
		metrics:  metrics,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerVerification()
	r.registerOAuth()
	r.registerWhitelist()
	r.registerMe()
	r.registerSystem()
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// handle registers a route with per-route middleware plus metrics
// instrumentation under the given route label.
func (r *Router) handle(pattern, label string, h http.Handler, mws ...httpx.Middleware) {
	r.Mux.Handle(pattern, r.instrument(label, httpx.Chain(h, mws...)))
}

func (r *Router) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, req)
		r.metrics.HTTPRequest(route, statusClass(sw.status), time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func (r *Router) registerAuth() {
	h := &AuthHandler{AuthService: r.AuthService}

	// Registration and login take the brunt of credential stuffing; both get
	// the strict bucket.
	r.handle("POST /v1/auth/register", "auth_register",
		http.HandlerFunc(h.Register),
		httpx.RateLimitByIP(httpx.StrictLimit),
	)
	r.handle("POST /v1/auth/login", "auth_login",
		http.HandlerFunc(h.Login),
		httpx.RateLimitByIP(httpx.StrictLimit),
	)
	r.handle("POST /v1/auth/refresh", "auth_refresh",
		http.HandlerFunc(h.Refresh),
		httpx.RateLimitByIP(httpx.ModerateLimit),
	)
	r.handle("POST /v1/auth/logout", "auth_logout",
		http.HandlerFunc(h.Logout),
		httpx.RateLimitByIP(httpx.ModerateLimit),
	)
	r.handle("POST /v1/auth/logout-all", "auth_logout_all",
		http.HandlerFunc(h.LogoutAll),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	)
}

func (r *Router) registerVerification() {
	h := &VerificationHandler{AuthService: r.AuthService}

	r.handle("POST /v1/auth/verify/request", "verify_request",
		http.HandlerFunc(h.RequestVerification),
		httpx.RateLimitByIP(httpx.StrictLimit),
	)
	r.handle("POST /v1/auth/verify/confirm", "verify_confirm",
		http.HandlerFunc(h.ConfirmVerification),
		httpx.RateLimitByIP(httpx.StrictLimit),
	)
	r.handle("POST /v1/auth/password-reset/request", "reset_request",
		http.HandlerFunc(h.RequestPasswordReset),
		httpx.RateLimitByIP(httpx.StrictLimit),
	)
	r.handle("POST /v1/auth/password-reset/confirm", "reset_confirm",
		http.HandlerFunc(h.ConfirmPasswordReset),
		httpx.RateLimitByIP(httpx.StrictLimit),
	)
}

func (r *Router) registerOAuth() {
	h := &OAuthHandler{AuthService: r.AuthService}

	r.handle("GET /v1/oauth/{provider}/initiate", "oauth_initiate",
		http.HandlerFunc(h.Initiate),
		httpx.RateLimitByIP(httpx.ModerateLimit),
	)
	r.handle("GET /v1/oauth/{provider}/callback", "oauth_callback",
		http.HandlerFunc(h.Callback),
		httpx.RateLimitByIP(httpx.ModerateLimit),
	)
}

func (r *Router) registerWhitelist() {
	h := &WhitelistHandler{WhitelistService: r.WhitelistService}

	manage := []httpx.Middleware{
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyPermission(domain.PermWhitelistManage),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	}

	r.handle("POST /v1/whitelist", "whitelist_create", http.HandlerFunc(h.Create), manage...)
	r.handle("GET /v1/whitelist", "whitelist_list", http.HandlerFunc(h.List), manage...)
	r.handle("GET /v1/whitelist/{id}", "whitelist_get", http.HandlerFunc(h.Get), manage...)
	r.handle("PUT /v1/whitelist/{id}", "whitelist_update", http.HandlerFunc(h.Update), manage...)
	r.handle("DELETE /v1/whitelist/{id}", "whitelist_revoke", http.HandlerFunc(h.Revoke), manage...)
}

func (r *Router) registerMe() {
	h := &MeHandler{AuthService: r.AuthService}

	r.handle("GET /v1/me", "me",
		http.HandlerFunc(h.Get),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByUser(httpx.LenientLimit),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))

	r.Mux.Handle("GET /readyz", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if err := r.store.Ping(req.Context()); err != nil {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))

	r.Mux.Handle("GET /metrics", r.metrics.Handler())
}
