package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes agrupa los handlers ya construidos; el wiring vive en cmd/doorman
// para que este paquete no dependa de handlers (y handlers sí de este).
type Routes struct {
	Authorize  http.Handler
	Consent    http.Handler
	Token      http.Handler
	Revoke     http.Handler
	Introspect http.Handler
	UserInfo   http.Handler
	Discovery  http.Handler
	JWKS       http.Handler

	AdminRateLimitReset http.Handler
	AdminRateLimitStats http.Handler

	Healthz http.Handler
	Readyz  http.Handler

	// Admission es la cadena rate -> auth -> quota. Aplica a todo menos
	// health y metrics.
	Admission func(http.Handler) http.Handler

	CORSAllowedOrigins []string
}

// NewRouter arma el router completo con el middleware ambiente.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()

	// fuera de admisión: liveness, readiness y scraping
	r.Method(http.MethodGet, "/healthz", rt.Healthz)
	r.Method(http.MethodGet, "/readyz", rt.Readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(g chi.Router) {
		if rt.Admission != nil {
			g.Use(rt.Admission)
		}

		g.Method(http.MethodGet, "/oauth/authorize", rt.Authorize)
		g.Method(http.MethodPost, "/oauth/consent", rt.Consent)
		g.Method(http.MethodPost, "/oauth/token", rt.Token)
		g.Method(http.MethodPost, "/oauth/revoke", rt.Revoke)
		g.Method(http.MethodPost, "/oauth/introspect", rt.Introspect)
		g.Method(http.MethodGet, "/oauth/userinfo", rt.UserInfo)
		g.Method(http.MethodPost, "/oauth/userinfo", rt.UserInfo)

		g.Method(http.MethodGet, "/.well-known/openid_configuration", rt.Discovery)
		g.Method(http.MethodGet, "/.well-known/openid-configuration", rt.Discovery)
		g.Method(http.MethodGet, "/.well-known/jwks.json", rt.JWKS)

		g.Method(http.MethodPost, "/admin/rate-limit/reset/{id}", rt.AdminRateLimitReset)
		g.Method(http.MethodGet, "/admin/rate-limit/stats", rt.AdminRateLimitStats)
	})

	// cadena ambiente, de afuera hacia adentro
	var h http.Handler = r
	h = WithLogging(h)
	h = WithSecurityHeaders(h)
	h = WithCORS(h, rt.CORSAllowedOrigins)
	h = WithRecover(h)
	h = WithRequestID(h)
	return h
}
