package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/doorman/internal/admission"
	httpx "github.com/dropDatabas3/doorman/internal/http"
	"github.com/dropDatabas3/doorman/internal/observability/logger"
)

// requireAdmin valida que el request traiga un principal con el scope
// administrativo. Sin bearer -> 401; sin scope -> 403.
func requireAdmin(d Deps, w http.ResponseWriter, r *http.Request) bool {
	pr := admission.FromRequest(r).Principal
	if pr == nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "admin endpoints require a bearer token", 1401)
		return false
	}
	if !pr.HasScope(d.AdminScope) {
		httpx.WriteError(w, http.StatusForbidden, "insufficient_scope", "scope "+d.AdminScope+" required", 1403)
		return false
	}
	return true
}

// AdminRateLimitReset implementa POST /admin/rate-limit/reset/{id}:
// borra los registros del identificador en TODAS las estrategias.
func AdminRateLimitReset(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(d, w, r) {
			return
		}
		id := chi.URLParam(r, "id")
		if id == "" {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "identifier is required", 1400)
			return
		}
		if err := d.Limiter.Reset(r.Context(), id); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "reset failed", 1500)
			return
		}
		logger.From(r.Context()).Info("rate limit reset", logger.Key(id))
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"reset": id})
	})
}

// AdminRateLimitStats implementa GET /admin/rate-limit/stats: registros
// vivos por estrategia.
func AdminRateLimitStats(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requireAdmin(d, w, r) {
			return
		}
		stats, err := d.Limiter.Stats(r.Context())
		if err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "stats unavailable", 1500)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"strategies": stats})
	})
}
