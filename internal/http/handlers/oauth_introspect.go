package handlers

import (
	"net/http"

	httpx "github.com/dropDatabas3/doorman/internal/http"
	"github.com/dropDatabas3/doorman/internal/oauth"
)

// Introspect implementa POST /oauth/introspect (RFC 7662). Solo clients
// autenticados; todo lo que no sea un token activo es {active:false}.
func Introspect(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpx.WriteError(w, http.StatusMethodNotAllowed, "invalid_request", "POST only", 1405)
			return
		}
		if err := r.ParseForm(); err != nil {
			writeOAuthError(w, http.StatusBadRequest, oauth.ErrInvalidRequest, "malformed form body")
			return
		}
		if _, err := clientFromRequest(d, r); err != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
			writeOAuthError(w, http.StatusUnauthorized, oauth.ErrInvalidClient, "client authentication failed")
			return
		}
		httpx.NoStore(w)
		httpx.WriteJSON(w, http.StatusOK, d.Svc.Introspect(r.Context(), r.PostFormValue("token")))
	})
}
