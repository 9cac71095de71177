package handlers

import (
	"net/http"

	httpx "github.com/dropDatabas3/doorman/internal/http"
	"github.com/dropDatabas3/doorman/internal/oauth"
)

// Revoke implementa POST /oauth/revoke (RFC 7009). Para un client
// autenticado SIEMPRE responde 200, exista el token o no: no filtramos
// qué tokens existen.
func Revoke(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpx.WriteError(w, http.StatusMethodNotAllowed, "invalid_request", "POST only", 1405)
			return
		}
		if err := r.ParseForm(); err != nil {
			writeOAuthError(w, http.StatusBadRequest, oauth.ErrInvalidRequest, "malformed form body")
			return
		}
		client, err := clientFromRequest(d, r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
			writeOAuthError(w, http.StatusUnauthorized, oauth.ErrInvalidClient, "client authentication failed")
			return
		}
		tok := r.PostFormValue("token")
		if tok == "" {
			writeOAuthError(w, http.StatusBadRequest, oauth.ErrInvalidRequest, "token is required")
			return
		}
		if err := d.Svc.Revoke(r.Context(), client, tok); err != nil {
			writeOAuthError(w, http.StatusInternalServerError, oauth.ErrServerError, "")
			return
		}
		httpx.NoStore(w)
		w.WriteHeader(http.StatusOK)
	})
}
