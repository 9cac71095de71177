// Package handlers implementa los endpoints OAuth2/OIDC y los de
// administración. Cada handler recibe sus dependencias por Deps; el
// wiring vive en cmd/doorman.
package handlers

import (
	"net/http"
	"net/url"

	httpx "github.com/dropDatabas3/doorman/internal/http"
	"github.com/dropDatabas3/doorman/internal/jwt"
	"github.com/dropDatabas3/doorman/internal/oauth"
	"github.com/dropDatabas3/doorman/internal/rate"
	"github.com/dropDatabas3/doorman/internal/store"
)

type Deps struct {
	Svc     *oauth.Service
	Keys    *jwt.KeySet
	Limiter *rate.Limiter
	Store   store.Store

	Issuer   string
	LoginURL string
	// AdminScope habilita los endpoints /admin/*.
	AdminScope string
}

// clientFromRequest autentica al client del request: Basic auth primero,
// credenciales en el form como fallback (RFC 6749 §2.3.1).
func clientFromRequest(d Deps, r *http.Request) (*oauth.Client, error) {
	id, secret, ok := r.BasicAuth()
	if ok {
		// los valores van form-urlencoded dentro del Basic
		if u, err := url.QueryUnescape(id); err == nil {
			id = u
		}
		if u, err := url.QueryUnescape(secret); err == nil {
			secret = u
		}
		return d.Svc.Registry().Validate(id, secret)
	}
	return d.Svc.Registry().Validate(r.PostFormValue("client_id"), r.PostFormValue("client_secret"))
}

func writeOAuthError(w http.ResponseWriter, status int, err error, desc string) {
	httpx.WriteError(w, status, oauth.Code(err), desc, status)
}
