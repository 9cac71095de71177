package handlers

import (
	"net/http"
	"net/url"
	"strings"

	httpx "github.com/dropDatabas3/doorman/internal/http"
	"github.com/dropDatabas3/doorman/internal/oauth"
)

// Authorize implementa GET /oauth/authorize.
//
// La identidad del end-user llega resuelta por el edge en X-User-ID (el
// login vive fuera de este servicio). Sin usuario -> 302 al login con
// return_to. Con usuario y request válido -> crea el consent challenge
// y lo devuelve para que la UI de consent lo presente en /oauth/consent.
func Authorize(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httpx.WriteError(w, http.StatusMethodNotAllowed, "invalid_request", "GET only", 1405)
			return
		}
		q := r.URL.Query()

		userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if userID == "" {
			u, _ := url.Parse(d.LoginURL)
			if u == nil || d.LoginURL == "" {
				writeOAuthError(w, http.StatusUnauthorized, oauth.ErrInvalidRequest, "no authenticated user")
				return
			}
			qq := u.Query()
			qq.Set("return_to", r.URL.String())
			u.RawQuery = qq.Encode()
			http.Redirect(w, r, u.String(), http.StatusFound)
			return
		}

		if rt := q.Get("response_type"); rt != "code" {
			// si el redirect es válido devolvemos el error ahí, como manda el RFC
			redirectOrError(w, r, d, q, "unsupported_response_type", "only response_type=code is supported")
			return
		}

		req := oauth.AuthorizeRequest{
			ClientID:        q.Get("client_id"),
			UserID:          userID,
			RedirectURI:     q.Get("redirect_uri"),
			Scopes:          oauth.SplitScopes(q.Get("scope")),
			CodeChallenge:   q.Get("code_challenge"),
			ChallengeMethod: q.Get("code_challenge_method"),
			Nonce:           q.Get("nonce"),
		}
		_, scopes, err := d.Svc.ValidateAuthorize(req)
		if err != nil {
			switch err {
			case oauth.ErrInvalidClient, oauth.ErrInvalidRequest:
				// client o redirect inválidos: NUNCA redirigimos
				writeOAuthError(w, http.StatusBadRequest, err, "invalid client_id or redirect_uri")
			default:
				redirectOrError(w, r, d, q, oauth.Code(err), "")
			}
			return
		}

		id, err := d.Svc.CreateConsent(oauth.ConsentChallenge{
			ClientID:        req.ClientID,
			UserID:          userID,
			RedirectURI:     req.RedirectURI,
			Scopes:          scopes,
			CodeChallenge:   req.CodeChallenge,
			ChallengeMethod: req.ChallengeMethod,
			Nonce:           req.Nonce,
			State:           q.Get("state"),
		})
		if err != nil {
			writeOAuthError(w, http.StatusInternalServerError, oauth.ErrServerError, "could not create consent challenge")
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"consent_challenge": id,
			"client_id":         req.ClientID,
			"scope":             oauth.JoinScopes(scopes),
			"redirect_uri":      req.RedirectURI,
		})
	})
}

// redirectOrError: si el par client/redirect es legítimo, el error viaja
// por query al redirect_uri (con el state); si no, respuesta directa.
func redirectOrError(w http.ResponseWriter, r *http.Request, d Deps, q url.Values, code, desc string) {
	c, ok := d.Svc.Registry().Get(q.Get("client_id"))
	ru := q.Get("redirect_uri")
	if !ok || !c.AllowsRedirect(ru) {
		httpx.WriteError(w, http.StatusBadRequest, code, desc, 1400)
		return
	}
	u, err := url.Parse(ru)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, code, desc, 1400)
		return
	}
	qq := u.Query()
	qq.Set("error", code)
	if desc != "" {
		qq.Set("error_description", desc)
	}
	if st := q.Get("state"); st != "" {
		qq.Set("state", st)
	}
	u.RawQuery = qq.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}
