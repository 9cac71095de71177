package handlers

import (
	"net/http"
	"net/url"

	httpx "github.com/dropDatabas3/doorman/internal/http"
	"github.com/dropDatabas3/doorman/internal/oauth"
)

// Consent implementa POST /oauth/consent: la decisión del usuario sobre
// un consent challenge emitido por /oauth/authorize.
//
// approve -> 302 redirect_uri?code=...&state=...
// deny    -> 302 redirect_uri?error=access_denied&state=...
func Consent(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpx.WriteError(w, http.StatusMethodNotAllowed, "invalid_request", "POST only", 1405)
			return
		}
		if err := r.ParseForm(); err != nil {
			writeOAuthError(w, http.StatusBadRequest, oauth.ErrInvalidRequest, "malformed form body")
			return
		}
		ch, err := d.Svc.ConsumeConsent(r.PostFormValue("consent_challenge"))
		if err != nil {
			writeOAuthError(w, http.StatusBadRequest, oauth.ErrInvalidRequest, "unknown or expired consent_challenge")
			return
		}

		u, err := url.Parse(ch.RedirectURI)
		if err != nil {
			writeOAuthError(w, http.StatusBadRequest, oauth.ErrInvalidRequest, "bad redirect_uri in challenge")
			return
		}
		q := u.Query()
		if ch.State != "" {
			q.Set("state", ch.State)
		}

		if r.PostFormValue("decision") != "approve" {
			q.Set("error", "access_denied")
			u.RawQuery = q.Encode()
			http.Redirect(w, r, u.String(), http.StatusFound)
			return
		}

		code, err := d.Svc.IssueAuthorizationCode(r.Context(), oauth.AuthorizeRequest{
			ClientID:        ch.ClientID,
			UserID:          ch.UserID,
			RedirectURI:     ch.RedirectURI,
			Scopes:          ch.Scopes,
			CodeChallenge:   ch.CodeChallenge,
			ChallengeMethod: ch.ChallengeMethod,
			Nonce:           ch.Nonce,
		})
		if err != nil {
			q.Set("error", oauth.Code(err))
			u.RawQuery = q.Encode()
			http.Redirect(w, r, u.String(), http.StatusFound)
			return
		}
		q.Set("code", code)
		u.RawQuery = q.Encode()
		http.Redirect(w, r, u.String(), http.StatusFound)
	})
}
