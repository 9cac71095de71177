package handlers

import (
	"errors"
	"net/http"
	"strings"

	httpx "github.com/dropDatabas3/doorman/internal/http"
	"github.com/dropDatabas3/doorman/internal/oauth"
)

// UserInfo implementa GET/POST /oauth/userinfo (OIDC core §5.3).
// Claims filtrados por los scopes del access token presentado.
func UserInfo(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearer(r)
		if tok == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="userinfo"`)
			writeOAuthError(w, http.StatusUnauthorized, oauth.ErrInvalidToken, "missing bearer token")
			return
		}
		claims, err := d.Svc.UserInfo(r.Context(), tok)
		if err != nil {
			switch {
			case errors.Is(err, oauth.ErrInsufficientScope):
				w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
				writeOAuthError(w, http.StatusForbidden, err, "openid scope required")
			case errors.Is(err, oauth.ErrServerError):
				writeOAuthError(w, http.StatusServiceUnavailable, err, "token validation is temporarily unavailable")
			default:
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				writeOAuthError(w, http.StatusUnauthorized, oauth.ErrInvalidToken, "")
			}
			return
		}
		httpx.NoStore(w)
		httpx.WriteJSON(w, http.StatusOK, claims)
	})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const p = "Bearer "
	if len(h) <= len(p) || !strings.EqualFold(h[:len(p)], p) {
		return ""
	}
	return strings.TrimSpace(h[len(p):])
}
