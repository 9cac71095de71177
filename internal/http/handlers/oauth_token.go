package handlers

import (
	"errors"
	"net/http"

	httpx "github.com/dropDatabas3/doorman/internal/http"
	"github.com/dropDatabas3/doorman/internal/oauth"
	"github.com/dropDatabas3/doorman/internal/observability/logger"
	"github.com/dropDatabas3/doorman/internal/observability/metrics"
)

// Token implementa POST /oauth/token (RFC 6749 §3.2).
// Multiplexa por grant_type: authorization_code y refresh_token.
func Token(d Deps) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httpx.WriteError(w, http.StatusMethodNotAllowed, "invalid_request", "POST only", 1405)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
		if err := r.ParseForm(); err != nil {
			writeOAuthError(w, http.StatusBadRequest, oauth.ErrInvalidRequest, "malformed form body")
			return
		}
		grant := r.PostFormValue("grant_type")

		client, err := clientFromRequest(d, r)
		if err != nil {
			metrics.TokenGrantFailures.WithLabelValues(grant, oauth.Code(err)).Inc()
			w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
			writeOAuthError(w, http.StatusUnauthorized, oauth.ErrInvalidClient, "client authentication failed")
			return
		}

		var pair *oauth.TokenPair
		switch grant {
		case oauth.GrantAuthorizationCode:
			pair, err = d.Svc.ExchangeAuthorizationCode(r.Context(), client,
				r.PostFormValue("code"),
				r.PostFormValue("redirect_uri"),
				r.PostFormValue("code_verifier"),
			)
		case oauth.GrantRefreshToken:
			pair, err = d.Svc.Refresh(r.Context(), client, r.PostFormValue("refresh_token"))
		default:
			err = oauth.ErrInvalidRequest
			writeOAuthError(w, http.StatusBadRequest, err, "unsupported grant_type")
			metrics.TokenGrantFailures.WithLabelValues(grant, "unsupported_grant_type").Inc()
			return
		}
		if err != nil {
			metrics.TokenGrantFailures.WithLabelValues(grant, oauth.Code(err)).Inc()
			switch {
			case errors.Is(err, oauth.ErrServerError):
				writeOAuthError(w, http.StatusInternalServerError, err, "")
			default:
				writeOAuthError(w, http.StatusBadRequest, err, "")
			}
			return
		}

		metrics.TokenGrants.WithLabelValues(grant).Inc()
		logger.From(r.Context()).Info("token granted",
			logger.GrantType(grant), logger.ClientID(client.ID))
		httpx.NoStore(w)
		httpx.WriteJSON(w, http.StatusOK, pair)
	})
}
