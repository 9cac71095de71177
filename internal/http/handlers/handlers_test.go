package handlers

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/doorman/internal/admission"
	cachemem "github.com/dropDatabas3/doorman/internal/cache/memory"
	countermem "github.com/dropDatabas3/doorman/internal/counter/memory"
	httpx "github.com/dropDatabas3/doorman/internal/http"
	"github.com/dropDatabas3/doorman/internal/jwt"
	"github.com/dropDatabas3/doorman/internal/oauth"
	"github.com/dropDatabas3/doorman/internal/quota"
	"github.com/dropDatabas3/doorman/internal/rate"
	"github.com/dropDatabas3/doorman/internal/security/password"
	storemem "github.com/dropDatabas3/doorman/internal/store/memory"
)

const (
	verifier    = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	redirectURI = "https://app.example.com/cb"
	secret      = "s3cret-s3cret"
)

func challenge() string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ks, err := jwt.NewEd25519("test-1")
	require.NoError(t, err)

	hash, err := password.Hash(password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}, secret)
	require.NoError(t, err)

	reg := oauth.NewRegistry([]oauth.Client{{
		ID:           "web",
		SecretHash:   hash,
		RedirectURIs: []string{redirectURI},
		Scopes:       []string{"openid", "email", "profile", "read", "admin"},
		GrantTypes:   []string{oauth.GrantAuthorizationCode, oauth.GrantRefreshToken},
		RequirePKCE:  true,
		Active:       true,
	}})
	users := oauth.NewStaticDirectory([]oauth.User{{
		ID: "usr-1", Email: "ana@example.com", EmailVerified: true, Name: "Ana", Plan: "free",
	}})
	st := storemem.New()
	svc := oauth.NewService(oauth.Options{
		AccessTTL:     time.Hour,
		RefreshTTL:    720 * time.Hour,
		CodeTTL:       10 * time.Minute,
		TokenCacheTTL: 5 * time.Minute,
	}, reg, users, st, cachemem.New(5*time.Minute), jwt.NewIssuer("https://auth.test", ks))

	cs := countermem.New()
	limiter := rate.New(cs)
	pipe := admission.NewPipeline(admission.Options{
		RateEnabled:  true,
		RateConfig:   rate.Config{Strategy: rate.SlidingWindow, Max: 1000, Window: time.Minute},
		QuotaEnabled: true,
		DefaultPlan:  "free",
		Plans: map[string]quota.Plan{
			"free": {Daily: 1000, Monthly: quota.Unlimited, Concurrent: quota.Unlimited},
		},
	}, limiter, quota.New(cs), svc, users)

	d := Deps{
		Svc: svc, Keys: ks, Limiter: limiter, Store: st,
		Issuer: "https://auth.test", LoginURL: "https://login.test/session", AdminScope: "admin",
	}
	h := httpx.NewRouter(httpx.Routes{
		Authorize:           Authorize(d),
		Consent:             Consent(d),
		Token:               Token(d),
		Revoke:              Revoke(d),
		Introspect:          Introspect(d),
		UserInfo:            UserInfo(d),
		Discovery:           Discovery(d),
		JWKS:                JWKS(d),
		AdminRateLimitReset: AdminRateLimitReset(d),
		AdminRateLimitStats: AdminRateLimitStats(d),
		Healthz:             Healthz(),
		Readyz:              Readyz(d),
		Admission:           pipe.Wrap,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

// noRedirect evita que el client siga los 302: queremos leer Location.
func noRedirect() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func obtainCode(t *testing.T, srv *httptest.Server, scope string) string {
	t.Helper()
	c := noRedirect()

	// authorize con sesión upstream -> consent challenge
	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {"web"},
		"redirect_uri":          {redirectURI},
		"scope":                 {scope},
		"state":                 {"st-42"},
		"nonce":                 {"n-1"},
		"code_challenge":        {challenge()},
		"code_challenge_method": {"S256"},
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/oauth/authorize?"+q.Encode(), nil)
	req.Header.Set("X-User-ID", "usr-1")
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		ConsentChallenge string `json:"consent_challenge"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.ConsentChallenge)

	// consent approve -> 302 con code y state
	form := url.Values{"consent_challenge": {body.ConsentChallenge}, "decision": {"approve"}}
	resp2, err := c.PostForm(srv.URL+"/oauth/consent", form)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusFound, resp2.StatusCode)
	loc, err := url.Parse(resp2.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "st-42", loc.Query().Get("state"))
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func exchange(t *testing.T, srv *httptest.Server, code string) oauth.TokenPair {
	t.Helper()
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"code_verifier": {verifier},
	}
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("web", secret)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	var pair oauth.TokenPair
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pair))
	return pair
}

func TestFlow_AuthorizeConsentTokenUserInfo(t *testing.T) {
	srv := newTestServer(t)
	code := obtainCode(t, srv, "openid email profile read")
	pair := exchange(t, srv, code)

	require.Equal(t, "Bearer", pair.TokenType)
	require.EqualValues(t, 3600, pair.ExpiresIn)
	require.NotEmpty(t, pair.IDToken)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/oauth/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var claims map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&claims))
	require.Equal(t, "usr-1", claims["sub"])
	require.Equal(t, "ana@example.com", claims["email"])
	require.Equal(t, "Ana", claims["name"])

	// headers de admisión presentes en requests autenticados
	require.Equal(t, "1000", resp.Header.Get("X-Quota-Daily-Limit"))
	require.NotEmpty(t, resp.Header.Get("X-Quota-Daily-Used"))
	require.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining"))
}

func TestFlow_AuthorizeWithoutSessionRedirectsToLogin(t *testing.T) {
	srv := newTestServer(t)
	c := noRedirect()
	resp, err := c.Get(srv.URL + "/oauth/authorize?response_type=code&client_id=web&redirect_uri=" + url.QueryEscape(redirectURI))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.Equal(t, "login.test", loc.Host)
	require.NotEmpty(t, loc.Query().Get("return_to"))
}

func TestFlow_ConsentDeny(t *testing.T) {
	srv := newTestServer(t)
	c := noRedirect()

	q := url.Values{
		"response_type": {"code"}, "client_id": {"web"}, "redirect_uri": {redirectURI},
		"scope": {"read"}, "state": {"xyz"},
		"code_challenge": {challenge()}, "code_challenge_method": {"S256"},
	}
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/oauth/authorize?"+q.Encode(), nil)
	req.Header.Set("X-User-ID", "usr-1")
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		ConsentChallenge string `json:"consent_challenge"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	resp2, err := c.PostForm(srv.URL+"/oauth/consent", url.Values{
		"consent_challenge": {body.ConsentChallenge}, "decision": {"deny"},
	})
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusFound, resp2.StatusCode)
	loc, _ := url.Parse(resp2.Header.Get("Location"))
	require.Equal(t, "access_denied", loc.Query().Get("error"))
	require.Equal(t, "xyz", loc.Query().Get("state"))
}

func TestFlow_RefreshAndRevoke(t *testing.T) {
	srv := newTestServer(t)
	code := obtainCode(t, srv, "openid read")
	pair := exchange(t, srv, code)

	// refresh
	form := url.Values{"grant_type": {"refresh_token"}, "refresh_token": {pair.RefreshToken}}
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("web", secret)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var next oauth.TokenPair
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&next))
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// revoke el access nuevo
	req2, _ := http.NewRequest(http.MethodPost, srv.URL+"/oauth/revoke",
		strings.NewReader(url.Values{"token": {next.AccessToken}}.Encode()))
	req2.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req2.SetBasicAuth("web", secret)
	resp2, err := http.DefaultClient.Do(req2)
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	// el token revocado ya no entra ni a userinfo
	req3, _ := http.NewRequest(http.MethodGet, srv.URL+"/oauth/userinfo", nil)
	req3.Header.Set("Authorization", "Bearer "+next.AccessToken)
	resp3, err := http.DefaultClient.Do(req3)
	require.NoError(t, err)
	resp3.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp3.StatusCode)
}

func TestFlow_IntrospectRequiresClientAuth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.PostForm(srv.URL+"/oauth/introspect", url.Values{"token": {"whatever"}})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	code := obtainCode(t, srv, "read")
	pair := exchange(t, srv, code)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/oauth/introspect",
		strings.NewReader(url.Values{"token": {pair.AccessToken}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("web", secret)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	var in oauth.Introspection
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&in))
	require.True(t, in.Active)
	require.Equal(t, "web", in.ClientID)
}

func TestFlow_WrongClientSecretIs401(t *testing.T) {
	srv := newTestServer(t)
	code := obtainCode(t, srv, "read")
	form := url.Values{
		"grant_type": {"authorization_code"}, "code": {code},
		"redirect_uri": {redirectURI}, "code_verifier": {verifier},
	}
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("web", "not-the-secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
}

func TestAdmin_RequiresScope(t *testing.T) {
	srv := newTestServer(t)

	// sin bearer -> 401
	resp, err := http.Get(srv.URL + "/admin/rate-limit/stats")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// token sin scope admin -> 403
	code := obtainCode(t, srv, "read")
	pair := exchange(t, srv, code)
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/admin/rate-limit/stats", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusForbidden, resp2.StatusCode)

	// con scope admin -> 200 y reset funciona
	code = obtainCode(t, srv, "read admin")
	pair = exchange(t, srv, code)
	req3, _ := http.NewRequest(http.MethodGet, srv.URL+"/admin/rate-limit/stats", nil)
	req3.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	resp3, err := http.DefaultClient.Do(req3)
	require.NoError(t, err)
	defer resp3.Body.Close()
	require.Equal(t, http.StatusOK, resp3.StatusCode)

	req4, _ := http.NewRequest(http.MethodPost, srv.URL+"/admin/rate-limit/reset/203.0.113.7", nil)
	req4.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	resp4, err := http.DefaultClient.Do(req4)
	require.NoError(t, err)
	resp4.Body.Close()
	require.Equal(t, http.StatusOK, resp4.StatusCode)
}

func TestDiscoveryAndJWKS(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/.well-known/openid_configuration")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.Equal(t, "https://auth.test", doc["issuer"])
	require.Equal(t, "https://auth.test/.well-known/jwks.json", doc["jwks_uri"])

	resp2, err := http.Get(srv.URL + "/.well-known/jwks.json")
	require.NoError(t, err)
	defer resp2.Body.Close()
	var keys struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&keys))
	require.Len(t, keys.Keys, 1)
	require.Equal(t, "OKP", keys.Keys[0]["kty"])
	require.Equal(t, "test-1", keys.Keys[0]["kid"])
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)
}
