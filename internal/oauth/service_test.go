package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	cachemem "github.com/dropDatabas3/doorman/internal/cache/memory"
	"github.com/dropDatabas3/doorman/internal/jwt"
	"github.com/dropDatabas3/doorman/internal/store"
	storemem "github.com/dropDatabas3/doorman/internal/store/memory"
)

const (
	testVerifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testUserID   = "usr-1"
)

func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func newTestService(t *testing.T) (*Service, *Client) {
	t.Helper()
	ks, err := jwt.NewEd25519("test-1")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	reg := NewRegistry([]Client{{
		ID:           "web",
		RedirectURIs: []string{"https://app.example.com/cb"},
		Scopes:       []string{"openid", "email", "profile", "read", "write"},
		GrantTypes:   []string{GrantAuthorizationCode, GrantRefreshToken},
		RequirePKCE:  true,
		Active:       true,
	}})
	users := NewStaticDirectory([]User{{
		ID: testUserID, Email: "ana@example.com", EmailVerified: true, Name: "Ana", Plan: "free",
	}})
	svc := NewService(Options{
		AccessTTL:     time.Hour,
		RefreshTTL:    720 * time.Hour,
		CodeTTL:       10 * time.Minute,
		TokenCacheTTL: 5 * time.Minute,
	}, reg, users, storemem.New(), cachemem.New(5*time.Minute), jwt.NewIssuer("https://auth.test", ks))
	c, _ := reg.Get("web")
	return svc, c
}

func issueCode(t *testing.T, svc *Service, scopes []string) string {
	t.Helper()
	code, err := svc.IssueAuthorizationCode(context.Background(), AuthorizeRequest{
		ClientID:        "web",
		UserID:          testUserID,
		RedirectURI:     "https://app.example.com/cb",
		Scopes:          scopes,
		CodeChallenge:   s256(testVerifier),
		ChallengeMethod: "S256",
		Nonce:           "n-0S6_WzA2Mj",
	})
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}
	return code
}

func TestExchange_FullPKCEFlow(t *testing.T) {
	svc, client := newTestService(t)
	code := issueCode(t, svc, []string{"read", "write"})

	pair, err := svc.ExchangeAuthorizationCode(context.Background(), client, code, "https://app.example.com/cb", testVerifier)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if pair.TokenType != "Bearer" {
		t.Fatalf("token_type = %q", pair.TokenType)
	}
	if pair.ExpiresIn != 3600 {
		t.Fatalf("expires_in = %d, want 3600", pair.ExpiresIn)
	}
	if pair.Scope != "read write" {
		t.Fatalf("scope = %q, want %q", pair.Scope, "read write")
	}
	if pair.IDToken != "" {
		t.Fatalf("no openid scope but got id_token")
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("empty credentials in pair")
	}
}

func TestExchange_CodeIsSingleUse(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	code := issueCode(t, svc, []string{"read"})

	if _, err := svc.ExchangeAuthorizationCode(ctx, client, code, "https://app.example.com/cb", testVerifier); err != nil {
		t.Fatalf("first exchange: %v", err)
	}
	if _, err := svc.ExchangeAuthorizationCode(ctx, client, code, "https://app.example.com/cb", testVerifier); err != ErrInvalidGrant {
		t.Fatalf("second exchange err = %v, want ErrInvalidGrant", err)
	}
}

func TestExchange_BadVerifierBurnsCode(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	code := issueCode(t, svc, []string{"read"})

	if _, err := svc.ExchangeAuthorizationCode(ctx, client, code, "https://app.example.com/cb", "wrong-verifier-wrong-verifier-wrong-verifier"); err != ErrInvalidGrant {
		t.Fatalf("bad verifier err = %v, want ErrInvalidGrant", err)
	}
	// el intento fallido consumió el code: el verifier correcto ya no sirve
	if _, err := svc.ExchangeAuthorizationCode(ctx, client, code, "https://app.example.com/cb", testVerifier); err != ErrInvalidGrant {
		t.Fatalf("retry err = %v, want ErrInvalidGrant", err)
	}
}

func TestExchange_RedirectMismatch(t *testing.T) {
	svc, client := newTestService(t)
	code := issueCode(t, svc, []string{"read"})
	if _, err := svc.ExchangeAuthorizationCode(context.Background(), client, code, "https://evil.example.com/cb", testVerifier); err != ErrInvalidGrant {
		t.Fatalf("err = %v, want ErrInvalidGrant", err)
	}
}

func TestIssueAuthorizationCode_PKCERequired(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.IssueAuthorizationCode(context.Background(), AuthorizeRequest{
		ClientID:    "web",
		UserID:      testUserID,
		RedirectURI: "https://app.example.com/cb",
		Scopes:      []string{"read"},
	})
	if err != ErrInvalidRequest {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestIssueAuthorizationCode_ScopesNarrowSilently(t *testing.T) {
	svc, client := newTestService(t)
	code, err := svc.IssueAuthorizationCode(context.Background(), AuthorizeRequest{
		ClientID:        "web",
		UserID:          testUserID,
		RedirectURI:     "https://app.example.com/cb",
		Scopes:          []string{"read", "nuclear_launch"},
		CodeChallenge:   s256(testVerifier),
		ChallengeMethod: "S256",
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	pair, err := svc.ExchangeAuthorizationCode(context.Background(), client, code, "https://app.example.com/cb", testVerifier)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if pair.Scope != "read" {
		t.Fatalf("scope = %q, want %q", pair.Scope, "read")
	}
}

func TestRefresh_RotatesAndOldOneDies(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	code := issueCode(t, svc, []string{"read"})
	pair, err := svc.ExchangeAuthorizationCode(ctx, client, code, "https://app.example.com/cb", testVerifier)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	next, err := svc.Refresh(ctx, client, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.Scope != pair.Scope {
		t.Fatalf("rotated scope = %q, want %q", next.Scope, pair.Scope)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatalf("refresh token was not rotated")
	}

	// el viejo refresh es de un solo uso
	if _, err := svc.Refresh(ctx, client, pair.RefreshToken); err != ErrInvalidGrant {
		t.Fatalf("reuse err = %v, want ErrInvalidGrant", err)
	}
	// el access viejo quedó expirado por la rotación
	if _, err := svc.ValidateAccessToken(ctx, pair.AccessToken); err != ErrInvalidToken {
		t.Fatalf("old access err = %v, want ErrInvalidToken", err)
	}
	// el nuevo funciona
	if _, err := svc.ValidateAccessToken(ctx, next.AccessToken); err != nil {
		t.Fatalf("new access: %v", err)
	}
}

func TestRevoke_AccessInvalidDespiteCache(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	code := issueCode(t, svc, []string{"read"})
	pair, err := svc.ExchangeAuthorizationCode(ctx, client, code, "https://app.example.com/cb", testVerifier)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	// calienta el cache
	if _, err := svc.ValidateAccessToken(ctx, pair.AccessToken); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := svc.Revoke(ctx, client, pair.AccessToken); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.ValidateAccessToken(ctx, pair.AccessToken); err != ErrInvalidToken {
		t.Fatalf("post-revoke err = %v, want ErrInvalidToken", err)
	}
}

func TestRevoke_RefreshCascadesAndIsIdempotent(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	code := issueCode(t, svc, []string{"read"})
	pair, err := svc.ExchangeAuthorizationCode(ctx, client, code, "https://app.example.com/cb", testVerifier)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	if err := svc.Revoke(ctx, client, pair.RefreshToken); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.ValidateAccessToken(ctx, pair.AccessToken); err != ErrInvalidToken {
		t.Fatalf("access after refresh revoke err = %v, want ErrInvalidToken", err)
	}
	if _, err := svc.Refresh(ctx, client, pair.RefreshToken); err != ErrInvalidGrant {
		t.Fatalf("refresh after revoke err = %v, want ErrInvalidGrant", err)
	}
	// segunda revocación del mismo token: silenciosa
	if err := svc.Revoke(ctx, client, pair.RefreshToken); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
	if err := svc.Revoke(ctx, client, "token-que-nunca-existio"); err != nil {
		t.Fatalf("unknown revoke: %v", err)
	}
}

func TestIntrospect_RevokedIsInactive(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	code := issueCode(t, svc, []string{"read"})
	pair, err := svc.ExchangeAuthorizationCode(ctx, client, code, "https://app.example.com/cb", testVerifier)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	in := svc.Introspect(ctx, pair.AccessToken)
	if !in.Active || in.ClientID != "web" || in.Sub != testUserID || in.Scope != "read" {
		t.Fatalf("active introspection = %+v", in)
	}
	if err := svc.Revoke(ctx, client, pair.AccessToken); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if in := svc.Introspect(ctx, pair.AccessToken); in.Active {
		t.Fatalf("revoked token still active: %+v", in)
	}
	if in := svc.Introspect(ctx, "garbage"); in.Active {
		t.Fatalf("garbage token active")
	}
}

func TestUserInfo_ScopeFiltering(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()

	exchange := func(scopes []string) *TokenPair {
		code := issueCode(t, svc, scopes)
		p, err := svc.ExchangeAuthorizationCode(ctx, client, code, "https://app.example.com/cb", testVerifier)
		if err != nil {
			t.Fatalf("exchange %v: %v", scopes, err)
		}
		return p
	}

	// sin openid: insufficient_scope
	p := exchange([]string{"read"})
	if _, err := svc.UserInfo(ctx, p.AccessToken); err != ErrInsufficientScope {
		t.Fatalf("err = %v, want ErrInsufficientScope", err)
	}

	// openid solo: sub y nada más
	p = exchange([]string{"openid"})
	claims, err := svc.UserInfo(ctx, p.AccessToken)
	if err != nil {
		t.Fatalf("userinfo: %v", err)
	}
	if claims["sub"] != testUserID {
		t.Fatalf("sub = %v", claims["sub"])
	}
	if _, ok := claims["email"]; ok {
		t.Fatalf("email leaked without email scope")
	}

	// openid email profile: todo
	p = exchange([]string{"openid", "email", "profile"})
	claims, err = svc.UserInfo(ctx, p.AccessToken)
	if err != nil {
		t.Fatalf("userinfo: %v", err)
	}
	if claims["email"] != "ana@example.com" || claims["email_verified"] != true || claims["name"] != "Ana" {
		t.Fatalf("claims = %v", claims)
	}
	if p.IDToken == "" {
		t.Fatalf("openid scope but no id_token")
	}

	// token inválido
	if _, err := svc.UserInfo(ctx, "nope"); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

// brokenStore delega en memoria pero falla la lectura de access tokens,
// como un backend SQL caído a mitad de vida del token.
type brokenStore struct {
	store.Store
}

func (brokenStore) GetAccessToken(context.Context, string) (*store.AccessToken, error) {
	return nil, errors.New("dial tcp 10.0.0.5:5432: connection refused")
}

func TestValidate_StoreOutageIsServerError(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	code := issueCode(t, svc, []string{"openid", "read"})
	pair, err := svc.ExchangeAuthorizationCode(ctx, client, code, "https://app.example.com/cb", testVerifier)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	svc.store = brokenStore{svc.store}

	// token real con store caído: error de servidor, nunca invalid_token
	if _, err := svc.ValidateAccessToken(ctx, pair.AccessToken); !errors.Is(err, ErrServerError) {
		t.Fatalf("validate err = %v, want ErrServerError", err)
	}
	if _, err := svc.UserInfo(ctx, pair.AccessToken); !errors.Is(err, ErrServerError) {
		t.Fatalf("userinfo err = %v, want ErrServerError", err)
	}
}

func TestConsent_SingleUse(t *testing.T) {
	svc, _ := newTestService(t)
	id, err := svc.CreateConsent(ConsentChallenge{ClientID: "web", UserID: testUserID, RedirectURI: "https://app.example.com/cb", Scopes: []string{"read"}, State: "xyz"})
	if err != nil {
		t.Fatalf("create consent: %v", err)
	}
	ch, err := svc.ConsumeConsent(id)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if ch.State != "xyz" || ch.ClientID != "web" {
		t.Fatalf("challenge = %+v", ch)
	}
	if _, err := svc.ConsumeConsent(id); err != ErrInvalidRequest {
		t.Fatalf("second consume err = %v, want ErrInvalidRequest", err)
	}
}

func TestSweepExpired_RemovesDeadCodes(t *testing.T) {
	svc, client := newTestService(t)
	svc.opts.CodeTTL = -time.Minute // nace vencido
	ctx := context.Background()
	code := issueCode(t, svc, []string{"read"})

	if _, err := svc.ExchangeAuthorizationCode(ctx, client, code, "https://app.example.com/cb", testVerifier); err != ErrInvalidGrant {
		t.Fatalf("expired code err = %v, want ErrInvalidGrant", err)
	}
	code2 := issueCode(t, svc, []string{"read"})
	n, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n == 0 {
		t.Fatalf("sweep removed nothing")
	}
	if _, err := svc.ExchangeAuthorizationCode(ctx, client, code2, "https://app.example.com/cb", testVerifier); err != ErrInvalidGrant {
		t.Fatalf("swept code err = %v, want ErrInvalidGrant", err)
	}
}
