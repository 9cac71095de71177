package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/doorman/internal/cache"
	"github.com/dropDatabas3/doorman/internal/jwt"
	"github.com/dropDatabas3/doorman/internal/observability/logger"
	tokens "github.com/dropDatabas3/doorman/internal/security/token"
	"github.com/dropDatabas3/doorman/internal/store"

	"github.com/dropDatabas3/doorman/internal/security/pkce"
)

const (
	ScopeOpenID  = "openid"
	ScopeEmail   = "email"
	ScopeProfile = "profile"

	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// Options son los TTLs del servicio, ya parseados desde config.
type Options struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	CodeTTL       time.Duration
	TokenCacheTTL time.Duration
}

// Service implementa el core de autorización: ciclo de vida
// code -> token pair -> refresh/revoke, validación e introspección.
//
// Todas las credenciales opacas se persisten por hash SHA-256; el claro
// solo existe en la respuesta HTTP.
type Service struct {
	opts   Options
	reg    *Registry
	users  Directory
	store  store.Store
	cache  cache.Cache
	issuer *jwt.Issuer
}

func NewService(opts Options, reg *Registry, users Directory, st store.Store, c cache.Cache, iss *jwt.Issuer) *Service {
	return &Service{opts: opts, reg: reg, users: users, store: st, cache: c, issuer: iss}
}

func (s *Service) Registry() *Registry { return s.reg }
func (s *Service) Users() Directory    { return s.users }

// ────────────────────────────────────────────────────────────────────────
// Authorization code
// ────────────────────────────────────────────────────────────────────────

// AuthorizeRequest es un /oauth/authorize ya parseado, con el usuario
// resuelto upstream.
type AuthorizeRequest struct {
	ClientID        string
	UserID          string
	RedirectURI     string
	Scopes          []string
	CodeChallenge   string
	ChallengeMethod string
	Nonce           string
}

// ValidateAuthorize comprueba client, redirect y PKCE sin emitir nada.
// Lo usa /authorize antes de mostrar el consent.
func (s *Service) ValidateAuthorize(req AuthorizeRequest) (*Client, []string, error) {
	c, ok := s.reg.Get(req.ClientID)
	if !ok || !c.Active {
		return nil, nil, ErrInvalidClient
	}
	if !c.AllowsGrant(GrantAuthorizationCode) {
		return nil, nil, ErrUnauthorizedClient
	}
	if !c.AllowsRedirect(req.RedirectURI) {
		// redirect no registrado: nunca redirigimos ahí, el error va al caller
		return nil, nil, ErrInvalidRequest
	}
	if req.CodeChallenge != "" && !pkce.ValidMethod(req.ChallengeMethod) {
		return nil, nil, ErrInvalidRequest
	}
	if c.MustPKCE() && req.CodeChallenge == "" {
		return nil, nil, ErrInvalidRequest
	}
	scopes := c.NarrowScopes(req.Scopes)
	if len(req.Scopes) > 0 && len(scopes) == 0 {
		return nil, nil, ErrInvalidScope
	}
	return c, scopes, nil
}

// IssueAuthorizationCode emite un code de un solo uso para un request ya
// validado y consentido. Devuelve el code en claro.
func (s *Service) IssueAuthorizationCode(ctx context.Context, req AuthorizeRequest) (string, error) {
	_, scopes, err := s.ValidateAuthorize(req)
	if err != nil {
		return "", err
	}
	code, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return "", ErrServerError
	}
	ac := store.AuthCode{
		CodeHash:        tokens.SHA256Base64URL(code),
		ClientID:        req.ClientID,
		UserID:          req.UserID,
		RedirectURI:     req.RedirectURI,
		Scopes:          scopes,
		CodeChallenge:   req.CodeChallenge,
		ChallengeMethod: req.ChallengeMethod,
		Nonce:           req.Nonce,
		ExpiresAt:       time.Now().UTC().Add(s.opts.CodeTTL),
	}
	if err := s.store.CreateAuthCode(ctx, ac); err != nil {
		logger.From(ctx).Error("create auth code", logger.Err(err), logger.ClientID(req.ClientID))
		return "", ErrServerError
	}
	return code, nil
}

// TokenPair es la respuesta de /oauth/token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token,omitempty"`
}

// ExchangeAuthorizationCode consume el code y emite el par de tokens.
// El consumo es atómico y sucede ANTES de verificar PKCE/redirect/client:
// un intento fallido quema el code igual (fail closed, RFC 6749 §10.5).
func (s *Service) ExchangeAuthorizationCode(ctx context.Context, client *Client, code, redirectURI, verifier string) (*TokenPair, error) {
	ac, err := s.store.ConsumeAuthCode(ctx, tokens.SHA256Base64URL(code))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		logger.From(ctx).Error("consume auth code", logger.Err(err))
		return nil, ErrServerError
	}
	now := time.Now().UTC()
	switch {
	case now.After(ac.ExpiresAt):
		return nil, ErrInvalidGrant
	case ac.ClientID != client.ID:
		return nil, ErrInvalidGrant
	case ac.RedirectURI != redirectURI:
		return nil, ErrInvalidGrant
	}
	if ac.CodeChallenge != "" || client.MustPKCE() {
		if !pkce.Verify(ac.CodeChallenge, ac.ChallengeMethod, verifier) {
			return nil, ErrInvalidGrant
		}
	}
	return s.IssueTokenPair(ctx, client.ID, ac.UserID, ac.Scopes, ac.Nonce)
}

// ────────────────────────────────────────────────────────────────────────
// Token pair
// ────────────────────────────────────────────────────────────────────────

// IssueTokenPair genera access+refresh opacos, los persiste por hash y,
// si hay scope openid, firma el ID token.
func (s *Service) IssueTokenPair(ctx context.Context, clientID, userID string, scopes []string, nonce string) (*TokenPair, error) {
	access, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, ErrServerError
	}
	refresh, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, ErrServerError
	}
	now := time.Now().UTC()
	at := store.AccessToken{
		TokenHash: tokens.SHA256Base64URL(access),
		ClientID:  clientID,
		UserID:    userID,
		Scopes:    scopes,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.opts.AccessTTL),
	}
	rt := store.RefreshToken{
		TokenHash:       tokens.SHA256Base64URL(refresh),
		ClientID:        clientID,
		UserID:          userID,
		Scopes:          scopes,
		AccessTokenHash: at.TokenHash,
		IssuedAt:        now,
		ExpiresAt:       now.Add(s.opts.RefreshTTL),
	}
	if err := s.store.CreateTokenPair(ctx, at, rt); err != nil {
		logger.From(ctx).Error("create token pair", logger.Err(err), logger.ClientID(clientID))
		return nil, ErrServerError
	}

	pair := &TokenPair{
		AccessToken:  access,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.opts.AccessTTL.Seconds()),
		RefreshToken: refresh,
		Scope:        JoinScopes(scopes),
	}
	if hasScope(scopes, ScopeOpenID) {
		extra := map[string]any{"at_hash": jwt.AtHash(access)}
		if nonce != "" {
			extra["nonce"] = nonce
		}
		if u, ok := s.users.ByID(userID); ok {
			if hasScope(scopes, ScopeEmail) {
				extra["email"] = u.Email
				extra["email_verified"] = u.EmailVerified
			}
			if hasScope(scopes, ScopeProfile) && u.Name != "" {
				extra["name"] = u.Name
			}
		}
		idt, err := s.issuer.IssueIDToken(userID, clientID, at.ExpiresAt, extra)
		if err != nil {
			logger.From(ctx).Error("sign id token", logger.Err(err))
			return nil, ErrServerError
		}
		pair.IDToken = idt
	}
	logger.From(ctx).Info("token pair issued",
		logger.ClientID(clientID), logger.UserID(userID), logger.Scope(pair.Scope))
	return pair, nil
}

// Refresh rota el refresh token: consumo atómico del viejo (un solo uso),
// expiración forzada del access asociado y emisión de un par nuevo con
// los mismos scopes.
//
// Si el token pertenece a otro client, el consumo ya lo quemó: asumimos
// robo y el dueño legítimo tendrá que re-autorizar.
func (s *Service) Refresh(ctx context.Context, client *Client, refreshToken string) (*TokenPair, error) {
	if !client.AllowsGrant(GrantRefreshToken) {
		return nil, ErrUnauthorizedClient
	}
	rt, err := s.store.ConsumeRefreshToken(ctx, tokens.SHA256Base64URL(refreshToken))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidGrant
		}
		logger.From(ctx).Error("consume refresh token", logger.Err(err))
		return nil, ErrServerError
	}
	if rt.ClientID != client.ID {
		logger.From(ctx).Warn("refresh token presented by wrong client",
			logger.ClientID(client.ID), zap.String("owner", rt.ClientID))
		return nil, ErrInvalidGrant
	}
	if rt.AccessTokenHash != "" {
		if err := s.store.ExpireAccessToken(ctx, rt.AccessTokenHash); err != nil && !errors.Is(err, store.ErrNotFound) {
			logger.From(ctx).Warn("expire rotated access token", logger.Err(err))
		}
		s.cache.Delete(tokenCacheKey(rt.AccessTokenHash))
	}
	return s.IssueTokenPair(ctx, rt.ClientID, rt.UserID, rt.Scopes, "")
}

// ────────────────────────────────────────────────────────────────────────
// Validation / revocation / introspection
// ────────────────────────────────────────────────────────────────────────

func tokenCacheKey(hash string) string { return "at:" + hash }

// ValidateAccessToken resuelve un access token: cache corto primero,
// después el store. Falla CERRADO: sin confirmación no se admite, pero
// un store caído se reporta como ErrServerError, no como token inválido.
func (s *Service) ValidateAccessToken(ctx context.Context, token string) (*store.AccessToken, error) {
	hash := tokens.SHA256Base64URL(token)
	now := time.Now().UTC()

	if b, ok := s.cache.Get(tokenCacheKey(hash)); ok {
		var at store.AccessToken
		if err := json.Unmarshal(b, &at); err == nil {
			if now.After(at.ExpiresAt) {
				s.cache.Delete(tokenCacheKey(hash))
				return nil, ErrInvalidToken
			}
			return &at, nil
		}
		s.cache.Delete(tokenCacheKey(hash))
	}

	at, err := s.store.GetAccessToken(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		// store caído: fail closed, pero distinguible de un token muerto
		logger.From(ctx).Error("get access token", logger.Err(err))
		return nil, ErrServerError
	}
	if now.After(at.ExpiresAt) {
		return nil, ErrInvalidToken
	}
	ttl := s.opts.TokenCacheTTL
	if rem := at.ExpiresAt.Sub(now); rem < ttl {
		ttl = rem
	}
	if b, err := json.Marshal(at); err == nil {
		s.cache.Set(tokenCacheKey(hash), b, ttl)
	}
	return at, nil
}

// Revoke invalida un token (RFC 7009). Idempotente: token desconocido o
// ya revocado devuelve nil. El token debe pertenecer al client que lo
// presenta; si no, lo tratamos como desconocido.
func (s *Service) Revoke(ctx context.Context, client *Client, token string) error {
	hash := tokens.SHA256Base64URL(token)

	if rt, err := s.store.GetRefreshToken(ctx, hash); err == nil {
		if rt.ClientID != client.ID {
			return nil
		}
		if err := s.store.RevokeRefreshToken(ctx, hash); err != nil && !errors.Is(err, store.ErrNotFound) {
			return ErrServerError
		}
		if rt.AccessTokenHash != "" {
			if err := s.store.ExpireAccessToken(ctx, rt.AccessTokenHash); err != nil && !errors.Is(err, store.ErrNotFound) {
				return ErrServerError
			}
			s.cache.Delete(tokenCacheKey(rt.AccessTokenHash))
		}
		logger.From(ctx).Info("refresh token revoked", logger.ClientID(client.ID))
		return nil
	}

	if at, err := s.store.GetAccessToken(ctx, hash); err == nil {
		if at.ClientID != client.ID {
			return nil
		}
		if err := s.store.ExpireAccessToken(ctx, hash); err != nil && !errors.Is(err, store.ErrNotFound) {
			return ErrServerError
		}
		s.cache.Delete(tokenCacheKey(hash))
		logger.From(ctx).Info("access token revoked", logger.ClientID(client.ID))
	}
	return nil
}

// Introspection es la respuesta RFC 7662.
type Introspection struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Sub       string `json:"sub,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
}

// Introspect resuelve el estado de un token para un client autenticado.
// Todo lo que no sea un token activo colapsa en {active:false}: nunca
// detallamos por qué.
func (s *Service) Introspect(ctx context.Context, token string) Introspection {
	hash := tokens.SHA256Base64URL(token)
	now := time.Now().UTC()

	if at, err := s.store.GetAccessToken(ctx, hash); err == nil && now.Before(at.ExpiresAt) {
		return Introspection{
			Active:    true,
			Scope:     JoinScopes(at.Scopes),
			ClientID:  at.ClientID,
			Sub:       at.UserID,
			TokenType: "access_token",
			Exp:       at.ExpiresAt.Unix(),
			Iat:       at.IssuedAt.Unix(),
		}
	}
	if rt, err := s.store.GetRefreshToken(ctx, hash); err == nil && rt.Usable(now) {
		return Introspection{
			Active:    true,
			Scope:     JoinScopes(rt.Scopes),
			ClientID:  rt.ClientID,
			Sub:       rt.UserID,
			TokenType: "refresh_token",
			Exp:       rt.ExpiresAt.Unix(),
			Iat:       rt.IssuedAt.Unix(),
		}
	}
	return Introspection{Active: false}
}

// UserInfo devuelve los claims OIDC filtrados por los scopes del access
// token presentado. Requiere openid.
func (s *Service) UserInfo(ctx context.Context, token string) (map[string]any, error) {
	at, err := s.ValidateAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !hasScope(at.Scopes, ScopeOpenID) {
		return nil, ErrInsufficientScope
	}
	claims := map[string]any{"sub": at.UserID}
	u, ok := s.users.ByID(at.UserID)
	if !ok {
		return claims, nil
	}
	if hasScope(at.Scopes, ScopeEmail) {
		claims["email"] = u.Email
		claims["email_verified"] = u.EmailVerified
	}
	if hasScope(at.Scopes, ScopeProfile) && u.Name != "" {
		claims["name"] = u.Name
	}
	return claims, nil
}

// SweepExpired purga codes y tokens vencidos. Idempotente; corre en un
// ticker desde main.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.store.SweepExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.From(ctx).Info("expired credentials swept", logger.Count(n))
	}
	return n, nil
}

// RunSweeper ejecuta SweepExpired cada `every` hasta que el contexto se
// cancele.
func (s *Service) RunSweeper(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.SweepExpired(ctx); err != nil {
				logger.From(ctx).Warn("sweep failed", logger.Err(err))
			}
		}
	}
}
