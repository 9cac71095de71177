// Package store define la interfaz estrecha de persistencia del core:
// authorization codes y pares access/refresh, siempre por hash.
//
// Cualquier base durable que implemente Store es sustituible; hoy hay
// dos adapters: memory (tests/dev) y pg (pgx).
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: not found")

// AuthCode es el estado CONSENTED de un flujo: un code de un solo uso.
type AuthCode struct {
	CodeHash        string
	ClientID        string
	UserID          string
	RedirectURI     string
	Scopes          []string
	CodeChallenge   string
	ChallengeMethod string
	Nonce           string
	ExpiresAt       time.Time
}

type AccessToken struct {
	TokenHash string
	ClientID  string
	UserID    string
	Scopes    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type RefreshToken struct {
	TokenHash string
	ClientID  string
	UserID    string
	Scopes    []string
	// AccessTokenHash referencia el access token emitido junto con este refresh.
	AccessTokenHash string
	IssuedAt        time.Time
	ExpiresAt       time.Time
	RevokedAt       *time.Time
}

func (rt *RefreshToken) Usable(now time.Time) bool {
	return rt.RevokedAt == nil && now.Before(rt.ExpiresAt)
}

// Store es la interfaz mínima que necesita el servicio OAuth.
type Store interface {
	CreateAuthCode(ctx context.Context, ac AuthCode) error
	// ConsumeAuthCode borra y devuelve el code de forma atómica (fetch-and-delete).
	// Dos consumos concurrentes del mismo code: exactamente uno gana.
	ConsumeAuthCode(ctx context.Context, codeHash string) (*AuthCode, error)

	// CreateTokenPair persiste access+refresh juntos: los dos o ninguno.
	CreateTokenPair(ctx context.Context, at AccessToken, rt RefreshToken) error
	GetAccessToken(ctx context.Context, tokenHash string) (*AccessToken, error)
	// ExpireAccessToken fuerza la expiración (revocación de access tokens).
	ExpireAccessToken(ctx context.Context, tokenHash string) error

	GetRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)
	// ConsumeRefreshToken marca el token como revocado y lo devuelve de forma
	// atómica (fetch-and-mark). ErrNotFound si no existe, ya estaba revocado
	// o expiró: dos rotaciones concurrentes, exactamente una gana.
	ConsumeRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error

	// SweepExpired borra en lote codes y tokens vencidos. Idempotente.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close()
}
