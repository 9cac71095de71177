// Package pg implementa store.Store sobre Postgres (pgx).
package pg

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/doorman/internal/store"
	migrations "github.com/dropDatabas3/doorman/migrations/postgres"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string, maxConns int, connMaxLifetime time.Duration) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	if connMaxLifetime > 0 {
		cfg.MaxConnLifetime = connMaxLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Migrate aplica el schema embebido en orden lexicográfico. Los archivos
// son idempotentes (IF NOT EXISTS), así que correrlo en cada arranque es
// seguro.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := migrations.FS.ReadDir(migrations.Dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		b, err := migrations.FS.ReadFile(migrations.Dir + "/" + name)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(b)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateAuthCode(ctx context.Context, ac store.AuthCode) error {
	const q = `
		INSERT INTO auth_codes
		    (code_hash, client_id, user_id, redirect_uri, scopes, code_challenge, challenge_method, nonce, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.pool.Exec(ctx, q,
		ac.CodeHash, ac.ClientID, ac.UserID, ac.RedirectURI, ac.Scopes,
		ac.CodeChallenge, ac.ChallengeMethod, ac.Nonce, ac.ExpiresAt,
	)
	return err
}

// ConsumeAuthCode: DELETE ... RETURNING, un solo round-trip.
// Dos exchanges concurrentes del mismo code: exactamente uno recibe la fila.
func (s *Store) ConsumeAuthCode(ctx context.Context, codeHash string) (*store.AuthCode, error) {
	const q = `
		DELETE FROM auth_codes
		 WHERE code_hash = $1
		RETURNING code_hash, client_id, user_id, redirect_uri, scopes,
		          code_challenge, challenge_method, nonce, expires_at`
	var ac store.AuthCode
	err := s.pool.QueryRow(ctx, q, codeHash).Scan(
		&ac.CodeHash, &ac.ClientID, &ac.UserID, &ac.RedirectURI, &ac.Scopes,
		&ac.CodeChallenge, &ac.ChallengeMethod, &ac.Nonce, &ac.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ac, nil
}

// CreateTokenPair inserta access+refresh en una transacción: los dos o ninguno.
func (s *Store) CreateTokenPair(ctx context.Context, at store.AccessToken, rt store.RefreshToken) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const qa = `
		INSERT INTO access_tokens (token_hash, client_id, user_id, scopes, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.Exec(ctx, qa, at.TokenHash, at.ClientID, at.UserID, at.Scopes, at.IssuedAt, at.ExpiresAt); err != nil {
		return err
	}
	const qr = `
		INSERT INTO refresh_tokens (token_hash, client_id, user_id, scopes, access_token_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.Exec(ctx, qr, rt.TokenHash, rt.ClientID, rt.UserID, rt.Scopes, rt.AccessTokenHash, rt.IssuedAt, rt.ExpiresAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetAccessToken(ctx context.Context, tokenHash string) (*store.AccessToken, error) {
	const q = `
		SELECT token_hash, client_id, user_id, scopes, issued_at, expires_at
		  FROM access_tokens
		 WHERE token_hash = $1`
	var at store.AccessToken
	err := s.pool.QueryRow(ctx, q, tokenHash).Scan(
		&at.TokenHash, &at.ClientID, &at.UserID, &at.Scopes, &at.IssuedAt, &at.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &at, nil
}

func (s *Store) ExpireAccessToken(ctx context.Context, tokenHash string) error {
	// Forzar expiración; idempotente (0 filas afectadas no es error).
	const q = `UPDATE access_tokens SET expires_at = to_timestamp(0) WHERE token_hash = $1`
	_, err := s.pool.Exec(ctx, q, tokenHash)
	return err
}

func (s *Store) GetRefreshToken(ctx context.Context, tokenHash string) (*store.RefreshToken, error) {
	const q = `
		SELECT token_hash, client_id, user_id, scopes, access_token_hash, issued_at, expires_at, revoked_at
		  FROM refresh_tokens
		 WHERE token_hash = $1`
	var rt store.RefreshToken
	err := s.pool.QueryRow(ctx, q, tokenHash).Scan(
		&rt.TokenHash, &rt.ClientID, &rt.UserID, &rt.Scopes,
		&rt.AccessTokenHash, &rt.IssuedAt, &rt.ExpiresAt, &rt.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

// ConsumeRefreshToken: UPDATE ... RETURNING sobre el token todavía usable.
// Dos rotaciones concurrentes: exactamente una recibe la fila.
func (s *Store) ConsumeRefreshToken(ctx context.Context, tokenHash string) (*store.RefreshToken, error) {
	const q = `
		UPDATE refresh_tokens
		   SET revoked_at = now()
		 WHERE token_hash = $1
		   AND revoked_at IS NULL
		   AND expires_at > now()
		RETURNING token_hash, client_id, user_id, scopes, access_token_hash, issued_at, expires_at, revoked_at`
	var rt store.RefreshToken
	err := s.pool.QueryRow(ctx, q, tokenHash).Scan(
		&rt.TokenHash, &rt.ClientID, &rt.UserID, &rt.Scopes,
		&rt.AccessTokenHash, &rt.IssuedAt, &rt.ExpiresAt, &rt.RevokedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	const q = `UPDATE refresh_tokens SET revoked_at = now() WHERE token_hash = $1 AND revoked_at IS NULL`
	_, err := s.pool.Exec(ctx, q, tokenHash)
	return err
}

func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for _, q := range []string{
		`DELETE FROM auth_codes WHERE expires_at <= $1`,
		`DELETE FROM access_tokens WHERE expires_at <= $1`,
		`DELETE FROM refresh_tokens WHERE expires_at <= $1`,
	} {
		ct, err := s.pool.Exec(ctx, q, now)
		if err != nil {
			return total, err
		}
		total += ct.RowsAffected()
	}
	return total, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }
func (s *Store) Close()                         { s.pool.Close() }
