// Package memory implementa store.Store en memoria (dev/tests).
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/doorman/internal/store"
)

type Store struct {
	mu      sync.Mutex
	codes   map[string]store.AuthCode
	access  map[string]store.AccessToken
	refresh map[string]store.RefreshToken
}

func New() *Store {
	return &Store{
		codes:   make(map[string]store.AuthCode),
		access:  make(map[string]store.AccessToken),
		refresh: make(map[string]store.RefreshToken),
	}
}

func (s *Store) CreateAuthCode(ctx context.Context, ac store.AuthCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[ac.CodeHash] = ac
	return nil
}

func (s *Store) ConsumeAuthCode(ctx context.Context, codeHash string) (*store.AuthCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ac, ok := s.codes[codeHash]
	if !ok {
		return nil, store.ErrNotFound
	}
	delete(s.codes, codeHash)
	return &ac, nil
}

func (s *Store) CreateTokenPair(ctx context.Context, at store.AccessToken, rt store.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access[at.TokenHash] = at
	s.refresh[rt.TokenHash] = rt
	return nil
}

func (s *Store) GetAccessToken(ctx context.Context, tokenHash string) (*store.AccessToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.access[tokenHash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &at, nil
}

func (s *Store) ExpireAccessToken(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.access[tokenHash]
	if !ok {
		return nil // idempotente
	}
	at.ExpiresAt = time.Unix(0, 0)
	s.access[tokenHash] = at
	return nil
}

func (s *Store) GetRefreshToken(ctx context.Context, tokenHash string) (*store.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.refresh[tokenHash]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rt, nil
}

func (s *Store) ConsumeRefreshToken(ctx context.Context, tokenHash string) (*store.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.refresh[tokenHash]
	if !ok || !rt.Usable(time.Now()) {
		return nil, store.ErrNotFound
	}
	now := time.Now().UTC()
	rt.RevokedAt = &now
	s.refresh[tokenHash] = rt
	out := rt
	return &out, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.refresh[tokenHash]
	if !ok || rt.RevokedAt != nil {
		return nil // idempotente
	}
	now := time.Now().UTC()
	rt.RevokedAt = &now
	s.refresh[tokenHash] = rt
	return nil
}

func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, ac := range s.codes {
		if now.After(ac.ExpiresAt) {
			delete(s.codes, k)
			n++
		}
	}
	for k, at := range s.access {
		if now.After(at.ExpiresAt) {
			delete(s.access, k)
			n++
		}
	}
	for k, rt := range s.refresh {
		if now.After(rt.ExpiresAt) {
			delete(s.refresh, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close()                         {}
