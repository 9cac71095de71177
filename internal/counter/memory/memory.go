// Package memory implementa counter.Store en memoria (dev/tests).
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type entry struct {
	n         int64
	expiresAt time.Time
}

type windowEntry struct {
	member string
	at     time.Time
}

type bucketEntry struct {
	tokens    float64
	last      time.Time
	expiresAt time.Time
}

type Store struct {
	mu      sync.Mutex
	counts  map[string]entry
	windows map[string][]windowEntry
	buckets map[string]bucketEntry
	sets    map[string]map[string]struct{}
}

func New() *Store {
	return &Store{
		counts:  make(map[string]entry),
		windows: make(map[string][]windowEntry),
		buckets: make(map[string]bucketEntry),
		sets:    make(map[string]map[string]struct{}),
	}
}

func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.counts[key]
	now := time.Now()
	if !ok || (!e.expiresAt.IsZero() && now.After(e.expiresAt)) {
		e = entry{}
		if ttl > 0 {
			e.expiresAt = now.Add(ttl)
		}
	}
	e.n++
	s.counts[key] = e
	return e.n, nil
}

func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.counts[key]
	if !ok || (!e.expiresAt.IsZero() && time.Now().After(e.expiresAt)) {
		return 0, nil
	}
	return e.n, nil
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.counts, k)
		delete(s.windows, k)
		delete(s.buckets, k)
		delete(s.sets, k)
	}
	return nil
}

func (s *Store) WindowCount(ctx context.Context, key string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.windows[key][:0]
	for _, w := range s.windows[key] {
		if w.at.After(since) {
			kept = append(kept, w)
		}
	}
	s.windows[key] = kept
	return int64(len(kept)), nil
}

func (s *Store) WindowAdd(ctx context.Context, key, member string, at time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[key] = append(s.windows[key], windowEntry{member: member, at: at})
	return nil
}

func (s *Store) WindowOldest(ctx context.Context, key string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.windows[key]
	if len(ws) == 0 {
		return time.Time{}, nil
	}
	oldest := ws[0].at
	for _, w := range ws[1:] {
		if w.at.Before(oldest) {
			oldest = w.at
		}
	}
	return oldest, nil
}

func (s *Store) BucketGet(ctx context.Context, key string) (float64, time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[key]
	if !ok || (!b.expiresAt.IsZero() && time.Now().After(b.expiresAt)) {
		return 0, time.Time{}, false, nil
	}
	return b.tokens, b.last, true, nil
}

func (s *Store) BucketSet(ctx context.Context, key string, tokens float64, last time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := bucketEntry{tokens: tokens, last: last}
	if ttl > 0 {
		b.expiresAt = time.Now().Add(ttl)
	}
	s.buckets[key] = b
	return nil
}

func (s *Store) SetAdd(ctx context.Context, key, member string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	set[member] = struct{}{}
	return int64(len(set)), nil
}

func (s *Store) SetRem(ctx context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.sets[key]; ok {
		delete(set, member)
		if len(set) == 0 {
			delete(s.sets, key)
		}
	}
	return nil
}

func (s *Store) SetCard(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.sets[key])), nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	for k := range s.counts {
		if strings.HasPrefix(k, prefix) {
			seen[k] = struct{}{}
		}
	}
	for k := range s.windows {
		if strings.HasPrefix(k, prefix) {
			seen[k] = struct{}{}
		}
	}
	for k := range s.buckets {
		if strings.HasPrefix(k, prefix) {
			seen[k] = struct{}{}
		}
	}
	for k := range s.sets {
		if strings.HasPrefix(k, prefix) {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }
