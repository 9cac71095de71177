// Package redis implementa counter.Store sobre Redis (pipelines, sin Lua).
package redis

import (
	"context"
	"strconv"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

type Store struct {
	c      *rdb.Client
	prefix string
}

func New(addr string, db int, prefix string) *Store {
	if prefix == "" {
		prefix = "ctr:"
	}
	return &Store{c: rdb.NewClient(&rdb.Options{Addr: addr, DB: db}), prefix: prefix}
}

func (s *Store) k(key string) string { return s.prefix + key }

func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.c.TxPipeline()
	incr := pipe.Incr(ctx, s.k(key))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	// set expiry on first hit
	if incr.Val() == 1 && ttl > 0 {
		_ = s.c.Expire(ctx, s.k(key), ttl).Err()
	}
	return incr.Val(), nil
}

func (s *Store) Get(ctx context.Context, key string) (int64, error) {
	v, err := s.c.Get(ctx, s.k(key)).Result()
	if err == rdb.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	return n, nil
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.k(k)
	}
	return s.c.Del(ctx, full...).Err()
}

func (s *Store) WindowCount(ctx context.Context, key string, since time.Time) (int64, error) {
	pipe := s.c.TxPipeline()
	pipe.ZRemRangeByScore(ctx, s.k(key), "-inf", strconv.FormatInt(since.UnixNano(), 10))
	card := pipe.ZCard(ctx, s.k(key))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return card.Val(), nil
}

func (s *Store) WindowAdd(ctx context.Context, key, member string, at time.Time, ttl time.Duration) error {
	pipe := s.c.TxPipeline()
	pipe.ZAdd(ctx, s.k(key), rdb.Z{Score: float64(at.UnixNano()), Member: member})
	pipe.Expire(ctx, s.k(key), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) WindowOldest(ctx context.Context, key string) (time.Time, error) {
	zs, err := s.c.ZRangeWithScores(ctx, s.k(key), 0, 0).Result()
	if err != nil || len(zs) == 0 {
		return time.Time{}, err
	}
	return time.Unix(0, int64(zs[0].Score)), nil
}

func (s *Store) BucketGet(ctx context.Context, key string) (float64, time.Time, bool, error) {
	vals, err := s.c.HGetAll(ctx, s.k(key)).Result()
	if err != nil {
		return 0, time.Time{}, false, err
	}
	if len(vals) == 0 {
		return 0, time.Time{}, false, nil
	}
	tokens, _ := strconv.ParseFloat(vals["tokens"], 64)
	lastNs, _ := strconv.ParseInt(vals["last"], 10, 64)
	return tokens, time.Unix(0, lastNs), true, nil
}

func (s *Store) BucketSet(ctx context.Context, key string, tokens float64, last time.Time, ttl time.Duration) error {
	pipe := s.c.TxPipeline()
	pipe.HSet(ctx, s.k(key),
		"tokens", strconv.FormatFloat(tokens, 'f', -1, 64),
		"last", strconv.FormatInt(last.UnixNano(), 10),
	)
	pipe.Expire(ctx, s.k(key), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) SetAdd(ctx context.Context, key, member string, ttl time.Duration) (int64, error) {
	pipe := s.c.TxPipeline()
	pipe.SAdd(ctx, s.k(key), member)
	card := pipe.SCard(ctx, s.k(key))
	pipe.Expire(ctx, s.k(key), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return card.Val(), nil
}

func (s *Store) SetRem(ctx context.Context, key, member string) error {
	return s.c.SRem(ctx, s.k(key), member).Err()
}

func (s *Store) SetCard(ctx context.Context, key string) (int64, error) {
	return s.c.SCard(ctx, s.k(key)).Result()
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	iter := s.c.Scan(ctx, 0, s.k(prefix)+"*", 0).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val()[len(s.prefix):])
	}
	return out, iter.Err()
}

func (s *Store) Ping(ctx context.Context) error { return s.c.Ping(ctx).Err() }
