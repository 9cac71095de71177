// Package rate implementa el rate limiter por identificador con tres
// estrategias intercambiables detrás de un mismo contrato: sliding window,
// fixed window y token bucket. Las tres exponen la misma semántica de
// headers (limit, remaining, reset y retry-after solo al denegar).
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/doorman/internal/counter"
)

type Strategy string

const (
	SlidingWindow Strategy = "sliding_window"
	FixedWindow   Strategy = "fixed_window"
	TokenBucket   Strategy = "token_bucket"
)

// prefijos de namespace por estrategia
const (
	nsSliding = "rl:sw:"
	nsFixed   = "rl:fw:"
	nsBucket  = "rl:tb:"
)

type Config struct {
	Strategy Strategy
	Max      int64
	Window   time.Duration
	// Burst es la capacidad del bucket (solo token_bucket). Si es 0 se usa Max.
	Burst int64
}

type Result struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
	// RetryAfter solo es significativo cuando Allowed es false.
	RetryAfter time.Duration
}

type Limiter struct {
	store counter.Store
}

func New(store counter.Store) *Limiter {
	return &Limiter{store: store}
}

// Check evalúa y registra un hit para el identificador según la estrategia.
func (l *Limiter) Check(ctx context.Context, id string, cfg Config) (Result, error) {
	if cfg.Max <= 0 || cfg.Window <= 0 {
		return Result{Allowed: true, Limit: cfg.Max}, nil
	}
	switch cfg.Strategy {
	case SlidingWindow:
		return l.checkSliding(ctx, id, cfg)
	case TokenBucket:
		return l.checkBucket(ctx, id, cfg)
	case FixedWindow, "":
		return l.checkFixed(ctx, id, cfg)
	default:
		return Result{}, fmt.Errorf("rate: unknown strategy %q", cfg.Strategy)
	}
}

// Reset limpia todos los registros del identificador, sin importar la estrategia.
// Usado por overrides administrativos.
func (l *Limiter) Reset(ctx context.Context, id string) error {
	keys := []string{nsSliding + id, nsBucket + id}
	// fixed window incluye el bucket temporal en la key
	fixed, err := l.store.Keys(ctx, nsFixed+id+":")
	if err != nil {
		return err
	}
	keys = append(keys, fixed...)
	return l.store.Del(ctx, keys...)
}

// Stats reporta cuántos registros vivos hay por estrategia (admin).
func (l *Limiter) Stats(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int, 3)
	for ns, name := range map[string]string{
		nsSliding: string(SlidingWindow),
		nsFixed:   string(FixedWindow),
		nsBucket:  string(TokenBucket),
	} {
		keys, err := l.store.Keys(ctx, ns)
		if err != nil {
			return nil, err
		}
		out[name] = len(keys)
	}
	return out, nil
}

// sanitiza identificadores para usar como key
func keyID(id string) string {
	return strings.ReplaceAll(strings.TrimSpace(id), " ", "_")
}
