package rate

import (
	"context"
	"math"
	"time"
)

// checkBucket rellena tokens proporcional al tiempo transcurrido (cap en
// Burst) y consume uno si hay. Pensado para tráfico con ráfagas pero
// promedio acotado.
//
// Leer y escribir el estado son dos round-trips: carrera aceptada (ver counter).
func (l *Limiter) checkBucket(ctx context.Context, id string, cfg Config) (Result, error) {
	key := nsBucket + keyID(id)
	now := time.Now().UTC()

	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.Max
	}
	// tokens por segundo: Max por Window
	rate := float64(cfg.Max) / cfg.Window.Seconds()

	tokens, last, ok, err := l.store.BucketGet(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		tokens, last = float64(burst), now
	} else {
		tokens += now.Sub(last).Seconds() * rate
		if tokens > float64(burst) {
			tokens = float64(burst)
		}
	}

	res := Result{Limit: cfg.Max}
	allowed := tokens >= 1
	if allowed {
		tokens--
	}
	// TTL: lo que tarda el bucket en volver a llenarse desde vacío
	ttl := time.Duration(float64(burst)/rate*float64(time.Second)) + cfg.Window
	if err := l.store.BucketSet(ctx, key, tokens, now, ttl); err != nil {
		return Result{}, err
	}

	res.Allowed = allowed
	res.Remaining = int64(math.Floor(tokens))
	// reset: cuándo vuelve a estar lleno
	missing := float64(burst) - tokens
	res.ResetAt = now.Add(time.Duration(missing / rate * float64(time.Second)))
	if !allowed {
		// retry: cuándo hay al menos 1 token
		need := 1 - tokens
		res.RetryAfter = time.Duration(math.Ceil(need/rate)) * time.Second
		if res.RetryAfter <= 0 {
			res.RetryAfter = time.Second
		}
	}
	return res, nil
}
