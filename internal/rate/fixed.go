package rate

import (
	"context"
	"fmt"
	"time"
)

// checkFixed incrementa un contador por bucket temporal (INCR + EXPIRE).
// Barato, pero permite hasta 2x de burst en el borde de ventana: tradeoff
// aceptado para endpoints de bajo valor.
func (l *Limiter) checkFixed(ctx context.Context, id string, cfg Config) (Result, error) {
	now := time.Now().UTC()
	winStart := now.Truncate(cfg.Window)
	key := fmt.Sprintf("%s%s:%d", nsFixed, keyID(id), winStart.Unix())

	hits, err := l.store.Incr(ctx, key, cfg.Window)
	if err != nil {
		return Result{}, err
	}

	resetAt := winStart.Add(cfg.Window)
	res := Result{
		Limit:   cfg.Max,
		ResetAt: resetAt,
	}
	if hits <= cfg.Max {
		res.Allowed = true
		res.Remaining = cfg.Max - hits
		return res, nil
	}
	res.Remaining = 0
	res.RetryAfter = time.Until(resetAt)
	if res.RetryAfter <= 0 {
		res.RetryAfter = cfg.Window
	}
	return res, nil
}
