package rate

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// checkSliding mantiene los timestamps exactos de la ventana: poda lo viejo,
// cuenta, y solo registra el hit si se admite. Semántica rolling precisa a
// costo de storage proporcional a la ventana.
//
// Contar y registrar son dos round-trips: carrera aceptada (ver counter).
func (l *Limiter) checkSliding(ctx context.Context, id string, cfg Config) (Result, error) {
	key := nsSliding + keyID(id)
	now := time.Now().UTC()
	since := now.Add(-cfg.Window)

	count, err := l.store.WindowCount(ctx, key, since)
	if err != nil {
		return Result{}, err
	}

	res := Result{Limit: cfg.Max}
	if count < cfg.Max {
		if err := l.store.WindowAdd(ctx, key, uuid.NewString(), now, cfg.Window); err != nil {
			return Result{}, err
		}
		res.Allowed = true
		res.Remaining = cfg.Max - count - 1
		res.ResetAt = now.Add(cfg.Window)
		return res, nil
	}

	// denegado: la ventana se libera cuando caduque el hit más viejo
	oldest, err := l.store.WindowOldest(ctx, key)
	if err != nil || oldest.IsZero() {
		oldest = now
	}
	resetAt := oldest.Add(cfg.Window)
	retry := time.Until(resetAt)
	if retry <= 0 {
		retry = time.Second
	}
	res.Remaining = 0
	res.ResetAt = resetAt
	res.RetryAfter = retry
	return res, nil
}
