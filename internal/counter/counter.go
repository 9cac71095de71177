// Package counter define el store compartido de contadores atómicos que
// respalda rate limiting y quotas.
//
// Todas las operaciones de incremento son de un solo round-trip. Donde el
// algoritmo necesita leer-luego-escribir (sliding window, token bucket),
// la carrera entre lectura y escritura está aceptada y documentada: bajo
// concurrencia extrema se puede sobre-admitir levemente, nunca sub-admitir.
package counter

import (
	"context"
	"time"
)

type Store interface {
	// Incr incrementa y fija TTL en el primer hit.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
	Del(ctx context.Context, keys ...string) error

	// Ventana deslizante: WindowCount poda lo viejo y cuenta; WindowAdd
	// registra un hit con su timestamp.
	WindowCount(ctx context.Context, key string, since time.Time) (int64, error)
	WindowAdd(ctx context.Context, key, member string, at time.Time, ttl time.Duration) error
	// WindowOldest devuelve el timestamp más viejo dentro de la ventana
	// (zero time si está vacía).
	WindowOldest(ctx context.Context, key string) (time.Time, error)

	// Estado de token bucket.
	BucketGet(ctx context.Context, key string) (tokens float64, last time.Time, ok bool, err error)
	BucketSet(ctx context.Context, key string, tokens float64, last time.Time, ttl time.Duration) error

	// Conjunto de requests en vuelo (techo de concurrencia).
	SetAdd(ctx context.Context, key, member string, ttl time.Duration) (int64, error)
	SetRem(ctx context.Context, key, member string) error
	SetCard(ctx context.Context, key string) (int64, error)

	// Keys lista keys existentes por prefijo (admin stats / reset).
	Keys(ctx context.Context, prefix string) ([]string, error)

	Ping(ctx context.Context) error
}
