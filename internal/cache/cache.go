// Package cache provee el cache corto delante del store durable.
//
// Lo usa el servicio OAuth para lookups de access tokens (TTL corto,
// deliberadamente menor que la vida mínima de un access token para que
// una revocación se refleje rápido).
//
// Backends: memory (in-process) y redis (distribuido).
package cache

import "time"

type Cache interface {
	Get(k string) ([]byte, bool)
	Set(k string, v []byte, ttl time.Duration)
	Delete(k string)
}
