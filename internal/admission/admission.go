// Package admission implementa la cadena de admisión que antecede a todo
// handler: rate limit por IP, resolución del bearer y quotas por plan.
//
// Semántica de fallo: rate y quota fallan ABIERTO (un Redis caído no
// tira el servicio), la validación de tokens falla CERRADO.
package admission

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/dropDatabas3/doorman/internal/quota"
)

// Principal es el portador resuelto del bearer token.
type Principal struct {
	UserID   string
	ClientID string
	Scopes   []string
	Plan     quota.Plan
}

func (p *Principal) HasScope(s string) bool {
	if p == nil {
		return false
	}
	for _, sc := range p.Scopes {
		if sc == s {
			return true
		}
	}
	return false
}

// Context es el valor que viaja por la cadena: identificador de origen,
// principal (si hubo bearer) y los headers de cuota/límite ya resueltos.
type Context struct {
	Identifier string
	Principal  *Principal
}

type ctxKey struct{}

func withContext(ctx context.Context, ac *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, ac)
}

// FromRequest devuelve el Context de admisión del request, o un zero
// value si el pipeline no corrió (tests de handlers sueltos).
func FromRequest(r *http.Request) *Context {
	if v := r.Context().Value(ctxKey{}); v != nil {
		if ac, ok := v.(*Context); ok {
			return ac
		}
	}
	return &Context{}
}

// clientIP resuelve la IP de origen: primer hop de X-Forwarded-For si el
// proxy lo puso, si no el RemoteAddr pelado.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// bearerToken extrae el token del header Authorization; "" si no hay
// esquema Bearer.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	const prefix = "Bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
