package oauth

import (
	"strings"

	"github.com/dropDatabas3/doorman/internal/config"
	"github.com/dropDatabas3/doorman/internal/security/password"
)

// Client es un OAuth client registrado. Inmutable después del arranque.
type Client struct {
	ID           string
	SecretHash   string // argon2id PHC; vacío => public client
	RedirectURIs []string
	Scopes       []string
	GrantTypes   []string
	RequirePKCE  bool
	Active       bool
}

// Public reporta si el client no tiene secreto (SPA, app nativa).
// Los public clients siempre requieren PKCE.
func (c *Client) Public() bool { return c.SecretHash == "" }

func (c *Client) MustPKCE() bool { return c.RequirePKCE || c.Public() }

// AllowsRedirect exige match exacto, sin normalización ni prefijos.
func (c *Client) AllowsRedirect(uri string) bool {
	for _, r := range c.RedirectURIs {
		if r == uri {
			return true
		}
	}
	return false
}

func (c *Client) AllowsGrant(gt string) bool {
	for _, g := range c.GrantTypes {
		if g == gt {
			return true
		}
	}
	return false
}

// NarrowScopes reduce en silencio los scopes pedidos al subconjunto
// permitido. Pedido vacío => todos los del client.
func (c *Client) NarrowScopes(requested []string) []string {
	if len(requested) == 0 {
		out := make([]string, len(c.Scopes))
		copy(out, c.Scopes)
		return out
	}
	allowed := make(map[string]bool, len(c.Scopes))
	for _, s := range c.Scopes {
		allowed[s] = true
	}
	var out []string
	for _, s := range requested {
		if allowed[s] {
			out = append(out, s)
		}
	}
	return out
}

// Registry resuelve client_id -> Client. Se construye una vez en el
// arranque; no hay mutación ni singleton.
type Registry struct {
	byID map[string]*Client
}

func NewRegistry(clients []Client) *Registry {
	r := &Registry{byID: make(map[string]*Client, len(clients))}
	for i := range clients {
		c := clients[i]
		r.byID[c.ID] = &c
	}
	return r
}

func RegistryFromConfig(cs []config.Client) *Registry {
	out := make([]Client, 0, len(cs))
	for _, c := range cs {
		out = append(out, Client{
			ID:           c.ClientID,
			SecretHash:   c.SecretHash,
			RedirectURIs: c.RedirectURIs,
			Scopes:       c.Scopes,
			GrantTypes:   c.GrantTypes,
			RequirePKCE:  c.RequirePKCE,
			Active:       c.Active,
		})
	}
	return NewRegistry(out)
}

// Validate autentica un client. Unknown, inactivo o secreto incorrecto
// devuelven todos ErrInvalidClient: no filtramos cuál falló.
func (r *Registry) Validate(clientID, secret string) (*Client, error) {
	c, ok := r.byID[clientID]
	if !ok || !c.Active {
		return nil, ErrInvalidClient
	}
	if c.Public() {
		if secret != "" {
			return nil, ErrInvalidClient
		}
		return c, nil
	}
	if !password.Verify(secret, c.SecretHash) {
		return nil, ErrInvalidClient
	}
	return c, nil
}

// Get devuelve el client sin autenticar (para /authorize, donde aún no
// hay secreto).
func (r *Registry) Get(clientID string) (*Client, bool) {
	c, ok := r.byID[clientID]
	return c, ok
}

// SplitScopes / JoinScopes: los scopes viajan space-delimited en el wire.
func SplitScopes(s string) []string {
	return strings.Fields(s)
}

func JoinScopes(ss []string) string {
	return strings.Join(ss, " ")
}

func hasScope(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}
