package oauth

import (
	"encoding/json"
	"time"

	tokens "github.com/dropDatabas3/doorman/internal/security/token"
)

// ConsentChallenge liga el request de /oauth/authorize con la decisión
// del usuario en /oauth/consent. Vive en cache, un solo uso.
type ConsentChallenge struct {
	ClientID        string   `json:"client_id"`
	UserID          string   `json:"user_id"`
	RedirectURI     string   `json:"redirect_uri"`
	Scopes          []string `json:"scopes"`
	CodeChallenge   string   `json:"code_challenge,omitempty"`
	ChallengeMethod string   `json:"challenge_method,omitempty"`
	Nonce           string   `json:"nonce,omitempty"`
	State           string   `json:"state,omitempty"`
}

const consentTTL = 5 * time.Minute

func consentKey(id string) string { return "consent:" + id }

// CreateConsent guarda el challenge y devuelve su id opaco.
func (s *Service) CreateConsent(ch ConsentChallenge) (string, error) {
	id, err := tokens.GenerateOpaqueToken(24)
	if err != nil {
		return "", ErrServerError
	}
	b, err := json.Marshal(ch)
	if err != nil {
		return "", ErrServerError
	}
	s.cache.Set(consentKey(id), b, consentTTL)
	return id, nil
}

// ConsumeConsent recupera y borra el challenge. Segundo consumo falla.
func (s *Service) ConsumeConsent(id string) (*ConsentChallenge, error) {
	k := consentKey(id)
	b, ok := s.cache.Get(k)
	if !ok {
		return nil, ErrInvalidRequest
	}
	s.cache.Delete(k)
	var ch ConsentChallenge
	if err := json.Unmarshal(b, &ch); err != nil {
		return nil, ErrInvalidRequest
	}
	return &ch, nil
}
