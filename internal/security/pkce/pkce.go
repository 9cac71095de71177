// Package pkce implementa la verificación RFC 7636 (Proof Key for Code Exchange).
package pkce

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

const (
	MethodS256  = "S256"
	MethodPlain = "plain"
)

// ValidMethod reporta si el code_challenge_method está soportado.
func ValidMethod(m string) bool {
	return m == MethodS256 || m == MethodPlain
}

// Verify comprueba que el verifier reproduce el challenge registrado.
// S256: base64url(sha256(verifier)) == challenge. plain: verifier == challenge.
// Cualquier método desconocido falla cerrado.
func Verify(challenge, method, verifier string) bool {
	if challenge == "" || verifier == "" {
		return false
	}
	switch method {
	case MethodS256:
		sum := sha256.Sum256([]byte(verifier))
		derived := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) == 1
	case MethodPlain:
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	default:
		return false
	}
}
