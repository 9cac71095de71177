package jwt

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Issuer firma ID tokens con la clave activa del KeySet.
type Issuer struct {
	Iss  string // "iss"
	Keys *KeySet
}

func NewIssuer(iss string, ks *KeySet) *Issuer {
	return &Issuer{Iss: iss, Keys: ks}
}

// IssueIDToken emite un ID Token OIDC firmado con EdDSA, ligado a
// (issuer, sub, aud) y con la expiración que se le pase (la del access token).
// extra agrega claims top-level (nonce, email, ...); nunca pisa los estándar.
func (i *Issuer) IssueIDToken(sub, aud string, exp time.Time, extra map[string]any) (string, error) {
	now := time.Now().UTC()
	claims := jwtv5.MapClaims{}
	for k, v := range extra {
		claims[k] = v
	}
	claims["iss"] = i.Iss
	claims["sub"] = sub
	claims["aud"] = aud
	claims["iat"] = now.Unix()
	claims["nbf"] = now.Unix()
	claims["exp"] = exp.Unix()

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = i.Keys.KID
	tk.Header["typ"] = "JWT"
	return tk.SignedString(i.Keys.Priv)
}

// Keyfunc devuelve un jwt.Keyfunc con la pubkey activa (para tests y verificación local).
func (i *Issuer) Keyfunc() jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		return ed25519.PublicKey(i.Keys.Pub), nil
	}
}

// AtHash computa at_hash = base64url(128 bits más significativos de SHA-256(access_token)).
func AtHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}
