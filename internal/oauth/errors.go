package oauth

import "errors"

// Sentinels del protocolo. Los handlers los mapean a los códigos de error
// RFC 6749/6750 con Code().
var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrInvalidClient      = errors.New("invalid_client")
	ErrUnauthorizedClient = errors.New("unauthorized_client")
	ErrInvalidGrant       = errors.New("invalid_grant")
	ErrInvalidScope       = errors.New("invalid_scope")
	ErrInvalidToken       = errors.New("invalid_token")
	ErrInsufficientScope  = errors.New("insufficient_scope")
	ErrServerError        = errors.New("server_error")
)

// Code devuelve el error code OAuth para la respuesta JSON.
func Code(err error) string {
	for _, s := range []error{
		ErrInvalidRequest, ErrInvalidClient, ErrUnauthorizedClient,
		ErrInvalidGrant, ErrInvalidScope, ErrInvalidToken,
		ErrInsufficientScope, ErrServerError,
	} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return ErrServerError.Error()
}
