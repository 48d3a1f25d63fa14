package jwt

import (
	"errors"
	"fmt"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var (
	ErrExpiredToken     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrWrongAudience    = errors.New("wrong token audience")
	ErrMalformedToken   = errors.New("malformed token")
	ErrWrongTokenType   = errors.New("wrong token type")
	ErrInvalidToken     = errors.New("invalid token")
	ErrSharedKey        = errors.New("access and refresh keys must differ")
)

// mapParseError reduce los errores de jwtv5 a la taxonomía del paquete.
// La firma se verifica antes que los claims, así que un token expirado
// y mal firmado reporta firma inválida.
func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwtv5.ErrTokenMalformed):
		return ErrMalformedToken
	case errors.Is(err, jwtv5.ErrTokenSignatureInvalid), errors.Is(err, jwtv5.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwtv5.ErrTokenExpired):
		return ErrExpiredToken
	case errors.Is(err, jwtv5.ErrTokenInvalidAudience):
		return ErrWrongAudience
	}
	return fmt.Errorf("%w: %v", ErrInvalidToken, err)
}
