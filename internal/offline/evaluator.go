// Package offline evalúa un access token sin conectividad.
//
// En modo offline la edad del token (now - iat) es el chequeo que manda:
// se acepta hasta MaxAge aunque su exp ya haya pasado, y a partir de
// ReverifyAfter se marca NeedsOnlineVerification para que el cliente
// intente un refresh cuando vuelva la red. El exp embebido es informativo.
package offline

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/dropDatabas3/ciciauth/internal/jwt"
)

const (
	DefaultMaxAge        = 21 * 24 * time.Hour
	DefaultReverifyAfter = 24 * time.Hour
	// clockSkew tolera relojes de dispositivo levemente adelantados al server.
	clockSkew = 5 * time.Minute
)

// Reason explica el resultado.
type Reason string

const (
	ReasonOK             Reason = "ok"
	ReasonMalformed      Reason = "malformed"
	ReasonBadSignature   Reason = "bad_signature"
	ReasonWrongType      Reason = "wrong_type"
	ReasonNoIssuedAt     Reason = "missing_issued_at"
	ReasonIssuedInFuture Reason = "issued_in_future"
	ReasonTooOld         Reason = "too_old"
)

// Result es el veredicto offline.
type Result struct {
	Valid                   bool              `json:"valid"`
	Reason                  Reason            `json:"reason"`
	Claims                  *jwt.AccessClaims `json:"-"`
	NeedsOnlineVerification bool              `json:"needsOnlineVerification"`
	TokenAge                time.Duration     `json:"-"`
	// EmbeddedExpired reporta si el exp del token ya pasó (solo informativo).
	EmbeddedExpired bool `json:"embeddedExpired"`
}

type Evaluator struct {
	MaxAge        time.Duration
	ReverifyAfter time.Duration
	// Keys, si no es vacío, exige firma válida (JWKS de access cacheado).
	Keys map[string]ed25519.PublicKey
	Now  func() time.Time
}

// New crea un evaluador con los umbrales por defecto.
func New(now func() time.Time) *Evaluator {
	if now == nil {
		now = time.Now
	}
	return &Evaluator{MaxAge: DefaultMaxAge, ReverifyAfter: DefaultReverifyAfter, Now: now}
}

// Validate decodifica y juzga el token.
func (e *Evaluator) Validate(token string) Result {
	claims, err := e.decode(token)
	if err != nil {
		if errors.Is(err, jwt.ErrInvalidSignature) {
			return Result{Reason: ReasonBadSignature}
		}
		return Result{Reason: ReasonMalformed}
	}
	if claims.Type != "" && claims.Type != jwt.TypeAccess {
		return Result{Reason: ReasonWrongType}
	}
	if claims.IssuedAt == nil {
		return Result{Reason: ReasonNoIssuedAt}
	}

	now := e.now()
	age := now.Sub(claims.IssuedAt.Time)
	if age < -clockSkew {
		return Result{Reason: ReasonIssuedInFuture, TokenAge: age}
	}
	if age > e.maxAge() {
		return Result{Reason: ReasonTooOld, TokenAge: age}
	}
	return Result{
		Valid:                   true,
		Reason:                  ReasonOK,
		Claims:                  claims,
		NeedsOnlineVerification: age > e.reverifyAfter(),
		TokenAge:                age,
		EmbeddedExpired:         claims.ExpiresAt != nil && now.After(claims.ExpiresAt.Time),
	}
}

// Decode retorna los claims sin juzgar edad ni tipo. Con Keys exige firma válida.
func (e *Evaluator) Decode(token string) (*jwt.AccessClaims, error) {
	return e.decode(token)
}

func (e *Evaluator) decode(token string) (*jwt.AccessClaims, error) {
	if len(e.Keys) > 0 {
		return jwt.VerifySignatureOnly(token, e.Keys)
	}
	return jwt.DecodeUnsafe(token)
}

func (e *Evaluator) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Evaluator) maxAge() time.Duration {
	if e.MaxAge <= 0 {
		return DefaultMaxAge
	}
	return e.MaxAge
}

func (e *Evaluator) reverifyAfter() time.Duration {
	if e.ReverifyAfter <= 0 {
		return DefaultReverifyAfter
	}
	return e.ReverifyAfter
}
