package credentials

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials cubre login desconocido y secreto incorrecto por igual.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked")
	ErrEmailUnverified    = errors.New("email not verified")
	ErrAccountSuspended   = errors.New("account suspended")
)

// LockedError lleva el tiempo restante del bloqueo.
type LockedError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked for %s", e.Remaining.Round(time.Second))
}

func (e *LockedError) Is(target error) bool { return target == ErrAccountLocked }
