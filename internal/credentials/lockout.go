package credentials

import (
	"time"

	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
)

// LockoutPolicy: MaxAttempts fallos consecutivos bloquean la cuenta por Duration.
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

// DefaultLockout: 5 intentos, 2 horas.
var DefaultLockout = LockoutPolicy{MaxAttempts: 5, Duration: 2 * time.Hour}

// IsLocked reporta si el bloqueo sigue vigente en now.
func (p LockoutPolicy) IsLocked(i *repository.Identity, now time.Time) bool {
	return i.LockUntil != nil && i.LockUntil.After(now)
}

// RegisterFailure aplica un intento fallido:
//   - bloqueo vencido: el contador arranca de nuevo en 1 y se limpia el bloqueo
//   - bloqueo vigente: no se incrementa
//   - al llegar a MaxAttempts se fija LockUntil = now + Duration
//
// Retorna true si este fallo activó el bloqueo.
func (p LockoutPolicy) RegisterFailure(i *repository.Identity, now time.Time) bool {
	if p.IsLocked(i, now) {
		return false
	}
	if i.LockUntil != nil {
		i.LockUntil = nil
		i.FailedAttempts = 1
		return false
	}
	i.FailedAttempts++
	if i.FailedAttempts >= p.MaxAttempts {
		until := now.Add(p.Duration)
		i.LockUntil = &until
		return true
	}
	return false
}

// RegisterSuccess limpia contador y bloqueo.
func (p LockoutPolicy) RegisterSuccess(i *repository.Identity) {
	i.FailedAttempts = 0
	i.LockUntil = nil
}
