// Package credentials valida login+secreto y administra el bloqueo por
// intentos fallidos. Todas las escrituras del contador pasan por
// IdentityRepository.Update, así que requests concurrentes no pierden fallos.
package credentials

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dropDatabas3/ciciauth/internal/audit"
	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/domain/types"
	"github.com/dropDatabas3/ciciauth/internal/observability/logger"
	"github.com/dropDatabas3/ciciauth/internal/security/password"
)

// Hooks reciben eventos para métricas; cualquiera puede ser nil.
type Hooks struct {
	OnFailure func()
	OnLocked  func()
}

// Deps del Controller.
type Deps struct {
	Identities repository.IdentityRepository
	Hasher     *password.Hasher
	Policy     LockoutPolicy
	Now        func() time.Time
	Hooks      Hooks
}

type Controller struct {
	deps Deps
}

func NewController(d Deps) *Controller {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Policy.MaxAttempts <= 0 {
		d.Policy = DefaultLockout
	}
	return &Controller{deps: d}
}

// Verify retorna la identidad si login+secreto son correctos.
//
// Errores: ErrInvalidCredentials, *LockedError (Is ErrAccountLocked),
// ErrEmailUnverified, ErrAccountSuspended.
func (c *Controller) Verify(ctx context.Context, login, secret string) (*repository.Identity, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("credentials"), logger.Op("Verify"))

	login = strings.TrimSpace(login)
	if login == "" || secret == "" {
		return nil, ErrInvalidCredentials
	}

	ident, err := c.deps.Identities.GetByLogin(ctx, login)
	if err != nil {
		if repository.IsNotFound(err) {
			// Mismo costo que un login existente.
			c.deps.Hasher.VerifyDummy(secret)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if ident.Status == types.StatusDeleted || ident.Status == types.StatusInactive {
		c.deps.Hasher.VerifyDummy(secret)
		return nil, ErrInvalidCredentials
	}

	now := c.deps.Now()
	if c.deps.Policy.IsLocked(ident, now) {
		log.Info("login rejected: locked", logger.UserID(ident.ID))
		return nil, &LockedError{Until: *ident.LockUntil, Remaining: ident.LockUntil.Sub(now)}
	}

	if !ident.HasPassword() || !c.deps.Hasher.Verify(secret, *ident.PasswordHash) {
		if !ident.HasPassword() {
			c.deps.Hasher.VerifyDummy(secret)
		}
		if err := c.recordFailure(ctx, ident.ID, now); err != nil {
			if errors.Is(err, ErrAccountLocked) {
				return nil, err
			}
			log.Warn("failed to record login failure", logger.UserID(ident.ID), logger.Err(err))
		}
		return nil, ErrInvalidCredentials
	}

	rehash := c.deps.Hasher.NeedsRehash(*ident.PasswordHash)
	var newHash string
	if rehash {
		if h, err := c.deps.Hasher.Hash(secret); err == nil {
			newHash = h
		}
	}
	if ident.FailedAttempts != 0 || ident.LockUntil != nil || newHash != "" {
		updated, err := c.deps.Identities.Update(ctx, ident.ID, func(i *repository.Identity) error {
			c.deps.Policy.RegisterSuccess(i)
			if newHash != "" {
				i.PasswordHash = &newHash
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		ident = updated
	}

	if ident.Status == types.StatusSuspended {
		return nil, ErrAccountSuspended
	}
	if ident.External == nil && !ident.EmailVerified {
		return nil, ErrEmailUnverified
	}
	return ident, nil
}

// recordFailure aplica el fallo sobre la versión actual del documento.
// Si otro request activó el bloqueo entre la lectura y esta escritura,
// retorna *LockedError sin incrementar.
func (c *Controller) recordFailure(ctx context.Context, id string, now time.Time) error {
	var (
		locked    bool
		lockedErr *LockedError
	)
	_, err := c.deps.Identities.Update(ctx, id, func(i *repository.Identity) error {
		if c.deps.Policy.IsLocked(i, now) {
			lockedErr = &LockedError{Until: *i.LockUntil, Remaining: i.LockUntil.Sub(now)}
			return lockedErr
		}
		locked = c.deps.Policy.RegisterFailure(i, now)
		return nil
	})
	if lockedErr != nil {
		return lockedErr
	}
	if err != nil {
		return err
	}
	if c.deps.Hooks.OnFailure != nil {
		c.deps.Hooks.OnFailure()
	}
	if locked {
		audit.Log(ctx, audit.AccountLocked, logger.UserID(id), logger.Component("credentials"))
		if c.deps.Hooks.OnLocked != nil {
			c.deps.Hooks.OnLocked()
		}
	}
	return nil
}
