// Package bootstrap crea y promueve cuentas con roles privilegiados desde la
// CLI. El registro público siempre crea rol user; admin, moderator, parent y
// guardian se asignan acá.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/ciciauth/internal/audit"
	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/domain/types"
	"github.com/dropDatabas3/ciciauth/internal/observability/logger"
	"github.com/dropDatabas3/ciciauth/internal/security/password"
)

var (
	// ErrRoleNotAssignable: child se asigna solo vía grupo familiar.
	ErrRoleNotAssignable = errors.New("role cannot be assigned")
	ErrWeakPassword      = errors.New("password rejected by policy")
	ErrInvalidInput      = errors.New("invalid input")
	// ErrMinor: un menor solo puede tener rol user.
	ErrMinor = errors.New("minors can only hold the user role")
)

// Assignable reporta si el rol se puede asignar por CLI.
func Assignable(r types.Role) bool {
	switch r {
	case types.RoleUser, types.RoleAdmin, types.RoleModerator, types.RoleParent, types.RoleGuardian:
		return true
	}
	return false
}

type Deps struct {
	Identities repository.IdentityRepository
	Hasher     *password.Hasher
	Policy     password.Policy
	Now        func() time.Time
}

// Users opera cuentas fuera del flujo HTTP.
type Users struct {
	deps Deps
}

func NewUsers(d Deps) *Users {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Users{deps: d}
}

// CreateInput son los datos de una cuenta nueva.
type CreateInput struct {
	Username string
	Email    string
	Password string
	Role     types.Role
}

// Create inserta una cuenta activa, con email verificado y el rol pedido.
func (u *Users) Create(ctx context.Context, in CreateInput) (*repository.Identity, error) {
	ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.Layer("bootstrap"), logger.Component("users"), logger.Op("Create")))

	if !Assignable(in.Role) {
		return nil, fmt.Errorf("%w: %q", ErrRoleNotAssignable, in.Role)
	}
	username := strings.TrimSpace(in.Username)
	email := repository.NormalizeEmail(in.Email)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if ok, reasons := u.deps.Policy.Validate(in.Password); !ok {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, strings.Join(reasons, ","))
	}
	hash, err := u.deps.Hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := u.deps.Now().UTC()
	ident := &repository.Identity{
		ID:            uuid.NewString(),
		Username:      username,
		Email:         email,
		PasswordHash:  &hash,
		Status:        types.StatusActive,
		Role:          in.Role,
		EmailVerified: true,
		Permissions:   types.DefaultAccountPermissions(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := u.deps.Identities.Create(ctx, ident); err != nil {
		return nil, err
	}
	audit.Log(ctx, audit.RoleAssigned, logger.UserID(ident.ID), logger.Email(ident.Email), logger.Role(string(ident.Role)))
	return ident, nil
}

// SetRole cambia el rol de una cuenta existente (por email o username).
func (u *Users) SetRole(ctx context.Context, login string, role types.Role) (*repository.Identity, error) {
	ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.Layer("bootstrap"), logger.Component("users"), logger.Op("SetRole")))

	if !Assignable(role) {
		return nil, fmt.Errorf("%w: %q", ErrRoleNotAssignable, role)
	}
	found, err := u.deps.Identities.GetByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		return nil, err
	}
	var prev types.Role
	ident, err := u.deps.Identities.Update(ctx, found.ID, func(i *repository.Identity) error {
		if i.Status == types.StatusDeleted {
			return repository.ErrNotFound
		}
		if i.IsMinor && role != types.RoleUser {
			return ErrMinor
		}
		prev = i.Role
		i.Role = role
		i.UpdatedAt = u.deps.Now().UTC()
		return nil
	})
	if err != nil {
		return nil, err
	}
	audit.Log(ctx, audit.RoleAssigned, logger.UserID(ident.ID), logger.Role(string(role)), logger.String("previous_role", string(prev)))
	return ident, nil
}
