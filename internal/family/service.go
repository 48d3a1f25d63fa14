package family

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/ciciauth/internal/audit"
	"github.com/dropDatabas3/ciciauth/internal/cache"
	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/domain/types"
	"github.com/dropDatabas3/ciciauth/internal/observability/logger"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotCreator       = errors.New("only the family creator can do this")
	ErrAlreadyInGroup   = errors.New("identity already belongs to a family group")
	ErrInvalidName      = errors.New("family name is required")
)

// PermissionError lleva el permiso (o rol) requerido para el mensaje al cliente.
type PermissionError struct {
	Required string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s: requires %s", ErrPermissionDenied.Error(), e.Required)
}

func (e *PermissionError) Is(target error) bool { return target == ErrPermissionDenied }

type Deps struct {
	Families   repository.FamilyRepository
	Identities repository.IdentityRepository
	// Cache es opcional; nil = sin cache.
	Cache    cache.Client
	CacheTTL time.Duration
	// Defaults para grupos nuevos.
	BedtimeHour int
	WakeHour    int
	Timezone    string
	Now         func() time.Time
}

type Service struct {
	deps Deps
}

func NewService(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{deps: d}
}

// CreateInput son los datos para crear un grupo.
type CreateInput struct {
	Name        string
	Description string
	Settings    *repository.FamilySettings
}

// AddMemberInput describe un miembro nuevo.
type AddMemberInput struct {
	UserID      string
	Role        types.FamilyRole
	Permissions []types.Permission
}

func cacheKey(groupID string) string { return "family:" + groupID }

// Create crea el grupo con el actor como creador. El actor debe ser adulto
// (rol user, parent o guardian) y no pertenecer a otro grupo; un user queda
// promovido a parent.
func (s *Service) Create(ctx context.Context, actorID string, in CreateInput) (*repository.FamilyGroup, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("family"), logger.Op("Create"))

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidName
	}
	actor, err := s.deps.Identities.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	role, ok := familyRoleFor(actor.Role)
	if !ok || !role.IsAdult() || actor.IsMinor {
		return nil, &PermissionError{Required: "role:parent|guardian"}
	}
	if actor.FamilyGroupID != nil {
		return nil, ErrAlreadyInGroup
	}

	settings := DefaultSettings(s.deps.BedtimeHour, s.deps.WakeHour, s.deps.Timezone)
	if in.Settings != nil {
		settings = *in.Settings
	}
	g, err := NewGroup(uuid.NewString(), name, strings.TrimSpace(in.Description), actorID, role, settings, s.deps.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.deps.Families.Create(ctx, g); err != nil {
		return nil, err
	}
	gid := g.ID
	if _, err := s.deps.Identities.Update(ctx, actorID, func(i *repository.Identity) error {
		if i.FamilyGroupID != nil {
			return ErrAlreadyInGroup
		}
		i.FamilyGroupID = &gid
		if i.Role == types.RoleUser {
			i.Role = types.RoleParent
		}
		return nil
	}); err != nil {
		// Compensación: el grupo no puede quedar sin creador vinculado.
		if derr := s.deps.Families.Delete(ctx, gid); derr != nil {
			log.Error("rollback of family group failed", logger.FamilyID(gid), logger.Err(derr))
		}
		return nil, err
	}
	log.Info("family group created", logger.FamilyID(gid), logger.UserID(actorID))
	return g, nil
}

// Get retorna el grupo; solo miembros pueden verlo.
func (s *Service) Get(ctx context.Context, actorID, groupID string) (*repository.FamilyGroup, error) {
	g, err := s.load(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if _, ok := g.Member(actorID); !ok {
		return nil, &PermissionError{Required: "membership"}
	}
	return g, nil
}

// HasPermission evalúa el permiso efectivo del usuario en el grupo.
func (s *Service) HasPermission(ctx context.Context, groupID, userID string, p types.Permission) (bool, error) {
	g, err := s.load(ctx, groupID)
	if err != nil {
		return false, err
	}
	return MemberHasPermission(g, userID, p), nil
}

// AddMember agrega una identidad existente al grupo (requiere manage_family).
// Un child sin padre vinculado queda vinculado al actor.
func (s *Service) AddMember(ctx context.Context, actorID, groupID string, in AddMemberInput) (*repository.FamilyGroup, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("family"), logger.Op("AddMember"))

	target, err := s.deps.Identities.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if target.Status == types.StatusDeleted {
		return nil, repository.ErrNotFound
	}
	if target.FamilyGroupID != nil && *target.FamilyGroupID != groupID {
		return nil, ErrAlreadyInGroup
	}

	now := s.deps.Now().UTC()
	g, err := s.mutate(ctx, groupID, func(g *repository.FamilyGroup) error {
		if err := requirePerm(g, actorID, types.PermManageFamily); err != nil {
			return err
		}
		return AddMember(g, in.UserID, in.Role, in.Permissions, now)
	})
	if err != nil {
		return nil, err
	}

	gid := groupID
	if _, err := s.deps.Identities.Update(ctx, in.UserID, func(i *repository.Identity) error {
		i.FamilyGroupID = &gid
		if in.Role == types.FamilyChild && i.ParentID == nil {
			parent := actorID
			i.ParentID = &parent
		}
		return nil
	}); err != nil {
		log.Warn("member linkage update failed", logger.FamilyID(groupID), logger.UserID(in.UserID), logger.Err(err))
	}
	audit.Log(ctx, audit.FamilyMemberAdded, logger.FamilyID(groupID), logger.UserID(in.UserID), logger.Role(string(in.Role)))
	return g, nil
}

// RemoveMember saca un miembro. El propio miembro puede salir; para sacar a
// otro se requiere manage_family. El creador nunca se puede sacar.
func (s *Service) RemoveMember(ctx context.Context, actorID, groupID, userID string) (*repository.FamilyGroup, error) {
	ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.Layer("service"), logger.Component("family"), logger.Op("RemoveMember")))

	g, err := s.mutate(ctx, groupID, func(g *repository.FamilyGroup) error {
		if actorID != userID {
			if err := requirePerm(g, actorID, types.PermManageFamily); err != nil {
				return err
			}
		}
		return RemoveMember(g, userID)
	})
	if err != nil {
		return nil, err
	}
	s.unlink(ctx, userID, groupID)
	audit.Log(ctx, audit.FamilyMemberRemoved, logger.FamilyID(groupID), logger.UserID(userID))
	return g, nil
}

// SetMemberPermissions reemplaza los permisos explícitos (requiere manage_family).
func (s *Service) SetMemberPermissions(ctx context.Context, actorID, groupID, userID string, perms []types.Permission) (*repository.FamilyGroup, error) {
	g, err := s.mutate(ctx, groupID, func(g *repository.FamilyGroup) error {
		if err := requirePerm(g, actorID, types.PermManageFamily); err != nil {
			return err
		}
		return SetPermissions(g, userID, perms)
	})
	if err != nil {
		return nil, err
	}
	audit.Log(ctx, audit.FamilyPermissions, logger.FamilyID(groupID), logger.UserID(userID), logger.Count(len(perms)))
	return g, nil
}

// UpdateSettings reemplaza la configuración (requiere set_restrictions).
func (s *Service) UpdateSettings(ctx context.Context, actorID, groupID string, settings repository.FamilySettings) (*repository.FamilyGroup, error) {
	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	return s.mutate(ctx, groupID, func(g *repository.FamilyGroup) error {
		if err := requirePerm(g, actorID, types.PermSetRestrictions); err != nil {
			return err
		}
		g.Settings = settings
		return nil
	})
}

// TransferCreator pasa la titularidad; solo el creador actual.
func (s *Service) TransferCreator(ctx context.Context, actorID, groupID, toUserID string) (*repository.FamilyGroup, error) {
	g, err := s.mutate(ctx, groupID, func(g *repository.FamilyGroup) error {
		if g.CreatorID != actorID {
			return ErrNotCreator
		}
		return TransferCreator(g, toUserID)
	})
	if err != nil {
		return nil, err
	}
	audit.Log(ctx, audit.FamilyTransferred, logger.FamilyID(groupID), logger.UserID(toUserID))
	return g, nil
}

// Delete borra el grupo (solo el creador) y limpia el vínculo de los miembros.
func (s *Service) Delete(ctx context.Context, actorID, groupID string) error {
	g, err := s.deps.Families.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g.CreatorID != actorID {
		return ErrNotCreator
	}
	return s.deleteCascade(ctx, g)
}

// DetachIdentity aplica la cascada de baja de cuenta: si la identidad es la
// creadora se borra el grupo, si no se la saca del grupo.
func (s *Service) DetachIdentity(ctx context.Context, identityID, groupID string) error {
	g, err := s.deps.Families.GetByID(ctx, groupID)
	if repository.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if g.CreatorID == identityID {
		return s.deleteCascade(ctx, g)
	}
	_, err = s.mutate(ctx, groupID, func(g *repository.FamilyGroup) error {
		err := RemoveMember(g, identityID)
		if errors.Is(err, ErrNotMember) {
			return nil
		}
		return err
	})
	return err
}

// SettingsFor retorna la configuración del grupo de la identidad, o nil si
// no pertenece a ninguno.
func (s *Service) SettingsFor(ctx context.Context, familyGroupID *string) (*repository.FamilySettings, error) {
	if familyGroupID == nil || *familyGroupID == "" {
		return nil, nil
	}
	g, err := s.load(ctx, *familyGroupID)
	if repository.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st := g.Settings
	return &st, nil
}

// ─── internos ───

func (s *Service) deleteCascade(ctx context.Context, g *repository.FamilyGroup) error {
	ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.Layer("service"), logger.Component("family"), logger.Op("Delete")))
	if err := s.deps.Families.Delete(ctx, g.ID); err != nil {
		return err
	}
	s.invalidate(ctx, g.ID)
	for _, m := range g.Members {
		s.unlink(ctx, m.UserID, g.ID)
	}
	audit.Log(ctx, audit.FamilyDeleted, logger.FamilyID(g.ID), logger.Count(len(g.Members)))
	return nil
}

// unlink limpia FamilyGroupID si todavía apunta al grupo. Best effort.
func (s *Service) unlink(ctx context.Context, userID, groupID string) {
	_, err := s.deps.Identities.Update(ctx, userID, func(i *repository.Identity) error {
		if i.FamilyGroupID != nil && *i.FamilyGroupID == groupID {
			i.FamilyGroupID = nil
		}
		return nil
	})
	if err != nil && !repository.IsNotFound(err) {
		logger.From(ctx).Warn("family unlink failed", logger.FamilyID(groupID), logger.UserID(userID), logger.Err(err))
	}
}

func (s *Service) mutate(ctx context.Context, groupID string, fn func(*repository.FamilyGroup) error) (*repository.FamilyGroup, error) {
	now := s.deps.Now().UTC()
	g, err := s.deps.Families.Update(ctx, groupID, func(g *repository.FamilyGroup) error {
		if err := fn(g); err != nil {
			return err
		}
		if err := CheckInvariants(g); err != nil {
			return err
		}
		g.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, groupID)
	return g, nil
}

func (s *Service) load(ctx context.Context, groupID string) (*repository.FamilyGroup, error) {
	if s.deps.Cache != nil {
		var g repository.FamilyGroup
		hit, err := cache.GetJSON(ctx, s.deps.Cache, cacheKey(groupID), &g)
		if err != nil {
			logger.From(ctx).Debug("family cache read failed", logger.FamilyID(groupID), logger.Err(err))
		}
		if hit {
			return &g, nil
		}
	}
	g, err := s.deps.Families.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if s.deps.Cache != nil {
		if err := cache.SetJSON(ctx, s.deps.Cache, cacheKey(groupID), g, s.deps.CacheTTL); err != nil {
			logger.From(ctx).Debug("family cache write failed", logger.FamilyID(groupID), logger.Err(err))
		}
	}
	return g, nil
}

func (s *Service) invalidate(ctx context.Context, groupID string) {
	if s.deps.Cache == nil {
		return
	}
	if err := s.deps.Cache.Delete(ctx, cacheKey(groupID)); err != nil {
		logger.From(ctx).Warn("family cache invalidation failed", logger.FamilyID(groupID), logger.Err(err))
	}
}

func requirePerm(g *repository.FamilyGroup, actorID string, p types.Permission) error {
	if !MemberHasPermission(g, actorID, p) {
		return &PermissionError{Required: string(p)}
	}
	return nil
}

// familyRoleFor mapea el rol de cuenta al rol familiar del creador.
func familyRoleFor(r types.Role) (types.FamilyRole, bool) {
	switch r {
	case types.RoleUser, types.RoleParent:
		return types.FamilyParent, true
	case types.RoleGuardian:
		return types.FamilyGuardian, true
	case types.RoleChild:
		return types.FamilyChild, true
	}
	return "", false
}
