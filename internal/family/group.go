package family

import (
	"errors"
	"time"

	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/domain/types"
)

var (
	ErrNotMember          = errors.New("not a family member")
	ErrAlreadyMember      = errors.New("already a family member")
	ErrCreatorCannotLeave = errors.New("creator cannot be removed; transfer first")
	ErrInvalidRole        = errors.New("invalid family role")
	ErrInvalidPermission  = errors.New("invalid family permission")
	ErrTransferTarget     = errors.New("creator transfer requires an active adult member")
	ErrInvalidSettings    = errors.New("invalid family settings")
)

// DefaultAllowedActivities son las categorías habilitadas en grupos nuevos.
var DefaultAllowedActivities = []string{"sports", "education", "entertainment", "social", "outdoor"}

// DefaultSettings retorna la configuración de un grupo nuevo.
func DefaultSettings(bedtimeHour, wakeHour int, tz string) repository.FamilySettings {
	return repository.FamilySettings{
		AllowedActivities:       append([]string(nil), DefaultAllowedActivities...),
		RequireParentalApproval: true,
		MaxScreenTimeMinutes:    120,
		BedtimeHour:             bedtimeHour,
		WakeHour:                wakeHour,
		Timezone:                tz,
	}
}

// NewGroup arma un grupo con el creador como primer miembro (parent/guardian).
func NewGroup(id, name, description, creatorID string, creatorRole types.FamilyRole, settings repository.FamilySettings, now time.Time) (*repository.FamilyGroup, error) {
	if !creatorRole.IsAdult() {
		return nil, ErrInvalidRole
	}
	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	return &repository.FamilyGroup{
		ID:          id,
		Name:        name,
		Description: description,
		CreatorID:   creatorID,
		Members: []repository.FamilyMember{{
			UserID:   creatorID,
			Role:     creatorRole,
			Active:   true,
			JoinedAt: now,
		}},
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// AddMember agrega un miembro activo.
func AddMember(g *repository.FamilyGroup, userID string, role types.FamilyRole, perms []types.Permission, now time.Time) error {
	if !role.IsValid() {
		return ErrInvalidRole
	}
	if err := validatePermissions(perms); err != nil {
		return err
	}
	if m, ok := g.Member(userID); ok {
		if m.Active {
			return ErrAlreadyMember
		}
		// Reingreso de un miembro desactivado.
		m.Role = role
		m.Permissions = dedupe(perms)
		m.Active = true
		m.JoinedAt = now
		return nil
	}
	g.Members = append(g.Members, repository.FamilyMember{
		UserID:      userID,
		Role:        role,
		Permissions: dedupe(perms),
		Active:      true,
		JoinedAt:    now,
	})
	return nil
}

// RemoveMember saca al miembro. El creador no puede salir sin transferir.
func RemoveMember(g *repository.FamilyGroup, userID string) error {
	if userID == g.CreatorID {
		return ErrCreatorCannotLeave
	}
	for k := range g.Members {
		if g.Members[k].UserID == userID {
			g.Members = append(g.Members[:k], g.Members[k+1:]...)
			return nil
		}
	}
	return ErrNotMember
}

// SetPermissions reemplaza los permisos explícitos del miembro.
func SetPermissions(g *repository.FamilyGroup, userID string, perms []types.Permission) error {
	if err := validatePermissions(perms); err != nil {
		return err
	}
	m, ok := g.Member(userID)
	if !ok {
		return ErrNotMember
	}
	m.Permissions = dedupe(perms)
	return nil
}

// SetRole cambia el rol de un miembro. El creador debe seguir siendo adulto.
func SetRole(g *repository.FamilyGroup, userID string, role types.FamilyRole) error {
	if !role.IsValid() {
		return ErrInvalidRole
	}
	m, ok := g.Member(userID)
	if !ok {
		return ErrNotMember
	}
	if userID == g.CreatorID && !role.IsAdult() {
		return ErrInvalidRole
	}
	m.Role = role
	return nil
}

// TransferCreator pasa la titularidad a otro miembro adulto activo.
func TransferCreator(g *repository.FamilyGroup, toUserID string) error {
	m, ok := g.Member(toUserID)
	if !ok {
		return ErrNotMember
	}
	if !m.Active || !m.Role.IsAdult() {
		return ErrTransferTarget
	}
	g.CreatorID = toUserID
	return nil
}

// ValidateSettings chequea rangos de la configuración.
func ValidateSettings(s repository.FamilySettings) error {
	if s.BedtimeHour < 0 || s.BedtimeHour > 23 || s.WakeHour < 0 || s.WakeHour > 23 {
		return ErrInvalidSettings
	}
	if s.MaxScreenTimeMinutes < 0 || s.MaxScreenTimeMinutes > 24*60 {
		return ErrInvalidSettings
	}
	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return ErrInvalidSettings
		}
	}
	return nil
}

// CheckInvariants valida: un creador, que es miembro activo y adulto.
func CheckInvariants(g *repository.FamilyGroup) error {
	m, ok := g.Member(g.CreatorID)
	if !ok || !m.Active || !m.Role.IsAdult() {
		return ErrTransferTarget
	}
	seen := make(map[string]struct{}, len(g.Members))
	for _, mm := range g.Members {
		if _, dup := seen[mm.UserID]; dup {
			return ErrAlreadyMember
		}
		seen[mm.UserID] = struct{}{}
	}
	return nil
}

func validatePermissions(perms []types.Permission) error {
	for _, p := range perms {
		if !p.IsValid() {
			return ErrInvalidPermission
		}
	}
	return nil
}

func dedupe(perms []types.Permission) []types.Permission {
	if len(perms) == 0 {
		return nil
	}
	out := make([]types.Permission, 0, len(perms))
	seen := map[types.Permission]bool{}
	for _, p := range perms {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
