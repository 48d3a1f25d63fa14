// Package family contiene los DTOs de /v1/families.
package family

import (
	"time"

	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/domain/types"
	fam "github.com/dropDatabas3/ciciauth/internal/family"
)

// CreateRequest es el body de POST /v1/families.
type CreateRequest struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	Settings    *repository.FamilySettings `json:"settings,omitempty"`
}

type AddMemberRequest struct {
	UserID      string   `json:"userId"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions,omitempty"`
}

type SetPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// SettingsPatch: los campos ausentes conservan su valor.
type SettingsPatch struct {
	AllowedActivities       *[]string `json:"allowedActivities,omitempty"`
	RequireParentalApproval *bool     `json:"requireParentalApproval,omitempty"`
	MaxScreenTimeMinutes    *int      `json:"maxScreenTime,omitempty"`
	BedtimeHour             *int      `json:"bedtimeHour,omitempty"`
	WakeHour                *int      `json:"wakeHour,omitempty"`
	Timezone                *string   `json:"timezone,omitempty"`
}

// Apply retorna una copia de cur con los campos presentes del patch.
func (p SettingsPatch) Apply(cur repository.FamilySettings) repository.FamilySettings {
	if p.AllowedActivities != nil {
		cur.AllowedActivities = append([]string(nil), (*p.AllowedActivities)...)
	}
	if p.RequireParentalApproval != nil {
		cur.RequireParentalApproval = *p.RequireParentalApproval
	}
	if p.MaxScreenTimeMinutes != nil {
		cur.MaxScreenTimeMinutes = *p.MaxScreenTimeMinutes
	}
	if p.BedtimeHour != nil {
		cur.BedtimeHour = *p.BedtimeHour
	}
	if p.WakeHour != nil {
		cur.WakeHour = *p.WakeHour
	}
	if p.Timezone != nil {
		cur.Timezone = *p.Timezone
	}
	return cur
}

type TransferRequest struct {
	UserID string `json:"userId"`
}

// Member incluye los permisos efectivos (implícitos del rol + explícitos).
type Member struct {
	UserID               string             `json:"userId"`
	Role                 types.FamilyRole   `json:"role"`
	Permissions          []types.Permission `json:"permissions"`
	EffectivePermissions []types.Permission `json:"effectivePermissions"`
	Active               bool               `json:"isActive"`
	IsCreator            bool               `json:"isCreator"`
	JoinedAt             time.Time          `json:"joinedAt"`
}

type Group struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	Description string                    `json:"description,omitempty"`
	CreatorID   string                    `json:"creatorId"`
	Members     []Member                  `json:"members"`
	Settings    repository.FamilySettings `json:"settings"`
	CreatedAt   time.Time                 `json:"createdAt"`
	UpdatedAt   time.Time                 `json:"updatedAt"`
}

// PermissionCheck es la respuesta de GET /v1/families/{id}/permissions/check.
type PermissionCheck struct {
	UserID     string `json:"userId"`
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}

// ToGroup arma la vista pública del grupo.
func ToGroup(g *repository.FamilyGroup) Group {
	out := Group{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		CreatorID:   g.CreatorID,
		Members:     make([]Member, 0, len(g.Members)),
		Settings:    g.Settings,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
	for k := range g.Members {
		m := &g.Members[k]
		perms := m.Permissions
		if perms == nil {
			perms = []types.Permission{}
		}
		out.Members = append(out.Members, Member{
			UserID:               m.UserID,
			Role:                 m.Role,
			Permissions:          perms,
			EffectivePermissions: fam.EffectivePermissions(m),
			Active:               m.Active,
			IsCreator:            m.UserID == g.CreatorID,
			JoinedAt:             m.JoinedAt,
		})
	}
	return out
}

// Permissions convierte los strings del request.
func Permissions(in []string) []types.Permission {
	out := make([]types.Permission, 0, len(in))
	for _, p := range in {
		out = append(out, types.Permission(p))
	}
	return out
}
