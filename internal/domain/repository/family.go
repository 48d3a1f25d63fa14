package repository

import (
	"context"
	"time"

	"github.com/dropDatabas3/ciciauth/internal/domain/types"
)

// FamilyGroup es un grupo familiar. Invariante: exactamente un creador,
// y el creador es miembro.
type FamilyGroup struct {
	ID          string
	Name        string
	Description string
	CreatorID   string
	Members     []FamilyMember
	Settings    FamilySettings
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FamilyMember es la pertenencia de una identidad al grupo.
type FamilyMember struct {
	UserID      string             `json:"userId"`
	Role        types.FamilyRole   `json:"role"`
	Permissions []types.Permission `json:"permissions,omitempty"`
	Active      bool               `json:"isActive"`
	JoinedAt    time.Time          `json:"joinedAt"`
}

// FamilySettings son las restricciones configuradas por los adultos del grupo.
type FamilySettings struct {
	AllowedActivities       []string `json:"allowedActivities"`
	RequireParentalApproval bool     `json:"requireParentalApproval"`
	MaxScreenTimeMinutes    int      `json:"maxScreenTime"`
	// BedtimeHour/WakeHour delimitan la ventana [bedtime, wake) en hora local.
	BedtimeHour int    `json:"bedtimeHour"`
	WakeHour    int    `json:"wakeHour"`
	Timezone    string `json:"timezone,omitempty"`
}

// Member retorna el miembro con ese userID.
func (g *FamilyGroup) Member(userID string) (*FamilyMember, bool) {
	for k := range g.Members {
		if g.Members[k].UserID == userID {
			return &g.Members[k], true
		}
	}
	return nil, false
}

// Clone retorna una copia profunda.
func (g *FamilyGroup) Clone() *FamilyGroup {
	if g == nil {
		return nil
	}
	c := *g
	c.Members = make([]FamilyMember, len(g.Members))
	for k, m := range g.Members {
		m.Permissions = append([]types.Permission(nil), m.Permissions...)
		c.Members[k] = m
	}
	c.Settings.AllowedActivities = append([]string(nil), g.Settings.AllowedActivities...)
	return &c
}

// FamilyRepository persiste grupos familiares.
type FamilyRepository interface {
	GetByID(ctx context.Context, id string) (*FamilyGroup, error)
	Create(ctx context.Context, g *FamilyGroup) error
	// Update es un read-modify-write atómico, igual que IdentityRepository.Update.
	Update(ctx context.Context, id string, fn func(*FamilyGroup) error) (*FamilyGroup, error)
	Delete(ctx context.Context, id string) error
}
