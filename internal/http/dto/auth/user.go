package auth

import (
	"time"

	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
)

// User es la vista segura de una identidad: sin hash, contadores de
// lockout ni jti de devices.
type User struct {
	ID            string             `json:"id"`
	Username      string             `json:"username"`
	Email         string             `json:"email"`
	Phone         string             `json:"phone,omitempty"`
	Profile       repository.Profile `json:"profile"`
	Status        string             `json:"status"`
	Role          string             `json:"role"`
	IsMinor       bool               `json:"isMinor"`
	EmailVerified bool               `json:"emailVerified"`
	Permissions   []string           `json:"permissions"`
	OAuthProvider string             `json:"oauthProvider,omitempty"`
	FamilyGroupID string             `json:"familyGroupId,omitempty"`
	ParentID      string             `json:"parentId,omitempty"`
	LastLoginAt   *time.Time         `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// ToUser arma la vista pública de ident.
func ToUser(ident *repository.Identity) User {
	u := User{
		ID:            ident.ID,
		Username:      ident.Username,
		Email:         ident.Email,
		Profile:       ident.Profile,
		Status:        string(ident.Status),
		Role:          string(ident.Role),
		IsMinor:       ident.IsMinor,
		EmailVerified: ident.EmailVerified,
		Permissions:   append([]string{}, ident.Permissions...),
		LastLoginAt:   ident.LastLoginAt,
		CreatedAt:     ident.CreatedAt,
	}
	if ident.Phone != nil {
		u.Phone = *ident.Phone
	}
	if ident.External != nil {
		u.OAuthProvider = ident.External.Provider
	}
	if ident.FamilyGroupID != nil {
		u.FamilyGroupID = *ident.FamilyGroupID
	}
	if ident.ParentID != nil {
		u.ParentID = *ident.ParentID
	}
	return u
}

// ToDevices arma la vista de devices marcando el de la sesión actual.
func ToDevices(list []repository.Device, currentID string) []Device {
	out := make([]Device, 0, len(list))
	for _, d := range list {
		out = append(out, Device{
			DeviceID:     d.DeviceID,
			DeviceType:   string(d.DeviceType),
			UserAgent:    d.UserAgent,
			Active:       d.Active,
			Current:      d.DeviceID == currentID,
			RegisteredAt: d.RegisteredAt,
			LastSeen:     d.LastSeen,
		})
	}
	return out
}
