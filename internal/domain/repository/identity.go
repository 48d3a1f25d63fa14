package repository

import (
	"context"
	"strings"
	"time"

	"github.com/dropDatabas3/ciciauth/internal/domain/types"
)

// Identity es el registro persistente de una cuenta.
// Se lee y escribe como documento completo; las mutaciones concurrentes
// pasan por IdentityRepository.Update (read-modify-write atómico).
type Identity struct {
	ID            string
	Username      string
	Email         string // siempre en minúsculas
	Phone         *string
	PasswordHash  *string // nil para cuentas solo-OAuth
	External      *ExternalLink
	Profile       Profile
	Status        types.Status
	Role          types.Role
	IsMinor       bool
	EmailVerified bool
	Permissions   []string

	FailedAttempts int
	LockUntil      *time.Time

	// Devices conserva orden de inserción; acotado a devices.max.
	Devices []Device

	FamilyGroupID *string
	ParentID      *string

	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ExternalLink vincula la identidad con un proveedor OAuth.
type ExternalLink struct {
	Provider   string
	ProviderID string
}

// Profile son los datos públicos editables.
type Profile struct {
	FirstName string     `json:"firstName,omitempty"`
	LastName  string     `json:"lastName,omitempty"`
	Avatar    string     `json:"avatar,omitempty"`
	Bio       string     `json:"bio,omitempty"`
	Gender    string     `json:"gender,omitempty"`
	BirthDate *time.Time `json:"birthDate,omitempty"`
}

// Device es una sesión de dispositivo registrada.
type Device struct {
	DeviceID   string           `json:"deviceId"`
	DeviceType types.DeviceType `json:"deviceType"`
	UserAgent  string           `json:"userAgent,omitempty"`
	Active     bool             `json:"isActive"`
	// RegisteredAt marca el último login en este device; los refresh
	// emitidos antes pertenecen a una sesión anterior.
	RegisteredAt time.Time `json:"registeredAt"`
	LastSeen     time.Time `json:"lastSeen"`
	// RefreshJTI es el id del último refresh token emitido para el device.
	RefreshJTI string `json:"refreshJti,omitempty"`
}

// HasPassword reporta si la identidad tiene credencial local.
func (i *Identity) HasPassword() bool {
	return i.PasswordHash != nil && *i.PasswordHash != ""
}

// FindDevice retorna el índice del device o -1.
func (i *Identity) FindDevice(deviceID string) int {
	for k := range i.Devices {
		if i.Devices[k].DeviceID == deviceID {
			return k
		}
	}
	return -1
}

// Validate chequea los invariantes del documento antes de persistir.
func (i *Identity) Validate() error {
	if strings.TrimSpace(i.Username) == "" || strings.TrimSpace(i.Email) == "" {
		return ErrInvalidInput
	}
	if !i.HasPassword() && i.External == nil && i.Status != types.StatusDeleted {
		// Sin password ni vínculo externo la cuenta sería inaccesible.
		return ErrInvalidInput
	}
	if i.FailedAttempts < 0 {
		return ErrInvalidInput
	}
	return nil
}

// RecomputeMinor actualiza IsMinor a partir de la fecha de nacimiento.
// Sin fecha de nacimiento el valor se conserva.
func (i *Identity) RecomputeMinor(now time.Time, minorAge int) {
	if i.Profile.BirthDate == nil {
		return
	}
	i.IsMinor = AgeAt(*i.Profile.BirthDate, now) < minorAge
}

// AgeAt calcula la edad en años cumplidos.
func AgeAt(birth, now time.Time) int {
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}

// NormalizeEmail aplica la forma canónica usada para unicidad.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Clone retorna una copia profunda (slices y punteros).
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	c.Phone = cloneStr(i.Phone)
	c.PasswordHash = cloneStr(i.PasswordHash)
	c.FamilyGroupID = cloneStr(i.FamilyGroupID)
	c.ParentID = cloneStr(i.ParentID)
	c.LockUntil = cloneTime(i.LockUntil)
	c.LastLoginAt = cloneTime(i.LastLoginAt)
	c.Profile.BirthDate = cloneTime(i.Profile.BirthDate)
	if i.External != nil {
		e := *i.External
		c.External = &e
	}
	c.Permissions = append([]string(nil), i.Permissions...)
	c.Devices = append([]Device(nil), i.Devices...)
	return &c
}

// IdentityRepository es el Credential Store.
type IdentityRepository interface {
	// GetByID retorna ErrNotFound si no existe.
	GetByID(ctx context.Context, id string) (*Identity, error)

	// GetByLogin busca por email (normalizado) o username.
	GetByLogin(ctx context.Context, login string) (*Identity, error)

	GetByEmail(ctx context.Context, email string) (*Identity, error)

	// GetByExternal busca por (provider, providerID).
	GetByExternal(ctx context.Context, provider, providerID string) (*Identity, error)

	// Create inserta la identidad. Retorna *ConflictError si email,
	// username o teléfono ya existen.
	Create(ctx context.Context, ident *Identity) error

	// Update aplica fn sobre la versión actual del documento y persiste
	// el resultado de forma atómica. Si fn retorna error no se escribe nada.
	Update(ctx context.Context, id string, fn func(*Identity) error) (*Identity, error)
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
