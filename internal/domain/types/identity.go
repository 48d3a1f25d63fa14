// Package types define tipos de dominio compartidos entre paquetes.
package types

// Role es el rol global de una identidad (viaja en el access token).
type Role string

const (
	RoleUser      Role = "user"
	RoleParent    Role = "parent"
	RoleGuardian  Role = "guardian"
	RoleChild     Role = "child"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
)

// IsValid retorna true si el rol es conocido.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleParent, RoleGuardian, RoleChild, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

// Status es el estado de ciclo de vida de una identidad.
type Status string

const (
	StatusPendingVerification Status = "pending_verification"
	StatusActive              Status = "active"
	StatusSuspended           Status = "suspended"
	StatusInactive            Status = "inactive"
	// StatusDeleted es un tombstone: identificadores ya anonimizados.
	StatusDeleted Status = "deleted"
)

// DeviceType clasifica el cliente que abrió la sesión.
type DeviceType string

const (
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceDesktop DeviceType = "desktop"
	DeviceWeb     DeviceType = "web"
)

// ParseDeviceType normaliza un valor libre del cliente; desconocido = web.
func ParseDeviceType(s string) DeviceType {
	switch DeviceType(s) {
	case DeviceMobile, DeviceTablet, DeviceDesktop, DeviceWeb:
		return DeviceType(s)
	}
	return DeviceWeb
}

// Permisos de cuenta otorgados al registrarse.
const (
	AccountCreateActivity = "create_activity"
	AccountJoinActivity   = "join_activity"
	AccountCreateCircle   = "create_circle"
)

// DefaultAccountPermissions retorna una copia de los permisos base de una cuenta nueva.
func DefaultAccountPermissions() []string {
	return []string{AccountCreateActivity, AccountJoinActivity, AccountCreateCircle}
}
