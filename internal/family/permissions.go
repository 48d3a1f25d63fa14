// Package family modela grupos familiares: membresía, permisos y la
// restricción horaria para menores.
//
// Los permisos efectivos de un miembro son la unión de sus permisos
// explícitos y los implícitos de su rol (tabla roleGrants). Un miembro
// inactivo no tiene ningún permiso.
package family

import (
	"github.com/dropDatabas3/ciciauth/internal/domain/repository"
	"github.com/dropDatabas3/ciciauth/internal/domain/types"
)

// roleGrants: permisos implícitos por rol. child no recibe ninguno.
var roleGrants = map[types.FamilyRole][]types.Permission{
	types.FamilyParent:   types.AllPermissions,
	types.FamilyGuardian: types.AllPermissions,
	types.FamilyChild:    nil,
}

// ImplicitPermissions retorna los permisos que otorga el rol.
func ImplicitPermissions(role types.FamilyRole) []types.Permission {
	return append([]types.Permission(nil), roleGrants[role]...)
}

// HasPermission evalúa un permiso para un miembro.
func HasPermission(m *repository.FamilyMember, p types.Permission) bool {
	if m == nil || !m.Active {
		return false
	}
	for _, g := range roleGrants[m.Role] {
		if g == p {
			return true
		}
	}
	for _, e := range m.Permissions {
		if e == p {
			return true
		}
	}
	return false
}

// EffectivePermissions retorna la unión ordenada (orden de AllPermissions).
func EffectivePermissions(m *repository.FamilyMember) []types.Permission {
	out := []types.Permission{}
	for _, p := range types.AllPermissions {
		if HasPermission(m, p) {
			out = append(out, p)
		}
	}
	return out
}

// MemberHasPermission busca al miembro en el grupo y evalúa el permiso.
// No miembro = false.
func MemberHasPermission(g *repository.FamilyGroup, userID string, p types.Permission) bool {
	if g == nil {
		return false
	}
	m, ok := g.Member(userID)
	if !ok {
		return false
	}
	return HasPermission(m, p)
}
