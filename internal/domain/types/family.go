package types

// FamilyRole es el rol de un miembro dentro de un grupo familiar.
type FamilyRole string

const (
	FamilyParent   FamilyRole = "parent"
	FamilyGuardian FamilyRole = "guardian"
	FamilyChild    FamilyRole = "child"
)

func (r FamilyRole) IsValid() bool {
	return r == FamilyParent || r == FamilyGuardian || r == FamilyChild
}

// IsAdult reporta si el rol puede administrar el grupo (parent/guardian).
func (r FamilyRole) IsAdult() bool {
	return r == FamilyParent || r == FamilyGuardian
}

// Permission es un permiso familiar.
type Permission string

const (
	PermManageFamily         Permission = "manage_family"
	PermViewChildrenActivity Permission = "view_children_activity"
	PermSetRestrictions      Permission = "set_restrictions"
	PermApproveActivities    Permission = "approve_activities"
)

// AllPermissions lista los permisos familiares conocidos.
var AllPermissions = []Permission{
	PermManageFamily,
	PermViewChildrenActivity,
	PermSetRestrictions,
	PermApproveActivities,
}

func (p Permission) IsValid() bool {
	for _, k := range AllPermissions {
		if k == p {
			return true
		}
	}
	return false
}
