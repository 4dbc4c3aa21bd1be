package auth

import "slices"

// Role is an authorisation tier carried in the token's role claim.
type Role string

// Roles, lowest first. Each role holds every permission of the roles
// below it.
const (
	RoleClient   Role = "client"   // a scripting-layer app managing its own regions
	RoleOperator Role = "operator" // also drives lifecycle and reads the audit trail
	RoleAdmin    Role = "admin"    // also reaches /system
)

// ValidRoles is the set of roles a token may carry, lowest first.
var ValidRoles = []Role{RoleClient, RoleOperator, RoleAdmin}

// Permission names one capability checked by the API router.
type Permission string

const (
	PermGeofenceRead      Permission = "geofence:read"
	PermGeofenceWrite     Permission = "geofence:write"
	PermPermissionRequest Permission = "permission:request"
	PermLifecycleControl  Permission = "lifecycle:control"
	PermAuditRead         Permission = "audit:read"
	PermSystemAdmin       Permission = "system:admin"
)

// grants lists what each role adds over the role below it.
var grants = map[Role][]Permission{
	RoleClient:   {PermGeofenceRead, PermGeofenceWrite, PermPermissionRequest},
	RoleOperator: {PermLifecycleControl, PermAuditRead},
	RoleAdmin:    {PermSystemAdmin},
}

// rolePermissions is the flattened view of grants.
var rolePermissions = func() map[Role][]Permission {
	out := make(map[Role][]Permission, len(ValidRoles))
	var acc []Permission
	for _, r := range ValidRoles {
		acc = append(acc, grants[r]...)
		out[r] = slices.Clone(acc)
	}
	return out
}()

// IsValidRole reports whether r is one of ValidRoles.
func IsValidRole(r Role) bool {
	return slices.Contains(ValidRoles, r)
}

// HasPermission reports whether role holds perm.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// PermissionsForRole returns a copy of role's permissions.
func PermissionsForRole(role Role) []Permission {
	return slices.Clone(rolePermissions[role])
}
