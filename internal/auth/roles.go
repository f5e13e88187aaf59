// Package auth identifies admin callers and decides what they may do.
package auth

import "slices"

// Role is an admin role carried in the access token.
type Role string

const (
	RoleReadonlyAdmin   Role = "READONLY_ADMIN"
	RoleSupportAdmin    Role = "SUPPORT_ADMIN"
	RoleOperationsAdmin Role = "OPERATIONS_ADMIN"
	RoleFinanceAdmin    Role = "FINANCE_ADMIN"
	RoleSuperAdmin      Role = "SUPER_ADMIN"
)

// TopRole is the only role allowed to mutate kill-switch flags.
const TopRole = RoleSuperAdmin

func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// Permission is a capability checked by the HTTP layer.
type Permission string

const (
	PermConfigRead  Permission = "config:read"
	PermConfigWrite Permission = "config:write"
)

// rolePermissions lists what each role can do before per-admin grants and revocations.
var rolePermissions = map[Role][]Permission{
	RoleReadonlyAdmin:   {PermConfigRead},
	RoleSupportAdmin:    {PermConfigRead},
	RoleOperationsAdmin: {PermConfigRead},
	RoleFinanceAdmin:    {},
	RoleSuperAdmin:      {PermConfigRead, PermConfigWrite},
}

// RoleHas reports whether role grants p by default.
func RoleHas(role Role, p Permission) bool {
	return slices.Contains(rolePermissions[role], p)
}
