package rbac

const (
	// Privileged operations.
	PermissionVerifyLog        = "log:verify"
	PermissionApproveExtension = "extension:approve"
	PermissionManageProjects   = "project:manage"
	PermissionManageClients    = "client:manage"

	// Regular operations.
	PermissionReadLog          = "log:read"
	PermissionCompleteLog      = "log:complete"
	PermissionRequestExtension = "extension:request"
	PermissionToggleStage      = "stage:toggle"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var rolePermissions = map[string][]string{
	RoleUser: {
		PermissionReadLog,
		PermissionCompleteLog,
		PermissionRequestExtension,
		PermissionToggleStage,
	},
	RoleAdmin: {
		PermissionReadLog,
		PermissionCompleteLog,
		PermissionRequestExtension,
		PermissionToggleStage,
		PermissionVerifyLog,
		PermissionApproveExtension,
		PermissionManageProjects,
		PermissionManageClients,
	},
}

// HasPermission reports whether the role grants the permission.
func HasPermission(role, permission string) bool {
	perms, ok := rolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
func PermissionsForRole(role string) []string {
	return rolePermissions[role]
}
