package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleUser       = "user"
	RoleSupport    = "support"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
	RoleService    = "service" // hidden role for internal automation; never implied by other roles
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }
