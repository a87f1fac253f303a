package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleStoryteller     = "storyteller"
	RoleElder           = "elder"
	RoleOrgAdmin        = "org_admin"
	RoleSuperAdmin      = "super_admin"
	RolePlatformService = "platform_service" // hidden role, internal callers only

	// External applications carry auth.RoleExternalApp; it is defined in
	// internal/auth to avoid an import cycle with the token issuer.
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RolePlatformService }

// IsElder reports whether the role carries elder cultural authority.
// Note: the protocol evaluator uses the profile-level elder flag, not the role;
// this helper only gates HTTP route access.
func IsElder(role string) bool { return role == RoleElder }
