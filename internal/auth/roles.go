package auth

// Role is an admin surface role carried in the JWT "roles" claim.
type Role string

const (
	// RoleAdmin can read and mutate everything on the admin surface.
	RoleAdmin Role = "admin"

	// RoleViewer can read the admin surface but not change it.
	RoleViewer Role = "viewer"
)

func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the role is one the gateway knows about.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleViewer:
		return true
	default:
		return false
	}
}

// HasPermission reports whether this role satisfies the required one.
// Admin subsumes viewer; viewer satisfies only itself.
func (r Role) HasPermission(required Role) bool {
	if r == RoleAdmin {
		return true
	}
	return r == required
}
