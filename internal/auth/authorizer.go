package auth

// Decision is the typed outcome of an authorization check. It is computed
// once per request by the admin middleware and carried through the request
// context, so handlers branch on the decision instead of re-checking roles
// inline.
type Decision struct {
	Allowed bool
	// Subject identifies who was checked: the admin user ID or service
	// token ID from the JWT.
	Subject  string
	AuthType string
	Roles    []string
	// Reason is set when the decision is a denial.
	Reason string
}

// Authorizer turns a set of held roles into a Decision for a required role.
type Authorizer interface {
	Authorize(claims *AdminClaims, required Role) Decision
}

// RoleAuthorizer authorizes against the static role hierarchy: admin implies
// viewer, viewer implies only itself.
type RoleAuthorizer struct{}

func NewRoleAuthorizer() *RoleAuthorizer {
	return &RoleAuthorizer{}
}

func (a *RoleAuthorizer) Authorize(claims *AdminClaims, required Role) Decision {
	if claims == nil {
		return Decision{Allowed: false, Reason: "no identity"}
	}

	decision := Decision{
		Subject:  claims.AdminID,
		AuthType: claims.AuthType,
		Roles:    claims.Roles,
	}

	for _, held := range claims.Roles {
		if Role(held).HasPermission(required) {
			decision.Allowed = true
			return decision
		}
	}

	decision.Reason = "missing role " + required.String()
	return decision
}
