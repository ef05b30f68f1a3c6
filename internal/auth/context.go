package auth

import "context"

// Roles carried in access tokens.
const (
	RoleDeveloper = "developer"
	RoleReseller  = "reseller"
	RoleCustomer  = "customer"
	RoleAdmin     = "admin"
)

type contextKey struct{}

type AuthContext struct {
	UserID string
	Email  string
	Role   string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UserID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.UserID
}

// HasRole reports whether the caller holds one of roles. Admins hold every
// role.
func HasRole(ctx context.Context, roles ...string) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	if ac.Role == RoleAdmin {
		return true
	}
	for _, r := range roles {
		if ac.Role == r {
			return true
		}
	}
	return false
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.Role == RoleAdmin
}
