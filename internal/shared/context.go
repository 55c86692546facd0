package shared

import "context"

// AccessContext is the resolved identity for a single authenticated request.
// It is built fresh per request from verified token claims and never persisted.
type AccessContext struct {
	UserID       int64
	StaffID      int64
	Username     string
	Roles        []string
	DepartmentID *int64
}

// HasRole reports whether the context carries the given role code.
func (a *AccessContext) HasRole(code string) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Roles {
		if r == code {
			return true
		}
	}
	return false
}

type accessContextKey struct{}

// ContextWithAccess stores the access context in ctx.
func ContextWithAccess(ctx context.Context, access *AccessContext) context.Context {
	return context.WithValue(ctx, accessContextKey{}, access)
}

// AccessFromContext extracts the access context, or nil when the request was
// never authenticated.
func AccessFromContext(ctx context.Context) *AccessContext {
	access, _ := ctx.Value(accessContextKey{}).(*AccessContext)
	return access
}
