package rbac

import "context"

// Repository defines persistence operations for the RBAC resolver and its
// administration surface.
type Repository interface {
	RoleCodesForUser(ctx context.Context, userID int64) ([]string, error)
	PermissionPairsForRoles(ctx context.Context, roleCodes []string) ([]string, error)
	PoliciesForRoles(ctx context.Context, roleCodes []string, resource string) ([]DataAccessPolicy, error)

	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, code, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	ListPermissions(ctx context.Context) ([]Permission, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error

	AssignRole(ctx context.Context, userID, roleID int64, departmentID *int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error

	ListPolicies(ctx context.Context, roleID int64) ([]DataAccessPolicy, error)
	UpsertPolicy(ctx context.Context, policy DataAccessPolicy) (DataAccessPolicy, error)
	DeletePolicy(ctx context.Context, id int64) error
}
