package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-his/meridian/internal/platform/db"
	"github.com/meridian-his/meridian/internal/shared"
)

const uniqueViolation = "23505"

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// RoleCodesForUser returns the role codes assigned to a credential.
func (r *PGRepository) RoleCodesForUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT r.code FROM user_roles ur JOIN roles r ON r.id = ur.role_id WHERE ur.credential_id = $1 ORDER BY r.code`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// PermissionPairsForRoles returns deduplicated "resource:action" pairs
// granted to any of the given roles.
func (r *PGRepository) PermissionPairsForRoles(ctx context.Context, roleCodes []string) ([]string, error) {
	if len(roleCodes) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT p.resource || ':' || p.action
		 FROM role_permissions rp
		 JOIN roles r ON r.id = rp.role_id
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE r.code = ANY($1)`,
		roleCodes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pairs []string
	for rows.Next() {
		var pair string
		if err := rows.Scan(&pair); err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}

// PoliciesForRoles returns every data-access policy any of the roles holds on
// the resource.
func (r *PGRepository) PoliciesForRoles(ctx context.Context, roleCodes []string, resource string) ([]DataAccessPolicy, error) {
	if len(roleCodes) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT dap.id, dap.role_id, dap.resource, dap.scope_kind, dap.scope_value
		 FROM data_access_policies dap
		 JOIN roles r ON r.id = dap.role_id
		 WHERE r.code = ANY($1) AND dap.resource = $2`,
		roleCodes, resource)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPolicies(rows)
}

// ListRoles returns all roles ordered by code.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, code, name, description, is_system, created_at, updated_at FROM roles ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Code, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, name, description, is_system, created_at, updated_at FROM roles WHERE id = $1`, id).
		Scan(&role.ID, &role.Code, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a new non-system role.
func (r *PGRepository) CreateRole(ctx context.Context, code, name, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`INSERT INTO roles (code, name, description, is_system) VALUES ($1, $2, $3, FALSE)
		 RETURNING id, code, name, description, is_system, created_at, updated_at`,
		code, name, description).
		Scan(&role.ID, &role.Code, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Role{}, shared.ErrDuplicate
		}
		return Role{}, err
	}
	return role, nil
}

// UpdateRole updates an existing role's display fields. The code is immutable.
func (r *PGRepository) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`UPDATE roles SET name = $2, description = $3, updated_at = NOW() WHERE id = $1
		 RETURNING id, code, name, description, is_system, created_at, updated_at`,
		id, name, description).
		Scan(&role.ID, &role.Code, &role.Name, &role.Description, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role by ID. Returns shared.ErrNotFound if nothing was deleted.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1 AND is_system = FALSE`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListPermissions returns the full permission catalog.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, resource, action FROM permissions ORDER BY resource, action`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Resource, &p.Action); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ReplaceRolePermissions swaps a role's grants for the given set atomically.
func (r *PGRepository) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, pid := range permissionIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				roleID, pid); err != nil {
				return err
			}
		}
		return nil
	})
}

// AssignRole links a credential to a role with an optional department qualifier.
func (r *PGRepository) AssignRole(ctx context.Context, userID, roleID int64, departmentID *int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_roles (credential_id, role_id, department_id) VALUES ($1, $2, $3)
		 ON CONFLICT (credential_id, role_id) DO UPDATE SET department_id = EXCLUDED.department_id`,
		userID, roleID, departmentID)
	return err
}

// RemoveRole unlinks a credential from a role.
func (r *PGRepository) RemoveRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM user_roles WHERE credential_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

// ListPolicies returns the data-access policies attached to a role.
func (r *PGRepository) ListPolicies(ctx context.Context, roleID int64) ([]DataAccessPolicy, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, role_id, resource, scope_kind, scope_value FROM data_access_policies WHERE role_id = $1 ORDER BY resource`,
		roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPolicies(rows)
}

// UpsertPolicy inserts or replaces the policy for (role, resource, scope kind).
func (r *PGRepository) UpsertPolicy(ctx context.Context, policy DataAccessPolicy) (DataAccessPolicy, error) {
	value, err := json.Marshal(policy.DepartmentIDs)
	if err != nil {
		return DataAccessPolicy{}, err
	}
	err = r.pool.QueryRow(ctx,
		`INSERT INTO data_access_policies (role_id, resource, scope_kind, scope_value)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (role_id, resource, scope_kind) DO UPDATE SET scope_value = EXCLUDED.scope_value
		 RETURNING id`,
		policy.RoleID, policy.Resource, policy.ScopeKind, value).
		Scan(&policy.ID)
	if err != nil {
		return DataAccessPolicy{}, err
	}
	return policy, nil
}

// DeletePolicy removes a single policy row.
func (r *PGRepository) DeletePolicy(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM data_access_policies WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanPolicies(rows pgx.Rows) ([]DataAccessPolicy, error) {
	var policies []DataAccessPolicy
	for rows.Next() {
		var (
			policy DataAccessPolicy
			kind   string
			value  []byte
		)
		if err := rows.Scan(&policy.ID, &policy.RoleID, &policy.Resource, &kind, &value); err != nil {
			return nil, err
		}
		policy.ScopeKind = ScopeKind(strings.TrimSpace(kind))
		if len(value) > 0 {
			if err := json.Unmarshal(value, &policy.DepartmentIDs); err != nil {
				return nil, err
			}
		}
		policies = append(policies, policy)
	}
	return policies, rows.Err()
}

var _ Repository = (*PGRepository)(nil)
