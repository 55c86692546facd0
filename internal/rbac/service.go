package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-his/meridian/internal/shared"
)

const (
	permCacheTTL = 5 * time.Minute
	permCacheVer = "rbac:perms:ver"
)

// Service is the RBAC resolver: permission checks, data-scope resolution and
// role membership, plus the administration operations behind them.
type Service struct {
	repo   Repository
	cache  *redis.Client
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs a Service. The redis client is optional; without it
// every check goes straight to the repository.
func NewService(repo Repository, cache *redis.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// RoleCodesForUser returns the current role membership for a credential.
// Used at login to snapshot roles into the token and at refresh to re-read
// them.
func (s *Service) RoleCodesForUser(ctx context.Context, userID int64) ([]string, error) {
	return s.repo.RoleCodesForUser(ctx, userID)
}

// HasPermission reports whether at least one of the context's roles holds a
// grant for the exact (resource, action) pair. Permissions are flat and
// explicit; there is no wildcard or hierarchy matching.
func (s *Service) HasPermission(ctx context.Context, access *shared.AccessContext, resource, action string) (bool, error) {
	if access == nil || len(access.Roles) == 0 {
		return false, nil
	}
	pairs, err := s.permissionPairs(ctx, access.Roles)
	if err != nil {
		return false, err
	}
	want := resource + ":" + action
	for _, pair := range pairs {
		if pair == want {
			return true, nil
		}
	}
	return false, nil
}

// ResolveDataScope resolves the visibility scope the context has on a
// resource. With no applicable policy it returns nil and the caller must
// apply a deny-by-default filter. With several, the least restrictive wins
// under the fixed precedence all > own_department > own_patients >
// specific_departments; ties within a kind are broken arbitrarily.
func (s *Service) ResolveDataScope(ctx context.Context, access *shared.AccessContext, resource string) (*DataScope, error) {
	if access == nil || len(access.Roles) == 0 {
		return nil, nil
	}
	policies, err := s.repo.PoliciesForRoles(ctx, access.Roles, resource)
	if err != nil {
		return nil, err
	}
	if len(policies) == 0 {
		return nil, nil
	}

	best := policies[0]
	for _, p := range policies[1:] {
		if rankOf(p.ScopeKind) < rankOf(best.ScopeKind) {
			best = p
		}
	}
	return &DataScope{Kind: best.ScopeKind, DepartmentIDs: best.DepartmentIDs}, nil
}

func rankOf(kind ScopeKind) int {
	if rank, ok := scopeRank[kind]; ok {
		return rank
	}
	// Unknown kinds sort last, i.e. most restrictive.
	return len(scopeRank)
}

// permissionPairs loads the granted pairs for a role set, through the redis
// cache when available. Concurrent loads for the same role set collapse into
// a single repository query.
func (s *Service) permissionPairs(ctx context.Context, roles []string) ([]string, error) {
	if s.cache == nil {
		return s.repo.PermissionPairsForRoles(ctx, roles)
	}

	key, err := s.cacheKey(ctx, roles)
	if err != nil {
		return s.repo.PermissionPairsForRoles(ctx, roles)
	}

	if cached, err := s.cache.Get(ctx, key).Result(); err == nil {
		if cached == "" {
			return nil, nil
		}
		return strings.Split(cached, "\n"), nil
	}

	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		pairs, err := s.repo.PermissionPairsForRoles(ctx, roles)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, key, strings.Join(pairs, "\n"), permCacheTTL).Err(); err != nil {
			s.logger.Warn("cache permission pairs", slog.Any("error", err))
		}
		return pairs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]string), nil
}

// cacheKey builds a versioned key from the sorted role set. Bumping the
// version invalidates every cached set at once.
func (s *Service) cacheKey(ctx context.Context, roles []string) (string, error) {
	version, err := s.cache.Get(ctx, permCacheVer).Result()
	if err == redis.Nil {
		version = "0"
	} else if err != nil {
		return "", err
	}
	sorted := append([]string(nil), roles...)
	sort.Strings(sorted)
	return fmt.Sprintf("rbac:perms:%s:%s", version, strings.Join(sorted, ",")), nil
}

// invalidatePermissions bumps the cache version after any grant or membership
// change.
func (s *Service) invalidatePermissions(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Incr(ctx, permCacheVer).Err(); err != nil {
		s.logger.Warn("invalidate permission cache", slog.Any("error", err))
	}
}

// ListRoles returns all roles ordered by code.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, code, name, description string) (Role, error) {
	code = strings.TrimSpace(strings.ToLower(code))
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return Role{}, fmt.Errorf("%w: role code and name are required", shared.ErrValidation)
	}
	return s.repo.CreateRole(ctx, code, name, strings.TrimSpace(description))
}

// UpdateRole updates a role's display name and description.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", shared.ErrValidation)
	}
	return s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
}

// DeleteRole removes a non-system role. System roles cannot be deleted.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("%w: system role %s cannot be deleted", shared.ErrValidation, role.Code)
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.invalidatePermissions(ctx)
	return nil
}

// ListPermissions returns the static permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// SetRolePermissions replaces a role's grants.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.repo.ReplaceRolePermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}
	s.invalidatePermissions(ctx)
	return nil
}

// AssignRole assigns a role to a credential with an optional department
// qualifier.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64, departmentID *int64) error {
	if err := s.repo.AssignRole(ctx, userID, roleID, departmentID); err != nil {
		return err
	}
	s.invalidatePermissions(ctx)
	return nil
}

// RemoveRole removes a role from a credential.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.RemoveRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.invalidatePermissions(ctx)
	return nil
}

// ListPolicies returns the data-access policies attached to a role.
func (s *Service) ListPolicies(ctx context.Context, roleID int64) ([]DataAccessPolicy, error) {
	return s.repo.ListPolicies(ctx, roleID)
}

// UpsertPolicy creates or replaces a data-access policy.
func (s *Service) UpsertPolicy(ctx context.Context, policy DataAccessPolicy) (DataAccessPolicy, error) {
	policy.Resource = strings.TrimSpace(policy.Resource)
	if policy.Resource == "" {
		return DataAccessPolicy{}, fmt.Errorf("%w: policy resource is required", shared.ErrValidation)
	}
	if !policy.ScopeKind.Valid() {
		return DataAccessPolicy{}, fmt.Errorf("%w: unknown scope kind %q", shared.ErrValidation, policy.ScopeKind)
	}
	return s.repo.UpsertPolicy(ctx, policy)
}

// DeletePolicy removes a data-access policy.
func (s *Service) DeletePolicy(ctx context.Context, id int64) error {
	return s.repo.DeletePolicy(ctx, id)
}
