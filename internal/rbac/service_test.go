package rbac

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-his/meridian/internal/shared"
	_ "github.com/meridian-his/meridian/testing"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepo struct {
	roleCodes   map[int64][]string
	grants      map[string][]string // role code -> "resource:action" pairs
	policies    []DataAccessPolicy
	roleByID    map[int64]Role
	pairQueries int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		roleCodes: make(map[int64][]string),
		grants:    make(map[string][]string),
		roleByID:  make(map[int64]Role),
	}
}

func (m *mockRepo) RoleCodesForUser(_ context.Context, userID int64) ([]string, error) {
	return m.roleCodes[userID], nil
}

func (m *mockRepo) PermissionPairsForRoles(_ context.Context, roleCodes []string) ([]string, error) {
	m.pairQueries++
	seen := make(map[string]struct{})
	var pairs []string
	for _, code := range roleCodes {
		for _, pair := range m.grants[code] {
			if _, ok := seen[pair]; ok {
				continue
			}
			seen[pair] = struct{}{}
			pairs = append(pairs, pair)
		}
	}
	return pairs, nil
}

func (m *mockRepo) PoliciesForRoles(_ context.Context, roleCodes []string, resource string) ([]DataAccessPolicy, error) {
	roleIDs := make(map[int64]struct{})
	for id, role := range m.roleByID {
		for _, code := range roleCodes {
			if role.Code == code {
				roleIDs[id] = struct{}{}
			}
		}
	}
	var out []DataAccessPolicy
	for _, p := range m.policies {
		if p.Resource != resource {
			continue
		}
		if _, ok := roleIDs[p.RoleID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockRepo) ListRoles(context.Context) ([]Role, error) { return nil, nil }

func (m *mockRepo) GetRole(_ context.Context, id int64) (Role, error) {
	role, ok := m.roleByID[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (m *mockRepo) CreateRole(_ context.Context, code, name, description string) (Role, error) {
	role := Role{ID: int64(len(m.roleByID) + 1), Code: code, Name: name, Description: description}
	m.roleByID[role.ID] = role
	return role, nil
}

func (m *mockRepo) UpdateRole(_ context.Context, id int64, name, description string) (Role, error) {
	role, ok := m.roleByID[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	role.Name = name
	role.Description = description
	m.roleByID[id] = role
	return role, nil
}

func (m *mockRepo) DeleteRole(_ context.Context, id int64) error {
	delete(m.roleByID, id)
	return nil
}

func (m *mockRepo) ListPermissions(context.Context) ([]Permission, error) { return nil, nil }

func (m *mockRepo) ReplaceRolePermissions(context.Context, int64, []int64) error { return nil }

func (m *mockRepo) AssignRole(context.Context, int64, int64, *int64) error { return nil }

func (m *mockRepo) RemoveRole(context.Context, int64, int64) error { return nil }

func (m *mockRepo) ListPolicies(context.Context, int64) ([]DataAccessPolicy, error) {
	return m.policies, nil
}

func (m *mockRepo) UpsertPolicy(_ context.Context, policy DataAccessPolicy) (DataAccessPolicy, error) {
	policy.ID = int64(len(m.policies) + 1)
	m.policies = append(m.policies, policy)
	return policy, nil
}

func (m *mockRepo) DeletePolicy(context.Context, int64) error { return nil }

var _ Repository = (*mockRepo)(nil)

// ============================================================================
// PERMISSION CHECKS
// ============================================================================

func physicianContext() *shared.AccessContext {
	return &shared.AccessContext{UserID: 1, Username: "drchen", Roles: []string{"physician"}}
}

func TestHasPermissionExplicitGrantsOnly(t *testing.T) {
	repo := newMockRepo()
	repo.grants["physician"] = []string{"patients:view", "orders:create"}
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	ok, err := svc.HasPermission(ctx, physicianContext(), "patients", "view")
	require.NoError(t, err)
	assert.True(t, ok)

	// No wildcard or hierarchy matching: an ungranted pair is always false,
	// including for roles that exist but hold no matching grant.
	ok, err = svc.HasPermission(ctx, physicianContext(), "patients", "delete")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.HasPermission(ctx, physicianContext(), "billing", "view")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasPermissionEmptyContext(t *testing.T) {
	svc := NewService(newMockRepo(), nil, nil)
	ok, err := svc.HasPermission(context.Background(), nil, "patients", "view")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.HasPermission(context.Background(), &shared.AccessContext{}, "patients", "view")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasPermissionAnyRoleSuffices(t *testing.T) {
	repo := newMockRepo()
	repo.grants["nurse"] = []string{"visits:view"}
	svc := NewService(repo, nil, nil)

	access := &shared.AccessContext{UserID: 2, Roles: []string{"clerk", "nurse"}}
	ok, err := svc.HasPermission(context.Background(), access, "visits", "view")
	require.NoError(t, err)
	assert.True(t, ok)
}

// ============================================================================
// DATA SCOPE RESOLUTION
// ============================================================================

func scopeFixture() *mockRepo {
	repo := newMockRepo()
	repo.roleByID[1] = Role{ID: 1, Code: "physician"}
	repo.roleByID[2] = Role{ID: 2, Code: "dept_head"}
	return repo
}

func TestResolveDataScopeNoneIsDenyByDefault(t *testing.T) {
	svc := NewService(scopeFixture(), nil, nil)
	scope, err := svc.ResolveDataScope(context.Background(), physicianContext(), "patients")
	require.NoError(t, err)
	assert.Nil(t, scope)
}

func TestResolveDataScopeLeastRestrictiveWins(t *testing.T) {
	repo := scopeFixture()
	repo.policies = []DataAccessPolicy{
		{ID: 1, RoleID: 1, Resource: "patients", ScopeKind: ScopeOwnDepartment},
		{ID: 2, RoleID: 2, Resource: "patients", ScopeKind: ScopeAll},
	}
	svc := NewService(repo, nil, nil)

	access := &shared.AccessContext{UserID: 1, Roles: []string{"physician", "dept_head"}}
	scope, err := svc.ResolveDataScope(context.Background(), access, "patients")
	require.NoError(t, err)
	require.NotNil(t, scope)
	assert.Equal(t, ScopeAll, scope.Kind)
}

func TestResolveDataScopePrecedenceOrder(t *testing.T) {
	repo := scopeFixture()
	repo.policies = []DataAccessPolicy{
		{ID: 1, RoleID: 1, Resource: "lab", ScopeKind: ScopeSpecificDepartments, DepartmentIDs: []int64{3, 4}},
		{ID: 2, RoleID: 2, Resource: "lab", ScopeKind: ScopeOwnPatients},
	}
	svc := NewService(repo, nil, nil)

	access := &shared.AccessContext{UserID: 1, Roles: []string{"physician", "dept_head"}}
	scope, err := svc.ResolveDataScope(context.Background(), access, "lab")
	require.NoError(t, err)
	require.NotNil(t, scope)
	assert.Equal(t, ScopeOwnPatients, scope.Kind)
}

func TestResolveDataScopeCarriesDepartments(t *testing.T) {
	repo := scopeFixture()
	repo.policies = []DataAccessPolicy{
		{ID: 1, RoleID: 1, Resource: "lab", ScopeKind: ScopeSpecificDepartments, DepartmentIDs: []int64{3, 4}},
	}
	svc := NewService(repo, nil, nil)

	scope, err := svc.ResolveDataScope(context.Background(), physicianContext(), "lab")
	require.NoError(t, err)
	require.NotNil(t, scope)
	assert.Equal(t, ScopeSpecificDepartments, scope.Kind)
	assert.Equal(t, []int64{3, 4}, scope.DepartmentIDs)
}

// ============================================================================
// PERMISSION CACHE
// ============================================================================

func TestPermissionCacheHitsAndInvalidation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	repo := newMockRepo()
	repo.roleByID[1] = Role{ID: 1, Code: "physician"}
	repo.grants["physician"] = []string{"patients:view"}
	svc := NewService(repo, client, nil)
	ctx := context.Background()

	ok, err := svc.HasPermission(ctx, physicianContext(), "patients", "view")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, repo.pairQueries)

	// Second check is served from the cache.
	ok, err = svc.HasPermission(ctx, physicianContext(), "patients", "view")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, repo.pairQueries)

	// Changing grants bumps the version and bypasses stale entries.
	require.NoError(t, svc.SetRolePermissions(ctx, 1, []int64{10}))
	_, err = svc.HasPermission(ctx, physicianContext(), "patients", "view")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.pairQueries)
}

// ============================================================================
// ADMINISTRATION
// ============================================================================

func TestDeleteRoleProtectsSystemRoles(t *testing.T) {
	repo := newMockRepo()
	repo.roleByID[1] = Role{ID: 1, Code: "superadmin", IsSystem: true}
	repo.roleByID[2] = Role{ID: 2, Code: "temp_auditor"}
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	err := svc.DeleteRole(ctx, 1)
	assert.ErrorIs(t, err, shared.ErrValidation)

	assert.NoError(t, svc.DeleteRole(ctx, 2))
	_, err = svc.GetRole(ctx, 2)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateRoleValidation(t *testing.T) {
	svc := NewService(newMockRepo(), nil, nil)
	_, err := svc.CreateRole(context.Background(), "", "Nurse", "")
	assert.ErrorIs(t, err, shared.ErrValidation)

	role, err := svc.CreateRole(context.Background(), " Nurse ", "Ward Nurse", "")
	require.NoError(t, err)
	assert.Equal(t, "nurse", role.Code)
}

func TestUpsertPolicyValidation(t *testing.T) {
	svc := NewService(newMockRepo(), nil, nil)

	_, err := svc.UpsertPolicy(context.Background(), DataAccessPolicy{RoleID: 1, Resource: "lab", ScopeKind: "everything"})
	assert.ErrorIs(t, err, shared.ErrValidation)

	policy, err := svc.UpsertPolicy(context.Background(), DataAccessPolicy{RoleID: 1, Resource: "lab", ScopeKind: ScopeAll})
	require.NoError(t, err)
	assert.Equal(t, ScopeAll, policy.ScopeKind)
}
