package rbac

import "time"

// Role represents a high-level permission grouping. System roles are seeded
// and cannot be deleted.
type Role struct {
	ID          int64
	Code        string
	Name        string
	Description string
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is an atomic (resource, action) capability, unique by the pair.
type Permission struct {
	ID       int64
	Resource string
	Action   string
}

// RoleAssignment links a credential to a role with an optional department
// qualifier.
type RoleAssignment struct {
	CredentialID int64
	RoleID       int64
	DepartmentID *int64
	CreatedAt    time.Time
}

// ScopeKind classifies how broadly a role may see a resource's data.
type ScopeKind string

const (
	ScopeAll                 ScopeKind = "all"
	ScopeOwnDepartment       ScopeKind = "own_department"
	ScopeOwnPatients         ScopeKind = "own_patients"
	ScopeSpecificDepartments ScopeKind = "specific_departments"
)

// scopeRank orders scope kinds from least to most restrictive. Lower rank
// wins when multiple policies apply.
var scopeRank = map[ScopeKind]int{
	ScopeAll:                 0,
	ScopeOwnDepartment:       1,
	ScopeOwnPatients:         2,
	ScopeSpecificDepartments: 3,
}

// Valid reports whether the scope kind is a known value.
func (k ScopeKind) Valid() bool {
	_, ok := scopeRank[k]
	return ok
}

// DataAccessPolicy names, per role and resource, the visibility scope granted.
type DataAccessPolicy struct {
	ID            int64
	RoleID        int64
	Resource      string
	ScopeKind     ScopeKind
	DepartmentIDs []int64
}

// DataScope is the resolved visibility for an access context on a resource.
type DataScope struct {
	Kind          ScopeKind
	DepartmentIDs []int64
}
