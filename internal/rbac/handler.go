package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-his/meridian/internal/platform/httpx"
	"github.com/meridian-his/meridian/internal/shared"
)

// Handler exposes role, grant and policy administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers administration routes behind the gate.
func (h *Handler) MountRoutes(r chi.Router, gate *Gate) {
	r.Route("/rbac", func(r chi.Router) {
		r.Use(gate.Authenticate)

		r.With(gate.Require(shared.ResourcePermissions, shared.ActionView)).
			Get("/permissions", h.listPermissions)

		r.Route("/roles", func(r chi.Router) {
			r.With(gate.Require(shared.ResourceRoles, shared.ActionView)).Get("/", h.listRoles)
			r.With(gate.Require(shared.ResourceRoles, shared.ActionManage)).Post("/", h.createRole)
			r.Route("/{roleID}", func(r chi.Router) {
				r.With(gate.Require(shared.ResourceRoles, shared.ActionView)).Get("/", h.getRole)
				r.With(gate.Require(shared.ResourceRoles, shared.ActionManage)).Put("/", h.updateRole)
				r.With(gate.Require(shared.ResourceRoles, shared.ActionManage)).Delete("/", h.deleteRole)
				r.With(gate.Require(shared.ResourceRoles, shared.ActionManage)).Put("/permissions", h.setRolePermissions)
				r.With(gate.Require(shared.ResourceDataPolicies, shared.ActionView)).Get("/policies", h.listPolicies)
				r.With(gate.Require(shared.ResourceDataPolicies, shared.ActionManage)).Put("/policies", h.upsertPolicy)
			})
		})

		r.Route("/users/{userID}/roles", func(r chi.Router) {
			r.With(gate.Require(shared.ResourceRoles, shared.ActionManage)).Post("/", h.assignRole)
			r.With(gate.Require(shared.ResourceRoles, shared.ActionManage)).Delete("/{roleID}", h.removeRole)
		})

		r.With(gate.Require(shared.ResourceDataPolicies, shared.ActionManage)).
			Delete("/policies/{policyID}", h.deletePolicy)
	})
}

type rolePayload struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsSystem    bool   `json:"is_system"`
}

func toRolePayload(role Role) rolePayload {
	return rolePayload{
		ID:          role.ID,
		Code:        role.Code,
		Name:        role.Name,
		Description: role.Description,
		IsSystem:    role.IsSystem,
	}
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	payload := make([]rolePayload, 0, len(roles))
	for _, role := range roles {
		payload = append(payload, toRolePayload(role))
	}
	httpx.JSON(w, http.StatusOK, payload)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRolePayload(role))
}

type createRoleRequest struct {
	Code        string `json:"code" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "code and name are required")
		return
	}
	role, err := h.service.CreateRole(r.Context(), req.Code, req.Name, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRolePayload(role))
}

type updateRoleRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "name is required")
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, req.Name, req.Description)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRolePayload(role))
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, perms)
}

type setPermissionsRequest struct {
	PermissionIDs []int64 `json:"permission_ids"`
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	var req setPermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.service.SetRolePermissions(r.Context(), id, req.PermissionIDs); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRoleRequest struct {
	RoleID       int64  `json:"role_id" validate:"required"`
	DepartmentID *int64 `json:"department_id"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role_id is required")
		return
	}
	if err := h.service.AssignRole(r.Context(), userID, req.RoleID, req.DepartmentID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.RemoveRole(r.Context(), userID, roleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type upsertPolicyRequest struct {
	Resource      string  `json:"resource" validate:"required"`
	ScopeKind     string  `json:"scope_kind" validate:"required"`
	DepartmentIDs []int64 `json:"department_ids"`
}

func (h *Handler) listPolicies(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	policies, err := h.service.ListPolicies(r.Context(), roleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, policies)
}

func (h *Handler) upsertPolicy(w http.ResponseWriter, r *http.Request) {
	roleID, ok := pathID(w, r, "roleID")
	if !ok {
		return
	}
	var req upsertPolicyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "resource and scope_kind are required")
		return
	}
	policy, err := h.service.UpsertPolicy(r.Context(), DataAccessPolicy{
		RoleID:        roleID,
		Resource:      req.Resource,
		ScopeKind:     ScopeKind(req.ScopeKind),
		DepartmentIDs: req.DepartmentIDs,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, policy)
}

func (h *Handler) deletePolicy(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "policyID")
	if !ok {
		return
	}
	if err := h.service.DeletePolicy(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+name)
		return 0, false
	}
	return id, true
}
