package auth

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-his/meridian/internal/platform/httpx"
	"github.com/meridian-his/meridian/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers auth routes. Login and refresh are public; the rest
// require a verified access token via the supplied middleware.
func (h *Handler) MountRoutes(r chi.Router, authenticate func(http.Handler) http.Handler) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.handleLogin)
		r.Post("/refresh", h.handleRefresh)
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/logout", h.handleLogout)
			r.Post("/password", h.handleChangePassword)
			r.Get("/me", h.handleMe)
		})
	})
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type profilePayload struct {
	StaffID      int64  `json:"staff_id"`
	FullName     string `json:"full_name"`
	DepartmentID *int64 `json:"department_id,omitempty"`
	Title        string `json:"title,omitempty"`
}

type tokenPairResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresIn    int64           `json:"expires_in"`
	Profile      *profilePayload `json:"profile,omitempty"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "username and password are required")
		return
	}

	pair, profile, err := h.service.Login(r.Context(), req.Username, req.Password, originFromRequest(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	httpx.JSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		Profile: &profilePayload{
			StaffID:      profile.StaffID,
			FullName:     profile.FullName,
			DepartmentID: profile.DepartmentID,
			Title:        profile.Title,
		},
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "refresh_token is required")
		return
	}

	pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	access := shared.AccessFromContext(r.Context())
	if err := h.service.Logout(r.Context(), access, originFromRequest(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "new password must be at least 8 characters")
		return
	}

	access := shared.AccessFromContext(r.Context())
	if err := h.service.ChangePassword(r.Context(), access, req.CurrentPassword, req.NewPassword, originFromRequest(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type sessionResponse struct {
	UserID       int64           `json:"user_id"`
	Username     string          `json:"username"`
	Roles        []string        `json:"roles"`
	DepartmentID *int64          `json:"department_id,omitempty"`
	Profile      *profilePayload `json:"profile,omitempty"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	access := shared.AccessFromContext(r.Context())
	if access == nil {
		httpx.RespondError(w, shared.ErrTokenInvalid)
		return
	}

	resp := sessionResponse{
		UserID:       access.UserID,
		Username:     access.Username,
		Roles:        access.Roles,
		DepartmentID: access.DepartmentID,
	}
	if profile, err := h.service.Introspect(r.Context(), access); err == nil {
		resp.Profile = &profilePayload{
			StaffID:      profile.StaffID,
			FullName:     profile.FullName,
			DepartmentID: profile.DepartmentID,
			Title:        profile.Title,
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func originFromRequest(r *http.Request) Origin {
	return Origin{Channel: "web", IP: r.RemoteAddr}
}
