package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/meridian-his/meridian/internal/auth"
	"github.com/meridian-his/meridian/internal/platform/httpx"
	"github.com/meridian-his/meridian/internal/shared"
)

// TokenVerifier verifies a presented token of the expected kind.
type TokenVerifier interface {
	Verify(token string, expected auth.TokenKind) (*auth.Claims, error)
}

// VerificationMetrics counts token verification outcomes.
type VerificationMetrics interface {
	ObserveTokenVerification(outcome string)
}

// Gate authenticates requests and authorizes protected operations. The two
// steps are always sequenced: Require never runs without a prior successful
// Authenticate in the same request.
type Gate struct {
	Tokens  TokenVerifier
	Service *Service
	Logger  *slog.Logger
	Metrics VerificationMetrics
}

// Authenticate verifies the bearer access token and stores the resulting
// access context in the request context. All failures yield the same 401.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httpx.RespondError(w, shared.ErrTokenInvalid)
			return
		}
		claims, err := g.Tokens.Verify(token, auth.KindAccess)
		if err != nil {
			g.observeVerification("invalid")
			httpx.RespondError(w, shared.ErrTokenInvalid)
			return
		}
		g.observeVerification("ok")
		access := &shared.AccessContext{
			UserID:       claims.UserID,
			StaffID:      claims.StaffID,
			Username:     claims.Username,
			Roles:        claims.Roles,
			DepartmentID: claims.DepartmentID,
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithAccess(r.Context(), access)))
	})
}

// Require ensures the authenticated context holds a grant for the exact
// (resource, action) pair.
func (g *Gate) Require(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			access := shared.AccessFromContext(r.Context())
			if access == nil {
				httpx.RespondError(w, shared.ErrTokenInvalid)
				return
			}
			allowed, err := g.Service.HasPermission(r.Context(), access, resource, action)
			if err != nil {
				if g.Logger != nil {
					g.Logger.Error("permission check", slog.String("resource", resource), slog.String("action", action), slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !allowed {
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Gate) observeVerification(outcome string) {
	if g.Metrics != nil {
		g.Metrics.ObserveTokenVerification(outcome)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
