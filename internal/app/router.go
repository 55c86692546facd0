package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-his/meridian/internal/audit"
	"github.com/meridian-his/meridian/internal/auth"
	"github.com/meridian-his/meridian/internal/observability"
	"github.com/meridian-his/meridian/internal/rbac"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	AuthHandler  *auth.Handler
	RBACHandler  *rbac.Handler
	AuditHandler *audit.Handler
	Gate         *rbac.Gate
	Metrics      *observability.Metrics
}

// NewRouter assembles the chi router with the full middleware chain.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{Logger: p.Logger, Config: p.Config, Metrics: p.Metrics}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", p.Metrics.Handler())
	}

	if p.AuthHandler != nil {
		p.AuthHandler.MountRoutes(r, p.Gate.Authenticate)
	}
	if p.RBACHandler != nil {
		p.RBACHandler.MountRoutes(r, p.Gate)
	}
	if p.AuditHandler != nil {
		p.AuditHandler.MountRoutes(r, p.Gate)
	}

	return r
}
