package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-his/meridian/internal/auth"
	"github.com/meridian-his/meridian/internal/shared"
)

func newGateFixture(t *testing.T) (*Gate, *auth.TokenService, *mockRepo) {
	t.Helper()
	tokens, err := auth.NewTokenService("gate-test-secret", time.Hour, 7*24*time.Hour)
	require.NoError(t, err)

	repo := newMockRepo()
	repo.grants["physician"] = []string{"patients:view"}
	gate := &Gate{Tokens: tokens, Service: NewService(repo, nil, nil)}
	return gate, tokens, repo
}

func newGateRouter(gate *Gate) http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(gate.Authenticate)

		r.Get("/whoami", func(w http.ResponseWriter, req *http.Request) {
			access := shared.AccessFromContext(req.Context())
			w.Write([]byte(access.Username))
		})

		r.With(gate.Require("patients", "view")).Get("/patients", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		r.With(gate.Require("patients", "delete")).Delete("/patients", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})
	return r
}

func get(t *testing.T, h http.Handler, method, path, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthenticateRejectsMissingOrMalformedHeader(t *testing.T) {
	gate, _, _ := newGateFixture(t)
	router := newGateRouter(gate)

	for _, header := range []string{
		"",
		"Bearer",
		"Basic dXNlcjpwYXNz",
		"Bearer not.a.token",
	} {
		rec := get(t, router, http.MethodGet, "/whoami", header)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestAuthenticateAcceptsAccessToken(t *testing.T) {
	gate, tokens, _ := newGateFixture(t)
	router := newGateRouter(gate)

	pair, err := tokens.IssuePair(1, 100, "drchen", []string{"physician"}, nil)
	require.NoError(t, err)

	rec := get(t, router, http.MethodGet, "/whoami", "Bearer "+pair.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "drchen", rec.Body.String())
}

func TestAuthenticateRejectsRefreshToken(t *testing.T) {
	gate, tokens, _ := newGateFixture(t)
	router := newGateRouter(gate)

	pair, err := tokens.IssuePair(1, 100, "drchen", []string{"physician"}, nil)
	require.NoError(t, err)

	rec := get(t, router, http.MethodGet, "/whoami", "Bearer "+pair.RefreshToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateRejectsExpiredToken(t *testing.T) {
	gate, _, _ := newGateFixture(t)
	router := newGateRouter(gate)

	past, err := auth.NewTokenService("gate-test-secret", time.Hour, 7*24*time.Hour)
	require.NoError(t, err)
	past = past.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	pair, err := past.IssuePair(1, 100, "drchen", []string{"physician"}, nil)
	require.NoError(t, err)

	rec := get(t, router, http.MethodGet, "/whoami", "Bearer "+pair.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireGrantedAndDenied(t *testing.T) {
	gate, tokens, _ := newGateFixture(t)
	router := newGateRouter(gate)

	pair, err := tokens.IssuePair(1, 100, "drchen", []string{"physician"}, nil)
	require.NoError(t, err)

	rec := get(t, router, http.MethodGet, "/patients", "Bearer "+pair.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Same identity, ungranted action: authentication succeeds but
	// authorization fails.
	rec = get(t, router, http.MethodDelete, "/patients", "Bearer "+pair.AccessToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireWithoutAuthentication(t *testing.T) {
	gate, _, _ := newGateFixture(t)

	// Require mounted without a preceding Authenticate never authorizes.
	r := chi.NewRouter()
	r.With(gate.Require("patients", "view")).Get("/patients", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := get(t, r, http.MethodGet, "/patients", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
