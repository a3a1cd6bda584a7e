package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/apiserver/config"
	"github.com/taskboard/apiserver/internal/auth"
	"github.com/taskboard/apiserver/internal/logging"
	"github.com/taskboard/apiserver/internal/services"
)

// testRouter builds the full middleware stack. Repositories are nil, so only
// requests that stop before the service layer can be exercised.
func testRouter(t *testing.T, enforce, debugRoutes bool) (http.Handler, *auth.TokenService) {
	t.Helper()
	cfg := config.Config{
		MaxUploadBytes: 1 << 20,
		DebugRoutes:    debugRoutes,
		Auth: config.AuthConfig{
			SigningSecret: "router-secret",
			TokenTTL:      time.Hour,
			Enforce:       enforce,
		},
	}
	log := logging.Discard()
	tokens := auth.NewTokenService(cfg.Auth.SigningSecret, cfg.Auth.TokenTTL)
	router := NewRouter(Deps{
		Config:      cfg,
		Log:         log,
		Tokens:      tokens,
		Auth:        services.NewAuthService(nil, tokens),
		Tasks:       services.NewTaskService(nil, nil),
		Attachments: services.NewAttachmentService(nil, nil, nil, nil, log),
	})
	return router, tokens
}

func serve(h http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_HealthzIsPublic(t *testing.T) {
	router, _ := testRouter(t, true, false)

	rec := serve(router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRouter_EnforcedPolicyRejectsAnonymous(t *testing.T) {
	router, _ := testRouter(t, true, false)

	for _, path := range []string{"/tasks", "/tasks/" + uuid.NewString(), "/attachments/" + uuid.NewString()} {
		rec := serve(router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestRouter_DebugRoutesToggle(t *testing.T) {
	off, _ := testRouter(t, false, false)
	assert.Equal(t, http.StatusNotFound, serve(off, http.MethodGet, "/debug/public", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(off, http.MethodGet, "/environment/info", "").Code)

	on, _ := testRouter(t, false, true)
	assert.Equal(t, http.StatusOK, serve(on, http.MethodGet, "/debug/public", "").Code)
}

func TestRouter_EnvironmentRequiresToken(t *testing.T) {
	router, tokens := testRouter(t, true, true)

	rec := serve(router, http.MethodGet, "/environment/info", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	issued, err := tokens.Issue("alice", uuid.NewString())
	require.NoError(t, err)
	rec = serve(router, http.MethodGet, "/environment/info", issued.Value)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, len("router-secret"), body["jwtSecretLength"])
	assert.NotContains(t, rec.Body.String(), "router-secret")
}

func TestRouter_CORSPreflight(t *testing.T) {
	router, _ := testRouter(t, false, false)

	req := httptest.NewRequest(http.MethodOptions, "/tasks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
