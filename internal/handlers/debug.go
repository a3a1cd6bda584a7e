package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/taskboard/apiserver/config"
	"github.com/taskboard/apiserver/internal/auth"
)

// DebugRouter registers the identity probes under /debug.
func DebugRouter(r chi.Router) {
	r.Get("/auth", DebugAuth)
	r.Get("/public", DebugPublic)
}

// EnvironmentRouter registers the redacted configuration view.
func EnvironmentRouter(r chi.Router, cfg config.Config) {
	r.Get("/info", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, cfg.Redacted())
	})
}

type DebugAuthResponse struct {
	Authenticated bool   `json:"authenticated"`
	Principal     string `json:"principal,omitempty"`
	UserID        string `json:"userId,omitempty"`
}

// DebugAuth reports the identity the middleware attached, if any.
func DebugAuth(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, DebugAuthResponse{
		Authenticated: ok,
		Principal:     id.Username,
		UserID:        id.UserID,
	})
}

func DebugPublic(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "public endpoint reachable",
		"timestamp": time.Now().UTC(),
	})
}

// Healthz answers liveness probes.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
