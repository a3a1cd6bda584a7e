package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/taskboard/apiserver/internal/logging"
	"github.com/taskboard/apiserver/internal/services"
)

// AuthHandler provides login and token introspection endpoints.
type AuthHandler struct {
	authService *services.AuthService
	log         logging.Logger
}

func NewAuthHandler(authService *services.AuthService, log logging.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, authService *services.AuthService, log logging.Logger) {
	handler := NewAuthHandler(authService, log)

	r.Post("/login", handler.Login)
	r.Get("/me", handler.Me)
	r.Post("/logout", handler.Logout)
}

type LoginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Password        string `json:"password"`
}

// Login verifies credentials and returns a session with a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := h.authService.Login(r.Context(), req.UsernameOrEmail, req.Password)
	if err != nil {
		writeServiceError(w, r, h.log, err, "user")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Me returns the session described by the request's bearer token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	session, err := h.authService.CurrentUser(r.Context(), token)
	if err != nil {
		writeServiceError(w, r, h.log, err, "user")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Logout is a no-op; tokens are stateless and expire on their own.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
