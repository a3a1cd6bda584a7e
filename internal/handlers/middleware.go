package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/taskboard/apiserver/internal/auth"
	"github.com/taskboard/apiserver/internal/logging"
)

// Authenticate attaches an auth.Identity to requests that carry a valid
// bearer token. It never rejects: requests without a usable token continue
// anonymously. Only tokens that cannot be decoded at all are logged.
func Authenticate(tokens *auth.TokenService, log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			username, err := tokens.ExtractUsername(token)
			if err != nil {
				if errors.Is(err, auth.ErrMalformedToken) {
					log.Warn(r.Context(), "malformed bearer token", "path", r.URL.Path, "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			if !tokens.Validate(token, username) {
				next.ServeHTTP(w, r)
				return
			}
			userID, err := tokens.ExtractUserID(token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := auth.WithIdentity(r.Context(), auth.Identity{Username: username, UserID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authorize rejects requests the policy does not allow for their identity
// state. A policy that is not enforced lets everything through.
func Authorize(policy *auth.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, authenticated := auth.IdentityFromContext(r.Context())
			if !policy.Allows(r.Method, r.URL.Path, authenticated) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

var corsMethods = strings.Join([]string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
	http.MethodOptions,
}, ", ")

// CORS allows every origin and answers preflight requests directly.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", corsMethods)
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		h.Set("Access-Control-Expose-Headers", "Location, Link, X-Total-Count, Content-Disposition")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
