package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexjbarnes/sitegate/internal/auth"
)

// sessionResponse is the body of GET /auth/session.
type sessionResponse struct {
	Username   string          `json:"username"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	ExpiresAt  time.Time       `json:"expires_at"`
	Groups     []string        `json:"groups"`
	Authorized map[string]bool `json:"authorized"`
}

// HandleSession returns the current user's identity and permissions. It
// must sit behind auth.Middleware.
func HandleSession(core *auth.Core, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		claims := auth.RequestUser(r.Context())
		if claims == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		perms, err := core.ResolvePermissions(r.Context(), claims.Username)
		if err != nil {
			internalError(w, logger, "session: resolving permissions", err)
			return
		}

		resp := sessionResponse{
			Username:   claims.Username,
			Name:       claims.Name,
			Email:      claims.Email,
			Groups:     perms.Groups,
			Authorized: perms.Authorized,
		}

		if claims.ExpiresAt != nil {
			resp.ExpiresAt = claims.ExpiresAt.Time.UTC()
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// HandleLogout revokes the caller's session and clears the cookie.
// Logging out without a session is not an error.
func HandleLogout(core *auth.Core, logger *slog.Logger, trustForwarded bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		ctx := r.Context()

		req, err := core.ForRequest(ctx, auth.Info(r, trustForwarded))
		if err != nil {
			internalError(w, logger, "logout: building request", err)
			return
		}

		res, err := req.Revoke(ctx)
		if err != nil {
			internalError(w, logger, "logout", err)
			return
		}

		auth.ClearSessionCookie(w, res.CookieName)
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
	}
}
