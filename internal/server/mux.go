// Package server provides HTTP server construction for sitegate.
package server

import (
	"log/slog"
	"net/http"

	"github.com/alexjbarnes/sitegate/internal/auth"
)

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	Core   *auth.Core
	Logger *slog.Logger
	// TrustForwardedFor takes the client IP from X-Forwarded-For.
	TrustForwardedFor bool
	// App, when set, is served at / behind the session middleware.
	App http.Handler
}

// NewMux builds the HTTP mux with the login, logout and session
// endpoints. The session endpoint and App require a valid session.
func NewMux(cfg MuxConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", HandleLogin(cfg.Core, cfg.Logger, cfg.TrustForwardedFor))
	mux.HandleFunc("/auth/logout", HandleLogout(cfg.Core, cfg.Logger, cfg.TrustForwardedFor))

	authMiddleware := auth.Middleware(cfg.Core, cfg.Logger, cfg.TrustForwardedFor)
	mux.Handle("/auth/session", authMiddleware(HandleSession(cfg.Core, cfg.Logger)))

	if cfg.App != nil {
		mux.Handle("/", authMiddleware(cfg.App))
	}

	return mux
}
