package auth

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

type contextKey int

const (
	ctxRequest contextKey = iota
	ctxUser
	ctxRemoteIP
)

// RequestSession returns the auth Request attached by Middleware, or nil.
func RequestSession(ctx context.Context) *Request {
	v, _ := ctx.Value(ctxRequest).(*Request)
	return v
}

// RequestUser returns the verified claims of the authenticated user, or
// nil.
func RequestUser(ctx context.Context) *Claims {
	v, _ := ctx.Value(ctxUser).(*Claims)
	return v
}

// RequestRemoteIP returns the client IP from the context, or "".
func RequestRemoteIP(ctx context.Context) string {
	v, _ := ctx.Value(ctxRemoteIP).(string)
	return v
}

// ClientIP resolves the caller's IP. With trustForwarded set, the first
// X-Forwarded-For entry wins; otherwise the port is stripped from
// RemoteAddr, falling back to the raw value.
func ClientIP(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// Info builds the RequestInfo for an inbound HTTP request.
func Info(r *http.Request, trustForwarded bool) RequestInfo {
	return RequestInfo{
		Cookie:    r.Header.Get("Cookie"),
		UserAgent: r.UserAgent(),
		IP:        ClientIP(r, trustForwarded),
	}
}

// SetSessionCookie attaches a freshly issued session cookie.
func SetSessionCookie(w http.ResponseWriter, issued IssueResult) {
	http.SetCookie(w, &http.Cookie{
		Name:     issued.CookieName,
		Value:    issued.Token,
		Path:     "/",
		Expires:  issued.ExpiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie attaches an immediately expiring cookie.
func ClearSessionCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware returns HTTP middleware that requires a valid session.
// Expired sessions are collected first. A token close to expiry is
// refreshed in place and the new cookie is attached to the response.
// Any other outcome clears the cookie and answers 401.
func Middleware(core *Core, logger *slog.Logger, trustForwarded bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			info := Info(r, trustForwarded)

			if _, err := core.GarbageCollect(ctx); err != nil {
				logger.Error("middleware: session garbage collection", slog.String("error", err.Error()))
			}

			req, err := core.ForRequest(ctx, info)
			if err != nil {
				logger.Error("middleware: building request", slog.String("error", err.Error()))
				http.Error(w, "internal error", http.StatusInternalServerError)

				return
			}

			v, err := req.Validate(ctx)
			if err != nil {
				logger.Error("middleware: validating session", slog.String("error", err.Error()))
				http.Error(w, "internal error", http.StatusInternalServerError)

				return
			}

			switch v.State {
			case StateOK:
			case StateRefresh:
				res, err := req.refreshValidated(ctx, v)
				if err != nil {
					logger.Error("middleware: refreshing session", slog.String("error", err.Error()))
					ClearSessionCookie(w, req.CookieName())
					http.Error(w, "internal error", http.StatusInternalServerError)

					return
				}

				SetSessionCookie(w, *res.Issued)
			default:
				logger.Debug("middleware: unauthenticated",
					slog.String("state", string(v.State)),
					slog.String("ip", info.IP),
					slog.String("path", r.URL.Path),
				)

				// An expired token may be the loser of a concurrent refresh;
				// clearing it would also drop the cookie the winner just set.
				if req.Token() != "" && v.State != StateExpired {
					ClearSessionCookie(w, req.CookieName())
				}

				http.Error(w, "unauthorized", http.StatusUnauthorized)

				return
			}

			ctx = context.WithValue(ctx, ctxRequest, req)
			ctx = context.WithValue(ctx, ctxUser, req.Claims())
			ctx = context.WithValue(ctx, ctxRemoteIP, info.IP)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission returns middleware that answers 403 unless the
// authenticated user holds key. It must sit behind Middleware.
func RequirePermission(key string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := RequestSession(r.Context())
			if req == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ok, err := req.Authorized(r.Context(), key)
			if err != nil {
				logger.Error("middleware: resolving permissions", slog.String("error", err.Error()))
				http.Error(w, "internal error", http.StatusInternalServerError)

				return
			}

			if !ok {
				logger.Warn("middleware: permission denied",
					slog.String("username", req.Claims().Username),
					slog.String("permission", key),
				)
				http.Error(w, "forbidden", http.StatusForbidden)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
