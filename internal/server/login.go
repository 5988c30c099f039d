package server

import (
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/alexjbarnes/sitegate/internal/auth"
)

const (
	// rateLimitPruneThreshold is the number of tracked IPs above which
	// the rate limiter prunes expired entries to prevent unbounded growth.
	rateLimitPruneThreshold = 1000

	rateLimitWindow  = 5 * time.Minute
	rateLimitMaxFail = 10

	defaultRedirect = "/"
)

// loginPage renders the login form.
var loginPage = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Sign in</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    background: #f5f5f5;
    color: #1a1a1a;
    display: flex;
    align-items: center;
    justify-content: center;
    min-height: 100vh;
  }
  .card {
    background: #fff;
    border: 1px solid #e0e0e0;
    border-radius: 8px;
    padding: 2.5rem 2rem;
    width: 100%;
    max-width: 380px;
    box-shadow: 0 1px 3px rgba(0,0,0,0.06);
  }
  .card h1 { font-size: 1.25rem; font-weight: 600; margin-bottom: 1.5rem; }
  .error {
    background: #fef2f2;
    color: #991b1b;
    border: 1px solid #fecaca;
    border-radius: 6px;
    padding: 0.6rem 0.75rem;
    font-size: 0.85rem;
    margin-bottom: 1rem;
  }
  label { display: block; font-size: 0.85rem; font-weight: 500; margin-bottom: 0.35rem; color: #333; }
  input[type="text"], input[type="password"] {
    width: 100%;
    padding: 0.55rem 0.7rem;
    border: 1px solid #d0d0d0;
    border-radius: 6px;
    font-size: 0.9rem;
    margin-bottom: 1rem;
  }
  button {
    width: 100%;
    padding: 0.6rem;
    background: #1a1a1a;
    color: #fff;
    border: none;
    border-radius: 6px;
    font-size: 0.9rem;
    cursor: pointer;
  }
  button:hover { background: #333; }
</style>
</head>
<body>
<div class="card">
  <h1>Sign in</h1>
  {{if .Error}}<div class="error">{{.Error}}</div>{{end}}
  <form method="POST" action="/auth/login">
    <input type="hidden" name="next" value="{{.Next}}">
    <label for="username">Username</label>
    <input type="text" id="username" name="username" value="{{.Username}}" autocomplete="username" required autofocus>
    <label for="password">Password</label>
    <input type="password" id="password" name="password" autocomplete="current-password" required>
    <button type="submit">Sign in</button>
  </form>
</div>
</body>
</html>`))

type loginData struct {
	Next     string
	Username string
	Error    string
}

// loginMessages maps failed login states to what the user is shown.
// Unknown user and wrong password read the same.
var loginMessages = map[auth.LoginState]string{
	auth.LoginInvalidUser:       "Invalid username or password.",
	auth.LoginFailed:            "Invalid username or password.",
	auth.LoginInvalidUserConfig: "This account is not set up correctly. Contact an administrator.",
	auth.LoginDisabled:          "This account is disabled.",
	auth.LoginLocked:            "Too many failed attempts. Try again later.",
}

// loginRateLimiter tracks failed login attempts per IP with a sliding
// window. After rateLimitMaxFail failures within the window, further
// attempts are rejected until the window expires.
type loginRateLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	now      func() time.Time
}

func newLoginRateLimiter() *loginRateLimiter {
	return &loginRateLimiter{
		failures: make(map[string][]time.Time),
		now:      time.Now,
	}
}

// check returns true if the IP is currently rate-limited.
func (rl *loginRateLimiter) check(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rateLimitWindow)

	if len(rl.failures) > rateLimitPruneThreshold {
		for k, times := range rl.failures {
			if len(times) == 0 || times[len(times)-1].Before(cutoff) {
				delete(rl.failures, k)
			}
		}
	}

	recent := rl.failures[ip][:0]
	for _, t := range rl.failures[ip] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) == 0 {
		delete(rl.failures, ip)
	} else {
		rl.failures[ip] = recent
	}

	return len(recent) >= rateLimitMaxFail
}

// record adds a failed attempt for the IP.
func (rl *loginRateLimiter) record(ip string) {
	rl.mu.Lock()
	rl.failures[ip] = append(rl.failures[ip], rl.now())
	rl.mu.Unlock()
}

// safeRedirect accepts only same-site absolute paths.
func safeRedirect(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return defaultRedirect
	}

	return next
}

func renderLogin(w http.ResponseWriter, status int, data loginData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = loginPage.Execute(w, data)
}

// HandleLogin returns the /auth/login handler: GET renders the form,
// POST checks credentials and issues a session cookie.
func HandleLogin(core *auth.Core, logger *slog.Logger, trustForwarded bool) http.HandlerFunc {
	limiter := newLoginRateLimiter()

	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			renderLogin(w, http.StatusOK, loginData{Next: safeRedirect(r.URL.Query().Get("next"))})
		case http.MethodPost:
			handleLoginPOST(w, r, core, logger, limiter, trustForwarded)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func handleLoginPOST(w http.ResponseWriter, r *http.Request, core *auth.Core, logger *slog.Logger, limiter *loginRateLimiter, trustForwarded bool) {
	ctx := r.Context()
	info := auth.Info(r, trustForwarded)

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	data := loginData{
		Next:     safeRedirect(r.PostFormValue("next")),
		Username: r.PostFormValue("username"),
	}

	if limiter.check(info.IP) {
		logger.Warn("login: rate limited", slog.String("ip", info.IP))

		data.Error = "Too many attempts. Try again later."
		renderLogin(w, http.StatusTooManyRequests, data)

		return
	}

	req, err := core.ForRequest(ctx, info)
	if err != nil {
		internalError(w, logger, "login: building request", err)
		return
	}

	res, err := req.Login(ctx, data.Username, r.PostFormValue("password"))
	if err != nil {
		internalError(w, logger, "login", err)
		return
	}

	if res.State != auth.LoginSuccess {
		limiter.record(info.IP)

		data.Error = loginMessages[res.State]
		renderLogin(w, http.StatusUnauthorized, data)

		return
	}

	// Replace any session the browser already holds.
	if req.Token() != "" {
		if _, err := req.Revoke(ctx); err != nil {
			internalError(w, logger, "login: revoking previous session", err)
			return
		}
	}

	issued, err := req.Issue(ctx, auth.Identity{
		Username: res.Username,
		Name:     res.Name,
		Email:    res.Email,
	})
	if err != nil {
		internalError(w, logger, "login: issuing session", err)
		return
	}

	auth.SetSessionCookie(w, issued)
	http.Redirect(w, r, data.Next, http.StatusSeeOther)
}

func internalError(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	logger.Error(msg,
		slog.String("error", err.Error()),
		slog.Bool("configuration", auth.IsConfigError(err)),
	)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
