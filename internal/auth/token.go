package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/alexjbarnes/sitegate/internal/errors"
	"github.com/alexjbarnes/sitegate/internal/models"
	"github.com/alexjbarnes/sitegate/internal/repository"
	"github.com/alexjbarnes/sitegate/internal/secret"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// State is the outcome of token validation.
type State string

const (
	StateExpired  State = "expired"
	StateError    State = "error"
	StateLocked   State = "locked"
	StateDisabled State = "disabled"
	StateInvalid  State = "invalid"
	StateOK       State = "OK"
	StateRefresh  State = "refresh"
)

// Authenticated reports whether s grants access.
func (s State) Authenticated() bool {
	return s == StateOK || s == StateRefresh
}

// hmacAlgorithms are the signing methods accepted for verification.
var hmacAlgorithms = []string{"HS256", "HS384", "HS512"}

// Claims is the signed token payload.
type Claims struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// Identity is the user data carried by a session token.
type Identity struct {
	Username string
	Name     string
	Email    string
}

// ValidateResult is the outcome of Validate.
type ValidateResult struct {
	State State
	// Claims is set for OK and refresh.
	Claims *Claims
	// Remaining is the token lifetime left at validation time.
	Remaining time.Duration
}

// IssueResult describes a freshly issued session token.
type IssueResult struct {
	Token string
	// Cookie is the complete "<cookie_name>=<token>" pair.
	Cookie     string
	CookieName string
	ExpiresAt  time.Time
}

// RefreshResult is the outcome of Refresh. Issued is nil when no new
// token was produced.
type RefreshResult struct {
	State  State
	Issued *IssueResult
}

// RevokeResult carries the cookie directive that clears the session
// cookie on the client.
type RevokeResult struct {
	Cookie     string
	CookieName string
}

// expiredCookieAttrs makes a browser drop the cookie immediately.
const expiredCookieAttrs = "; Max-Age=0; Expires=Thu, 01 Jan 1970 00:00:00 GMT"

// ExpiredCookie returns a directive that removes the named cookie.
func ExpiredCookie(name string) string {
	return name + "=" + expiredCookieAttrs
}

// Validate checks the request's session token.
//
// A missing or malformed token is expired. Sessions of users that no
// longer exist, or have since been locked or disabled, are deleted. A
// user agent or IP differing from the one bound at issuance deletes the
// session. The signature is verified with the per-session secret; a
// verified token close to expiry reports refresh rather than OK.
func (r *Request) Validate(ctx context.Context) (ValidateResult, error) {
	if r.token == "" || r.peeked == nil {
		return ValidateResult{State: StateExpired}, nil
	}

	logger := r.core.logger.With(slog.String("username", r.peeked.Username), slog.String("ip", r.info.IP))

	doc, err := r.core.repo.Document(ctx)
	if err != nil {
		return ValidateResult{State: StateError}, err
	}

	user, ok := doc.Users[r.peeked.Username]

	var retired State

	switch {
	case !ok:
		retired = StateInvalid
	case user.AccountDisabled:
		retired = StateDisabled
	case user.AccountLocked:
		retired = StateLocked
	}

	if retired != "" {
		logger.Warn("session: user no longer allowed, deleting session", slog.String("state", string(retired)))

		if err := r.core.sessions.Delete(ctx, r.token); err != nil {
			return ValidateResult{State: StateError}, err
		}

		return ValidateResult{State: retired}, nil
	}

	sess, err := r.core.sessions.Get(ctx, r.token)
	if err != nil {
		return ValidateResult{State: StateError}, err
	}

	if sess == nil {
		return ValidateResult{State: StateExpired}, nil
	}

	if sess.UserAgent != r.info.UserAgent || sess.IP != r.info.IP {
		logger.Warn("session: client binding mismatch, deleting session",
			slog.String("bound_ip", sess.IP),
			slog.String("bound_user_agent", sess.UserAgent),
			slog.String("user_agent", r.info.UserAgent),
		)

		if err := r.core.sessions.Delete(ctx, r.token); err != nil {
			return ValidateResult{State: StateError}, err
		}

		return ValidateResult{State: StateInvalid}, nil
	}

	claims := &Claims{}

	_, err = jwt.ParseWithClaims(r.token, claims, func(*jwt.Token) (any, error) {
		return []byte(sess.Secret), nil
	},
		jwt.WithValidMethods(hmacAlgorithms),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(r.core.now),
	)
	if err != nil {
		logger.Debug("session: token verification failed, deleting session", slog.String("error", err.Error()))

		if err := r.core.sessions.Delete(ctx, r.token); err != nil {
			return ValidateResult{State: StateError}, err
		}

		return ValidateResult{State: StateExpired}, nil
	}

	threshold := secret.FallbackDuration
	if v, ok := doc.DefaultPolicy.String(models.PolicyTokenRefresh); ok {
		threshold = secret.ParseDuration(v)
	}

	now := r.core.now()
	remaining := claims.ExpiresAt.Sub(now)
	r.verified = claims

	state := StateRefresh
	if claims.ExpiresAt.Unix()-now.Unix() > threshold {
		state = StateOK
	}

	return ValidateResult{State: state, Claims: claims, Remaining: remaining}, nil
}

// Issue signs a new token for id with a fresh per-session secret and
// binds it to this request's user agent and IP.
func (r *Request) Issue(ctx context.Context, id Identity) (IssueResult, error) {
	alg, err := r.core.repo.TokenAlgorithm(ctx)
	if err != nil {
		return IssueResult{}, err
	}

	method, err := signingMethod(alg.Algorithm)
	if err != nil {
		return IssueResult{}, err
	}

	key, err := secret.GenerateSessionSecret()
	if err != nil {
		return IssueResult{}, err
	}

	now := r.core.now()
	expires := now.Add(time.Duration(secret.ParseDuration(alg.Expires)) * time.Second)

	claims := &Claims{
		Username: id.Username,
		Name:     id.Name,
		Email:    id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	if err != nil {
		return IssueResult{}, fmt.Errorf("signing token: %w", err)
	}

	err = r.core.sessions.Put(ctx, token, models.Session{
		Secret:    key,
		UserAgent: r.info.UserAgent,
		IP:        r.info.IP,
	})
	if err != nil {
		return IssueResult{}, fmt.Errorf("storing session: %w", err)
	}

	r.setToken(token)
	r.verified = claims

	r.core.logger.Debug("session: issued",
		slog.String("username", id.Username),
		slog.String("ip", r.info.IP),
		slog.Time("expires", expires),
	)

	return IssueResult{
		Token:      token,
		Cookie:     r.cookieName + "=" + token,
		CookieName: r.cookieName,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

// Refresh replaces the request's token with a new one carrying the same
// identity. Only OK and refresh tokens are refreshed; any other state is
// returned unchanged. The old session is deleted before the new one is
// issued, so a failure never leaves two live sessions.
func (r *Request) Refresh(ctx context.Context) (RefreshResult, error) {
	v, err := r.Validate(ctx)
	if err != nil {
		return RefreshResult{State: v.State}, err
	}

	return r.refreshValidated(ctx, v)
}

func (r *Request) refreshValidated(ctx context.Context, v ValidateResult) (RefreshResult, error) {
	if !v.State.Authenticated() {
		return RefreshResult{State: v.State}, nil
	}

	if err := r.core.sessions.Delete(ctx, r.token); err != nil {
		return RefreshResult{State: StateError}, fmt.Errorf("deleting old session: %w", err)
	}

	issued, err := r.Issue(ctx, Identity{
		Username: v.Claims.Username,
		Name:     v.Claims.Name,
		Email:    v.Claims.Email,
	})
	if err != nil {
		r.setToken("")
		return RefreshResult{State: StateError}, err
	}

	return RefreshResult{State: v.State, Issued: &issued}, nil
}

// Revoke deletes the request's session, if any, and returns a directive
// clearing the cookie.
func (r *Request) Revoke(ctx context.Context) (RevokeResult, error) {
	if r.token != "" {
		if err := r.core.sessions.Delete(ctx, r.token); err != nil {
			return RevokeResult{}, err
		}
	}

	r.setToken("")

	return RevokeResult{
		Cookie:     ExpiredCookie(r.cookieName),
		CookieName: r.cookieName,
	}, nil
}

// GarbageCollect removes every session whose peeked expiry has passed.
// Tokens that cannot be decoded are removed too.
func (c *Core) GarbageCollect(ctx context.Context) (int, error) {
	now := c.now().Unix()

	removed, err := c.sessions.Sweep(ctx, func(token string) bool {
		p, err := Peek(token)
		if err != nil {
			return true
		}

		return p.Expires <= now
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		c.logger.Debug("session: garbage collected", slog.Int("removed", removed))
	}

	return removed, nil
}

// RevokeUser deletes every session whose token names username.
func (c *Core) RevokeUser(ctx context.Context, username string) (int, error) {
	username = repository.Canonical(username)

	removed, err := c.sessions.Sweep(ctx, func(token string) bool {
		p, err := Peek(token)
		return err == nil && p.Username == username
	})
	if err != nil {
		return 0, err
	}

	c.logger.Info("session: revoked user sessions",
		slog.String("username", username),
		slog.Int("removed", removed),
	)

	return removed, nil
}

func signingMethod(name string) (jwt.SigningMethod, error) {
	for _, alg := range hmacAlgorithms {
		if alg == name {
			return jwt.GetSigningMethod(name), nil
		}
	}

	return nil, fmt.Errorf("%q: %w", name, apperrors.ErrInvalidAlgorithm)
}

// IsConfigError reports whether err is an operator configuration
// problem rather than a store failure.
func IsConfigError(err error) bool {
	return errors.Is(err, apperrors.ErrPolicyMissing) ||
		errors.Is(err, apperrors.ErrInvalidAlgorithm) ||
		errors.Is(err, apperrors.ErrCookieNameMissing)
}
