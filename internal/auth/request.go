// Package auth implements login, session token lifecycle and
// group-based authorization.
//
// A Core holds the shared dependencies. Every inbound request builds a
// fresh Request from its cookie header, user agent and client IP; all
// state lives in the stores and is reloaded on each operation.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/alexjbarnes/sitegate/internal/errors"
	"github.com/alexjbarnes/sitegate/internal/models"
	"github.com/alexjbarnes/sitegate/internal/repository"
	"github.com/alexjbarnes/sitegate/internal/store"
)

// Core wires the credential repository and the session store together.
// It is safe for concurrent use.
type Core struct {
	repo     *repository.Repository
	sessions store.SessionStore
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Core.
type Option func(*Core)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Core) {
		c.now = now
	}
}

// NewCore returns a Core over the given stores.
func NewCore(repo *repository.Repository, sessions store.SessionStore, logger *slog.Logger, opts ...Option) *Core {
	c := &Core{
		repo:     repo,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Repository returns the credential repository.
func (c *Core) Repository() *repository.Repository {
	return c.repo
}

// RequestInfo is what the router hands over for each inbound request.
type RequestInfo struct {
	// Cookie is the raw Cookie header value, possibly empty.
	Cookie    string
	UserAgent string
	IP        string
}

// Request is the per-request view of the auth subsystem.
type Request struct {
	core       *Core
	info       RequestInfo
	cookieName string

	token  string
	peeked *PeekedToken

	// verified is set once the token signature has been checked or the
	// token was issued by this request.
	verified *Claims
}

// ForRequest builds a Request. The session cookie is looked up by the
// cookie_name policy; a well-formed token in it is peeked immediately.
func (c *Core) ForRequest(ctx context.Context, info RequestInfo) (*Request, error) {
	cookieName, err := c.repo.Policy(ctx, models.PolicyCookieName)
	if err != nil {
		return nil, err
	}

	if cookieName == "" {
		return nil, apperrors.ErrCookieNameMissing
	}

	r := &Request{
		core:       c,
		info:       info,
		cookieName: cookieName,
	}

	r.setToken(cookieValue(info.Cookie, cookieName))

	return r, nil
}

// cookieValue returns the value of the named cookie in a Cookie header.
func cookieValue(header, name string) string {
	if header == "" {
		return ""
	}

	cookies, err := http.ParseCookie(header)
	if err != nil {
		return ""
	}

	for _, c := range cookies {
		if c.Name == name {
			return c.Value
		}
	}

	return ""
}

func (r *Request) setToken(token string) {
	r.token = token
	r.peeked = nil
	r.verified = nil

	if token == "" {
		return
	}

	p, err := Peek(token)
	if err != nil {
		r.core.logger.Debug("session cookie is not a well-formed token", slog.String("error", err.Error()))
		return
	}

	r.peeked = p
}

// Token returns the session token carried by this request, if any.
func (r *Request) Token() string {
	return r.token
}

// CookieName returns the session cookie name in effect for this request.
func (r *Request) CookieName() string {
	return r.cookieName
}

// Claims returns the verified claims, or nil if the request has not been
// validated successfully.
func (r *Request) Claims() *Claims {
	return r.verified
}

// Info returns the request context this Request was built from.
func (r *Request) Info() RequestInfo {
	return r.info
}

func (r *Request) String() string {
	user := ""
	if r.peeked != nil {
		user = r.peeked.Username
	}

	return fmt.Sprintf("request(user=%q ip=%s)", user, r.info.IP)
}
