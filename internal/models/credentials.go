// Package models defines the persisted document shapes shared across
// internal packages.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Reserved identities. The admin user and admins group always exist and
// are exempt from destructive generic operations.
const (
	AdminUser   = "admin"
	AdminsGroup = "admins"
)

// Policy keys read from the default_policy section.
const (
	PolicyPasswordRetries = "password_retries"
	PolicyAccountLockout  = "account_lockout"
	PolicyTokenRefresh    = "token_refresh"
	PolicyCookieName      = "cookie_name"
)

// User is a stored account, keyed by username in CredentialDocument.Users.
type User struct {
	Name                    string `json:"name"`
	Email                   string `json:"email"`
	Password                string `json:"password"`
	PasswordAttempts        int    `json:"password_attempts"`
	PasswordAttemptsExpires int64  `json:"password_attempts_expires"`
	AccountLocked           bool   `json:"account_locked"`
	AccountDisabled         bool   `json:"account_disabled"`
}

// ClearAttempts resets the failed-attempt counter, its window and the
// lock flag. Reports whether anything changed.
func (u *User) ClearAttempts() bool {
	changed := u.PasswordAttempts != 0 || u.PasswordAttemptsExpires != 0 || u.AccountLocked
	u.PasswordAttempts = 0
	u.PasswordAttemptsExpires = 0
	u.AccountLocked = false

	return changed
}

// Group is a named set of members with a permission map.
type Group struct {
	Users     []string        `json:"users"`
	Authorize map[string]bool `json:"authorize"`
}

// HasMember reports whether username is listed in the group.
func (g *Group) HasMember(username string) bool {
	for _, u := range g.Users {
		if u == username {
			return true
		}
	}

	return false
}

// RemoveMember drops username from the member list. Reports whether it
// was present.
func (g *Group) RemoveMember(username string) bool {
	kept := g.Users[:0]
	removed := false

	for _, u := range g.Users {
		if u == username {
			removed = true
			continue
		}

		kept = append(kept, u)
	}

	g.Users = kept

	return removed
}

// TokenAlgorithm configures how session tokens are signed.
type TokenAlgorithm struct {
	Algorithm string `json:"algorithm"`
	Expires   string `json:"expires"`
}

// Policy holds named scalar settings. Values keep whatever JSON type
// the operator wrote, so accessors coerce.
type Policy map[string]any

// String returns the named policy value as a string.
func (p Policy) String(name string) (string, bool) {
	v, ok := p[name]
	if !ok || v == nil {
		return "", false
	}

	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}

// Int returns the named policy value as an integer.
func (p Policy) Int(name string) (int, bool) {
	v, ok := p[name]
	if !ok || v == nil {
		return 0, false
	}

	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, false
		}

		return n, true
	default:
		return 0, false
	}
}

// CredentialDocument is the whole credential store as written to disk.
type CredentialDocument struct {
	DefaultAuthorize map[string]bool   `json:"default_authorize"`
	DefaultPolicy    Policy            `json:"default_policy"`
	TokenAlgorithm   TokenAlgorithm    `json:"token_algorithm"`
	Users            map[string]*User  `json:"users"`
	Groups           map[string]*Group `json:"groups"`
	Custom           json.RawMessage   `json:"custom"`
}

// Normalize replaces nil maps so callers can write without checks.
func (d *CredentialDocument) Normalize() {
	if d.DefaultAuthorize == nil {
		d.DefaultAuthorize = make(map[string]bool)
	}

	if d.DefaultPolicy == nil {
		d.DefaultPolicy = make(Policy)
	}

	if d.Users == nil {
		d.Users = make(map[string]*User)
	}

	if d.Groups == nil {
		d.Groups = make(map[string]*Group)
	}

	for _, g := range d.Groups {
		if g.Authorize == nil {
			g.Authorize = make(map[string]bool)
		}

		if g.Users == nil {
			g.Users = []string{}
		}
	}

	if len(d.Custom) == 0 {
		d.Custom = json.RawMessage("{}")
	}
}
