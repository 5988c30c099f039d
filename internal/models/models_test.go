package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_CoercesJSONValues(t *testing.T) {
	var p Policy
	require.NoError(t, json.Unmarshal([]byte(`{
		"password_retries": 3,
		"account_lockout": "30m",
		"token_refresh": 300,
		"cookie_name": "jwt"
	}`), &p))

	n, ok := p.Int(PolicyPasswordRetries)
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	s, ok := p.String(PolicyAccountLockout)
	assert.True(t, ok)
	assert.Equal(t, "30m", s)

	s, ok = p.String(PolicyTokenRefresh)
	assert.True(t, ok)
	assert.Equal(t, "300", s)

	_, ok = p.String("missing")
	assert.False(t, ok)
}

func TestPolicy_IntFromString(t *testing.T) {
	p := Policy{"password_retries": "5", "bad": "five"}

	n, ok := p.Int("password_retries")
	assert.True(t, ok)
	assert.Equal(t, 5, n)

	_, ok = p.Int("bad")
	assert.False(t, ok)
}

func TestUser_ClearAttempts(t *testing.T) {
	u := User{PasswordAttempts: 2, PasswordAttemptsExpires: 100, AccountLocked: true}
	assert.True(t, u.ClearAttempts())
	assert.Zero(t, u.PasswordAttempts)
	assert.Zero(t, u.PasswordAttemptsExpires)
	assert.False(t, u.AccountLocked)

	assert.False(t, u.ClearAttempts(), "second clear is a no-op")
}

func TestGroup_Membership(t *testing.T) {
	g := Group{Users: []string{"alice", "bob", "carol"}}
	assert.True(t, g.HasMember("bob"))

	assert.True(t, g.RemoveMember("bob"))
	assert.False(t, g.HasMember("bob"))
	assert.Equal(t, []string{"alice", "carol"}, g.Users)

	assert.False(t, g.RemoveMember("bob"))
}

func TestCredentialDocument_NormalizeFillsMaps(t *testing.T) {
	var d CredentialDocument
	require.NoError(t, json.Unmarshal([]byte(`{"groups":{"staff":{}}}`), &d))
	d.Normalize()

	assert.NotNil(t, d.DefaultAuthorize)
	assert.NotNil(t, d.DefaultPolicy)
	assert.NotNil(t, d.Users)
	assert.NotNil(t, d.Groups["staff"].Authorize)
	assert.NotNil(t, d.Groups["staff"].Users)
	assert.JSONEq(t, `{}`, string(d.Custom))
}
