package auth

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alexjbarnes/sitegate/internal/models"
	"github.com/alexjbarnes/sitegate/internal/repository"
	"github.com/alexjbarnes/sitegate/internal/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testAgent = "test-agent/1.0"
	testIP    = "10.0.0.1"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	core     *Core
	repo     *repository.Repository
	creds    *store.FileCredentials
	sessions *store.FileSessions
	clock    *fakeClock
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture bootstraps fresh documents and a Core on a fixed clock.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	credPath := filepath.Join(dir, "credentials.json")
	sessPath := filepath.Join(dir, "sessions.json")

	_, _, err := store.Bootstrap(credPath, sessPath)
	require.NoError(t, err)

	creds := store.NewFileCredentials(credPath)
	sessions := store.NewFileSessions(sessPath)
	repo := repository.New(creds)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	return &fixture{
		core:     NewCore(repo, sessions, discardLogger(), WithClock(clock.Now)),
		repo:     repo,
		creds:    creds,
		sessions: sessions,
		clock:    clock,
	}
}

// request builds a Request from the default test client.
func (f *fixture) request(t *testing.T, cookie string) *Request {
	t.Helper()
	return f.requestFrom(t, cookie, testAgent, testIP)
}

func (f *fixture) requestFrom(t *testing.T, cookie, agent, ip string) *Request {
	t.Helper()
	req, err := f.core.ForRequest(context.Background(), RequestInfo{
		Cookie:    cookie,
		UserAgent: agent,
		IP:        ip,
	})
	require.NoError(t, err)

	return req
}

// issue logs nothing in; it signs a token for username directly.
func (f *fixture) issue(t *testing.T, username string) IssueResult {
	t.Helper()
	res, err := f.request(t, "").Issue(context.Background(), Identity{
		Username: username,
		Name:     username + " name",
		Email:    username + "@example.com",
	})
	require.NoError(t, err)

	return res
}

func (f *fixture) setPolicy(t *testing.T, key string, value any) {
	t.Helper()
	require.NoError(t, f.creds.Update(context.Background(), func(doc *models.CredentialDocument) (bool, error) {
		if value == nil {
			delete(doc.DefaultPolicy, key)
		} else {
			doc.DefaultPolicy[key] = value
		}

		return true, nil
	}))
}

// signed builds a token for username expiring at exp, signed with key.
func signed(t *testing.T, username string, exp time.Time, key string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}).SignedString([]byte(key))
	require.NoError(t, err)

	return tok
}
