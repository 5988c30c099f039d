package state

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/alexjbarnes/sitegate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *State {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := LoadAt(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var testSession = models.Session{Secret: "c2VjcmV0", UserAgent: "curl/8.0", IP: "10.0.0.1"}

// --- LoadAt / Close ---

func TestLoadAt_CreatesDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "sessions.db")
	s, err := LoadAt(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestLoadAt_ReopensExistingDB(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "sessions.db")

	s1, err := LoadAt(dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.Put(ctx, "tok", testSession))
	require.NoError(t, s1.Close())

	s2, err := LoadAt(dbPath)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(ctx, "tok")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, testSession, *got)
}

// --- Get / Put / Delete ---

func TestGet_NotFound(t *testing.T) {
	s := testDB(t)
	got, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPut_Overwrite(t *testing.T) {
	ctx := context.Background()
	s := testDB(t)
	require.NoError(t, s.Put(ctx, "tok", testSession))

	updated := testSession
	updated.IP = "10.0.0.2"
	require.NoError(t, s.Put(ctx, "tok", updated))

	got, err := s.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", got.IP)

	tokens, err := s.Tokens(ctx)
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}

func TestDelete_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := testDB(t)
	require.NoError(t, s.Put(ctx, "tok", testSession))

	require.NoError(t, s.Delete(ctx, "tok"))
	require.NoError(t, s.Delete(ctx, "tok"))

	got, err := s.Get(ctx, "tok")
	require.NoError(t, err)
	assert.Nil(t, got)
}

// --- Tokens / Sweep ---

func TestTokens(t *testing.T) {
	ctx := context.Background()
	s := testDB(t)
	require.NoError(t, s.Put(ctx, "b", testSession))
	require.NoError(t, s.Put(ctx, "a", testSession))

	tokens, err := s.Tokens(ctx)
	require.NoError(t, err)
	sort.Strings(tokens)
	assert.Equal(t, []string{"a", "b"}, tokens)
}

func TestSweep_RemovesOnlyMatching(t *testing.T) {
	ctx := context.Background()
	s := testDB(t)
	require.NoError(t, s.Put(ctx, "old-1", testSession))
	require.NoError(t, s.Put(ctx, "old-2", testSession))
	require.NoError(t, s.Put(ctx, "live", testSession))

	removed, err := s.Sweep(ctx, func(token string) bool {
		return strings.HasPrefix(token, "old-")
	})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	tokens, err := s.Tokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, tokens)
}

func TestSweep_NothingExpired(t *testing.T) {
	ctx := context.Background()
	s := testDB(t)
	require.NoError(t, s.Put(ctx, "live", testSession))

	removed, err := s.Sweep(ctx, func(string) bool { return false })
	require.NoError(t, err)
	assert.Zero(t, removed)

	tokens, err := s.Tokens(ctx)
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}
