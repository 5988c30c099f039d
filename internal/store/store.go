// Package store persists the credential and session documents.
//
// Both documents are read fully, mutated in memory and written back as a
// whole. Nothing is cached between calls: every operation reloads from
// the backend, so the backend is the single source of truth.
package store

//go:generate mockgen -destination=../auth/mock_sessions_test.go -package=auth github.com/alexjbarnes/sitegate/internal/store SessionStore

import (
	"context"
	"fmt"

	apperrors "github.com/alexjbarnes/sitegate/internal/errors"
	"github.com/alexjbarnes/sitegate/internal/models"
	"github.com/alexjbarnes/sitegate/internal/state"
	"github.com/redis/go-redis/v9"
)

// Backend type names accepted by OpenCredentials and OpenSessions.
const (
	TypeFile  = "file"
	TypeBolt  = "bolt"
	TypeRedis = "redis"
)

// CredentialStore holds users, groups, the authorize template, policy
// and the token algorithm.
type CredentialStore interface {
	// Load returns a fresh copy of the whole document.
	Load(ctx context.Context) (*models.CredentialDocument, error)

	// Update loads the document, applies fn and writes the result back
	// when fn reports a change. An error from fn aborts without writing.
	Update(ctx context.Context, fn func(doc *models.CredentialDocument) (bool, error)) error
}

// SessionStore maps live token strings to their session records.
type SessionStore interface {
	// Get returns the session bound to token, or nil if there is none.
	Get(ctx context.Context, token string) (*models.Session, error)
	Put(ctx context.Context, token string, s models.Session) error
	// Delete removes token. Deleting an absent token is not an error.
	Delete(ctx context.Context, token string) error
	Tokens(ctx context.Context) ([]string, error)
	// Sweep deletes every token for which expired returns true and
	// persists once. It returns the number of removed records.
	Sweep(ctx context.Context, expired func(token string) bool) (int, error)
	Close() error
}

// OpenCredentials returns the credential store for the configured type.
// Only the file backend exists.
func OpenCredentials(storeType, path string) (CredentialStore, error) {
	switch storeType {
	case TypeFile:
		return NewFileCredentials(path), nil
	default:
		return nil, fmt.Errorf("credential store %q: %w", storeType, apperrors.ErrStoreNotSupported)
	}
}

// SessionOptions selects and configures a session backend.
type SessionOptions struct {
	Type          string
	Path          string
	BoltPath      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// OpenSessions returns the session store for the configured type.
func OpenSessions(opts SessionOptions) (SessionStore, error) {
	switch opts.Type {
	case TypeFile:
		return NewFileSessions(opts.Path), nil
	case TypeBolt:
		s, err := state.LoadAt(opts.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("opening bolt session store: %w", err)
		}

		return s, nil
	case TypeRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})

		return NewRedisSessions(client, opts.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("session store %q: %w", opts.Type, apperrors.ErrStoreNotSupported)
	}
}
