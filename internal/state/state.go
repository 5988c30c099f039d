// Package state is the bbolt-backed session store. It trades the
// human-editable session document for an embedded key-value file with
// transactional writes.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/alexjbarnes/sitegate/internal/models"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	userTokenBucket        = []byte("user_token")
	applicationTokenBucket = []byte("application_token")
)

// State wraps a bbolt database holding session records keyed by token.
type State struct {
	db *bolt.DB
}

// LoadAt opens a session database at the given path, creating it if it
// does not exist.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(userTokenBucket); err != nil {
			return err
		}

		_, err := tx.CreateBucketIfNotExists(applicationTokenBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// Get returns the session for token, or nil if not found.
func (s *State) Get(_ context.Context, token string) (*models.Session, error) {
	var sess *models.Session

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(userTokenBucket).Get([]byte(token))
		if v == nil {
			return nil
		}

		sess = &models.Session{}

		return json.Unmarshal(v, sess)
	})

	return sess, err
}

// Put persists the session for token.
func (s *State) Put(_ context.Context, token string, sess models.Session) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}

		return tx.Bucket(userTokenBucket).Put([]byte(token), data)
	})
}

// Delete removes the session for token. Missing keys are ignored.
func (s *State) Delete(_ context.Context, token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(userTokenBucket).Delete([]byte(token))
	})
}

// Tokens returns every stored user token.
func (s *State) Tokens(_ context.Context) ([]string, error) {
	var tokens []string

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(userTokenBucket).ForEach(func(k, _ []byte) error {
			tokens = append(tokens, string(k))
			return nil
		})
	})

	return tokens, err
}

// Sweep deletes every token expired reports true for inside a single
// write transaction.
func (s *State) Sweep(_ context.Context, expired func(token string) bool) (int, error) {
	removed := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(userTokenBucket)

		var doomed [][]byte

		// Deleting while iterating with ForEach is not allowed.
		err := b.ForEach(func(k, _ []byte) error {
			if expired(string(k)) {
				doomed = append(doomed, append([]byte(nil), k...))
			}

			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		removed = len(doomed)

		return nil
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}
