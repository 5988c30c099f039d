package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	apperrors "github.com/alexjbarnes/sitegate/internal/errors"
	"github.com/alexjbarnes/sitegate/internal/models"
)

const (
	// documentDirPerm is the permission mode for the data directory.
	documentDirPerm = fs.FileMode(0o700)

	// documentFilePerm is the permission mode for document files. They
	// hold password hashes and session secrets.
	documentFilePerm = fs.FileMode(0o600)
)

// readDocument decodes the JSON file at path into v. A missing file and
// a malformed file surface as distinct sentinel errors.
func readDocument(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, apperrors.ErrDocumentMissing)
		}

		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w: %v", path, apperrors.ErrInvalidJSON, err)
	}

	return nil
}

// writeDocument replaces the file at path with the pretty-printed JSON
// of v. The new content goes to a temp file in the same directory and is
// renamed over the old one, so a failed write leaves the previous
// document intact.
func writeDocument(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, documentDirPerm); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}

	if err := tmp.Chmod(documentFilePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("setting permissions on %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file for %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}

	return nil
}

// FileCredentials is the JSON-file credential store.
type FileCredentials struct {
	path string
	mu   sync.Mutex
}

// NewFileCredentials returns a credential store backed by the file at path.
func NewFileCredentials(path string) *FileCredentials {
	return &FileCredentials{path: path}
}

// Path returns the document location.
func (f *FileCredentials) Path() string {
	return f.path
}

// Load reads the whole credential document.
func (f *FileCredentials) Load(_ context.Context) (*models.CredentialDocument, error) {
	var doc models.CredentialDocument
	if err := readDocument(f.path, &doc); err != nil {
		return nil, err
	}

	doc.Normalize()

	return &doc, nil
}

// Update performs a read-modify-write of the credential document. The
// mutex serialises writers inside this process.
func (f *FileCredentials) Update(ctx context.Context, fn func(doc *models.CredentialDocument) (bool, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.Load(ctx)
	if err != nil {
		return err
	}

	changed, err := fn(doc)
	if err != nil {
		return err
	}

	if !changed {
		return nil
	}

	return writeDocument(f.path, doc)
}

// FileSessions is the JSON-file session store.
type FileSessions struct {
	path string
	mu   sync.Mutex
}

// NewFileSessions returns a session store backed by the file at path.
func NewFileSessions(path string) *FileSessions {
	return &FileSessions{path: path}
}

// Path returns the document location.
func (f *FileSessions) Path() string {
	return f.path
}

func (f *FileSessions) load() (*models.SessionDocument, error) {
	var doc models.SessionDocument
	if err := readDocument(f.path, &doc); err != nil {
		return nil, err
	}

	doc.Normalize()

	return &doc, nil
}

func (f *FileSessions) update(fn func(doc *models.SessionDocument) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.load()
	if err != nil {
		return err
	}

	if !fn(doc) {
		return nil
	}

	return writeDocument(f.path, doc)
}

// Get returns the session for token, or nil if not found.
func (f *FileSessions) Get(_ context.Context, token string) (*models.Session, error) {
	doc, err := f.load()
	if err != nil {
		return nil, err
	}

	s, ok := doc.UserToken[token]
	if !ok {
		return nil, nil
	}

	return &s, nil
}

// Put stores the session for token.
func (f *FileSessions) Put(_ context.Context, token string, s models.Session) error {
	return f.update(func(doc *models.SessionDocument) bool {
		doc.UserToken[token] = s
		return true
	})
}

// Delete removes the session for token if present.
func (f *FileSessions) Delete(_ context.Context, token string) error {
	return f.update(func(doc *models.SessionDocument) bool {
		if _, ok := doc.UserToken[token]; !ok {
			return false
		}

		delete(doc.UserToken, token)

		return true
	})
}

// Tokens lists every live user token.
func (f *FileSessions) Tokens(_ context.Context) ([]string, error) {
	doc, err := f.load()
	if err != nil {
		return nil, err
	}

	tokens := make([]string, 0, len(doc.UserToken))
	for t := range doc.UserToken {
		tokens = append(tokens, t)
	}

	return tokens, nil
}

// Sweep removes every token expired reports true for, writing the
// document once if anything was removed.
func (f *FileSessions) Sweep(_ context.Context, expired func(token string) bool) (int, error) {
	removed := 0

	err := f.update(func(doc *models.SessionDocument) bool {
		for t := range doc.UserToken {
			if expired(t) {
				delete(doc.UserToken, t)
				removed++
			}
		}

		return removed > 0
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}

// Close is a no-op for the file store.
func (f *FileSessions) Close() error {
	return nil
}
