// Package repository implements user, group and policy management on
// top of a credential store.
//
// Every mutating operation runs the reserved-identity guard first and
// validates its target before touching the document, so a rejected call
// leaves the store unchanged.
package repository

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	apperrors "github.com/alexjbarnes/sitegate/internal/errors"
	"github.com/alexjbarnes/sitegate/internal/models"
	"github.com/alexjbarnes/sitegate/internal/store"
	"golang.org/x/text/unicode/norm"
)

// Repository is the credential and policy API used by the auth engine
// and the admin tooling.
type Repository struct {
	store store.CredentialStore
}

// New returns a repository over s.
func New(s store.CredentialStore) *Repository {
	return &Repository{store: s}
}

// Canonical returns the NFC form of name used as a document key. Lookups
// go through it so that differently composed input reaches the same
// entry; NormalizeName additionally validates names being created.
func Canonical(name string) string {
	return norm.NFC.String(name)
}

// NormalizeName returns the canonical form of a user, group or
// permission name: NFC-normalised, case preserved. Empty names and names
// containing whitespace or control characters are rejected.
func NormalizeName(name string) (string, error) {
	n := Canonical(name)
	if n == "" {
		return "", fmt.Errorf("empty name: %w", apperrors.ErrInvalidName)
	}

	if strings.IndexFunc(n, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) >= 0 {
		return "", fmt.Errorf("%q: %w", name, apperrors.ErrInvalidName)
	}

	return n, nil
}

// guardUser rejects generic operations on the reserved admin user.
func guardUser(username string) error {
	if username == models.AdminUser {
		return fmt.Errorf("%q: %w", username, apperrors.ErrReservedUser)
	}

	return nil
}

// guardGroup rejects generic operations on the reserved admins group.
func guardGroup(name string) error {
	if name == models.AdminsGroup {
		return fmt.Errorf("%q: %w", name, apperrors.ErrReservedGroup)
	}

	return nil
}

// Document returns a fresh copy of the whole credential document.
func (r *Repository) Document(ctx context.Context) (*models.CredentialDocument, error) {
	return r.store.Load(ctx)
}

// Users returns every user keyed by username.
func (r *Repository) Users(ctx context.Context) (map[string]*models.User, error) {
	doc, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	return doc.Users, nil
}

// User returns a single user.
func (r *Repository) User(ctx context.Context, username string) (*models.User, error) {
	doc, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	u, ok := doc.Users[Canonical(username)]
	if !ok {
		return nil, fmt.Errorf("%q: %w", username, apperrors.ErrUserNotFound)
	}

	return u, nil
}

// Groups returns every group keyed by name.
func (r *Repository) Groups(ctx context.Context) (map[string]*models.Group, error) {
	doc, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	return doc.Groups, nil
}

// DefaultAuthorize returns the default-authorize template.
func (r *Repository) DefaultAuthorize(ctx context.Context) (map[string]bool, error) {
	doc, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	return doc.DefaultAuthorize, nil
}

// PolicyDocument returns all policy settings.
func (r *Repository) PolicyDocument(ctx context.Context) (models.Policy, error) {
	doc, err := r.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	return doc.DefaultPolicy, nil
}

// Policy returns a single policy value as a string. A missing key is a
// configuration error.
func (r *Repository) Policy(ctx context.Context, name string) (string, error) {
	p, err := r.PolicyDocument(ctx)
	if err != nil {
		return "", err
	}

	v, ok := p.String(name)
	if !ok {
		return "", fmt.Errorf("%q: %w", name, apperrors.ErrPolicyMissing)
	}

	return v, nil
}

// TokenAlgorithm returns the signing configuration.
func (r *Repository) TokenAlgorithm(ctx context.Context) (models.TokenAlgorithm, error) {
	doc, err := r.store.Load(ctx)
	if err != nil {
		return models.TokenAlgorithm{}, err
	}

	return doc.TokenAlgorithm, nil
}
