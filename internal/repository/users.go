package repository

import (
	"context"
	"fmt"

	apperrors "github.com/alexjbarnes/sitegate/internal/errors"
	"github.com/alexjbarnes/sitegate/internal/models"
	"github.com/alexjbarnes/sitegate/internal/secret"
)

// AddUser creates an account with cleared counters and flags.
func (r *Repository) AddUser(ctx context.Context, username, password, name, email string) error {
	username, err := NormalizeName(username)
	if err != nil {
		return err
	}

	if err := guardUser(username); err != nil {
		return err
	}

	hash, err := secret.HashPassword(password)
	if err != nil {
		return err
	}

	return r.store.Update(ctx, func(doc *models.CredentialDocument) (bool, error) {
		if _, ok := doc.Users[username]; ok {
			return false, fmt.Errorf("%q: %w", username, apperrors.ErrUserExists)
		}

		doc.Users[username] = &models.User{
			Name:     name,
			Email:    email,
			Password: hash,
		}

		return true, nil
	})
}

// DeleteUser removes an account and strips it from every group.
func (r *Repository) DeleteUser(ctx context.Context, username string) error {
	username = Canonical(username)
	if err := guardUser(username); err != nil {
		return err
	}

	return r.store.Update(ctx, func(doc *models.CredentialDocument) (bool, error) {
		if _, ok := doc.Users[username]; !ok {
			return false, fmt.Errorf("%q: %w", username, apperrors.ErrUserNotFound)
		}

		delete(doc.Users, username)

		for _, g := range doc.Groups {
			g.RemoveMember(username)
		}

		return true, nil
	})
}

// SetUserState disables or re-enables an account.
func (r *Repository) SetUserState(ctx context.Context, username string, disabled bool) error {
	username = Canonical(username)
	if err := guardUser(username); err != nil {
		return err
	}

	return r.mutateUser(ctx, username, func(u *models.User) bool {
		if u.AccountDisabled == disabled {
			return false
		}

		u.AccountDisabled = disabled

		return true
	})
}

// UnlockUser clears the lock flag and failed-attempt counters.
func (r *Repository) UnlockUser(ctx context.Context, username string) error {
	username = Canonical(username)
	if err := guardUser(username); err != nil {
		return err
	}

	return r.mutateUser(ctx, username, func(u *models.User) bool {
		u.ClearAttempts()
		return true
	})
}

// SetUserDetails updates display name and email.
func (r *Repository) SetUserDetails(ctx context.Context, username, name, email string) error {
	username = Canonical(username)
	if err := guardUser(username); err != nil {
		return err
	}

	return r.mutateUser(ctx, username, func(u *models.User) bool {
		u.Name = name
		u.Email = email

		return true
	})
}

// SetUserPassword replaces the password hash. Unlike other user
// operations this is allowed for the reserved admin user.
func (r *Repository) SetUserPassword(ctx context.Context, username, password string) error {
	hash, err := secret.HashPassword(password)
	if err != nil {
		return err
	}

	return r.mutateUser(ctx, username, func(u *models.User) bool {
		u.Password = hash
		return true
	})
}

// UpdateUser applies fn to the stored user under a single
// read-modify-write, persisting only when fn reports a change. fn also
// receives the current policy so lockout accounting sees one consistent
// snapshot. It bypasses the reserved-identity guard: it is the login
// bookkeeping primitive, not an admin operation.
func (r *Repository) UpdateUser(ctx context.Context, username string, fn func(u *models.User, policy models.Policy) (bool, error)) error {
	username = Canonical(username)

	return r.store.Update(ctx, func(doc *models.CredentialDocument) (bool, error) {
		u, ok := doc.Users[username]
		if !ok {
			return false, fmt.Errorf("%q: %w", username, apperrors.ErrUserNotFound)
		}

		return fn(u, doc.DefaultPolicy)
	})
}

func (r *Repository) mutateUser(ctx context.Context, username string, fn func(u *models.User) bool) error {
	return r.UpdateUser(ctx, username, func(u *models.User, _ models.Policy) (bool, error) {
		return fn(u), nil
	})
}
